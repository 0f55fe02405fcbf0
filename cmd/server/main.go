package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	httpAdapter "github.com/refinance/ledger/internal/adapter/http"
	"github.com/refinance/ledger/internal/adapter/http/handler"
	"github.com/refinance/ledger/internal/adapter/http/middleware"
	"github.com/refinance/ledger/internal/adapter/rates"
	"github.com/refinance/ledger/internal/adapter/repository/memory"
	postgresRepo "github.com/refinance/ledger/internal/adapter/repository/postgres"
	redisRepo "github.com/refinance/ledger/internal/adapter/repository/redis"
	"github.com/refinance/ledger/internal/infrastructure/config"
	"github.com/refinance/ledger/internal/infrastructure/logger"
	"github.com/refinance/ledger/internal/infrastructure/metrics"
	"github.com/refinance/ledger/internal/infrastructure/postgres"
	"github.com/refinance/ledger/internal/infrastructure/redis"
	"github.com/refinance/ledger/internal/infrastructure/scheduler"
	"github.com/refinance/ledger/internal/usecase"
)

const rateLimiterIdle = 10 * time.Minute

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	zerolog.SetGlobalLevel(appLogger.GetLevel())
	log.Logger = appLogger

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, appLogger); err != nil {
		appLogger.Fatal().Err(err).Msg("server failed")
	}
	appLogger.Info().Msg("server stopped")
}

// repositories is the storage backend chosen by STORAGE.
type repositories struct {
	txManager    usecase.TransactionManager
	entities     usecase.EntityRepository
	tags         usecase.TagRepository
	treasuries   usecase.TreasuryRepository
	transactions usecase.TransactionRepository
	invoices     usecase.InvoiceRepository
	splits       usecase.SplitRepository
	ledger       usecase.LedgerRepository
	idGen        usecase.IDGenerator
}

func memoryRepositories() repositories {
	store := memory.New()
	store.Seed()
	return repositories{
		txManager:    store,
		entities:     store.Entities(),
		tags:         store.Tags(),
		treasuries:   store.Treasuries(),
		transactions: store.Transactions(),
		invoices:     store.Invoices(),
		splits:       store.Splits(),
		ledger:       store.Ledger(),
		idGen:        postgresRepo.NewULIDGenerator(),
	}
}

// app is the wired service.
type app struct {
	cfg       *config.Config
	logger    zerolog.Logger
	router    http.Handler
	scheduler *scheduler.Scheduler
	limiter   *middleware.RateLimiter
	closers   []func()
}

// newApp connects the configured backends and wires use cases, handlers and jobs.
func newApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: log}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	health := handler.NewHealthHandler()

	var repos repositories
	var retrier scheduler.Retrier
	switch cfg.Storage {
	case config.StorageMemory:
		repos = memoryRepositories()
		log.Warn().Msg("using in-memory storage, data is lost on restart")
	default:
		if err := postgres.NewMigrator(cfg.DatabaseURL, cfg.MigrationsPath, log).Up(); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}

		pool, err := postgres.NewPoolWithConfig(ctx, postgres.PoolConfig{
			DatabaseURL:    cfg.DatabaseURL,
			MaxConns:       cfg.DatabaseMaxConns,
			MinConns:       cfg.DatabaseMinConns,
			ConnectTimeout: cfg.DatabaseTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		health.WithDependency("postgres", pool)
		log.Info().Msg("connected to postgres")

		repos = repositories{
			txManager:    postgresRepo.NewTxManager(pool),
			entities:     postgresRepo.NewEntityRepository(pool),
			tags:         postgresRepo.NewTagRepository(pool),
			treasuries:   postgresRepo.NewTreasuryRepository(pool),
			transactions: postgresRepo.NewTransactionRepository(pool),
			invoices:     postgresRepo.NewInvoiceRepository(pool),
			splits:       postgresRepo.NewSplitRepository(pool),
			ledger:       postgresRepo.NewLedgerRepository(pool),
			idGen:        postgresRepo.NewULIDGenerator(),
		}
		retrier = postgresRepo.NewRetrier(log)
	}

	var redisClient *goredis.Client
	if cfg.NeedsRedis() {
		redisClient, err = redis.NewClientWithConfig(ctx, redis.ClientConfig{
			URL:            cfg.RedisURL,
			PoolSize:       cfg.RedisPoolSize,
			DialTimeout:    cfg.DatabaseTimeout,
			ConnectRetries: cfg.RedisConnectRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.closers = append(a.closers, func() { redisClient.Close() })
		health.WithDependency("redis", handler.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}))
		log.Info().Msg("connected to redis")
	}

	var balanceCache usecase.BalanceCache
	switch cfg.BalanceCache {
	case config.BalanceCacheRedis:
		balanceCache = redisRepo.NewBalanceCache(redisClient)
	case config.BalanceCacheNone:
		balanceCache = memory.NopBalanceCache{}
	default:
		balanceCache = memory.NewBalanceCache()
	}

	var sharedCache usecase.Cache
	var idempotencyStore usecase.IdempotencyStore
	if redisClient != nil {
		sharedCache = redisRepo.NewCache(redisClient)
		idempotencyStore = redisRepo.NewIdempotencyStore(redisClient)
	} else {
		log.Warn().Msg("redis disabled, idempotency keys are not enforced")
	}

	rateProvider := rates.NewCachedProvider(rates.NewNBGClient(rates.Config{
		URL:             cfg.RatesURL,
		Timeout:         cfg.RatesTimeout,
		MaxRetries:      cfg.RatesMaxRetries,
		BreakerFailures: cfg.RatesBreakerFailures,
		BreakerTimeout:  cfg.RatesBreakerTimeout,
	}, log), sharedCache, cfg.RatesTTL, log)

	fees, err := feeSchedule(cfg)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// Initialize use cases
	balances := usecase.NewBalanceUseCase(repos.entities, repos.treasuries, repos.transactions, balanceCache, log)
	treasuries := usecase.NewTreasuryUseCase(repos.txManager, repos.treasuries, repos.transactions, balances, log)
	reconciler := usecase.NewInvoiceReconciler(repos.invoices, repos.transactions, log)
	transactions := usecase.NewTransactionUseCase(repos.txManager, repos.entities, repos.treasuries, repos.tags,
		repos.transactions, repos.idGen, balances, treasuries, reconciler, m, log)
	invoices := usecase.NewInvoiceUseCase(repos.txManager, repos.entities, repos.tags, repos.invoices, repos.idGen,
		reconciler, transactions, balances, fees, cfg.SystemEntityID, m, log)
	splits := usecase.NewSplitUseCase(repos.txManager, repos.entities, repos.tags, repos.splits, repos.idGen,
		transactions, balances, m, log)
	exchange := usecase.NewExchangeUseCase(repos.txManager, repos.entities, repos.tags, rateProvider, transactions,
		balances, cfg.ExchangeEntityID, m, log)
	reconciliation := usecase.NewReconciliationUseCase(repos.entities, repos.ledger, balances, m)

	if cfg.RateLimitRPS > 0 {
		a.limiter = middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	a.router = httpAdapter.NewRouter(httpAdapter.RouterConfig{
		BalanceHandler:     handler.NewBalanceHandler(balances),
		TreasuryHandler:    handler.NewTreasuryHandler(treasuries),
		TransactionHandler: handler.NewTransactionHandler(transactions, cfg.SystemEntityID),
		InvoiceHandler:     handler.NewInvoiceHandler(invoices, cfg.SystemEntityID),
		SplitHandler:       handler.NewSplitHandler(splits, cfg.SystemEntityID),
		ExchangeHandler:    handler.NewExchangeHandler(exchange, cfg.SystemEntityID),
		LedgerHandler:      handler.NewLedgerHandler(reconciliation),
		HealthHandler:      health,
		Logger:             log,
		Metrics:            m,
		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		IdempotencyStore:   idempotencyStore,
		IdempotencyTTL:     cfg.IdempotencyTTL,
		RateLimiter:        a.limiter,
	})

	if cfg.SchedulerEnabled {
		a.scheduler, err = newScheduler(cfg, log, m, exchange, invoices, retrier)
		if err != nil {
			return nil, err
		}
	}

	return a, nil
}

func feeSchedule(cfg *config.Config) (usecase.FeeSchedule, error) {
	resident, err := config.ParseFeeAmounts(cfg.FeeResident)
	if err != nil {
		return usecase.FeeSchedule{}, fmt.Errorf("resident fees: %w", err)
	}
	member, err := config.ParseFeeAmounts(cfg.FeeMember)
	if err != nil {
		return usecase.FeeSchedule{}, fmt.Errorf("member fees: %w", err)
	}
	return usecase.FeeSchedule{Resident: resident, Member: member}, nil
}

func newScheduler(
	cfg *config.Config,
	log zerolog.Logger,
	m *metrics.Metrics,
	exchange scheduler.Exchanger,
	invoices scheduler.Biller,
	retrier scheduler.Retrier,
) (*scheduler.Scheduler, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	triggers := map[string]string{
		scheduler.JobAutoExchange:   cfg.AutoExchangeAt,
		scheduler.JobInvoiceAutoPay: cfg.InvoiceAutoPayAt,
		scheduler.JobFeeInvoices:    cfg.FeeInvoicesAt,
	}
	parsed := make(map[string]scheduler.Trigger, len(triggers))
	for name, at := range triggers {
		t, err := scheduler.ParseTrigger(at, loc)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		parsed[name] = t
	}

	s := scheduler.New(log, scheduler.WithMetrics(m))
	if err := scheduler.RegisterLedgerJobs(s, scheduler.LedgerJobs{
		Exchange:         exchange,
		Invoices:         invoices,
		ActorEntityID:    cfg.SystemEntityID,
		Retrier:          retrier,
		AutoExchangeAt:   parsed[scheduler.JobAutoExchange],
		InvoiceAutoPayAt: parsed[scheduler.JobInvoiceAutoPay],
		FeeInvoicesAt:    parsed[scheduler.JobFeeInvoices],
	}); err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases backend connections in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// run serves HTTP and runs the scheduler until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      a.router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	bgCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.scheduler != nil {
		go func() {
			if err := a.scheduler.Start(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("scheduler stopped")
			}
		}()
	}
	if a.limiter != nil {
		go a.sweepLimiter(bgCtx)
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.HTTPPort).Str("storage", cfg.Storage).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func (a *app) sweepLimiter(ctx context.Context) {
	ticker := time.NewTicker(rateLimiterIdle)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := a.limiter.Cleanup(rateLimiterIdle); removed > 0 {
				a.logger.Debug().Int("removed", removed).Msg("rate limiter visitors expired")
			}
		}
	}
}
