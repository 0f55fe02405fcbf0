package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/refinance/ledger/internal/adapter/http/handler"
	"github.com/refinance/ledger/internal/adapter/http/middleware"
	"github.com/refinance/ledger/internal/infrastructure/metrics"
	"github.com/refinance/ledger/internal/usecase"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	BalanceHandler     *handler.BalanceHandler
	TreasuryHandler    *handler.TreasuryHandler
	TransactionHandler *handler.TransactionHandler
	InvoiceHandler     *handler.InvoiceHandler
	SplitHandler       *handler.SplitHandler
	ExchangeHandler    *handler.ExchangeHandler
	LedgerHandler      *handler.LedgerHandler
	HealthHandler      *handler.HealthHandler

	Logger           zerolog.Logger
	Metrics          *metrics.Metrics
	MetricsHandler   http.Handler
	IdempotencyStore usecase.IdempotencyStore
	IdempotencyTTL   time.Duration
	RateLimiter      *middleware.RateLimiter
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewLoggingMiddleware(cfg.Logger).Wrap)
	r.Use(middleware.Recovery)
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}

	// Health endpoints
	r.Get("/health", cfg.HealthHandler.Liveness)
	r.Get("/ready", cfg.HealthHandler.Readiness)
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimiter != nil {
			r.Use(cfg.RateLimiter.Limit)
		}
		// Idempotency middleware for mutating requests
		if cfg.IdempotencyStore != nil {
			r.Use(middleware.NewIdempotencyMiddleware(cfg.IdempotencyStore, cfg.IdempotencyTTL).Wrap)
		}

		r.Get("/balances/{entityID}", cfg.BalanceHandler.Get)

		r.Route("/treasuries", func(r chi.Router) {
			r.Get("/overdraft/{transactionID}", cfg.TreasuryHandler.Overdraft)
			r.Get("/{id}", cfg.TreasuryHandler.Get)
			r.Get("/{id}/balances", cfg.TreasuryHandler.Balances)
			r.Delete("/{id}", cfg.TreasuryHandler.Delete)
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Post("/", cfg.TransactionHandler.Create)
			r.Get("/", cfg.TransactionHandler.List)
			r.Get("/{id}", cfg.TransactionHandler.Get)
			r.Patch("/{id}", cfg.TransactionHandler.Update)
			r.Delete("/{id}", cfg.TransactionHandler.Delete)
			r.Post("/{id}/tags/{tagID}", cfg.TransactionHandler.AddTag)
			r.Delete("/{id}/tags/{tagID}", cfg.TransactionHandler.RemoveTag)
		})

		r.Route("/invoices", func(r chi.Router) {
			r.Post("/", cfg.InvoiceHandler.Create)
			r.Get("/", cfg.InvoiceHandler.List)
			r.Post("/auto_pay", cfg.InvoiceHandler.AutoPay)
			r.Post("/fees", cfg.InvoiceHandler.IssueFees)
			r.Get("/{id}", cfg.InvoiceHandler.Get)
			r.Patch("/{id}", cfg.InvoiceHandler.Update)
			r.Delete("/{id}", cfg.InvoiceHandler.Delete)
			r.Post("/{id}/cancel", cfg.InvoiceHandler.Cancel)
		})

		r.Route("/splits", func(r chi.Router) {
			r.Post("/", cfg.SplitHandler.Create)
			r.Get("/", cfg.SplitHandler.List)
			r.Get("/{id}", cfg.SplitHandler.Get)
			r.Patch("/{id}", cfg.SplitHandler.Update)
			r.Delete("/{id}", cfg.SplitHandler.Delete)
			r.Post("/{id}/participants", cfg.SplitHandler.AddParticipant)
			r.Delete("/{id}/participants/{entityID}", cfg.SplitHandler.RemoveParticipant)
			r.Post("/{id}/perform", cfg.SplitHandler.Perform)
		})

		r.Route("/currency_exchange", func(r chi.Router) {
			r.Get("/rates", cfg.ExchangeHandler.Rates)
			r.Post("/preview", cfg.ExchangeHandler.Preview)
			r.Post("/exchange", cfg.ExchangeHandler.Exchange)
			r.Get("/auto_balance/preview", cfg.ExchangeHandler.AutoBalancePreview)
			r.Post("/auto_balance/run", cfg.ExchangeHandler.AutoBalanceRun)
			r.Post("/auto_balance/{entityID}/run", cfg.ExchangeHandler.AutoBalanceEntity)
		})

		r.Get("/ledger/consistency", cfg.LedgerHandler.Consistency)
	})

	return r
}
