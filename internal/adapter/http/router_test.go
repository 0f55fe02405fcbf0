package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/refinance/ledger/internal/adapter/http/dto"
	"github.com/refinance/ledger/internal/adapter/http/handler"
	apimiddleware "github.com/refinance/ledger/internal/adapter/http/middleware"
	"github.com/refinance/ledger/internal/adapter/rates"
	"github.com/refinance/ledger/internal/adapter/repository/memory"
	"github.com/refinance/ledger/internal/domain"
	"github.com/refinance/ledger/internal/infrastructure/metrics"
	"github.com/refinance/ledger/internal/usecase"
	"github.com/refinance/ledger/internal/usecase/mocks"
)

func TestNewRouter_HealthEndpointAvailable(t *testing.T) {
	router := NewRouter(newRouterConfig(t))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected /health to return 200, got %d", rec.Code)
	}
}

func TestNewRouter_RateLimiterBlocksExcessRequests(t *testing.T) {
	rl := apimiddleware.NewRateLimiter(1, 1)
	router := NewRouter(newRouterConfig(t, func(cfg *RouterConfig) {
		cfg.RateLimiter = rl
	}))

	get := func(path string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "1.2.3.4:1234"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := get("/api/v1/balances/" + memory.SystemEntityID); code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", code)
	}
	if code := get("/api/v1/balances/" + memory.SystemEntityID); code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be throttled, got %d", code)
	}
	// Probes stay outside the limiter.
	if code := get("/health"); code != http.StatusOK {
		t.Fatalf("expected /health to bypass the limiter, got %d", code)
	}
}

func TestNewRouter_IdempotencyMiddlewareInvokesStore(t *testing.T) {
	store := &stubIdempotencyStore{}
	router := NewRouter(newRouterConfig(t, func(cfg *RouterConfig) {
		cfg.IdempotencyStore = store
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices/auto_pay", nil)
	req.Header.Set(apimiddleware.IdempotencyKeyHeader, "key-123")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if !store.checkCalled {
		t.Fatalf("expected idempotency store to be used")
	}
}

func TestNewRouter_IdempotentTransactionIsRecordedOnce(t *testing.T) {
	store := mocks.NewMockIdempotencyStore()
	router := NewRouter(newRouterConfig(t, func(cfg *RouterConfig) {
		cfg.IdempotencyStore = store
	}))

	body := `{"from_entity_id":"ent_f0","to_entity_id":"ent_alice","amount":"10","currency":"gel","status":"completed"}`
	post := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions/", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(apimiddleware.IdempotencyKeyHeader, "deposit-1")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	first := post()
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", first.Code, first.Body.String())
	}
	second := post()
	if second.Code != http.StatusCreated {
		t.Fatalf("expected replayed 201, got %d", second.Code)
	}
	if second.Header().Get(apimiddleware.IdempotencyReplayHeader) != "true" {
		t.Fatal("expected replay header on the second response")
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("expected identical bodies, got %s and %s", first.Body.String(), second.Body.String())
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/transactions/?entity_id=ent_alice", nil))
	var listed []dto.TransactionResponse
	if err := json.NewDecoder(rec.Body).Decode(&listed); err != nil {
		t.Fatalf("decode transactions: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected one transaction, got %d", len(listed))
	}
}

func TestNewRouter_TransactionMovesBalances(t *testing.T) {
	router := NewRouter(newRouterConfig(t))

	body := `{"from_entity_id":"ent_f0","to_entity_id":"ent_alice","amount":"25.50","currency":"USD","status":"completed"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(handler.ActorHeader, "ent_alice")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var created dto.TransactionResponse
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode transaction: %v", err)
	}
	if created.ActorEntityID != "ent_alice" || created.Currency != "usd" || created.Amount != "25.50" {
		t.Fatalf("unexpected transaction %+v", created)
	}

	balance := func(entityID string) dto.BalanceResponse {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/balances/"+entityID, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("balance %s: expected 200, got %d", entityID, rec.Code)
		}
		var b dto.BalanceResponse
		if err := json.NewDecoder(rec.Body).Decode(&b); err != nil {
			t.Fatalf("decode balance: %v", err)
		}
		return b
	}

	if got := balance("ent_alice").Confirmed["usd"]; got != "25.50" {
		t.Fatalf("expected alice usd 25.50, got %q", got)
	}
	if got := balance(memory.SystemEntityID).Confirmed["usd"]; got != "-25.50" {
		t.Fatalf("expected f0 usd -25.50, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/ledger/consistency", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected consistent ledger, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestNewRouter_UnknownEntityIsNotFound(t *testing.T) {
	router := NewRouter(newRouterConfig(t))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/balances/ent_missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	var resp dto.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp.Code != domain.ErrEntityNotFound.Code {
		t.Fatalf("expected code %d, got %d", domain.ErrEntityNotFound.Code, resp.Code)
	}
}

func TestNewRouter_MetricsEndpoint(t *testing.T) {
	router := NewRouter(newRouterConfig(t, func(cfg *RouterConfig) {
		cfg.MetricsHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte("ok"))
		})
	}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("expected metrics handler to serve, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestNewRouter_RegistersKeyRoutes(t *testing.T) {
	router := NewRouter(newRouterConfig(t))

	chiRoutes, ok := router.(chi.Routes)
	if !ok {
		t.Fatal("router does not implement chi.Routes")
	}

	seen := map[string]bool{}
	if err := chi.Walk(chiRoutes, func(method string, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		seen[method+" "+route] = true
		return nil
	}); err != nil {
		t.Fatalf("walk failed: %v", err)
	}

	expected := []string{
		"GET /health",
		"GET /ready",
		"GET /api/v1/balances/{entityID}",
		"GET /api/v1/treasuries/{id}/balances",
		"GET /api/v1/treasuries/overdraft/{transactionID}",
		"POST /api/v1/transactions/",
		"PATCH /api/v1/transactions/{id}",
		"POST /api/v1/transactions/{id}/tags/{tagID}",
		"POST /api/v1/invoices/",
		"POST /api/v1/invoices/auto_pay",
		"POST /api/v1/invoices/fees",
		"POST /api/v1/invoices/{id}/cancel",
		"POST /api/v1/splits/{id}/perform",
		"DELETE /api/v1/splits/{id}/participants/{entityID}",
		"GET /api/v1/currency_exchange/rates",
		"POST /api/v1/currency_exchange/exchange",
		"GET /api/v1/currency_exchange/auto_balance/preview",
		"POST /api/v1/currency_exchange/auto_balance/{entityID}/run",
		"GET /api/v1/ledger/consistency",
	}

	for _, route := range expected {
		if !seen[route] {
			t.Fatalf("expected route %s to be registered", route)
		}
	}
}

// newRouterConfig wires every handler over a seeded memory store with one
// extra resident, alice.
func newRouterConfig(t *testing.T, opts ...func(*RouterConfig)) RouterConfig {
	t.Helper()

	store := memory.New()
	store.Seed()
	store.PutEntity(&domain.Entity{ID: "ent_alice", Name: "alice", Active: true, TagIDs: []string{memory.TagID(domain.TagResident)}})

	logger := zerolog.Nop()
	m := metrics.New(prometheus.NewRegistry())
	idGen := mocks.NewMockIDGenerator()
	provider := rates.StaticProvider{Rates: domain.Rates{"usd": decimal.RequireFromString("2.70")}}

	balances := usecase.NewBalanceUseCase(store.Entities(), store.Treasuries(), store.Transactions(), memory.NewBalanceCache(), logger)
	treasuries := usecase.NewTreasuryUseCase(store, store.Treasuries(), store.Transactions(), balances, logger)
	reconciler := usecase.NewInvoiceReconciler(store.Invoices(), store.Transactions(), logger)
	transactions := usecase.NewTransactionUseCase(store, store.Entities(), store.Treasuries(), store.Tags(),
		store.Transactions(), idGen, balances, treasuries, reconciler, m, logger)
	invoices := usecase.NewInvoiceUseCase(store, store.Entities(), store.Tags(), store.Invoices(), idGen,
		reconciler, transactions, balances, usecase.FeeSchedule{}, memory.SystemEntityID, m, logger)
	splits := usecase.NewSplitUseCase(store, store.Entities(), store.Tags(), store.Splits(), idGen,
		transactions, balances, m, logger)
	exchange := usecase.NewExchangeUseCase(store, store.Entities(), store.Tags(), provider, transactions,
		balances, memory.ExchangeEntityID, m, logger)
	reconciliation := usecase.NewReconciliationUseCase(store.Entities(), store.Ledger(), balances, m)

	cfg := RouterConfig{
		BalanceHandler:     handler.NewBalanceHandler(balances),
		TreasuryHandler:    handler.NewTreasuryHandler(treasuries),
		TransactionHandler: handler.NewTransactionHandler(transactions, memory.SystemEntityID),
		InvoiceHandler:     handler.NewInvoiceHandler(invoices, memory.SystemEntityID),
		SplitHandler:       handler.NewSplitHandler(splits, memory.SystemEntityID),
		ExchangeHandler:    handler.NewExchangeHandler(exchange, memory.SystemEntityID),
		LedgerHandler:      handler.NewLedgerHandler(reconciliation),
		HealthHandler:      handler.NewHealthHandler(),
		Logger:             logger,
		Metrics:            m,
		IdempotencyTTL:     time.Minute,
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	return cfg
}

type stubIdempotencyStore struct {
	checkCalled bool
}

func (s *stubIdempotencyStore) CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error) {
	s.checkCalled = true
	return false, nil, nil
}

func (s *stubIdempotencyStore) Update(ctx context.Context, key string, response []byte, ttl time.Duration) error {
	return nil
}
