package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refinance/ledger/internal/adapter/http/middleware"
	"github.com/refinance/ledger/internal/infrastructure/config"
	"github.com/refinance/ledger/internal/infrastructure/scheduler"
)

func loadConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()
	t.Setenv("STORAGE", config.StorageMemory)
	t.Setenv("BALANCE_CACHE", config.BalanceCacheMemory)
	for k, v := range env {
		t.Setenv(k, v)
	}
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func serve(a *app, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func TestNewAppInMemory(t *testing.T) {
	cfg := loadConfig(t, nil)

	a, err := newApp(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.scheduler)
	assert.ElementsMatch(t, []string{
		scheduler.JobAutoExchange,
		scheduler.JobInvoiceAutoPay,
		scheduler.JobFeeInvoices,
	}, a.scheduler.Jobs())
	require.NotNil(t, a.limiter)

	rec := serve(a, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(a, http.MethodGet, "/api/v1/balances/"+cfg.SystemEntityID, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(a, http.MethodPost, "/api/v1/transactions/",
		`{"from_entity_id":"ent_f0","to_entity_id":"ent_exchange","amount":"5","currency":"gel"}`, nil)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = serve(a, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ledger_transactions_created_total")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestNewAppSchedulerAndRateLimitDisabled(t *testing.T) {
	cfg := loadConfig(t, map[string]string{
		"SCHEDULER_ENABLED": "false",
		"RATE_LIMIT_RPS":    "0",
	})

	a, err := newApp(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.scheduler)
	assert.Nil(t, a.limiter)
}

func TestNewAppWithRedis(t *testing.T) {
	s := miniredis.RunT(t)
	cfg := loadConfig(t, map[string]string{
		"BALANCE_CACHE": config.BalanceCacheRedis,
		"REDIS_URL":     "redis://" + s.Addr(),
	})

	a, err := newApp(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	rec := serve(a, http.MethodGet, "/ready", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redis":"ok"`)

	body := `{"from_entity_id":"ent_f0","to_entity_id":"ent_exchange","amount":"5","currency":"gel","status":"completed"}`
	headers := map[string]string{middleware.IdempotencyKeyHeader: "once"}
	first := serve(a, http.MethodPost, "/api/v1/transactions/", body, headers)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	second := serve(a, http.MethodPost, "/api/v1/transactions/", body, headers)
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get(middleware.IdempotencyReplayHeader))
	assert.Equal(t, first.Body.String(), second.Body.String())

	rec = serve(a, http.MethodGet, "/api/v1/balances/ent_exchange", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"gel":"5.00"`)

	s.Close()
	rec = serve(a, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestNewAppFailsWithoutRedis(t *testing.T) {
	s := miniredis.RunT(t)
	addr := s.Addr()
	s.Close()

	cfg := loadConfig(t, map[string]string{
		"BALANCE_CACHE":         config.BalanceCacheRedis,
		"REDIS_URL":             "redis://" + addr,
		"REDIS_CONNECT_RETRIES": "0",
	})

	_, err := newApp(context.Background(), cfg, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect to redis")
}

func TestFeeSchedule(t *testing.T) {
	cfg := loadConfig(t, map[string]string{
		"FEE_RESIDENT": "usd:50",
		"FEE_MEMBER":   "gel:60,usd:20",
	})

	fees, err := feeSchedule(cfg)
	require.NoError(t, err)
	require.Len(t, fees.Resident, 1)
	assert.Equal(t, "usd", fees.Resident[0].Currency)
	require.Len(t, fees.Member, 2)
	assert.Equal(t, "gel", fees.Member[0].Currency)
	assert.Equal(t, "20", fees.Member[1].Amount.String())
}

func TestNewSchedulerRejectsBadTrigger(t *testing.T) {
	cfg := loadConfig(t, nil)
	cfg.AutoExchangeAt = "25:99"

	_, err := newScheduler(cfg, zerolog.Nop(), nil, nil, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), scheduler.JobAutoExchange)
}
