// Package rates fetches exchange rate tables from the National Bank of
// Georgia and caches them for the exchange use cases.
package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/refinance/ledger/internal/domain"
)

// DefaultURL is the public NBG currency table endpoint.
const DefaultURL = "https://nbg.gov.ge/gw/api/ct/monetarypolicy/currencies/en/json/"

type nbgCurrency struct {
	Code     string          `json:"code"`
	Rate     decimal.Decimal `json:"rate"`
	Quantity decimal.Decimal `json:"quantity"`
}

type nbgTable struct {
	Currencies []nbgCurrency `json:"currencies"`
}

// Config tunes the NBG client.
type Config struct {
	URL        string
	Timeout    time.Duration
	MaxRetries uint64
	// BreakerTimeout is how long the breaker stays open before probing again.
	BreakerTimeout time.Duration
	// BreakerFailures is the number of consecutive failures that opens the breaker.
	BreakerFailures uint32
}

// NBGClient implements usecase.RateProvider against the NBG API.
type NBGClient struct {
	cfg     Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  zerolog.Logger
}

// NewNBGClient creates a client. Zero config fields take defaults.
func NewNBGClient(cfg Config, logger zerolog.Logger) *NBGClient {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BreakerTimeout == 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}

	c := &NBGClient{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger.With().Str("component", "nbg_rates").Logger(),
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "nbg-rates",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})
	return c
}

// GetRates fetches the current table. Rates are GEL per one unit of currency.
func (c *NBGClient) GetRates(ctx context.Context) (domain.Rates, error) {
	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetchWithRetry(ctx)
	})
	if err != nil {
		return nil, err
	}
	return res.(domain.Rates), nil
}

func (c *NBGClient) fetchWithRetry(ctx context.Context) (domain.Rates, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second

	var rates domain.Rates
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		r, err := c.fetch(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Int("attempt", attempt).Msg("rate fetch failed")
			return err
		}
		rates = r
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(b, c.cfg.MaxRetries), ctx))
	return rates, err
}

func (c *NBGClient) fetch(ctx context.Context) (domain.Rates, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		err := fmt.Errorf("nbg: unexpected status %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	var tables []nbgTable
	if err := json.NewDecoder(resp.Body).Decode(&tables); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("nbg: decode: %w", err))
	}
	return parseTables(tables)
}

var errEmptyTable = errors.New("nbg: empty rate table")

func parseTables(tables []nbgTable) (domain.Rates, error) {
	if len(tables) == 0 {
		return nil, backoff.Permanent(errEmptyTable)
	}

	rates := domain.Rates{domain.BaseCurrency: decimal.NewFromInt(1)}
	for _, cur := range tables[0].Currencies {
		code := strings.ToLower(cur.Code)
		if code == domain.BaseCurrency {
			continue
		}
		quantity := cur.Quantity
		if quantity.IsZero() {
			quantity = decimal.NewFromInt(1)
		}
		if !cur.Rate.IsPositive() || quantity.IsNegative() {
			continue
		}
		rates[code] = cur.Rate.Div(quantity)
	}
	return rates, nil
}
