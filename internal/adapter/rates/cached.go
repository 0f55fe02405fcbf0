package rates

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/refinance/ledger/internal/domain"
	"github.com/refinance/ledger/internal/usecase"
)

const cacheKey = "exchange_rates"

// sharedEntry is the payload stored in the shared cache. FetchedAt is the
// upstream fetch time, so every replica ages the table from the same instant.
type sharedEntry struct {
	FetchedAt time.Time    `json:"fetched_at"`
	Rates     domain.Rates `json:"rates"`
}

// CachedProvider memoizes a RateProvider for ttl. When shared is non-nil the
// table is also stored there so every replica sees the same rates.
type CachedProvider struct {
	next   usecase.RateProvider
	shared usecase.Cache
	ttl    time.Duration
	now    func() time.Time
	logger zerolog.Logger

	mu        sync.Mutex
	rates     domain.Rates
	fetchedAt time.Time
}

// NewCachedProvider wraps next. shared may be nil.
func NewCachedProvider(next usecase.RateProvider, shared usecase.Cache, ttl time.Duration, logger zerolog.Logger) *CachedProvider {
	if ttl <= 0 {
		ttl = usecase.ExchangeRatesTTL
	}
	return &CachedProvider{
		next:   next,
		shared: shared,
		ttl:    ttl,
		now:    time.Now,
		logger: logger.With().Str("component", "rate_cache").Logger(),
	}
}

// GetRates returns the memoized table, refreshing it once it is older than ttl.
func (p *CachedProvider) GetRates(ctx context.Context) (domain.Rates, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.rates != nil && p.now().Sub(p.fetchedAt) < p.ttl {
		return p.rates, nil
	}

	if entry, ok := p.loadShared(ctx); ok {
		p.rates, p.fetchedAt = entry.Rates, entry.FetchedAt
		return entry.Rates, nil
	}

	rates, err := p.next.GetRates(ctx)
	if err != nil {
		return nil, err
	}
	p.rates, p.fetchedAt = rates, p.now()
	p.storeShared(ctx, sharedEntry{FetchedAt: p.fetchedAt, Rates: rates})
	return rates, nil
}

// loadShared returns the shared entry if it is present and younger than ttl.
func (p *CachedProvider) loadShared(ctx context.Context) (sharedEntry, bool) {
	if p.shared == nil {
		return sharedEntry{}, false
	}
	raw, err := p.shared.Get(ctx, cacheKey)
	if err != nil {
		if !errors.Is(err, usecase.ErrCacheMiss) {
			p.logger.Warn().Err(err).Msg("shared rate cache read failed")
		}
		return sharedEntry{}, false
	}
	var entry sharedEntry
	if err := json.Unmarshal(raw, &entry); err != nil || entry.Rates == nil || entry.FetchedAt.IsZero() {
		p.logger.Warn().Err(err).Msg("shared rate cache entry is corrupt")
		return sharedEntry{}, false
	}
	if age := p.now().Sub(entry.FetchedAt); age >= p.ttl {
		p.logger.Debug().Dur("age", age).Msg("shared rate cache entry expired")
		return sharedEntry{}, false
	}
	return entry, true
}

func (p *CachedProvider) storeShared(ctx context.Context, entry sharedEntry) {
	if p.shared == nil {
		return
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	ttl := p.ttl - p.now().Sub(entry.FetchedAt)
	if ttl <= 0 {
		return
	}
	if err := p.shared.Set(ctx, cacheKey, raw, ttl); err != nil {
		p.logger.Warn().Err(err).Msg("shared rate cache write failed")
	}
}

// StaticProvider serves a fixed table. It backs offline deployments and tests.
type StaticProvider struct {
	Rates domain.Rates
}

// GetRates returns the fixed table.
func (p StaticProvider) GetRates(context.Context) (domain.Rates, error) {
	return p.Rates, nil
}
