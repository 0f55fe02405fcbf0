package memory

import (
	"context"
	"sync"

	"github.com/refinance/ledger/internal/domain"
	"github.com/refinance/ledger/internal/usecase"
)

type cacheKey struct {
	ns usecase.BalanceNamespace
	id string
}

// BalanceCache is a process-local usecase.BalanceCache.
type BalanceCache struct {
	mu          sync.RWMutex
	entries     map[cacheKey]*domain.Balance
	generations map[cacheKey]uint64
}

// NewBalanceCache creates an empty BalanceCache.
func NewBalanceCache() *BalanceCache {
	return &BalanceCache{
		entries:     make(map[cacheKey]*domain.Balance),
		generations: make(map[cacheKey]uint64),
	}
}

// Get returns a copy of the cached balance.
func (c *BalanceCache) Get(_ context.Context, ns usecase.BalanceNamespace, id string) (*domain.Balance, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	b, ok := c.entries[cacheKey{ns, id}]
	if !ok {
		return nil, false, nil
	}
	return b.Clone(), true, nil
}

// Generation returns how often id has been invalidated.
func (c *BalanceCache) Generation(_ context.Context, ns usecase.BalanceNamespace, id string) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generations[cacheKey{ns, id}], nil
}

// Set stores a copy of balance unless id was invalidated after generation.
func (c *BalanceCache) Set(_ context.Context, ns usecase.BalanceNamespace, id string, generation uint64, balance *domain.Balance) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey{ns, id}
	if c.generations[key] != generation {
		return false, nil
	}
	c.entries[key] = balance.Clone()
	return true, nil
}

// Invalidate drops the entries of ids and bumps their generations.
func (c *BalanceCache) Invalidate(_ context.Context, ns usecase.BalanceNamespace, ids ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		key := cacheKey{ns, id}
		delete(c.entries, key)
		c.generations[key]++
	}
	return nil
}

// NopBalanceCache never stores anything; every read recomputes. Set accepts
// and discards.
type NopBalanceCache struct{}

func (NopBalanceCache) Get(context.Context, usecase.BalanceNamespace, string) (*domain.Balance, bool, error) {
	return nil, false, nil
}

func (NopBalanceCache) Generation(context.Context, usecase.BalanceNamespace, string) (uint64, error) {
	return 0, nil
}

func (NopBalanceCache) Set(context.Context, usecase.BalanceNamespace, string, uint64, *domain.Balance) (bool, error) {
	return true, nil
}

func (NopBalanceCache) Invalidate(context.Context, usecase.BalanceNamespace, ...string) error {
	return nil
}
