package redis

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refinance/ledger/internal/domain"
	"github.com/refinance/ledger/internal/usecase"
)

func TestBalanceCache_RoundTrip(t *testing.T) {
	srv := newTestServer(t)

	cache := NewBalanceCache(srv.client)
	ctx := context.Background()

	_, ok, err := cache.Get(ctx, usecase.EntityBalances, "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	gen, err := cache.Generation(ctx, usecase.EntityBalances, "alice")
	require.NoError(t, err)
	assert.Zero(t, gen)

	balance := domain.NewBalance()
	balance.Confirmed["gel"] = decimal.RequireFromString("-12.50")
	balance.NonConfirmed["usd"] = decimal.RequireFromString("3.00")
	stored, err := cache.Set(ctx, usecase.EntityBalances, "alice", gen, balance)
	require.NoError(t, err)
	assert.True(t, stored)

	got, ok, err := cache.Get(ctx, usecase.EntityBalances, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Confirmed["gel"].Equal(decimal.RequireFromString("-12.5")))
	assert.True(t, got.NonConfirmed["usd"].Equal(decimal.NewFromInt(3)))
	assert.Equal(t, DefaultBalanceTTL, srv.TTL(cache.key(usecase.EntityBalances, "alice")))

	_, ok, err = cache.Get(ctx, usecase.TreasuryBalances, "alice")
	require.NoError(t, err)
	assert.False(t, ok, "namespaces must not collide")
}

func TestBalanceCache_Invalidate(t *testing.T) {
	srv := newTestServer(t)

	cache := NewBalanceCache(srv.client)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		stored, err := cache.Set(ctx, usecase.EntityBalances, id, 0, domain.NewBalance())
		require.NoError(t, err)
		require.True(t, stored)
	}
	require.NoError(t, cache.Invalidate(ctx, usecase.EntityBalances, "a", "b"))
	require.NoError(t, cache.Invalidate(ctx, usecase.EntityBalances))

	_, ok, _ := cache.Get(ctx, usecase.EntityBalances, "a")
	assert.False(t, ok)
	_, ok, _ = cache.Get(ctx, usecase.EntityBalances, "c")
	assert.True(t, ok)

	gen, err := cache.Generation(ctx, usecase.EntityBalances, "a")
	require.NoError(t, err)
	assert.EqualValues(t, 1, gen)
	gen, err = cache.Generation(ctx, usecase.EntityBalances, "c")
	require.NoError(t, err)
	assert.Zero(t, gen)
}

func TestBalanceCache_SetRejectsOutdatedGeneration(t *testing.T) {
	srv := newTestServer(t)

	cache := NewBalanceCache(srv.client)
	ctx := context.Background()

	before, err := cache.Generation(ctx, usecase.TreasuryBalances, "trs_cash")
	require.NoError(t, err)

	// a commit invalidates while the reader is still summing
	require.NoError(t, cache.Invalidate(ctx, usecase.TreasuryBalances, "trs_cash"))

	stale := domain.NewBalance()
	stale.Confirmed["gel"] = decimal.NewFromInt(100)
	stored, err := cache.Set(ctx, usecase.TreasuryBalances, "trs_cash", before, stale)
	require.NoError(t, err)
	assert.False(t, stored)

	_, ok, err := cache.Get(ctx, usecase.TreasuryBalances, "trs_cash")
	require.NoError(t, err)
	assert.False(t, ok)

	current, err := cache.Generation(ctx, usecase.TreasuryBalances, "trs_cash")
	require.NoError(t, err)
	stored, err = cache.Set(ctx, usecase.TreasuryBalances, "trs_cash", current, stale)
	require.NoError(t, err)
	assert.True(t, stored)
}

func TestBalanceCache_EntryExpires(t *testing.T) {
	srv := newTestServer(t)

	cache := NewBalanceCache(srv.client)
	ctx := context.Background()

	_, err := cache.Set(ctx, usecase.EntityBalances, "alice", 0, domain.NewBalance())
	require.NoError(t, err)
	srv.FastForward(DefaultBalanceTTL + time.Second)

	_, ok, err := cache.Get(ctx, usecase.EntityBalances, "alice")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBalanceCache_CorruptEntry(t *testing.T) {
	srv := newTestServer(t)

	cache := NewBalanceCache(srv.client)
	require.NoError(t, srv.Set(cache.key(usecase.EntityBalances, "x"), "not json"))

	_, ok, err := cache.Get(context.Background(), usecase.EntityBalances, "x")
	assert.Error(t, err)
	assert.False(t, ok)
}
