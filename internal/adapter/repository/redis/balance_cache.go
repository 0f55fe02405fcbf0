package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/refinance/ledger/internal/domain"
	"github.com/refinance/ledger/internal/usecase"
)

// DefaultBalanceTTL bounds how long an entry survives if an invalidation
// after commit is lost.
const DefaultBalanceTTL = time.Hour

// storeIfGenerationScript writes ARGV[2] to KEYS[2] for ARGV[3] milliseconds
// only while the counter at KEYS[1] still equals ARGV[1]. It returns 1 when
// it wrote.
var storeIfGenerationScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1]) or '0'
if current ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
return 1
`)

// BalanceCache implements usecase.BalanceCache using Redis. Generations are
// INCR counters next to the entries; the compare-and-set runs as one script.
type BalanceCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewBalanceCache creates a BalanceCache with DefaultBalanceTTL.
func NewBalanceCache(client *redis.Client) *BalanceCache {
	return &BalanceCache{client: client, ttl: DefaultBalanceTTL}
}

func (c *BalanceCache) key(ns usecase.BalanceNamespace, id string) string {
	return buildKey(keyspaceBalance, string(ns), id)
}

func (c *BalanceCache) generationKey(ns usecase.BalanceNamespace, id string) string {
	return buildKey(keyspaceBalance, "gen", string(ns), id)
}

// Get returns the cached balance and whether it was present.
func (c *BalanceCache) Get(ctx context.Context, ns usecase.BalanceNamespace, id string) (*domain.Balance, bool, error) {
	raw, err := c.client.Get(ctx, c.key(ns, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	balance := domain.NewBalance()
	if err := json.Unmarshal(raw, balance); err != nil {
		return nil, false, fmt.Errorf("decode cached balance %s: %w", id, err)
	}
	return balance, true, nil
}

// Generation returns the invalidation counter of id.
func (c *BalanceCache) Generation(ctx context.Context, ns usecase.BalanceNamespace, id string) (uint64, error) {
	gen, err := c.client.Get(ctx, c.generationKey(ns, id)).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Set stores balance for id unless id was invalidated after generation.
func (c *BalanceCache) Set(ctx context.Context, ns usecase.BalanceNamespace, id string, generation uint64, balance *domain.Balance) (bool, error) {
	raw, err := json.Marshal(balance)
	if err != nil {
		return false, fmt.Errorf("encode balance %s: %w", id, err)
	}
	keys := []string{c.generationKey(ns, id), c.key(ns, id)}
	stored, err := storeIfGenerationScript.Run(ctx, c.client, keys,
		strconv.FormatUint(generation, 10), raw, c.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return stored == 1, nil
}

// Invalidate drops the entries of ids and bumps their generations in one
// MULTI/EXEC block.
func (c *BalanceCache) Invalidate(ctx context.Context, ns usecase.BalanceNamespace, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = c.key(ns, id)
			pipe.Incr(ctx, c.generationKey(ns, id))
		}
		pipe.Del(ctx, keys...)
		return nil
	})
	return err
}
