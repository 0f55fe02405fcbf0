package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/refinance/ledger/internal/usecase"
)

// reserveScript returns the value already stored under KEYS[1], or stores
// ARGV[1] with a TTL of ARGV[2] milliseconds (none when not positive) and
// returns nil.
var reserveScript = redis.NewScript(`
local existing = redis.call('GET', KEYS[1])
if existing then
	return existing
end
if tonumber(ARGV[2]) > 0 then
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
else
	redis.call('SET', KEYS[1], ARGV[1])
end
return false
`)

// IdempotencyStore implements usecase.IdempotencyStore on Redis.
type IdempotencyStore struct {
	client *redis.Client
}

// NewIdempotencyStore creates an IdempotencyStore on client.
func NewIdempotencyStore(client *redis.Client) *IdempotencyStore {
	return &IdempotencyStore{client: client}
}

// CheckAndSet reserves key, storing response or usecase.IdempotencyPending
// when response is nil. If the key is already taken it reports true with the
// stored value. The check and the write happen in one script call.
func (s *IdempotencyStore) CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error) {
	value := []byte(usecase.IdempotencyPending)
	if response != nil {
		value = response
	}

	existing, err := reserveScript.Run(ctx, s.client, []string{buildKey(keyspaceIdempotency, key)}, value, ttl.Milliseconds()).Text()
	switch {
	case errors.Is(err, redis.Nil):
		return false, nil, nil
	case err != nil:
		return false, nil, err
	}
	return true, []byte(existing), nil
}

// Update overwrites the stored value for key with the final response.
func (s *IdempotencyStore) Update(ctx context.Context, key string, response []byte, ttl time.Duration) error {
	return s.client.Set(ctx, buildKey(keyspaceIdempotency, key), response, ttl).Err()
}
