package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/refinance/ledger/internal/usecase"
)

// Cache is the shared usecase.Cache; the rate provider keeps its last rate
// table here so every replica serves the same rates.
type Cache struct {
	client *redis.Client
}

// NewCache creates a Cache on client.
func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Get returns the value stored under key, or usecase.ErrCacheMiss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, buildKey(keyspaceCache, key)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, usecase.ErrCacheMiss
	case err != nil:
		return nil, err
	}
	return val, nil
}

// Set stores value under key for ttl. A zero ttl keeps it until deleted.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, buildKey(keyspaceCache, key), value, ttl).Err()
}

// Delete drops key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, buildKey(keyspaceCache, key)).Err()
}
