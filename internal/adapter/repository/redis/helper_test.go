package redis

import (
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// testServer is an in-process Redis with a client connected to it. Both are
// closed when the test ends.
type testServer struct {
	*miniredis.Miniredis
	client *redis.Client
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return &testServer{Miniredis: mr, client: client}
}
