package redis

import "strings"

// Every key the ledger writes lives under this prefix so one Redis database
// can be shared with other services.
const keyPrefix = "ledger"

// Keyspaces of the stores in this package.
const (
	keyspaceCache       = "cache"
	keyspaceIdempotency = "idempotency"
	keyspaceBalance     = "balance"
)

func buildKey(parts ...string) string {
	return keyPrefix + ":" + strings.Join(parts, ":")
}
