package orb

import (
	"context"
	"strconv"
	"time"
)

// Cache is the byte-level store behind the record cache.
// Implementations live in the cache package (in-process and redis).
type Cache interface {
	// Get retrieves a value from the cache.
	// Returns nil, nil if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with an optional TTL.
	// If ttl is 0, the value should not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from the cache.
	Delete(ctx context.Context, key string) error

	// Incr atomically increments the counter stored at key and returns the
	// new value. Missing counters start at zero.
	Incr(ctx context.Context, key string) (int64, error)

	// Counter returns the current value of a counter, zero if missing.
	Counter(ctx context.Context, key string) (int64, error)

	// Clear removes all values from the cache.
	Clear(ctx context.Context) error
}

// CacheKey identifies one cached result set.
type CacheKey struct {
	Schema     string
	Generation int64
	Hash       uint64
}

// String returns the string representation of the cache key.
func (k CacheKey) String() string {
	return k.Schema + ":" + strconv.FormatInt(k.Generation, 10) + ":" + strconv.FormatUint(k.Hash, 16)
}
