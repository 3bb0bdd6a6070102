package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coocood/freecache"

	"github.com/syssam/orb"
)

// DefaultMemorySize is the default size in bytes of a Memory store.
const DefaultMemorySize = 32 << 20

// Memory is an in-process orb.Cache backed by freecache. Counters live
// outside the byte cache and are never evicted.
type Memory struct {
	cache    *freecache.Cache
	counters sync.Map // string => *atomic.Int64
}

var _ orb.Cache = (*Memory)(nil)

// NewMemory returns a Memory store of the given size in bytes. Sizes
// below the freecache minimum are raised to it.
func NewMemory(size int) *Memory {
	if size <= 0 {
		size = DefaultMemorySize
	}
	return &Memory{cache: freecache.NewCache(size)}
}

// Get implements orb.Cache.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	v, err := m.cache.Get([]byte(key))
	if errors.Is(err, freecache.ErrNotFound) {
		return nil, nil
	}
	return v, err
}

// Set implements orb.Cache. The TTL is rounded up to whole seconds.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	return m.cache.Set([]byte(key), value, expireSeconds(ttl))
}

// Delete implements orb.Cache.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.cache.Del([]byte(key))
	return nil
}

// Incr implements orb.Cache.
func (m *Memory) Incr(_ context.Context, key string) (int64, error) {
	c, _ := m.counters.LoadOrStore(key, new(atomic.Int64))
	return c.(*atomic.Int64).Add(1), nil
}

// Counter implements orb.Cache.
func (m *Memory) Counter(_ context.Context, key string) (int64, error) {
	if c, ok := m.counters.Load(key); ok {
		return c.(*atomic.Int64).Load(), nil
	}
	return 0, nil
}

// Clear implements orb.Cache. Counters are kept.
func (m *Memory) Clear(context.Context) error {
	m.cache.Clear()
	return nil
}

// Stats returns the hit and miss counts of the byte cache.
func (m *Memory) Stats() (hits, misses int64) {
	return m.cache.HitCount(), m.cache.MissCount()
}

func expireSeconds(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	s := int(ttl / time.Second)
	if ttl%time.Second != 0 {
		s++
	}
	return s
}
