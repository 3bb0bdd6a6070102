// Package cache stores the result sets of compiled reads per schema.
//
// An entry lives under "<schema>:<generation>:<hash>". Writing a schema
// bumps its generation, which orphans every entry of the older one; the
// store expires them with their TTL.
package cache

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/singleflight"

	"github.com/syssam/orb"
)

// DefaultTTL is the lifetime of an entry unless configured otherwise.
const DefaultTTL = 5 * time.Minute

// generationSuffix names the generation counter of a schema.
const generationSuffix = ":generation"

func isCounter(key string) bool { return strings.HasSuffix(key, generationSuffix) }

// Entry is a cached result set: the raw rows as the backend returned
// them, or a count.
type Entry struct {
	Columns []string `msgpack:"c,omitempty"`
	Rows    [][]any  `msgpack:"r,omitempty"`
	Count   int64    `msgpack:"n,omitempty"`
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets the default entry lifetime.
func WithTTL(d time.Duration) Option {
	return func(c *Cache) { c.ttl = d }
}

// WithSchemaTTL sets the entry lifetime of one schema.
func WithSchemaTTL(schema string, d time.Duration) Option {
	return func(c *Cache) { c.schemaTTL[schema] = d }
}

// WithDisabled turns caching off for the given schemas.
func WithDisabled(schemas ...string) Option {
	return func(c *Cache) {
		for _, s := range schemas {
			c.disabled[s] = true
		}
	}
}

// WithLogger sets the logger of store failures. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.log = l }
}

// Cache hands out the record caches of every schema over one store.
type Cache struct {
	store     orb.Cache
	ttl       time.Duration
	schemaTTL map[string]time.Duration
	disabled  map[string]bool
	log       *slog.Logger
	group     singleflight.Group

	mu      sync.Mutex
	records map[string]*Records
}

// New returns a Cache over store.
func New(store orb.Cache, opts ...Option) *Cache {
	c := &Cache{
		store:     store,
		ttl:       DefaultTTL,
		schemaTTL: make(map[string]time.Duration),
		disabled:  make(map[string]bool),
		records:   make(map[string]*Records),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	return c
}

// Store returns the underlying store.
func (c *Cache) Store() orb.Cache { return c.store }

// Records returns the record cache of a schema.
func (c *Cache) Records(schema string) *Records {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.records[schema]; ok {
		return r
	}
	ttl, ok := c.schemaTTL[schema]
	if !ok {
		ttl = c.ttl
	}
	r := &Records{cache: c, schema: schema, ttl: ttl, enabled: !c.disabled[schema]}
	c.records[schema] = r
	return r
}

// InvalidateAll drops the entries of every schema.
func (c *Cache) InvalidateAll(ctx context.Context) error {
	c.mu.Lock()
	records := make([]*Records, 0, len(c.records))
	for _, r := range c.records {
		records = append(records, r)
	}
	c.mu.Unlock()
	for _, r := range records {
		if err := r.Invalidate(ctx); err != nil {
			return err
		}
	}
	return c.store.Clear(ctx)
}

// Records caches the result sets of one schema.
type Records struct {
	cache   *Cache
	schema  string
	ttl     time.Duration
	enabled bool
}

// Schema returns the name of the cached schema.
func (r *Records) Schema() string { return r.schema }

// Enabled reports if the schema is cached.
func (r *Records) Enabled() bool { return r.enabled }

// TTL returns the lifetime of the entries.
func (r *Records) TTL() time.Duration { return r.ttl }

// Key returns the key of the entry with the given hash under the current
// generation.
func (r *Records) Key(ctx context.Context, hash uint64) (orb.CacheKey, error) {
	gen, err := r.cache.store.Counter(ctx, r.schema+generationSuffix)
	if err != nil {
		return orb.CacheKey{}, fmt.Errorf("cache: read generation of %s: %w", r.schema, err)
	}
	return orb.CacheKey{Schema: r.schema, Generation: gen, Hash: hash}, nil
}

// Get returns the entry with the given hash, if cached.
func (r *Records) Get(ctx context.Context, hash uint64) (*Entry, bool, error) {
	if !r.enabled {
		return nil, false, nil
	}
	key, err := r.Key(ctx, hash)
	if err != nil {
		return nil, false, err
	}
	return r.get(ctx, key.String())
}

func (r *Records) get(ctx context.Context, key string) (*Entry, bool, error) {
	b, err := r.cache.store.Get(ctx, key)
	if err != nil || b == nil {
		return nil, false, err
	}
	e, err := decode(b)
	if err != nil {
		return nil, false, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return e, true, nil
}

// Set stores the entry with the given hash.
func (r *Records) Set(ctx context.Context, hash uint64, e *Entry) error {
	if !r.enabled {
		return nil
	}
	key, err := r.Key(ctx, hash)
	if err != nil {
		return err
	}
	return r.set(ctx, key.String(), e)
}

func (r *Records) set(ctx context.Context, key string, e *Entry) error {
	b, err := msgpack.Marshal(e)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	return r.cache.store.Set(ctx, key, b, r.ttl)
}

// Fetch returns the cached entry with the given hash, or runs fill and
// caches its result. Concurrent misses of one key share a single fill.
// Store failures are logged and fall through to fill.
func (r *Records) Fetch(ctx context.Context, hash uint64, fill func(context.Context) (*Entry, error)) (*Entry, error) {
	if !r.enabled {
		return fill(ctx)
	}
	key, err := r.Key(ctx, hash)
	if err != nil {
		r.cache.log.WarnContext(ctx, "cache: generation unavailable", "schema", r.schema, "error", err)
		return fill(ctx)
	}
	k := key.String()
	e, ok, err := r.get(ctx, k)
	if err != nil {
		r.cache.log.WarnContext(ctx, "cache: get", "key", k, "error", err)
	}
	if ok {
		return e, nil
	}
	v, err, _ := r.cache.group.Do(k, func() (any, error) {
		e, err := fill(ctx)
		if err != nil {
			return nil, err
		}
		if err := r.set(ctx, k, e); err != nil {
			r.cache.log.WarnContext(ctx, "cache: set", "key", k, "error", err)
		}
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entry), nil
}

// Invalidate drops every entry of the schema by moving it to a new
// generation.
func (r *Records) Invalidate(ctx context.Context) error {
	if _, err := r.cache.store.Incr(ctx, r.schema+generationSuffix); err != nil {
		return fmt.Errorf("cache: invalidate %s: %w", r.schema, err)
	}
	return nil
}

// Hash returns the hash identifying a cached read from its parts.
func Hash(parts ...string) uint64 {
	d := xxhash.New()
	for _, p := range parts {
		_, _ = d.WriteString(p)
		_, _ = d.WriteString("\x00")
	}
	return d.Sum64()
}

func decode(b []byte) (*Entry, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.UseLooseInterfaceDecoding(true)
	e := &Entry{}
	if err := dec.Decode(e); err != nil {
		return nil, err
	}
	return e, nil
}
