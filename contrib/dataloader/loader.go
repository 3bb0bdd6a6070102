// Package dataloader batches the record lookups of concurrent callers into
// one select per schema. A Loader collects the keys requested during a
// short window and reads them with a single IN filter:
//
//	users := dataloader.New(e, "User")
//	u, err := users.Load(ctx, id)
//
// Batching and memoization run on github.com/graph-gophers/dataloader/v7;
// the batch function selects through the engine. Loaders memoize the
// records they read and are meant to live for one request.
package dataloader

import (
	"context"
	"time"

	"github.com/graph-gophers/dataloader/v7"

	"github.com/syssam/orb/engine"
	"github.com/syssam/orb/query"
)

// Defaults of a Loader.
const (
	DefaultColumn   = "id"
	DefaultWait     = 2 * time.Millisecond
	DefaultMaxBatch = 100
)

// Selector reads records; *engine.Engine implements it.
type Selector interface {
	Select(ctx context.Context, name string, c *query.Context) ([]*engine.Record, error)
}

// Option configures a Loader.
type Option func(*Loader)

// WithColumn sets the column the keys are matched against, as for the
// records of a reference column. A key may then match several records.
// Loaders match the unique "id" column by default.
func WithColumn(name string) Option {
	return func(l *Loader) { l.column, l.many = name, true }
}

// WithWait sets how long a batch collects keys before it runs.
func WithWait(d time.Duration) Option {
	return func(l *Loader) { l.wait = d }
}

// WithMaxBatch bounds the keys of one batch. A full batch runs at once.
func WithMaxBatch(n int) Option {
	return func(l *Loader) { l.maxBatch = n }
}

// WithQuery adds options, such as expansions, to every select.
func WithQuery(opts ...query.Option) Option {
	return func(l *Loader) { l.opts = append(l.opts, opts...) }
}

// Loader loads the records of one schema by key. It is safe for
// concurrent use.
type Loader struct {
	sel      Selector
	schema   string
	column   string
	many     bool
	wait     time.Duration
	maxBatch int
	opts     []query.Option
	loader   *dataloader.Loader[any, []*engine.Record]
}

// New returns a Loader of the named schema.
func New(sel Selector, schema string, opts ...Option) *Loader {
	l := &Loader{
		sel:      sel,
		schema:   schema,
		column:   DefaultColumn,
		wait:     DefaultWait,
		maxBatch: DefaultMaxBatch,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.maxBatch <= 0 {
		l.maxBatch = DefaultMaxBatch
	}
	l.loader = dataloader.NewBatchedLoader[any, []*engine.Record](l.batch,
		dataloader.WithWait[any, []*engine.Record](l.wait),
		dataloader.WithBatchCapacity[any, []*engine.Record](l.maxBatch),
	)
	return l
}

// Load returns the record whose column equals key, or ErrNotFound.
func (l *Loader) Load(ctx context.Context, key any) (*engine.Record, error) {
	records, err := l.Thunk(ctx, key)()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records[0], nil
}

// LoadAll returns every record whose column equals key.
func (l *Loader) LoadAll(ctx context.Context, key any) ([]*engine.Record, error) {
	return l.Thunk(ctx, key)()
}

// LoadMany loads keys in one batch. The results follow the order of keys.
func (l *Loader) LoadMany(ctx context.Context, keys []any) ([]*engine.Record, []error) {
	thunks := make([]func() ([]*engine.Record, error), len(keys))
	for i, key := range keys {
		thunks[i] = l.Thunk(ctx, key)
	}
	records := make([]*engine.Record, len(keys))
	errs := make([]error, len(keys))
	for i, thunk := range thunks {
		rs, err := thunk()
		switch {
		case err != nil:
			errs[i] = err
		case len(rs) == 0:
			errs[i] = ErrNotFound
		default:
			records[i] = rs[0]
		}
	}
	return records, errs
}

// Thunk schedules key into the pending batch and returns a function
// waiting for its records. The batch runs with the context of the caller
// that opened it. Failed loads are not memoized.
func (l *Loader) Thunk(ctx context.Context, key any) func() ([]*engine.Record, error) {
	k := normalize(key)
	thunk := l.loader.Load(ctx, k)
	return func() ([]*engine.Record, error) {
		records, err := thunk()
		if err != nil {
			l.loader.Clear(ctx, k)
			return nil, err
		}
		return records, nil
	}
}

// Prime stores record under key, unless key is already loaded.
func (l *Loader) Prime(key any, record *engine.Record) {
	l.loader.Prime(context.Background(), normalize(key), []*engine.Record{record})
}

// Clear drops the records loaded for key.
func (l *Loader) Clear(key any) {
	l.loader.Clear(context.Background(), normalize(key))
}

// batch selects the records of keys and returns them in the order of keys.
// A key without records gets an empty result, memoized like the others.
func (l *Loader) batch(ctx context.Context, keys []any) []*dataloader.Result[[]*engine.Record] {
	results := make([]*dataloader.Result[[]*engine.Record], len(keys))
	records, err := l.selectKeys(ctx, keys)
	if err != nil {
		for i := range results {
			results[i] = &dataloader.Result[[]*engine.Record]{Error: err}
		}
		return results
	}
	keyOf := func(r *engine.Record) any { return normalize(r.Values[l.column]) }
	if l.many {
		for i, group := range OrderGroupsByKeys(keys, GroupByKey(records, keyOf)) {
			results[i] = &dataloader.Result[[]*engine.Record]{Data: group}
		}
		return results
	}
	ordered, errs := OrderByKeys(keys, records, keyOf)
	for i := range keys {
		results[i] = &dataloader.Result[[]*engine.Record]{}
		if errs[i] == nil {
			results[i].Data = []*engine.Record{ordered[i]}
		}
	}
	return results
}

func (l *Loader) selectKeys(ctx context.Context, keys []any) ([]*engine.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts := append([]query.Option{query.Where(query.Q(l.column).In(keys...))}, l.opts...)
	return l.sel.Select(ctx, l.schema, query.NewContext(opts...))
}

// normalize returns a comparable form of a key, equal for the integer
// widths the drivers decode.
func normalize(v any) any {
	switch v := v.(type) {
	case []byte:
		return string(v)
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case uint:
		return int64(v)
	case uint32:
		return int64(v)
	}
	return v
}
