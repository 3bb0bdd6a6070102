// Package engine runs queries against a schema system. A call resolves its
// query context into a plan, compiles the plan for the dialect of the
// pool, executes the statements through the transaction coordinator and
// materializes the rows. Reads go through the record cache when one is
// configured; writes invalidate the schemas they touch.
//
//	e, err := engine.Open(drv, sys, engine.WithCache(c))
//	if err != nil {
//		return err
//	}
//	users, err := e.Select(ctx, "User", query.NewContext(
//		query.Where(query.Q("groups.name").Is("admins")),
//		query.ExpandPaths("posts"),
//	))
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/syssam/orb/cache"
	"github.com/syssam/orb/dialect"
	"github.com/syssam/orb/dialect/sql"
	sqlschema "github.com/syssam/orb/dialect/sql/schema"
	"github.com/syssam/orb/pool"
	"github.com/syssam/orb/privacy"
	"github.com/syssam/orb/query"
	"github.com/syssam/orb/schema"
)

type options struct {
	cache     *cache.Cache
	log       *slog.Logger
	maxBatch  int
	planCache int
	defaults  []query.Option
	inherit   schema.Strategy
	pool      []pool.Option
	migrate   []sqlschema.MigrateOption
	policies  map[string]privacy.Policies
}

// Option configures an Engine.
type Option func(*options)

// WithCache reads through c and invalidates it on writes.
func WithCache(c *cache.Cache) Option {
	return func(o *options) { o.cache = c }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMaxBatch bounds the number of rows of one INSERT statement.
func WithMaxBatch(n int) Option {
	return func(o *options) { o.maxBatch = n }
}

// WithPlanCacheSize bounds the number of resolved plans kept.
func WithPlanCacheSize(n int) Option {
	return func(o *options) { o.planCache = n }
}

// WithDefaults sets options applied to the query context of every call,
// such as a namespace or a statement timeout.
func WithDefaults(opts ...query.Option) Option {
	return func(o *options) { o.defaults = append(o.defaults, opts...) }
}

// WithInheritance sets how inheritance chains with the Auto strategy are
// stored. Auto follows the dialect capability; Native fails on dialects
// without it.
func WithInheritance(s schema.Strategy) Option {
	return func(o *options) { o.inherit = s }
}

// WithPoolOptions configures the pool Open creates.
func WithPoolOptions(opts ...pool.Option) Option {
	return func(o *options) { o.pool = append(o.pool, opts...) }
}

// WithMigrateOptions configures the migrator of Sync.
func WithMigrateOptions(opts ...sqlschema.MigrateOption) Option {
	return func(o *options) { o.migrate = append(o.migrate, opts...) }
}

// WithPolicy guards the reads and writes of the named schema, and of the
// schemas inheriting it, with rules.
func WithPolicy(name string, rules ...privacy.QueryMutationRule) Option {
	return func(o *options) {
		if o.policies == nil {
			o.policies = make(map[string]privacy.Policies)
		}
		o.policies[name] = append(o.policies[name], rules...)
	}
}

// Engine executes queries of one schema system against one database.
// It is safe for concurrent use.
type Engine struct {
	sys      *schema.System
	resolver *query.Resolver
	compiler *sql.Compiler
	coord    *pool.Coordinator
	cache    *cache.Cache
	drv      *sql.Driver
	defaults *query.Context
	log      *slog.Logger
	migrate  []sqlschema.MigrateOption
	policies map[string]privacy.Policies
}

// New returns an Engine executing through coord. The system is validated
// for the dialect of the coordinator pool.
func New(sys *schema.System, coord *pool.Coordinator, opts ...Option) (*Engine, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return newEngine(sys, coord, nil, o)
}

// Open returns an Engine over drv with a pool of its own. Sync is only
// available on engines created by Open.
func Open(drv *sql.Driver, sys *schema.System, opts ...Option) (*Engine, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	popts := o.pool
	if o.log != nil {
		popts = append([]pool.Option{pool.WithLogger(o.log)}, popts...)
	}
	return newEngine(sys, pool.NewCoordinator(pool.New(drv, popts...)), drv, o)
}

func newEngine(sys *schema.System, coord *pool.Coordinator, drv *sql.Driver, o *options) (*Engine, error) {
	if o.log == nil {
		o.log = slog.Default()
	}
	d, err := sql.DialectOf(coord.Pool().Dialect())
	if err != nil {
		return nil, err
	}
	native := d.NativeInheritance
	switch o.inherit {
	case schema.SharedKey:
		native = false
	case schema.Native:
		if !native {
			return nil, fmt.Errorf("engine: dialect %s has no native inheritance", d.Name)
		}
	}
	sys.SetNativeInheritance(native)
	if err := sys.Validate(); err != nil {
		return nil, err
	}
	ropts := []query.ResolverOption{query.WithResolverLogger(o.log)}
	if o.planCache > 0 {
		ropts = append(ropts, query.WithPlanCacheSize(o.planCache))
	}
	r, err := query.NewResolver(sys, ropts...)
	if err != nil {
		return nil, err
	}
	policies := make(map[string]privacy.Policies, len(o.policies))
	for name, p := range o.policies {
		sc, err := sys.Resolve(name)
		if err != nil {
			return nil, fmt.Errorf("engine: policy: %w", err)
		}
		policies[sc.Name] = append(policies[sc.Name], p...)
	}
	return &Engine{
		sys:      sys,
		resolver: r,
		compiler: sql.NewCompiler(d, sys, sql.WithMaxBatch(o.maxBatch)),
		coord:    coord,
		cache:    o.cache,
		drv:      drv,
		defaults: query.NewContext(o.defaults...),
		log:      o.log,
		migrate:  o.migrate,
		policies: policies,
	}, nil
}

// System returns the schema registry.
func (e *Engine) System() *schema.System { return e.sys }

// Compiler returns the statement compiler.
func (e *Engine) Compiler() *sql.Compiler { return e.compiler }

// Resolver returns the plan resolver.
func (e *Engine) Resolver() *query.Resolver { return e.resolver }

// Coordinator returns the transaction coordinator.
func (e *Engine) Coordinator() *pool.Coordinator { return e.coord }

// Cache returns the record cache, nil when reads are not cached.
func (e *Engine) Cache() *cache.Cache { return e.cache }

// Close closes every session of the pool.
func (e *Engine) Close(ctx context.Context) error {
	return e.coord.Pool().CloseAll(ctx)
}

// Sync creates the missing tables, columns and indexes of the system.
func (e *Engine) Sync(ctx context.Context) (*sqlschema.Plan, error) {
	if e.drv == nil {
		return nil, fmt.Errorf("engine: sync requires an engine created by Open")
	}
	opts := []sqlschema.MigrateOption{sqlschema.WithLogger(e.log)}
	if ns := e.defaults.Namespace(); ns != "" {
		opts = append(opts, sqlschema.WithNamespace(ns))
	}
	m, err := sqlschema.NewMigrator(e.drv, e.compiler, append(opts, e.migrate...)...)
	if err != nil {
		return nil, err
	}
	return m.Apply(ctx)
}

// InTx runs fn in a transaction: a new one, or a nested level of the
// transaction carried by ctx. The outermost level commits when fn returns
// no error; any failure rolls the whole transaction back.
func (e *Engine) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, tx := e.coord.Begin(ctx)
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Cancel(ctx)
			panic(p)
		}
	}()
	return tx.End(ctx, fn(ctx))
}

// Query runs the lookup in the shape the context asks for: []*Record,
// []map[string]any or the int64 count.
func (e *Engine) Query(ctx context.Context, name string, c *query.Context) (any, error) {
	switch e.scope(ctx, c).Returning() {
	case query.ReturnCount:
		return e.Count(ctx, name, c)
	case query.ReturnValues:
		return e.Values(ctx, name, c)
	}
	return e.Select(ctx, name, c)
}

// Select returns the records of the named schema matching c, with the
// relations of its expansion tree pre-fetched.
func (e *Engine) Select(ctx context.Context, name string, c *query.Context) ([]*Record, error) {
	c = e.scope(ctx, c)
	ctx, cancel := withTimeout(ctx, c)
	defer cancel()
	sc, err := e.sys.Resolve(name)
	if err != nil {
		return nil, err
	}
	return e.selectRecords(ctx, sc, c)
}

// First returns the first record matching c, or nil when none does.
func (e *Engine) First(ctx context.Context, name string, c *query.Context) (*Record, error) {
	if c == nil {
		c = query.NewContext()
	}
	records, err := e.Select(ctx, name, c.With(query.Limit(1)))
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return records[0], nil
}

// Values returns the decoded values of the records matching c.
func (e *Engine) Values(ctx context.Context, name string, c *query.Context) ([]map[string]any, error) {
	records, err := e.Select(ctx, name, c)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, len(records))
	for i, r := range records {
		out[i] = r.Values
	}
	return out, nil
}

// Count returns the number of records matching c.
func (e *Engine) Count(ctx context.Context, name string, c *query.Context) (int64, error) {
	c = e.scope(ctx, c)
	ctx, cancel := withTimeout(ctx, c)
	defer cancel()
	sc, err := e.sys.Resolve(name)
	if err != nil {
		return 0, err
	}
	if c, err = e.evalQuery(ctx, sc, c); err != nil {
		return 0, err
	}
	p, err := e.resolver.Resolve(sc, c)
	if err != nil {
		return 0, err
	}
	stmt, err := e.compiler.Count(p)
	if err != nil {
		return 0, err
	}
	entry, err := e.read(ctx, "count", p, c, stmt, func(ctx context.Context) (*cache.Entry, error) {
		res, err := e.coord.Exec(ctx, stmt)
		if err != nil {
			return nil, err
		}
		if len(res.Rows) == 0 || len(res.Rows[0]) == 0 {
			return &cache.Entry{}, nil
		}
		n, err := toInt64(res.Rows[0][0])
		if err != nil {
			return nil, err
		}
		return &cache.Entry{Count: n}, nil
	})
	if err != nil || entry == nil {
		return 0, err
	}
	return entry.Count, nil
}

func (e *Engine) selectRecords(ctx context.Context, sc *schema.Schema, c *query.Context) ([]*Record, error) {
	c, err := e.evalQuery(ctx, sc, c)
	if err != nil {
		return nil, err
	}
	p, err := e.resolver.Resolve(sc, c)
	if err != nil {
		return nil, err
	}
	stmt, err := e.compiler.Select(p)
	if err != nil {
		return nil, err
	}
	entry, err := e.read(ctx, "select", p, c, stmt, func(ctx context.Context) (*cache.Entry, error) {
		res, err := e.coord.Exec(ctx, stmt)
		if err != nil {
			return nil, err
		}
		return &cache.Entry{Columns: res.Columns, Rows: res.Rows}, nil
	})
	if err != nil || entry == nil {
		return nil, err
	}
	records := make([]*Record, 0, len(entry.Rows))
	for _, row := range entry.Rows {
		values, err := e.compiler.DecodeRow(p.Fields, row)
		if err != nil {
			return nil, err
		}
		concrete, obj, err := e.sys.Construct(sc, values)
		if err != nil {
			return nil, err
		}
		records = append(records, &Record{Schema: concrete, Values: values, Object: obj})
	}
	if err := e.expand(ctx, sc, records, c); err != nil {
		return nil, err
	}
	return records, nil
}

// read runs fill, through the record cache of the plan schema when the
// read is cacheable. Reads inside a transaction may see its uncommitted
// writes and are never cached. A dry run logs stmt and returns nil.
func (e *Engine) read(ctx context.Context, op string, p *query.Plan, c *query.Context, stmt *dialect.Statement, fill func(context.Context) (*cache.Entry, error)) (*cache.Entry, error) {
	if c.DryRun() {
		e.dryRun(ctx, stmt)
		return nil, nil
	}
	if e.cache == nil || c.CacheDisabled() || stmt.Noop {
		return fill(ctx)
	}
	if tx := pool.FromContext(ctx); tx != nil && !tx.Done() {
		return fill(ctx)
	}
	hash, err := e.hash(ctx, op, p, c)
	if err != nil {
		e.log.WarnContext(ctx, "engine: cache key", "schema", p.Schema.Name, "error", err)
		return fill(ctx)
	}
	return e.cache.Records(p.Schema.Name).Fetch(ctx, hash, fill)
}

// hash identifies a cached read. Entries live under the generation of the
// plan schema; the generations of the other schemas the plan reads are
// part of the hash, so writing any of them orphans the entry too.
func (e *Engine) hash(ctx context.Context, op string, p *query.Plan, c *query.Context) (uint64, error) {
	parts := []string{op, c.Key(), strconv.FormatBool(p.Native)}
	for _, name := range p.Schemas() {
		if name == p.Schema.Name {
			continue
		}
		key, err := e.cache.Records(name).Key(ctx, 0)
		if err != nil {
			return 0, err
		}
		parts = append(parts, name+"@"+strconv.FormatInt(key.Generation, 10))
	}
	return cache.Hash(parts...), nil
}

// invalidate drops the cached reads that can see rows of sc: those of sc,
// of its ancestors and of its descendants. Within a running transaction
// the reads are dropped again once it commits, as readers outside of it
// may have cached the rows it is replacing in the meantime.
func (e *Engine) invalidate(ctx context.Context, schemas ...*schema.Schema) {
	if e.cache == nil {
		return
	}
	if tx := pool.FromContext(ctx); tx != nil && !tx.Done() {
		tx.OnCommit(ctx, func(ctx context.Context) { e.drop(ctx, schemas) })
	}
	e.drop(ctx, schemas)
}

func (e *Engine) drop(ctx context.Context, schemas []*schema.Schema) {
	seen := make(map[string]bool)
	for _, sc := range schemas {
		related := e.sys.Descendants(sc)
		for cur := sc; cur != nil; cur = cur.Parent() {
			related = append(related, cur)
		}
		for _, s := range related {
			if seen[s.Name] {
				continue
			}
			seen[s.Name] = true
			if err := e.cache.Records(s.Name).Invalidate(ctx); err != nil {
				e.log.WarnContext(ctx, "engine: invalidate cache", "schema", s.Name, "error", err)
			}
		}
	}
}

// scope returns the options of one call: the engine defaults, the
// defaults carried by ctx and c, in increasing precedence.
func (e *Engine) scope(ctx context.Context, c *query.Context) *query.Context {
	return e.defaults.Merge(query.Scoped(ctx, c))
}

func (e *Engine) dryRun(ctx context.Context, stmts ...*dialect.Statement) {
	for _, stmt := range stmts {
		e.log.InfoContext(ctx, "engine: dry run", "schema", stmt.Schema, "sql", stmt.String())
	}
}

func withTimeout(ctx context.Context, c *query.Context) (context.Context, context.CancelFunc) {
	if d := c.Timeout(); d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return ctx, func() {}
}

func toInt64(v any) (int64, error) {
	switch v := v.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case []byte:
		return strconv.ParseInt(string(v), 10, 64)
	case string:
		return strconv.ParseInt(v, 10, 64)
	}
	return 0, fmt.Errorf("engine: unexpected count value %T", v)
}
