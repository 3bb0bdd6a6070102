package query

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/syssam/orb"
	"github.com/syssam/orb/schema"
)

// DefaultPlanCacheSize bounds the number of cached plans of a Resolver.
const DefaultPlanCacheSize = 1024

// RootAlias is the alias of the queried table in every plan.
const RootAlias = "t0"

// Resolver expands queries against a validated schema System into plans.
// Plans are cached by the hash of the schema and Context, so resolving the
// same pair twice returns the identical plan. A Resolver is safe for
// concurrent use.
type Resolver struct {
	sys   *schema.System
	plans *lru.Cache[uint64, *Plan]
	group singleflight.Group
	log   *slog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*resolverConfig)

type resolverConfig struct {
	size int
	log  *slog.Logger
}

// WithPlanCacheSize sets the number of cached plans.
func WithPlanCacheSize(n int) ResolverOption {
	return func(c *resolverConfig) { c.size = n }
}

// WithResolverLogger sets the logger of the resolver.
func WithResolverLogger(l *slog.Logger) ResolverOption {
	return func(c *resolverConfig) { c.log = l }
}

// NewResolver returns a Resolver over sys.
func NewResolver(sys *schema.System, opts ...ResolverOption) (*Resolver, error) {
	cfg := resolverConfig{size: DefaultPlanCacheSize, log: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	plans, err := lru.New[uint64, *Plan](cfg.size)
	if err != nil {
		return nil, fmt.Errorf("query: plan cache: %w", err)
	}
	return &Resolver{sys: sys, plans: plans, log: cfg.log}, nil
}

// System returns the schema registry of the resolver.
func (r *Resolver) System() *schema.System { return r.sys }

// Resolve expands c against sc. A nil Context selects every default column
// of sc without filter.
func (r *Resolver) Resolve(sc *schema.Schema, c *Context) (*Plan, error) {
	if !r.sys.Validated() {
		return nil, fmt.Errorf("query: schema system is not validated")
	}
	if c == nil {
		c = NewContext()
	}
	native := r.sys.StrategyOf(sc) == schema.Native
	key := xxhash.Sum64String(sc.Name + "\x00" + strconv.FormatBool(native) + "\x00" + c.Key())
	if p, ok := r.plans.Get(key); ok {
		return p, nil
	}
	v, err, _ := r.group.Do(strconv.FormatUint(key, 16), func() (any, error) {
		if p, ok := r.plans.Get(key); ok {
			return p, nil
		}
		p, err := r.resolve(sc, c)
		if err != nil {
			return nil, err
		}
		r.plans.Add(key, p)
		r.log.Debug("query: plan resolved", "schema", sc.Name, "joins", len(p.Joins), "fields", len(p.Fields))
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Plan), nil
}

// Purge drops every cached plan.
func (r *Resolver) Purge() { r.plans.Purge() }

func (r *Resolver) resolve(sc *schema.Schema, c *Context) (*Plan, error) {
	next := 0
	b := r.newBuilder(sc, &next)
	p := b.plan
	p.Limit, p.Start = c.Limit(), c.Start()
	p.Distinct = c.Distinct()
	p.Namespace = c.Namespace()
	p.Locale = c.Locale()
	if err := b.selectFields(c.Columns()); err != nil {
		return nil, err
	}
	where, err := b.expr(c.Where())
	if err != nil {
		return nil, err
	}
	p.Where = where
	order := c.Order()
	if len(order) == 0 {
		order = ParseOrder(sc.Order)
	}
	for _, o := range order {
		f, err := b.field(o.Path)
		if err != nil {
			return nil, err
		}
		p.Order = append(p.Order, OrderField{Field: f, Desc: o.Desc})
	}
	return p, nil
}

// builder accumulates the tables and joins of one plan. Nested sub-select
// plans get their own builder sharing the alias counter.
type builder struct {
	r     *Resolver
	plan  *Plan
	next  *int
	joins map[string]*Table
}

func (r *Resolver) newBuilder(sc *schema.Schema, next *int) *builder {
	b := &builder{r: r, next: next, joins: make(map[string]*Table)}
	b.plan = &Plan{
		Schema: sc,
		Root:   &Table{Schema: sc, Alias: b.alias()},
		Native: r.sys.StrategyOf(sc) == schema.Native,
	}
	return b
}

func (b *builder) alias() string {
	a := "t" + strconv.Itoa(*b.next)
	*b.next++
	return a
}

func (b *builder) join(key string, kind JoinKind, sc *schema.Schema, left *Field, right func(*Table) *Field) *Table {
	if t, ok := b.joins[key]; ok {
		return t
	}
	t := &Table{Schema: sc, Alias: b.alias()}
	b.joins[key] = t
	b.plan.Joins = append(b.plan.Joins, &Join{Kind: kind, Table: t, Left: left, Right: right(t)})
	return t
}

// keyField returns the identifying column of the table. Under shared-key
// inheritance every table of a chain stores the key.
func keyField(t *Table) *Field {
	k := t.Schema.Key()
	return &Field{Column: k, Table: t, Name: k.Name}
}

// tableFor returns the table holding the columns declared by owner, a
// schema of base's chain. Shared-key ancestors are joined on the key.
func (b *builder) tableFor(base *Table, owner *schema.Schema) *Table {
	if owner == base.Schema || b.r.sys.StrategyOf(base.Schema) == schema.Native {
		return base
	}
	return b.join("inherit:"+base.Alias+":"+owner.Name, JoinInner, owner, keyField(base), keyField)
}

func (b *builder) columnField(base *Table, c *schema.Column, owner *schema.Schema, name string) *Field {
	if c.Has(schema.Keyed) {
		return &Field{Column: c, Table: base, Name: name}
	}
	return &Field{Column: c, Table: b.tableFor(base, owner), Name: name}
}

// field resolves a dotted path of columns, descending through reference
// columns with joins.
func (b *builder) field(path string) (*Field, error) {
	segs := strings.Split(path, ".")
	cur := b.plan.Root
	for i, seg := range segs {
		c, owner, ok := cur.Schema.Lookup(seg)
		if !ok {
			if rel, ok := cur.Schema.Relation(seg); ok {
				return nil, orb.NewQueryInvalidError(path, "%s is a %s collector, only usable in predicates", seg, relationKind(rel))
			}
			return nil, orb.NewQueryInvalidError(path, "%s has no column %q", cur.Schema.Name, seg)
		}
		if !c.Stored() {
			return nil, orb.NewQueryInvalidError(path, "column %s is virtual", c)
		}
		f := b.columnField(cur, c, owner, path)
		if i == len(segs)-1 {
			return f, nil
		}
		if !c.IsReference() {
			return nil, orb.NewQueryInvalidError(path, "column %s is not a reference", c)
		}
		target, err := b.r.sys.Resolve(c.RefSchema)
		if err != nil {
			return nil, err
		}
		cur = b.join("ref:"+f.Table.Alias+":"+c.Name, JoinLeft, target, f, func(t *Table) *Field {
			return refTarget(t, c)
		})
	}
	return nil, orb.NewQueryInvalidError(path, "empty path")
}

// refTarget returns the field of t a reference column points at.
func refTarget(t *Table, c *schema.Column) *Field {
	if c.RefColumn != "" {
		if rc, ok := t.Schema.Column(c.RefColumn); ok {
			return &Field{Column: rc, Table: t, Name: rc.Name}
		}
	}
	return keyField(t)
}

func relationKind(r schema.Relation) string {
	switch r.(type) {
	case *schema.ReverseLookup:
		return "reverse lookup"
	case *schema.Pipe:
		return "pipe"
	}
	return "reference"
}

func (b *builder) selectFields(paths []string) error {
	p := b.plan
	if len(paths) == 0 {
		for _, c := range b.r.sys.Columns(p.Schema, schema.WithoutFlags(schema.Virtual|schema.Private)) {
			p.Fields = append(p.Fields, b.columnField(p.Root, c, c.Schema(), c.Name))
		}
		return nil
	}
	key := p.Schema.Key()
	if !contains(paths, key.Name) {
		p.Fields = append(p.Fields, keyField(p.Root))
	}
	if d := p.Schema.Discriminator(); d != nil && !contains(paths, d.Name) {
		p.Fields = append(p.Fields, b.columnField(p.Root, d, d.Schema(), d.Name))
	}
	for _, path := range paths {
		f, err := b.field(path)
		if err != nil {
			return err
		}
		p.Fields = append(p.Fields, f)
	}
	return nil
}

func contains(ss []string, s string) bool {
	for _, e := range ss {
		if e == s {
			return true
		}
	}
	return false
}

func (b *builder) expr(n Node) (Expr, error) {
	switch n := n.(type) {
	case nil:
		return nil, nil
	case *Query:
		if n == nil {
			return nil, nil
		}
		return b.cond(n)
	case *Compound:
		if n == nil {
			return nil, nil
		}
		g := &Group{Conj: n.conj}
		for _, child := range n.children {
			e, err := b.expr(child)
			if err != nil {
				return nil, err
			}
			if e != nil {
				g.Children = append(g.Children, e)
			}
		}
		return g, nil
	}
	return nil, orb.NewQueryInvalidError("", "unsupported node %T", n)
}

// cond resolves one predicate. The path is walked segment by segment: a
// reference descends into its target with a join, a reverse lookup or a
// pipe turns the rest of the path into a membership sub-select.
func (b *builder) cond(q *Query) (Expr, error) {
	segs := strings.Split(q.path, ".")
	cur := b.plan.Root
	for i, seg := range segs {
		c, owner, ok := cur.Schema.Lookup(seg)
		if !ok {
			rel, ok := cur.Schema.Relation(seg)
			if !ok {
				return nil, orb.NewQueryInvalidError(q.path, "%s has no column or relation %q", cur.Schema.Name, seg)
			}
			return b.collector(cur, rel, q, strings.Join(segs[i+1:], "."))
		}
		if !c.Stored() {
			return nil, orb.NewQueryInvalidError(q.path, "column %s is virtual", c)
		}
		f := b.columnField(cur, c, owner, q.path)
		if i == len(segs)-1 {
			return b.leaf(f, q)
		}
		if !c.IsReference() {
			return nil, orb.NewQueryInvalidError(q.path, "column %s is not a reference", c)
		}
		target, err := b.r.sys.Resolve(c.RefSchema)
		if err != nil {
			return nil, err
		}
		cur = b.join("ref:"+f.Table.Alias+":"+c.Name, JoinLeft, target, f, func(t *Table) *Field {
			return refTarget(t, c)
		})
	}
	return nil, orb.NewQueryInvalidError(q.path, "empty path")
}

func (b *builder) leaf(f *Field, q *Query) (Expr, error) {
	cond := &Cond{
		Field:         f,
		Funcs:         q.Funcs(),
		Op:            q.op,
		CaseSensitive: q.caseSensitive,
		Inverted:      q.inverted,
	}
	for _, m := range q.math {
		v, err := b.value(q.path, m.Value)
		if err != nil {
			return nil, err
		}
		cond.Math = append(cond.Math, ResolvedMath{Op: m.Op, Value: v})
	}
	v, err := b.value(q.path, q.value)
	if err != nil {
		return nil, err
	}
	cond.Value = v
	switch q.op {
	case OpIs, OpIsNot:
	case OpBetween:
		if set, ok := v.([]any); !ok || len(set) != 2 {
			return nil, orb.NewQueryInvalidError(q.path, "between expects two bounds")
		}
	case OpIsIn, OpIsNotIn:
		switch v.(type) {
		case []any, *Plan:
		default:
			return nil, orb.NewQueryInvalidError(q.path, "%s expects a set or a sub-select", q.op)
		}
	case OpMatches, OpDoesNotMatch:
		if _, ok := v.(string); !ok {
			return nil, orb.NewQueryInvalidError(q.path, "%s expects a pattern string", q.op)
		}
	default:
		if v == nil {
			return nil, orb.NewQueryInvalidError(q.path, "%s does not accept null", q.op)
		}
	}
	return cond, nil
}

// value resolves the right hand side of a predicate.
func (b *builder) value(path string, v any) (any, error) {
	switch v := v.(type) {
	case Ref:
		return b.field(v.Path)
	case *Select:
		return b.subselect(v)
	case Identifier:
		return v.ID(), nil
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			if id, ok := e.(Identifier); ok {
				e = id.ID()
			}
			out[i] = e
		}
		return out, nil
	}
	return v, nil
}

func (b *builder) subselect(s *Select) (*Plan, error) {
	sc, err := b.r.sys.Resolve(s.Schema)
	if err != nil {
		return nil, err
	}
	sub := b.r.newBuilder(sc, b.next)
	f, err := sub.field(s.Column)
	if err != nil {
		return nil, err
	}
	sub.plan.Fields = []*Field{f}
	if sub.plan.Where, err = sub.expr(s.Where); err != nil {
		return nil, err
	}
	return sub.plan, nil
}

// collector turns a predicate through a reverse lookup or a pipe into
// "key IN (SELECT ...)". The predicate holds when any related record
// matches rest; an inverted predicate holds when none does.
func (b *builder) collector(cur *Table, rel schema.Relation, q *Query, rest string) (Expr, error) {
	inner := q.clone()
	inner.inverted = false
	var (
		sub *builder
		err error
	)
	switch rel := rel.(type) {
	case *schema.ReverseLookup:
		sub, err = b.lookupSelect(rel, inner, rest)
	case *schema.Pipe:
		sub, err = b.pipeSelect(rel, inner, rest)
	default:
		return nil, orb.NewQueryInvalidError(q.path, "unsupported relation %T", rel)
	}
	if err != nil {
		return nil, err
	}
	return &Cond{
		Field:    keyField(cur),
		Op:       OpIsIn,
		Value:    sub.plan,
		Inverted: q.inverted,
	}, nil
}

func (b *builder) lookupSelect(rel *schema.ReverseLookup, q *Query, rest string) (*builder, error) {
	from, err := b.r.sys.Resolve(rel.From)
	if err != nil {
		return nil, err
	}
	sub := b.r.newBuilder(from, b.next)
	by, err := sub.field(rel.By)
	if err != nil {
		return nil, err
	}
	sub.plan.Fields = []*Field{by}
	if rest == "" {
		rest = from.Key().Name
	}
	q.path = rest
	if sub.plan.Where, err = sub.cond(q); err != nil {
		return nil, err
	}
	return sub, nil
}

func (b *builder) pipeSelect(rel *schema.Pipe, q *Query, rest string) (*builder, error) {
	through, err := b.r.sys.Resolve(rel.Through)
	if err != nil {
		return nil, err
	}
	sub := b.r.newBuilder(through, b.next)
	src, err := sub.field(rel.Source)
	if err != nil {
		return nil, err
	}
	sub.plan.Fields = []*Field{src}
	if rest == "" {
		q.path = rel.Dest
		if sub.plan.Where, err = sub.cond(q); err != nil {
			return nil, err
		}
		return sub, nil
	}
	dest, err := sub.field(rel.Dest)
	if err != nil {
		return nil, err
	}
	target, err := b.r.sys.Resolve(rel.Target())
	if err != nil {
		return nil, err
	}
	tb := b.r.newBuilder(target, b.next)
	tb.plan.Fields = []*Field{refTarget(tb.plan.Root, dest.Column)}
	q.path = rest
	if tb.plan.Where, err = tb.cond(q); err != nil {
		return nil, err
	}
	sub.plan.Where = &Cond{Field: dest, Op: OpIsIn, Value: tb.plan}
	return sub, nil
}
