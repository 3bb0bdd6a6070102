package query

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Order is one ordering term.
type Order struct {
	Path string
	Desc bool
}

// ParseOrder parses the "-name,+id" form: a leading '-' sorts descending,
// a leading '+' or no sign ascending.
func ParseOrder(s string) []Order {
	var out []Order
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		o := Order{Path: part}
		switch part[0] {
		case '-':
			o.Path, o.Desc = strings.TrimSpace(part[1:]), true
		case '+':
			o.Path = strings.TrimSpace(part[1:])
		}
		if o.Path != "" {
			out = append(out, o)
		}
	}
	return out
}

// FormatOrder is the inverse of ParseOrder.
func FormatOrder(os []Order) string {
	parts := make([]string, len(os))
	for i, o := range os {
		if o.Desc {
			parts[i] = "-" + o.Path
		} else {
			parts[i] = "+" + o.Path
		}
	}
	return strings.Join(parts, ",")
}

// Expand is a tree of relation names to pre-fetch with the records.
type Expand map[string]Expand

// ParseExpand parses the "groups.users,posts" form.
func ParseExpand(s string) Expand {
	tree := Expand{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		cur := tree
		for _, name := range strings.Split(part, ".") {
			next, ok := cur[name]
			if !ok {
				next = Expand{}
				cur[name] = next
			}
			cur = next
		}
	}
	return tree
}

// Names returns the first-level relation names, sorted.
func (e Expand) Names() []string {
	names := make([]string, 0, len(e))
	for name := range e {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// String returns the canonical dotted form.
func (e Expand) String() string {
	var parts []string
	for _, name := range e.Names() {
		sub := e[name]
		if len(sub) == 0 {
			parts = append(parts, name)
			continue
		}
		for _, p := range strings.Split(sub.String(), ",") {
			parts = append(parts, name+"."+p)
		}
	}
	return strings.Join(parts, ",")
}

func (e Expand) merge(other Expand) Expand {
	out := Expand{}
	for k, v := range e {
		out[k] = v.merge(nil)
	}
	for k, v := range other {
		out[k] = out[k].merge(v)
	}
	return out
}

// Returning selects the shape of a lookup result.
type Returning uint8

// Lookup result shapes.
const (
	ReturnRecords Returning = iota
	ReturnValues
	ReturnCount
)

// ParseReturning returns the shape named by s.
func ParseReturning(s string) Returning {
	switch s {
	case "values":
		return ReturnValues
	case "count":
		return ReturnCount
	}
	return ReturnRecords
}

// Context is the immutable bag of execution options of one call: the
// selected columns, filter, ordering, paging, locale and expansion tree.
// It is built with NewContext and never changed afterwards; Merge returns
// a new Context.
type Context struct {
	columns      []string
	where        Node
	order        []Order
	limit        int
	start        int
	page         int
	pageSize     int
	locale       string
	namespace    string
	database     string
	distinct     bool
	expand       Expand
	forceExpand  bool
	returning    Returning
	disableCache bool
	dryRun       bool
	timeout      time.Duration
}

// Option configures a Context.
type Option func(*Context)

// Columns selects the returned columns. Paths may traverse references.
func Columns(names ...string) Option {
	return func(c *Context) { c.columns = append(c.columns, names...) }
}

// Where sets the filter. Repeated options are ANDed.
func Where(n Node) Option {
	return func(c *Context) { c.where = And(c.where, n) }
}

// OrderBy sets the ordering in the "-name,+id" form.
func OrderBy(s string) Option {
	return func(c *Context) { c.order = ParseOrder(s) }
}

// Limit bounds the number of returned records.
func Limit(n int) Option {
	return func(c *Context) { c.limit = n }
}

// Start skips the first n records.
func Start(n int) Option {
	return func(c *Context) { c.start = n }
}

// Page selects a 1-based page of the given size.
func Page(page, size int) Option {
	return func(c *Context) { c.page, c.pageSize = page, size }
}

// Locale sets the locale of translatable columns.
func Locale(l string) Option {
	return func(c *Context) { c.locale = l }
}

// Namespace overrides the storage namespace of the queried tables.
func Namespace(ns string) Option {
	return func(c *Context) { c.namespace = ns }
}

// Database names the target database.
func Database(name string) Option {
	return func(c *Context) { c.database = name }
}

// Distinct removes duplicate rows.
func Distinct() Option {
	return func(c *Context) { c.distinct = true }
}

// ExpandPaths adds relation paths in the "groups.users,posts" form to the
// pre-fetch tree.
func ExpandPaths(s string) Option {
	return func(c *Context) { c.expand = c.expand.merge(ParseExpand(s)) }
}

// ForceExpand pre-fetches expanded relations even when empty.
func ForceExpand() Option {
	return func(c *Context) { c.forceExpand = true }
}

// Return selects the result shape.
func Return(r Returning) Option {
	return func(c *Context) { c.returning = r }
}

// NoCache bypasses the record cache.
func NoCache() Option {
	return func(c *Context) { c.disableCache = true }
}

// DryRun compiles and logs statements without executing them.
func DryRun() Option {
	return func(c *Context) { c.dryRun = true }
}

// Timeout bounds the execution time of each statement.
func Timeout(d time.Duration) Option {
	return func(c *Context) { c.timeout = d }
}

// NewContext returns a Context with the given options applied.
func NewContext(opts ...Option) *Context {
	c := &Context{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Columns returns the selected column paths, nil for the schema default.
func (c *Context) Columns() []string { return append([]string(nil), c.columns...) }

// Where returns the filter, nil when unfiltered.
func (c *Context) Where() Node { return c.where }

// Order returns the ordering terms.
func (c *Context) Order() []Order { return append([]Order(nil), c.order...) }

// Limit returns the maximum number of records, zero when unbounded.
func (c *Context) Limit() int {
	if c.limit > 0 {
		return c.limit
	}
	if c.page > 0 {
		return c.pageSize
	}
	return 0
}

// Start returns the number of skipped records.
func (c *Context) Start() int {
	if c.start > 0 {
		return c.start
	}
	if c.page > 1 && c.pageSize > 0 {
		return (c.page - 1) * c.pageSize
	}
	return 0
}

// Page returns the page number and size, zero when not paged.
func (c *Context) Page() (int, int) { return c.page, c.pageSize }

// Locale returns the locale of translatable columns.
func (c *Context) Locale() string { return c.locale }

// Namespace returns the namespace override.
func (c *Context) Namespace() string { return c.namespace }

// Database returns the target database name.
func (c *Context) Database() string { return c.database }

// Distinct reports if duplicate rows are removed.
func (c *Context) Distinct() bool { return c.distinct }

// Expand returns the pre-fetch tree.
func (c *Context) Expand() Expand { return c.expand.merge(nil) }

// ForceExpand reports if empty relations are pre-fetched too.
func (c *Context) ForceExpand() bool { return c.forceExpand }

// Returning returns the result shape.
func (c *Context) Returning() Returning { return c.returning }

// CacheDisabled reports if the record cache is bypassed.
func (c *Context) CacheDisabled() bool { return c.disableCache }

// DryRun reports if statements are only compiled and logged.
func (c *Context) DryRun() bool { return c.dryRun }

// Timeout returns the statement time limit, zero when unbounded.
func (c *Context) Timeout() time.Duration { return c.timeout }

// With returns a copy of c with opts applied.
func (c *Context) With(opts ...Option) *Context {
	n := c.copy()
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (c *Context) copy() *Context {
	n := *c
	n.columns = append([]string(nil), c.columns...)
	n.order = append([]Order(nil), c.order...)
	n.expand = c.expand.merge(nil)
	return &n
}

// Merge returns a new Context: other's filter is ANDed with c's, columns
// and expansion trees are unioned, and scalar options set on other
// override c's.
func (c *Context) Merge(other *Context) *Context {
	if other == nil {
		return c.copy()
	}
	n := c.copy()
	n.where = And(c.where, other.where)
	seen := make(map[string]bool, len(n.columns))
	for _, col := range n.columns {
		seen[col] = true
	}
	for _, col := range other.columns {
		if !seen[col] {
			seen[col] = true
			n.columns = append(n.columns, col)
		}
	}
	n.expand = n.expand.merge(other.expand)
	if len(other.order) > 0 {
		n.order = append([]Order(nil), other.order...)
	}
	if other.limit > 0 {
		n.limit = other.limit
	}
	if other.start > 0 {
		n.start = other.start
	}
	if other.page > 0 {
		n.page, n.pageSize = other.page, other.pageSize
	}
	if other.locale != "" {
		n.locale = other.locale
	}
	if other.namespace != "" {
		n.namespace = other.namespace
	}
	if other.database != "" {
		n.database = other.database
	}
	if other.returning != ReturnRecords {
		n.returning = other.returning
	}
	if other.timeout > 0 {
		n.timeout = other.timeout
	}
	n.distinct = n.distinct || other.distinct
	n.forceExpand = n.forceExpand || other.forceExpand
	n.disableCache = n.disableCache || other.disableCache
	n.dryRun = n.dryRun || other.dryRun
	return n
}

// Key returns a canonical representation of every option that affects the
// compiled statement or its result.
func (c *Context) Key() string {
	var b strings.Builder
	b.WriteString("columns=" + strings.Join(c.columns, ","))
	b.WriteString(";where=")
	if c.where != nil {
		b.WriteString(c.where.Key())
	}
	b.WriteString(";order=" + FormatOrder(c.order))
	b.WriteString(";limit=" + strconv.Itoa(c.Limit()))
	b.WriteString(";start=" + strconv.Itoa(c.Start()))
	b.WriteString(";locale=" + c.locale)
	b.WriteString(";namespace=" + c.namespace)
	b.WriteString(";database=" + c.database)
	b.WriteString(";distinct=" + strconv.FormatBool(c.distinct))
	b.WriteString(";expand=" + c.expand.String())
	b.WriteString(";returning=" + strconv.Itoa(int(c.returning)))
	return b.String()
}

// Hash returns the 64-bit hash of Key.
func (c *Context) Hash() uint64 {
	return xxhash.Sum64String(c.Key())
}

type ctxKey struct{}

// WithContext returns a copy of ctx carrying c as the default options of
// every call made with it. Defaults already present are merged with c.
func WithContext(ctx context.Context, c *Context) context.Context {
	if prev, ok := ctx.Value(ctxKey{}).(*Context); ok {
		c = prev.Merge(c)
	}
	return context.WithValue(ctx, ctxKey{}, c)
}

// FromContext returns the default options carried by ctx, or an empty
// Context.
func FromContext(ctx context.Context) *Context {
	if c, ok := ctx.Value(ctxKey{}).(*Context); ok {
		return c
	}
	return NewContext()
}

// Scoped returns the options of one call: the defaults carried by ctx
// merged with c.
func Scoped(ctx context.Context, c *Context) *Context {
	return FromContext(ctx).Merge(c)
}
