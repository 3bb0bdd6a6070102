package sql

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/syssam/orb"
	"github.com/syssam/orb/dialect"
	"github.com/syssam/orb/query"
	"github.com/syssam/orb/schema"
)

// truth is the static value of a compiled filter.
type truth uint8

const (
	// unknown filters depend on the rows.
	unknown truth = iota
	always
	never
)

func (t truth) not() truth {
	switch t {
	case always:
		return never
	case never:
		return always
	}
	return unknown
}

// Compiler turns resolved plans into dialect statements.
type Compiler struct {
	d        *Dialect
	sys      *schema.System
	maxBatch int
}

// CompilerOption configures a Compiler.
type CompilerOption func(*Compiler)

// WithMaxBatch bounds the number of rows of one INSERT statement.
func WithMaxBatch(n int) CompilerOption {
	return func(c *Compiler) {
		if n > 0 {
			c.maxBatch = n
		}
	}
}

// NewCompiler returns a Compiler for the dialect and schema registry.
func NewCompiler(d *Dialect, sys *schema.System, opts ...CompilerOption) *Compiler {
	c := &Compiler{d: d, sys: sys, maxBatch: DefaultMaxBatch}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dialect returns the target dialect.
func (c *Compiler) Dialect() *Dialect { return c.d }

// System returns the schema registry.
func (c *Compiler) System() *schema.System { return c.sys }

// selectSpec controls the clauses rendered by selectPlan.
type selectSpec struct {
	fields []*query.Field
	// alias renders "AS name" for fields whose result name differs from
	// their storage name.
	alias  bool
	order  bool
	paging bool
}

// Select compiles the SELECT statement of a plan. A plan whose filter can
// match no row compiles to a Noop statement.
func (c *Compiler) Select(p *query.Plan) (*dialect.Statement, error) {
	b := c.d.NewBuilder()
	t, err := c.selectPlan(b, p, selectSpec{fields: p.Fields, alias: true, order: true, paging: true})
	if err != nil {
		return nil, err
	}
	stmt := b.Statement()
	stmt.Rows, stmt.Schema, stmt.Noop = true, p.Schema.Name, t == never
	return stmt, nil
}

// Count compiles the SELECT COUNT(*) statement of a plan. Distinct and
// paged plans are counted through a sub-select.
func (c *Compiler) Count(p *query.Plan) (*dialect.Statement, error) {
	var (
		b = c.d.NewBuilder()
		t truth
	)
	if p.Distinct || p.Limit > 0 || p.Start > 0 {
		inner := b.Sub()
		var err error
		if t, err = c.selectPlan(inner, p, selectSpec{fields: p.Fields, paging: true}); err != nil {
			return nil, err
		}
		b.WriteString("SELECT COUNT(*) FROM (").Join(inner).WriteString(") AS t_count")
	} else {
		where, wt, err := c.where(b, p.Where)
		if err != nil {
			return nil, err
		}
		t = wt
		b.WriteString("SELECT COUNT(*)")
		c.from(b, p)
		if where != nil {
			b.WriteString(" WHERE ").Join(where)
		}
	}
	stmt := b.Statement()
	stmt.Rows, stmt.Schema, stmt.Noop = true, p.Schema.Name, t == never
	return stmt, nil
}

// Update compiles the UPDATE statements setting values (keyed by column
// name) on the rows matched by the plan, one per storage table written,
// ancestors first. Rows are matched through a key sub-select. A plan
// without a row-dependent filter compiles to a single Noop statement.
func (c *Compiler) Update(p *query.Plan, values map[string]any) ([]*dialect.Statement, error) {
	if len(values) == 0 {
		return []*dialect.Statement{c.noop(p.Schema)}, nil
	}
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	type set struct {
		col *schema.Column
		v   any
	}
	sets := make(map[*schema.Schema][]set)
	for _, name := range names {
		col, owner, ok := p.Schema.Lookup(name)
		if !ok {
			return nil, orb.NewColumnNotFoundError(p.Schema.Name, name)
		}
		switch {
		case col.Has(schema.Keyed):
			return nil, orb.NewQueryInvalidError(name, "the key column cannot be updated")
		case col.Has(schema.ReadOnly):
			return nil, orb.NewQueryInvalidError(name, "column is read-only")
		case col.Has(schema.Virtual):
			return nil, orb.NewQueryInvalidError(name, "virtual columns are not stored")
		}
		v, err := c.Encode(col, values[name])
		if err != nil {
			return nil, err
		}
		if c.sys.StrategyOf(p.Schema) == schema.Native {
			owner = p.Schema
		}
		sets[owner] = append(sets[owner], set{col: col, v: v})
	}
	if _, t, err := c.where(c.d.NewBuilder(), p.Where); err != nil {
		return nil, err
	} else if p.Where == nil || t != unknown {
		return []*dialect.Statement{c.noop(p.Schema)}, nil
	}
	chain, err := c.sys.Ancestry(p.Schema)
	if err != nil {
		return nil, err
	}
	var stmts []*dialect.Statement
	for _, tbl := range append(chain, p.Schema) {
		cols := sets[tbl]
		if len(cols) == 0 {
			continue
		}
		b := c.d.NewBuilder()
		b.WriteString("UPDATE ").WriteString(c.table(tbl, p.Namespace)).WriteString(" SET ")
		for i, s := range cols {
			if i > 0 {
				b.WriteString(", ")
			}
			b.Ident(s.col.Field).WriteString(" = ").Arg(s.v)
		}
		if err := c.keyFilter(b, p); err != nil {
			return nil, err
		}
		stmt := b.Statement()
		stmt.Write, stmt.Schema = true, p.Schema.Name
		stmts = append(stmts, stmt)
	}
	return stmts, nil
}

// Delete compiles the DELETE statement removing the rows matched by the
// plan. Under shared-key inheritance the root table row is removed and the
// descendant rows follow through ON DELETE CASCADE. A plan without a
// row-dependent filter compiles to a Noop statement.
func (c *Compiler) Delete(p *query.Plan) (*dialect.Statement, error) {
	if _, t, err := c.where(c.d.NewBuilder(), p.Where); err != nil {
		return nil, err
	} else if p.Where == nil || t != unknown {
		return c.noop(p.Schema), nil
	}
	tbl := p.Schema.Root()
	if c.sys.StrategyOf(p.Schema) == schema.Native {
		tbl = p.Schema
	}
	b := c.d.NewBuilder()
	b.WriteString("DELETE FROM ").WriteString(c.table(tbl, p.Namespace))
	if err := c.keyFilter(b, p); err != nil {
		return nil, err
	}
	stmt := b.Statement()
	stmt.Write, stmt.Schema = true, p.Schema.Name
	return stmt, nil
}

func (c *Compiler) noop(sc *schema.Schema) *dialect.Statement {
	return &dialect.Statement{Noop: true, Write: true, Schema: sc.Name, Params: map[string]any{}}
}

// keyFilter writes " WHERE key IN (SELECT key FROM ... WHERE ...)". MySQL
// refuses a sub-select on the table being modified, so the keys are
// materialized through a derived table there.
func (c *Compiler) keyFilter(b *Builder, p *query.Plan) error {
	key := p.Schema.Key()
	sub := b.Sub()
	if _, err := c.selectPlan(sub, p, selectSpec{fields: []*query.Field{{Column: key, Table: p.Root, Name: key.Name}}}); err != nil {
		return err
	}
	b.WriteString(" WHERE ").Ident(key.Field).WriteString(" IN (")
	if c.d.Name == dialect.MySQL {
		b.WriteString("SELECT ").Ident(key.Field).WriteString(" FROM (").Join(sub).WriteString(") AS t_keys")
	} else {
		b.Join(sub)
	}
	b.WriteString(")")
	return nil
}

// selectPlan writes the SELECT statement of p and returns the static value
// of its filter.
func (c *Compiler) selectPlan(b *Builder, p *query.Plan, spec selectSpec) (truth, error) {
	where, t, err := c.where(b, p.Where)
	if err != nil {
		return unknown, err
	}
	b.WriteString("SELECT ")
	if p.Distinct {
		b.WriteString("DISTINCT ")
	}
	if len(spec.fields) == 0 {
		return unknown, orb.NewQueryInvalidError("", "no column selected from %s", p.Schema.Name)
	}
	for i, f := range spec.fields {
		if i > 0 {
			b.WriteString(", ")
		}
		c.field(b, f)
		if spec.alias && f.Name != f.Column.Field {
			b.WriteString(" AS ").Ident(f.Name)
		}
	}
	c.from(b, p)
	if where != nil {
		b.WriteString(" WHERE ").Join(where)
	}
	if spec.order && len(p.Order) > 0 {
		b.WriteString(" ORDER BY ")
		for i, o := range p.Order {
			if i > 0 {
				b.WriteString(", ")
			}
			c.field(b, o.Field)
			if o.Desc {
				b.WriteString(" DESC")
			} else {
				b.WriteString(" ASC")
			}
		}
	}
	if spec.paging {
		c.paging(b, p.Limit, p.Start)
	}
	return t, nil
}

func (c *Compiler) paging(b *Builder, limit, start int) {
	if limit > 0 {
		b.WriteString(" LIMIT " + strconv.Itoa(limit))
	}
	if start <= 0 {
		return
	}
	if limit <= 0 {
		switch c.d.Name {
		case dialect.SQLite:
			b.WriteString(" LIMIT -1")
		case dialect.MySQL:
			b.WriteString(" LIMIT 18446744073709551615")
		}
	}
	b.WriteString(" OFFSET " + strconv.Itoa(start))
}

// from writes the FROM clause with the joins of the plan.
func (c *Compiler) from(b *Builder, p *query.Plan) {
	b.WriteString(" FROM ").WriteString(c.table(p.Root.Schema, p.Namespace)).WriteString(" AS " + p.Root.Alias)
	for _, j := range p.Joins {
		b.WriteString(" " + j.Kind.String() + " ").
			WriteString(c.table(j.Table.Schema, p.Namespace)).
			WriteString(" AS " + j.Table.Alias + " ON ")
		c.field(b, j.Left)
		b.WriteString(" = ")
		c.field(b, j.Right)
	}
}

// table returns the quoted name of the schema's table. A non-empty ns
// overrides the schema namespace.
func (c *Compiler) table(sc *schema.Schema, ns string) string {
	if ns == "" {
		ns = sc.Namespace
	}
	return c.d.Table(ns, sc.Table)
}

func (c *Compiler) field(b *Builder, f *query.Field) {
	b.WriteString(f.Table.Alias + ".").Ident(f.Column.Field)
}

// where compiles a filter into a fragment of b's parameter namespace. The
// fragment is nil when the filter is statically always or never true.
func (c *Compiler) where(b *Builder, e query.Expr) (*Builder, truth, error) {
	switch e := e.(type) {
	case nil:
		return nil, always, nil
	case *query.Cond:
		return c.cond(b, e)
	case *query.Group:
		var frags []*Builder
		for _, child := range e.Children {
			f, t, err := c.where(b, child)
			if err != nil {
				return nil, unknown, err
			}
			switch {
			case t == never && e.Conj == query.ConjAnd:
				return nil, never, nil
			case t == always && e.Conj == query.ConjOr:
				return nil, always, nil
			case t == unknown:
				frags = append(frags, f)
			}
		}
		switch len(frags) {
		case 0:
			if e.Conj == query.ConjAnd {
				return nil, always, nil
			}
			return nil, never, nil
		case 1:
			return frags[0], unknown, nil
		}
		sb := b.Sub()
		for i, f := range frags {
			if i > 0 {
				sb.WriteString(" " + e.Conj.String() + " ")
			}
			sb.Join(f)
		}
		return sb.Wrap(), unknown, nil
	}
	return nil, unknown, fmt.Errorf("dialect/sql: unexpected expression %T", e)
}

func (c *Compiler) cond(b *Builder, e *query.Cond) (*Builder, truth, error) {
	sb, t, err := c.predicate(b, e)
	if err != nil || !e.Inverted {
		return sb, t, err
	}
	if t != unknown {
		return nil, t.not(), nil
	}
	return b.Sub().WriteString("NOT ").Join(sb.Wrap()), unknown, nil
}

func (c *Compiler) predicate(b *Builder, e *query.Cond) (*Builder, truth, error) {
	op, negated := e.Op.Positive()
	if sub, ok := e.Value.(*query.Plan); ok {
		if op != query.OpIsIn || len(sub.Fields) == 0 {
			return nil, unknown, orb.NewQueryInvalidError(e.Field.Name, "%s does not accept a sub-select", e.Op)
		}
		inner := b.Sub()
		t, err := c.selectPlan(inner, sub, selectSpec{fields: sub.Fields[:1]})
		if err != nil {
			return nil, unknown, err
		}
		if t == never {
			// The sub-select is empty.
			if negated {
				return nil, always, nil
			}
			return nil, never, nil
		}
		sb := b.Sub()
		c.operand(sb, e)
		if negated {
			sb.WriteString(" NOT IN (")
		} else {
			sb.WriteString(" IN (")
		}
		return sb.Join(inner).WriteString(")"), unknown, nil
	}
	sb := b.Sub()
	c.operand(sb, e)
	switch op {
	case query.OpIs:
		if e.Value == nil {
			if negated {
				return sb.WriteString(" IS NOT NULL"), unknown, nil
			}
			return sb.WriteString(" IS NULL"), unknown, nil
		}
		if negated {
			sb.WriteString(" <> ")
		} else {
			sb.WriteString(" = ")
		}
		return sb, unknown, c.value(sb, e, e.Value)
	case query.OpLessThan, query.OpBefore:
		sb.WriteString(" < ")
		return sb, unknown, c.value(sb, e, e.Value)
	case query.OpLessThanOrEqual:
		sb.WriteString(" <= ")
		return sb, unknown, c.value(sb, e, e.Value)
	case query.OpGreaterThan, query.OpAfter:
		sb.WriteString(" > ")
		return sb, unknown, c.value(sb, e, e.Value)
	case query.OpGreaterThanOrEqual:
		sb.WriteString(" >= ")
		return sb, unknown, c.value(sb, e, e.Value)
	case query.OpBetween:
		bounds, ok := e.Value.([]any)
		if !ok || len(bounds) != 2 {
			return nil, unknown, orb.NewQueryInvalidError(e.Field.Name, "between expects two bounds")
		}
		sb.WriteString(" BETWEEN ")
		if err := c.value(sb, e, bounds[0]); err != nil {
			return nil, unknown, err
		}
		sb.WriteString(" AND ")
		return sb, unknown, c.value(sb, e, bounds[1])
	case query.OpIsIn:
		set, ok := e.Value.([]any)
		if !ok {
			return nil, unknown, orb.NewQueryInvalidError(e.Field.Name, "%s expects a set", e.Op)
		}
		if len(set) == 0 {
			if negated {
				return nil, always, nil
			}
			return nil, never, nil
		}
		if negated {
			sb.WriteString(" NOT IN (")
		} else {
			sb.WriteString(" IN (")
		}
		for i, v := range set {
			if i > 0 {
				sb.WriteString(", ")
			}
			if err := c.value(sb, e, v); err != nil {
				return nil, unknown, err
			}
		}
		return sb.WriteString(")"), unknown, nil
	case query.OpContains, query.OpStartswith, query.OpEndswith:
		return c.like(b, sb, e, op, negated)
	case query.OpMatches:
		return c.regexp(b, sb, e, negated)
	}
	return nil, unknown, orb.NewQueryInvalidError(e.Field.Name, "unsupported operator %s", e.Op)
}

// operand writes the left hand side of a condition: the field wrapped by
// its functions and arithmetic.
func (c *Compiler) operand(b *Builder, e *query.Cond) {
	expr := e.Field.Table.Alias + "." + c.d.Quote(e.Field.Column.Field)
	for _, fn := range e.Funcs {
		switch fn {
		case query.FuncLower:
			expr = "lower(" + expr + ")"
		case query.FuncUpper:
			expr = "upper(" + expr + ")"
		case query.FuncAbs:
			expr = "abs(" + expr + ")"
		case query.FuncAsString:
			expr = "CAST(" + expr + " AS " + c.stringCast() + ")"
		}
	}
	if len(e.Math) == 0 {
		b.WriteString(expr)
		return
	}
	cur := b.Sub().WriteString(expr)
	for _, m := range e.Math {
		next := b.Sub()
		if m.Op == query.MathAdd && e.Field.Column.Type.Textual() && c.d.Name == dialect.MySQL {
			next.WriteString("CONCAT(").Join(cur).WriteString(", ")
			c.mathValue(next, m.Value)
			cur = next.WriteString(")")
			continue
		}
		next.WriteString("(").Join(cur).WriteString(" " + c.mathOp(m.Op, e.Field.Column) + " ")
		c.mathValue(next, m.Value)
		cur = next.WriteString(")")
	}
	b.Join(cur)
}

func (c *Compiler) stringCast() string {
	switch c.d.Name {
	case dialect.MySQL:
		return "CHAR"
	case dialect.Postgres:
		return "VARCHAR"
	}
	return "TEXT"
}

func (c *Compiler) mathOp(op query.MathOp, col *schema.Column) string {
	switch op {
	case query.MathAdd:
		if col.Type.Textual() {
			return "||"
		}
		return "+"
	case query.MathSubtract:
		return "-"
	case query.MathMultiply:
		return "*"
	case query.MathDivide:
		return "/"
	case query.MathAnd:
		return "&"
	default:
		return "|"
	}
}

func (c *Compiler) mathValue(b *Builder, v any) {
	if f, ok := v.(*query.Field); ok {
		c.field(b, f)
		return
	}
	b.Arg(v)
}

// value writes the right hand side of a comparison: another field or a
// parameter bound to the encoded value.
func (c *Compiler) value(b *Builder, e *query.Cond, v any) error {
	if f, ok := v.(*query.Field); ok {
		c.field(b, f)
		return nil
	}
	if len(e.Funcs) > 0 || len(e.Math) > 0 {
		b.Arg(v)
		return nil
	}
	ev, err := c.encode(e.Field.Column, v, false)
	if err != nil {
		return err
	}
	b.Arg(ev)
	return nil
}

// likeEscaper escapes the LIKE wildcards of a literal.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// globEscaper escapes the GLOB wildcards of a literal.
var globEscaper = strings.NewReplacer(`[`, `[[]`, `*`, `[*]`, `?`, `[?]`)

// like renders the anchored pattern operators. Patterns are
// case-insensitive unless the condition is case-sensitive.
func (c *Compiler) like(b, sb *Builder, e *query.Cond, op query.Op, negated bool) (*Builder, truth, error) {
	if f, ok := e.Value.(*query.Field); ok {
		return nil, unknown, orb.NewQueryInvalidError(e.Field.Name, "%s expects a literal, got column %s", e.Op, f.Name)
	}
	s := fmt.Sprint(e.Value)
	wild, esc := "%", likeEscaper
	glob := c.d.Name == dialect.SQLite && e.CaseSensitive
	if glob {
		wild, esc = "*", globEscaper
	}
	pattern := esc.Replace(s)
	switch op {
	case query.OpContains:
		pattern = wild + pattern + wild
	case query.OpStartswith:
		pattern += wild
	case query.OpEndswith:
		pattern = wild + pattern
	}
	not := ""
	if negated {
		not = "NOT "
	}
	switch {
	case glob:
		sb.WriteString(" " + not + "GLOB ").Arg(pattern)
	case c.d.Name == dialect.Postgres && e.CaseSensitive:
		sb.WriteString(" " + not + "LIKE ").Arg(pattern)
	case c.d.Name == dialect.Postgres:
		sb.WriteString(" " + not + "ILIKE ").Arg(pattern)
	case c.d.Name == dialect.MySQL && e.CaseSensitive:
		sb.WriteString(" " + not + "LIKE BINARY ").Arg(pattern)
	case c.d.Name == dialect.MySQL:
		sb.WriteString(" " + not + "LIKE ").Arg(pattern)
	default:
		sb.WriteString(" " + not + `LIKE `).Arg(pattern).WriteString(` ESCAPE '\'`)
	}
	return sb, unknown, nil
}

// regexp renders Matches. Like the pattern operators, expressions are
// case-insensitive unless the condition is case-sensitive.
func (c *Compiler) regexp(b, sb *Builder, e *query.Cond, negated bool) (*Builder, truth, error) {
	pattern, ok := e.Value.(string)
	if !ok {
		return nil, unknown, orb.NewQueryInvalidError(e.Field.Name, "%s expects a pattern string", e.Op)
	}
	switch c.d.Name {
	case dialect.Postgres:
		op := "~"
		if negated {
			op = "!~"
		}
		if !e.CaseSensitive {
			op += "*"
		}
		return sb.WriteString(" " + op + " ").Arg(pattern), unknown, nil
	case dialect.MySQL:
		mode := "c"
		if !e.CaseSensitive {
			mode = "i"
		}
		out := b.Sub()
		if negated {
			out.WriteString("NOT ")
		}
		out.WriteString("REGEXP_LIKE(").Join(sb).WriteString(", ").Arg(pattern).WriteString(", '" + mode + "')")
		return out, unknown, nil
	default:
		if !e.CaseSensitive {
			pattern = "(?i)" + pattern
		}
		if negated {
			sb.WriteString(" NOT")
		}
		return sb.WriteString(" REGEXP ").Arg(pattern), unknown, nil
	}
}
