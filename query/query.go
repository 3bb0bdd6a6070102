package query

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Node is a predicate tree: a *Query or a *Compound. Nodes are immutable;
// every transformation returns a new value.
type Node interface {
	// Negate returns the logical complement of the node.
	Negate() Node
	// Key returns a canonical representation, equal for equal trees.
	Key() string
	node()
}

// Ref is a value that points at another column of the queried schema, as
// in Q("updated_at").After(Ref{Path: "created_at"}).
type Ref struct {
	Path string
}

// Col returns a Ref to the column at path.
func Col(path string) Ref { return Ref{Path: path} }

// Identifier is implemented by records used as predicate values. A record
// is compiled to its identifying key.
type Identifier interface {
	ID() any
}

// Select is a sub-collection value: the Column of every record of Schema
// matching Where. It compiles to a sub-select.
type Select struct {
	Schema string
	Column string
	Where  Node
}

// From returns a sub-collection of the named schema.
func From(schema, column string, where Node) *Select {
	return &Select{Schema: schema, Column: column, Where: where}
}

// Key returns the canonical representation of the sub-collection.
func (s *Select) Key() string {
	w := "-"
	if s.Where != nil {
		w = s.Where.Key()
	}
	return "select(" + s.Schema + "." + s.Column + ";" + w + ")"
}

// Query is an atomic predicate over a path of the queried schema.
//
//	q := query.Q("groups.name").Is("admins")
//	q = q.And(query.Q("username").Lower().Startswith("a"))
type Query struct {
	path          string
	op            Op
	value         any
	funcs         []Func
	math          []Math
	caseSensitive bool
	inverted      bool
}

// Q returns a predicate over path. Without an operator call it tests the
// path for null.
func Q(path string) *Query {
	return &Query{path: path, op: OpIs}
}

func (q *Query) clone() *Query {
	n := *q
	n.funcs = append([]Func(nil), q.funcs...)
	n.math = append([]Math(nil), q.math...)
	return &n
}

func (q *Query) with(op Op, v any) *Query {
	n := q.clone()
	n.op, n.value = op, v
	return n
}

// Path returns the dotted path the predicate applies to.
func (q *Query) Path() string { return q.path }

// Op returns the operator.
func (q *Query) Op() Op { return q.op }

// Value returns the compared value.
func (q *Query) Value() any { return q.value }

// Funcs returns the functions applied to the column side, innermost first.
func (q *Query) Funcs() []Func { return append([]Func(nil), q.funcs...) }

// Math returns the arithmetic adjustments of the column side.
func (q *Query) Math() []Math { return append([]Math(nil), q.math...) }

// IsCaseSensitive reports if string comparisons respect case.
func (q *Query) IsCaseSensitive() bool { return q.caseSensitive }

// Inverted reports if the predicate is wrapped in a logical NOT.
func (q *Query) Inverted() bool { return q.inverted }

// Is tests equality. A nil value tests for null.
func (q *Query) Is(v any) *Query { return q.with(OpIs, v) }

// IsNot tests inequality. A nil value tests for not null.
func (q *Query) IsNot(v any) *Query { return q.with(OpIsNot, v) }

// IsNull tests for null.
func (q *Query) IsNull() *Query { return q.with(OpIs, nil) }

// NotNull tests for not null.
func (q *Query) NotNull() *Query { return q.with(OpIsNot, nil) }

// LessThan tests path < v.
func (q *Query) LessThan(v any) *Query { return q.with(OpLessThan, v) }

// LessThanOrEqual tests path <= v.
func (q *Query) LessThanOrEqual(v any) *Query { return q.with(OpLessThanOrEqual, v) }

// GreaterThan tests path > v.
func (q *Query) GreaterThan(v any) *Query { return q.with(OpGreaterThan, v) }

// GreaterThanOrEqual tests path >= v.
func (q *Query) GreaterThanOrEqual(v any) *Query { return q.with(OpGreaterThanOrEqual, v) }

// Before tests path < v for temporal values.
func (q *Query) Before(v any) *Query { return q.with(OpBefore, v) }

// After tests path > v for temporal values.
func (q *Query) After(v any) *Query { return q.with(OpAfter, v) }

// Between tests low <= path <= high.
func (q *Query) Between(low, high any) *Query { return q.with(OpBetween, []any{low, high}) }

// Contains tests for a substring.
func (q *Query) Contains(v any) *Query { return q.with(OpContains, v) }

// DoesNotContain tests for the absence of a substring.
func (q *Query) DoesNotContain(v any) *Query { return q.with(OpDoesNotContain, v) }

// Startswith tests for a prefix.
func (q *Query) Startswith(v any) *Query { return q.with(OpStartswith, v) }

// DoesNotStartwith tests for the absence of a prefix.
func (q *Query) DoesNotStartwith(v any) *Query { return q.with(OpDoesNotStartwith, v) }

// Endswith tests for a suffix.
func (q *Query) Endswith(v any) *Query { return q.with(OpEndswith, v) }

// DoesNotEndwith tests for the absence of a suffix.
func (q *Query) DoesNotEndwith(v any) *Query { return q.with(OpDoesNotEndwith, v) }

// Matches tests against a regular expression.
func (q *Query) Matches(pattern string) *Query { return q.with(OpMatches, pattern) }

// DoesNotMatch tests that a regular expression does not match.
func (q *Query) DoesNotMatch(pattern string) *Query { return q.with(OpDoesNotMatch, pattern) }

// IsIn tests set membership. v is a slice of values or a *Select.
func (q *Query) IsIn(v any) *Query { return q.with(OpIsIn, normalizeSet(v)) }

// IsNotIn tests set exclusion. v is a slice of values or a *Select.
func (q *Query) IsNotIn(v any) *Query { return q.with(OpIsNotIn, normalizeSet(v)) }

// In is IsIn over variadic values.
func (q *Query) In(vs ...any) *Query { return q.with(OpIsIn, vs) }

// NotIn is IsNotIn over variadic values.
func (q *Query) NotIn(vs ...any) *Query { return q.with(OpIsNotIn, vs) }

// WithOp returns a copy with the operator and value replaced.
func (q *Query) WithOp(op Op, v any) *Query {
	if op == OpIsIn || op == OpIsNotIn {
		v = normalizeSet(v)
	}
	return q.with(op, v)
}

func (q *Query) apply(f Func) *Query {
	n := q.clone()
	n.funcs = append(n.funcs, f)
	return n
}

// Lower applies lower() to the column side.
func (q *Query) Lower() *Query { return q.apply(FuncLower) }

// Upper applies upper() to the column side.
func (q *Query) Upper() *Query { return q.apply(FuncUpper) }

// Abs applies abs() to the column side.
func (q *Query) Abs() *Query { return q.apply(FuncAbs) }

// AsString casts the column side to a string.
func (q *Query) AsString() *Query { return q.apply(FuncAsString) }

func (q *Query) adjust(op MathOp, v any) *Query {
	n := q.clone()
	n.math = append(n.math, Math{Op: op, Value: v})
	return n
}

// Add adds v (a literal or a Ref) to the column side.
func (q *Query) Add(v any) *Query { return q.adjust(MathAdd, v) }

// Subtract subtracts v from the column side.
func (q *Query) Subtract(v any) *Query { return q.adjust(MathSubtract, v) }

// Multiply multiplies the column side by v.
func (q *Query) Multiply(v any) *Query { return q.adjust(MathMultiply, v) }

// Divide divides the column side by v.
func (q *Query) Divide(v any) *Query { return q.adjust(MathDivide, v) }

// BitAnd combines the column side with v using bitwise and.
func (q *Query) BitAnd(v any) *Query { return q.adjust(MathAnd, v) }

// BitOr combines the column side with v using bitwise or.
func (q *Query) BitOr(v any) *Query { return q.adjust(MathOr, v) }

// CaseSensitive sets whether string comparisons respect case. Queries are
// case insensitive by default.
func (q *Query) CaseSensitive(on bool) *Query {
	n := q.clone()
	n.caseSensitive = on
	return n
}

// Negate returns the complement. Operators with a complement are flipped,
// the others toggle the inversion flag, so negating twice yields an
// operator-equivalent query.
func (q *Query) Negate() Node {
	n := q.clone()
	if op, ok := q.op.Negated(); ok {
		n.op = op
	} else {
		n.inverted = !n.inverted
	}
	return n
}

// Not is Negate returning a *Query.
func (q *Query) Not() *Query { return q.Negate().(*Query) }

// And returns the conjunction of q and other.
func (q *Query) And(other Node) Node { return And(q, other) }

// Or returns the disjunction of q and other.
func (q *Query) Or(other Node) Node { return Or(q, other) }

// Key returns the canonical representation of the predicate.
func (q *Query) Key() string {
	var b strings.Builder
	b.WriteString(q.path)
	for _, f := range q.funcs {
		b.WriteString("|" + f.String())
	}
	for _, m := range q.math {
		b.WriteString("|" + m.Op.String() + valueKey(m.Value))
	}
	b.WriteString(" " + q.op.String() + " " + valueKey(q.value))
	if q.caseSensitive {
		b.WriteString(" cs")
	}
	if q.inverted {
		b.WriteString(" inv")
	}
	return b.String()
}

// String implements fmt.Stringer.
func (q *Query) String() string { return q.Key() }

func (*Query) node() {}

// Hash returns the 64-bit hash of a node key, zero for nil nodes.
func Hash(n Node) uint64 {
	if isNil(n) {
		return 0
	}
	return xxhash.Sum64String(n.Key())
}

func valueKey(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case Ref:
		return "ref(" + v.Path + ")"
	case *Select:
		return v.Key()
	case Identifier:
		return fmt.Sprintf("id(%T:%v)", v.ID(), v.ID())
	case []any:
		parts := make([]string, len(v))
		for i, e := range v {
			parts[i] = valueKey(e)
		}
		return "[" + strings.Join(parts, ",") + "]"
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + "=" + valueKey(v[k])
		}
		return "{" + strings.Join(parts, ",") + "}"
	}
	return fmt.Sprintf("%T:%v", v, v)
}

// normalizeSet turns typed slices into []any, leaving other values alone.
func normalizeSet(v any) any {
	switch v := v.(type) {
	case nil, []any, *Select:
		return v
	case []byte:
		return []any{v}
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []any{v}
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

func isNil(n Node) bool {
	switch n := n.(type) {
	case nil:
		return true
	case *Query:
		return n == nil
	case *Compound:
		return n == nil
	}
	return false
}
