package query

import (
	"sort"

	"github.com/syssam/orb/schema"
)

// Table is one storage table of a plan, under its alias.
type Table struct {
	Schema *schema.Schema
	Alias  string
}

// Field is a column read through a table alias.
type Field struct {
	Column *schema.Column
	Table  *Table
	// Name is the result name: the column name or the dotted path that
	// selected it.
	Name string
}

// JoinKind is the kind of a join clause.
type JoinKind uint8

// Join kinds.
const (
	// JoinInner links a shared-key ancestor table.
	JoinInner JoinKind = iota + 1
	// JoinLeft follows a reference column.
	JoinLeft
)

// String returns the SQL keyword of the join.
func (k JoinKind) String() string {
	if k == JoinInner {
		return "INNER JOIN"
	}
	return "LEFT JOIN"
}

// Join adds Table to a plan, matching Left (a field of an already joined
// table) with Right (a field of Table).
type Join struct {
	Kind  JoinKind
	Table *Table
	Left  *Field
	Right *Field
}

// Expr is a resolved predicate tree: a *Cond or a *Group.
type Expr interface {
	expr()
}

// Cond is a resolved atomic predicate.
type Cond struct {
	Field *Field
	Funcs []Func
	Math  []ResolvedMath
	Op    Op
	// Value is nil, a literal, a []any set, a *Field or a *Plan sub-select.
	Value         any
	CaseSensitive bool
	Inverted      bool
}

func (*Cond) expr() {}

// ResolvedMath is an arithmetic adjustment whose Value is a literal or a
// *Field.
type ResolvedMath struct {
	Op    MathOp
	Value any
}

// Group is a resolved compound predicate.
type Group struct {
	Conj     Conj
	Children []Expr
}

func (*Group) expr() {}

// OrderField is a resolved ordering term.
type OrderField struct {
	Field *Field
	Desc  bool
}

// Plan is the expanded form of a query against one schema: the tables and
// joins it reads, the selected fields and the resolved filter. A plan with
// no joins reads a single model; otherwise it reads a joined model. Plans
// are shared between callers and never modified after resolution.
type Plan struct {
	Schema   *schema.Schema
	Root     *Table
	Fields   []*Field
	Joins    []*Join
	Where    Expr
	Order    []OrderField
	Limit    int
	Start    int
	Distinct bool
	// Namespace overrides the namespace of every table when set.
	Namespace string
	Locale    string
	// Native reports if inherited columns are read without joins.
	Native bool
}

// Joined reports if the plan reads more than one table.
func (p *Plan) Joined() bool { return len(p.Joins) > 0 }

// Field returns the selected field with the given result name.
func (p *Plan) Field(name string) (*Field, bool) {
	for _, f := range p.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// Schemas returns the names of every schema the plan reads, sub-selects
// included, sorted.
func (p *Plan) Schemas() []string {
	seen := make(map[string]bool)
	p.collect(seen)
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (p *Plan) collect(seen map[string]bool) {
	seen[p.Root.Schema.Name] = true
	for _, j := range p.Joins {
		seen[j.Table.Schema.Name] = true
	}
	var walk func(e Expr)
	walk = func(e Expr) {
		switch e := e.(type) {
		case *Cond:
			if sub, ok := e.Value.(*Plan); ok {
				sub.collect(seen)
			}
		case *Group:
			for _, c := range e.Children {
				walk(c)
			}
		}
	}
	walk(p.Where)
}
