package query

import "strings"

// Compound joins child nodes with AND or OR.
type Compound struct {
	conj     Conj
	children []Node
}

// And returns the conjunction of nodes. Nil nodes vanish and nested
// conjunctions are flattened. It returns nil when no node remains and the
// node itself when only one remains.
func And(nodes ...Node) Node { return combine(ConjAnd, nodes) }

// Or returns the disjunction of nodes, with the same flattening as And.
func Or(nodes ...Node) Node { return combine(ConjOr, nodes) }

func combine(conj Conj, nodes []Node) Node {
	var children []Node
	for _, n := range nodes {
		if isNil(n) {
			continue
		}
		if c, ok := n.(*Compound); ok && c.conj == conj {
			children = append(children, c.children...)
			continue
		}
		children = append(children, n)
	}
	switch len(children) {
	case 0:
		return nil
	case 1:
		return children[0]
	}
	return &Compound{conj: conj, children: children}
}

// Conj returns the compound operator.
func (c *Compound) Conj() Conj { return c.conj }

// Children returns the child nodes in order.
func (c *Compound) Children() []Node { return append([]Node(nil), c.children...) }

// Negate applies De Morgan's law: every child is negated and the operator
// flips.
func (c *Compound) Negate() Node {
	children := make([]Node, len(c.children))
	for i, n := range c.children {
		children[i] = n.Negate()
	}
	return &Compound{conj: c.conj.flip(), children: children}
}

// And returns the conjunction of c and other.
func (c *Compound) And(other Node) Node { return And(c, other) }

// Or returns the disjunction of c and other.
func (c *Compound) Or(other Node) Node { return Or(c, other) }

// Key returns the canonical representation of the tree.
func (c *Compound) Key() string {
	parts := make([]string, len(c.children))
	for i, n := range c.children {
		parts[i] = n.Key()
	}
	return "(" + strings.Join(parts, " "+c.conj.String()+" ") + ")"
}

// String implements fmt.Stringer.
func (c *Compound) String() string { return c.Key() }

func (*Compound) node() {}

// Walk calls fn for every *Query of the tree, depth first.
func Walk(n Node, fn func(*Query) error) error {
	switch n := n.(type) {
	case *Query:
		if n != nil {
			return fn(n)
		}
	case *Compound:
		if n == nil {
			return nil
		}
		for _, c := range n.children {
			if err := Walk(c, fn); err != nil {
				return err
			}
		}
	}
	return nil
}
