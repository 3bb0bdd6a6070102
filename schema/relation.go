package schema

import "fmt"

// Relation is a relationship descriptor (a collector): a Reference, a
// ReverseLookup or a Pipe. The set is closed.
type Relation interface {
	// RelationName is the path segment that traverses the relation.
	RelationName() string
	// Target is the name of the schema the relation yields records of.
	Target() string
	// Many reports if the relation can yield more than one record.
	Many() bool
	relation()
}

// Reference is the relation view of a reference column.
type Reference struct {
	Column *Column
}

// RelationName implements Relation.
func (r *Reference) RelationName() string { return r.Column.Name }

// Target implements Relation.
func (r *Reference) Target() string { return r.Column.RefSchema }

// Many implements Relation.
func (*Reference) Many() bool { return false }

func (*Reference) relation() {}

// RemoveAction is applied to the records of a reverse lookup when the record
// they point to is deleted.
type RemoveAction uint8

// Remove actions.
const (
	// Unset clears the referencing column.
	Unset RemoveAction = iota
	// Delete removes the referencing records.
	Delete
)

// String returns the action name.
func (a RemoveAction) String() string {
	switch a {
	case Delete:
		return "delete"
	default:
		return "unset"
	}
}

// ParseRemoveAction returns the action named by s.
func ParseRemoveAction(s string) (RemoveAction, error) {
	switch s {
	case "", "unset":
		return Unset, nil
	case "delete":
		return Delete, nil
	}
	return Unset, fmt.Errorf("schema: unknown remove action %q", s)
}

// ReverseLookup is the inverse of a Reference: all records of From whose
// By column points at the owner.
type ReverseLookup struct {
	Name   string
	From   string
	By     string
	Remove RemoveAction

	owner *Schema
	by    *Column
}

// RelationName implements Relation.
func (r *ReverseLookup) RelationName() string { return r.Name }

// Target implements Relation.
func (r *ReverseLookup) Target() string { return r.From }

// Many implements Relation.
func (*ReverseLookup) Many() bool { return true }

func (*ReverseLookup) relation() {}

// Owner returns the schema declaring the lookup.
func (r *ReverseLookup) Owner() *Schema { return r.owner }

// Column returns the bound reference column on From. Nil before validation.
func (r *ReverseLookup) Column() *Column { return r.by }

// Pipe is a many-to-many relation materialized through a junction schema
// holding two references: Source points at the owner, Dest at the target.
type Pipe struct {
	Name    string
	Through string
	Source  string
	Dest    string

	owner  *Schema
	source *Column
	dest   *Column
}

// RelationName implements Relation.
func (p *Pipe) RelationName() string { return p.Name }

// Target implements Relation. Empty before validation.
func (p *Pipe) Target() string {
	if p.dest == nil {
		return ""
	}
	return p.dest.RefSchema
}

// Many implements Relation.
func (*Pipe) Many() bool { return true }

func (*Pipe) relation() {}

// Owner returns the schema declaring the pipe.
func (p *Pipe) Owner() *Schema { return p.owner }

// SourceColumn returns the bound junction column pointing at the owner.
func (p *Pipe) SourceColumn() *Column { return p.source }

// DestColumn returns the bound junction column pointing at the target.
func (p *Pipe) DestColumn() *Column { return p.dest }

var (
	_ Relation = (*Reference)(nil)
	_ Relation = (*ReverseLookup)(nil)
	_ Relation = (*Pipe)(nil)
)
