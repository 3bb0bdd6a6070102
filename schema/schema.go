package schema

import (
	"fmt"
	"strings"

	"github.com/syssam/orb"
)

// Strategy selects how an inheriting schema is stored.
type Strategy uint8

// Inheritance strategies.
const (
	// Auto uses native inheritance when the dialect declares the capability
	// and shared-key inheritance otherwise.
	Auto Strategy = iota
	// SharedKey stores subclass rows in their own table, linked to the
	// ancestor rows through the key column.
	SharedKey
	// Native relies on the backend's table inheritance: the child table
	// physically contains every ancestor column.
	Native
)

// String returns the strategy name.
func (s Strategy) String() string {
	switch s {
	case SharedKey:
		return "shared_key"
	case Native:
		return "native"
	default:
		return "auto"
	}
}

// ParseStrategy returns the strategy named by s.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return Auto, nil
	case "shared_key":
		return SharedKey, nil
	case "native":
		return Native, nil
	}
	return Auto, fmt.Errorf("schema: unknown inheritance strategy %q", s)
}

// Resolve returns the concrete strategy given the dialect capability.
func (s Strategy) Resolve(native bool) Strategy {
	if s == Auto {
		if native {
			return Native
		}
		return SharedKey
	}
	return s
}

// Index is an ordered list of columns plus a uniqueness flag.
type Index struct {
	Name    string
	Columns []string
	Unique  bool

	schema *Schema
}

// Schema returns the schema the index belongs to.
func (i *Index) Schema() *Schema { return i.schema }

// DefaultKey is the name of the identifying column added to root schemas.
const DefaultKey = "id"

// Schema describes one persisted entity type.
type Schema struct {
	Name      string
	Table     string
	Namespace string
	// Inherits names the parent schema.
	Inherits string
	Strategy Strategy
	// Abstract schemas are never stored themselves.
	Abstract bool
	// Order is the default ordering, in the "-name,+id" form.
	Order string

	columns   []*Column
	indexes   []*Index
	relations []Relation
	parent    *Schema
	sys       *System
}

// Columns returns the columns declared by this schema, excluding ancestors.
func (s *Schema) Columns() []*Column {
	return append([]*Column(nil), s.columns...)
}

// Column returns the column declared by this schema with the given name.
func (s *Schema) Column(name string) (*Column, bool) {
	for _, c := range s.columns {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// Lookup returns the column with the given name declared by this schema or
// one of its ancestors, along with the declaring schema.
func (s *Schema) Lookup(name string) (*Column, *Schema, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if c, ok := cur.Column(name); ok {
			return c, cur, true
		}
	}
	return nil, nil, false
}

// Relation returns the relation reachable through name, checking reference
// columns and collectors of the schema and its ancestors.
func (s *Schema) Relation(name string) (Relation, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if c, ok := cur.Column(name); ok && c.IsReference() {
			return &Reference{Column: c}, true
		}
		for _, r := range cur.relations {
			if r.RelationName() == name {
				return r, true
			}
		}
	}
	return nil, false
}

// Relations returns the collectors declared by this schema.
func (s *Schema) Relations() []Relation {
	return append([]Relation(nil), s.relations...)
}

// Indexes returns the indexes declared by this schema.
func (s *Schema) Indexes() []*Index {
	return append([]*Index(nil), s.indexes...)
}

// Parent returns the resolved parent schema, nil for roots or before
// validation.
func (s *Schema) Parent() *Schema { return s.parent }

// Root returns the top of the inheritance chain.
func (s *Schema) Root() *Schema {
	cur := s
	for cur.parent != nil {
		cur = cur.parent
	}
	return cur
}

// Key returns the identifying column, inherited from the root schema.
func (s *Schema) Key() *Column {
	for _, c := range s.Root().columns {
		if c.Has(Keyed) {
			return c
		}
	}
	return nil
}

// Discriminator returns the polymorphic column of the chain, if any.
func (s *Schema) Discriminator() *Column {
	for cur := s; cur != nil; cur = cur.parent {
		for _, c := range cur.columns {
			if c.Has(Polymorphic) {
				return c
			}
		}
	}
	return nil
}

// IsA reports if s is other or inherits from it.
func (s *Schema) IsA(other *Schema) bool {
	for cur := s; cur != nil; cur = cur.parent {
		if cur == other {
			return true
		}
	}
	return false
}

// System returns the registry the schema belongs to.
func (s *Schema) System() *System { return s.sys }

// String implements fmt.Stringer.
func (s *Schema) String() string { return s.Name }

func (s *Schema) addColumn(c *Column) error {
	c.normalize()
	for _, o := range s.columns {
		if o.Name == c.Name || o.Field == c.Field {
			return &orb.DuplicateColumnError{Schema: s.Name, Column: c.Name, Owner: s.Name}
		}
	}
	c.schema = s
	s.columns = append(s.columns, c)
	return nil
}

// ColumnDescriptor is implemented by column builders.
type ColumnDescriptor interface {
	Descriptor() *Column
}

// RelationDescriptor is implemented by collector builders.
type RelationDescriptor interface {
	Descriptor() Relation
}

// IndexDescriptor is implemented by index builders.
type IndexDescriptor interface {
	Descriptor() *Index
}

// Mixin is a reusable set of columns and indexes.
type Mixin interface {
	Fields() []ColumnDescriptor
	Indexes() []IndexDescriptor
}

// Builder is the declarative construction surface of a Schema.
//
//	s, err := schema.Define("User").
//	    Fields(
//	        field.String("username").Required().Unique(),
//	        field.Reference("group", "Group"),
//	    ).
//	    Edges(edge.Pipe("roles", "UserRole", "user", "role")).
//	    Indexes(index.Fields("username").Unique()).
//	    Build()
type Builder struct {
	s        *Schema
	fields   []ColumnDescriptor
	edges    []RelationDescriptor
	indexes  []IndexDescriptor
	keyType  Type
	noKey    bool
	keyField string
}

// Define starts the definition of the named schema.
func Define(name string) *Builder {
	return &Builder{s: &Schema{Name: name}, keyType: TypeLong}
}

// Table overrides the storage table.
func (b *Builder) Table(name string) *Builder { b.s.Table = name; return b }

// Namespace sets the storage namespace.
func (b *Builder) Namespace(ns string) *Builder { b.s.Namespace = ns; return b }

// Inherits sets the parent schema.
func (b *Builder) Inherits(parent string) *Builder { b.s.Inherits = parent; return b }

// Strategy sets the inheritance strategy.
func (b *Builder) Strategy(st Strategy) *Builder { b.s.Strategy = st; return b }

// Abstract marks the schema as never stored itself.
func (b *Builder) Abstract() *Builder { b.s.Abstract = true; return b }

// Order sets the default ordering.
func (b *Builder) Order(order string) *Builder { b.s.Order = order; return b }

// UUIDKey makes the identifying column a generated UUID.
func (b *Builder) UUIDKey() *Builder { b.keyType = TypeUUID; return b }

// KeyField overrides the storage field of the identifying column.
func (b *Builder) KeyField(name string) *Builder { b.keyField = name; return b }

// NoKey suppresses the generated identifying column. The definition must
// then declare a Keyed column itself.
func (b *Builder) NoKey() *Builder { b.noKey = true; return b }

// Fields appends column definitions.
func (b *Builder) Fields(fs ...ColumnDescriptor) *Builder {
	b.fields = append(b.fields, fs...)
	return b
}

// Edges appends collector definitions.
func (b *Builder) Edges(es ...RelationDescriptor) *Builder {
	b.edges = append(b.edges, es...)
	return b
}

// Indexes appends index definitions.
func (b *Builder) Indexes(is ...IndexDescriptor) *Builder {
	b.indexes = append(b.indexes, is...)
	return b
}

// Mixin appends the columns and indexes of each mixin.
func (b *Builder) Mixin(ms ...Mixin) *Builder {
	for _, m := range ms {
		b.fields = append(b.fields, m.Fields()...)
		b.indexes = append(b.indexes, m.Indexes()...)
	}
	return b
}

// Build returns the schema, reporting local definition errors. Errors that
// span schemas are reported by System.Validate.
func (b *Builder) Build() (*Schema, error) {
	s := b.s
	if s.Name == "" {
		return nil, fmt.Errorf("schema: missing schema name")
	}
	if s.Table == "" {
		s.Table = TableName(s.Name)
	}
	if s.Inherits == "" && !b.noKey {
		key := &Column{Name: DefaultKey, Field: b.keyField, Type: b.keyType, Flags: Keyed | Required}
		switch b.keyType {
		case TypeUUID:
			key.DefaultFunc = newUUID
		default:
			key.Flags |= AutoIncrement
		}
		if err := s.addColumn(key); err != nil {
			return nil, err
		}
	}
	for _, f := range b.fields {
		if err := s.addColumn(f.Descriptor().clone()); err != nil {
			return nil, err
		}
	}
	for _, e := range b.edges {
		r := e.Descriptor()
		switch r := r.(type) {
		case *ReverseLookup:
			c := *r
			c.owner = s
			s.relations = append(s.relations, &c)
		case *Pipe:
			c := *r
			c.owner = s
			s.relations = append(s.relations, &c)
		default:
			return nil, &orb.RelationError{Schema: s.Name, Relation: r.RelationName(), Reason: "references are declared as fields"}
		}
	}
	for _, i := range b.indexes {
		d := *i.Descriptor()
		d.Columns = append([]string(nil), d.Columns...)
		if len(d.Columns) == 0 {
			return nil, fmt.Errorf("schema: index on %s has no columns", s.Name)
		}
		if d.Name == "" {
			d.Name = s.Table + "_" + strings.Join(fieldNames(d.Columns), "_") + "_idx"
		}
		d.schema = s
		s.indexes = append(s.indexes, &d)
	}
	return s, nil
}

// MustBuild is like Build but panics on error.
func (b *Builder) MustBuild() *Schema {
	s, err := b.Build()
	if err != nil {
		panic(err)
	}
	return s
}

func fieldNames(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = FieldName(n)
	}
	return out
}
