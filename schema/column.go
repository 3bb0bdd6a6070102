package schema

import (
	"fmt"
	"strings"
)

// Flag is a bit set of column properties.
type Flag uint16

// Column flags.
const (
	Required Flag = 1 << iota
	Unique
	AutoIncrement
	I18n
	// Polymorphic marks the discriminator column: its stored value names the
	// concrete schema a row materializes as.
	Polymorphic
	// Virtual columns are computed by the model layer and never stored.
	Virtual
	Private
	ReadOnly
	// Keyed marks the identifying column of a schema.
	Keyed
)

var flagNames = []struct {
	f    Flag
	name string
}{
	{Required, "required"},
	{Unique, "unique"},
	{AutoIncrement, "auto_increment"},
	{I18n, "i18n"},
	{Polymorphic, "polymorphic"},
	{Virtual, "virtual"},
	{Private, "private"},
	{ReadOnly, "read_only"},
	{Keyed, "keyed"},
}

// String returns the names of the flags set, separated by "|".
func (f Flag) String() string {
	var names []string
	for _, n := range flagNames {
		if f&n.f != 0 {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, "|")
}

// ParseFlag returns the Flag named by s.
func ParseFlag(s string) (Flag, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, n := range flagNames {
		if n.name == s {
			return n.f, nil
		}
	}
	return 0, fmt.Errorf("schema: unknown column flag %q", s)
}

// OnDelete is the policy applied to referencing rows when the referenced
// row is deleted.
type OnDelete uint8

// Delete policies.
const (
	// Block refuses the delete while references exist.
	Block OnDelete = iota
	Cascade
	DoNothing
)

// String returns the policy name.
func (o OnDelete) String() string {
	switch o {
	case Cascade:
		return "cascade"
	case DoNothing:
		return "do_nothing"
	default:
		return "block"
	}
}

// ParseOnDelete returns the OnDelete policy named by s.
func ParseOnDelete(s string) (OnDelete, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "block":
		return Block, nil
	case "cascade":
		return Cascade, nil
	case "do_nothing":
		return DoNothing, nil
	}
	return Block, fmt.Errorf("schema: unknown on-delete policy %q", s)
}

// Column is a named, typed field descriptor.
type Column struct {
	// Name is the name used in query paths and records.
	Name string
	// Field is the storage column name. Defaults to the snake case of Name,
	// suffixed with "_id" for references.
	Field string
	// Label is a human readable title. Defaults to the title case of Name.
	Label string
	Type  Type
	Flags Flag

	// Size bounds string columns. Zero means unbounded.
	Size      int
	Precision int
	Scale     int
	Enum      []string

	Default     any
	DefaultFunc func() any

	// RefSchema names the schema a reference column points to.
	RefSchema string
	// RefColumn names the referenced column, the target's key when empty.
	RefColumn string
	OnDelete  OnDelete

	schema *Schema
}

// Has reports if all flags in f are set on the column.
func (c *Column) Has(f Flag) bool {
	return c.Flags&f == f
}

// Schema returns the schema that declares the column.
func (c *Column) Schema() *Schema {
	return c.schema
}

// IsReference reports if the column holds a foreign key.
func (c *Column) IsReference() bool {
	return c.Type == TypeReference
}

// Stored reports if the column has a storage field.
func (c *Column) Stored() bool {
	return !c.Has(Virtual)
}

// DefaultValue returns the column default, calling the generator if set.
func (c *Column) DefaultValue() (any, bool) {
	switch {
	case c.DefaultFunc != nil:
		return c.DefaultFunc(), true
	case c.Default != nil:
		return c.Default, true
	}
	return nil, false
}

// String implements fmt.Stringer.
func (c *Column) String() string {
	if c.schema != nil {
		return c.schema.Name + "." + c.Name
	}
	return c.Name
}

// clone returns a copy of the column detached from any schema.
func (c *Column) clone() *Column {
	n := *c
	n.Enum = append([]string(nil), c.Enum...)
	n.schema = nil
	return &n
}

func (c *Column) normalize() {
	if c.Field == "" {
		c.Field = FieldName(c.Name)
		if c.IsReference() && !strings.HasSuffix(c.Field, "_id") {
			c.Field += "_id"
		}
	}
	if c.Label == "" {
		c.Label = Label(c.Name)
	}
}
