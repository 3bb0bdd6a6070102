package field

import (
	"github.com/syssam/orb/schema"
)

// Builder builds a column descriptor.
type Builder struct {
	desc *schema.Column
}

func newBuilder(name string, t schema.Type) *Builder {
	return &Builder{desc: &schema.Column{Name: name, Type: t}}
}

// Bool returns a new boolean column.
func Bool(name string) *Builder { return newBuilder(name, schema.TypeBool) }

// Int returns a new 32-bit integer column.
func Int(name string) *Builder { return newBuilder(name, schema.TypeInt) }

// Long returns a new 64-bit integer column.
func Long(name string) *Builder { return newBuilder(name, schema.TypeLong) }

// Decimal returns a new fixed-point column.
func Decimal(name string, precision, scale int) *Builder {
	b := newBuilder(name, schema.TypeDecimal)
	b.desc.Precision, b.desc.Scale = precision, scale
	return b
}

// Float returns a new floating point column.
func Float(name string) *Builder { return newBuilder(name, schema.TypeFloat) }

// String returns a new bounded string column (255 characters unless Size
// is called).
func String(name string) *Builder {
	b := newBuilder(name, schema.TypeString)
	b.desc.Size = schema.DefaultStringSize
	return b
}

// Text returns a new unbounded string column.
func Text(name string) *Builder { return newBuilder(name, schema.TypeText) }

// Date returns a new date column.
func Date(name string) *Builder { return newBuilder(name, schema.TypeDate) }

// DateTime returns a new timestamp column without time zone.
func DateTime(name string) *Builder { return newBuilder(name, schema.TypeDateTime) }

// DateTimeTZ returns a new timestamp column with time zone.
func DateTimeTZ(name string) *Builder { return newBuilder(name, schema.TypeDateTimeTZ) }

// Time returns a new time-of-day column.
func Time(name string) *Builder { return newBuilder(name, schema.TypeTime) }

// Interval returns a new duration column.
func Interval(name string) *Builder { return newBuilder(name, schema.TypeInterval) }

// Binary returns a new binary column.
func Binary(name string) *Builder { return newBuilder(name, schema.TypeBinary) }

// UUID returns a new UUID column.
func UUID(name string) *Builder { return newBuilder(name, schema.TypeUUID) }

// JSON returns a new JSON column.
func JSON(name string) *Builder { return newBuilder(name, schema.TypeJSON) }

// Enum returns a new enumerated string column.
func Enum(name string, values ...string) *Builder {
	b := newBuilder(name, schema.TypeEnum)
	b.desc.Enum = values
	return b
}

// Reference returns a new column holding the key of the target schema.
func Reference(name, target string) *Builder {
	b := newBuilder(name, schema.TypeReference)
	b.desc.RefSchema = target
	return b
}

// Field overrides the storage field.
func (b *Builder) Field(name string) *Builder { b.desc.Field = name; return b }

// Label overrides the display label.
func (b *Builder) Label(label string) *Builder { b.desc.Label = label; return b }

// Size bounds a string column.
func (b *Builder) Size(n int) *Builder { b.desc.Size = n; return b }

// Required marks the column NOT NULL.
func (b *Builder) Required() *Builder { return b.flag(schema.Required) }

// Unique adds a unique constraint.
func (b *Builder) Unique() *Builder { return b.flag(schema.Unique) }

// AutoIncrement makes the backend generate the value.
func (b *Builder) AutoIncrement() *Builder { return b.flag(schema.AutoIncrement) }

// I18n marks the column translatable.
func (b *Builder) I18n() *Builder { return b.flag(schema.I18n) }

// Polymorphic makes the column the discriminator of the chain.
func (b *Builder) Polymorphic() *Builder { return b.flag(schema.Polymorphic) }

// Virtual marks the column computed and not stored.
func (b *Builder) Virtual() *Builder { return b.flag(schema.Virtual) }

// Private hides the column from default selections.
func (b *Builder) Private() *Builder { return b.flag(schema.Private) }

// ReadOnly rejects writes to the column after insert.
func (b *Builder) ReadOnly() *Builder { return b.flag(schema.ReadOnly) }

// Keyed makes the column the identifying column of the schema.
func (b *Builder) Keyed() *Builder { return b.flag(schema.Keyed) }

// Default sets a literal default value.
func (b *Builder) Default(v any) *Builder { b.desc.Default = v; return b }

// DefaultFunc sets a default generator, called once per inserted row.
func (b *Builder) DefaultFunc(fn func() any) *Builder { b.desc.DefaultFunc = fn; return b }

// RefColumn sets the referenced column, the target key by default.
func (b *Builder) RefColumn(name string) *Builder { b.desc.RefColumn = name; return b }

// OnDelete sets the delete policy of a reference.
func (b *Builder) OnDelete(p schema.OnDelete) *Builder { b.desc.OnDelete = p; return b }

// Descriptor implements schema.ColumnDescriptor.
func (b *Builder) Descriptor() *schema.Column { return b.desc }

func (b *Builder) flag(f schema.Flag) *Builder {
	b.desc.Flags |= f
	return b
}

var _ schema.ColumnDescriptor = (*Builder)(nil)
