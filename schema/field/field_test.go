package field_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/syssam/orb/schema"
	"github.com/syssam/orb/schema/field"
)

func TestTypes(t *testing.T) {
	tests := []struct {
		b    *field.Builder
		want schema.Type
	}{
		{field.Bool("b"), schema.TypeBool},
		{field.Int("i"), schema.TypeInt},
		{field.Long("l"), schema.TypeLong},
		{field.Decimal("d", 10, 2), schema.TypeDecimal},
		{field.Float("f"), schema.TypeFloat},
		{field.String("s"), schema.TypeString},
		{field.Text("t"), schema.TypeText},
		{field.Date("d"), schema.TypeDate},
		{field.DateTime("dt"), schema.TypeDateTime},
		{field.DateTimeTZ("dtz"), schema.TypeDateTimeTZ},
		{field.Time("tm"), schema.TypeTime},
		{field.Interval("iv"), schema.TypeInterval},
		{field.Binary("bin"), schema.TypeBinary},
		{field.UUID("u"), schema.TypeUUID},
		{field.JSON("j"), schema.TypeJSON},
		{field.Enum("e", "a", "b"), schema.TypeEnum},
		{field.Reference("r", "User"), schema.TypeReference},
	}
	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.b.Descriptor().Type)
			parsed, err := schema.ParseType(tt.want.String())
			assert.NoError(t, err)
			assert.Equal(t, tt.want, parsed)
		})
	}
}

func TestOptions(t *testing.T) {
	c := field.String("email").
		Size(128).
		Required().
		Unique().
		I18n().
		Private().
		Label("E-mail").
		Field("mail").
		Default("nobody").
		Descriptor()
	assert.Equal(t, 128, c.Size)
	assert.True(t, c.Has(schema.Required|schema.Unique))
	assert.True(t, c.Has(schema.I18n))
	assert.True(t, c.Has(schema.Private))
	assert.False(t, c.Has(schema.Virtual))
	assert.Equal(t, "required|unique|i18n|private", c.Flags.String())
	assert.Equal(t, "E-mail", c.Label)
	assert.Equal(t, "mail", c.Field)
	v, ok := c.DefaultValue()
	assert.True(t, ok)
	assert.Equal(t, "nobody", v)

	d := field.Decimal("price", 12, 4).Descriptor()
	assert.Equal(t, 12, d.Precision)
	assert.Equal(t, 4, d.Scale)
	assert.Equal(t, schema.DefaultStringSize, field.String("s").Descriptor().Size)

	n := 0
	g := field.Long("seq").DefaultFunc(func() any { n++; return n }).Descriptor()
	v1, _ := g.DefaultValue()
	v2, _ := g.DefaultValue()
	assert.Equal(t, 1, v1)
	assert.Equal(t, 2, v2)

	r := field.Reference("owner", "User").RefColumn("uuid").OnDelete(schema.Cascade).Descriptor()
	assert.True(t, r.IsReference())
	assert.Equal(t, "User", r.RefSchema)
	assert.Equal(t, "uuid", r.RefColumn)
	assert.Equal(t, schema.Cascade, r.OnDelete)
}

func TestNaming(t *testing.T) {
	s := schema.Define("BlogPost").Fields(
		field.String("firstName"),
		field.Reference("author", "User"),
		field.Reference("parent_id", "BlogPost"),
	).MustBuild()
	assert.Equal(t, "blog_posts", s.Table)
	first, _ := s.Column("firstName")
	assert.Equal(t, "first_name", first.Field)
	assert.Equal(t, "First Name", first.Label)
	author, _ := s.Column("author")
	assert.Equal(t, "author_id", author.Field)
	parent, _ := s.Column("parent_id")
	assert.Equal(t, "parent_id", parent.Field)
	assert.Same(t, s, author.Schema())
}
