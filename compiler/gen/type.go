package gen

import (
	"strings"

	"github.com/dave/jennifer/jen"
	"github.com/go-openapi/inflect"

	"github.com/syssam/orb/schema"
)

const (
	schemaPkg = "github.com/syssam/orb/schema"
	uuidPkg   = "github.com/google/uuid"
)

// initialisms are name segments rendered in upper case.
var initialisms = map[string]bool{
	"api": true, "html": true, "http": true, "id": true, "ip": true,
	"json": true, "sql": true, "ttl": true, "uri": true, "url": true,
	"uuid": true,
}

// pascal returns the exported Go name of a schema, column or relation name
// ("first_name" -> "FirstName", "user_id" -> "UserID").
func pascal(name string) string {
	var b strings.Builder
	for _, part := range strings.Split(inflect.Underscore(name), "_") {
		switch {
		case part == "":
		case initialisms[part]:
			b.WriteString(strings.ToUpper(part))
		default:
			b.WriteString(inflect.Capitalize(part))
		}
	}
	return b.String()
}

// receiver returns the receiver name of the type of a schema.
func receiver(sc *schema.Schema) string {
	return strings.ToLower(pascal(sc.Name)[:1])
}

// field is a column with its Go rendering.
type field struct {
	col *schema.Column
	// Name is the Go struct field name.
	Name string
	// typ is the Go type, without the pointer of nullable columns.
	typ jen.Code
	// nullable columns are pointers in the struct.
	nullable bool
	// dynamic columns hold any and are assigned without assertion.
	dynamic bool
	// zero compares to the zero value of keys, nil for other columns.
	zero jen.Code
}

// fields returns the Go fields of the full column set of sc.
func fields(sys *schema.System, sc *schema.Schema) ([]*field, error) {
	var out []*field
	key := sc.Key()
	for _, c := range sys.Columns(sc) {
		f, err := newField(sys, sc, c)
		if err != nil {
			return nil, err
		}
		if c == key {
			f.nullable = false
		}
		out = append(out, f)
	}
	return out, nil
}

func newField(sys *schema.System, sc *schema.Schema, c *schema.Column) (*field, error) {
	t := c
	if c.Type == schema.TypeReference {
		target, err := refTarget(sys, c)
		if err != nil {
			return nil, NewSchemaError(sc.Name, c.Name, "unresolved reference", err)
		}
		t = target
	}
	f := &field{col: c, Name: pascal(c.Name), nullable: !c.Has(schema.Required)}
	switch t.Type {
	case schema.TypeBool:
		f.typ = jen.Bool()
	case schema.TypeInt:
		f.typ, f.zero = jen.Int(), jen.Lit(0)
	case schema.TypeLong:
		f.typ, f.zero = jen.Int64(), jen.Lit(0)
	case schema.TypeFloat:
		f.typ = jen.Float64()
	case schema.TypeDecimal, schema.TypeString, schema.TypeText, schema.TypeEnum, schema.TypeTime:
		f.typ, f.zero = jen.String(), jen.Lit("")
	case schema.TypeDate, schema.TypeDateTime, schema.TypeDateTimeTZ:
		f.typ = jen.Qual("time", "Time")
	case schema.TypeInterval:
		f.typ = jen.Qual("time", "Duration")
	case schema.TypeBinary:
		f.typ, f.nullable = jen.Index().Byte(), false
	case schema.TypeUUID:
		f.typ, f.zero = jen.Qual(uuidPkg, "UUID"), jen.Qual(uuidPkg, "Nil")
	case schema.TypeJSON:
		f.typ, f.nullable, f.dynamic = jen.Id("any"), false, true
	default:
		return nil, NewSchemaError(sc.Name, c.Name, "no Go type for "+t.Type.String(), nil)
	}
	return f, nil
}

// refTarget returns the column a reference points at.
func refTarget(sys *schema.System, c *schema.Column) (*schema.Column, error) {
	target, err := sys.Resolve(c.RefSchema)
	if err != nil {
		return nil, err
	}
	if c.RefColumn == "" {
		if k := target.Key(); k != nil {
			return k, nil
		}
		return nil, NewSchemaError(target.Name, "", "schema has no key", nil)
	}
	rc, _, ok := target.Lookup(c.RefColumn)
	if !ok {
		return nil, NewSchemaError(target.Name, c.RefColumn, "no such column", nil)
	}
	if rc.Type == schema.TypeReference {
		return refTarget(sys, rc)
	}
	return rc, nil
}

// structType returns the declared Go type of the field.
func (f *field) structType() jen.Code {
	if f.nullable {
		return jen.Op("*").Add(f.typ)
	}
	return f.typ
}

// tags returns the struct tags of the field.
func (f *field) tags() map[string]string {
	json := f.col.Name
	switch {
	case f.col.Has(schema.Private):
		json = "-"
	case f.nullable || f.dynamic || !f.col.Has(schema.Required):
		json += ",omitempty"
	}
	return map[string]string{"orb": f.col.Name, "json": json}
}
