package sql

import (
	"encoding/hex"
	"strings"

	"github.com/google/uuid"

	"github.com/syssam/orb/dialect"
)

// Builder accumulates SQL text and named parameters. Parameters get
// random names ("field_3fa85f64") so that the same column bound twice in
// one statement never collides; positional placeholders are assigned when
// the statement is rendered, in textual order.
//
// Builders derived with Sub share the parameter namespace of their parent,
// so fragments can be compiled apart, then kept or dropped.
type Builder struct {
	d      *Dialect
	parts  []part
	params map[string]any
}

type part struct {
	text  string
	param string
}

// NewBuilder returns an empty Builder for the dialect.
func (d *Dialect) NewBuilder() *Builder {
	return &Builder{d: d, params: make(map[string]any)}
}

// Sub returns an empty Builder sharing b's parameters.
func (b *Builder) Sub() *Builder {
	return &Builder{d: b.d, params: b.params}
}

// WriteString appends raw SQL.
func (b *Builder) WriteString(s string) *Builder {
	if s == "" {
		return b
	}
	if n := len(b.parts); n > 0 && b.parts[n-1].param == "" {
		b.parts[n-1].text += s
		return b
	}
	b.parts = append(b.parts, part{text: s})
	return b
}

// Ident appends a quoted identifier.
func (b *Builder) Ident(s string) *Builder {
	return b.WriteString(b.d.Quote(s))
}

// Arg appends a placeholder bound to v.
func (b *Builder) Arg(v any) *Builder {
	name := b.newParam()
	b.params[name] = v
	b.parts = append(b.parts, part{param: name})
	return b
}

// Args appends comma separated placeholders bound to vs.
func (b *Builder) Args(vs ...any) *Builder {
	for i, v := range vs {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Arg(v)
	}
	return b
}

// Join appends the content of other, which must share b's parameters.
func (b *Builder) Join(other *Builder) *Builder {
	for _, p := range other.parts {
		if p.param != "" {
			b.parts = append(b.parts, p)
			continue
		}
		b.WriteString(p.text)
	}
	return b
}

// Wrap surrounds the content of b with parentheses.
func (b *Builder) Wrap() *Builder {
	b.parts = append([]part{{text: "("}}, b.parts...)
	return b.WriteString(")")
}

// Empty reports if nothing was written.
func (b *Builder) Empty() bool { return len(b.parts) == 0 }

// newParam returns a parameter name not yet used in the namespace.
func (b *Builder) newParam() string {
	for {
		u := uuid.New()
		name := "field_" + hex.EncodeToString(u[:4])
		if _, taken := b.params[name]; !taken {
			return name
		}
	}
}

// Statement renders the SQL text and binds the parameters referenced by
// it in placeholder order.
func (b *Builder) Statement() *dialect.Statement {
	var (
		sb   strings.Builder
		stmt = &dialect.Statement{Params: make(map[string]any)}
	)
	for _, p := range b.parts {
		if p.param == "" {
			sb.WriteString(p.text)
			continue
		}
		v := b.params[p.param]
		stmt.Args = append(stmt.Args, v)
		stmt.Names = append(stmt.Names, p.param)
		stmt.Params[p.param] = v
		sb.WriteString(b.d.Placeholder(len(stmt.Args)))
	}
	stmt.SQL = sb.String()
	return stmt
}

// String returns the SQL text with placeholders, for debugging.
func (b *Builder) String() string {
	return b.Statement().SQL
}
