// Package index provides builders for schema indexes.
package index

import "github.com/syssam/orb/schema"

// Builder builds an index descriptor.
type Builder struct {
	desc *schema.Index
}

// Fields returns a new index over the named columns, in order.
func Fields(columns ...string) *Builder {
	return &Builder{desc: &schema.Index{Columns: columns}}
}

// Unique makes the index unique.
func (b *Builder) Unique() *Builder {
	b.desc.Unique = true
	return b
}

// Name overrides the generated "<table>_<fields>_idx" name.
func (b *Builder) Name(name string) *Builder {
	b.desc.Name = name
	return b
}

// Descriptor implements schema.IndexDescriptor.
func (b *Builder) Descriptor() *schema.Index { return b.desc }

var _ schema.IndexDescriptor = (*Builder)(nil)
