package edge

import "github.com/syssam/orb/schema"

// LookupBuilder builds a reverse lookup.
type LookupBuilder struct {
	desc *schema.ReverseLookup
}

// Lookup returns a reverse lookup named name yielding the records of from
// whose by reference points at the owner.
func Lookup(name, from, by string) *LookupBuilder {
	return &LookupBuilder{desc: &schema.ReverseLookup{Name: name, From: from, By: by}}
}

// Remove sets the action applied to the looked up records when the owner
// is deleted.
func (b *LookupBuilder) Remove(a schema.RemoveAction) *LookupBuilder {
	b.desc.Remove = a
	return b
}

// Descriptor implements schema.RelationDescriptor.
func (b *LookupBuilder) Descriptor() schema.Relation { return b.desc }

// PipeBuilder builds a pipe.
type PipeBuilder struct {
	desc *schema.Pipe
}

// Pipe returns a many-to-many relation through the junction schema, whose
// source reference points at the owner and dest reference at the target.
func Pipe(name, through, source, dest string) *PipeBuilder {
	return &PipeBuilder{desc: &schema.Pipe{Name: name, Through: through, Source: source, Dest: dest}}
}

// Descriptor implements schema.RelationDescriptor.
func (b *PipeBuilder) Descriptor() schema.Relation { return b.desc }

var (
	_ schema.RelationDescriptor = (*LookupBuilder)(nil)
	_ schema.RelationDescriptor = (*PipeBuilder)(nil)
)
