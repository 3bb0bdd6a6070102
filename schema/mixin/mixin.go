package mixin

import (
	"time"

	"github.com/syssam/orb/schema"
	"github.com/syssam/orb/schema/field"
	"github.com/syssam/orb/schema/index"
)

// Schema is the default implementation for the schema.Mixin interface.
// It should be embedded in all custom mixin definitions.
//
// Example:
//
//	type Audit struct {
//	    mixin.Schema
//	}
//
//	func (Audit) Fields() []schema.ColumnDescriptor {
//	    return []schema.ColumnDescriptor{
//	        field.String("created_by"),
//	    }
//	}
type Schema struct{}

// Fields returns the columns of the mixin.
func (Schema) Fields() []schema.ColumnDescriptor { return nil }

// Indexes returns the indexes of the mixin.
func (Schema) Indexes() []schema.IndexDescriptor { return nil }

var _ schema.Mixin = (*Schema)(nil)

// Time adds created_at and updated_at timestamps, both defaulting to the
// insert time.
type Time struct {
	Schema
}

// Fields returns the time tracking columns.
func (Time) Fields() []schema.ColumnDescriptor {
	return []schema.ColumnDescriptor{
		field.DateTime("created_at").
			Required().
			ReadOnly().
			DefaultFunc(now),
		field.DateTime("updated_at").
			Required().
			DefaultFunc(now),
	}
}

// Indexes returns an index on created_at.
func (Time) Indexes() []schema.IndexDescriptor {
	return []schema.IndexDescriptor{
		index.Fields("created_at"),
	}
}

// CreateTime adds only the created_at timestamp.
type CreateTime struct {
	Schema
}

// Fields returns the created_at column.
func (CreateTime) Fields() []schema.ColumnDescriptor {
	return []schema.ColumnDescriptor{
		field.DateTime("created_at").
			Required().
			ReadOnly().
			DefaultFunc(now),
	}
}

// Polymorphic adds the discriminator column of an inheritance chain. It
// belongs on the root schema; rows store the name of their concrete schema.
type Polymorphic struct {
	Schema
	// Name of the column, "kind" when empty.
	Name string
}

// Fields returns the discriminator column.
func (p Polymorphic) Fields() []schema.ColumnDescriptor {
	name := p.Name
	if name == "" {
		name = "kind"
	}
	return []schema.ColumnDescriptor{
		field.String(name).Size(64).Polymorphic().ReadOnly(),
	}
}

func now() any { return time.Now().UTC() }
