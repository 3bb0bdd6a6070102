package engine

import (
	"github.com/syssam/orb/schema"
)

// Record is one materialized row.
type Record struct {
	// Schema is the concrete schema of the row, chosen by its
	// discriminator.
	Schema *schema.Schema
	// Values are the decoded values by result name.
	Values map[string]any
	// Object is the value built by the factory registered for Schema, or
	// Values without one.
	Object any

	related map[string][]*Record
}

// ID returns the key of the record. It lets records be used as predicate
// values.
func (r *Record) ID() any {
	if k := r.Schema.Key(); k != nil {
		return r.Values[k.Name]
	}
	return nil
}

// Get returns the value with the given result name.
func (r *Record) Get(name string) any { return r.Values[name] }

// Related returns the records pre-fetched through the named relation.
func (r *Record) Related(name string) []*Record { return r.related[name] }

// Edge returns the single record pre-fetched through a reference, or nil.
func (r *Record) Edge(name string) *Record {
	if rs := r.related[name]; len(rs) > 0 {
		return rs[0]
	}
	return nil
}

// Expanded reports if the named relation was pre-fetched for the record.
func (r *Record) Expanded(name string) bool {
	_, ok := r.related[name]
	return ok
}

func (r *Record) relate(name string, force bool, rs ...*Record) {
	if len(rs) == 0 && !force {
		return
	}
	if r.related == nil {
		r.related = make(map[string][]*Record)
	}
	r.related[name] = append(r.related[name], rs...)
}
