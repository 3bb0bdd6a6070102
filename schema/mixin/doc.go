// Package mixin provides reusable column sets for schema definitions.
//
//	schema.Define("Post").
//	    Mixin(mixin.Time{}).
//	    Fields(field.String("title"))
//
// Custom mixins embed Schema and override Fields or Indexes.
package mixin
