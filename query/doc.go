// Package query provides the query algebra of orb and its resolver.
//
// # Predicates
//
// A Query is an atomic predicate over a dotted path of a schema; a Compound
// joins predicates with AND or OR. Both are immutable: every method returns
// a new value, so trees are freely shared between goroutines and hashed for
// caching.
//
//	q := query.Q("username").Lower().Startswith("adm")
//	q2 := query.And(q, query.Q("groups.name").Is("admins"))
//	q3 := q2.Negate() // De Morgan: (NOT a) OR (NOT b)
//
// Generated model code declares typed paths (StringField, NumberField,
// TimeField, ...) producing the same predicates.
//
// # Context
//
// A Context carries the options of one call: selected columns, filter,
// ordering, paging, locale and the expansion tree of relations to
// pre-fetch. Defaults scoped to a call tree travel in a context.Context:
//
//	ctx = query.WithContext(ctx, query.NewContext(query.Locale("fr_FR")))
//	opts := query.Scoped(ctx, query.NewContext(query.Limit(10)))
//
// # Resolution
//
// The Resolver expands a Context against a schema into a Plan. Paths
// through reference columns become LEFT JOINs; paths through reverse
// lookups and pipes become membership sub-selects; columns inherited
// through shared-key inheritance add INNER JOINs on the key. Plans are
// cached by the hash of the schema and Context.
package query
