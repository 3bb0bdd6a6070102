// Package orb is an object-relational mapping engine that compiles schema
// definitions and predicate trees into dialect-correct SQL and executes them
// through a pooled, transactional session layer.
//
// The root package holds the error taxonomy shared by every layer and the
// byte-level Cache contract used by the record cache.
//
// # Packages
//
//   - [schema]: schemas, columns, indexes, relationships and the System registry
//   - [query]: immutable predicate trees, execution Context and the Resolver
//   - [dialect/sql]: dialect descriptors, the SQL compiler and database/sql sessions
//   - [pool]: session pool and transaction coordinator
//   - [cache]: per-schema record cache
//   - [engine]: the facade tying resolution, compilation, caching and execution
//
// # Errors
//
// Errors fall in four families, each with an Is helper:
//
//	orb.IsCompilation(err) // SchemaNotFound, ColumnNotFound, QueryInvalid, ...
//	orb.IsRetryable(err)   // ConnectionLost
//	orb.IsIntegrity(err)   // DuplicateEntry, CannotDelete
//	orb.IsInterruption(err), orb.IsQueryTimeout(err)
//
// Every error raised by a statement that reached the backend carries the
// rendered SQL and its arguments in a Diagnostic.
package orb
