// Package dialect defines the contracts between orb and a database backend.
//
// # Dialect Constants
//
// Each dialect is identified by a constant string:
//
//	dialect.Postgres = "postgres"
//	dialect.MySQL    = "mysql"
//	dialect.SQLite   = "sqlite"
//
// Name maps driver names ("pgx", "sqlite3") to these constants.
//
// # Sessions
//
// The connection pool consumes backends through two interfaces:
//
//	type Opener interface {
//	    Open(ctx context.Context, write bool) (Session, error)
//	    Dialect() string
//	}
//
//	type Session interface {
//	    Exec(ctx context.Context, stmt *Statement) (*Result, error)
//	    Commit(ctx context.Context) error
//	    Rollback(ctx context.Context) error
//	    Close() error
//	    IsClosed() bool
//	    Cancel() error
//	    Writable() bool
//	}
//
// A Statement carries the SQL text, its positional arguments and the named
// parameter map they were bound from. Statements flagged Noop are never sent
// to the backend.
//
// # Raw Statements
//
// Migrations and tools that run raw SQL use the ExecQuerier interface:
//
//	type ExecQuerier interface {
//	    Exec(ctx context.Context, query string, args, v any) error
//	    Query(ctx context.Context, query string, args, v any) error
//	}
//
// # Usage
//
//	drv, err := sql.Open(dialect.Postgres, "postgres://...")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer drv.Close()
//
//	p := pool.New(drv, pool.WithMaxSize(16))
//
// # Sub-packages
//
//   - dialect/sql: database/sql driver, sessions and the SQL compiler
//   - dialect/sql/schema: introspection and add-only migration
//   - dialect/sql/sqlgraph: backend error classification
package dialect
