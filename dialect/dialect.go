package dialect

import (
	"context"
	"fmt"
	"strings"
)

// Dialect names for external usage.
const (
	MySQL    = "mysql"
	SQLite   = "sqlite"
	Postgres = "postgres"
)

// ExecQuerier wraps the 2 database operations.
type ExecQuerier interface {
	// Exec executes a query that does not return records. For example, in SQL, INSERT or UPDATE.
	// It scans the result into the pointer v. For SQL drivers, it is dialect/sql.Result.
	Exec(ctx context.Context, query string, args, v any) error
	// Query executes a query that returns rows, typically a SELECT in SQL.
	// It scans the result into the pointer v. For SQL drivers, it is *dialect/sql.Rows.
	Query(ctx context.Context, query string, args, v any) error
}

// Statement is one compiled SQL statement: its text, the positional
// arguments in placeholder order and the named parameter map they were
// bound from.
type Statement struct {
	SQL  string
	Args []any
	// Params maps every placeholder name to its value and Names lists the
	// names in placeholder order.
	Params map[string]any
	Names  []string
	// Rows reports if the statement returns rows.
	Rows bool
	// Write reports if the statement modifies data.
	Write bool
	// Noop reports that the statement must not run: its filter can match no
	// row, or it is a destructive statement with an empty filter.
	Noop bool
	// Schema names the schema the statement was compiled for.
	Schema string
}

// String returns the statement text followed by its arguments.
func (s *Statement) String() string {
	if s.Noop {
		return "-- noop"
	}
	if len(s.Args) == 0 {
		return s.SQL
	}
	return fmt.Sprintf("%s %v", s.SQL, s.Args)
}

// Result is the outcome of one executed statement.
type Result struct {
	Columns []string
	Rows    [][]any
	// RowsAffected is the number of rows changed by a write, -1 when the
	// backend does not report it.
	RowsAffected int64
	// LastInsertID is the identifier generated by the last insert on
	// backends without RETURNING.
	LastInsertID int64
}

// Maps returns the rows keyed by column name.
func (r *Result) Maps() []map[string]any {
	out := make([]map[string]any, len(r.Rows))
	for i, row := range r.Rows {
		m := make(map[string]any, len(r.Columns))
		for j, c := range r.Columns {
			if j < len(row) {
				m[c] = row[j]
			}
		}
		out[i] = m
	}
	return out
}

// Session is one live backend session. A session is owned by a single
// caller at a time; only Cancel may be called from another goroutine.
type Session interface {
	// Exec runs a statement.
	Exec(ctx context.Context, stmt *Statement) (*Result, error)
	// Commit commits the pending writes of the session.
	Commit(ctx context.Context) error
	// Rollback discards the pending writes of the session.
	Rollback(ctx context.Context) error
	// Close releases the session.
	Close() error
	// IsClosed reports if the session dropped or was closed.
	IsClosed() bool
	// Cancel interrupts the statement running on the session, if any.
	Cancel() error
	// Writable reports if the session was opened with write access.
	Writable() bool
}

// Opener opens backend sessions.
type Opener interface {
	// Open opens a session. Write sessions group their statements until
	// Commit or Rollback.
	Open(ctx context.Context, write bool) (Session, error)
	// Dialect returns the dialect name of the opened sessions.
	Dialect() string
}

// Name normalizes a dialect or driver name: driver names such as "pgx",
// "sqlite3" or "postgresql" map to their dialect.
func Name(s string) (string, error) {
	switch strings.ToLower(s) {
	case Postgres, "postgresql", "pgx":
		return Postgres, nil
	case SQLite, "sqlite3":
		return SQLite, nil
	case MySQL, "mariadb":
		return MySQL, nil
	}
	return "", fmt.Errorf("dialect: unsupported dialect %q", s)
}
