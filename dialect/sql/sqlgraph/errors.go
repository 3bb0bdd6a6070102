package sqlgraph

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"regexp"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/syssam/orb"
	"github.com/syssam/orb/dialect"
)

// errorCoder is an interface for database errors that provide error codes.
// Implemented by: modernc.org/sqlite.
type errorCoder interface {
	Code() int
}

// sqlStateError is an interface for errors that provide SQLSTATE codes.
// Implemented by: pgx and some MySQL drivers.
type sqlStateError interface {
	SQLState() string
}

// PostgreSQL SQLSTATE codes.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
	pgNotNullViolation    = "23502"
	pgQueryCanceled       = "57014"
	pgAdminShutdown       = "57P01"
	pgConnectionClass     = "08"
)

// MySQL error numbers.
const (
	mysqlDuplicateEntry         = 1062
	mysqlForeignKeyParent       = 1451 // Cannot delete or update a parent row
	mysqlForeignKeyChild        = 1452 // Cannot add or update a child row
	mysqlCheckConstraintViolate = 3819
	mysqlQueryInterrupted       = 1317
	mysqlExecutionTimeExceeded  = 3024
	mysqlServerGone             = 2006
	mysqlServerLost             = 2013
)

var (
	// Key (username)=(bob) already exists.
	pgDupRe = regexp.MustCompile(`Key \((.+)\)=\((.*)\) already exists`)
	// Key (id)=(1) is still referenced from table "posts".
	pgRefRe = regexp.MustCompile(`is still referenced from table "?([^".]+)"?`)
	// Duplicate entry 'bob' for key 'users.username'
	mysqlDupRe = regexp.MustCompile(`Duplicate entry '(.*)' for key '([^']+)'`)
	// a foreign key constraint fails (`db`.`posts`, CONSTRAINT ...
	mysqlRefRe = regexp.MustCompile("constraint fails \\(`[^`]+`\\.`([^`]+)`")
	// UNIQUE constraint failed: users.username
	sqliteDupRe = regexp.MustCompile(`UNIQUE constraint failed: ([\w., ]+)`)
)

// Classify maps a driver error raised while running stmt to the orb error
// taxonomy. The statement text and arguments are attached for diagnosis and
// the driver error stays reachable through Unwrap. ctx is the context the
// statement ran with; its state decides between interruption and timeout.
func Classify(ctx context.Context, err error, stmt *dialect.Statement) error {
	if err == nil {
		return nil
	}
	if classified(err) {
		return err
	}
	var diag orb.Diagnostic
	if stmt != nil {
		diag = orb.Diagnostic{SQL: stmt.SQL, Args: stmt.Args}
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded) || isTimeout(err):
		return &orb.QueryTimeoutError{Diagnostic: diag, Err: err}
	case errors.Is(err, context.Canceled) || isInterrupted(err):
		if ctx != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &orb.QueryTimeoutError{Diagnostic: diag, Err: err}
		}
		return &orb.InterruptionError{Diagnostic: diag, Err: err}
	case IsConnectionError(err):
		return &orb.ConnectionLostError{Diagnostic: diag, Err: err}
	case IsUniqueConstraintError(err):
		key, value := duplicateKey(err)
		return &orb.DuplicateEntryError{Diagnostic: diag, Key: key, Value: value, Err: err}
	case IsForeignKeyConstraintError(err) && isDelete(err, stmt):
		return &orb.CannotDeleteError{Diagnostic: diag, Table: referencingTable(err), Err: err}
	}
	return &orb.QueryFailedError{Diagnostic: diag, Err: err}
}

// classified reports if err already belongs to the taxonomy.
func classified(err error) bool {
	var (
		failed  *orb.QueryFailedError
		dup     *orb.DuplicateEntryError
		del     *orb.CannotDeleteError
		connect *orb.ConnectionFailedError
	)
	return errors.As(err, &failed) || errors.As(err, &dup) || errors.As(err, &del) || errors.As(err, &connect) ||
		orb.IsConnectionLost(err) || orb.IsInterruption(err) || orb.IsQueryTimeout(err) || orb.IsCompilation(err)
}

// IsConnectionError reports if err means the session dropped.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, mysql.ErrInvalidConn) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	if code := pgCode(err); code == pgAdminShutdown || strings.HasPrefix(code, pgConnectionClass) {
		return true
	}
	if e, ok := asError[*mysql.MySQLError](err); ok {
		if e.Number == mysqlServerGone || e.Number == mysqlServerLost {
			return true
		}
	}
	var ne net.Error
	if errors.As(err, &ne) && !ne.Timeout() {
		return true
	}
	return containsAny(err.Error(),
		"bad connection",
		"connection reset by peer",
		"broken pipe",
		"server closed the connection unexpectedly",
	)
}

// IsConstraintError returns true if the error resulted from a database constraint violation.
func IsConstraintError(err error) bool {
	return IsUniqueConstraintError(err) ||
		IsForeignKeyConstraintError(err) ||
		IsCheckConstraintError(err) ||
		pgCode(err) == pgNotNullViolation
}

// IsUniqueConstraintError reports if the error resulted from a DB uniqueness constraint violation.
// e.g. duplicate value in unique index.
func IsUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if pgCode(err) == pgUniqueViolation {
		return true
	}
	if e, ok := asError[*mysql.MySQLError](err); ok && e.Number == mysqlDuplicateEntry {
		return true
	}
	if e, ok := asError[errorCoder](err); ok {
		if c := e.Code(); c == sqlite3.SQLITE_CONSTRAINT_UNIQUE || c == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
			return true
		}
	}
	// Fallback to string matching for drivers that don't implement interfaces
	return containsAny(err.Error(),
		"Error 1062",                 // MySQL (string fallback)
		"violates unique constraint", // Postgres (string fallback)
		"UNIQUE constraint failed",   // SQLite
	)
}

// IsForeignKeyConstraintError reports if the error resulted from a database foreign-key constraint violation.
// e.g. parent row does not exist.
func IsForeignKeyConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if pgCode(err) == pgForeignKeyViolation {
		return true
	}
	if e, ok := asError[*mysql.MySQLError](err); ok {
		if e.Number == mysqlForeignKeyParent || e.Number == mysqlForeignKeyChild {
			return true
		}
	}
	if e, ok := asError[errorCoder](err); ok && e.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY {
		return true
	}
	return containsAny(err.Error(),
		"Error 1451",                      // MySQL (Cannot delete or update a parent row)
		"Error 1452",                      // MySQL (Cannot add or update a child row)
		"violates foreign key constraint", // Postgres
		"FOREIGN KEY constraint failed",   // SQLite
	)
}

// IsCheckConstraintError reports if the error resulted from a database check constraint violation.
func IsCheckConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if pgCode(err) == pgCheckViolation {
		return true
	}
	if e, ok := asError[*mysql.MySQLError](err); ok && e.Number == mysqlCheckConstraintViolate {
		return true
	}
	return containsAny(err.Error(),
		"Error 3819",                // MySQL
		"violates check constraint", // Postgres
		"CHECK constraint failed",   // SQLite
	)
}

func isTimeout(err error) bool {
	if pgconn.Timeout(err) {
		return true
	}
	if e, ok := asError[*mysql.MySQLError](err); ok && e.Number == mysqlExecutionTimeExceeded {
		return true
	}
	if pgCode(err) == pgQueryCanceled && strings.Contains(err.Error(), "statement timeout") {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func isInterrupted(err error) bool {
	if pgCode(err) == pgQueryCanceled {
		return true
	}
	if e, ok := asError[*mysql.MySQLError](err); ok && e.Number == mysqlQueryInterrupted {
		return true
	}
	if e, ok := asError[errorCoder](err); ok && e.Code() == sqlite3.SQLITE_INTERRUPT {
		return true
	}
	return containsAny(err.Error(), "interrupted")
}

// isDelete reports if a foreign-key failure was raised by removing a
// referenced row, rather than by writing a dangling reference.
func isDelete(err error, stmt *dialect.Statement) bool {
	if e, ok := asError[*mysql.MySQLError](err); ok {
		return e.Number == mysqlForeignKeyParent
	}
	if e, ok := asError[*pq.Error](err); ok {
		return strings.Contains(e.Detail, "still referenced")
	}
	if e, ok := asError[*pgconn.PgError](err); ok {
		return strings.Contains(e.Detail, "still referenced")
	}
	return stmt != nil && strings.HasPrefix(strings.TrimSpace(strings.ToUpper(stmt.SQL)), "DELETE")
}

func pgCode(err error) string {
	if e, ok := asError[*pq.Error](err); ok {
		return string(e.Code)
	}
	if e, ok := asError[*pgconn.PgError](err); ok {
		return e.Code
	}
	if e, ok := asError[sqlStateError](err); ok {
		return e.SQLState()
	}
	return ""
}

// duplicateKey extracts the offending column list and value.
func duplicateKey(err error) (string, string) {
	detail := err.Error()
	if e, ok := asError[*pq.Error](err); ok {
		detail = e.Detail
	} else if e, ok := asError[*pgconn.PgError](err); ok {
		detail = e.Detail
	}
	if m := pgDupRe.FindStringSubmatch(detail); m != nil {
		return m[1], m[2]
	}
	if m := mysqlDupRe.FindStringSubmatch(detail); m != nil {
		key := m[2]
		if i := strings.LastIndexByte(key, '.'); i >= 0 {
			key = key[i+1:]
		}
		return key, m[1]
	}
	if m := sqliteDupRe.FindStringSubmatch(detail); m != nil {
		var cols []string
		for _, c := range strings.Split(m[1], ",") {
			c = strings.TrimSpace(c)
			if i := strings.LastIndexByte(c, '.'); i >= 0 {
				c = c[i+1:]
			}
			cols = append(cols, c)
		}
		return strings.Join(cols, ", "), ""
	}
	return "", ""
}

// referencingTable extracts the table that still references a deleted row.
func referencingTable(err error) string {
	detail := err.Error()
	if e, ok := asError[*pq.Error](err); ok {
		detail = e.Detail
	} else if e, ok := asError[*pgconn.PgError](err); ok {
		detail = e.Detail
	}
	if m := pgRefRe.FindStringSubmatch(detail); m != nil {
		return m[1]
	}
	if m := mysqlRefRe.FindStringSubmatch(detail); m != nil {
		return m[1]
	}
	return ""
}

// asError attempts to extract an error implementing interface T from the error chain.
func asError[T any](err error) (T, bool) {
	var target T
	for err != nil {
		if e, ok := err.(T); ok {
			return e, true
		}
		err = errors.Unwrap(err)
	}
	return target, false
}

// containsAny returns true if s contains any of the substrings.
func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
