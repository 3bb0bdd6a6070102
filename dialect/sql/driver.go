package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/syssam/orb"
	"github.com/syssam/orb/dialect"
)

// Driver is the dialect.Opener of SQL databases: it opens the sessions of
// the pool and gives the migrator direct access to the database.
type Driver struct {
	Conn
	dialect *Dialect
	opts    options
}

// Option configures a Driver.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	stats   *QueryStats
	levels  SlowLevels
	timeout time.Duration
}

// WithLogger sets the logger of executed statements. Defaults to
// slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithStats collects statement statistics into s.
func WithStats(s *QueryStats) Option {
	return func(o *options) { o.stats = s }
}

// WithSlowLevels sets the durations from which statements are logged at
// warn and error level.
func WithSlowLevels(warn, err time.Duration) Option {
	return func(o *options) { o.levels = SlowLevels{Warn: warn, Error: err} }
}

// WithStatementTimeout bounds the duration of every statement run through
// a session. Zero disables the bound.
func WithStatementTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// NewDriver creates a new Driver with the given Conn and dialect.
func NewDriver(d *Dialect, c Conn, opts ...Option) *Driver {
	drv := &Driver{dialect: d, Conn: c, opts: options{levels: DefaultSlowLevels}}
	for _, opt := range opts {
		opt(&drv.opts)
	}
	if drv.opts.logger == nil {
		drv.opts.logger = slog.Default()
	}
	if drv.opts.stats == nil {
		drv.opts.stats = &QueryStats{}
	}
	return drv
}

// Open wraps the database/sql.Open method. The driver name selects the
// dialect: "postgres" and "pgx" open Postgres, "sqlite" and "sqlite3"
// SQLite, "mysql" MySQL.
func Open(driverName, source string, opts ...Option) (*Driver, error) {
	d, err := DialectOf(driverName)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driverName, source)
	if err != nil {
		return nil, &orb.ConnectionFailedError{Err: err}
	}
	return NewDriver(d, Conn{db}, opts...), nil
}

// OpenDB wraps the given database/sql.DB method with a Driver.
func OpenDB(name string, db *sql.DB, opts ...Option) *Driver {
	d, err := DialectOf(name)
	if err != nil {
		d = SQLite
	}
	return NewDriver(d, Conn{db}, opts...)
}

// DB returns the underlying *sql.DB instance.
func (d *Driver) DB() *sql.DB {
	return d.ExecQuerier.(*sql.DB)
}

// Dialect returns the dialect name of the driver.
func (d *Driver) Dialect() string { return d.dialect.Name }

// SQLDialect returns the dialect descriptor of the driver.
func (d *Driver) SQLDialect() *Dialect { return d.dialect }

// QueryStats returns the statistics of the statements run through sessions.
func (d *Driver) QueryStats() *QueryStats { return d.opts.stats }

// Logger returns the statement logger.
func (d *Driver) Logger() *slog.Logger { return d.opts.logger }

// Ping verifies the database is reachable.
func (d *Driver) Ping(ctx context.Context) error {
	if err := d.DB().PingContext(ctx); err != nil {
		return &orb.ConnectionFailedError{Err: err}
	}
	return nil
}

// Close closes the underlying connection.
func (d *Driver) Close() error { return d.DB().Close() }

// ExecQuerier wraps the standard Exec and Query methods.
type ExecQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Conn implements dialect.ExecQuerier given ExecQuerier.
type Conn struct {
	ExecQuerier
}

// Exec implements the dialect.Exec method.
func (c Conn) Exec(ctx context.Context, query string, args, v any) error {
	argv, ok := args.([]any)
	if !ok {
		return fmt.Errorf("dialect/sql: invalid type %T. expect []any for args", args)
	}
	switch v := v.(type) {
	case nil:
		if _, err := c.ExecContext(ctx, query, argv...); err != nil {
			return fmt.Errorf("dialect/sql: exec: %w", err)
		}
	case *sql.Result:
		res, err := c.ExecContext(ctx, query, argv...)
		if err != nil {
			return fmt.Errorf("dialect/sql: exec: %w", err)
		}
		*v = res
	default:
		return fmt.Errorf("dialect/sql: invalid type %T. expect *sql.Result", v)
	}
	return nil
}

// Query implements the dialect.Query method.
func (c Conn) Query(ctx context.Context, query string, args, v any) error {
	vr, ok := v.(*Rows)
	if !ok {
		return fmt.Errorf("dialect/sql: invalid type %T. expect *sql.Rows", v)
	}
	argv, ok := args.([]any)
	if !ok {
		return fmt.Errorf("dialect/sql: invalid type %T. expect []any for args", args)
	}
	rows, err := c.QueryContext(ctx, query, argv...)
	if err != nil {
		return fmt.Errorf("dialect/sql: query: %w", err)
	}
	*vr = Rows{rows}
	return nil
}

var (
	_ dialect.ExecQuerier = (*Driver)(nil)
	_ dialect.Opener      = (*Driver)(nil)
)

type (
	// Rows wraps the sql.Rows to avoid locks copy.
	Rows struct{ ColumnScanner }
	// Result is an alias to sql.Result.
	Result = sql.Result
)

// ColumnScanner is the interface that wraps the standard
// sql.Rows methods used for scanning database rows.
type ColumnScanner interface {
	Close() error
	ColumnTypes() ([]*sql.ColumnType, error)
	Columns() ([]string, error)
	Err() error
	Next() bool
	NextResultSet() bool
	Scan(dest ...any) error
}

// ScanAll reads every remaining row of rows and closes it.
func ScanAll(rows ColumnScanner) (_ []string, _ [][]any, rerr error) {
	defer func() { rerr = errors.Join(rerr, rows.Close()) }()
	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}
	var out [][]any
	for rows.Next() {
		values := make([]any, len(columns))
		dest := make([]any, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, nil, err
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = append([]byte(nil), b...)
			}
		}
		out = append(out, values)
	}
	return columns, out, rows.Err()
}
