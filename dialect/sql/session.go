package sql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/syssam/orb"
	"github.com/syssam/orb/dialect"
	"github.com/syssam/orb/dialect/sql/sqlgraph"
)

// Open implements dialect.Opener. The session holds one connection of the
// database/sql pool until it is closed. Write sessions run their
// statements in a transaction, begun by the first statement and ended by
// Commit or Rollback.
func (d *Driver) Open(ctx context.Context, write bool) (dialect.Session, error) {
	conn, err := d.DB().Conn(ctx)
	if err != nil {
		if err := sqlgraph.Classify(ctx, err, nil); orb.IsConnectionLost(err) || orb.IsInterruption(err) || orb.IsQueryTimeout(err) {
			return nil, err
		}
		return nil, &orb.ConnectionFailedError{Err: err}
	}
	return &Session{drv: d, conn: conn, write: write}, nil
}

// Session is a dialect.Session over one database/sql connection.
type Session struct {
	drv   *Driver
	conn  *sql.Conn
	write bool

	mu     sync.Mutex
	tx     *sql.Tx
	cancel context.CancelFunc
	closed bool
	lost   bool
}

var _ dialect.Session = (*Session)(nil)

// Exec runs stmt. Noop statements are not sent and report no rows.
func (s *Session) Exec(ctx context.Context, stmt *dialect.Statement) (*dialect.Result, error) {
	if stmt.Noop {
		return &dialect.Result{}, nil
	}
	ex, err := s.executor(ctx, stmt)
	if err != nil {
		return nil, err
	}
	if s.drv.opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.drv.opts.timeout)
		defer cancel()
	}
	rctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.cancel = nil
		s.mu.Unlock()
		cancel()
	}()

	start := time.Now()
	res, err := s.run(rctx, ex, stmt)
	if err != nil {
		err = sqlgraph.Classify(ctx, err, stmt)
		if orb.IsConnectionLost(err) {
			s.markLost()
		}
	}
	s.drv.opts.stats.record(ctx, s.drv.opts.logger, s.drv.opts.levels, stmt, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// executor returns the transaction of a write session, begun on demand,
// or the connection of a read session.
func (s *Session) executor(ctx context.Context, stmt *dialect.Statement) (Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Conn{}, &orb.ConnectionLostError{
			Diagnostic: orb.Diagnostic{SQL: stmt.SQL, Args: stmt.Args},
			Err:        errors.New("dialect/sql: session closed"),
		}
	}
	if !s.write {
		return Conn{s.conn}, nil
	}
	if s.tx == nil {
		// The transaction outlives the context of the statement that began it.
		tx, err := s.conn.BeginTx(context.WithoutCancel(ctx), nil)
		if err != nil {
			err = sqlgraph.Classify(ctx, err, stmt)
			if orb.IsConnectionLost(err) {
				s.lost, s.closed = true, true
				s.discard()
			}
			return Conn{}, err
		}
		s.tx = tx
	}
	return Conn{s.tx}, nil
}

func (s *Session) run(ctx context.Context, c Conn, stmt *dialect.Statement) (*dialect.Result, error) {
	if stmt.Rows {
		var rows Rows
		if err := c.Query(ctx, stmt.SQL, stmt.Args, &rows); err != nil {
			return nil, err
		}
		columns, values, err := ScanAll(rows.ColumnScanner)
		if err != nil {
			return nil, fmt.Errorf("dialect/sql: scan: %w", err)
		}
		return &dialect.Result{Columns: columns, Rows: values, RowsAffected: int64(len(values))}, nil
	}
	var r sql.Result
	if err := c.Exec(ctx, stmt.SQL, stmt.Args, &r); err != nil {
		return nil, err
	}
	res := &dialect.Result{RowsAffected: -1}
	if n, err := r.RowsAffected(); err == nil {
		res.RowsAffected = n
	}
	// Postgres drivers report an error here; RETURNING serves them.
	if id, err := r.LastInsertId(); err == nil {
		res.LastInsertID = id
	}
	return res, nil
}

// Commit commits the pending transaction, if any.
func (s *Session) Commit(ctx context.Context) error {
	s.mu.Lock()
	tx := s.tx
	s.tx = nil
	s.mu.Unlock()
	if tx == nil {
		return nil
	}
	if err := tx.Commit(); err != nil {
		err = sqlgraph.Classify(ctx, err, nil)
		if orb.IsConnectionLost(err) {
			s.markLost()
		}
		return err
	}
	return nil
}

// Rollback discards the pending transaction, if any.
func (s *Session) Rollback(ctx context.Context) error {
	s.mu.Lock()
	tx := s.tx
	s.tx = nil
	s.mu.Unlock()
	if tx == nil {
		return nil
	}
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		err = sqlgraph.Classify(ctx, err, nil)
		if orb.IsConnectionLost(err) {
			s.markLost()
		}
		return err
	}
	return nil
}

// Close rolls back the pending transaction and returns the connection to
// the database/sql pool. A lost connection is discarded instead.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed && s.conn == nil {
		return nil
	}
	s.closed = true
	var err error
	if s.tx != nil {
		if rerr := s.tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
			err = rerr
		}
		s.tx = nil
	}
	if s.lost {
		s.discard()
		return nil
	}
	if s.conn != nil {
		err = errors.Join(err, s.conn.Close())
		s.conn = nil
	}
	return err
}

// discard makes database/sql drop the connection rather than pool it.
// Callers hold s.mu.
func (s *Session) discard() {
	if s.conn == nil {
		return
	}
	_ = s.conn.Raw(func(any) error { return driver.ErrBadConn })
	_ = s.conn.Close()
	s.conn = nil
}

func (s *Session) markLost() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lost, s.closed = true, true
	s.tx = nil
	s.discard()
}

// IsClosed reports if the session was closed or lost its connection.
func (s *Session) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Lost reports if the session lost its connection.
func (s *Session) Lost() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lost
}

// Cancel interrupts the running statement. The database/sql drivers turn
// the cancellation into the backend cancel request.
func (s *Session) Cancel() error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// Writable reports if the session was opened with write access.
func (s *Session) Writable() bool { return s.write }
