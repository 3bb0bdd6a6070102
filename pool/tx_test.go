package pool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/orb"
	"github.com/syssam/orb/dialect"
	"github.com/syssam/orb/dialect/sql"
)

func TestTransactionCommit(t *testing.T) {
	o := &fakeOpener{}
	p := New(o)
	c := NewCoordinator(p)

	ctx, tx := c.Begin(context.Background())
	assert.Same(t, tx, FromContext(ctx))
	_, err := c.Exec(ctx, read)
	require.NoError(t, err)
	_, err = c.Exec(ctx, insert)
	require.NoError(t, err)
	_, err = c.Exec(ctx, insert)
	require.NoError(t, err)
	_, err = c.Exec(ctx, read)
	require.NoError(t, err)
	require.Equal(t, 2, o.opened(), "one session per access mode")
	execs, _, _ := o.session(1).counts()
	assert.Equal(t, 3, execs, "reads follow the write session")

	nctx, inner := c.Begin(ctx)
	assert.Same(t, tx, inner)
	assert.Equal(t, 2, tx.Depth())
	require.NoError(t, inner.End(nctx, nil))
	_, commits, _ := o.session(1).counts()
	assert.Zero(t, commits, "inner levels do not commit")

	require.NoError(t, tx.End(ctx, nil))
	assert.True(t, tx.Done())
	_, commits, _ = o.session(1).counts()
	assert.Equal(t, 1, commits)
	_, commits, _ = o.session(0).counts()
	assert.Zero(t, commits, "sessions without writes are not committed")
	assert.Equal(t, Stats{MaxSize: DefaultMaxSize, Open: 2, Idle: 2}, p.Stats())

	_, err = tx.Exec(ctx, read)
	assert.ErrorIs(t, err, orb.ErrTxDone)
	// A finished transaction in the context starts a new one.
	_, tx2 := c.Begin(ctx)
	assert.NotSame(t, tx, tx2)
}

func TestTransactionRollback(t *testing.T) {
	ctx := context.Background()
	t.Run("End", func(t *testing.T) {
		o := &fakeOpener{}
		c := NewCoordinator(New(o))
		ctx, tx := c.Begin(ctx)
		_, err := c.Exec(ctx, insert)
		require.NoError(t, err)
		failure := errors.New("caller failed")
		assert.Equal(t, failure, tx.End(ctx, failure))
		_, commits, rollbacks := o.session(0).counts()
		assert.Zero(t, commits)
		assert.Positive(t, rollbacks)
	})
	t.Run("InnerLevel", func(t *testing.T) {
		o := &fakeOpener{}
		c := NewCoordinator(New(o))
		ctx, tx := c.Begin(ctx)
		_, err := c.Exec(ctx, insert)
		require.NoError(t, err)
		ictx, inner := c.Begin(ctx)
		require.Error(t, inner.End(ictx, errors.New("inner failed")))
		assert.Error(t, tx.End(ctx, nil))
		_, commits, _ := o.session(0).counts()
		assert.Zero(t, commits)
	})
	t.Run("Statement", func(t *testing.T) {
		dup := &orb.DuplicateEntryError{Key: "name", Value: "a8m"}
		o := &fakeOpener{setup: func(_ int, s *fakeSession) {
			s.errs = []error{nil, dup}
		}}
		p := New(o)
		c := NewCoordinator(p)
		ctx, tx := c.Begin(ctx)
		_, err := c.Exec(ctx, insert)
		require.NoError(t, err)
		_, err = c.Exec(ctx, insert)
		assert.True(t, orb.IsDuplicateEntry(err))
		assert.True(t, tx.Done(), "integrity errors roll the transaction back")
		_, _, rollbacks := o.session(0).counts()
		assert.Positive(t, rollbacks)
		assert.Equal(t, Stats{MaxSize: DefaultMaxSize, Open: 1, Idle: 1}, p.Stats())

		_, err = c.Exec(ctx, insert)
		assert.ErrorIs(t, err, orb.ErrTxDone)
		assert.ErrorIs(t, tx.End(ctx, nil), dup)
	})
	t.Run("Commit", func(t *testing.T) {
		o := &fakeOpener{setup: func(_ int, s *fakeSession) {
			s.commitErr = &orb.ConnectionLostError{Err: errors.New("reset by peer")}
		}}
		c := NewCoordinator(New(o))
		ctx, tx := c.Begin(ctx)
		_, err := c.Exec(ctx, insert)
		require.NoError(t, err)
		err = tx.End(ctx, nil)
		assert.True(t, orb.IsConnectionLost(err))
		_, _, rollbacks := o.session(0).counts()
		assert.Positive(t, rollbacks)
	})
	t.Run("Cancel", func(t *testing.T) {
		o := &fakeOpener{}
		c := NewCoordinator(New(o))
		ctx, tx := c.Begin(ctx)
		ctx, _ = c.Begin(ctx)
		_, err := c.Exec(ctx, insert)
		require.NoError(t, err)
		require.NoError(t, tx.Cancel(ctx))
		assert.True(t, tx.Done())
		assert.Zero(t, tx.Depth())
		_, commits, rollbacks := o.session(0).counts()
		assert.Zero(t, commits)
		assert.Positive(t, rollbacks)
		require.NoError(t, tx.End(ctx, nil))
	})
}

func TestTransactionRetry(t *testing.T) {
	ctx := context.Background()
	t.Run("BeforeWrite", func(t *testing.T) {
		o := &fakeOpener{setup: func(n int, s *fakeSession) {
			if n == 0 {
				s.errs = []error{lost()}
			}
		}}
		c := NewCoordinator(New(o, WithBackoff(time.Millisecond)))
		ctx, tx := c.Begin(ctx)
		_, err := c.Exec(ctx, insert)
		require.NoError(t, err)
		require.NoError(t, tx.End(ctx, nil))
		assert.Equal(t, 2, o.opened())
		_, commits, _ := o.session(1).counts()
		assert.Equal(t, 1, commits)
	})
	t.Run("AfterWrite", func(t *testing.T) {
		o := &fakeOpener{setup: func(_ int, s *fakeSession) {
			s.errs = []error{nil, lost()}
		}}
		c := NewCoordinator(New(o, WithBackoff(time.Millisecond)))
		ctx, tx := c.Begin(ctx)
		_, err := c.Exec(ctx, insert)
		require.NoError(t, err)
		_, err = c.Exec(ctx, insert)
		assert.True(t, orb.IsConnectionLost(err), "writes of a lost session cannot be replayed")
		assert.Equal(t, 1, o.opened())
		assert.True(t, tx.Done())
	})
}

func TestTransactionOnCommit(t *testing.T) {
	ctx := context.Background()
	c := NewCoordinator(New(&fakeOpener{}))

	var calls int
	ctx1, tx := c.Begin(ctx)
	ictx, inner := c.Begin(ctx1)
	inner.OnCommit(ictx, func(context.Context) { calls++ })
	require.NoError(t, inner.End(ictx, nil))
	assert.Zero(t, calls, "inner levels do not commit")
	require.NoError(t, tx.End(ctx1, nil))
	assert.Equal(t, 1, calls)
	tx.OnCommit(ctx1, func(context.Context) { calls++ })
	assert.Equal(t, 2, calls, "a committed transaction runs the hook at once")

	ctx2, tx := c.Begin(ctx)
	tx.OnCommit(ctx2, func(context.Context) { calls++ })
	require.Error(t, tx.End(ctx2, errors.New("abort")))
	tx.OnCommit(ctx2, func(context.Context) { calls++ })
	assert.Equal(t, 2, calls, "rolled back transactions drop their hooks")
}

func TestTransactionReadThenWrite(t *testing.T) {
	o := &fakeOpener{}
	p := New(o, WithMaxSize(1))
	c := NewCoordinator(p)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ctx, tx := c.Begin(ctx)
	_, err := c.Exec(ctx, read)
	require.NoError(t, err)
	_, err = c.Exec(ctx, insert)
	require.NoError(t, err, "the read session gives its permit back")
	_, err = c.Exec(ctx, read)
	require.NoError(t, err)
	require.NoError(t, tx.End(ctx, nil))

	require.Equal(t, 2, o.opened())
	execs, commits, _ := o.session(1).counts()
	assert.Equal(t, 2, execs, "reads follow the write session")
	assert.Equal(t, 1, commits)
	assert.Equal(t, Stats{MaxSize: 1, Open: 1, Idle: 1}, p.Stats())
}

func TestTransactionShared(t *testing.T) {
	block := make(chan struct{})
	o := &fakeOpener{setup: func(_ int, s *fakeSession) {
		s.block = block
	}}
	c := NewCoordinator(New(o))
	ctx, tx := c.Begin(context.Background())

	done := make(chan error)
	go func() {
		_, err := c.Exec(ctx, insert)
		done <- err
	}()
	require.Eventually(t, func() bool {
		return o.opened() == 1 && func() bool { e, _, _ := o.session(0).counts(); return e == 1 }()
	}, time.Second, 5*time.Millisecond)

	_, err := c.Exec(ctx, read)
	assert.ErrorIs(t, err, orb.ErrTxShared)

	require.NoError(t, c.Interrupt(ctx))
	select {
	case err := <-done:
		assert.True(t, orb.IsInterruption(err))
	case <-time.After(time.Second):
		t.Fatal("statement was not interrupted")
	}
	assert.True(t, tx.Done())
	assert.Equal(t, 1, o.session(0).cancels)
}

// A transaction context passed to another goroutine and used one statement
// at a time is not detected; only overlapping statements are.
func TestTransactionHandOff(t *testing.T) {
	o := &fakeOpener{}
	c := NewCoordinator(New(o))
	ctx, tx := c.Begin(context.Background())
	_, err := c.Exec(ctx, insert)
	require.NoError(t, err)

	done := make(chan error)
	go func() {
		_, err := c.Exec(ctx, insert)
		done <- err
	}()
	require.NoError(t, <-done)
	require.NoError(t, tx.End(ctx, nil))
	execs, commits, _ := o.session(0).counts()
	assert.Equal(t, 2, execs)
	assert.Equal(t, 1, commits)
}

func TestTransactionSQL(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	c := NewCoordinator(New(sql.OpenDB(dialect.Postgres, db)))

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "users"`).WithArgs("a8m").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "users"`).WithArgs(true).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	ctx, tx := c.Begin(context.Background())
	_, err = c.Exec(ctx, insert)
	require.NoError(t, err)
	res, err := c.Exec(ctx, &dialect.Statement{SQL: `UPDATE "users" SET "active" = $1`, Args: []any{true}, Write: true})
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.RowsAffected)
	require.NoError(t, tx.End(ctx, nil))
	require.NoError(t, c.Pool().CloseAll(ctx))
	require.NoError(t, mock.ExpectationsWereMet())
}
