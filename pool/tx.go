package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/syssam/orb"
	"github.com/syssam/orb/dialect"
)

// Coordinator runs statements inside or outside the transactions carried
// by their context.
type Coordinator struct {
	pool *Pool
}

// NewCoordinator returns a Coordinator over p.
func NewCoordinator(p *Pool) *Coordinator {
	return &Coordinator{pool: p}
}

// Pool returns the pool of the coordinator.
func (c *Coordinator) Pool() *Pool { return c.pool }

type txKey struct{}

// NewContext returns a context carrying tx.
func NewContext(ctx context.Context, tx *Transaction) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// FromContext returns the transaction carried by ctx, or nil.
func FromContext(ctx context.Context) *Transaction {
	tx, _ := ctx.Value(txKey{}).(*Transaction)
	return tx
}

// Begin starts a transaction and returns the context carrying it. Within
// a context that already carries a running transaction of the same pool,
// Begin nests: the transaction is returned again and only the outermost
// End finishes it.
func (c *Coordinator) Begin(ctx context.Context) (context.Context, *Transaction) {
	if tx := FromContext(ctx); tx != nil && tx.pool == c.pool && tx.nest() {
		return ctx, tx
	}
	tx := &Transaction{pool: c.pool, depth: 1, sessions: make(map[bool]dialect.Session)}
	return NewContext(ctx, tx), tx
}

// Exec runs stmt in the transaction of ctx, or on a session of its own
// when ctx carries none.
func (c *Coordinator) Exec(ctx context.Context, stmt *dialect.Statement) (*dialect.Result, error) {
	if tx := FromContext(ctx); tx != nil && tx.pool == c.pool {
		return tx.Exec(ctx, stmt)
	}
	return c.pool.Exec(ctx, stmt)
}

// Interrupt cancels the statement running in the transaction of ctx.
func (c *Coordinator) Interrupt(ctx context.Context) error {
	tx := FromContext(ctx)
	if tx == nil {
		return nil
	}
	return tx.Interrupt()
}

// Transaction groups the statements of one execution context. It pins one
// session per access mode and commits the sessions that wrote when the
// outermost level ends.
type Transaction struct {
	pool *Pool
	busy atomic.Bool

	mu       sync.Mutex
	depth    int
	sessions map[bool]dialect.Session
	dirty    []dialect.Session
	// abort marks a transaction an inner level ended with an error.
	abort     bool
	done      bool
	committed bool
	err       error
	onCommit  []func(context.Context)
}

func (t *Transaction) nest() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return false
	}
	t.depth++
	return true
}

// OnCommit registers fn to run after the outermost level committed. The
// functions are dropped when the transaction rolls back. On a finished
// transaction fn runs at once if it committed.
func (t *Transaction) OnCommit(ctx context.Context, fn func(context.Context)) {
	t.mu.Lock()
	if !t.done {
		t.onCommit = append(t.onCommit, fn)
		t.mu.Unlock()
		return
	}
	committed := t.committed
	t.mu.Unlock()
	if committed {
		fn(ctx)
	}
}

// Depth returns the nesting level of the transaction, zero once finished.
func (t *Transaction) Depth() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.depth
}

// Done reports if the transaction was committed or rolled back.
func (t *Transaction) Done() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

// Exec runs stmt on the session the transaction pinned for its access
// mode. Reads run on the write session once there is one. A lost
// connection is replayed only while the session holds no writes; every
// other failure rolls the transaction back.
func (t *Transaction) Exec(ctx context.Context, stmt *dialect.Statement) (*dialect.Result, error) {
	if stmt.Noop {
		return &dialect.Result{}, nil
	}
	if !t.busy.CompareAndSwap(false, true) {
		return nil, &orb.TxSharedError{Diagnostic: orb.Diagnostic{SQL: stmt.SQL, Args: stmt.Args}}
	}
	defer t.busy.Store(false)

	backoff := t.pool.opts.backoff
	for attempt := 0; ; attempt++ {
		s, err := t.session(ctx, stmt.Write)
		if err != nil {
			return nil, t.fail(ctx, err)
		}
		res, err := s.Exec(ctx, stmt)
		if err == nil {
			if stmt.Write {
				t.markDirty(s)
			}
			return res, nil
		}
		if !orb.IsRetryable(err) || t.isDirty(s) || attempt >= t.pool.opts.retries {
			return nil, t.fail(ctx, err)
		}
		t.unpin(s)
		t.pool.Return(s)
		t.pool.metrics.retries.Inc()
		t.pool.opts.logger.WarnContext(ctx, "pool: connection lost in transaction, retrying", "attempt", attempt+1, "error", err)
		if err := sleep(ctx, backoff); err != nil {
			return nil, t.fail(ctx, err)
		}
		backoff *= 2
	}
}

// session returns the pinned session for the access mode, checking one
// out on first use. The read session holds no writes, so it goes back to
// the pool before the write session is checked out; a transaction never
// holds more than one pool permit.
func (t *Transaction) session(ctx context.Context, write bool) (dialect.Session, error) {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return nil, orb.ErrTxDone
	}
	if s, ok := t.sessions[true]; ok {
		t.mu.Unlock()
		return s, nil
	}
	if s, ok := t.sessions[write]; ok {
		t.mu.Unlock()
		return s, nil
	}
	read, hasRead := t.sessions[false]
	if write && hasRead {
		delete(t.sessions, false)
	}
	t.mu.Unlock()
	if write && hasRead {
		t.pool.Return(read)
	}
	s, err := t.pool.Checkout(ctx, write)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.sessions[write] = s
	t.mu.Unlock()
	return s, nil
}

func (t *Transaction) unpin(s dialect.Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for w, ps := range t.sessions {
		if ps == s {
			delete(t.sessions, w)
		}
	}
}

func (t *Transaction) markDirty(s dialect.Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, d := range t.dirty {
		if d == s {
			return
		}
	}
	t.dirty = append(t.dirty, s)
}

func (t *Transaction) isDirty(s dialect.Session) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, d := range t.dirty {
		if d == s {
			return true
		}
	}
	return false
}

// fail rolls the transaction back after err and returns err, joined with
// the rollback failure if any. A finished transaction is left as is.
func (t *Transaction) fail(ctx context.Context, err error) error {
	if errors.Is(err, orb.ErrTxDone) {
		return err
	}
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return err
	}
	t.done, t.err = true, err
	t.mu.Unlock()
	if rerr := t.rollback(ctx); rerr != nil {
		return errors.Join(err, rerr)
	}
	return err
}

// End ends one nesting level. The outermost level commits the sessions
// that wrote, or rolls them back when err is not nil, when an inner level
// ended with an error or a statement failed. If a commit fails, every
// session that wrote is rolled back and the commit error is returned.
func (t *Transaction) End(ctx context.Context, err error) error {
	t.mu.Lock()
	if t.done {
		t.depth = 0
		if err == nil {
			err = t.err
		}
		t.mu.Unlock()
		return err
	}
	t.depth--
	if t.depth > 0 {
		if err != nil {
			t.abort = true
		}
		t.mu.Unlock()
		return err
	}
	t.done = true
	abort := t.abort
	t.mu.Unlock()

	if err != nil || abort {
		if rerr := t.rollback(ctx); rerr != nil {
			err = errors.Join(err, rerr)
		}
		if err == nil {
			err = errors.New("pool: transaction rolled back by an inner level")
		}
		t.setErr(err)
		return err
	}
	if cerr := t.commit(ctx); cerr != nil {
		t.setErr(cerr)
		return cerr
	}
	t.mu.Lock()
	t.committed = true
	hooks := t.onCommit
	t.onCommit = nil
	t.mu.Unlock()
	for _, fn := range hooks {
		fn(ctx)
	}
	return nil
}

func (t *Transaction) setErr(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.err = err
}

// Cancel rolls the transaction back whatever its nesting level.
func (t *Transaction) Cancel(ctx context.Context) error {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return nil
	}
	t.done, t.depth = true, 0
	t.mu.Unlock()
	return t.rollback(ctx)
}

// Interrupt cancels the statement running on the pinned sessions. It may
// be called from any goroutine.
func (t *Transaction) Interrupt() error {
	t.mu.Lock()
	sessions := make([]dialect.Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		sessions = append(sessions, s)
	}
	t.mu.Unlock()
	var errs []error
	for _, s := range sessions {
		errs = append(errs, s.Cancel())
	}
	return errors.Join(errs...)
}

func (t *Transaction) commit(ctx context.Context) error {
	t.mu.Lock()
	dirty := append([]dialect.Session(nil), t.dirty...)
	t.mu.Unlock()
	for _, s := range dirty {
		if err := s.Commit(ctx); err != nil {
			for _, d := range dirty {
				if rerr := d.Rollback(ctx); rerr != nil {
					err = errors.Join(err, &orb.RollbackError{Err: rerr})
				}
			}
			t.release(ctx)
			return err
		}
	}
	t.release(ctx)
	return nil
}

func (t *Transaction) rollback(ctx context.Context) error {
	t.mu.Lock()
	dirty := append([]dialect.Session(nil), t.dirty...)
	t.mu.Unlock()
	var errs []error
	for _, s := range dirty {
		if err := s.Rollback(ctx); err != nil {
			errs = append(errs, &orb.RollbackError{Err: err})
		}
	}
	t.release(ctx)
	return errors.Join(errs...)
}

// release rolls back what the pinned sessions still hold and returns them
// to the pool.
func (t *Transaction) release(ctx context.Context) {
	t.mu.Lock()
	sessions := t.sessions
	t.sessions = make(map[bool]dialect.Session)
	t.dirty = nil
	t.mu.Unlock()
	for _, s := range sessions {
		if s.Writable() && !s.IsClosed() {
			if err := s.Rollback(ctx); err != nil {
				t.pool.opts.logger.WarnContext(ctx, "pool: release session", "error", err)
			}
		}
		t.pool.Return(s)
	}
}
