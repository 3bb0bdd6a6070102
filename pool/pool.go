// Package pool bounds the backend sessions shared by concurrent callers and
// coordinates the transactions running on them.
//
// A pooled session moves from idle to checked out and back, or to closed
// when it reported itself closed or the pool shut down. Statements that
// fail with a lost connection are replayed on a fresh session.
package pool

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/syssam/orb"
	"github.com/syssam/orb/dialect"
)

// Default pool settings.
const (
	DefaultMaxSize = 10
	DefaultRetries = 3
	DefaultBackoff = 100 * time.Millisecond
)

// Option configures a Pool.
type Option func(*options)

type options struct {
	maxSize  int
	idleMax  int
	retries  int
	backoff  time.Duration
	logger   *slog.Logger
	registry prometheus.Registerer
}

// WithMaxSize bounds the number of open sessions.
func WithMaxSize(n int) Option {
	return func(o *options) { o.maxSize = n }
}

// WithIdleMax bounds the number of idle sessions kept open. Defaults to
// the maximum size.
func WithIdleMax(n int) Option {
	return func(o *options) { o.idleMax = n }
}

// WithRetries sets how many times a statement is replayed after a lost
// connection.
func WithRetries(n int) Option {
	return func(o *options) { o.retries = n }
}

// WithBackoff sets the delay before the first replay. The delay doubles
// on every further replay.
func WithBackoff(d time.Duration) Option {
	return func(o *options) { o.backoff = d }
}

// WithLogger sets the logger of pool events. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRegisterer registers the pool collectors with r.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *options) { o.registry = r }
}

// Pool hands out the sessions of an Opener to one caller at a time.
type Pool struct {
	opener  dialect.Opener
	opts    options
	sem     *semaphore.Weighted
	metrics *metrics

	mu     sync.Mutex
	idle   map[bool][]dialect.Session
	inUse  map[dialect.Session]struct{}
	open   int
	closed bool
}

// New returns a Pool opening its sessions with o.
func New(o dialect.Opener, opts ...Option) *Pool {
	p := &Pool{
		opener: o,
		opts: options{
			maxSize: DefaultMaxSize,
			retries: DefaultRetries,
			backoff: DefaultBackoff,
		},
		idle:  make(map[bool][]dialect.Session),
		inUse: make(map[dialect.Session]struct{}),
	}
	for _, opt := range opts {
		opt(&p.opts)
	}
	if p.opts.maxSize <= 0 {
		p.opts.maxSize = DefaultMaxSize
	}
	if p.opts.idleMax <= 0 || p.opts.idleMax > p.opts.maxSize {
		p.opts.idleMax = p.opts.maxSize
	}
	if p.opts.retries < 0 {
		p.opts.retries = 0
	}
	if p.opts.logger == nil {
		p.opts.logger = slog.Default()
	}
	p.sem = semaphore.NewWeighted(int64(p.opts.maxSize))
	p.metrics = newMetrics(p.opts.registry)
	return p
}

// Dialect returns the dialect of the pooled sessions.
func (p *Pool) Dialect() string { return p.opener.Dialect() }

// Checkout blocks until a session is free or the pool is below its
// maximum size, then returns an idle session or a new one. Every
// checked out session must be handed back with Return.
func (p *Pool) Checkout(ctx context.Context, write bool) (dialect.Session, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, ctxError(err)
	}
	s, err := p.checkout(ctx, write)
	if err != nil {
		p.sem.Release(1)
		return nil, err
	}
	p.metrics.checkouts.Inc()
	return s, nil
}

func (p *Pool) checkout(ctx context.Context, write bool) (dialect.Session, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, orb.ErrPoolClosed
	}
	for len(p.idle[write]) > 0 {
		n := len(p.idle[write]) - 1
		s := p.idle[write][n]
		p.idle[write] = p.idle[write][:n]
		if s.IsClosed() {
			p.open--
			p.metrics.discarded.Inc()
			continue
		}
		p.inUse[s] = struct{}{}
		p.observe()
		p.mu.Unlock()
		return s, nil
	}
	// The permit guarantees a free slot among the checked out sessions.
	// Idle sessions of the other access mode give theirs up.
	var evict dialect.Session
	if p.open >= p.opts.maxSize {
		if other := p.idle[!write]; len(other) > 0 {
			evict = other[0]
			p.idle[!write] = other[1:]
			p.open--
		}
	}
	p.open++
	p.observe()
	p.mu.Unlock()

	if evict != nil {
		if err := evict.Close(); err != nil {
			p.opts.logger.WarnContext(ctx, "pool: close evicted session", "error", err)
		}
	}
	s, err := p.opener.Open(ctx, write)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.open--
		p.observe()
		return nil, err
	}
	if p.closed {
		p.open--
		p.observe()
		return nil, errors.Join(orb.ErrPoolClosed, s.Close())
	}
	p.inUse[s] = struct{}{}
	p.observe()
	p.opts.logger.DebugContext(ctx, "pool: session opened", "write", write, "open", p.open)
	return s, nil
}

// Return hands a checked out session back. Sessions that report
// themselves closed are discarded, and so are sessions above the idle
// bound or returned to a closed pool.
func (p *Pool) Return(s dialect.Session) {
	p.mu.Lock()
	if _, ok := p.inUse[s]; !ok {
		p.mu.Unlock()
		return
	}
	delete(p.inUse, s)
	keep := !p.closed && !s.IsClosed() && p.idleLen() < p.opts.idleMax
	if keep {
		p.idle[s.Writable()] = append(p.idle[s.Writable()], s)
	} else {
		p.open--
	}
	p.observe()
	p.mu.Unlock()
	p.sem.Release(1)

	if keep {
		return
	}
	if s.IsClosed() {
		p.metrics.discarded.Inc()
		p.opts.logger.Debug("pool: session discarded")
		return
	}
	if err := s.Close(); err != nil {
		p.opts.logger.Warn("pool: close session", "error", err)
	}
}

// Discard closes a checked out session instead of returning it.
func (p *Pool) Discard(s dialect.Session) {
	p.mu.Lock()
	if _, ok := p.inUse[s]; !ok {
		p.mu.Unlock()
		return
	}
	delete(p.inUse, s)
	p.open--
	p.observe()
	p.mu.Unlock()
	p.sem.Release(1)
	p.metrics.discarded.Inc()
	if err := s.Close(); err != nil {
		p.opts.logger.Warn("pool: close discarded session", "error", err)
	}
}

// CloseAll closes the idle sessions and interrupts and closes the checked
// out ones. Later checkouts fail with orb.ErrPoolClosed.
func (p *Pool) CloseAll(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	var idle, busy []dialect.Session
	for _, ss := range p.idle {
		idle = append(idle, ss...)
	}
	p.idle = make(map[bool][]dialect.Session)
	p.open -= len(idle)
	for s := range p.inUse {
		busy = append(busy, s)
	}
	p.observe()
	p.mu.Unlock()

	var eg errgroup.Group
	for _, s := range idle {
		eg.Go(s.Close)
	}
	for _, s := range busy {
		eg.Go(func() error {
			return errors.Join(s.Cancel(), s.Close())
		})
	}
	err := eg.Wait()
	p.opts.logger.InfoContext(ctx, "pool: closed", "idle", len(idle), "in_use", len(busy))
	return err
}

// Stats is a snapshot of the pool state.
type Stats struct {
	MaxSize int
	Open    int
	Idle    int
	InUse   int
}

// Stats returns the current pool state.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		MaxSize: p.opts.maxSize,
		Open:    p.open,
		Idle:    p.idleLen(),
		InUse:   len(p.inUse),
	}
}

// Exec runs stmt on a session of its own: write statements are committed
// on success and rolled back on failure. A lost connection is replayed on
// a new session.
func (p *Pool) Exec(ctx context.Context, stmt *dialect.Statement) (*dialect.Result, error) {
	if stmt.Noop {
		return &dialect.Result{}, nil
	}
	var res *dialect.Result
	err := p.retry(ctx, func() error {
		s, err := p.Checkout(ctx, stmt.Write)
		if err != nil {
			return err
		}
		defer p.Return(s)
		res, err = s.Exec(ctx, stmt)
		if stmt.Write {
			if err == nil {
				err = s.Commit(ctx)
			}
			if err != nil {
				if rerr := s.Rollback(ctx); rerr != nil {
					err = errors.Join(err, &orb.RollbackError{Err: rerr})
				}
			}
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// retry runs fn until it succeeds, fails with an error that is not
// retryable, or ran out of retries.
func (p *Pool) retry(ctx context.Context, fn func() error) error {
	backoff := p.opts.backoff
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil || !orb.IsRetryable(err) || attempt >= p.opts.retries {
			return err
		}
		p.metrics.retries.Inc()
		p.opts.logger.WarnContext(ctx, "pool: connection lost, retrying", "attempt", attempt+1, "backoff", backoff, "error", err)
		if err := sleep(ctx, backoff); err != nil {
			return err
		}
		backoff *= 2
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctxError(ctx.Err())
	}
}

// ctxError classifies the error of a done context.
func ctxError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &orb.QueryTimeoutError{Err: err}
	}
	return &orb.InterruptionError{Err: err}
}

// idleLen requires p.mu.
func (p *Pool) idleLen() int {
	return len(p.idle[true]) + len(p.idle[false])
}

// observe requires p.mu.
func (p *Pool) observe() {
	p.metrics.sessions.WithLabelValues("idle").Set(float64(p.idleLen()))
	p.metrics.sessions.WithLabelValues("in_use").Set(float64(len(p.inUse)))
}
