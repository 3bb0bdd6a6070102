package sql

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/syssam/orb/dialect"
)

// QueryStats holds statement execution statistics.
type QueryStats struct {
	// TotalQueries is the total number of row returning statements executed.
	TotalQueries atomic.Int64
	// TotalExecs is the total number of other statements executed.
	TotalExecs atomic.Int64
	// TotalDuration is the total time spent executing statements.
	TotalDuration atomic.Int64 // nanoseconds
	// SlowQueries is the count of statements logged above debug level.
	SlowQueries atomic.Int64
	// Errors is the count of failed statements.
	Errors atomic.Int64
}

// Stats returns a snapshot of the current statistics.
func (s *QueryStats) Stats() StatsSnapshot {
	return StatsSnapshot{
		TotalQueries:  s.TotalQueries.Load(),
		TotalExecs:    s.TotalExecs.Load(),
		TotalDuration: time.Duration(s.TotalDuration.Load()),
		SlowQueries:   s.SlowQueries.Load(),
		Errors:        s.Errors.Load(),
	}
}

// Reset resets all statistics to zero.
func (s *QueryStats) Reset() {
	s.TotalQueries.Store(0)
	s.TotalExecs.Store(0)
	s.TotalDuration.Store(0)
	s.SlowQueries.Store(0)
	s.Errors.Store(0)
}

// StatsSnapshot is a point-in-time snapshot of query statistics.
type StatsSnapshot struct {
	TotalQueries  int64
	TotalExecs    int64
	TotalDuration time.Duration
	SlowQueries   int64
	Errors        int64
}

// AvgQueryDuration returns the average statement duration.
func (s StatsSnapshot) AvgQueryDuration() time.Duration {
	total := s.TotalQueries + s.TotalExecs
	if total == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(total)
}

// String returns a human-readable summary of the statistics.
func (s StatsSnapshot) String() string {
	return fmt.Sprintf(
		"queries=%d execs=%d duration=%s avg=%s slow=%d errors=%d",
		s.TotalQueries, s.TotalExecs, s.TotalDuration, s.AvgQueryDuration(),
		s.SlowQueries, s.Errors,
	)
}

// SlowLevels are the durations from which an executed statement is logged
// at warn and error level. Faster statements are logged at debug level.
type SlowLevels struct {
	Warn  time.Duration
	Error time.Duration
}

// DefaultSlowLevels log statements at warn from 3s and at error from 6s.
var DefaultSlowLevels = SlowLevels{Warn: 3 * time.Second, Error: 6 * time.Second}

// Level returns the log level of a statement that ran for d.
func (l SlowLevels) Level(d time.Duration) slog.Level {
	switch {
	case l.Error > 0 && d >= l.Error:
		return slog.LevelError
	case l.Warn > 0 && d >= l.Warn:
		return slog.LevelWarn
	default:
		return slog.LevelDebug
	}
}

// record accounts one executed statement and logs it at the level of its
// duration.
func (s *QueryStats) record(ctx context.Context, logger *slog.Logger, levels SlowLevels, stmt *dialect.Statement, d time.Duration, err error) {
	if stmt.Rows {
		s.TotalQueries.Add(1)
	} else {
		s.TotalExecs.Add(1)
	}
	s.TotalDuration.Add(int64(d))
	if err != nil {
		s.Errors.Add(1)
	}
	level := levels.Level(d)
	if level > slog.LevelDebug {
		s.SlowQueries.Add(1)
	}
	if !logger.Enabled(ctx, level) {
		return
	}
	attrs := []slog.Attr{
		slog.String("sql", stmt.SQL),
		slog.Any("args", stmt.Args),
		slog.Duration("duration", d),
	}
	if err != nil {
		attrs = append(attrs, slog.Any("error", err))
	}
	logger.LogAttrs(ctx, level, "execute statement", attrs...)
}
