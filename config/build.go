package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/syssam/orb/cache"
	"github.com/syssam/orb/dialect/sql"
	"github.com/syssam/orb/engine"
	"github.com/syssam/orb/pool"
	"github.com/syssam/orb/query"
	"github.com/syssam/orb/schema"
)

// Open opens the database driver. Statements are logged to log and bounded
// by the statement timeout.
func (db Database) Open(log *slog.Logger) (*sql.Driver, error) {
	opts := []sql.Option{sql.WithLogger(log)}
	if db.StatementTimeout > 0 {
		opts = append(opts, sql.WithStatementTimeout(db.StatementTimeout))
	}
	return sql.Open(db.Driver, db.DSN, opts...)
}

// PoolOptions returns the options of the session pool.
func (db Database) PoolOptions(log *slog.Logger) []pool.Option {
	opts := []pool.Option{
		pool.WithLogger(log),
		pool.WithMaxSize(db.PoolSize),
		pool.WithRetries(max(db.Retries, 0)),
		pool.WithBackoff(db.Backoff),
	}
	if db.IdleMax > 0 {
		opts = append(opts, pool.WithIdleMax(db.IdleMax))
	}
	return opts
}

// Strategy returns the storage of Auto inheritance chains.
func (db Database) Strategy() (schema.Strategy, error) {
	return schema.ParseStrategy(db.Inheritance)
}

// Open builds the record cache. It returns nil for the "none" backend.
func (c Cache) Open(ctx context.Context, log *slog.Logger) (*cache.Cache, error) {
	opts := []cache.Option{cache.WithLogger(log), cache.WithDisabled(c.Disabled...)}
	if c.TTL > 0 {
		opts = append(opts, cache.WithTTL(c.TTL))
	}
	switch c.Backend {
	case "memory":
		return cache.New(cache.NewMemory(c.Size), opts...), nil
	case "redis":
		var ropts []cache.RedisOption
		if c.Redis.Prefix != "" {
			ropts = append(ropts, cache.WithPrefix(c.Redis.Prefix))
		}
		r, err := cache.DialRedis(ctx, cache.RedisOptions{
			Addr:     c.Redis.Addr,
			Username: c.Redis.Username,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
		}, ropts...)
		if err != nil {
			return nil, err
		}
		return cache.New(r, opts...), nil
	}
	return nil, nil
}

// Logger returns the logger writing to w.
func (l Log) Logger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		level = slog.LevelInfo
	}
	hopts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(l.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

// System loads the schema definitions file.
func (c *Config) System() (*schema.System, error) {
	if c.Schemas == "" {
		return nil, fmt.Errorf("config: no schemas file")
	}
	f, err := os.Open(c.Schemas)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	defer f.Close()
	sys := schema.NewSystem()
	if err := schema.Load(f, sys); err != nil {
		return nil, fmt.Errorf("config: %s: %w", c.Schemas, err)
	}
	return sys, nil
}

// Engine opens the database, the cache and the schema system and returns
// the engine over them with its driver. Closing the engine releases its
// sessions; the caller closes the driver.
func (c *Config) Engine(ctx context.Context, log *slog.Logger) (*engine.Engine, *sql.Driver, error) {
	sys, err := c.System()
	if err != nil {
		return nil, nil, err
	}
	st, err := c.Database.Strategy()
	if err != nil {
		return nil, nil, err
	}
	rc, err := c.Cache.Open(ctx, log)
	if err != nil {
		return nil, nil, err
	}
	drv, err := c.Database.Open(log)
	if err != nil {
		return nil, nil, err
	}
	opts := []engine.Option{
		engine.WithLogger(log),
		engine.WithInheritance(st),
		engine.WithPoolOptions(c.Database.PoolOptions(log)...),
	}
	if rc != nil {
		opts = append(opts, engine.WithCache(rc))
	}
	if c.Database.BatchSize > 0 {
		opts = append(opts, engine.WithMaxBatch(c.Database.BatchSize))
	}
	if ns := c.Database.Namespace; ns != "" {
		opts = append(opts, engine.WithDefaults(query.Namespace(ns)))
	}
	e, err := engine.Open(drv, sys, opts...)
	if err != nil {
		drv.Close()
		return nil, nil, err
	}
	return e, drv, nil
}
