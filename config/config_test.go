package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/syssam/orb/cache"
	"github.com/syssam/orb/dialect"
	"github.com/syssam/orb/pool"
	"github.com/syssam/orb/query"
	"github.com/syssam/orb/schema"
)

const schemasYAML = `
schemas:
  - name: User
    columns:
      - {name: username, type: string, size: 64, flags: [required, unique]}
  - name: Post
    columns:
      - {name: title, type: string}
      - {name: author, type: reference, ref: User}
`

func TestParseDefaults(t *testing.T) {
	c, err := Parse([]byte(`
database:
  driver: pgx
  dsn: postgres://localhost/orb
`))
	require.NoError(t, err)
	assert.Equal(t, dialect.Postgres, c.Database.Dialect)
	assert.Equal(t, pool.DefaultMaxSize, c.Database.PoolSize)
	assert.Equal(t, pool.DefaultRetries, c.Database.Retries)
	assert.Equal(t, pool.DefaultBackoff, c.Database.Backoff)
	assert.Equal(t, "auto", c.Database.Inheritance)
	assert.Equal(t, "none", c.Cache.Backend)
	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, "text", c.Log.Format)
	st, err := c.Database.Strategy()
	require.NoError(t, err)
	assert.Equal(t, schema.Auto, st)
}

func TestParse(t *testing.T) {
	t.Setenv("ORB_TEST_DSN", "file:orb.db")
	c, err := Parse([]byte(`
database:
  driver: sqlite
  dsn: ${ORB_TEST_DSN}
  namespace: app
  statement_timeout: 2s
  inheritance: shared_key
cache:
  backend: memory
  ttl: 1m
  disabled: [Session]
log:
  level: debug
  format: json
`))
	require.NoError(t, err)
	assert.Equal(t, "file:orb.db", c.Database.DSN)
	assert.Equal(t, dialect.SQLite, c.Database.Dialect)
	assert.Equal(t, 2*time.Second, c.Database.StatementTimeout)
	assert.Equal(t, time.Minute, c.Cache.TTL)
	assert.Equal(t, []string{"Session"}, c.Cache.Disabled)
	st, err := c.Database.Strategy()
	require.NoError(t, err)
	assert.Equal(t, schema.SharedKey, st)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want []string
	}{
		{
			name: "empty",
			doc:  "",
			want: []string{"database"},
		},
		{
			name: "unknown key",
			doc:  "database: {driver: sqlite, dsn: x}\nverbose: true\n",
			want: []string{"decode", "verbose"},
		},
		{
			name: "driver",
			doc:  "database: {driver: oracle, dsn: x}\n",
			want: []string{`database.driver: failed "oneof"`},
		},
		{
			name: "missing dsn",
			doc:  "database: {driver: mysql}\n",
			want: []string{`database.dsn: failed "required"`},
		},
		{
			name: "dialect mismatch",
			doc:  "database: {driver: sqlite, dialect: postgres, dsn: x}\n",
			want: []string{`database.dialect: failed "driver_dialect" (sqlite)`},
		},
		{
			name: "redis without addr",
			doc:  "database: {driver: sqlite, dsn: x}\ncache: {backend: redis}\n",
			want: []string{`cache.redis.addr: failed "required_with_redis"`},
		},
		{
			name: "log level",
			doc:  "database: {driver: sqlite, dsn: x}\nlog: {level: trace}\n",
			want: []string{`log.level: failed "oneof"`},
		},
		{
			name: "negative pool size",
			doc:  "database: {driver: sqlite, dsn: x, pool_size: -1}\n",
			want: []string{`database.pool_size: failed "gte" (0)`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			for _, w := range tt.want {
				assert.Contains(t, err.Error(), w)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "schemas.yaml"), []byte(schemasYAML), 0o600))
	path := filepath.Join(dir, "orb.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database: {driver: sqlite, dsn: x}\nschemas: schemas.yaml\n"), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "schemas.yaml"), c.Schemas)
	sys, err := c.System()
	require.NoError(t, err)
	_, err = sys.Resolve("Post")
	require.NoError(t, err)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	c.Schemas = ""
	_, err = c.System()
	require.Error(t, err)
}

func TestPoolOptions(t *testing.T) {
	db := Database{PoolSize: 3, Retries: -1, IdleMax: 2}
	assert.Len(t, db.PoolOptions(nil), 5)
	db.IdleMax = 0
	assert.Len(t, db.PoolOptions(nil), 4)
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	log := Log{Level: "warn", Format: "json"}.Logger(&buf)
	log.Info("hidden")
	log.Warn("shown", "k", 1)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	buf.Reset()
	log = Log{Level: "debug", Format: "text"}.Logger(&buf)
	log.Debug("trace")
	assert.Contains(t, buf.String(), "msg=trace")
}

func TestCacheOpen(t *testing.T) {
	ctx := context.Background()
	t.Run("None", func(t *testing.T) {
		c, err := Cache{Backend: "none"}.Open(ctx, nil)
		require.NoError(t, err)
		assert.Nil(t, c)
	})
	t.Run("Memory", func(t *testing.T) {
		c, err := Cache{Backend: "memory", TTL: time.Minute}.Open(ctx, nil)
		require.NoError(t, err)
		require.NotNil(t, c)
		assert.IsType(t, &cache.Memory{}, c.Store())
		assert.Equal(t, time.Minute, c.Records("User").TTL())
	})
	t.Run("Redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		c, err := Cache{
			Backend:  "redis",
			Disabled: []string{"Session"},
			Redis:    Redis{Addr: mr.Addr(), Prefix: "orb:"},
		}.Open(ctx, nil)
		require.NoError(t, err)
		require.NotNil(t, c)
		r, ok := c.Store().(*cache.Redis)
		require.True(t, ok)
		t.Cleanup(func() { r.Close() })
		assert.False(t, c.Records("Session").Enabled())
		require.NoError(t, r.Set(ctx, "k", []byte("v"), 0))
		assert.True(t, mr.Exists("orb:k"))
	})
	t.Run("RedisDown", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()
		_, err := Cache{Backend: "redis", Redis: Redis{Addr: addr}}.Open(ctx, nil)
		require.Error(t, err)
	})
}

func TestEngine(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "schemas.yaml"), []byte(schemasYAML), 0o600))
	path := filepath.Join(dir, "orb.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  driver: sqlite
  dsn: file:config_engine?mode=memory&cache=shared
  pool_size: 1
cache:
  backend: memory
schemas: schemas.yaml
`), 0o600))
	c, err := Load(path)
	require.NoError(t, err)

	log := c.Log.Logger(&bytes.Buffer{})
	e, drv, err := c.Engine(ctx, log)
	require.NoError(t, err)
	t.Cleanup(func() {
		e.Close(ctx)
		drv.Close()
	})
	require.NotNil(t, e.Cache())
	_, err = e.Sync(ctx)
	require.NoError(t, err)

	keys, err := e.Insert(ctx, "User", map[string]any{"username": "a8m"})
	require.NoError(t, err)
	require.Len(t, keys, 1)
	_, err = e.Insert(ctx, "Post", map[string]any{"title": "hello", "author": keys[0]})
	require.NoError(t, err)
	n, err := e.Count(ctx, "Post", query.NewContext(query.Where(query.Q("author.username").Is("a8m"))))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
