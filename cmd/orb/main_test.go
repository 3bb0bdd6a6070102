package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/orb/query"
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

func setup(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "schemas.yaml"), []byte(schemasYAML), 0o600))
	path := filepath.Join(dir, "orb.yaml")
	doc := "database:\n" +
		"  driver: sqlite\n" +
		"  dsn: file:" + filepath.Join(dir, "orb.db") + "\n" +
		"  pool_size: 1\n" +
		"log:\n" +
		"  level: error\n" +
		"schemas: schemas.yaml\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	return path
}

func run(t *testing.T, config string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--config", config}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMigrate(t *testing.T) {
	config := setup(t)

	out, err := run(t, config, "diff")
	require.NoError(t, err)
	assert.Contains(t, out, `CREATE TABLE IF NOT EXISTS "users"`)
	assert.Contains(t, out, `CREATE TABLE IF NOT EXISTS "posts"`)

	out, err = run(t, config, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "applied")

	out, err = run(t, config, "migrate")
	require.NoError(t, err)
	assert.Equal(t, "database is up to date\n", out)

	out, err = run(t, config, "diff")
	require.NoError(t, err)
	assert.Contains(t, out, "-- database is up to date")

	out, err = run(t, config, "inspect")
	require.NoError(t, err)
	assert.Contains(t, out, "users\n")
	assert.Contains(t, out, "username")
	assert.Contains(t, out, "posts\n")
}

func TestDiffDir(t *testing.T) {
	config := setup(t)
	dir := filepath.Join(t.TempDir(), "migrations")
	require.NoError(t, os.Mkdir(dir, 0o755))

	_, err := run(t, config, "diff", "--dir", dir, "--name", "init")
	require.NoError(t, err)
	files, err := filepath.Glob(filepath.Join(dir, "*_init.sql"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	b, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Contains(t, string(b), `CREATE TABLE IF NOT EXISTS "users"`)
	assert.FileExists(t, filepath.Join(dir, "atlas.sum"))
}

func TestCompile(t *testing.T) {
	config := setup(t)

	out, err := run(t, config, "compile", "Post", "author.username", "is", "a8m", "--limit", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "SELECT ")
	assert.Contains(t, out, `"posts"`)
	assert.Contains(t, out, "LIMIT")
	assert.Contains(t, out, "-- args: [a8m")

	out, err = run(t, config, "compile", "User", "username", "is_in", "")
	require.NoError(t, err)
	assert.Equal(t, "-- the filter matches no rows\n", out)

	out, err = run(t, config, "compile", "User", "username", "is", "a8m", "--count")
	require.NoError(t, err)
	assert.Contains(t, out, "COUNT(")

	_, err = run(t, config, "compile", "User", "username", "like", "a8m")
	require.Error(t, err)
	_, err = run(t, config, "compile", "Group", "name", "is", "x")
	require.Error(t, err)
}

func TestGen(t *testing.T) {
	config := setup(t)
	dir := filepath.Join(t.TempDir(), "model")

	out, err := run(t, config, "gen", "--out", dir)
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(dir, "user.go"))
	assert.FileExists(t, filepath.Join(dir, "post.go"))
	assert.FileExists(t, filepath.Join(dir, "orb.go"))
}

func TestMissingConfig(t *testing.T) {
	_, err := run(t, filepath.Join(t.TempDir(), "orb.yaml"), "migrate")
	require.Error(t, err)
}

func TestOpValue(t *testing.T) {
	tests := []struct {
		op      query.Op
		raw     string
		want    any
		wantErr bool
	}{
		{op: query.OpIs, raw: "a8m", want: "a8m"},
		{op: query.OpIs, raw: "42", want: int64(42)},
		{op: query.OpIs, raw: "1.5", want: 1.5},
		{op: query.OpIs, raw: "true", want: true},
		{op: query.OpIs, raw: "null", want: nil},
		{op: query.OpBetween, raw: "1,10", want: []any{int64(1), int64(10)}},
		{op: query.OpBetween, raw: "1", wantErr: true},
		{op: query.OpIsIn, raw: "a, b", want: []any{"a", "b"}},
		{op: query.OpIsNotIn, raw: "", want: []any{}},
	}
	for _, tt := range tests {
		t.Run(tt.op.String()+"/"+tt.raw, func(t *testing.T) {
			got, err := opValue(tt.op, tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWatch(t *testing.T) {
	file := filepath.Join(t.TempDir(), "schemas.yaml")
	require.NoError(t, os.WriteFile(file, []byte(schemasYAML), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	calls := make(chan struct{}, 16)
	done := make(chan error, 1)
	go func() {
		done <- watch(ctx, slog.New(slog.NewTextHandler(io.Discard, nil)), []string{file}, func() error {
			calls <- struct{}{}
			return nil
		})
	}()
	wait := func() {
		t.Helper()
		select {
		case <-calls:
		case <-time.After(5 * time.Second):
			t.Fatal("watch did not run")
		}
	}
	wait()
	require.NoError(t, os.WriteFile(file, []byte(schemasYAML+"\n"), 0o600))
	wait()
	cancel()
	require.NoError(t, <-done)
}
