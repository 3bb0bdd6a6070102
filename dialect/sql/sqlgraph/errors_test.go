package sqlgraph

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/orb"
	"github.com/syssam/orb/dialect"
)

func TestClassify(t *testing.T) {
	insert := &dialect.Statement{SQL: `INSERT INTO "users" ("username") VALUES ($1)`, Args: []any{"bob"}}
	del := &dialect.Statement{SQL: `DELETE FROM "users" WHERE "id" IN ($1)`, Args: []any{1}}
	tests := []struct {
		name  string
		err   error
		stmt  *dialect.Statement
		check func(*testing.T, error)
	}{
		{
			name: "pq duplicate",
			err:  &pq.Error{Code: "23505", Message: "duplicate key", Detail: "Key (username)=(bob) already exists."},
			stmt: insert,
			check: func(t *testing.T, err error) {
				var e *orb.DuplicateEntryError
				require.True(t, errors.As(err, &e))
				assert.Equal(t, "username", e.Key)
				assert.Equal(t, "bob", e.Value)
				assert.Equal(t, insert.SQL, e.SQL)
				assert.Equal(t, []any{"bob"}, e.Args)
			},
		},
		{
			name: "pgx duplicate",
			err:  fmt.Errorf("exec: %w", &pgconn.PgError{Code: "23505", Detail: "Key (email, org)=(a@b.c, 1) already exists."}),
			stmt: insert,
			check: func(t *testing.T, err error) {
				var e *orb.DuplicateEntryError
				require.True(t, errors.As(err, &e))
				assert.Equal(t, "email, org", e.Key)
				assert.Equal(t, "a@b.c, 1", e.Value)
			},
		},
		{
			name: "mysql duplicate",
			err:  &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'bob' for key 'users.username'"},
			stmt: insert,
			check: func(t *testing.T, err error) {
				var e *orb.DuplicateEntryError
				require.True(t, errors.As(err, &e))
				assert.Equal(t, "username", e.Key)
				assert.Equal(t, "bob", e.Value)
			},
		},
		{
			name: "sqlite duplicate",
			err:  errors.New("constraint failed: UNIQUE constraint failed: users.username (2067)"),
			stmt: insert,
			check: func(t *testing.T, err error) {
				var e *orb.DuplicateEntryError
				require.True(t, errors.As(err, &e))
				assert.Equal(t, "username", e.Key)
			},
		},
		{
			name: "pq still referenced",
			err:  &pq.Error{Code: "23503", Detail: `Key (id)=(1) is still referenced from table "posts".`},
			stmt: del,
			check: func(t *testing.T, err error) {
				var e *orb.CannotDeleteError
				require.True(t, errors.As(err, &e))
				assert.Equal(t, "posts", e.Table)
				assert.True(t, orb.IsIntegrity(err))
			},
		},
		{
			name: "mysql parent row",
			err:  &mysql.MySQLError{Number: 1451, Message: "Cannot delete or update a parent row: a foreign key constraint fails (`app`.`posts`, CONSTRAINT `posts_author`)"},
			stmt: del,
			check: func(t *testing.T, err error) {
				var e *orb.CannotDeleteError
				require.True(t, errors.As(err, &e))
				assert.Equal(t, "posts", e.Table)
			},
		},
		{
			name: "dangling reference on insert",
			err:  &pq.Error{Code: "23503", Detail: `Key (author_id)=(9) is not present in table "users".`},
			stmt: insert,
			check: func(t *testing.T, err error) {
				assert.True(t, orb.IsQueryFailed(err))
				assert.False(t, orb.IsCannotDelete(err))
			},
		},
		{
			name: "sqlite foreign key on delete",
			err:  errors.New("constraint failed: FOREIGN KEY constraint failed (787)"),
			stmt: del,
			check: func(t *testing.T, err error) {
				assert.True(t, orb.IsCannotDelete(err))
			},
		},
		{
			name: "bad conn",
			err:  fmt.Errorf("dialect/sql: exec: %w", driver.ErrBadConn),
			stmt: insert,
			check: func(t *testing.T, err error) {
				assert.True(t, orb.IsConnectionLost(err))
				assert.True(t, orb.IsRetryable(err))
			},
		},
		{
			name: "mysql invalid conn",
			err:  mysql.ErrInvalidConn,
			check: func(t *testing.T, err error) {
				assert.True(t, orb.IsConnectionLost(err))
			},
		},
		{
			name: "pg admin shutdown",
			err:  &pq.Error{Code: "57P01"},
			check: func(t *testing.T, err error) {
				assert.True(t, orb.IsConnectionLost(err))
			},
		},
		{
			name: "pg cancel",
			err:  &pq.Error{Code: "57014", Message: "canceling statement due to user request"},
			check: func(t *testing.T, err error) {
				assert.True(t, orb.IsInterruption(err))
				assert.False(t, orb.IsRetryable(err))
			},
		},
		{
			name: "pg statement timeout",
			err:  &pq.Error{Code: "57014", Message: "canceling statement due to statement timeout"},
			check: func(t *testing.T, err error) {
				assert.True(t, orb.IsQueryTimeout(err))
			},
		},
		{
			name: "mysql max execution time",
			err:  &mysql.MySQLError{Number: 3024, Message: "Query execution was interrupted, maximum statement execution time exceeded"},
			check: func(t *testing.T, err error) {
				assert.True(t, orb.IsQueryTimeout(err))
			},
		},
		{
			name: "context canceled",
			err:  context.Canceled,
			check: func(t *testing.T, err error) {
				assert.True(t, orb.IsInterruption(err))
				assert.ErrorIs(t, err, context.Canceled)
			},
		},
		{
			name: "generic",
			err:  errors.New(`syntax error at or near "SELEC"`),
			stmt: insert,
			check: func(t *testing.T, err error) {
				assert.True(t, orb.IsQueryFailed(err))
				assert.Contains(t, err.Error(), "syntax error")
				assert.Contains(t, err.Error(), "INSERT INTO")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Classify(context.Background(), tt.err, tt.stmt)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestClassifyPassthrough(t *testing.T) {
	assert.NoError(t, Classify(context.Background(), nil, nil))

	lost := &orb.ConnectionLostError{Err: driver.ErrBadConn}
	assert.Same(t, lost, Classify(context.Background(), lost, nil))

	invalid := orb.NewQueryInvalidError("name", "unknown")
	assert.Equal(t, error(invalid), Classify(context.Background(), invalid, nil))
}

func TestClassifyDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	<-ctx.Done()
	err := Classify(ctx, &pq.Error{Code: "57014", Message: "canceling statement due to user request"}, nil)
	assert.True(t, orb.IsQueryTimeout(err))
}
