package sql

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/orb/dialect"
	"github.com/syssam/orb/query"
	"github.com/syssam/orb/schema"
	"github.com/syssam/orb/schema/field"
	"github.com/syssam/orb/schema/index"
)

func TestCreateTable(t *testing.T) {
	f := newFixture(t, false)
	tests := []struct {
		d      *Dialect
		schema string
		want   string
	}{
		{
			Postgres, "User",
			`CREATE TABLE IF NOT EXISTS "users" ("id" BIGSERIAL PRIMARY KEY, "username" VARCHAR(255) NOT NULL UNIQUE, "password" VARCHAR(255), "age" INTEGER)`,
		},
		{
			SQLite, "User",
			`CREATE TABLE IF NOT EXISTS "users" ("id" INTEGER PRIMARY KEY AUTOINCREMENT, "username" VARCHAR(255) NOT NULL UNIQUE, "password" VARCHAR(255), "age" INTEGER)`,
		},
		{
			MySQL, "User",
			"CREATE TABLE IF NOT EXISTS `users` (`id` BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY, `username` VARCHAR(255) NOT NULL UNIQUE, `password` VARCHAR(255), `age` INT)",
		},
		{
			Postgres, "Employee",
			`CREATE TABLE IF NOT EXISTS "employees" ("id" BIGINT PRIMARY KEY, "title" VARCHAR(255), FOREIGN KEY ("id") REFERENCES "users" ("id") ON DELETE CASCADE)`,
		},
		{
			Postgres, "Post",
			`CREATE TABLE IF NOT EXISTS "posts" ("id" BIGSERIAL PRIMARY KEY, "title" VARCHAR(255), "author_id" BIGINT, FOREIGN KEY ("author_id") REFERENCES "users" ("id") ON DELETE RESTRICT)`,
		},
		{
			Postgres, "GroupUser",
			`CREATE TABLE IF NOT EXISTS "group_user" ("id" BIGSERIAL PRIMARY KEY, "user_id" BIGINT, "group_id" BIGINT, ` +
				`FOREIGN KEY ("user_id") REFERENCES "users" ("id") ON DELETE CASCADE, FOREIGN KEY ("group_id") REFERENCES "groups" ("id") ON DELETE CASCADE)`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.d.Name+"/"+tt.schema, func(t *testing.T) {
			stmt, err := NewCompiler(tt.d, f.sys).CreateTable(f.sys.MustResolve(tt.schema), "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, stmt.SQL)
			assert.True(t, stmt.Write)
		})
	}
}

func TestCreateTableNative(t *testing.T) {
	f := newFixture(t, true)
	c := NewCompiler(Postgres, f.sys)
	stmt, err := c.CreateTable(f.sys.MustResolve("Employee"), "hr")
	require.NoError(t, err)
	assert.Equal(t, `CREATE TABLE IF NOT EXISTS "hr"."employees" ("title" VARCHAR(255)) INHERITS ("hr"."users")`, stmt.SQL)
}

func TestAddColumn(t *testing.T) {
	f := newFixture(t, false)
	user := f.sys.MustResolve("User")
	age, ok := user.Column("age")
	require.True(t, ok)
	stmt, err := NewCompiler(Postgres, f.sys).AddColumn(user, age, "")
	require.NoError(t, err)
	assert.Equal(t, `ALTER TABLE "users" ADD COLUMN "age" INTEGER`, stmt.SQL)
}

func TestUniqueIndex(t *testing.T) {
	f := newFixture(t, false)
	user := f.sys.MustResolve("User")
	username, ok := user.Column("username")
	require.True(t, ok)

	stmt, err := NewCompiler(Postgres, f.sys).UniqueIndex(user, username, "hr")
	require.NoError(t, err)
	assert.Equal(t, `CREATE UNIQUE INDEX IF NOT EXISTS "users_username_key" ON "hr"."users" ("username")`, stmt.SQL)
	assert.True(t, stmt.Write)

	stmt, err = NewCompiler(MySQL, f.sys).UniqueIndex(user, username, "")
	require.NoError(t, err)
	assert.Equal(t, "CREATE UNIQUE INDEX `users_username_key` ON `users` (`username`)", stmt.SQL)

	age, ok := user.Column("age")
	require.True(t, ok)
	_, err = NewCompiler(Postgres, f.sys).UniqueIndex(user, age, "")
	assert.Error(t, err)
}

func TestTableOrder(t *testing.T) {
	f := newFixture(t, false)
	c := NewCompiler(Postgres, f.sys)
	var in []*schema.Schema
	for _, name := range []string{"Manager", "Post", "Employee", "User"} {
		in = append(in, f.sys.MustResolve(name))
	}
	var names []string
	for _, sc := range c.TableOrder(in) {
		names = append(names, sc.Name)
	}
	assert.Equal(t, []string{"User", "Employee", "Manager", "Post"}, names)
}

func newItemSystem(t *testing.T) *schema.System {
	t.Helper()
	sys := schema.NewSystem()
	require.NoError(t, sys.Define(
		schema.Define("Item").
			Fields(
				field.String("name").Required(),
				field.Bool("active").Default(true),
				field.Decimal("price", 10, 2),
				field.Float("weight"),
				field.DateTime("created"),
				field.JSON("doc"),
				field.UUID("token"),
				field.Enum("status", "open", "closed"),
				field.Interval("ttl"),
				field.Binary("blob"),
			).
			Indexes(index.Fields("name").Unique()),
		schema.Define("Tag").
			Fields(
				field.String("label"),
				field.Reference("item", "Item").OnDelete(schema.Cascade),
			),
	))
	require.NoError(t, sys.Validate())
	return sys
}

func TestCreateIndex(t *testing.T) {
	sys := newItemSystem(t)
	idx := sys.MustResolve("Item").Indexes()[0]
	stmt, err := NewCompiler(SQLite, sys).CreateIndex(idx, "")
	require.NoError(t, err)
	assert.Equal(t, `CREATE UNIQUE INDEX IF NOT EXISTS "items_name_idx" ON "items" ("name")`, stmt.SQL)
	stmt, err = NewCompiler(MySQL, sys).CreateIndex(idx, "")
	require.NoError(t, err)
	assert.Equal(t, "CREATE UNIQUE INDEX `items_name_idx` ON `items` (`name`)", stmt.SQL)
}

func TestRoundTrip(t *testing.T) {
	sys := newItemSystem(t)
	c := NewCompiler(SQLite, sys)
	r, err := query.NewResolver(sys)
	require.NoError(t, err)

	drv, err := Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	defer drv.Close()
	ctx := context.Background()
	sess, err := drv.Open(ctx, true)
	require.NoError(t, err)
	defer sess.Close()

	ddl, err := c.CreateAll("")
	require.NoError(t, err)
	require.Len(t, ddl, 3)
	for _, stmt := range ddl {
		_, err := sess.Exec(ctx, stmt)
		require.NoError(t, err, stmt.SQL)
	}

	var (
		item    = sys.MustResolve("Item")
		created = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
		token   = uuid.New()
	)
	ins, err := c.Insert(item, "", []map[string]any{{
		"name":    "widget",
		"price":   "12.5",
		"weight":  1.5,
		"created": created,
		"doc":     map[string]any{"a": 1},
		"token":   token,
		"status":  "open",
		"ttl":     time.Minute,
		"blob":    []byte{0, 1, 2},
	}})
	require.NoError(t, err)
	stmts, err := ins.Level(0)
	require.NoError(t, err)
	var results []*dialect.Result
	for _, stmt := range stmts {
		res, err := sess.Exec(ctx, stmt)
		require.NoError(t, err, stmt.SQL)
		results = append(results, res)
	}
	require.NoError(t, ins.SetKeys(results))
	id := ins.Keys()[0]
	assert.Equal(t, int64(1), id)

	p, err := r.Resolve(item, query.NewContext(query.Where(query.Q("id").Is(id))))
	require.NoError(t, err)
	stmt, err := c.Select(p)
	require.NoError(t, err)
	res, err := sess.Exec(ctx, stmt)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	row, err := c.DecodeRow(p.Fields, res.Rows[0])
	require.NoError(t, err)

	assert.Equal(t, int64(1), row["id"])
	assert.Equal(t, "widget", row["name"])
	assert.Equal(t, true, row["active"])
	assert.Equal(t, "12.5", row["price"])
	assert.Equal(t, 1.5, row["weight"])
	got, ok := row["created"].(time.Time)
	require.True(t, ok, "%T", row["created"])
	assert.True(t, created.Equal(got))
	assert.Equal(t, map[string]any{"a": float64(1)}, row["doc"])
	assert.Equal(t, token, row["token"])
	assert.Equal(t, "open", row["status"])
	assert.Equal(t, time.Minute, row["ttl"])
	assert.Equal(t, []byte{0, 1, 2}, row["blob"])

	_, err = c.Insert(item, "", []map[string]any{{"name": "x", "status": "lost"}})
	require.Error(t, err, "enum values are checked")
	require.NoError(t, sess.Rollback(ctx))
}
