package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/orb"
	"github.com/syssam/orb/dialect"
	"github.com/syssam/orb/query"
	"github.com/syssam/orb/schema"
	"github.com/syssam/orb/schema/edge"
	"github.com/syssam/orb/schema/field"
)

func newSystem(t *testing.T, native bool) *schema.System {
	t.Helper()
	strategy := schema.SharedKey
	if native {
		strategy = schema.Auto
	}
	sys := schema.NewSystem()
	sys.SetNativeInheritance(native)
	require.NoError(t, sys.Define(
		schema.Define("User").
			Fields(
				field.String("username").Required().Unique(),
				field.String("password").Private(),
				field.Int("age"),
				field.String("display").Virtual(),
			).
			Edges(
				edge.Pipe("groups", "GroupUser", "user", "group"),
				edge.Lookup("posts", "Post", "author"),
			),
		schema.Define("Group").
			Fields(field.String("name").Required().Unique()),
		schema.Define("GroupUser").
			Table("group_user").
			Fields(
				field.Reference("user", "User").OnDelete(schema.Cascade),
				field.Reference("group", "Group").OnDelete(schema.Cascade),
			),
		schema.Define("Post").
			Fields(
				field.String("title"),
				field.Reference("author", "User"),
			),
		schema.Define("Employee").
			Inherits("User").
			Strategy(strategy).
			Fields(field.String("title")),
		schema.Define("Manager").
			Inherits("Employee").
			Fields(field.Int("reports")),
	))
	require.NoError(t, sys.Validate())
	return sys
}

type fixture struct {
	sys *schema.System
	r   *query.Resolver
}

func newFixture(t *testing.T, native bool) *fixture {
	t.Helper()
	sys := newSystem(t, native)
	r, err := query.NewResolver(sys)
	require.NoError(t, err)
	return &fixture{sys: sys, r: r}
}

func (f *fixture) plan(t *testing.T, name string, opts ...query.Option) *query.Plan {
	t.Helper()
	p, err := f.r.Resolve(f.sys.MustResolve(name), query.NewContext(opts...))
	require.NoError(t, err)
	return p
}

func TestSelectPipe(t *testing.T) {
	f := newFixture(t, false)
	c := NewCompiler(Postgres, f.sys)
	stmt, err := c.Select(f.plan(t, "User", query.Where(query.Q("groups.name").Is("admins"))))
	require.NoError(t, err)
	assert.Equal(t, `SELECT t0."id", t0."username", t0."age" FROM "users" AS t0 WHERE t0."id" IN `+
		`(SELECT t1."user_id" FROM "group_user" AS t1 WHERE t1."group_id" IN `+
		`(SELECT t2."id" FROM "groups" AS t2 WHERE t2."name" = $1))`, stmt.SQL)
	assert.Equal(t, []any{"admins"}, stmt.Args)
	require.Len(t, stmt.Names, 1)
	assert.Regexp(t, `^field_[0-9a-f]{8}$`, stmt.Names[0])
	assert.Equal(t, "admins", stmt.Params[stmt.Names[0]])
	assert.True(t, stmt.Rows)
	assert.False(t, stmt.Noop)
	assert.Equal(t, "User", stmt.Schema)
}

func TestSelectReverseLookupInverted(t *testing.T) {
	f := newFixture(t, false)
	c := NewCompiler(SQLite, f.sys)
	stmt, err := c.Select(f.plan(t, "User",
		query.Columns("username"),
		query.Where(query.Q("posts.title").Contains("go").Not()),
	))
	require.NoError(t, err)
	assert.Equal(t, `SELECT t0."id", t0."username" FROM "users" AS t0 WHERE t0."id" IN `+
		`(SELECT t1."author_id" FROM "posts" AS t1 WHERE t1."title" NOT LIKE ? ESCAPE '\')`, stmt.SQL)
	assert.Equal(t, []any{"%go%"}, stmt.Args)
}

func TestSelectPaging(t *testing.T) {
	f := newFixture(t, false)
	tests := []struct {
		d    *Dialect
		opts []query.Option
		want string
	}{
		{Postgres, []query.Option{query.Limit(10), query.Start(20)}, ` LIMIT 10 OFFSET 20`},
		{SQLite, []query.Option{query.Start(5)}, ` LIMIT -1 OFFSET 5`},
		{MySQL, []query.Option{query.Start(5)}, " LIMIT 18446744073709551615 OFFSET 5"},
		{MySQL, []query.Option{query.Limit(3)}, " LIMIT 3"},
	}
	for _, tt := range tests {
		t.Run(tt.d.Name, func(t *testing.T) {
			stmt, err := NewCompiler(tt.d, f.sys).Select(f.plan(t, "Group", tt.opts...))
			require.NoError(t, err)
			assert.Contains(t, stmt.SQL, tt.want)
			assert.NotContains(t, stmt.SQL, "WHERE")
		})
	}
}

func TestSelectOrder(t *testing.T) {
	f := newFixture(t, false)
	stmt, err := NewCompiler(MySQL, f.sys).Select(f.plan(t, "Post",
		query.Columns("title", "author.username"),
		query.OrderBy("-author.username,+title"),
	))
	require.NoError(t, err)
	assert.Equal(t, "SELECT t0.`id`, t0.`title`, t1.`username` AS `author.username` FROM `posts` AS t0 "+
		"LEFT JOIN `users` AS t1 ON t0.`author_id` = t1.`id` ORDER BY t1.`username` DESC, t0.`title` ASC", stmt.SQL)
}

func TestPredicates(t *testing.T) {
	f := newFixture(t, false)
	tests := []struct {
		name string
		d    *Dialect
		q    query.Node
		want string
		args []any
	}{
		{"pg contains", Postgres, query.Q("username").Contains("ad_m"), `t0."username" ILIKE $1`, []any{`%ad\_m%`}},
		{"pg startswith sensitive", Postgres, query.Q("username").Startswith("a%").CaseSensitive(true), `t0."username" LIKE $1`, []any{`a\%%`}},
		{"sqlite glob", SQLite, query.Q("username").Startswith("a*").CaseSensitive(true), `t0."username" GLOB ?`, []any{"a[*]*"}},
		{"sqlite endswith", SQLite, query.Q("username").Endswith("x"), `t0."username" LIKE ? ESCAPE '\'`, []any{"%x"}},
		{"mysql does not contain", MySQL, query.Q("username").DoesNotContain("x").CaseSensitive(true), "t0.`username` NOT LIKE BINARY ?", []any{"%x%"}},
		{"pg matches", Postgres, query.Q("username").Matches("^a"), `t0."username" ~* $1`, []any{"^a"}},
		{"pg does not match sensitive", Postgres, query.Q("username").DoesNotMatch("^a").CaseSensitive(true), `t0."username" !~ $1`, []any{"^a"}},
		{"mysql does not match", MySQL, query.Q("username").DoesNotMatch("^a"), "NOT REGEXP_LIKE(t0.`username`, ?, 'i')", []any{"^a"}},
		{"sqlite matches", SQLite, query.Q("username").Matches("^a"), `t0."username" REGEXP ?`, []any{"(?i)^a"}},
		{"sqlite matches sensitive", SQLite, query.Q("username").Matches("^a").CaseSensitive(true), `t0."username" REGEXP ?`, []any{"^a"}},
		{"mysql matches sensitive", MySQL, query.Q("username").Matches("^a").CaseSensitive(true), "REGEXP_LIKE(t0.`username`, ?, 'c')", []any{"^a"}},
		{"is null", Postgres, query.Q("age").IsNull(), `t0."age" IS NULL`, nil},
		{"not null", Postgres, query.Q("age").NotNull(), `t0."age" IS NOT NULL`, nil},
		{"is not", Postgres, query.Q("age").IsNot(3), `t0."age" <> $1`, []any{3}},
		{"between", Postgres, query.Q("age").Between(18, 65), `t0."age" BETWEEN $1 AND $2`, []any{18, 65}},
		{"between inverted", Postgres, query.Q("age").Between(18, 65).Not(), `NOT (t0."age" BETWEEN $1 AND $2)`, []any{18, 65}},
		{"in", SQLite, query.Q("age").In(1, 2), `t0."age" IN (?, ?)`, []any{1, 2}},
		{"not in", Postgres, query.Q("age").NotIn(1), `t0."age" NOT IN ($1)`, []any{1}},
		{"lower", Postgres, query.Q("username").Lower().Is("bob"), `lower(t0."username") = $1`, []any{"bob"}},
		{"as string", MySQL, query.Q("age").AsString().Startswith("1"), "CAST(t0.`age` AS CHAR) LIKE ?", []any{"1%"}},
		{"math", Postgres, query.Q("age").Add(1).Multiply(2).GreaterThan(10), `((t0."age" + $1) * $2) > $3`, []any{1, 2, 10}},
		{"text concat", MySQL, query.Q("username").Add("!").Is("bob!"), "CONCAT(t0.`username`, ?) = ?", []any{"!", "bob!"}},
		{"column operand", Postgres, query.Q("age").GreaterThan(query.Col("id")), `t0."age" > t0."id"`, nil},
		{
			"and or",
			Postgres,
			query.Or(query.Q("age").LessThan(18), query.And(query.Q("age").GreaterThan(65), query.Q("username").IsNot("root"))),
			`(t0."age" < $1 OR (t0."age" > $2 AND t0."username" <> $3))`,
			[]any{18, 65, "root"},
		},
		{"empty in dropped from or", Postgres, query.Or(query.Q("age").In(), query.Q("age").Is(1)), `t0."age" = $1`, []any{1}},
		{"empty not in dropped from and", Postgres, query.And(query.Q("age").NotIn(), query.Q("age").Is(1)), `t0."age" = $1`, []any{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := NewCompiler(tt.d, f.sys).Count(f.plan(t, "User", query.Where(tt.q)))
			require.NoError(t, err)
			assert.Equal(t, "SELECT COUNT(*) FROM "+tt.d.Quote("users")+" AS t0 WHERE "+tt.want, stmt.SQL)
			assert.Equal(t, tt.args, stmt.Args)
		})
	}
}

func TestStaticFilters(t *testing.T) {
	f := newFixture(t, false)
	c := NewCompiler(Postgres, f.sys)

	stmt, err := c.Select(f.plan(t, "User", query.Where(query.Q("age").In())))
	require.NoError(t, err)
	assert.True(t, stmt.Noop)
	assert.Equal(t, "-- noop", stmt.String())

	stmt, err = c.Select(f.plan(t, "User", query.Where(query.Q("age").NotIn())))
	require.NoError(t, err)
	assert.False(t, stmt.Noop)
	assert.Equal(t, `SELECT t0."id", t0."username", t0."age" FROM "users" AS t0`, stmt.SQL)

	// A pipe whose target set is empty selects nothing.
	stmt, err = c.Count(f.plan(t, "User", query.Where(query.Q("groups.id").In())))
	require.NoError(t, err)
	assert.True(t, stmt.Noop)

	// The complement keeps the membership test but drops the inner filter.
	stmt, err = c.Count(f.plan(t, "User", query.Where(query.Q("groups.id").In().Not())))
	require.NoError(t, err)
	assert.False(t, stmt.Noop)
	assert.Equal(t, `SELECT COUNT(*) FROM "users" AS t0 WHERE t0."id" IN (SELECT t1."user_id" FROM "group_user" AS t1 `+
		`WHERE t1."group_id" IN (SELECT t2."id" FROM "groups" AS t2))`, stmt.SQL)
}

func TestDestructiveNoop(t *testing.T) {
	f := newFixture(t, false)
	c := NewCompiler(Postgres, f.sys)
	tests := []struct {
		name string
		opts []query.Option
	}{
		{"no filter", nil},
		{"empty in", []query.Option{query.Where(query.Q("age").In())}},
		{"always", []query.Option{query.Where(query.Q("age").NotIn())}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := f.plan(t, "User", tt.opts...)
			del, err := c.Delete(p)
			require.NoError(t, err)
			assert.True(t, del.Noop)
			upd, err := c.Update(p, map[string]any{"age": 1})
			require.NoError(t, err)
			require.Len(t, upd, 1)
			assert.True(t, upd[0].Noop)
		})
	}
}

func TestDelete(t *testing.T) {
	f := newFixture(t, false)
	tests := []struct {
		d    *Dialect
		want string
	}{
		{Postgres, `DELETE FROM "users" WHERE "id" IN (SELECT t0."id" FROM "users" AS t0 WHERE t0."username" = $1)`},
		{MySQL, "DELETE FROM `users` WHERE `id` IN (SELECT `id` FROM (SELECT t0.`id` FROM `users` AS t0 WHERE t0.`username` = ?) AS t_keys)"},
	}
	for _, tt := range tests {
		t.Run(tt.d.Name, func(t *testing.T) {
			stmt, err := NewCompiler(tt.d, f.sys).Delete(f.plan(t, "User", query.Where(query.Q("username").Is("bob"))))
			require.NoError(t, err)
			assert.Equal(t, tt.want, stmt.SQL)
			assert.Equal(t, []any{"bob"}, stmt.Args)
			assert.True(t, stmt.Write)
		})
	}

	// Shared-key rows are removed from the root table.
	stmt, err := NewCompiler(Postgres, f.sys).Delete(f.plan(t, "Manager", query.Where(query.Q("reports").Is(0))))
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, `DELETE FROM "users" WHERE "id" IN (SELECT t0."id" FROM "managers" AS t0`)

	native := newFixture(t, true)
	stmt, err = NewCompiler(Postgres, native.sys).Delete(native.plan(t, "Manager", query.Where(query.Q("reports").Is(0))))
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "managers" WHERE "id" IN (SELECT t0."id" FROM "managers" AS t0 WHERE t0."reports" = $1)`, stmt.SQL)
}

func TestUpdateSharedKey(t *testing.T) {
	f := newFixture(t, false)
	c := NewCompiler(Postgres, f.sys)
	stmts, err := c.Update(f.plan(t, "Manager", query.Where(query.Q("reports").GreaterThan(1))), map[string]any{
		"username": "bob",
		"title":    "cto",
		"reports":  3,
	})
	require.NoError(t, err)
	require.Len(t, stmts, 3)
	prefixes := []string{
		`UPDATE "users" SET "username" = $1 WHERE "id" IN (SELECT t0."id" FROM "managers" AS t0`,
		`UPDATE "employees" SET "title" = $1 WHERE "id" IN (SELECT t0."id" FROM "managers" AS t0`,
		`UPDATE "managers" SET "reports" = $1 WHERE "id" IN (SELECT t0."id" FROM "managers" AS t0`,
	}
	values := []any{"bob", "cto", 3}
	for i, stmt := range stmts {
		assert.Truef(t, len(stmt.SQL) > len(prefixes[i]) && stmt.SQL[:len(prefixes[i])] == prefixes[i], "statement %d: %s", i, stmt.SQL)
		assert.Contains(t, stmt.SQL, `WHERE t0."reports" > $2)`)
		assert.Equal(t, []any{values[i], 1}, stmt.Args)
	}

	native := newFixture(t, true)
	stmts, err = NewCompiler(Postgres, native.sys).Update(native.plan(t, "Manager", query.Where(query.Q("reports").GreaterThan(1))), map[string]any{
		"username": "bob",
		"reports":  3,
	})
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	assert.Equal(t, `UPDATE "managers" SET "reports" = $1, "username" = $2 WHERE "id" IN `+
		`(SELECT t0."id" FROM "managers" AS t0 WHERE t0."reports" > $3)`, stmts[0].SQL)
}

func TestUpdateErrors(t *testing.T) {
	f := newFixture(t, false)
	c := NewCompiler(Postgres, f.sys)
	p := f.plan(t, "User", query.Where(query.Q("age").Is(1)))
	_, err := c.Update(p, map[string]any{"nope": 1})
	assert.True(t, orb.IsColumnNotFound(err))
	_, err = c.Update(p, map[string]any{"id": 1})
	assert.True(t, orb.IsQueryInvalid(err))
	_, err = c.Update(p, map[string]any{"display": "x"})
	assert.True(t, orb.IsQueryInvalid(err))
}

func TestReferenceValue(t *testing.T) {
	f := newFixture(t, false)
	stmt, err := NewCompiler(Postgres, f.sys).Count(f.plan(t, "Post", query.Where(query.Q("author").Is(record{id: 7}))))
	require.NoError(t, err)
	assert.Equal(t, `SELECT COUNT(*) FROM "posts" AS t0 WHERE t0."author_id" = $1`, stmt.SQL)
	assert.Equal(t, []any{int64(7)}, stmt.Args)
}

type record struct{ id int64 }

func (r record) ID() any { return r.id }

func TestCountDistinct(t *testing.T) {
	f := newFixture(t, false)
	stmt, err := NewCompiler(Postgres, f.sys).Count(f.plan(t, "Group", query.Distinct(), query.Columns("name"), query.Limit(5)))
	require.NoError(t, err)
	assert.Equal(t, `SELECT COUNT(*) FROM (SELECT DISTINCT t0."id", t0."name" FROM "groups" AS t0 LIMIT 5) AS t_count`, stmt.SQL)
}

func TestBuilderParams(t *testing.T) {
	b := Postgres.NewBuilder()
	for i := range 1000 {
		if i > 0 {
			b.WriteString(" AND ")
		}
		b.WriteString("x = ").Arg(i)
	}
	stmt := b.Statement()
	require.Len(t, stmt.Names, 1000)
	seen := make(map[string]bool, len(stmt.Names))
	for i, name := range stmt.Names {
		assert.False(t, seen[name], "duplicate parameter %s", name)
		seen[name] = true
		assert.Equal(t, i, stmt.Params[name])
	}
	assert.Contains(t, stmt.SQL, "x = $1000")
	assert.Len(t, stmt.Args, 1000)
}

func TestBuilderDroppedFragment(t *testing.T) {
	b := SQLite.NewBuilder()
	dropped := b.Sub().WriteString("a = ").Arg(1)
	kept := b.Sub().WriteString("b = ").Arg(2)
	b.WriteString("WHERE ").Join(kept)
	assert.False(t, dropped.Empty())
	stmt := b.Statement()
	assert.Equal(t, "WHERE b = ?", stmt.SQL)
	assert.Equal(t, []any{2}, stmt.Args)
}

func TestDialectOf(t *testing.T) {
	for name, want := range map[string]*Dialect{
		"pgx":        Postgres,
		"postgres":   Postgres,
		"postgresql": Postgres,
		"sqlite3":    SQLite,
		"sqlite":     SQLite,
		"mysql":      MySQL,
	} {
		d, err := DialectOf(name)
		require.NoError(t, err)
		assert.Same(t, want, d, name)
	}
	_, err := DialectOf("oracle")
	assert.Error(t, err)
	assert.Equal(t, "`a``b`", MySQL.Quote("a`b"))
	assert.Equal(t, `"app"."users"`, Postgres.Table("app", "users"))
	assert.Equal(t, `"users"`, SQLite.Table("app", "users"))
	assert.Equal(t, dialect.Postgres, Postgres.String())
}
