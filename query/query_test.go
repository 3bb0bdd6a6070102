package query_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/orb/query"
)

func TestNegateTwice(t *testing.T) {
	base := query.Q("age")
	tests := []struct {
		name string
		q    *query.Query
	}{
		{"is", base.Is(1)},
		{"is_not", base.IsNot(1)},
		{"lt", base.LessThan(1)},
		{"lte", base.LessThanOrEqual(1)},
		{"gt", base.GreaterThan(1)},
		{"gte", base.GreaterThanOrEqual(1)},
		{"before", base.Before(1)},
		{"after", base.After(1)},
		{"between", base.Between(1, 2)},
		{"contains", base.Contains("a")},
		{"startswith", base.Startswith("a")},
		{"endswith", base.Endswith("a")},
		{"matches", base.Matches("^a")},
		{"in", base.In(1, 2)},
		{"not_in", base.NotIn(1, 2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			once := tt.q.Not()
			twice := once.Not()
			assert.NotEqual(t, tt.q.Key(), once.Key())
			assert.Equal(t, tt.q.Key(), twice.Key())
			assert.Equal(t, tt.q.Op(), twice.Op())
			assert.Equal(t, tt.q.Inverted(), twice.Inverted())
		})
	}
}

func TestNegateFlipsOperator(t *testing.T) {
	assert.Equal(t, query.OpIsNot, query.Q("a").Is(1).Not().Op())
	assert.Equal(t, query.OpGreaterThanOrEqual, query.Q("a").LessThan(1).Not().Op())
	assert.Equal(t, query.OpIsNotIn, query.Q("a").In(1).Not().Op())
	assert.Equal(t, query.OpDoesNotContain, query.Q("a").Contains("x").Not().Op())

	between := query.Q("a").Between(1, 2).Not()
	assert.Equal(t, query.OpBetween, between.Op())
	assert.True(t, between.Inverted())
}

func TestCompound(t *testing.T) {
	a := query.Q("a").Is(1)
	b := query.Q("b").Is(2)
	c := query.Q("c").Is(3)

	t.Run("Flatten", func(t *testing.T) {
		n := query.And(a, nil, query.And(b, c))
		cmp, ok := n.(*query.Compound)
		require.True(t, ok)
		assert.Equal(t, query.ConjAnd, cmp.Conj())
		assert.Len(t, cmp.Children(), 3)

		mixed := query.And(a, query.Or(b, c)).(*query.Compound)
		assert.Len(t, mixed.Children(), 2)
	})
	t.Run("Collapse", func(t *testing.T) {
		assert.Nil(t, query.And())
		assert.Nil(t, query.Or(nil, (*query.Query)(nil)))
		assert.Same(t, a, query.And(a, nil))
	})
	t.Run("DeMorgan", func(t *testing.T) {
		n := query.And(a, query.Or(b, c)).Negate()
		want := query.Or(a.Not(), query.And(b.Not(), c.Not()))
		assert.Equal(t, want.Key(), n.Key())
		assert.Equal(t, query.And(a, query.Or(b, c)).Key(), n.Negate().Key())
	})
	t.Run("Methods", func(t *testing.T) {
		assert.Equal(t, query.And(a, b).Key(), a.And(b).Key())
		assert.Equal(t, query.Or(a, b).Key(), a.Or(b).Key())
	})
}

func TestImmutable(t *testing.T) {
	q := query.Q("name").Is("x")
	lower := q.Lower()
	plus := q.Add(1)
	cs := q.CaseSensitive(true)

	assert.Empty(t, q.Funcs())
	assert.Empty(t, q.Math())
	assert.False(t, q.IsCaseSensitive())
	assert.Equal(t, []query.Func{query.FuncLower}, lower.Funcs())
	assert.Equal(t, []query.Math{{Op: query.MathAdd, Value: 1}}, plus.Math())
	assert.True(t, cs.IsCaseSensitive())
	assert.NotEqual(t, q.Key(), lower.Key())
}

func TestKeyAndHash(t *testing.T) {
	a := query.Q("id").IsIn([]int{1, 2, 3})
	b := query.Q("id").In(1, 2, 3)
	assert.Equal(t, a.Key(), b.Key())
	assert.Equal(t, query.Hash(a), query.Hash(b))
	assert.NotEqual(t, query.Hash(a), query.Hash(query.Q("id").In(1, 2)))
	assert.Zero(t, query.Hash(nil))

	ref := query.Q("updated_at").After(query.Col("created_at"))
	assert.Contains(t, ref.Key(), "ref(created_at)")

	sub := query.Q("id").IsIn(query.From("Post", "author", query.Q("title").Is("go")))
	assert.Contains(t, sub.Key(), "select(Post.author;")
}

func TestParseOp(t *testing.T) {
	for _, s := range []string{"is", "==", "="} {
		op, err := query.ParseOp(s)
		require.NoError(t, err)
		assert.Equal(t, query.OpIs, op)
	}
	op, err := query.ParseOp("does_not_startwith")
	require.NoError(t, err)
	assert.Equal(t, query.OpDoesNotStartwith, op)
	_, err = query.ParseOp("like")
	assert.Error(t, err)

	pos, neg := query.OpDoesNotMatch.Positive()
	assert.Equal(t, query.OpMatches, pos)
	assert.True(t, neg)
	assert.True(t, query.OpEndswith.Pattern())
	assert.False(t, query.OpIs.Pattern())
}

func TestTypedFields(t *testing.T) {
	name := query.StringField("name")
	assert.True(t, name.EQ("x").IsCaseSensitive())
	assert.False(t, name.EqualFold("x").IsCaseSensitive())
	assert.Equal(t, []any{"a", "b"}, name.In("a", "b").Value())

	age := query.NumberField[int]("age")
	assert.Equal(t, query.OpBetween, age.Between(1, 9).Op())
	assert.Equal(t, []any{1, 2}, age.In(1, 2).Value())

	type status string
	st := query.EnumField[status]("status")
	assert.Equal(t, "on", st.EQ(status("on")).Value())

	author := query.RefField("author")
	assert.Equal(t, "author.username", author.Path("username"))
	assert.Equal(t, query.OpIsNot, author.NotNull().Op())
}

func TestContext(t *testing.T) {
	t.Run("Order", func(t *testing.T) {
		got := query.ParseOrder("-name, +id,age,")
		assert.Equal(t, []query.Order{{Path: "name", Desc: true}, {Path: "id"}, {Path: "age"}}, got)
		assert.Equal(t, "-name,+id,+age", query.FormatOrder(got))
	})
	t.Run("Paging", func(t *testing.T) {
		c := query.NewContext(query.Page(3, 20))
		assert.Equal(t, 40, c.Start())
		assert.Equal(t, 20, c.Limit())
		c = c.With(query.Limit(5), query.Start(2))
		assert.Equal(t, 2, c.Start())
		assert.Equal(t, 5, c.Limit())
	})
	t.Run("Expand", func(t *testing.T) {
		e := query.ParseExpand("posts, groups.users,groups.owner")
		assert.Equal(t, []string{"groups", "posts"}, e.Names())
		assert.Equal(t, []string{"owner", "users"}, e["groups"].Names())
		assert.Equal(t, "groups.owner,groups.users,posts", e.String())
	})
	t.Run("Merge", func(t *testing.T) {
		a := query.NewContext(
			query.Columns("id", "name"),
			query.Where(query.Q("a").Is(1)),
			query.Locale("en_US"),
			query.Limit(10),
		)
		b := query.NewContext(
			query.Columns("name", "email"),
			query.Where(query.Q("b").Is(2)),
			query.Locale("fr_FR"),
			query.Distinct(),
		)
		m := a.Merge(b)
		assert.Equal(t, []string{"id", "name", "email"}, m.Columns())
		assert.Equal(t, query.And(query.Q("a").Is(1), query.Q("b").Is(2)).Key(), m.Where().Key())
		assert.Equal(t, "fr_FR", m.Locale())
		assert.Equal(t, 10, m.Limit())
		assert.True(t, m.Distinct())
		// Inputs are untouched.
		assert.Equal(t, []string{"id", "name"}, a.Columns())
		assert.Equal(t, "en_US", a.Locale())
		assert.False(t, a.Distinct())
	})
	t.Run("Scoped", func(t *testing.T) {
		ctx := context.Background()
		assert.Equal(t, query.NewContext().Key(), query.FromContext(ctx).Key())

		ctx = query.WithContext(ctx, query.NewContext(query.Locale("fr_FR"), query.Namespace("tenant")))
		ctx = query.WithContext(ctx, query.NewContext(query.Locale("de_DE")))
		scoped := query.Scoped(ctx, query.NewContext(query.Limit(3)))
		assert.Equal(t, "de_DE", scoped.Locale())
		assert.Equal(t, "tenant", scoped.Namespace())
		assert.Equal(t, 3, scoped.Limit())
	})
	t.Run("Key", func(t *testing.T) {
		a := query.NewContext(query.Where(query.Q("a").Is(1)), query.OrderBy("-a"))
		b := query.NewContext(query.OrderBy("-a"), query.Where(query.Q("a").Is(1)))
		assert.Equal(t, a.Hash(), b.Hash())
		assert.NotEqual(t, a.Hash(), a.With(query.Limit(1)).Hash())
	})
}
