package privacy_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/orb/privacy"
	"github.com/syssam/orb/query"
)

func viewerCtx(v privacy.Viewer) context.Context {
	return privacy.WithViewer(context.Background(), v)
}

func TestViewerContext(t *testing.T) {
	assert.Nil(t, privacy.ViewerFromContext(context.Background()))
	v := &privacy.SimpleViewer{UserID: "42", Roles: []string{"admin"}, TenantID: "t1"}
	got := privacy.ViewerFromContext(viewerCtx(v))
	require.NotNil(t, got)
	assert.Equal(t, "42", got.GetID())
	assert.Equal(t, []string{"admin"}, got.GetRoles())
	assert.Equal(t, "t1", got.GetTenantID())
}

func TestDenyIfNoViewer(t *testing.T) {
	rule := privacy.DenyIfNoViewer()
	assert.ErrorIs(t, rule.EvalQuery(context.Background(), &privacy.Query{}), privacy.Deny)
	assert.ErrorIs(t, rule.EvalMutation(viewerCtx(&privacy.SimpleViewer{UserID: "1"}), &privacy.Mutation{}), privacy.Skip)
}

func TestHasRole(t *testing.T) {
	tests := []struct {
		name   string
		viewer privacy.Viewer
		want   error
	}{
		{name: "no_viewer", want: privacy.Skip},
		{name: "role", viewer: &privacy.SimpleViewer{Roles: []string{"user", "admin"}}, want: privacy.Allow},
		{name: "other_role", viewer: &privacy.SimpleViewer{Roles: []string{"user"}}, want: privacy.Skip},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if tt.viewer != nil {
				ctx = viewerCtx(tt.viewer)
			}
			assert.ErrorIs(t, privacy.HasRole("admin").EvalQuery(ctx, &privacy.Query{}), tt.want)
		})
	}
}

func TestHasAnyRole(t *testing.T) {
	rule := privacy.HasAnyRole("admin", "moderator")
	assert.ErrorIs(t, rule.EvalQuery(viewerCtx(&privacy.SimpleViewer{Roles: []string{"moderator"}}), &privacy.Query{}), privacy.Allow)
	assert.ErrorIs(t, rule.EvalQuery(viewerCtx(&privacy.SimpleViewer{Roles: []string{"user"}}), &privacy.Query{}), privacy.Skip)
	assert.ErrorIs(t, rule.EvalQuery(context.Background(), &privacy.Query{}), privacy.Skip)
}

func TestIsOwner(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name   string
		viewer privacy.Viewer
		values []map[string]any
		want   error
	}{
		{name: "no_viewer", values: []map[string]any{{"author": "1"}}, want: privacy.Skip},
		{name: "string", viewer: &privacy.SimpleViewer{UserID: "1"}, values: []map[string]any{{"author": "1"}}, want: privacy.Allow},
		{name: "int64", viewer: &privacy.SimpleViewer{UserID: "7"}, values: []map[string]any{{"author": int64(7)}}, want: privacy.Allow},
		{name: "uuid", viewer: &privacy.SimpleViewer{UserID: id.String()}, values: []map[string]any{{"author": id}}, want: privacy.Allow},
		{name: "other_owner", viewer: &privacy.SimpleViewer{UserID: "1"}, values: []map[string]any{{"author": "2"}}, want: privacy.Skip},
		{name: "unset", viewer: &privacy.SimpleViewer{UserID: "1"}, values: []map[string]any{{"title": "a"}}, want: privacy.Skip},
		{name: "mixed_batch", viewer: &privacy.SimpleViewer{UserID: "1"}, values: []map[string]any{{"author": "1"}, {"author": "2"}}, want: privacy.Skip},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if tt.viewer != nil {
				ctx = viewerCtx(tt.viewer)
			}
			m := &privacy.Mutation{Op: privacy.OpInsert, Values: tt.values}
			assert.ErrorIs(t, privacy.IsOwner("author").EvalMutation(ctx, m), tt.want)
		})
	}
}

func TestOwnerFilter(t *testing.T) {
	rule := privacy.OwnerFilter("author")
	assert.ErrorIs(t, rule.EvalQuery(context.Background(), &privacy.Query{}), privacy.Deny)

	q := &privacy.Query{Context: query.NewContext()}
	require.ErrorIs(t, rule.EvalQuery(viewerCtx(&privacy.SimpleViewer{UserID: "1"}), q), privacy.Skip)
	assert.Equal(t, query.Q("author").Is("1").Key(), q.Context.Where().Key())
}

func TestTenantRule(t *testing.T) {
	tests := []struct {
		name   string
		viewer privacy.Viewer
		values map[string]any
		want   error
	}{
		{name: "no_viewer", values: map[string]any{"tenant": "t1"}, want: privacy.Skip},
		{name: "no_tenant", viewer: &privacy.SimpleViewer{UserID: "1"}, values: map[string]any{"tenant": "t1"}, want: privacy.Skip},
		{name: "match", viewer: &privacy.SimpleViewer{TenantID: "t1"}, values: map[string]any{"tenant": "t1"}, want: privacy.Allow},
		{name: "mismatch", viewer: &privacy.SimpleViewer{TenantID: "t1"}, values: map[string]any{"tenant": "t2"}, want: privacy.Deny},
		{name: "unset", viewer: &privacy.SimpleViewer{TenantID: "t1"}, values: map[string]any{"title": "a"}, want: privacy.Skip},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if tt.viewer != nil {
				ctx = viewerCtx(tt.viewer)
			}
			m := &privacy.Mutation{Op: privacy.OpUpdate, Context: query.NewContext(), Values: []map[string]any{tt.values}}
			assert.ErrorIs(t, privacy.TenantRule("tenant").EvalMutation(ctx, m), tt.want)
		})
	}
}

func TestTenantFilter(t *testing.T) {
	rule := privacy.TenantFilter("tenant")
	assert.ErrorIs(t, rule.EvalQuery(context.Background(), &privacy.Query{}), privacy.Deny)
	assert.ErrorIs(t, rule.EvalQuery(viewerCtx(&privacy.SimpleViewer{UserID: "1"}), &privacy.Query{}), privacy.Deny)

	m := &privacy.Mutation{Op: privacy.OpDelete, Context: query.NewContext()}
	require.ErrorIs(t, rule.EvalMutation(viewerCtx(&privacy.SimpleViewer{TenantID: "t1"}), m), privacy.Skip)
	assert.Equal(t, query.Q("tenant").Is("t1").Key(), m.Context.Where().Key())
}

func TestPolicyChain(t *testing.T) {
	policy := privacy.Policies{
		privacy.Policy{
			Query: privacy.QueryPolicy{privacy.DenyIfNoViewer()},
			Mutation: privacy.MutationPolicy{
				privacy.DenyIfNoViewer(),
				privacy.HasRole("admin"),
				privacy.IsOwner("author"),
				privacy.AlwaysDenyRule(),
			},
		},
	}
	insert := func(author string) *privacy.Mutation {
		return &privacy.Mutation{Op: privacy.OpInsert, Values: []map[string]any{{"author": author}}}
	}
	user := viewerCtx(&privacy.SimpleViewer{UserID: "1", Roles: []string{"user"}})
	admin := viewerCtx(&privacy.SimpleViewer{UserID: "9", Roles: []string{"admin"}})

	assert.ErrorIs(t, policy.EvalQuery(context.Background(), &privacy.Query{}), privacy.Deny)
	assert.NoError(t, policy.EvalQuery(user, &privacy.Query{}))
	assert.NoError(t, policy.EvalMutation(user, insert("1")))
	assert.ErrorIs(t, policy.EvalMutation(user, insert("2")), privacy.Deny)
	assert.NoError(t, policy.EvalMutation(admin, insert("2")))
}
