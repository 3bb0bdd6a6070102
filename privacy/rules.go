package privacy

import (
	"context"
	"fmt"
	"slices"

	"github.com/syssam/orb/query"
)

// Viewer represents the authenticated user making a request.
// This interface should be implemented by application-specific user types.
type Viewer interface {
	// GetID returns the viewer's unique identifier.
	GetID() string
	// GetRoles returns the viewer's roles.
	GetRoles() []string
	// GetTenantID returns the viewer's tenant identifier for multi-tenancy.
	// Returns empty string if not applicable.
	GetTenantID() string
}

type viewerCtxKey struct{}

// WithViewer returns a new context with the viewer attached.
func WithViewer(ctx context.Context, viewer Viewer) context.Context {
	return context.WithValue(ctx, viewerCtxKey{}, viewer)
}

// ViewerFromContext retrieves the viewer from the context.
// Returns nil if no viewer is present.
func ViewerFromContext(ctx context.Context) Viewer {
	v, _ := ctx.Value(viewerCtxKey{}).(Viewer)
	return v
}

// SimpleViewer is a basic implementation of the Viewer interface.
type SimpleViewer struct {
	UserID   string
	Roles    []string
	TenantID string
}

// GetID returns the user ID.
func (v *SimpleViewer) GetID() string { return v.UserID }

// GetRoles returns the user's roles.
func (v *SimpleViewer) GetRoles() []string { return v.Roles }

// GetTenantID returns the tenant ID.
func (v *SimpleViewer) GetTenantID() string { return v.TenantID }

// DenyIfNoViewer returns a rule that denies access if no viewer is present
// in the context. It usually comes first in a policy.
//
//	privacy.Policies{
//		privacy.DenyIfNoViewer(),
//		privacy.HasRole("admin"),
//		privacy.AlwaysDenyRule(),
//	}
func DenyIfNoViewer() QueryMutationRule {
	return ContextQueryMutationRule(func(ctx context.Context) error {
		if ViewerFromContext(ctx) == nil {
			return Denyf("orb/privacy: viewer required")
		}
		return Skip
	})
}

// HasRole returns a rule that allows access if the viewer has the
// specified role, and skips otherwise.
func HasRole(role string) QueryMutationRule {
	return ContextQueryMutationRule(func(ctx context.Context) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Skip
		}
		if slices.Contains(viewer.GetRoles(), role) {
			return Allow
		}
		return Skip
	})
}

// HasAnyRole returns a rule that allows access if the viewer has any of
// the specified roles, and skips otherwise.
func HasAnyRole(roles ...string) QueryMutationRule {
	return ContextQueryMutationRule(func(ctx context.Context) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Skip
		}
		viewerRoles := viewer.GetRoles()
		for _, role := range roles {
			if slices.Contains(viewerRoles, role) {
				return Allow
			}
		}
		return Skip
	})
}

// IsOwner returns a mutation rule that allows the mutation when the value
// it writes to column is the viewer's ID.
//
//	privacy.Policy{Mutation: privacy.MutationPolicy{
//		privacy.DenyIfNoViewer(),
//		privacy.IsOwner("author"),
//		privacy.AlwaysDenyRule(),
//	}}
func IsOwner(column string) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, m *Mutation) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Skip
		}
		value, ok := m.Field(column)
		if !ok {
			return Skip
		}
		if format(value) == viewer.GetID() {
			return Allow
		}
		return Skip
	})
}

// OwnerFilter returns a rule that restricts reads, updates and deletes to
// the records whose column holds the viewer's ID. It denies when no
// viewer is present.
func OwnerFilter(column string) QueryMutationRule {
	return FilterFunc(func(ctx context.Context, f Filter) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Denyf("orb/privacy: viewer required for owner-filtered %s", column)
		}
		f.Where(query.Q(column).Is(viewer.GetID()))
		return Skip
	})
}

// TenantRule returns a mutation rule that allows the mutation when the
// value it writes to column is the viewer's tenant, and denies it when the
// value is another tenant.
func TenantRule(column string) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, m *Mutation) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Skip
		}
		tenant := viewer.GetTenantID()
		if tenant == "" {
			return Skip
		}
		value, ok := m.Field(column)
		if !ok {
			return Skip
		}
		if format(value) == tenant {
			return Allow
		}
		return Denyf("orb/privacy: tenant mismatch")
	})
}

// TenantFilter returns a rule that restricts reads, updates and deletes to
// the records of the viewer's tenant. It denies when no viewer or tenant
// is present.
func TenantFilter(column string) QueryMutationRule {
	return FilterFunc(func(ctx context.Context, f Filter) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Denyf("orb/privacy: viewer required for tenant-filtered %s", column)
		}
		tenant := viewer.GetTenantID()
		if tenant == "" {
			return Denyf("orb/privacy: tenant required")
		}
		f.Where(query.Q(column).Is(tenant))
		return Skip
	})
}

// AllowMutationOperationRule returns a rule allowing specified mutation operation.
func AllowMutationOperationRule(op Op) MutationRule {
	rule := MutationRuleFunc(func(context.Context, *Mutation) error {
		return Allow
	})
	return OnMutationOperation(rule, op)
}

func format(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprint(v)
}
