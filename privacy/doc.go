// Package privacy provides the policy layer of the engine: rules that
// decide whether a read or a write may run, and that may narrow the
// records it sees, before any statement is compiled.
//
// Policies are registered per schema and apply to the schemas that
// inherit it:
//
//	e, err := engine.Open(drv, sys,
//		engine.WithPolicy("Post", privacy.Policy{
//			Query: privacy.QueryPolicy{
//				privacy.HasRole("admin"),
//				privacy.TenantFilter("tenant"),
//			},
//			Mutation: privacy.MutationPolicy{
//				privacy.DenyIfNoViewer(),
//				privacy.IsOwner("author"),
//				privacy.AlwaysDenyRule(),
//			},
//		}),
//	)
//
// # Rule Evaluation
//
// Rules are evaluated in order until one returns a final decision:
//
//   - Allow: grants access and stops evaluation
//   - Deny: rejects the operation and stops evaluation
//   - Skip: continues to the next rule
//
// An evaluation where every rule skips allows the operation. A denied
// operation returns the decision as its error; check it with
// errors.Is(err, privacy.Deny).
//
// # Filters
//
// Filter rules AND a predicate into the query context of reads, updates
// and deletes. The predicate is resolved like any other, so it may follow
// references:
//
//	privacy.FilterFunc(func(ctx context.Context, f privacy.Filter) error {
//		f.Where(query.Q("author.team").Is(teamOf(ctx)))
//		return privacy.Skip
//	})
//
// # Viewers
//
// The viewer is stored in the context and read by the rules:
//
//	ctx = privacy.WithViewer(ctx, &privacy.SimpleViewer{
//		UserID: "42",
//		Roles:  []string{"user"},
//	})
//	posts, err := e.Select(ctx, "Post", nil)
package privacy
