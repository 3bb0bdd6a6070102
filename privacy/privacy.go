package privacy

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/syssam/orb/query"
	"github.com/syssam/orb/schema"
)

// Policy decision sentinel errors.
//
// Rules return them, possibly wrapped, to steer the evaluation. Use
// errors.Is to check for them:
//
//	if errors.Is(err, privacy.Deny) { ... }
var (
	// Allow ends the evaluation of a policy with an allow decision.
	Allow = errors.New("orb/privacy: allow rule")

	// Deny ends the evaluation of a policy and rejects the operation.
	Deny = errors.New("orb/privacy: deny rule")

	// Skip hands the decision to the next rule of the chain.
	Skip = errors.New("orb/privacy: skip rule")
)

// Allowf returns a formatted wrapped Allow decision.
func Allowf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Allow)...)
}

// Denyf returns a formatted wrapped Deny decision.
func Denyf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Deny)...)
}

// Skipf returns a formatted wrapped Skip decision.
func Skipf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Skip)...)
}

// Op is the kind of a mutation.
type Op uint8

// Mutation operations.
const (
	OpInsert Op = 1 << iota
	OpUpdate
	OpDelete
)

// Is reports whether o is one of the operations in other.
func (o Op) Is(other Op) bool { return o&other != 0 }

func (o Op) String() string {
	switch o {
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	}
	return fmt.Sprintf("Op(%d)", uint8(o))
}

// Filter narrows the records an operation reads or writes.
type Filter interface {
	Where(query.Node)
}

// Query is a read about to run.
type Query struct {
	Schema  *schema.Schema
	Context *query.Context
}

// Where ANDs n into the filter of the query.
func (q *Query) Where(n query.Node) {
	if q.Context == nil {
		q.Context = query.NewContext()
	}
	q.Context = q.Context.With(query.Where(n))
}

// Mutation is a write about to run. Insert mutations carry the new
// records in Values and no Context. Update mutations carry the filter of
// the updated records in Context and the new column values as the single
// element of Values. Delete mutations only carry a Context.
type Mutation struct {
	Op      Op
	Schema  *schema.Schema
	Context *query.Context
	Values  []map[string]any
}

// Field returns the value the mutation writes to the named column. For an
// insert of several records, the value is reported only when every record
// writes the same one.
func (m *Mutation) Field(name string) (any, bool) {
	if len(m.Values) == 0 {
		return nil, false
	}
	v, ok := m.Values[0][name]
	if !ok {
		return nil, false
	}
	for _, rec := range m.Values[1:] {
		w, ok := rec[name]
		if !ok || !reflect.DeepEqual(v, w) {
			return nil, false
		}
	}
	return v, true
}

// Where ANDs n into the filter of an update or a delete. It has no effect
// on inserts.
func (m *Mutation) Where(n query.Node) {
	if m.Context != nil {
		m.Context = m.Context.With(query.Where(n))
	}
}

type (
	// QueryRule decides whether a query is allowed and optionally
	// narrows it.
	QueryRule interface {
		EvalQuery(context.Context, *Query) error
	}

	// QueryPolicy combines multiple query rules into a single policy.
	QueryPolicy []QueryRule

	// MutationRule decides whether a mutation is allowed and optionally
	// narrows it.
	MutationRule interface {
		EvalMutation(context.Context, *Mutation) error
	}

	// MutationPolicy combines multiple mutation rules into a single policy.
	MutationPolicy []MutationRule

	// QueryMutationRule is an interface which groups query and mutation rules.
	QueryMutationRule interface {
		QueryRule
		MutationRule
	}
)

// AlwaysAllowRule returns a rule that always returns an Allow decision.
func AlwaysAllowRule() QueryMutationRule {
	return fixedDecision{Allow}
}

// AlwaysDenyRule returns a rule that always returns a Deny decision.
func AlwaysDenyRule() QueryMutationRule {
	return fixedDecision{Deny}
}

// ContextQueryMutationRule creates a query/mutation rule from a context
// evaluation function. A nil result is equivalent to Skip.
func ContextQueryMutationRule(eval func(context.Context) error) QueryMutationRule {
	return contextDecision{eval}
}

// QueryRuleFunc type is an adapter which allows the use of ordinary
// functions as query rules.
type QueryRuleFunc func(context.Context, *Query) error

// EvalQuery returns f(ctx, q).
func (f QueryRuleFunc) EvalQuery(ctx context.Context, q *Query) error {
	return f(ctx, q)
}

// MutationRuleFunc type is an adapter which allows the use of
// ordinary functions as mutation rules.
type MutationRuleFunc func(context.Context, *Mutation) error

// EvalMutation returns f(ctx, m).
func (f MutationRuleFunc) EvalMutation(ctx context.Context, m *Mutation) error {
	return f(ctx, m)
}

// OnMutationOperation evaluates the given rule only on a given mutation operation.
func OnMutationOperation(rule MutationRule, op Op) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, m *Mutation) error {
		if m.Op.Is(op) {
			return rule.EvalMutation(ctx, m)
		}
		return Skip
	})
}

// DenyMutationOperationRule returns a rule denying specified mutation operation.
func DenyMutationOperationRule(op Op) MutationRule {
	rule := MutationRuleFunc(func(_ context.Context, m *Mutation) error {
		return Denyf("orb/privacy: operation %s is not allowed", m.Op)
	})
	return OnMutationOperation(rule, op)
}

// Policy groups query and mutation policies.
type Policy struct {
	Query    QueryPolicy
	Mutation MutationPolicy
}

// EvalQuery forwards evaluation to the query policy.
func (p Policy) EvalQuery(ctx context.Context, q *Query) error {
	return p.Query.EvalQuery(ctx, q)
}

// EvalMutation forwards evaluation to the mutation policy.
func (p Policy) EvalMutation(ctx context.Context, m *Mutation) error {
	return p.Mutation.EvalMutation(ctx, m)
}

// Policies combines the policies guarding one schema. The engine
// evaluates the policies of a schema and of its ancestors, nearest
// first.
type Policies []QueryMutationRule

// EvalQuery evaluates the query policies. If the Allow error is returned
// from one of the policies, it stops the evaluation with a nil error.
func (policies Policies) EvalQuery(ctx context.Context, q *Query) error {
	return policies.eval(ctx, func(policy QueryMutationRule) error {
		return policy.EvalQuery(ctx, q)
	})
}

// EvalMutation evaluates the mutation policies. If the Allow error is returned
// from one of the policies, it stops the evaluation with a nil error.
func (policies Policies) EvalMutation(ctx context.Context, m *Mutation) error {
	return policies.eval(ctx, func(policy QueryMutationRule) error {
		return policy.EvalMutation(ctx, m)
	})
}

func (policies Policies) eval(ctx context.Context, eval func(QueryMutationRule) error) error {
	if decision, ok := DecisionFromContext(ctx); ok {
		return decision
	}
	for _, policy := range policies {
		switch decision := eval(policy); {
		case decision == nil || errors.Is(decision, Skip):
		case errors.Is(decision, Allow):
			return nil
		default:
			return decision
		}
	}
	return nil
}

// EvalQuery evaluates a query against a query policy.
func (policies QueryPolicy) EvalQuery(ctx context.Context, q *Query) error {
	for _, policy := range policies {
		switch decision := policy.EvalQuery(ctx, q); {
		case decision == nil || errors.Is(decision, Skip):
		default:
			return decision
		}
	}
	return nil
}

// EvalMutation evaluates a mutation against a mutation policy.
func (policies MutationPolicy) EvalMutation(ctx context.Context, m *Mutation) error {
	for _, policy := range policies {
		switch decision := policy.EvalMutation(ctx, m); {
		case decision == nil || errors.Is(decision, Skip):
		default:
			return decision
		}
	}
	return nil
}

type decisionCtxKey struct{}

// DecisionContext creates a new context from the given parent context with
// a policy decision attach to it. The engine attaches Allow to the reads
// and writes it runs on its own behalf.
func DecisionContext(parent context.Context, decision error) context.Context {
	if decision == nil || errors.Is(decision, Skip) {
		return parent
	}
	return context.WithValue(parent, decisionCtxKey{}, decision)
}

// DecisionFromContext retrieves the policy decision from the context.
func DecisionFromContext(ctx context.Context) (error, bool) {
	decision, ok := ctx.Value(decisionCtxKey{}).(error)
	if ok && errors.Is(decision, Allow) {
		decision = nil
	}
	return decision, ok
}

type fixedDecision struct {
	decision error
}

func (f fixedDecision) EvalQuery(context.Context, *Query) error {
	return f.decision
}

func (f fixedDecision) EvalMutation(context.Context, *Mutation) error {
	return f.decision
}

type contextDecision struct {
	eval func(context.Context) error
}

func (c contextDecision) EvalQuery(ctx context.Context, _ *Query) error {
	return c.eval(ctx)
}

func (c contextDecision) EvalMutation(ctx context.Context, _ *Mutation) error {
	return c.eval(ctx)
}

// FilterFunc is an adapter that allows using ordinary functions as
// query/mutation rules that narrow the records an operation sees.
//
//	privacy.FilterFunc(func(ctx context.Context, f privacy.Filter) error {
//		f.Where(query.Q("workspace").Is(workspaceID))
//		return privacy.Skip
//	})
type FilterFunc func(context.Context, Filter) error

// EvalQuery calls f(ctx, q).
func (f FilterFunc) EvalQuery(ctx context.Context, q *Query) error {
	return f(ctx, q)
}

// EvalMutation calls f(ctx, m). Inserts have no filter and are denied.
func (f FilterFunc) EvalMutation(ctx context.Context, m *Mutation) error {
	if m.Context == nil {
		return Denyf("orb/privacy: %s of %s does not support filtering", m.Op, schemaName(m.Schema))
	}
	return f(ctx, m)
}

var _ QueryMutationRule = FilterFunc(nil)

func schemaName(sc *schema.Schema) string {
	if sc == nil {
		return "<nil>"
	}
	return sc.Name
}
