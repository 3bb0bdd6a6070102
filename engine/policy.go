package engine

import (
	"context"

	"github.com/syssam/orb/privacy"
	"github.com/syssam/orb/query"
	"github.com/syssam/orb/schema"
)

// policiesOf returns the policies guarding sc: its own, then those of its
// ancestors.
func (e *Engine) policiesOf(sc *schema.Schema) privacy.Policies {
	var out privacy.Policies
	for cur := sc; cur != nil; cur = cur.Parent() {
		out = append(out, e.policies[cur.Name]...)
	}
	return out
}

// evalQuery evaluates the query policies of sc and returns c with the
// filters the rules added.
func (e *Engine) evalQuery(ctx context.Context, sc *schema.Schema, c *query.Context) (*query.Context, error) {
	policies := e.policiesOf(sc)
	if len(policies) == 0 {
		return c, nil
	}
	q := &privacy.Query{Schema: sc, Context: c}
	if err := policies.EvalQuery(ctx, q); err != nil {
		e.log.DebugContext(ctx, "engine: query denied", "schema", sc.Name, "error", err)
		return nil, err
	}
	return q.Context, nil
}

// evalMutation evaluates the mutation policies of m.Schema. Filters added
// by the rules are left in m.Context.
func (e *Engine) evalMutation(ctx context.Context, m *privacy.Mutation) error {
	policies := e.policiesOf(m.Schema)
	if len(policies) == 0 {
		return nil
	}
	if err := policies.EvalMutation(ctx, m); err != nil {
		e.log.DebugContext(ctx, "engine: mutation denied", "schema", m.Schema.Name, "op", m.Op, "error", err)
		return err
	}
	return nil
}
