package engine

import (
	"context"

	"github.com/syssam/orb/dialect"
	"github.com/syssam/orb/privacy"
	"github.com/syssam/orb/query"
	"github.com/syssam/orb/schema"
)

// Insert stores records of the named schema and returns their keys, in
// order. Records of a shared-key schema are written to every table of the
// chain in one transaction; the keys generated by the root table are
// carried to the others.
func (e *Engine) Insert(ctx context.Context, name string, records ...map[string]any) ([]any, error) {
	c := e.scope(ctx, nil)
	ctx, cancel := withTimeout(ctx, c)
	defer cancel()
	sc, err := e.sys.Resolve(name)
	if err != nil {
		return nil, err
	}
	if err := e.evalMutation(ctx, &privacy.Mutation{Op: privacy.OpInsert, Schema: sc, Values: records}); err != nil {
		return nil, err
	}
	ins, err := e.compiler.Insert(sc, c.Namespace(), records)
	if err != nil {
		return nil, err
	}
	if len(ins.Rows) == 0 {
		return nil, nil
	}
	if c.DryRun() {
		for level := range ins.Tables {
			if level > 0 && !ins.KeysKnown() {
				break
			}
			stmts, err := ins.Level(level)
			if err != nil {
				return nil, err
			}
			e.dryRun(ctx, stmts...)
		}
		return ins.Keys(), nil
	}
	err = e.InTx(ctx, func(ctx context.Context) error {
		for level := range ins.Tables {
			stmts, err := ins.Level(level)
			if err != nil {
				return err
			}
			results, err := e.execAll(ctx, false, stmts)
			if err != nil {
				return err
			}
			if level == 0 {
				if err := ins.SetKeys(results); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.invalidate(ctx, sc)
	e.log.DebugContext(ctx, "engine: insert", "schema", sc.Name, "rows", len(ins.Rows))
	return ins.Keys(), nil
}

// Update sets values, keyed by column name, on the records of the named
// schema matching c and returns the number of records changed. A context
// without a filter updates nothing.
func (e *Engine) Update(ctx context.Context, name string, c *query.Context, values map[string]any) (int64, error) {
	c = e.scope(ctx, c)
	ctx, cancel := withTimeout(ctx, c)
	defer cancel()
	sc, err := e.sys.Resolve(name)
	if err != nil {
		return 0, err
	}
	m := &privacy.Mutation{Op: privacy.OpUpdate, Schema: sc, Context: c, Values: []map[string]any{values}}
	if c.Where() != nil {
		if err := e.evalMutation(ctx, m); err != nil {
			return 0, err
		}
		c = m.Context
	}
	p, err := e.resolver.Resolve(sc, c)
	if err != nil {
		return 0, err
	}
	stmts, err := e.compiler.Update(p, values)
	if err != nil {
		return 0, err
	}
	if noop(stmts) {
		return 0, nil
	}
	var n int64
	err = e.InTx(ctx, func(ctx context.Context) error {
		results, err := e.execAll(ctx, c.DryRun(), stmts)
		if err != nil {
			return err
		}
		if len(results) > 0 {
			n = results[0].RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if !c.DryRun() {
		e.invalidate(ctx, sc)
	}
	return n, nil
}

// Delete removes the records of the named schema matching c and returns
// the number of records removed. Before the records go, the remove action
// of every reverse lookup pointing at them is applied: Unset clears the
// referencing column, Delete removes the referencing records (applying
// their own remove actions). A context without a filter deletes nothing.
// Only the policies of the named schema are evaluated, and only for a
// filtered context; remove actions run on behalf of the delete.
func (e *Engine) Delete(ctx context.Context, name string, c *query.Context) (int64, error) {
	c = e.scope(ctx, c)
	ctx, cancel := withTimeout(ctx, c)
	defer cancel()
	sc, err := e.sys.Resolve(name)
	if err != nil {
		return 0, err
	}
	m := &privacy.Mutation{Op: privacy.OpDelete, Schema: sc, Context: c}
	if c.Where() != nil {
		if err := e.evalMutation(ctx, m); err != nil {
			return 0, err
		}
		c = m.Context
	}
	var (
		n       int64
		touched []*schema.Schema
	)
	err = e.InTx(ctx, func(ctx context.Context) error {
		var err error
		n, err = e.delete(ctx, sc, c, make(map[string]bool), &touched)
		return err
	})
	if err != nil {
		return 0, err
	}
	if !c.DryRun() {
		e.invalidate(ctx, touched...)
	}
	return n, nil
}

// delete runs the remove actions of the lookups pointing at sc, then the
// DELETE statement. The keys of the matched records are read first and
// both steps run against them: a remove action may change the rows the
// filter goes through. The actions of each schema are applied once per
// call, which ends the recursion on self-referencing lookups.
func (e *Engine) delete(ctx context.Context, sc *schema.Schema, c *query.Context, seen map[string]bool, touched *[]*schema.Schema) (int64, error) {
	p, err := e.resolver.Resolve(sc, c)
	if err != nil {
		return 0, err
	}
	stmt, err := e.compiler.Delete(p)
	if err != nil || stmt.Noop {
		return 0, err
	}
	if !c.DryRun() {
		keys, err := e.matchedKeys(ctx, sc, c)
		if err != nil || len(keys) == 0 {
			return 0, err
		}
		c = query.NewContext(
			query.Where(query.Q(sc.Key().Name).IsIn(keys)),
			query.Namespace(c.Namespace()),
		)
		if p, err = e.resolver.Resolve(sc, c); err != nil {
			return 0, err
		}
		if stmt, err = e.compiler.Delete(p); err != nil {
			return 0, err
		}
	}
	*touched = append(*touched, sc)
	if !seen[sc.Name] {
		seen[sc.Name] = true
		for _, l := range lookups(sc) {
			from, err := e.sys.Resolve(l.From)
			if err != nil {
				return 0, err
			}
			by := l.Column()
			rc := query.NewContext(
				query.Where(query.Q(by.Name).IsIn(query.From(sc.Name, sc.Key().Name, c.Where()))),
				query.Namespace(c.Namespace()),
			)
			if c.DryRun() {
				rc = rc.With(query.DryRun())
			}
			if l.Remove == schema.Delete {
				if _, err := e.delete(ctx, from, rc, seen, touched); err != nil {
					return 0, err
				}
				continue
			}
			rp, err := e.resolver.Resolve(from, rc)
			if err != nil {
				return 0, err
			}
			stmts, err := e.compiler.Update(rp, map[string]any{by.Name: nil})
			if err != nil {
				return 0, err
			}
			if _, err := e.execAll(ctx, c.DryRun(), stmts); err != nil {
				return 0, err
			}
			*touched = append(*touched, from)
		}
	}
	results, err := e.execAll(ctx, c.DryRun(), []*dialect.Statement{stmt})
	if err != nil {
		return 0, err
	}
	e.log.DebugContext(ctx, "engine: delete", "schema", sc.Name, "rows", results[0].RowsAffected)
	return results[0].RowsAffected, nil
}

// matchedKeys returns the keys of the records of sc matching the filter
// of c.
func (e *Engine) matchedKeys(ctx context.Context, sc *schema.Schema, c *query.Context) ([]any, error) {
	key := sc.Key().Name
	p, err := e.resolver.Resolve(sc, query.NewContext(
		query.Where(c.Where()),
		query.Namespace(c.Namespace()),
		query.Columns(key),
	))
	if err != nil {
		return nil, err
	}
	stmt, err := e.compiler.Select(p)
	if err != nil || stmt.Noop {
		return nil, err
	}
	res, err := e.coord.Exec(ctx, stmt)
	if err != nil {
		return nil, err
	}
	keys := make([]any, 0, len(res.Rows))
	for _, row := range res.Rows {
		values, err := e.compiler.DecodeRow(p.Fields, row)
		if err != nil {
			return nil, err
		}
		keys = append(keys, values[key])
	}
	return keys, nil
}

// lookups returns the reverse lookups declared by sc and its ancestors.
func lookups(sc *schema.Schema) []*schema.ReverseLookup {
	var out []*schema.ReverseLookup
	for cur := sc; cur != nil; cur = cur.Parent() {
		for _, r := range cur.Relations() {
			if l, ok := r.(*schema.ReverseLookup); ok {
				out = append(out, l)
			}
		}
	}
	return out
}

// execAll runs stmts in order. A dry run logs them and returns empty
// results.
func (e *Engine) execAll(ctx context.Context, dry bool, stmts []*dialect.Statement) ([]*dialect.Result, error) {
	results := make([]*dialect.Result, 0, len(stmts))
	for _, stmt := range stmts {
		if dry || stmt.Noop {
			if dry {
				e.dryRun(ctx, stmt)
			}
			results = append(results, &dialect.Result{})
			continue
		}
		res, err := e.coord.Exec(ctx, stmt)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

func noop(stmts []*dialect.Statement) bool {
	for _, s := range stmts {
		if !s.Noop {
			return false
		}
	}
	return true
}
