package engine

import (
	"context"

	"github.com/syssam/orb"
	"github.com/syssam/orb/query"
	"github.com/syssam/orb/schema"
)

// expand pre-fetches the first level of the expansion tree of c for
// records of sc, one query per relation. Deeper levels are expanded by the
// nested selects.
func (e *Engine) expand(ctx context.Context, sc *schema.Schema, records []*Record, c *query.Context) error {
	tree := c.Expand()
	if len(tree) == 0 || len(records) == 0 {
		return nil
	}
	for _, name := range tree.Names() {
		rel, ok := sc.Relation(name)
		if !ok {
			return orb.NewQueryInvalidError(name, "%s has no relation %s", sc.Name, name)
		}
		sub := e.subContext(c, tree[name])
		var err error
		switch rel := rel.(type) {
		case *schema.Reference:
			err = e.expandReference(ctx, name, rel, records, sub)
		case *schema.ReverseLookup:
			err = e.expandLookup(ctx, sc, name, rel, records, sub)
		case *schema.Pipe:
			err = e.expandPipe(ctx, sc, name, rel, records, sub)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// subContext returns the context of the related reads: the storage
// options of c and the subtree to expand further.
func (e *Engine) subContext(c *query.Context, tree query.Expand) *query.Context {
	opts := []query.Option{
		query.Namespace(c.Namespace()),
		query.Locale(c.Locale()),
		query.ExpandPaths(tree.String()),
	}
	if c.ForceExpand() {
		opts = append(opts, query.ForceExpand())
	}
	if c.CacheDisabled() {
		opts = append(opts, query.NoCache())
	}
	return query.NewContext(opts...)
}

func (e *Engine) expandReference(ctx context.Context, name string, rel *schema.Reference, records []*Record, sub *query.Context) error {
	target, err := e.sys.Resolve(rel.Target())
	if err != nil {
		return err
	}
	refKey := refColumn(rel.Column, target)
	related, err := e.related(ctx, target, refKey, distinct(records, name), sub)
	if err != nil {
		return err
	}
	byKey := index(related, refKey)
	for _, r := range records {
		if v := r.Values[name]; v != nil {
			r.relate(name, sub.ForceExpand(), byKey[mapKey(v)]...)
		} else {
			r.relate(name, sub.ForceExpand())
		}
	}
	return nil
}

func (e *Engine) expandLookup(ctx context.Context, sc *schema.Schema, name string, rel *schema.ReverseLookup, records []*Record, sub *query.Context) error {
	from, err := e.sys.Resolve(rel.From)
	if err != nil {
		return err
	}
	key, by := sc.Key().Name, rel.Column().Name
	related, err := e.related(ctx, from, by, distinct(records, key), sub)
	if err != nil {
		return err
	}
	byOwner := index(related, by)
	for _, r := range records {
		r.relate(name, sub.ForceExpand(), byOwner[mapKey(r.Values[key])]...)
	}
	return nil
}

func (e *Engine) expandPipe(ctx context.Context, sc *schema.Schema, name string, rel *schema.Pipe, records []*Record, sub *query.Context) error {
	through, err := e.sys.Resolve(rel.Through)
	if err != nil {
		return err
	}
	target, err := e.sys.Resolve(rel.Target())
	if err != nil {
		return err
	}
	var (
		key      = sc.Key().Name
		src, dst = rel.SourceColumn().Name, rel.DestColumn().Name
		refKey   = refColumn(rel.DestColumn(), target)
	)
	linkCtx := query.NewContext(query.Columns(src, dst), query.Namespace(sub.Namespace()))
	if sub.CacheDisabled() {
		linkCtx = linkCtx.With(query.NoCache())
	}
	links, err := e.related(ctx, through, src, distinct(records, key), linkCtx)
	if err != nil {
		return err
	}
	related, err := e.related(ctx, target, refKey, distinct(links, dst), sub)
	if err != nil {
		return err
	}
	byKey := index(related, refKey)
	bySource := make(map[any][]*Record)
	for _, l := range links {
		s := mapKey(l.Values[src])
		bySource[s] = append(bySource[s], byKey[mapKey(l.Values[dst])]...)
	}
	for _, r := range records {
		r.relate(name, sub.ForceExpand(), bySource[mapKey(r.Values[key])]...)
	}
	return nil
}

// related selects the records of sc whose column is one of ids. No query
// runs without ids.
func (e *Engine) related(ctx context.Context, sc *schema.Schema, column string, ids []any, c *query.Context) ([]*Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return e.selectRecords(ctx, sc, c.With(query.Where(query.Q(column).In(ids...))))
}

// refColumn returns the name of the target column a reference points at.
func refColumn(c *schema.Column, target *schema.Schema) string {
	if c.RefColumn != "" {
		return c.RefColumn
	}
	return target.Key().Name
}

// distinct returns the non-null values of the named column, in first
// appearance order.
func distinct(records []*Record, name string) []any {
	var (
		out  []any
		seen = make(map[any]bool)
	)
	for _, r := range records {
		v := r.Values[name]
		if v == nil {
			continue
		}
		if k := mapKey(v); !seen[k] {
			seen[k] = true
			out = append(out, v)
		}
	}
	return out
}

// index groups records by the value of the named column.
func index(records []*Record, name string) map[any][]*Record {
	out := make(map[any][]*Record, len(records))
	for _, r := range records {
		if v := r.Values[name]; v != nil {
			k := mapKey(v)
			out[k] = append(out[k], r)
		}
	}
	return out
}

// mapKey returns a comparable form of a decoded value.
func mapKey(v any) any {
	switch v := v.(type) {
	case []byte:
		return string(v)
	case int:
		return int64(v)
	case int32:
		return int64(v)
	}
	return v
}
