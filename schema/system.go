package schema

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/syssam/orb"
)

func newUUID() any { return uuid.New() }

// Factory builds the model value of a materialized row.
type Factory func(s *Schema, values map[string]any) (any, error)

// System is the registry of schemas. Registration is a one-time, ordered
// build step; lookups afterwards are read-only and safe for concurrent use.
type System struct {
	mu        sync.RWMutex
	schemas   map[string]*Schema
	order     []*Schema
	factories map[string]Factory
	native    bool
	validated bool
}

// NewSystem returns an empty registry.
func NewSystem() *System {
	return &System{
		schemas:   make(map[string]*Schema),
		factories: make(map[string]Factory),
	}
}

// Register adds schemas to the registry. Cross-schema checks run in Validate.
func (s *System) Register(schemas ...*Schema) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sc := range schemas {
		if _, ok := s.schemas[sc.Name]; ok {
			return fmt.Errorf("schema: %s already registered", sc.Name)
		}
		if sc.sys != nil && sc.sys != s {
			return fmt.Errorf("schema: %s belongs to another system", sc.Name)
		}
		sc.sys = s
		s.schemas[sc.Name] = sc
		s.order = append(s.order, sc)
	}
	s.validated = false
	return nil
}

// Define builds and registers the schemas in order.
func (s *System) Define(bs ...*Builder) error {
	for _, b := range bs {
		sc, err := b.Build()
		if err != nil {
			return err
		}
		if err := s.Register(sc); err != nil {
			return err
		}
	}
	return nil
}

// Resolve returns the schema registered under name.
func (s *System) Resolve(name string) (*Schema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.schemas[name]
	if !ok {
		return nil, orb.NewSchemaNotFoundError(name)
	}
	return sc, nil
}

// MustResolve is like Resolve but panics if the schema does not exist.
func (s *System) MustResolve(name string) *Schema {
	sc, err := s.Resolve(name)
	if err != nil {
		panic(err)
	}
	return sc
}

// Schemas returns the registered schemas in registration order.
func (s *System) Schemas() []*Schema {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Schema(nil), s.order...)
}

// Validated reports if Validate succeeded since the last registration.
func (s *System) Validated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.validated
}

// ColumnOption filters the result of System.Columns.
type ColumnOption func(*columnFilter)

type columnFilter struct {
	own     bool
	include Flag
	exclude Flag
}

// OwnOnly limits the result to the columns declared by the schema itself.
func OwnOnly() ColumnOption {
	return func(f *columnFilter) { f.own = true }
}

// WithFlags keeps only columns having every flag in f.
func WithFlags(f Flag) ColumnOption {
	return func(cf *columnFilter) { cf.include |= f }
}

// WithoutFlags drops columns having any flag in f.
func WithoutFlags(f Flag) ColumnOption {
	return func(cf *columnFilter) { cf.exclude |= f }
}

// Columns returns the full column set of sc, ancestors first, filtered by
// opts.
func (s *System) Columns(sc *Schema, opts ...ColumnOption) []*Column {
	var f columnFilter
	for _, opt := range opts {
		opt(&f)
	}
	chain := []*Schema{sc}
	if !f.own {
		chain = append(s.ancestry(sc), sc)
	}
	var out []*Column
	for _, cur := range chain {
		for _, c := range cur.columns {
			if f.include != 0 && !c.Has(f.include) {
				continue
			}
			if c.Flags&f.exclude != 0 {
				continue
			}
			out = append(out, c)
		}
	}
	return out
}

// Ancestry returns the ancestors of sc, closest ancestor last.
func (s *System) Ancestry(sc *Schema) ([]*Schema, error) {
	var (
		out  []*Schema
		seen = map[string]bool{sc.Name: true}
		path = []string{sc.Name}
	)
	for cur := sc; cur.Inherits != ""; {
		parent, err := s.Resolve(cur.Inherits)
		if err != nil {
			return nil, err
		}
		path = append(path, parent.Name)
		if seen[parent.Name] {
			return nil, &orb.InheritanceCycleError{Chain: path}
		}
		seen[parent.Name] = true
		out = append(out, parent)
		cur = parent
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// ancestry is Ancestry over validated parent links.
func (s *System) ancestry(sc *Schema) []*Schema {
	var out []*Schema
	for cur := sc.parent; cur != nil; cur = cur.parent {
		out = append([]*Schema{cur}, out...)
	}
	return out
}

// Targeting lists, for one schema, the reference columns of another schema
// that point at it.
type Targeting struct {
	Schema  *Schema
	Columns []*Column
}

// RelationsTargeting returns every schema holding reference columns that
// point at sc or one of its ancestors, in registration order.
func (s *System) RelationsTargeting(sc *Schema) []Targeting {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Targeting
	for _, o := range s.order {
		var cols []*Column
		for _, c := range o.columns {
			if !c.IsReference() {
				continue
			}
			if target, ok := s.schemas[c.RefSchema]; ok && sc.IsA(target) {
				cols = append(cols, c)
			}
		}
		if len(cols) > 0 {
			out = append(out, Targeting{Schema: o, Columns: cols})
		}
	}
	return out
}

// Descendants returns every registered schema inheriting from sc.
func (s *System) Descendants(sc *Schema) []*Schema {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Schema
	for _, o := range s.order {
		if o != sc && o.IsA(sc) {
			out = append(out, o)
		}
	}
	return out
}

// SetNativeInheritance records whether the target dialect supports native
// table inheritance. It decides the Auto strategy.
func (s *System) SetNativeInheritance(native bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.native = native
	s.validated = false
}

// StrategyOf returns the concrete inheritance strategy of sc.
func (s *System) StrategyOf(sc *Schema) Strategy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sc.Strategy.Resolve(s.native)
}

// Validate checks the whole registry: inheritance chains are acyclic and
// resolvable, column names are unique across each chain, references and
// collectors bind to existing schemas and columns, and index columns exist.
// It links parents and binds collectors on success.
func (s *System) Validate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validated = false
	for _, sc := range s.order {
		sc.parent = nil
	}
	for _, sc := range s.order {
		if err := s.linkParent(sc); err != nil {
			return err
		}
	}
	for _, sc := range s.order {
		if err := s.validateSchema(sc); err != nil {
			return err
		}
	}
	s.validated = true
	return nil
}

func (s *System) linkParent(sc *Schema) error {
	seen := map[string]bool{sc.Name: true}
	path := []string{sc.Name}
	for cur := sc; cur.Inherits != ""; {
		parent, ok := s.schemas[cur.Inherits]
		if !ok {
			return orb.NewSchemaNotFoundError(cur.Inherits)
		}
		path = append(path, parent.Name)
		if seen[parent.Name] {
			return &orb.InheritanceCycleError{Chain: path}
		}
		seen[parent.Name] = true
		cur = parent
	}
	if sc.Inherits != "" {
		sc.parent = s.schemas[sc.Inherits]
	}
	return nil
}

func (s *System) validateSchema(sc *Schema) error {
	if sc.Key() == nil {
		return &orb.RelationError{Schema: sc.Name, Relation: DefaultKey, Reason: "schema chain has no keyed column"}
	}
	if sc.parent != nil && sc.Strategy.Resolve(s.native) == Native && !s.native {
		return fmt.Errorf("schema: %s uses native inheritance unsupported by the dialect", sc.Name)
	}
	names := make(map[string]*Schema)
	fields := make(map[string]*Schema)
	for _, cur := range append(s.ancestry(sc), sc) {
		for _, c := range cur.columns {
			if owner, ok := names[c.Name]; ok {
				return &orb.DuplicateColumnError{Schema: sc.Name, Column: c.Name, Owner: owner.Name}
			}
			if owner, ok := fields[c.Field]; ok {
				return &orb.DuplicateColumnError{Schema: sc.Name, Column: c.Field, Owner: owner.Name}
			}
			names[c.Name] = cur
			fields[c.Field] = cur
		}
	}
	for _, c := range sc.columns {
		if !c.Type.Valid() {
			return fmt.Errorf("schema: column %s has invalid type", c)
		}
		if !c.IsReference() {
			continue
		}
		target, ok := s.schemas[c.RefSchema]
		if !ok {
			return &orb.RelationError{Schema: sc.Name, Relation: c.Name, Reason: fmt.Sprintf("unknown target schema %q", c.RefSchema)}
		}
		if c.RefColumn != "" {
			if _, _, ok := s.lookup(target, c.RefColumn); !ok {
				return &orb.RelationError{Schema: sc.Name, Relation: c.Name, Reason: fmt.Sprintf("unknown target column %s.%s", target.Name, c.RefColumn)}
			}
		}
	}
	for _, r := range sc.relations {
		if err := s.bind(sc, r); err != nil {
			return err
		}
	}
	for _, idx := range sc.indexes {
		for _, name := range idx.Columns {
			if _, ok := sc.Column(name); !ok {
				return &orb.RelationError{Schema: sc.Name, Relation: idx.Name, Reason: fmt.Sprintf("index column %q is not declared by the schema", name)}
			}
		}
	}
	return nil
}

// lookup is Schema.Lookup over unlinked chains.
func (s *System) lookup(sc *Schema, name string) (*Column, *Schema, bool) {
	for cur := sc; cur != nil; cur = s.schemas[cur.Inherits] {
		if c, ok := cur.Column(name); ok {
			return c, cur, true
		}
		if cur.Inherits == "" {
			break
		}
	}
	return nil, nil, false
}

// bind resolves a collector to exactly one concrete reference column pair.
func (s *System) bind(owner *Schema, r Relation) error {
	switch r := r.(type) {
	case *ReverseLookup:
		from, ok := s.schemas[r.From]
		if !ok {
			return &orb.RelationError{Schema: owner.Name, Relation: r.Name, Reason: fmt.Sprintf("unknown schema %q", r.From)}
		}
		c, _, ok := s.lookup(from, r.By)
		if !ok || !c.IsReference() {
			return &orb.RelationError{Schema: owner.Name, Relation: r.Name, Reason: fmt.Sprintf("%s.%s is not a reference", r.From, r.By)}
		}
		if target := s.schemas[c.RefSchema]; target == nil || !owner.IsA(target) {
			return &orb.RelationError{Schema: owner.Name, Relation: r.Name, Reason: fmt.Sprintf("%s.%s does not point at %s", r.From, r.By, owner.Name)}
		}
		r.by = c
	case *Pipe:
		through, ok := s.schemas[r.Through]
		if !ok {
			return &orb.RelationError{Schema: owner.Name, Relation: r.Name, Reason: fmt.Sprintf("unknown junction schema %q", r.Through)}
		}
		src, _, ok := s.lookup(through, r.Source)
		if !ok || !src.IsReference() {
			return &orb.RelationError{Schema: owner.Name, Relation: r.Name, Reason: fmt.Sprintf("%s.%s is not a reference", r.Through, r.Source)}
		}
		if target := s.schemas[src.RefSchema]; target == nil || !owner.IsA(target) {
			return &orb.RelationError{Schema: owner.Name, Relation: r.Name, Reason: fmt.Sprintf("%s.%s does not point at %s", r.Through, r.Source, owner.Name)}
		}
		dst, _, ok := s.lookup(through, r.Dest)
		if !ok || !dst.IsReference() {
			return &orb.RelationError{Schema: owner.Name, Relation: r.Name, Reason: fmt.Sprintf("%s.%s is not a reference", r.Through, r.Dest)}
		}
		if _, ok := s.schemas[dst.RefSchema]; !ok {
			return &orb.RelationError{Schema: owner.Name, Relation: r.Name, Reason: fmt.Sprintf("unknown target schema %q", dst.RefSchema)}
		}
		r.source, r.dest = src, dst
	}
	return nil
}

// RegisterFactory sets the constructor of materialized rows of the named
// schema.
func (s *System) RegisterFactory(name string, f Factory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.factories[name] = f
}

// Concrete returns the schema a row of base materializes as. When the chain
// has a discriminator column, its stored value names the concrete schema,
// which must be base or one of its descendants.
func (s *System) Concrete(base *Schema, row map[string]any) (*Schema, error) {
	d := base.Discriminator()
	if d == nil {
		return base, nil
	}
	v, ok := row[d.Name]
	if !ok || v == nil {
		return base, nil
	}
	var name string
	switch v := v.(type) {
	case string:
		name = v
	case []byte:
		name = string(v)
	default:
		name = fmt.Sprint(v)
	}
	if name == "" || name == base.Name {
		return base, nil
	}
	concrete, err := s.Resolve(name)
	if err != nil {
		return nil, err
	}
	if !concrete.IsA(base) {
		return nil, &orb.RelationError{Schema: base.Name, Relation: d.Name, Reason: fmt.Sprintf("discriminator %q is not a subclass", name)}
	}
	return concrete, nil
}

// Construct materializes a row: it resolves the concrete schema and calls
// the closest registered factory along its chain. Without a factory the
// row itself is returned.
func (s *System) Construct(base *Schema, row map[string]any) (*Schema, any, error) {
	concrete, err := s.Concrete(base, row)
	if err != nil {
		return nil, nil, err
	}
	s.mu.RLock()
	var f Factory
	for cur := concrete; cur != nil && f == nil; cur = cur.parent {
		f = s.factories[cur.Name]
	}
	s.mu.RUnlock()
	if f == nil {
		return concrete, row, nil
	}
	v, err := f(concrete, row)
	if err != nil {
		return nil, nil, err
	}
	return concrete, v, nil
}
