// Package schema inspects the tables of a live database, compares them
// with the tables declared by a schema system and migrates the database
// forward. Migrations only add: missing tables, columns and indexes are
// created, nothing is altered or dropped.
package schema

import (
	"github.com/syssam/orb/dialect/sql"
	orbschema "github.com/syssam/orb/schema"
)

// Table is a storage table, either declared by a schema or inspected from
// the database.
type Table struct {
	Name        string
	Columns     []*Column
	Indexes     []*Index
	PrimaryKey  []*Column
	ForeignKeys []*ForeignKey

	// schema is the declaring schema; nil for inspected tables.
	schema *orbschema.Schema
}

// Schema returns the schema declaring t, or nil for an inspected table.
func (t *Table) Schema() *orbschema.Schema { return t.schema }

// Column returns the column with the given storage name.
func (t *Table) Column(name string) (*Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// Index returns the index with the given name.
func (t *Table) Index(name string) (*Index, bool) {
	for _, idx := range t.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return nil, false
}

// Column is a table column.
type Column struct {
	Name string
	// Type is the storage type: compiled for declared columns, as reported
	// by the database for inspected ones.
	Type     string
	Size     int
	Nullable bool
	Unique   bool
	Default  any
	// Inherited marks the columns a native descendant table receives from
	// its parent.
	Inherited bool

	column *orbschema.Column
}

// Index is a table index.
type Index struct {
	Name    string
	Unique  bool
	Columns []*Column

	index *orbschema.Index
}

// ForeignKey is a foreign key constraint.
type ForeignKey struct {
	Symbol     string
	Columns    []*Column
	RefTable   *Table
	RefColumns []*Column
	OnDelete   string
}

// Tables returns the tables declared by the schemas of the compiler
// system, parents and reference targets first.
func Tables(c *sql.Compiler) ([]*Table, error) {
	var (
		sys    = c.System()
		order  = c.TableOrder(sys.Schemas())
		tables = make([]*Table, 0, len(order))
		byName = make(map[*orbschema.Schema]*Table, len(order))
	)
	for _, sc := range order {
		t := &Table{Name: sc.Table, schema: sc}
		native := sc.Parent() != nil && sys.StrategyOf(sc) == orbschema.Native
		own := make(map[*orbschema.Column]bool)
		for _, col := range c.TableColumns(sc) {
			own[col] = true
		}
		cols := c.TableColumns(sc)
		if native {
			cols = sys.Columns(sc, orbschema.WithoutFlags(orbschema.Virtual))
		}
		for _, col := range cols {
			typ, err := storageType(c, col)
			if err != nil {
				return nil, err
			}
			tc := &Column{
				Name:      col.Field,
				Type:      typ,
				Size:      col.Size,
				Nullable:  !col.Has(orbschema.Required),
				Unique:    col.Has(orbschema.Unique),
				Default:   col.Default,
				Inherited: !own[col],
				column:    col,
			}
			t.Columns = append(t.Columns, tc)
			if col.Has(orbschema.Keyed) {
				t.PrimaryKey = append(t.PrimaryKey, tc)
			}
		}
		if !native {
			if p := sc.Parent(); p != nil {
				if pt, ok := byName[p]; ok {
					t.ForeignKeys = append(t.ForeignKeys, &ForeignKey{
						Columns:    t.PrimaryKey,
						RefTable:   pt,
						RefColumns: pt.PrimaryKey,
						OnDelete:   "CASCADE",
					})
				}
			}
		}
		for _, col := range cols {
			if !col.IsReference() || !own[col] {
				continue
			}
			target, err := sys.Resolve(col.RefSchema)
			if err != nil {
				return nil, err
			}
			fk := &ForeignKey{RefTable: byName[target], OnDelete: onDelete(col.OnDelete)}
			if tc, ok := t.Column(col.Field); ok {
				fk.Columns = []*Column{tc}
			}
			if fk.RefTable == nil {
				// Self reference.
				fk.RefTable = t
			}
			fk.RefColumns = fk.RefTable.PrimaryKey
			if col.RefColumn != "" {
				if rc, _, ok := target.Lookup(col.RefColumn); ok {
					if tc, ok := fk.RefTable.Column(rc.Field); ok {
						fk.RefColumns = []*Column{tc}
					}
				}
			}
			t.ForeignKeys = append(t.ForeignKeys, fk)
		}
		for _, idx := range sc.Indexes() {
			ti := &Index{Name: idx.Name, Unique: idx.Unique, index: idx}
			for _, name := range idx.Columns {
				if col, _, ok := sc.Lookup(name); ok {
					if tc, ok := t.Column(col.Field); ok {
						ti.Columns = append(ti.Columns, tc)
						continue
					}
				}
				// Kept unresolved for ValidateTable to report.
				ti.Columns = append(ti.Columns, &Column{Name: name})
			}
			t.Indexes = append(t.Indexes, ti)
		}
		byName[sc] = t
		tables = append(tables, t)
	}
	return tables, nil
}

func storageType(c *sql.Compiler, col *orbschema.Column) (string, error) {
	var target *orbschema.Column
	if col.IsReference() {
		ts, err := c.System().Resolve(col.RefSchema)
		if err != nil {
			return "", err
		}
		target = ts.Key()
		if col.RefColumn != "" {
			if rc, _, ok := ts.Lookup(col.RefColumn); ok {
				target = rc
			}
		}
	}
	return c.Dialect().ColumnType(col, target)
}

func onDelete(o orbschema.OnDelete) string {
	switch o {
	case orbschema.Cascade:
		return "CASCADE"
	case orbschema.DoNothing:
		return "NO ACTION"
	}
	return "RESTRICT"
}
