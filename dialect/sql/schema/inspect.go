package schema

import (
	"context"
	stdsql "database/sql"
	"fmt"

	"ariga.io/atlas/sql/migrate"
	"ariga.io/atlas/sql/mysql"
	"ariga.io/atlas/sql/postgres"
	"ariga.io/atlas/sql/schema"
	"ariga.io/atlas/sql/sqlite"

	"github.com/syssam/orb/dialect"
)

// Inspector reads the tables of a live database.
type Inspector struct {
	drv migrate.Driver
	ns  string
}

// NewInspector returns an Inspector for the database. An empty namespace
// inspects the current schema of the connection.
func NewInspector(db *stdsql.DB, dialectName, ns string) (*Inspector, error) {
	name, err := dialect.Name(dialectName)
	if err != nil {
		return nil, err
	}
	var drv migrate.Driver
	switch name {
	case dialect.Postgres:
		drv, err = postgres.Open(db)
	case dialect.MySQL:
		drv, err = mysql.Open(db)
	default:
		// SQLite has a single "main" schema per connection.
		ns = ""
		drv, err = sqlite.Open(db)
	}
	if err != nil {
		return nil, fmt.Errorf("sql/schema: open %s inspector: %w", name, err)
	}
	return &Inspector{drv: drv, ns: ns}, nil
}

// Tables returns the tables of the inspected namespace. A namespace that
// does not exist yet has no tables.
func (i *Inspector) Tables(ctx context.Context) ([]*Table, error) {
	s, err := i.drv.InspectSchema(ctx, i.ns, &schema.InspectOptions{})
	if err != nil {
		if schema.IsNotExistError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("sql/schema: inspect schema %q: %w", i.ns, err)
	}
	byName := make(map[string]*Table, len(s.Tables))
	tables := make([]*Table, 0, len(s.Tables))
	for _, at := range s.Tables {
		t := &Table{Name: at.Name}
		for _, ac := range at.Columns {
			t.Columns = append(t.Columns, convertColumn(ac))
		}
		if at.PrimaryKey != nil {
			t.PrimaryKey = partColumns(t, at.PrimaryKey.Parts)
		}
		for _, ai := range at.Indexes {
			idx := &Index{Name: ai.Name, Unique: ai.Unique, Columns: partColumns(t, ai.Parts)}
			if idx.Unique && len(idx.Columns) == 1 {
				idx.Columns[0].Unique = true
			}
			t.Indexes = append(t.Indexes, idx)
		}
		byName[t.Name] = t
		tables = append(tables, t)
	}
	for _, at := range s.Tables {
		t := byName[at.Name]
		for _, afk := range at.ForeignKeys {
			fk := &ForeignKey{Symbol: afk.Symbol, OnDelete: string(afk.OnDelete)}
			for _, c := range afk.Columns {
				if tc, ok := t.Column(c.Name); ok {
					fk.Columns = append(fk.Columns, tc)
				}
			}
			if afk.RefTable != nil {
				ref, ok := byName[afk.RefTable.Name]
				if !ok {
					ref = &Table{Name: afk.RefTable.Name}
				}
				fk.RefTable = ref
				for _, c := range afk.RefColumns {
					if tc, ok := ref.Column(c.Name); ok {
						fk.RefColumns = append(fk.RefColumns, tc)
					}
				}
			}
			t.ForeignKeys = append(t.ForeignKeys, fk)
		}
	}
	return tables, nil
}

func convertColumn(ac *schema.Column) *Column {
	c := &Column{Name: ac.Name}
	if ac.Type != nil {
		c.Type = ac.Type.Raw
		c.Nullable = ac.Type.Null
		if st, ok := ac.Type.Type.(*schema.StringType); ok {
			c.Size = st.Size
		}
		if c.Type == "" && ac.Type.Type != nil {
			c.Type = fmt.Sprintf("%T", ac.Type.Type)
		}
	}
	if lit, ok := ac.Default.(*schema.Literal); ok {
		c.Default = lit.V
	}
	return c
}

func partColumns(t *Table, parts []*schema.IndexPart) []*Column {
	var cols []*Column
	for _, p := range parts {
		if p.C == nil {
			// Expression parts are not tracked.
			continue
		}
		if tc, ok := t.Column(p.C.Name); ok {
			cols = append(cols, tc)
		}
	}
	return cols
}
