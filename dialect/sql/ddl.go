package sql

import (
	"fmt"
	"strings"

	"github.com/syssam/orb/dialect"
	"github.com/syssam/orb/schema"
)

// TableColumns returns the stored columns of the table of sc. A shared-key
// descendant table holds the shared key and its own columns; a native
// descendant declares only its own columns and inherits the rest.
func (c *Compiler) TableColumns(sc *schema.Schema) []*schema.Column {
	own := c.sys.Columns(sc, schema.OwnOnly(), schema.WithoutFlags(schema.Virtual))
	if sc.Parent() == nil || c.sys.StrategyOf(sc) == schema.Native {
		return own
	}
	return append([]*schema.Column{sc.Key()}, own...)
}

// CreateTable compiles the CREATE TABLE statement of sc.
func (c *Compiler) CreateTable(sc *schema.Schema, ns string) (*dialect.Statement, error) {
	var (
		b      = c.d.NewBuilder()
		native = sc.Parent() != nil && c.sys.StrategyOf(sc) == schema.Native
		defs   []string
		fks    []string
	)
	for _, col := range c.TableColumns(sc) {
		def, err := c.columnDef(sc, col)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
		if col.IsReference() {
			fk, err := c.foreignKey(col, ns)
			if err != nil {
				return nil, err
			}
			fks = append(fks, fk)
		}
	}
	if p := sc.Parent(); p != nil && !native {
		key := sc.Key()
		fks = append([]string{fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s) ON DELETE CASCADE",
			c.d.Quote(key.Field), c.table(p, ns), c.d.Quote(key.Field))}, fks...)
	}
	b.WriteString("CREATE TABLE IF NOT EXISTS ").WriteString(c.table(sc, ns)).WriteString(" (")
	b.WriteString(strings.Join(append(defs, fks...), ", "))
	b.WriteString(")")
	if native {
		b.WriteString(" INHERITS (").WriteString(c.table(sc.Parent(), ns)).WriteString(")")
	}
	stmt := b.Statement()
	stmt.Write, stmt.Schema = true, sc.Name
	return stmt, nil
}

// columnDef renders the definition of col inside the table of sc.
func (c *Compiler) columnDef(sc *schema.Schema, col *schema.Column) (string, error) {
	name := c.d.Quote(col.Field)
	if col.Has(schema.Keyed) {
		return c.keyDef(sc, col)
	}
	typ, err := c.storageType(col)
	if err != nil {
		return "", err
	}
	def := name + " " + typ
	if col.Has(schema.Required) {
		def += " NOT NULL"
	}
	if col.Has(schema.Unique) {
		def += " UNIQUE"
	}
	return def, nil
}

// keyDef renders the key column. The root table of an auto-incremented
// key generates it; other tables store the value generated by the root.
func (c *Compiler) keyDef(sc *schema.Schema, col *schema.Column) (string, error) {
	name := c.d.Quote(col.Field)
	if !col.Has(schema.AutoIncrement) || sc.Parent() != nil {
		typ, err := c.storageType(col)
		if err != nil {
			return "", err
		}
		return name + " " + typ + " PRIMARY KEY", nil
	}
	long := col.Type != schema.TypeInt
	switch c.d.Name {
	case dialect.Postgres:
		if long {
			return name + " BIGSERIAL PRIMARY KEY", nil
		}
		return name + " SERIAL PRIMARY KEY", nil
	case dialect.SQLite:
		return name + " INTEGER PRIMARY KEY AUTOINCREMENT", nil
	default:
		typ := "INT"
		if long {
			typ = "BIGINT"
		}
		return name + " " + typ + " NOT NULL AUTO_INCREMENT PRIMARY KEY", nil
	}
}

func (c *Compiler) storageType(col *schema.Column) (string, error) {
	var target *schema.Column
	if col.IsReference() {
		t, err := c.refTarget(col)
		if err != nil {
			return "", err
		}
		target = t
	}
	return c.d.ColumnType(col, target)
}

// foreignKey renders the constraint of a reference column.
func (c *Compiler) foreignKey(col *schema.Column, ns string) (string, error) {
	target, err := c.refTarget(col)
	if err != nil {
		return "", err
	}
	owner := target.Schema()
	if target.Has(schema.Keyed) {
		// Every table of a shared-key chain stores the key; reference the
		// table of the target schema itself.
		ts, err := c.sys.Resolve(col.RefSchema)
		if err != nil {
			return "", err
		}
		owner = ts
	}
	return fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s) ON DELETE %s",
		c.d.Quote(col.Field), c.table(owner, ns), c.d.Quote(target.Field), onDelete(col.OnDelete)), nil
}

func onDelete(o schema.OnDelete) string {
	switch o {
	case schema.Cascade:
		return "CASCADE"
	case schema.DoNothing:
		return "NO ACTION"
	default:
		return "RESTRICT"
	}
}

// CreateIndex compiles the CREATE INDEX statement of idx.
func (c *Compiler) CreateIndex(idx *schema.Index, ns string) (*dialect.Statement, error) {
	sc := idx.Schema()
	cols := c.TableColumns(sc)
	if c.sys.StrategyOf(sc) == schema.Native {
		cols = c.sys.Columns(sc, schema.WithoutFlags(schema.Virtual))
	}
	stored := make(map[string]*schema.Column, len(cols))
	for _, col := range cols {
		stored[col.Name] = col
	}
	fields := make([]string, len(idx.Columns))
	for i, name := range idx.Columns {
		col, ok := stored[name]
		if !ok {
			return nil, fmt.Errorf("dialect/sql: index %s: column %q is not stored in table %s", idx.Name, name, sc.Table)
		}
		fields[i] = c.d.Quote(col.Field)
	}
	b := c.d.NewBuilder()
	b.WriteString("CREATE ")
	if idx.Unique {
		b.WriteString("UNIQUE ")
	}
	b.WriteString("INDEX ")
	if c.d.Name != dialect.MySQL {
		b.WriteString("IF NOT EXISTS ")
	}
	b.Ident(idx.Name).WriteString(" ON ").WriteString(c.table(sc, ns)).
		WriteString(" (" + strings.Join(fields, ", ") + ")")
	stmt := b.Statement()
	stmt.Write, stmt.Schema = true, sc.Name
	return stmt, nil
}

// AddColumn compiles the ALTER TABLE statement adding col to the table of
// sc. Added columns are nullable and carry no constraint, as existing rows
// have no value for them. The uniqueness of an added column is enforced
// by the index UniqueIndex compiles.
func (c *Compiler) AddColumn(sc *schema.Schema, col *schema.Column, ns string) (*dialect.Statement, error) {
	typ, err := c.storageType(col)
	if err != nil {
		return nil, err
	}
	b := c.d.NewBuilder()
	b.WriteString("ALTER TABLE ").WriteString(c.table(sc, ns)).
		WriteString(" ADD COLUMN ").Ident(col.Field).WriteString(" " + typ)
	stmt := b.Statement()
	stmt.Write, stmt.Schema = true, sc.Name
	return stmt, nil
}

// UniqueIndex compiles the CREATE UNIQUE INDEX statement enforcing the
// uniqueness of col, named "<table>_<field>_key". Rows holding NULL do not
// conflict, so the index also fits a column added to a populated table.
func (c *Compiler) UniqueIndex(sc *schema.Schema, col *schema.Column, ns string) (*dialect.Statement, error) {
	if !col.Has(schema.Unique) {
		return nil, fmt.Errorf("dialect/sql: column %q of %s is not unique", col.Name, sc.Name)
	}
	b := c.d.NewBuilder()
	b.WriteString("CREATE UNIQUE INDEX ")
	if c.d.Name != dialect.MySQL {
		b.WriteString("IF NOT EXISTS ")
	}
	b.Ident(sc.Table+"_"+col.Field+"_key").WriteString(" ON ").WriteString(c.table(sc, ns)).
		WriteString(" (").Ident(col.Field).WriteString(")")
	stmt := b.Statement()
	stmt.Write, stmt.Schema = true, sc.Name
	return stmt, nil
}

// TableOrder sorts schemas so that every table is created after its parent
// and the tables its references point at. Self references and cycles are
// left in registration order.
func (c *Compiler) TableOrder(schemas []*schema.Schema) []*schema.Schema {
	var (
		out   = make([]*schema.Schema, 0, len(schemas))
		state = make(map[*schema.Schema]int, len(schemas))
		in    = make(map[*schema.Schema]bool, len(schemas))
		visit func(*schema.Schema)
	)
	for _, sc := range schemas {
		in[sc] = true
	}
	visit = func(sc *schema.Schema) {
		if state[sc] != 0 {
			return
		}
		state[sc] = 1
		if p := sc.Parent(); p != nil && in[p] {
			visit(p)
		}
		for _, col := range c.TableColumns(sc) {
			if !col.IsReference() {
				continue
			}
			if target, err := c.sys.Resolve(col.RefSchema); err == nil && target != sc && in[target] {
				visit(target)
			}
		}
		state[sc] = 2
		out = append(out, sc)
	}
	for _, sc := range schemas {
		visit(sc)
	}
	return out
}

// CreateAll compiles the CREATE TABLE and CREATE INDEX statements of every
// registered schema, in dependency order.
func (c *Compiler) CreateAll(ns string) ([]*dialect.Statement, error) {
	var stmts []*dialect.Statement
	for _, sc := range c.TableOrder(c.sys.Schemas()) {
		stmt, err := c.CreateTable(sc, ns)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
		for _, idx := range sc.Indexes() {
			stmt, err := c.CreateIndex(idx, ns)
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, stmt)
		}
	}
	return stmts, nil
}
