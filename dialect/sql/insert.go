package sql

import (
	"fmt"
	"sort"

	"github.com/syssam/orb"
	"github.com/syssam/orb/dialect"
	"github.com/syssam/orb/schema"
)

// Insert is the compiled form of a batch insert of records of one schema.
// Records of a shared-key schema are written to every table of the chain,
// root first; the keys generated by the root table are carried to the
// other tables. Statements are produced level by level:
//
//	ins, err := c.Insert(sc, "", records)
//	for level := range ins.Tables {
//		stmts, err := ins.Level(level)
//		// execute stmts
//		if level == 0 && !ins.KeysKnown() {
//			err = ins.SetKeys(results)
//		}
//	}
type Insert struct {
	Schema *schema.Schema
	// Tables are the storage tables written, root first.
	Tables []*schema.Schema
	// Rows are the normalized records: encoded values by column name.
	Rows []map[string]any

	c         *Compiler
	ns        string
	key       *schema.Column
	keysKnown bool
}

// Insert normalizes records of sc for insertion. Defaults are applied and
// the discriminator is set to the schema name; missing required values,
// unknown columns and abstract schemas are reported.
func (c *Compiler) Insert(sc *schema.Schema, ns string, records []map[string]any) (*Insert, error) {
	if sc.Abstract {
		return nil, orb.NewQueryInvalidError("", "abstract schema %s cannot be inserted", sc.Name)
	}
	ins := &Insert{Schema: sc, c: c, ns: ns, key: sc.Key()}
	if ins.key == nil {
		return nil, orb.NewColumnNotFoundError(sc.Name, schema.DefaultKey)
	}
	chain, err := c.sys.Ancestry(sc)
	if err != nil {
		return nil, err
	}
	if c.sys.StrategyOf(sc) == schema.Native {
		ins.Tables = []*schema.Schema{sc}
	} else {
		ins.Tables = append(chain, sc)
	}
	cols := c.sys.Columns(sc, schema.WithoutFlags(schema.Virtual))
	withKey := 0
	for i, rec := range records {
		row, err := ins.normalize(cols, rec)
		if err != nil {
			return nil, fmt.Errorf("dialect/sql: record %d: %w", i, err)
		}
		if row[ins.key.Name] != nil {
			withKey++
		}
		ins.Rows = append(ins.Rows, row)
	}
	switch withKey {
	case len(ins.Rows):
		ins.keysKnown = true
	case 0:
		if !ins.key.Has(schema.AutoIncrement) {
			return nil, orb.NewValidationError(ins.key.Name, fmt.Errorf("missing value for required column"))
		}
	default:
		return nil, orb.NewQueryInvalidError(ins.key.Name, "either every record or none carries a key")
	}
	return ins, nil
}

func (ins *Insert) normalize(cols []*schema.Column, rec map[string]any) (map[string]any, error) {
	names := make([]string, 0, len(rec))
	for name := range rec {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		col, _, ok := ins.Schema.Lookup(name)
		if !ok {
			return nil, orb.NewColumnNotFoundError(ins.Schema.Name, name)
		}
		if col.Has(schema.Virtual) {
			return nil, orb.NewQueryInvalidError(name, "virtual columns are not stored")
		}
	}
	row := make(map[string]any, len(cols))
	for _, col := range cols {
		v, ok := rec[col.Name]
		switch {
		case ok && v != nil:
		case col.Has(schema.Polymorphic):
			v = ins.Schema.Name
		default:
			if dv, has := col.DefaultValue(); has {
				v = dv
			}
		}
		if v == nil {
			if col.Has(schema.Required) && !col.Has(schema.AutoIncrement) {
				return nil, orb.NewValidationError(col.Name, fmt.Errorf("missing value for required column"))
			}
			if ok {
				row[col.Name] = nil
			}
			continue
		}
		ev, err := ins.c.Encode(col, v)
		if err != nil {
			return nil, err
		}
		row[col.Name] = ev
	}
	return row, nil
}

// KeysKnown reports if every row carries its key.
func (ins *Insert) KeysKnown() bool { return ins.keysKnown }

// Keys returns the key of every row, nil entries while unknown.
func (ins *Insert) Keys() []any {
	keys := make([]any, len(ins.Rows))
	for i, row := range ins.Rows {
		keys[i] = row[ins.key.Name]
	}
	return keys
}

// columns returns the stored columns written to the table at level, the
// shared key first for every table but the root.
func (ins *Insert) columns(level int) []*schema.Column {
	tbl := ins.Tables[level]
	var cols []*schema.Column
	if len(ins.Tables) == 1 {
		cols = ins.c.sys.Columns(tbl, schema.WithoutFlags(schema.Virtual))
	} else {
		cols = ins.c.sys.Columns(tbl, schema.OwnOnly(), schema.WithoutFlags(schema.Virtual))
		if level > 0 {
			cols = append([]*schema.Column{ins.key}, cols...)
		}
	}
	// Keep only the columns some row writes.
	out := cols[:0:0]
	for _, col := range cols {
		for _, row := range ins.Rows {
			if _, ok := row[col.Name]; ok {
				out = append(out, col)
				break
			}
		}
	}
	return out
}

// Level returns the statements inserting the rows into the table at level,
// chunked to the compiler batch size. Levels above the root require the
// keys to be known.
func (ins *Insert) Level(level int) ([]*dialect.Statement, error) {
	if level < 0 || level >= len(ins.Tables) {
		return nil, fmt.Errorf("dialect/sql: insert level %d out of range", level)
	}
	if level > 0 && !ins.keysKnown {
		return nil, fmt.Errorf("dialect/sql: insert into %s before the keys of %s are known", ins.Tables[level].Table, ins.Tables[0].Table)
	}
	var (
		d         = ins.c.d
		cols      = ins.columns(level)
		table     = ins.c.table(ins.Tables[level], ins.ns)
		returning = level == 0 && !ins.keysKnown && d.Returning
		stmts     []*dialect.Statement
	)
	finish := func(b *Builder) {
		if returning {
			b.WriteString(" RETURNING ").Ident(ins.key.Field)
		}
		stmt := b.Statement()
		stmt.Write, stmt.Rows, stmt.Schema = true, returning, ins.Schema.Name
		stmts = append(stmts, stmt)
	}
	if len(cols) == 0 {
		for range ins.Rows {
			b := d.NewBuilder()
			b.WriteString("INSERT INTO ").WriteString(table)
			if d.Name == dialect.MySQL {
				b.WriteString(" () VALUES ()")
			} else {
				b.WriteString(" DEFAULT VALUES")
			}
			finish(b)
		}
		return stmts, nil
	}
	for start := 0; start < len(ins.Rows); start += ins.c.maxBatch {
		end := min(start+ins.c.maxBatch, len(ins.Rows))
		b := d.NewBuilder()
		b.WriteString("INSERT INTO ").WriteString(table).WriteString(" (")
		for i, col := range cols {
			if i > 0 {
				b.WriteString(", ")
			}
			b.Ident(col.Field)
		}
		b.WriteString(") VALUES ")
		for i, row := range ins.Rows[start:end] {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("(")
			for j, col := range cols {
				if j > 0 {
					b.WriteString(", ")
				}
				b.Arg(row[col.Name])
			}
			b.WriteString(")")
		}
		finish(b)
	}
	return stmts, nil
}

// Statements returns the statements of every level. It is only valid when
// the keys are known or the schema is stored in a single table.
func (ins *Insert) Statements() ([]*dialect.Statement, error) {
	var out []*dialect.Statement
	for level := range ins.Tables {
		stmts, err := ins.Level(level)
		if err != nil {
			return nil, err
		}
		out = append(out, stmts...)
	}
	return out, nil
}

// SetKeys records the keys generated by the root table, read from the
// results of the level 0 statements: the returned rows, or the last insert
// id of each statement where RETURNING is unsupported.
func (ins *Insert) SetKeys(results []*dialect.Result) error {
	if ins.keysKnown {
		return nil
	}
	var keys []any
	for _, res := range results {
		if len(res.Rows) > 0 {
			for _, r := range res.Rows {
				if len(r) == 0 {
					return fmt.Errorf("dialect/sql: empty returned row")
				}
				keys = append(keys, r[0])
			}
			continue
		}
		// Multi-row inserts report the id of their first row; the
		// following ids are consecutive.
		n := res.RowsAffected
		if n == 0 {
			n = 1
		}
		for i := int64(0); i < n; i++ {
			keys = append(keys, res.LastInsertID+i)
		}
	}
	if len(keys) != len(ins.Rows) {
		return fmt.Errorf("dialect/sql: got %d generated keys for %d rows", len(keys), len(ins.Rows))
	}
	for i, k := range keys {
		v, err := ins.c.Decode(ins.key, k)
		if err != nil {
			return err
		}
		ins.Rows[i][ins.key.Name] = v
	}
	ins.keysKnown = true
	return nil
}
