package sql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/syssam/orb/dialect"
	"github.com/syssam/orb/schema"
)

// DefaultMaxBatch is the default maximum number of rows per INSERT.
const DefaultMaxBatch = 1000

// Dialect describes how one backend spells SQL: identifier quoting,
// placeholders, capabilities and storage types.
type Dialect struct {
	Name string
	// Returning reports support for INSERT ... RETURNING.
	Returning bool
	// NativeInheritance reports support for table inheritance (INHERITS).
	NativeInheritance bool
	// Namespace is the namespace of unqualified tables.
	Namespace string

	quote    byte
	numbered bool
	types    map[schema.Type]string
}

var (
	// Postgres is the PostgreSQL dialect.
	Postgres = &Dialect{
		Name:              dialect.Postgres,
		Returning:         true,
		NativeInheritance: true,
		Namespace:         "public",
		quote:             '"',
		numbered:          true,
		types: map[schema.Type]string{
			schema.TypeBool:       "BOOLEAN",
			schema.TypeInt:        "INTEGER",
			schema.TypeLong:       "BIGINT",
			schema.TypeFloat:      "DOUBLE PRECISION",
			schema.TypeText:       "TEXT",
			schema.TypeDate:       "DATE",
			schema.TypeDateTime:   "TIMESTAMP WITHOUT TIME ZONE",
			schema.TypeDateTimeTZ: "TIMESTAMP WITH TIME ZONE",
			schema.TypeTime:       "TIME",
			schema.TypeInterval:   "BIGINT",
			schema.TypeBinary:     "BYTEA",
			schema.TypeUUID:       "UUID",
			schema.TypeJSON:       "JSONB",
		},
	}
	// SQLite is the SQLite dialect.
	SQLite = &Dialect{
		Name:      dialect.SQLite,
		Returning: true,
		quote:     '"',
		types: map[schema.Type]string{
			schema.TypeBool:       "BOOLEAN",
			schema.TypeInt:        "INTEGER",
			schema.TypeLong:       "INTEGER",
			schema.TypeFloat:      "REAL",
			schema.TypeText:       "TEXT",
			schema.TypeDate:       "DATE",
			schema.TypeDateTime:   "DATETIME",
			schema.TypeDateTimeTZ: "DATETIME",
			schema.TypeTime:       "TEXT",
			schema.TypeInterval:   "INTEGER",
			schema.TypeBinary:     "BLOB",
			schema.TypeUUID:       "TEXT",
			schema.TypeJSON:       "TEXT",
		},
	}
	// MySQL is the MySQL dialect.
	MySQL = &Dialect{
		Name:  dialect.MySQL,
		quote: '`',
		types: map[schema.Type]string{
			schema.TypeBool:       "BOOLEAN",
			schema.TypeInt:        "INT",
			schema.TypeLong:       "BIGINT",
			schema.TypeFloat:      "DOUBLE",
			schema.TypeText:       "LONGTEXT",
			schema.TypeDate:       "DATE",
			schema.TypeDateTime:   "DATETIME(6)",
			schema.TypeDateTimeTZ: "TIMESTAMP(6)",
			schema.TypeTime:       "TIME",
			schema.TypeInterval:   "BIGINT",
			schema.TypeBinary:     "LONGBLOB",
			schema.TypeUUID:       "CHAR(36)",
			schema.TypeJSON:       "JSON",
		},
	}
)

// DialectOf returns the dialect with the given dialect or driver name.
func DialectOf(name string) (*Dialect, error) {
	n, err := dialect.Name(name)
	if err != nil {
		return nil, err
	}
	switch n {
	case dialect.Postgres:
		return Postgres, nil
	case dialect.MySQL:
		return MySQL, nil
	default:
		return SQLite, nil
	}
}

// Quote quotes an identifier. Embedded quote characters are doubled.
func (d *Dialect) Quote(ident string) string {
	q := string(d.quote)
	return q + strings.ReplaceAll(ident, q, q+q) + q
}

// Table returns the quoted, optionally namespace-qualified, table name.
func (d *Dialect) Table(namespace, name string) string {
	if namespace == "" || d.Name == dialect.SQLite {
		return d.Quote(name)
	}
	return d.Quote(namespace) + "." + d.Quote(name)
}

// Placeholder returns the n-th (1-based) positional placeholder.
func (d *Dialect) Placeholder(n int) string {
	if d.numbered {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// ColumnType returns the storage type of c. Reference columns take the type
// of the column they point at, which the caller resolves into target.
func (d *Dialect) ColumnType(c, target *schema.Column) (string, error) {
	switch c.Type {
	case schema.TypeReference:
		if target == nil {
			return "", fmt.Errorf("dialect/sql: reference %s has no target column", c)
		}
		if target.IsReference() {
			return "", fmt.Errorf("dialect/sql: reference %s points at reference %s", c, target)
		}
		return d.ColumnType(target, nil)
	case schema.TypeString, schema.TypeEnum:
		size := c.Size
		if size <= 0 {
			if d.Name == dialect.MySQL || c.Type == schema.TypeEnum {
				size = 255
			} else {
				return d.types[schema.TypeText], nil
			}
		}
		return fmt.Sprintf("VARCHAR(%d)", size), nil
	case schema.TypeDecimal:
		if d.Name == dialect.SQLite {
			return "NUMERIC", nil
		}
		p, s := c.Precision, c.Scale
		if p <= 0 {
			p, s = 10, 2
		}
		return fmt.Sprintf("DECIMAL(%d, %d)", p, s), nil
	}
	t, ok := d.types[c.Type]
	if !ok {
		return "", fmt.Errorf("dialect/sql: no %s storage type for column %s of type %s", d.Name, c, c.Type)
	}
	return t, nil
}

// String implements fmt.Stringer.
func (d *Dialect) String() string { return d.Name }
