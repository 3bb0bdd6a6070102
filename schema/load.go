package schema

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// File is the YAML form of a set of schema definitions.
//
//	schemas:
//	  - name: User
//	    columns:
//	      - {name: username, type: string, size: 64, flags: [required, unique]}
//	      - {name: group, type: reference, ref: Group, on_delete: cascade}
//	    pipes:
//	      - {name: roles, through: UserRole, source: user, dest: role}
//	    indexes:
//	      - {columns: [username], unique: true}
type File struct {
	Schemas []SchemaDef `yaml:"schemas"`
}

// SchemaDef is the YAML form of one schema.
type SchemaDef struct {
	Name      string      `yaml:"name"`
	Table     string      `yaml:"table"`
	Namespace string      `yaml:"namespace"`
	Inherits  string      `yaml:"inherits"`
	Strategy  string      `yaml:"strategy"`
	Abstract  bool        `yaml:"abstract"`
	Order     string      `yaml:"order"`
	Key       string      `yaml:"key"`
	Columns   []ColumnDef `yaml:"columns"`
	Lookups   []LookupDef `yaml:"lookups"`
	Pipes     []PipeDef   `yaml:"pipes"`
	Indexes   []IndexDef  `yaml:"indexes"`
}

// ColumnDef is the YAML form of one column.
type ColumnDef struct {
	Name      string   `yaml:"name"`
	Field     string   `yaml:"field"`
	Label     string   `yaml:"label"`
	Type      string   `yaml:"type"`
	Flags     []string `yaml:"flags"`
	Size      int      `yaml:"size"`
	Precision int      `yaml:"precision"`
	Scale     int      `yaml:"scale"`
	Enum      []string `yaml:"enum"`
	Default   any      `yaml:"default"`
	Ref       string   `yaml:"ref"`
	RefColumn string   `yaml:"ref_column"`
	OnDelete  string   `yaml:"on_delete"`
}

// LookupDef is the YAML form of a reverse lookup.
type LookupDef struct {
	Name   string `yaml:"name"`
	From   string `yaml:"from"`
	By     string `yaml:"by"`
	Remove string `yaml:"remove"`
}

// PipeDef is the YAML form of a pipe.
type PipeDef struct {
	Name    string `yaml:"name"`
	Through string `yaml:"through"`
	Source  string `yaml:"source"`
	Dest    string `yaml:"dest"`
}

// IndexDef is the YAML form of an index.
type IndexDef struct {
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"`
	Unique  bool     `yaml:"unique"`
}

// Load decodes YAML schema definitions and registers them on sys.
func Load(r io.Reader, sys *System) error {
	var f File
	if err := yaml.NewDecoder(r).Decode(&f); err != nil && err != io.EOF {
		return fmt.Errorf("schema: decode definitions: %w", err)
	}
	for _, def := range f.Schemas {
		b, err := def.builder()
		if err != nil {
			return err
		}
		if err := sys.Define(b); err != nil {
			return err
		}
	}
	return nil
}

type columnDef struct{ c *Column }

func (d columnDef) Descriptor() *Column { return d.c }

type relationDef struct{ r Relation }

func (d relationDef) Descriptor() Relation { return d.r }

type indexDef struct{ i *Index }

func (d indexDef) Descriptor() *Index { return d.i }

func (def SchemaDef) builder() (*Builder, error) {
	b := Define(def.Name).
		Table(def.Table).
		Namespace(def.Namespace).
		Inherits(def.Inherits).
		Order(def.Order)
	st, err := ParseStrategy(def.Strategy)
	if err != nil {
		return nil, err
	}
	b.Strategy(st)
	if def.Abstract {
		b.Abstract()
	}
	switch def.Key {
	case "", "long":
	case "uuid":
		b.UUIDKey()
	case "none":
		b.NoKey()
	default:
		return nil, fmt.Errorf("schema: %s: unknown key kind %q", def.Name, def.Key)
	}
	for _, cd := range def.Columns {
		c, err := cd.column()
		if err != nil {
			return nil, fmt.Errorf("schema: %s: %w", def.Name, err)
		}
		b.Fields(columnDef{c})
	}
	for _, ld := range def.Lookups {
		action, err := ParseRemoveAction(ld.Remove)
		if err != nil {
			return nil, err
		}
		b.Edges(relationDef{&ReverseLookup{Name: ld.Name, From: ld.From, By: ld.By, Remove: action}})
	}
	for _, pd := range def.Pipes {
		b.Edges(relationDef{&Pipe{Name: pd.Name, Through: pd.Through, Source: pd.Source, Dest: pd.Dest}})
	}
	for _, id := range def.Indexes {
		b.Indexes(indexDef{&Index{Name: id.Name, Columns: id.Columns, Unique: id.Unique}})
	}
	return b, nil
}

func (cd ColumnDef) column() (*Column, error) {
	t, err := ParseType(cd.Type)
	if err != nil {
		return nil, err
	}
	c := &Column{
		Name:      cd.Name,
		Field:     cd.Field,
		Label:     cd.Label,
		Type:      t,
		Size:      cd.Size,
		Precision: cd.Precision,
		Scale:     cd.Scale,
		Enum:      cd.Enum,
		Default:   cd.Default,
		RefSchema: cd.Ref,
		RefColumn: cd.RefColumn,
	}
	for _, name := range cd.Flags {
		f, err := ParseFlag(name)
		if err != nil {
			return nil, err
		}
		c.Flags |= f
	}
	if c.OnDelete, err = ParseOnDelete(cd.OnDelete); err != nil {
		return nil, err
	}
	if t == TypeReference && c.RefSchema == "" {
		return nil, fmt.Errorf("reference column %q has no target", cd.Name)
	}
	if t == TypeString && c.Size == 0 {
		c.Size = DefaultStringSize
	}
	return c, nil
}

// DefaultStringSize bounds string columns declared without a size.
const DefaultStringSize = 255
