package schema

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ariga.io/atlas/sql/migrate"

	"github.com/syssam/orb/dialect"
	"github.com/syssam/orb/dialect/sql"
)

// Plan is the outcome of comparing the database with the declared schemas.
type Plan struct {
	// Statements create the missing tables, columns and indexes, in the
	// order they must run.
	Statements []*dialect.Statement
	// Report lists the drift the statements do not repair.
	Report *ValidationResult
}

// Empty reports if the database is up to date.
func (p *Plan) Empty() bool { return len(p.Statements) == 0 }

// Migrator migrates a database forward to the schemas of a compiler.
type Migrator struct {
	drv       *sql.Driver
	c         *sql.Compiler
	inspector *Inspector
	ns        string
	log       *slog.Logger
	validate  []ValidateOption
}

// MigrateOption configures a Migrator.
type MigrateOption func(*Migrator)

// WithNamespace migrates the tables of the given namespace.
func WithNamespace(ns string) MigrateOption {
	return func(m *Migrator) { m.ns = ns }
}

// WithLogger sets the logger of applied statements.
func WithLogger(l *slog.Logger) MigrateOption {
	return func(m *Migrator) { m.log = l }
}

// WithValidateOptions configures the drift report.
func WithValidateOptions(opts ...ValidateOption) MigrateOption {
	return func(m *Migrator) { m.validate = append(m.validate, opts...) }
}

// NewMigrator returns a Migrator applying the schemas of c to drv.
func NewMigrator(drv *sql.Driver, c *sql.Compiler, opts ...MigrateOption) (*Migrator, error) {
	m := &Migrator{drv: drv, c: c, log: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	if m.ns == "" {
		m.ns = c.Dialect().Namespace
	}
	i, err := NewInspector(drv.DB(), drv.Dialect(), m.ns)
	if err != nil {
		return nil, err
	}
	m.inspector = i
	return m, nil
}

// Inspect returns the tables of the database.
func (m *Migrator) Inspect(ctx context.Context) ([]*Table, error) {
	return m.inspector.Tables(ctx)
}

// Plan compares the database with the declared schemas.
func (m *Migrator) Plan(ctx context.Context) (*Plan, error) {
	desired, err := Tables(m.c)
	if err != nil {
		return nil, err
	}
	if r := ValidateSchema(desired); r.HasErrors() {
		return nil, fmt.Errorf("sql/schema: invalid declared tables:\n%s", r)
	}
	current, err := m.inspector.Tables(ctx)
	if err != nil {
		return nil, err
	}
	stmts, err := Diff(m.c, m.ns, current, desired)
	if err != nil {
		return nil, err
	}
	return &Plan{Statements: stmts, Report: ValidateDiff(current, desired, m.validate...)}, nil
}

// Apply plans the migration and runs its statements in one write session.
// A report with errors stops the migration before any statement runs.
func (m *Migrator) Apply(ctx context.Context) (*Plan, error) {
	p, err := m.Plan(ctx)
	if err != nil {
		return nil, err
	}
	if p.Report.HasErrors() {
		return p, fmt.Errorf("sql/schema: schema drift:\n%s", p.Report)
	}
	for _, w := range p.Report.Warnings {
		m.log.WarnContext(ctx, "schema drift", "table", w.Table, "column", w.Column, "message", w.Message)
	}
	if p.Empty() {
		return p, nil
	}
	sess, err := m.drv.Open(ctx, true)
	if err != nil {
		return nil, err
	}
	defer sess.Close()
	for _, stmt := range p.Statements {
		if _, err := sess.Exec(ctx, stmt); err != nil {
			return p, errors.Join(err, sess.Rollback(ctx))
		}
		m.log.InfoContext(ctx, "migrate", "sql", stmt.SQL)
	}
	if err := sess.Commit(ctx); err != nil {
		return p, err
	}
	return p, nil
}

// WritePlan writes the statements of p as a named migration file of dir,
// in the atlas directory format.
func (m *Migrator) WritePlan(dir migrate.Dir, name string, p *Plan) error {
	if p.Empty() {
		return migrate.ErrNoPlan
	}
	plan := &migrate.Plan{Name: name, Transactional: true}
	for _, stmt := range p.Statements {
		plan.Changes = append(plan.Changes, &migrate.Change{Cmd: stmt.SQL})
	}
	return migrate.NewPlanner(nil, dir).WritePlan(plan)
}

// Diff returns the statements creating the declared tables, columns and
// indexes missing from current. A unique column added to an existing
// table gets a unique index of its own.
func Diff(c *sql.Compiler, ns string, current, desired []*Table) ([]*dialect.Statement, error) {
	have := make(map[string]*Table, len(current))
	for _, t := range current {
		have[t.Name] = t
	}
	var stmts []*dialect.Statement
	for _, want := range desired {
		sc := want.Schema()
		if sc == nil {
			return nil, fmt.Errorf("sql/schema: table %s is not declared by a schema", want.Name)
		}
		t, ok := have[want.Name]
		if !ok {
			stmt, err := c.CreateTable(sc, ns)
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, stmt)
			for _, idx := range want.Indexes {
				stmt, err := c.CreateIndex(idx.index, ns)
				if err != nil {
					return nil, err
				}
				stmts = append(stmts, stmt)
			}
			continue
		}
		for _, col := range want.Columns {
			if _, ok := t.Column(col.Name); ok || col.Inherited {
				continue
			}
			stmt, err := c.AddColumn(sc, col.column, ns)
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, stmt)
			if col.Unique {
				stmt, err := c.UniqueIndex(sc, col.column, ns)
				if err != nil {
					return nil, err
				}
				stmts = append(stmts, stmt)
			}
		}
		for _, idx := range want.Indexes {
			if _, ok := t.Index(idx.Name); ok {
				continue
			}
			stmt, err := c.CreateIndex(idx.index, ns)
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, stmt)
		}
	}
	return stmts, nil
}
