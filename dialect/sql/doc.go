// Package sql compiles resolved query plans into SQL statements and runs
// them over database/sql.
//
// # Dialects
//
// A Dialect describes how one backend spells SQL: identifier quoting,
// placeholders, storage types and capabilities (RETURNING, native table
// inheritance). Postgres, SQLite and MySQL are provided:
//
//	d, _ := sql.DialectOf("pgx") // sql.Postgres
//
// # Compiler
//
// The Compiler renders plans produced by the query package:
//
//	c := sql.NewCompiler(sql.Postgres, sys, sql.WithMaxBatch(500))
//	stmt, err := c.Select(plan)     // SELECT ... FROM ... WHERE ...
//	stmt, err = c.Count(plan)       // SELECT COUNT(*) ...
//	stmts, err := c.Update(plan, map[string]any{"active": false})
//	stmt, err = c.Delete(plan)
//
// Every literal is bound as a parameter with a random name
// ("field_3fa85f64"); positional placeholders are numbered when the
// statement is rendered. Filters that can match no row (an empty IsIn set,
// an empty sub-select) compile to Noop statements that are never sent.
//
// Inserts are compiled per storage table. Records of a shared-key schema
// are written to every table of its chain, root first:
//
//	ins, _ := c.Insert(sc, "", records)
//	stmts, _ := ins.Level(0)
//
// CreateTable, CreateIndex and AddColumn compile the DDL used by the
// migrator of the schema sub-package.
//
// # Driver and Sessions
//
// Driver wraps a *sql.DB. It implements dialect.ExecQuerier for direct
// access and dialect.Opener for the connection pool: each Session holds one
// connection, runs write statements in a transaction and can be cancelled
// from another goroutine.
//
//	drv, err := sql.Open("sqlite", "file:app.db?_pragma=foreign_keys(1)",
//	    sql.WithSlowLevels(time.Second, 5*time.Second),
//	)
//	sess, err := drv.Open(ctx, true)
//	res, err := sess.Exec(ctx, stmt)
//	err = sess.Commit(ctx)
//
// Executed statements are logged with log/slog at a level chosen by their
// duration and accounted in QueryStats. Driver errors are classified into
// the orb error types by the sqlgraph sub-package.
package sql
