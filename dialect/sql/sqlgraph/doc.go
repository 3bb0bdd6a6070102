// Package sqlgraph maps the errors of the supported database drivers
// (lib/pq, pgx, go-sql-driver/mysql and modernc.org/sqlite) to the orb error
// taxonomy.
package sqlgraph
