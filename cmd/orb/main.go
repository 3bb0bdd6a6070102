// Command orb inspects, migrates and generates code for the database of an
// orb configuration file.
//
//	orb --config orb.yaml diff --watch
//	orb migrate
//	orb compile User groups.name is admins
//	orb gen --out ./model
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/syssam/orb/config"
	"github.com/syssam/orb/dialect/sql"
	sqlschema "github.com/syssam/orb/dialect/sql/schema"
	"github.com/syssam/orb/engine"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// app holds the state shared by the subcommands.
type app struct {
	configPath string
	cfg        *config.Config
	log        *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:           "orb",
		Short:         "Manage the database of an orb schema system",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}
	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "orb.yaml", "configuration file")
	cmd.AddCommand(
		newInspectCmd(a),
		newDiffCmd(a),
		newMigrateCmd(a),
		newCompileCmd(a),
		newGenCmd(a),
	)
	return cmd
}

// load reads the configuration file. Logs go to the error stream of cmd.
func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = cfg.Log.Logger(cmd.ErrOrStderr())
	return nil
}

// engine opens the engine of the configuration. The returned func closes
// it with its driver.
func (a *app) engine(ctx context.Context) (*engine.Engine, *sql.Driver, func(), error) {
	e, drv, err := a.cfg.Engine(ctx, a.log)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open engine: %w", err)
	}
	return e, drv, func() {
		if err := e.Close(ctx); err != nil {
			a.log.Warn("close engine", "error", err)
		}
		if err := drv.Close(); err != nil {
			a.log.Warn("close driver", "error", err)
		}
	}, nil
}

// migrator opens the engine and returns the migrator of its database.
func (a *app) migrator(ctx context.Context) (*sqlschema.Migrator, func(), error) {
	e, drv, closeFn, err := a.engine(ctx)
	if err != nil {
		return nil, nil, err
	}
	opts := []sqlschema.MigrateOption{sqlschema.WithLogger(a.log)}
	if ns := a.cfg.Database.Namespace; ns != "" {
		opts = append(opts, sqlschema.WithNamespace(ns))
	}
	m, err := sqlschema.NewMigrator(drv, e.Compiler(), opts...)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return m, closeFn, nil
}
