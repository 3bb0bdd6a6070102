package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"ariga.io/atlas/sql/migrate"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

// debounce groups the events of one save into a single diff.
const debounce = 200 * time.Millisecond

type diffOptions struct {
	watch bool
	dir   string
	name  string
}

func newDiffCmd(a *app) *cobra.Command {
	var opts diffOptions
	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Print the statements that bring the database to the schema file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			if !opts.watch {
				return a.diff(ctx, out, opts)
			}
			return watch(ctx, a.log, []string{a.configPath, a.cfg.Schemas}, func() error {
				return a.diff(ctx, out, opts)
			})
		},
	}
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "diff again when the configuration or schema file changes")
	cmd.Flags().StringVar(&opts.dir, "dir", "", "write the statements as a migration file of this directory")
	cmd.Flags().StringVar(&opts.name, "name", "orb", "name of the migration file written to --dir")
	return cmd
}

// diff prints the migration plan of the database and writes it to the
// migration directory when one is set.
func (a *app) diff(ctx context.Context, out io.Writer, opts diffOptions) error {
	m, closeFn, err := a.migrator(ctx)
	if err != nil {
		return err
	}
	defer closeFn()
	p, err := m.Plan(ctx)
	if err != nil {
		return fmt.Errorf("diff: %w", err)
	}
	for _, e := range p.Report.Errors {
		fmt.Fprintf(out, "-- error: %s\n", e)
	}
	for _, w := range p.Report.Warnings {
		fmt.Fprintf(out, "-- warning: %s\n", w)
	}
	if p.Empty() {
		fmt.Fprintln(out, "-- database is up to date")
		return nil
	}
	for _, stmt := range p.Statements {
		fmt.Fprintf(out, "%s;\n", stmt.SQL)
	}
	if opts.dir == "" {
		return nil
	}
	dir, err := migrate.NewLocalDir(opts.dir)
	if err != nil {
		return fmt.Errorf("diff: %w", err)
	}
	if err := m.WritePlan(dir, opts.name, p); err != nil && !errors.Is(err, migrate.ErrNoPlan) {
		return fmt.Errorf("diff: write plan: %w", err)
	}
	return nil
}

// watch runs fn, then again after every change of one of the files, until
// ctx is done. Failures of fn are logged and do not stop the watch.
func watch(ctx context.Context, log *slog.Logger, files []string, fn func() error) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	targets := make(map[string]bool, len(files))
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return err
		}
		targets[abs] = true
	}
	// Editors replace files on save; watching the directories keeps the
	// watch alive across renames.
	dirs := make(map[string]bool)
	for f := range targets {
		dir := filepath.Dir(f)
		if dirs[dir] {
			continue
		}
		dirs[dir] = true
		if err := w.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	if err := fn(); err != nil {
		log.ErrorContext(ctx, "watch", "error", err)
	}
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			abs, err := filepath.Abs(ev.Name)
			if err != nil || !targets[abs] || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			log.DebugContext(ctx, "watch: file changed", "file", abs, "op", ev.Op.String())
			fire = time.After(debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.WarnContext(ctx, "watch", "error", err)
		case <-fire:
			fire = nil
			if err := fn(); err != nil {
				log.ErrorContext(ctx, "watch", "error", err)
			}
		}
	}
}
