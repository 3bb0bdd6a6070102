package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the missing tables, columns and indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			e, _, closeFn, err := a.engine(ctx)
			if err != nil {
				return err
			}
			defer closeFn()
			p, err := e.Sync(ctx)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			if p.Empty() {
				fmt.Fprintln(cmd.OutOrStdout(), "database is up to date")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d statements\n", len(p.Statements))
			return nil
		},
	}
}
