package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newInspectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "List the tables and columns of the live database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			m, closeFn, err := a.migrator(ctx)
			if err != nil {
				return err
			}
			defer closeFn()
			tables, err := m.Inspect(ctx)
			if err != nil {
				return fmt.Errorf("inspect: %w", err)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, t := range tables {
				fmt.Fprintln(w, t.Name)
				for _, c := range t.Columns {
					null := "not null"
					if c.Nullable {
						null = "null"
					}
					fmt.Fprintf(w, "  %s\t%s\t%s\n", c.Name, c.Type, null)
				}
				for _, idx := range t.Indexes {
					kind := "index"
					if idx.Unique {
						kind = "unique index"
					}
					fmt.Fprintf(w, "  %s\t%s\t\n", idx.Name, kind)
				}
			}
			return w.Flush()
		},
	}
}
