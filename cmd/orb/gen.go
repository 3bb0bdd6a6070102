package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/syssam/orb/compiler/gen"
)

func newGenCmd(a *app) *cobra.Command {
	var (
		out string
		pkg string
	)
	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate Go model types for the schema file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sys, err := a.cfg.System()
			if err != nil {
				return err
			}
			opts := []gen.Option{gen.WithTarget(out)}
			if pkg != "" {
				opts = append(opts, gen.WithPackage(pkg))
			}
			g, err := gen.New(sys, opts...)
			if err != nil {
				return err
			}
			files, err := g.Generate(cmd.Context())
			if err != nil {
				return err
			}
			for _, f := range files {
				fmt.Fprintln(cmd.OutOrStdout(), f)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "model", "output directory")
	cmd.Flags().StringVar(&pkg, "package", "", "package name, defaults to the base name of the output directory")
	return cmd
}
