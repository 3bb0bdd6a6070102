package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/syssam/orb/dialect"
	"github.com/syssam/orb/query"
)

type compileOptions struct {
	order  string
	limit  int
	expand string
	count  bool
}

func newCompileCmd(a *app) *cobra.Command {
	var opts compileOptions
	cmd := &cobra.Command{
		Use:   "compile <schema> <path> <op> [value]",
		Short: "Print the SELECT statement of a lookup",
		Long: `Compile resolves the lookup "<path> <op> <value>" against the schema and
prints the statement for the configured dialect. Values are parsed as
integers, floats and booleans when they look like one; "null" is NULL.
The values of between, is_in and is_not_in are comma separated.`,
		Example: "  orb compile User groups.name is admins\n  orb compile Post created_at between 2024-01-01,2025-01-01",
		Args:    cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := query.ParseOp(args[2])
			if err != nil {
				return err
			}
			var raw string
			if len(args) == 4 {
				raw = args[3]
			}
			value, err := opValue(op, raw)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			e, _, closeFn, err := a.engine(ctx)
			if err != nil {
				return err
			}
			defer closeFn()
			sc, err := e.System().Resolve(args[0])
			if err != nil {
				return err
			}
			qopts := []query.Option{query.Where(query.Q(args[1]).WithOp(op, value))}
			if ns := a.cfg.Database.Namespace; ns != "" {
				qopts = append(qopts, query.Namespace(ns))
			}
			if opts.order != "" {
				qopts = append(qopts, query.OrderBy(opts.order))
			}
			if opts.limit > 0 {
				qopts = append(qopts, query.Limit(opts.limit))
			}
			if opts.expand != "" {
				qopts = append(qopts, query.ExpandPaths(opts.expand))
			}
			p, err := e.Resolver().Resolve(sc, query.NewContext(qopts...))
			if err != nil {
				return err
			}
			var stmt *dialect.Statement
			if opts.count {
				stmt, err = e.Compiler().Count(p)
			} else {
				stmt, err = e.Compiler().Select(p)
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if stmt.Noop {
				fmt.Fprintln(out, "-- the filter matches no rows")
				return nil
			}
			fmt.Fprintf(out, "%s;\n", stmt.SQL)
			if len(stmt.Args) > 0 {
				fmt.Fprintf(out, "-- args: %v\n", stmt.Args)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.order, "order", "", `ordering, in the "-name,+id" form`)
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "maximum number of rows")
	cmd.Flags().StringVar(&opts.expand, "expand", "", "relations to expand")
	cmd.Flags().BoolVar(&opts.count, "count", false, "print the COUNT statement")
	return cmd
}

// opValue parses the command line value of an operator.
func opValue(op query.Op, raw string) (any, error) {
	switch op {
	case query.OpBetween:
		low, high, ok := strings.Cut(raw, ",")
		if !ok {
			return nil, fmt.Errorf("between expects two comma separated values, got %q", raw)
		}
		return []any{parseValue(low), parseValue(high)}, nil
	case query.OpIsIn, query.OpIsNotIn:
		if raw == "" {
			return []any{}, nil
		}
		parts := strings.Split(raw, ",")
		vs := make([]any, len(parts))
		for i, p := range parts {
			vs[i] = parseValue(p)
		}
		return vs, nil
	}
	return parseValue(raw), nil
}

func parseValue(s string) any {
	s = strings.TrimSpace(s)
	if s == "null" {
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil && (s == "true" || s == "false") {
		return b
	}
	return s
}
