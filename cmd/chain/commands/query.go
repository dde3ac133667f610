package commands

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vinovest/chain"
)

func newQueryCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "query SQL [ARGS...]",
		Short: "Run a query and print the result table",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer ds.Close()

			table, err := chain.ToTable(chain.SQL(ds, args[0], queryArgs(args[1:])...)).ExecuteContext(cmd.Context())
			if err != nil {
				return err
			}
			PrintTable(table)
			PrintInfo("%d rows", table.Len())
			return nil
		},
	}
}

func newScalarCommand(g *globalFlags) *cobra.Command {
	var column string
	cmd := &cobra.Command{
		Use:   "scalar SQL [ARGS...]",
		Short: "Run a query and print a single value",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer ds.Close()

			v, err := chain.ToScalarOrNil[sql.NullString](chain.SQL(ds, args[0], queryArgs(args[1:])...), column).ExecuteContext(cmd.Context())
			if err != nil {
				return err
			}
			if v == nil || !v.Valid {
				fmt.Fprintln(cmd.OutOrStdout(), "NULL")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), v.String)
			return nil
		},
	}
	cmd.Flags().StringVar(&column, "column", "", "column to read (default first column)")
	return cmd
}

func newExecCommand(g *globalFlags) *cobra.Command {
	var expect int64
	cmd := &cobra.Command{
		Use:   "exec SQL [ARGS...]",
		Short: "Run a statement and print the rows affected",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer ds.Close()

			c := chain.SQL(ds, args[0], queryArgs(args[1:])...)
			if expect >= 0 {
				c.ExpectRows(expect)
			}
			n, err := chain.ToNonQuery(c).ExecuteContext(cmd.Context())
			if err != nil {
				return err
			}
			if n == nil {
				PrintInfo("rows affected not reported")
				return nil
			}
			PrintSuccess("%d rows affected", *n)
			return nil
		},
	}
	cmd.Flags().Int64Var(&expect, "expect", -1, "fail unless exactly this many rows are affected")
	return cmd
}
