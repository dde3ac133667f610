// Package commands implements the chain CLI commands.
package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/vinovest/chain"
	"github.com/vinovest/chain/config"
)

type globalFlags struct {
	configFile string
	driver     string
	dsn        string
	telemetry  string
	events     bool
	debug      bool
}

// NewRootCommand builds the chain command tree.
func NewRootCommand() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "chain",
		Short:         "Run SQL through chain materializers",
		Long:          "chain executes SQL against a configured data source and prints the materialized result.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&g.configFile, "config", "c", "", "config file (default .chain.yaml)")
	pf.StringVar(&g.driver, "driver", "", "database driver (sqlite3, postgres, mysql)")
	pf.StringVar(&g.dsn, "dsn", "", "data source name")
	pf.StringVar(&g.telemetry, "telemetry", "", "telemetry listener (noop, log, metrics)")
	pf.BoolVar(&g.events, "events", false, "print execution events")
	pf.BoolVar(&g.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newQueryCommand(g),
		newScalarCommand(g),
		newExecCommand(g),
		newInitCommand(),
		newVersionCommand(),
	)
	return root
}

// open loads configuration, applies flag overrides and connects.
func (g *globalFlags) open(ctx context.Context) (*chain.SQLDataSource, error) {
	cfg, err := config.Load(g.configFile)
	if err != nil {
		return nil, err
	}
	if g.driver != "" {
		cfg.Driver = g.driver
	}
	if g.dsn != "" {
		cfg.DSN = g.dsn
	}
	if g.telemetry != "" {
		cfg.Telemetry = g.telemetry
	}
	if g.debug {
		cfg.Debug = true
	}

	var bus *chain.EventBus
	if g.events {
		bus = chain.NewEventBus()
		bus.Subscribe(chain.ListenerFunc(printEvent))
	}
	return config.Open(ctx, cfg, bus)
}

// queryArgs turns positional arguments after the query into bind values.
func queryArgs(args []string) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = a
	}
	return out
}
