package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/vinovest/chain/config"
	"github.com/vinovest/chain/drivers"
	"github.com/vinovest/chain/telemetry"
)

func newInitCommand() *cobra.Command {
	cfg := &config.Config{}
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file to ~/.config/chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			path, err := config.Save(cfg)
			if err != nil {
				return err
			}
			PrintSuccess("wrote %s", path)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.Driver, "driver", drivers.SQLite, "database driver")
	f.StringVar(&cfg.DSN, "dsn", "", "data source name")
	f.IntVar(&cfg.MaxOpenConns, "max-open-conns", 0, "maximum open connections (0 is unlimited)")
	f.IntVar(&cfg.MaxIdleConns, "max-idle-conns", 2, "maximum idle connections")
	f.DurationVar(&cfg.ConnMaxLifetime, "conn-max-lifetime", time.Hour, "maximum connection lifetime")
	f.StringVar(&cfg.Telemetry, "telemetry", string(telemetry.TypeNoop), "telemetry listener")
	f.BoolVar(&cfg.SuppressGlobalEvents, "suppress-global-events", false, "do not publish to the global event bus")
	return cmd
}
