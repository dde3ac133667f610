// Package config loads data source settings from files, the environment and
// .env files, and opens configured data sources.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/vinovest/chain"
	"github.com/vinovest/chain/drivers"
	"github.com/vinovest/chain/internal/debug"
	"github.com/vinovest/chain/telemetry"
)

// AppFs is the filesystem configuration is read from.
var AppFs = afero.NewOsFs()

const (
	configName = ".chain"
	envPrefix  = "CHAIN"
)

// Config holds data source configuration.
type Config struct {
	Driver               string        `mapstructure:"driver"`
	DSN                  string        `mapstructure:"dsn"`
	MaxOpenConns         int           `mapstructure:"max_open_conns"`
	MaxIdleConns         int           `mapstructure:"max_idle_conns"`
	ConnMaxIdleTime      time.Duration `mapstructure:"conn_max_idle_time"`
	ConnMaxLifetime      time.Duration `mapstructure:"conn_max_lifetime"`
	SuppressGlobalEvents bool          `mapstructure:"suppress_global_events"`
	Telemetry            string        `mapstructure:"telemetry"`
	Debug                bool          `mapstructure:"debug"`
	PlanCacheSize        int           `mapstructure:"plan_cache_size"`
}

var keys = []string{
	"driver", "dsn", "max_open_conns", "max_idle_conns", "conn_max_idle_time",
	"conn_max_lifetime", "suppress_global_events", "telemetry", "debug", "plan_cache_size",
}

// Load reads configuration. When path is empty, .chain.yaml is looked up in
// the working directory, the home directory and ~/.config/chain. .env and
// .env.local are loaded into the environment first; CHAIN_* variables
// override file values and DATABASE_URL fills in a missing dsn.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetFs(AppFs)
	if path != "" {
		v.SetConfigFile(path)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			return nil, err
		}
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(home)
		v.AddConfigPath(filepath.Join(home, ".config", "chain"))
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return nil, err
		}
	}

	v.SetDefault("driver", drivers.SQLite)
	v.SetDefault("max_open_conns", 0)
	v.SetDefault("max_idle_conns", 2)
	v.SetDefault("telemetry", string(telemetry.TypeNoop))
	v.SetDefault("plan_cache_size", chain.DefaultPlanCacheSize())

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if cfg.DSN == "" {
		cfg.DSN = os.Getenv("DATABASE_URL")
	}
	return cfg, nil
}

// loadDotEnv applies .env without overriding the environment, then .env.local
// with override.
func loadDotEnv() error {
	for _, f := range []struct {
		name      string
		overwrite bool
	}{{".env", false}, {".env.local", true}} {
		file, err := AppFs.Open(f.name)
		if err != nil {
			continue
		}
		vars, err := godotenv.Parse(file)
		_ = file.Close()
		if err != nil {
			return fmt.Errorf("parsing %s: %w", f.name, err)
		}
		for k, val := range vars {
			if _, set := os.LookupEnv(k); set && !f.overwrite {
				continue
			}
			if err := os.Setenv(k, val); err != nil {
				return err
			}
		}
	}
	return nil
}

// Validate checks cfg for values that cannot work.
func (c *Config) Validate() error {
	if !drivers.Supported(c.Driver) {
		return fmt.Errorf("unsupported driver %q", c.Driver)
	}
	if err := drivers.ValidateDSN(c.Driver, c.DSN); err != nil {
		return err
	}
	if c.MaxOpenConns < 0 || c.MaxIdleConns < 0 {
		return errors.New("connection limits must not be negative")
	}
	if c.PlanCacheSize < 0 {
		return errors.New("plan_cache_size must not be negative")
	}
	if _, err := telemetry.New(&telemetry.Config{Type: c.Telemetry}); err != nil {
		return err
	}
	return nil
}

// Open validates cfg and connects a data source with the configured pool,
// telemetry listener and event bus. bus may be nil.
func Open(ctx context.Context, cfg *Config, bus *chain.EventBus) (*chain.SQLDataSource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Debug {
		debug.Init(true)
	}
	if cfg.PlanCacheSize > 0 {
		chain.ResizePlanCaches(cfg.PlanCacheSize)
	}
	logger := debug.With("driver", cfg.Driver)
	listener, err := telemetry.New(&telemetry.Config{Type: cfg.Telemetry, Logger: logger})
	if err != nil {
		return nil, err
	}

	opts := []chain.DataSourceOption{
		chain.WithLogger(logger),
		chain.WithListener(listener),
		chain.WithSuppressGlobalEvents(cfg.SuppressGlobalEvents),
	}
	if bus != nil {
		opts = append(opts, chain.WithEventBus(bus))
	}
	ds, err := chain.Connect(ctx, cfg.Driver, cfg.DSN, opts...)
	if err != nil {
		return nil, err
	}
	db := ds.DB()
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	debug.Debug("data source opened", "driver", cfg.Driver, "telemetry", cfg.Telemetry,
		"max_open_conns", cfg.MaxOpenConns, "plan_cache_size", chain.DefaultPlanCacheSize())
	return ds, nil
}

// Save writes cfg to ~/.config/chain/.chain.yaml.
func Save(cfg *Config) (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".config", "chain")
	if err := AppFs.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	v := viper.New()
	v.SetFs(AppFs)
	v.Set("driver", cfg.Driver)
	v.Set("dsn", cfg.DSN)
	v.Set("max_open_conns", cfg.MaxOpenConns)
	v.Set("max_idle_conns", cfg.MaxIdleConns)
	v.Set("conn_max_idle_time", cfg.ConnMaxIdleTime.String())
	v.Set("conn_max_lifetime", cfg.ConnMaxLifetime.String())
	v.Set("suppress_global_events", cfg.SuppressGlobalEvents)
	v.Set("telemetry", cfg.Telemetry)
	v.Set("debug", cfg.Debug)
	v.Set("plan_cache_size", cfg.PlanCacheSize)

	file := filepath.Join(dir, configName+".yaml")
	return file, v.WriteConfigAs(file)
}
