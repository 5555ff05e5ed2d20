// Package coordinator parses coordinator command flags and launches the
// coordinator HTTP service.
package coordinator

import (
	"context"
	"flag"

	"github.com/upkeephq/upkeep/internal/platform/authtoken"
	entrypoint "github.com/upkeephq/upkeep/internal/platform/cmd"
	server "github.com/upkeephq/upkeep/internal/services/tenancy/app"
)

// Config holds coordinator command configuration.
type Config struct {
	Port   int    `env:"UPKEEP_COORDINATOR_PORT" envDefault:"8090"`
	DBPath string `env:"UPKEEP_COORDINATOR_DB_PATH" envDefault:"data/upkeep.db"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The coordinator HTTP server port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The coordinator SQLite database path")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the coordinator HTTP service.
func Run(ctx context.Context, cfg Config) error {
	tokenCfg, err := authtoken.LoadConfigFromEnv(nil)
	if err != nil {
		return err
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceCoordinator, func(context.Context) error {
		return server.Run(ctx, server.RuntimeConfig{
			Port:   cfg.Port,
			DBPath: cfg.DBPath,
			Token:  tokenCfg,
		})
	})
}
