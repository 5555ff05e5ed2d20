// Package classifier parses classifier command flags and launches the
// classification worker runtime.
package classifier

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/upkeephq/upkeep/internal/platform/cmd"
	server "github.com/upkeephq/upkeep/internal/services/maintenance/app"
)

// Config holds classifier command configuration.
type Config struct {
	Port           int           `env:"UPKEEP_CLASSIFIER_PORT" envDefault:"8091"`
	DBPath         string        `env:"UPKEEP_CLASSIFIER_DB_PATH" envDefault:"data/upkeep.db"`
	PollInterval   time.Duration `env:"UPKEEP_CLASSIFIER_POLL_INTERVAL" envDefault:"5s"`
	BatchSize      int           `env:"UPKEEP_CLASSIFIER_BATCH_SIZE" envDefault:"25"`
	CompletionsURL string        `env:"UPKEEP_CLASSIFIER_COMPLETIONS_URL"`
	Model          string        `env:"UPKEEP_CLASSIFIER_MODEL" envDefault:"gpt-4o-mini"`
	APIKey         string        `env:"UPKEEP_CLASSIFIER_API_KEY"`
	RequestTimeout time.Duration `env:"UPKEEP_CLASSIFIER_REQUEST_TIMEOUT" envDefault:"30s"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The classifier health gRPC server port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The classifier SQLite database path")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Pending ticket poll interval")
	fs.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Maximum pending tickets per poll")
	fs.StringVar(&cfg.CompletionsURL, "completions-url", cfg.CompletionsURL, "Chat completions endpoint URL")
	fs.StringVar(&cfg.Model, "model", cfg.Model, "Chat completions model name")
	fs.DurationVar(&cfg.RequestTimeout, "request-timeout", cfg.RequestTimeout, "Chat completions request timeout")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the classification worker runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceClassifier, func(context.Context) error {
		return server.Run(ctx, server.RuntimeConfig{
			Port:           cfg.Port,
			DBPath:         cfg.DBPath,
			PollInterval:   cfg.PollInterval,
			BatchSize:      cfg.BatchSize,
			CompletionsURL: cfg.CompletionsURL,
			Model:          cfg.Model,
			APIKey:         cfg.APIKey,
			RequestTimeout: cfg.RequestTimeout,
		})
	})
}
