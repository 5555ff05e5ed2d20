// Package app wires the classifier worker runtime.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/upkeephq/upkeep/internal/platform/errors"
	"github.com/upkeephq/upkeep/internal/services/maintenance/classifier"
	"github.com/upkeephq/upkeep/internal/services/maintenance/pipeline"
	maintenancesqlite "github.com/upkeephq/upkeep/internal/services/maintenance/storage/sqlite"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// RuntimeConfig controls classifier startup, dependencies, and loop behavior.
type RuntimeConfig struct {
	Port           int
	DBPath         string
	PollInterval   time.Duration
	BatchSize      int
	CompletionsURL string
	Model          string
	APIKey         string
	RequestTimeout time.Duration
}

const (
	defaultClassifierPort = 8091
	defaultClassifierDB   = "data/upkeep.db"
	defaultModel          = "gpt-4o-mini"
	defaultRequestTimeout = 30 * time.Second
)

// Run starts classifier runtime dependencies and the background
// classification loop.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Port <= 0 {
		cfg.Port = defaultClassifierPort
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultClassifierDB
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = defaultModel
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create classifier storage dir: %w", err)
		}
	}

	ticketStore, err := maintenancesqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open maintenance sqlite store: %w", err)
	}
	defer func() {
		if closeErr := ticketStore.Close(); closeErr != nil {
			log.Printf("close maintenance sqlite store: %v", closeErr)
		}
	}()

	ticketClassifier := classifier.NewOpenAIClassifier(classifier.OpenAIConfig{
		CompletionsURL: cfg.CompletionsURL,
		Model:          cfg.Model,
		APIKey:         cfg.APIKey,
		HTTPClient:     newHTTPClient(cfg.RequestTimeout),
	})
	handler := pipeline.NewHandler(ticketStore, ticketClassifier, nil)
	runner := pipeline.NewRunner(ticketStore, handler, cfg.PollInterval, cfg.BatchSize)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on classifier port %d: %w", cfg.Port, err)
	}
	defer listener.Close()

	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(apperrors.UnaryServerInterceptor()),
	)
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("classifier.runtime", grpc_health_v1.HealthCheckResponse_SERVING)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(listener)
	}()
	defer func() {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		<-serveErr
	}()

	log.Printf("classifier server listening at %v", listener.Addr())
	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}
