// Package app wires the coordinator HTTP runtime.
package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/upkeephq/upkeep/internal/platform/authtoken"
	"github.com/upkeephq/upkeep/internal/platform/httpx"
	maintenancesqlite "github.com/upkeephq/upkeep/internal/services/maintenance/storage/sqlite"
	"github.com/upkeephq/upkeep/internal/services/tenancy/api/httpapi"
	tenancydomain "github.com/upkeephq/upkeep/internal/services/tenancy/domain"
	tenancysqlite "github.com/upkeephq/upkeep/internal/services/tenancy/storage/sqlite"
)

// RuntimeConfig controls coordinator startup and dependencies.
type RuntimeConfig struct {
	Port   int
	DBPath string
	Token  authtoken.Config
}

const (
	defaultCoordinatorPort = 8090
	defaultCoordinatorDB   = "data/upkeep.db"
	shutdownTimeout        = 10 * time.Second
)

// Server hosts the coordinator HTTP API.
type Server struct {
	listener    net.Listener
	httpServer  *http.Server
	tenantStore *tenancysqlite.Store
	ticketStore *maintenancesqlite.Store
}

// New creates a configured coordinator server listening on the provided port.
func New(cfg RuntimeConfig) (*Server, error) {
	if cfg.Port <= 0 {
		cfg.Port = defaultCoordinatorPort
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultCoordinatorDB
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("listen on port %d: %w", cfg.Port, err)
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			_ = listener.Close()
			return nil, fmt.Errorf("create coordinator storage dir: %w", err)
		}
	}

	tenantStore, err := tenancysqlite.Open(cfg.DBPath)
	if err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("open tenancy sqlite store: %w", err)
	}
	ticketStore, err := maintenancesqlite.Open(cfg.DBPath)
	if err != nil {
		_ = listener.Close()
		_ = tenantStore.Close()
		return nil, fmt.Errorf("open maintenance sqlite store: %w", err)
	}

	tenancyService := tenancydomain.NewService(tenantStore, nil, nil)
	handler := httpapi.New(tenancyService, ticketStore, cfg.Token, nil, nil)
	routes := httpx.Chain(handler.Routes(), httpx.RequestID(), httpx.RecoverPanic())
	httpServer := &http.Server{Handler: routes}

	return &Server{
		listener:    listener,
		httpServer:  httpServer,
		tenantStore: tenantStore,
		ticketStore: ticketStore,
	}, nil
}

// Addr returns the listener address for the coordinator server.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run creates and serves a coordinator server until the context ends.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	server, err := New(cfg)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve starts the coordinator server and blocks until it stops or the
// context ends.
func (s *Server) Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.closeStores()

	log.Printf("coordinator server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(s.listener)
	}()

	handleErr := func(err error) error {
		if err == nil || err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown coordinator server: %v", err)
		}
		return handleErr(<-serveErr)
	case err := <-serveErr:
		return handleErr(err)
	}
}

func (s *Server) closeStores() {
	if s == nil {
		return
	}
	if s.ticketStore != nil {
		if err := s.ticketStore.Close(); err != nil {
			log.Printf("close maintenance store: %v", err)
		}
	}
	if s.tenantStore != nil {
		if err := s.tenantStore.Close(); err != nil {
			log.Printf("close tenancy store: %v", err)
		}
	}
}
