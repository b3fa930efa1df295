// Package server wires the store, worker pool, and HTTP surface together
// and owns their lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/jackzampolin/folio/internal/api"
	"github.com/jackzampolin/folio/internal/config"
	"github.com/jackzampolin/folio/internal/home"
	"github.com/jackzampolin/folio/internal/metrics"
	"github.com/jackzampolin/folio/internal/ocr"
	"github.com/jackzampolin/folio/internal/rasterize"
	"github.com/jackzampolin/folio/internal/server/endpoints"
	"github.com/jackzampolin/folio/internal/store"
	"github.com/jackzampolin/folio/internal/svcctx"
	"github.com/jackzampolin/folio/internal/workers"
)

// Server is the main Folio HTTP server. It opens the job store, runs the
// worker pool, and serves the OCR API.
type Server struct {
	httpServer *http.Server
	configMgr  *config.Manager
	logger     *slog.Logger
	homeDir    *home.Dir

	store      *store.Store
	pool       *workers.Pool
	rasterizer rasterize.Rasterizer

	// backend is swapped by config hot-reload; workers and endpoints read
	// it through backendFn.
	backendMu sync.RWMutex
	backend   ocr.Backend

	// services holds all core services for context enrichment
	services *svcctx.Services

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu      sync.RWMutex
	running bool
}

// Config holds server configuration.
type Config struct {
	// ConfigManager provides configuration with hot-reload support (required).
	ConfigManager *config.Manager
	// Home is the folio home directory; a default-named database file is
	// placed here rather than the working directory.
	Home *home.Dir
	// Logger is the structured logger to use.
	Logger *slog.Logger
	// SwaggerSpecPath overrides the OpenAPI spec location.
	SwaggerSpecPath string
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.ConfigManager == nil {
		return nil, errors.New("config manager is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c := cfg.ConfigManager.Get()

	s := &Server{
		configMgr:  cfg.ConfigManager,
		logger:     cfg.Logger,
		homeDir:    cfg.Home,
		rasterizer: rasterize.NewFitzRasterizer(rasterize.Config{Logger: cfg.Logger}),
	}

	backend, err := ocr.New(c.OCRBackendConfig(cfg.Logger))
	if err != nil {
		return nil, fmt.Errorf("failed to build ocr backend: %w", err)
	}
	s.backend = backend

	// Hot-reload swaps the backend; workers pick it up on their next page.
	cfg.ConfigManager.OnChange(func(c *config.Config) {
		nb, err := ocr.New(c.OCRBackendConfig(cfg.Logger))
		if err != nil {
			cfg.Logger.Error("config reload kept previous ocr backend", "error", err)
			return
		}
		s.backendMu.Lock()
		s.backend = nb
		s.backendMu.Unlock()
		cfg.Logger.Info("ocr backend reloaded", "backend", nb.Name())
	})

	specPath := cfg.SwaggerSpecPath
	if specPath == "" {
		specPath = endpoints.GetSwaggerSpecPath()
	}

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All(endpoints.Config{SwaggerSpecPath: specPath}) {
		s.endpointRegistry.Register(ep)
	}

	// Set up HTTP server
	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	s.httpServer = &http.Server{
		Addr:              net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port)),
		Handler:           s.withServices(mux),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return s, nil
}

// Start opens the store, starts the worker pool and HTTP server, and blocks
// until the context is cancelled or the HTTP server fails.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	c := s.configMgr.Get()

	// A bare default filename lands in the home directory, not the cwd.
	dbPath := c.Store.Path
	if dbPath == home.DBFileName && s.homeDir != nil {
		dbPath = s.homeDir.DBPath()
	}

	st, err := store.Open(store.Config{Path: dbPath, Logger: s.logger})
	if err != nil {
		s.setNotRunning()
		return fmt.Errorf("failed to open store: %w", err)
	}
	s.store = st

	metrics.Init()
	metrics.RegisterQueueDepth(func() float64 {
		depth, err := st.QueueDepth(context.Background())
		if err != nil {
			return 0
		}
		return float64(depth)
	})

	s.pool = workers.New(workers.Config{
		Store:   st,
		Backend: s.currentBackend,
		Logger:  s.logger,
	})
	s.pool.Start(c.Workers.Count)

	// Worker count changes need a restart; log when a reload asks for one.
	s.configMgr.OnChange(func(nc *config.Config) {
		if nc.Workers.Count != s.pool.WorkerCount() {
			s.logger.Warn("worker count change requires restart",
				"running", s.pool.WorkerCount(), "configured", nc.Workers.Count)
		}
	})

	s.services = &svcctx.Services{
		Store:      st,
		Pool:       s.pool,
		Rasterizer: s.rasterizer,
		Config:     s.configMgr,
		Logger:     s.logger,
	}

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			_ = s.shutdown()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

// shutdown drains in order: stop accepting requests, let workers finish
// their in-flight pages, then close the store.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	if s.pool != nil {
		s.pool.Stop()
	}

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error("store close error", "error", err)
		}
	}

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Store returns the job store. Returns nil if the server hasn't started yet.
func (s *Server) Store() *store.Store {
	return s.store
}

// Pool returns the worker pool. Returns nil if the server hasn't started yet.
func (s *Server) Pool() *workers.Pool {
	return s.pool
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// currentBackend returns the live OCR backend under the reload lock.
func (s *Server) currentBackend() ocr.Backend {
	s.backendMu.RLock()
	defer s.backendMu.RUnlock()
	return s.backend
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if s.services != nil {
			ctx = svcctx.WithServices(ctx, s.services)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures the server is fully initialized.
// Returns 503 Service Unavailable if the store or pool aren't ready.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.store == nil || s.pool == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}
