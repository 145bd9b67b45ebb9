package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"spai-hq/gatekeeper/pkg/agent"
	"spai-hq/gatekeeper/pkg/appeal"
	"spai-hq/gatekeeper/pkg/config"
	"spai-hq/gatekeeper/pkg/pipeline"
	"spai-hq/gatekeeper/pkg/server/middleware"
	"spai-hq/gatekeeper/pkg/settings"
	"spai-hq/gatekeeper/pkg/state"
	"spai-hq/gatekeeper/pkg/telemetry/metrics"
)

// Server is the gatekeeper daemon's loopback HTTP server.
type Server struct {
	cfg      *config.ServerConfig
	hub      *Hub
	pipeline *pipeline.Pipeline
	settings *settings.Store
	state    *state.Manager
	arbiter  *appeal.Arbiter
	registry *agent.Registry
	captures *captureStore
	metrics  *metrics.Collector
	logger   *slog.Logger
	version  string

	// onStrictExpiry runs when the strict-mode time lock lapses.
	onStrictExpiry func()

	httpServer   *http.Server
	shutdownOnce sync.Once
	mu           sync.Mutex
	running      bool
}

// Options carries the server's collaborators.
type Options struct {
	// Config is the server section. Required.
	Config *config.ServerConfig

	// Pipeline runs capture evaluation. Required.
	Pipeline *pipeline.Pipeline

	// Settings is the settings store. Required.
	Settings *settings.Store

	// State is the ephemeral state manager. Required.
	State *state.Manager

	// Arbiter evaluates appeals. Required.
	Arbiter *appeal.Arbiter

	// Registry backs the generic agent-invoke endpoint. Required.
	Registry *agent.Registry

	// Hub routes UI signals. Required.
	Hub *Hub

	// Metrics may be nil; the /metrics route is then omitted.
	Metrics *metrics.Collector

	// OnStrictExpiry runs when the strict-mode lock lapses. Optional.
	OnStrictExpiry func()

	// Logger may be nil.
	Logger *slog.Logger

	// Version is reported by the health endpoint.
	Version string
}

// New builds the server. It does not start listening.
func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("server: config is required")
	}
	if opts.Pipeline == nil || opts.Settings == nil || opts.State == nil {
		return nil, fmt.Errorf("server: pipeline, settings and state are required")
	}
	if opts.Arbiter == nil || opts.Registry == nil || opts.Hub == nil {
		return nil, fmt.Errorf("server: arbiter, registry and hub are required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	onStrictExpiry := opts.OnStrictExpiry
	if onStrictExpiry == nil {
		store := opts.Settings
		onStrictExpiry = func() {
			// The read lazily clears the expired lock and persists the
			// cleared record.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := store.Get(ctx); err != nil {
				logger.Warn("strict expiry settings read failed", "error", err)
				return
			}
			logger.Info("strict mode expired")
		}
	}

	return &Server{
		cfg:            opts.Config,
		hub:            opts.Hub,
		pipeline:       opts.Pipeline,
		settings:       opts.Settings,
		state:          opts.State,
		arbiter:        opts.Arbiter,
		registry:       opts.Registry,
		captures:       newCaptureStore(),
		metrics:        opts.Metrics,
		logger:         logger,
		version:        opts.Version,
		onStrictExpiry: onStrictExpiry,
	}, nil
}

// Handler returns the full middleware-wrapped route tree.
func (s *Server) Handler() http.Handler {
	// Request-scoped API routes run behind the timeout middleware. The
	// signal stream and metrics exposition are mounted outside it.
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/capture", s.handleCapture)
	api.HandleFunc("GET /v1/capture/last", s.handleLastCapture)
	api.HandleFunc("GET /v1/settings", s.handleGetSettings)
	api.HandleFunc("PATCH /v1/settings", s.handlePatchSettings)
	api.HandleFunc("POST /v1/settings/strict", s.handleStrictMode)
	api.HandleFunc("POST /v1/appeal/evaluate", s.handleAppealEvaluate)
	api.HandleFunc("POST /v1/appeal/allow", s.handleAppealAllow)
	api.HandleFunc("POST /v1/appeal/close", s.handleAppealClose)
	api.HandleFunc("POST /v1/agents/{name}", s.handleAgentInvoke)
	api.HandleFunc("GET /v1/state", s.handleState)

	var apiHandler http.Handler = api
	if s.cfg.RequestTimeout > 0 {
		apiHandler = middleware.Timeout(s.cfg.RequestTimeout)(apiHandler)
	}

	root := http.NewServeMux()
	root.Handle("/v1/", apiHandler)
	root.HandleFunc("GET /v1/signals", s.handleSignals)
	root.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		root.Handle("GET /metrics", s.metrics.Handler())
	}

	var handler http.Handler = root
	if s.cfg.CORS.Enabled {
		handler = middleware.CORS(&middleware.CORSConfig{
			Enabled:        true,
			AllowedOrigins: s.cfg.CORS.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", middleware.RequestIDHeader, TabHeader},
		})(handler)
	}
	handler = middleware.Logging(s.logger)(handler)
	handler = middleware.Recovery(s.logger)(handler)
	handler = middleware.RequestID(handler)
	return handler
}

// Start begins serving and blocks until the listener fails or ctx is
// cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server: already running")
	}
	s.running = true
	s.httpServer = &http.Server{
		Addr:        s.cfg.ListenAddress,
		Handler:     s.Handler(),
		ReadTimeout: s.cfg.ReadTimeout,
		// WriteTimeout stays zero: SSE streams are long-lived.
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "address", s.cfg.ListenAddress)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	}
}

// Shutdown drains in-flight requests and closes all signal streams.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		srv := s.httpServer
		s.running = false
		s.mu.Unlock()

		s.hub.Close()
		if srv != nil {
			if err := srv.Shutdown(ctx); err != nil {
				shutdownErr = fmt.Errorf("server shutdown: %w", err)
			}
		}
		s.logger.Info("server stopped")
	})
	return shutdownErr
}
