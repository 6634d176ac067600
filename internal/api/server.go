package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/ensemblectl/internal/ledger"
	"github.com/mattjoyce/ensemblectl/internal/plugin"
	"github.com/mattjoyce/ensemblectl/internal/workspace"
)

// SubmissionStore is the read side of the submission ledger.
type SubmissionStore interface {
	Get(ctx context.Context, id string) (*ledger.Submission, error)
	List(ctx context.Context, f ledger.ListFilter) ([]ledger.Submission, error)
	Counts(ctx context.Context) (map[ledger.Status]int, error)
}

// PluginRegistry defines the interface for plugin lookups
type PluginRegistry interface {
	Get(name string) (*plugin.Plugin, bool)
	Names() []string
}

// Config holds API server configuration
type Config struct {
	Listen string
	// APIKey is an optional bearer token. Empty disables authentication.
	APIKey string
}

const shutdownGrace = 5 * time.Second

// Server serves a read-only view of plugins and submissions.
type Server struct {
	config     Config
	ledger     SubmissionStore
	registry   PluginRegistry
	workspaces workspace.Manager
	logger     *slog.Logger
	server     *http.Server
	startedAt  time.Time
}

// New creates a new API server instance. workspaces may be nil, in which case
// submission reports omit workspace state.
func New(config Config, subs SubmissionStore, registry PluginRegistry, workspaces workspace.Manager, logger *slog.Logger) *Server {
	return &Server{
		config:     config,
		ledger:     subs,
		registry:   registry,
		workspaces: workspaces,
		logger:     logger,
		startedAt:  time.Now(),
	}
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start serves until ctx is done, then drains in-flight requests. It returns
// ctx.Err() after a clean shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.config.Listen,
		Handler:           s.setupRoutes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.logger.Info("API server starting", "listen", s.config.Listen, "auth", s.config.APIKey != "")

	errCh := make(chan error, 1)
	go func() {
		err := s.server.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen on %s: %w", s.config.Listen, err)
	case <-ctx.Done():
	}

	s.logger.Info("API server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return ctx.Err()
}

// setupRoutes configures the HTTP router
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	// Unauthenticated ops endpoint.
	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		if s.config.APIKey != "" {
			r.Use(s.authMiddleware)
		}
		r.Get("/plugins", s.handleListPlugins)
		r.Get("/plugins/{plugin}", s.handleGetPlugin)
		r.Get("/submissions", s.handleListSubmissions)
		r.Get("/submissions/{id}", s.handleGetSubmission)
		r.Get("/submissions/{id}/report", s.handleSubmissionReport)
		r.Get("/stats", s.handleStats)
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
