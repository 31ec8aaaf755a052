// Package httpserver provides the HTTP API for direct search invocation.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/events"
	"github.com/helixir/paper-search-service/internal/observability"
	"github.com/helixir/paper-search-service/internal/search"
)

// SearchExecutor runs one search request.
type SearchExecutor interface {
	Execute(ctx context.Context, req *domain.SearchRequest, trigger domain.Trigger) (*domain.SearchResponse, error)
}

// Describer reports the active providers and orchestrator knobs.
type Describer interface {
	Describe() search.Description
}

// StatsProvider reports content storage statistics.
type StatsProvider interface {
	Stats(ctx context.Context) (map[string]any, error)
}

// ContentOpener reads a persisted content object by file name.
type ContentOpener interface {
	Open(fileName string) ([]byte, *domain.ContentReference, error)
}

// RunLister lists recent search runs.
type RunLister interface {
	ListRecent(ctx context.Context, projectID string, limit int) ([]*domain.SearchRun, error)
}

// readinessTimeout bounds all readiness checks together.
const readinessTimeout = 5 * time.Second

// HealthCheck reports whether a dependency is usable.
type HealthCheck = func(ctx context.Context) error

// Dependencies are the collaborators behind the API. Only Search is required.
type Dependencies struct {
	Search    SearchExecutor
	Events    events.Publisher
	Describer Describer
	Storage   StatsProvider
	Content   ContentOpener
	Runs      RunLister
	// Checks run on /readyz, keyed by dependency name.
	Checks map[string]HealthCheck
	// MetricsPath mounts the Prometheus handler when set.
	MetricsPath string
}

// Server is the HTTP API server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	deps       Dependencies
	logger     zerolog.Logger
	metrics    *observability.Metrics
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// NewServer creates a new HTTP server. metrics may be nil.
func NewServer(cfg Config, deps Dependencies, logger zerolog.Logger, metrics *observability.Metrics) *Server {
	if deps.Events == nil {
		deps.Events = events.NopPublisher{}
	}
	s := &Server{
		deps:    deps,
		logger:  logger.With().Str("component", "http_server").Logger(),
		metrics: metrics,
	}

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// NewOpsServer serves only liveness, readiness and metrics. The worker uses
// it in place of the search API.
func NewOpsServer(cfg Config, checks map[string]HealthCheck, metricsPath string, logger zerolog.Logger) *Server {
	s := &Server{
		deps:   Dependencies{Checks: checks, MetricsPath: metricsPath},
		logger: logger.With().Str("component", "ops_server").Logger(),
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)
	if metricsPath != "" {
		r.Handle(metricsPath, promhttp.Handler())
	}
	s.router = r
	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(correlationIDMiddleware)
	r.Use(metricsMiddleware(s.metrics))

	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)
	if s.deps.MetricsPath != "" {
		r.Handle(s.deps.MetricsPath, promhttp.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(jsonContentTypeMiddleware)
			r.Post("/websearch/search", s.searchHandler)
			r.Get("/websearch/stats", s.statsHandler)
			r.Get("/websearch/runs", s.runsHandler)
		})
		// Content is served with its own media type.
		r.Get("/content/{fileName}", s.contentHandler)
	})

	return r
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readinessHandler runs every configured check and reports each result.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	status := http.StatusOK
	body := map[string]string{"status": "ready"}
	for name, check := range s.deps.Checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "not_ready"
			body[name] = err.Error()
			s.logger.Warn().Err(err).Str("dependency", name).Msg("readiness check failed")
			continue
		}
		body[name] = "healthy"
	}
	writeJSON(w, status, body)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Best-effort; headers already sent.
		_ = err
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}
