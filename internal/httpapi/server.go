// Package httpapi serves the browser map and the JSON job API over HTTP,
// together with health, readiness and Prometheus endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/stuartshay/qso-mapper/internal/database"
	"github.com/stuartshay/qso-mapper/internal/mapper"
	"github.com/stuartshay/qso-mapper/internal/observability"
	"github.com/stuartshay/qso-mapper/internal/processor"
	"github.com/stuartshay/qso-mapper/internal/queue"
)

// ReadinessChecker reports whether the service is ready to serve traffic
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// ReadinessFunc adapts a function to ReadinessChecker
type ReadinessFunc func(ctx context.Context) error

// CheckReadiness implements ReadinessChecker
func (f ReadinessFunc) CheckReadiness(ctx context.Context) error { return f(ctx) }

// UsageReader reads the usage log
type UsageReader interface {
	GetUsageStats(ctx context.Context) (database.UsageStats, error)
	RecentUploads(ctx context.Context, limit int) ([]database.Upload, error)
}

// Deps are the collaborators of the HTTP server. Metrics, Ready and Usage
// are optional.
type Deps struct {
	Queue          *queue.Queue
	Processor      *processor.Processor
	Palette        mapper.Palette
	Metrics        *observability.Metrics
	Gatherer       prometheus.Gatherer
	Ready          ReadinessChecker
	Usage          UsageReader
	ServiceName    string
	PublicURL      string
	MaxUploadBytes int64
}

// Server exposes the UI, job API, health, readiness, and metrics routes
type Server struct {
	httpServer *http.Server
	deps       Deps
}

// NewServer creates the HTTP server and registers every route
func NewServer(addr string, deps Deps) *Server {
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	if deps.Palette == nil {
		deps.Palette = mapper.DefaultPalette()
	}
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = 10 << 20
	}

	mux := http.NewServeMux()
	s := &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       60 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		deps: deps,
	}

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.Handle("GET /static/", staticHandler())

	mux.HandleFunc("POST /api/v1/jobs", s.handleSubmit)
	mux.HandleFunc("GET /api/v1/jobs", s.handleListJobs)
	mux.HandleFunc("GET /api/v1/jobs/{id}", s.handleGetJob)
	mux.HandleFunc("GET /api/v1/jobs/{id}/contacts", s.handleContacts)
	mux.HandleFunc("GET /api/v1/jobs/{id}/stats", s.handleStats)
	mux.HandleFunc("GET /api/v1/jobs/{id}/export.csv", s.handleExport("csv"))
	mux.HandleFunc("GET /api/v1/jobs/{id}/export.kml", s.handleExport("kml"))
	mux.HandleFunc("GET /api/v1/jobs/{id}/export.json", s.handleExport("json"))
	mux.HandleFunc("GET /api/v1/jobs/{id}/qr.png", s.handleQR)
	mux.HandleFunc("GET /api/v1/path", s.handlePath)
	mux.HandleFunc("GET /api/v1/palette", s.handlePalette)
	mux.HandleFunc("GET /api/v1/usage", s.handleUsage)

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	log.Info().Str("addr", s.httpServer.Addr).Msg("HTTP server listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": s.deps.ServiceName,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.deps.Ready.CheckReadiness(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
