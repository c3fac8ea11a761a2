// Package api provides the REST API server for the seed fetch service.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/varserve/seed-fetcher/internal/service"
	"github.com/varserve/seed-fetcher/internal/versions"
)

// ServerOption configures the API server
type ServerOption func(*serverConfig)

// serverConfig holds the server configuration
type serverConfig struct {
	middlewares     []func(http.Handler) http.Handler
	metricsGatherer prometheus.Gatherer
}

// WithMiddlewares adds middleware to the server
func WithMiddlewares(mw ...func(http.Handler) http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithMetricsGatherer mounts a Prometheus exposition endpoint at /metrics
// for the given gatherer.
func WithMetricsGatherer(g prometheus.Gatherer) ServerOption {
	return func(cfg *serverConfig) {
		cfg.metricsGatherer = g
	}
}

// NewServer creates and configures the HTTP router with the given service
// and options
func NewServer(svc service.SeedService, opts ...ServerOption) *chi.Mux {
	cfg := &serverConfig{
		middlewares: []func(http.Handler) http.Handler{},
	}

	for _, opt := range opts {
		opt(cfg)
	}

	r := chi.NewRouter()

	for _, mw := range cfg.middlewares {
		r.Use(mw)
	}

	r.Get("/health", healthHandler)
	r.Get("/readiness", readinessHandler(svc))
	r.Get("/version", versionHandler)

	if cfg.metricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics",
			promhttp.HandlerFor(cfg.metricsGatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/seed", func(r chi.Router) {
		r.Get("/status", statusHandler(svc))
		r.Post("/fetch", fetchHandler(svc))
	})

	return r
}

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"elapsed", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

func readinessHandler(svc service.SeedService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.CheckReadiness(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, ReadinessResponse{Status: "error"})
			return
		}
		writeJSON(w, http.StatusOK, ReadinessResponse{Status: "ready"})
	}
}

func versionHandler(w http.ResponseWriter, _ *http.Request) {
	info := versions.GetVersionInfo()
	writeJSON(w, http.StatusOK, VersionResponse{
		Version:   info.Version,
		Commit:    info.Commit,
		BuildDate: info.BuildDate,
		GoVersion: info.GoVersion,
		Platform:  info.Platform,
	})
}

func statusHandler(svc service.SeedService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := svc.Status(r.Context())
		if err != nil {
			slog.Error("Failed to read seed status", "error", err)
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "failed to read seed status"})
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}

func fetchHandler(svc service.SeedService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		restrictMode := r.URL.Query().Get("restrict")

		result, err := svc.Fetch(r.Context(), restrictMode)
		if err != nil {
			slog.Error("Seed fetch trigger failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "seed fetch failed"})
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}
