// Package http wires the route tree and the HTTP server.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/prescripto/prescripto/internal/interfaces/http/handlers"
	"github.com/prescripto/prescripto/internal/interfaces/http/middleware"
)

// RouterConfig aggregates the handlers and middleware making up the API.
type RouterConfig struct {
	ExtractionHandler *handlers.ExtractionHandler
	HealthHandler     *handlers.HealthHandler
	LoggingMiddleware *middleware.LoggingMiddleware

	// MetricsHandler serves the Prometheus scrape endpoint when set.
	MetricsHandler http.Handler
}

// NewRouter constructs the complete route tree.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if cfg.LoggingMiddleware != nil {
		r.Use(cfg.LoggingMiddleware.Handler)
	}

	if cfg.HealthHandler != nil {
		r.Get("/healthz", cfg.HealthHandler.Liveness)
		r.Get("/readyz", cfg.HealthHandler.Readiness)
	}
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	r.Route("/api/v1", func(api chi.Router) {
		api.Post("/extractions", cfg.ExtractionHandler.Extract)
		api.Route("/prescriptions", func(rx chi.Router) {
			rx.Get("/", cfg.ExtractionHandler.ListPrescriptions)
			rx.Get("/{id}", cfg.ExtractionHandler.GetPrescription)
			rx.Get("/{id}/schedule", cfg.ExtractionHandler.GetSchedule)
		})
	})

	return r
}
