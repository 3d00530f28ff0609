// Package http assembles the API surface: middleware stack, health and
// metrics endpoints, the public token route, and the authenticated custody
// routes.
package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"custodia/internal/platform/middleware"
)

// Registrar is implemented by every handler that mounts routes.
type Registrar interface {
	Register(r chi.Router)
}

// NewRouter wires all endpoints. The auth handler stays public; every
// custody handler sits behind RequireAuth.
func NewRouter(
	logger *slog.Logger,
	validator middleware.JWTValidator,
	authHandler Registrar,
	custody ...Registrar,
) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Tracing("custodia"))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	authHandler.Register(r)

	r.Group(func(g chi.Router) {
		g.Use(middleware.RequireAuth(validator, logger))
		for _, h := range custody {
			h.Register(g)
		}
	})

	return r
}
