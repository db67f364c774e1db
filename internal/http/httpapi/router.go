// Package httpapi assembles the chi router for the API process.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"server/internal/http/handlers"
	"server/internal/infra"
	"server/internal/middleware"
)

// Options configures router construction.
type Options struct {
	App            *handlers.App
	JWTSecret      string
	Logger         infra.Logger
	AllowedOrigins []string
	RateLimit      int
	Registry       *prometheus.Registry
}

// NewRouter wires middleware and routes.
func NewRouter(opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.AllowedOrigins),
	)
	if opts.RateLimit > 0 {
		r.Use(middleware.RateLimit(opts.RateLimit, time.Minute))
	}

	app := opts.App

	r.Get("/v1/healthz", app.Health)
	if opts.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/v1/generation", func(r chi.Router) {
		r.Use(middleware.AuthJWT(opts.JWTSecret))

		r.Post("/tier", app.GenerationCreate)
		r.Get("/jobs", app.JobsList)
		r.Get("/jobs/{id}", app.JobGet)
		r.Get("/jobs/{id}/status", app.JobStatus)
		r.Get("/jobs/{id}/download", app.JobDownload)
		r.Get("/tier-status", app.TierStatus)
		r.Post("/images/{id}/retry", app.ImageRetry)
		r.Get("/results/{id}", app.ResultDownload)
		r.Get("/universities", app.Universities)
	})

	r.Route("/v1/internal", func(r chi.Router) {
		r.Use(middleware.AuthJWT(opts.JWTSecret))
		r.Post("/premium-confirmed", app.PremiumConfirmed)
	})

	return r
}
