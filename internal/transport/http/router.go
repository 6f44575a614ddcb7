package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bondmap/internal/middleware"
)

// RouterOptions configures the API router
type RouterOptions struct {
	// RefreshRPS limits POST /api/refresh; refreshes rebuild the whole
	// metrics batch, so they are throttled independently of reads.
	RefreshRPS   float64
	RefreshBurst int
}

// DefaultRouterOptions allows one refresh per ten seconds with a small burst
func DefaultRouterOptions() RouterOptions {
	return RouterOptions{
		RefreshRPS:   0.1,
		RefreshBurst: 2,
	}
}

// NewRouter assembles the middleware chain and API routes
func NewRouter(handler *GridHandler, logger *slog.Logger, registry *prometheus.Registry, opts RouterOptions) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.StructuredLogger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Compress(5))

	refreshLimiter := middleware.NewRateLimiter(opts.RefreshRPS, opts.RefreshBurst, logger)

	r.Route("/api", func(r chi.Router) {
		r.Get("/grid", handler.GetGrid)
		r.Get("/summary", handler.GetSummary)
		r.With(refreshLimiter.Handler).Post("/refresh", handler.Refresh)
	})

	r.Get("/healthz", healthz)

	if registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	return r
}

func healthz(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
