package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gomersimpson131212-create/reviews-telegram-bot/pkg/health"
	"github.com/gomersimpson131212-create/reviews-telegram-bot/pkg/middleware"
)

// NewRouter creates the ops router: health probes, Prometheus metrics and
// pprof for allowed networks. The bot itself has no HTTP API.
func NewRouter(
	healthHandler *health.Handler,
	pprofCIDRs []string,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics())

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())

	r.Handle("/metrics", promhttp.Handler())

	middleware.RegisterPprof(r, pprofCIDRs, logger)

	return r
}
