package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	opsRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedback_ops_http_requests_total",
			Help: "Requests served by the ops HTTP server.",
		},
		[]string{"route", "status"},
	)

	opsRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feedback_ops_http_request_duration_seconds",
			Help:    "Ops HTTP request latency.",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"route"},
	)
)

// PrometheusMetrics counts ops requests per chi route. Unmatched paths are
// reported as "unmatched".
func PrometheusMetrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			opsRequests.WithLabelValues(route, strconv.Itoa(rw.status)).Inc()
			opsRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		})
	}
}
