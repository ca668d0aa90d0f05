package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gomersimpson131212-create/reviews-telegram-bot/pkg/logger"
)

var opsPanics = promauto.NewCounter(prometheus.CounterOpts{
	Name: "feedback_ops_http_panics_total",
	Help: "Panics recovered on the ops HTTP server.",
})

// Recovery turns a panicking ops handler into a 500.
func Recovery(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				opsPanics.Inc()
				logger.WithContext(r.Context(), l).ErrorContext(r.Context(), "ops handler panicked",
					slog.Any("panic", rec),
					slog.String("path", r.URL.Path),
					slog.String("stack", string(debug.Stack())),
				)
				http.Error(w, "internal error", http.StatusInternalServerError)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
