package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/pilatesloop/backend/internal/telemetry/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

// Middleware wraps HTTP handlers with per-route duration metrics.
type Middleware struct {
	registry *prometheus.Registry
	manager  *metrics.Manager
}

func New(registry *prometheus.Registry, manager *metrics.Manager) *Middleware {
	return &Middleware{
		registry: registry,
		manager:  manager,
	}
}

func (m *Middleware) WrapHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.manager == nil {
			next.ServeHTTP(w, r)
			return
		}

		resp := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		defer func(begin time.Time) {
			m.manager.HistogramRequestDuration.With(prometheus.Labels{
				"route":       route,
				"method":      r.Method,
				"status_code": strconv.Itoa(resp.statusCode),
			}).Observe(time.Since(begin).Seconds())
		}(time.Now())

		next.ServeHTTP(resp, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.ResponseWriter.WriteHeader(statusCode)
	r.statusCode = statusCode
}
