// metrics.go — Prometheus HTTP метрики.
// Регистрирует метрики: gb_http_requests_total, gb_http_request_duration_seconds.
package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gb_http_requests_total",
			Help: "Общее количество HTTP-запросов к гостевой книге",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gb_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к гостевой книге в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// unmatchedPath — лейбл для запросов, не попавших ни в один маршрут.
const unmatchedPath = "unmatched"

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Лейбл path — шаблон маршрута chi (/media/{id}/file), а не фактический путь.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			path := routePattern(r)
			status := strconv.Itoa(responseStatus(ww))

			httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// routePattern возвращает шаблон маршрута, заполненный chi после обработки.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return unmatchedPath
	}
	if pattern := rctx.RoutePattern(); pattern != "" {
		return pattern
	}
	return unmatchedPath
}
