package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks request counts, latencies and auth rejections
type Metrics struct {
	requests       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	authRejections *prometheus.CounterVec
	gatherer       prometheus.Gatherer
}

// NewMetrics registers the HTTP metrics on reg
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"path", "method", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path", "method"},
		),
		authRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_rejections_total",
				Help: "Total number of rejected authentication attempts",
			},
			[]string{"reason"},
		),
		gatherer: reg,
	}
	reg.MustRegister(m.requests, m.duration, m.authRejections)
	return m
}

// Middleware records every request under its route pattern
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		// Route patterns keep IDs out of the label set
		path := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.requests.WithLabelValues(path, r.Method, strconv.Itoa(status)).Inc()
		m.duration.WithLabelValues(path, r.Method).Observe(time.Since(start).Seconds())

		switch status {
		case http.StatusUnauthorized:
			m.authRejections.WithLabelValues("401_unauthorized").Inc()
		case http.StatusTooManyRequests:
			m.authRejections.WithLabelValues("429_rate_limited").Inc()
		}
	})
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
