// Package metrics defines the Prometheus collectors exposed by the
// engine, per SPEC_FULL.md §6.4.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the collectors the HTTP layer and the engine loops
// record against. Construct once per process and pass by reference.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	TimersPending       prometheus.Gauge
	TimersExecuting     prometheus.Gauge
}

// New constructs and registers every collector against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timer_http_requests_total",
			Help: "Total HTTP requests processed, by method/path/status.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "timer_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds, by method/path.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		TimersPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "timer_timers_pending",
			Help: "Number of timers currently pending, as of the last window load.",
		}),
		TimersExecuting: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "timer_timers_executing",
			Help: "Number of timers currently executing, as of the last window load.",
		}),
	}
	reg.MustRegister(m.HTTPRequestsTotal, m.HTTPRequestDuration, m.TimersPending, m.TimersExecuting)
	return m
}

// responseRecorder captures the status code a handler writes, since
// http.ResponseWriter doesn't expose it directly.
type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Middleware wraps an http.Handler, recording request count and latency
// keyed by method, route pattern, and status.
func (m *Metrics) Middleware(routePattern string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			m.HTTPRequestsTotal.WithLabelValues(r.Method, routePattern, strconv.Itoa(rec.status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, routePattern).Observe(time.Since(start).Seconds())
		})
	}
}
