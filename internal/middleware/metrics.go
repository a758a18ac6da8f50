package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors. Use NewMetrics per registry so tests
// do not collide on the default one.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal      *prometheus.CounterVec
	RequestsInProgress prometheus.Gauge
	RequestDuration    *prometheus.HistogramVec
	ScansTotal         *prometheus.CounterVec
	ScansRunning       prometheus.Gauge
	ScanDuration       *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scantrigger_http_requests_total",
			Help: "Total number of HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		RequestsInProgress: f.NewGauge(prometheus.GaugeOpts{
			Name: "scantrigger_http_requests_in_progress",
			Help: "Number of HTTP requests currently being served.",
		}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scantrigger_http_request_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		ScansTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scantrigger_scans_total",
			Help: "Scan invocations by outcome (success, failed, fault).",
		}, []string{"outcome"}),
		ScansRunning: f.NewGauge(prometheus.GaugeOpts{
			Name: "scantrigger_scans_running",
			Help: "Scan programs currently running.",
		}),
		ScanDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scantrigger_scan_seconds",
			Help:    "Wall time of scan invocations.",
			Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"outcome"}),
	}
}

// ObserveScan records one finished scan invocation.
func (m *Metrics) ObserveScan(outcome string, elapsed time.Duration) {
	m.ScansTotal.WithLabelValues(outcome).Inc()
	m.ScanDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// TrackScan wraps the scan route so the running gauge covers the full call.
func (m *Metrics) TrackScan(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.ScansRunning.Inc()
		defer m.ScansRunning.Dec()
		next.ServeHTTP(w, r)
	})
}

// Middleware tracks request metrics. Route labels use the chi pattern to keep
// cardinality bounded.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.RequestsInProgress.Inc()
		defer m.RequestsInProgress.Dec()

		wrapped := wrapWriter(w)
		next.ServeHTTP(wrapped, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		m.RequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(wrapped.statusCode)).Inc()
		m.RequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
