// Package metrics exposes Prometheus metrics for the proxy.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "openaperture_router"

// Metrics bundles the Prometheus collectors the proxy exercises on the hot
// path and from the route refresher.
type Metrics struct {
	registry *prometheus.Registry
	handler  http.Handler

	backendDuration    *prometheus.HistogramVec
	backendErrors      *prometheus.CounterVec
	responseSize       prometheus.Histogram
	routeCacheSize     prometheus.Gauge
	lastRefreshSeconds prometheus.Gauge
	refreshErrors      prometheus.Counter
}

// New registers and returns a fresh metrics bundle.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		backendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "duration_seconds",
			Help:      "Duration of the backend exchange, by outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		backendErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "errors_total",
			Help:      "Count of backend errors, by kind.",
		}, []string{"kind"}),
		responseSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "response",
			Name:      "size_bytes",
			Help:      "Size of the response body forwarded to the client.",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 10),
		}),
		routeCacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "route",
			Name:      "cache_size",
			Help:      "Number of authorities currently registered in the route cache.",
		}),
		lastRefreshSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "route",
			Name:      "last_refresh_unixtime",
			Help:      "Unix timestamp of the last successful route refresh, 0 if never.",
		}),
		refreshErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "route",
			Name:      "refresh_errors_total",
			Help:      "Count of failed route refresh iterations.",
		}),
	}

	reg.MustRegister(m.backendDuration, m.backendErrors, m.responseSize,
		m.routeCacheSize, m.lastRefreshSeconds, m.refreshErrors)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	return m
}

// Handler returns the /metrics HTTP handler.
func (m *Metrics) Handler() http.Handler { return m.handler }

// ObserveBackend records a completed backend exchange.
func (m *Metrics) ObserveBackend(outcome string, d time.Duration) {
	m.backendDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// IncBackendError increments the error counter for kind.
func (m *Metrics) IncBackendError(kind string) {
	m.backendErrors.WithLabelValues(kind).Inc()
}

// ObserveResponseSize records the size of a forwarded response body.
func (m *Metrics) ObserveResponseSize(n int64) {
	m.responseSize.Observe(float64(n))
}

// SetRouteCacheSize records the current authority count.
func (m *Metrics) SetRouteCacheSize(n int) {
	m.routeCacheSize.Set(float64(n))
}

// SetLastRefresh records the last successful refresh's unix timestamp, or
// 0 for "never".
func (m *Metrics) SetLastRefresh(unixSeconds int64) {
	m.lastRefreshSeconds.Set(float64(unixSeconds))
}

// IncRefreshError increments the refresh-error counter.
func (m *Metrics) IncRefreshError() {
	m.refreshErrors.Inc()
}
