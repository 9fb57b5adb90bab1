// Package metrics holds the Prometheus collectors for pitboss.
//
// Collectors live on an explicit registry rather than the global default so
// that tests and multiple caches in one process never collide on
// registration. All Record* methods are nil-safe: a nil *Metrics is a no-op.
//
// Metric families:
//   - pitboss_refcache_fetches_total{resource,outcome}
//   - pitboss_refcache_fetch_duration_seconds{resource}
//   - pitboss_refcache_collapsed_total{resource}
//   - pitboss_refcache_suppressed_total{resource}
//   - pitboss_refcache_entities{resource}
//   - pitboss_http_requests_total{route,code}
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pitboss"

// Outcome labels for the fetch counter.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Metrics bundles every collector pitboss exports.
type Metrics struct {
	Fetches       *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec
	Collapsed     *prometheus.CounterVec
	Suppressed    *prometheus.CounterVec
	Entities      *prometheus.GaugeVec
	HTTPRequests  *prometheus.CounterVec
}

// NewRegistry returns a registry preloaded with the Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Fetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refcache",
			Name:      "fetches_total",
			Help:      "Reference-data network fetches by resource and outcome.",
		}, []string{"resource", "outcome"}),

		FetchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "refcache",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of reference-data fetches.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"resource"}),

		Collapsed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refcache",
			Name:      "collapsed_total",
			Help:      "Fetch calls that joined an in-flight fetch instead of issuing a request.",
		}, []string{"resource"}),

		Suppressed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refcache",
			Name:      "suppressed_total",
			Help:      "Fetch calls skipped because the session was not ready.",
		}, []string{"resource"}),

		Entities: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "refcache",
			Name:      "entities",
			Help:      "Number of cached entities per resource.",
		}, []string{"resource"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served by route pattern and status code.",
		}, []string{"route", "code"}),
	}
}

// RecordFetch counts one completed network fetch.
func (m *Metrics) RecordFetch(resource string, err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	m.Fetches.WithLabelValues(resource, outcome).Inc()
	m.FetchDuration.WithLabelValues(resource).Observe(d.Seconds())
}

// RecordCollapsed counts a caller that joined an in-flight fetch.
func (m *Metrics) RecordCollapsed(resource string) {
	if m == nil {
		return
	}
	m.Collapsed.WithLabelValues(resource).Inc()
}

// RecordSuppressed counts a fetch skipped by the auth gate.
func (m *Metrics) RecordSuppressed(resource string) {
	if m == nil {
		return
	}
	m.Suppressed.WithLabelValues(resource).Inc()
}

// SetEntities sets the cached entity gauge for resource.
func (m *Metrics) SetEntities(resource string, n int) {
	if m == nil {
		return
	}
	m.Entities.WithLabelValues(resource).Set(float64(n))
}

// RecordRequest counts one HTTP request.
func (m *Metrics) RecordRequest(route, code string) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, code).Inc()
}
