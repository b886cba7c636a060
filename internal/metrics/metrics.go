// Package metrics exposes the sensor's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scansentry"

// Metrics groups every collector of one sensor instance. All methods are
// safe to call on a nil *Metrics, which disables instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	frames       prometheus.Counter
	skips        *prometheus.CounterVec
	observations *prometheus.CounterVec
	flushes      prometheus.Counter
	flushErrors  prometheus.Counter
	flushSeconds prometheus.Histogram
	flushedRows  prometheus.Gauge
	rollovers    prometheus.Counter
	exportErrors *prometheus.CounterVec
	destinations prometheus.Gauge
	statEntries  prometheus.Gauge
	seenFlows    prometheus.Gauge
}

// New creates the collectors and registers them on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Frames read from the capture source.",
		}),
		skips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_skipped_total",
			Help:      "Frames that produced no observation, by reason.",
		}, []string{"reason"}),
		observations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_total",
			Help:      "Decoded observations by protocol and aggregation outcome.",
		}, []string{"proto", "outcome"}),
		flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flushes_total",
			Help:      "Successful day log flushes.",
		}),
		flushErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flush_errors_total",
			Help:      "Day log flushes that failed.",
		}),
		flushSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "flush_duration_seconds",
			Help:      "Time spent writing a day log.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		flushedRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "flushed_rows",
			Help:      "Rows written by the last successful flush.",
		}),
		rollovers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollovers_total",
			Help:      "Day boundaries crossed.",
		}),
		exportErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "export_errors_total",
			Help:      "Exporter failures, by exporter.",
		}, []string{"exporter"}),
		destinations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "destinations",
			Help:      "Destinations in the traffic table.",
		}),
		statEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stat_entries",
			Help:      "Entries in the statistics table.",
		}),
		seenFlows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "seen_flows",
			Help:      "Non-TCP flows claimed in the current window.",
		}),
	}

	m.registry.MustRegister(
		m.frames, m.skips, m.observations,
		m.flushes, m.flushErrors, m.flushSeconds, m.flushedRows,
		m.rollovers, m.exportErrors,
		m.destinations, m.statEntries, m.seenFlows,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns a router serving /metrics.
func (m *Metrics) Handler() http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return r
}

func (m *Metrics) Frame() {
	if m == nil {
		return
	}
	m.frames.Inc()
}

func (m *Metrics) Skip(reason string) {
	if m == nil {
		return
	}
	m.skips.WithLabelValues(reason).Inc()
}

func (m *Metrics) Observation(proto, outcome string) {
	if m == nil {
		return
	}
	m.observations.WithLabelValues(proto, outcome).Inc()
}

// Flushed records a successful flush of rows taking d.
func (m *Metrics) Flushed(rows int, d time.Duration) {
	if m == nil {
		return
	}
	m.flushes.Inc()
	m.flushSeconds.Observe(d.Seconds())
	m.flushedRows.Set(float64(rows))
}

func (m *Metrics) FlushFailed() {
	if m == nil {
		return
	}
	m.flushErrors.Inc()
}

func (m *Metrics) Rollover() {
	if m == nil {
		return
	}
	m.rollovers.Inc()
}

func (m *Metrics) ExportFailed(exporter string) {
	if m == nil {
		return
	}
	m.exportErrors.WithLabelValues(exporter).Inc()
}

// TableSizes publishes the current size of the aggregation tables.
func (m *Metrics) TableSizes(destinations, stats, flows int) {
	if m == nil {
		return
	}
	m.destinations.Set(float64(destinations))
	m.statEntries.Set(float64(stats))
	m.seenFlows.Set(float64(flows))
}
