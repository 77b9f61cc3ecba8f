// Package metrics exposes Prometheus collectors for labconsole. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects counters and histograms for backend traffic and the
// interactive components built on top of it.
type Metrics struct {
	registry               *prometheus.Registry
	requestsTotal          *prometheus.CounterVec
	requestDurationSeconds *prometheus.HistogramVec
	commandsTotal          *prometheus.CounterVec
	autosaveTotal          *prometheus.CounterVec
	topologySavesTotal     *prometheus.CounterVec
	openTabs               prometheus.Gauge
}

// New constructs a registry and registers all collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "labconsole",
			Subsystem: "backend",
			Name:      "requests_total",
			Help:      "Total backend requests by endpoint and outcome.",
		},
		[]string{"endpoint", "outcome"},
	)
	requestDurationSeconds := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "labconsole",
			Subsystem: "backend",
			Name:      "request_duration_seconds",
			Help:      "Backend request latency.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"endpoint"},
	)
	commandsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "labconsole",
			Subsystem: "session",
			Name:      "commands_total",
			Help:      "Terminal submissions by result (ok, rejected, password, error).",
		},
		[]string{"result"},
	)
	autosaveTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "labconsole",
			Subsystem: "autosave",
			Name:      "runs_total",
			Help:      "Autosave ticks by result (ok, skipped, failed).",
		},
		[]string{"result"},
	)
	topologySavesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "labconsole",
			Subsystem: "topology",
			Name:      "saves_total",
			Help:      "Topology saves by result.",
		},
		[]string{"result"},
	)
	openTabs := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "labconsole",
			Subsystem: "session",
			Name:      "open_tabs",
			Help:      "Terminal tabs currently open.",
		},
	)

	registry.MustRegister(
		requestsTotal,
		requestDurationSeconds,
		commandsTotal,
		autosaveTotal,
		topologySavesTotal,
		openTabs,
	)

	return &Metrics{
		registry:               registry,
		requestsTotal:          requestsTotal,
		requestDurationSeconds: requestDurationSeconds,
		commandsTotal:          commandsTotal,
		autosaveTotal:          autosaveTotal,
		topologySavesTotal:     topologySavesTotal,
		openTabs:               openTabs,
	}
}

// Handler returns an HTTP handler that serves the metrics registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveRequest(endpoint, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.requestsTotal.WithLabelValues(endpoint, outcome).Inc()
	if seconds := duration.Seconds(); seconds >= 0 {
		m.requestDurationSeconds.WithLabelValues(endpoint).Observe(seconds)
	}
}

func (m *Metrics) IncCommand(result string) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) IncAutosave(result string) {
	if m == nil {
		return
	}
	m.autosaveTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) IncTopologySave(result string) {
	if m == nil {
		return
	}
	m.topologySavesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) SetOpenTabs(n int) {
	if m == nil {
		return
	}
	m.openTabs.Set(float64(n))
}
