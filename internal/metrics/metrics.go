// Package metrics exposes Prometheus collectors for transform runs.
//
// Metrics (namespace "jarscan"):
//
//	transforms_total{status}        counter   completed, cached, failed, skipped
//	transform_duration_seconds      histogram time spent per artifact
//	cache_lookups_total{result}     counter   hit, miss
//	inflight_transforms             gauge     artifacts currently being processed
//
// Collectors are registered with a caller supplied registry. A nil *Metrics
// is valid and records nothing.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "jarscan"

// Status label values for transforms_total.
const (
	StatusCompleted = "completed"
	StatusCached    = "cached"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// Result label values for cache_lookups_total.
const (
	LookupHit  = "hit"
	LookupMiss = "miss"
)

// Metrics holds the run collectors.
type Metrics struct {
	registry *prometheus.Registry

	transforms   *prometheus.CounterVec
	duration     prometheus.Histogram
	cacheLookups *prometheus.CounterVec
	inflight     prometheus.Gauge
}

// New registers all collectors with registry. A nil registry gets a fresh
// one, so tests and one-shot runs never touch the global default.
func New(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	factory := promauto.With(registry)

	m := &Metrics{registry: registry}

	m.transforms = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transforms_total",
		Help:      "Artifacts processed, by final status",
	}, []string{"status"})

	m.duration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "transform_duration_seconds",
		Help:      "Time from dispatch to final state for one artifact",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
	})

	m.cacheLookups = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_lookups_total",
		Help:      "Artifact cache probes, by result",
	}, []string{"result"})

	m.inflight = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "inflight_transforms",
		Help:      "Artifacts currently being hashed, transformed or replayed",
	})

	return m
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveTransform counts one finished artifact and records its duration.
// Skipped artifacts never started, so no duration is recorded for them.
func (m *Metrics) ObserveTransform(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.transforms.WithLabelValues(status).Inc()
	if status != StatusSkipped {
		m.duration.Observe(d.Seconds())
	}
}

// CacheLookup counts a cache probe.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := LookupMiss
	if hit {
		result = LookupHit
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// Started marks an artifact as in flight. Call the returned func when done.
func (m *Metrics) Started() func() {
	if m == nil {
		return func() {}
	}
	m.inflight.Inc()
	return m.inflight.Dec
}

// WriteTextfile writes all collected metrics to path in the text exposition
// format, for the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
