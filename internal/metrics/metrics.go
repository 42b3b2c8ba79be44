// Package metrics exposes replica counters in the Prometheus format.
//
// plos is a CLI, so nothing is scraped; when a metrics file is configured
// the registry is written out as a node-exporter textfile after each
// command.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the replica's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	EventsAppended   *prometheus.CounterVec
	EventsMerged     prometheus.Counter
	MalformedSkipped prometheus.Counter
	Conflicts        prometheus.Gauge
	Seals            prometheus.Counter
	SealedEvents     prometheus.Counter
	VerifyRuns       *prometheus.CounterVec
	BufferedEvents   prometheus.Gauge
}

// New registers a fresh set of collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		EventsAppended: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plos_events_appended_total",
				Help: "Total number of events appended locally",
			},
			[]string{"type"},
		),
		EventsMerged: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "plos_events_merged_total",
				Help: "Total number of new events taken from peers by sync or bundle import",
			},
		),
		MalformedSkipped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "plos_malformed_lines_skipped_total",
				Help: "Total number of unreadable log lines skipped",
			},
		),
		Conflicts: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "plos_unresolved_conflicts",
				Help: "Unresolved conflicts in the last projection",
			},
		),
		Seals: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "plos_segments_sealed_total",
				Help: "Total number of segments sealed",
			},
		),
		SealedEvents: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "plos_sealed_events_total",
				Help: "Total number of events moved from the buffer into segments",
			},
		),
		VerifyRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plos_verify_runs_total",
				Help: "Total number of chain verifications by result",
			},
			[]string{"result"},
		),
		BufferedEvents: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "plos_buffered_events",
				Help: "Events in the unsealed buffer",
			},
		),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes all metrics to path atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
