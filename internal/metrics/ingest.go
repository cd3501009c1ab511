// Package metrics holds the prometheus collectors of the ingestion pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Ingestion contains Prometheus metrics for fetching and reconciliation.
// A nil *Ingestion is valid and records nothing.
type Ingestion struct {
	CyclesTotal       *prometheus.CounterVec
	CycleDuration     prometheus.Histogram
	LocationsTotal    *prometheus.CounterVec
	FetchesTotal      *prometheus.CounterVec
	FetchDuration     *prometheus.HistogramVec
	RecordsTotal      *prometheus.CounterVec
	DatasetErrorTotal *prometheus.CounterVec
}

// NewIngestion creates the collectors and registers them with reg.
// A nil reg registers nothing, which keeps tests isolated.
func NewIngestion(namespace string, reg prometheus.Registerer) *Ingestion {
	m := &Ingestion{
		CyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "cycles_total",
				Help:      "Total number of ingestion cycles",
			},
			[]string{"outcome"}, // outcome: completed, no_locations, no_provider
		),
		CycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "cycle_duration_seconds",
				Help:      "Duration of ingestion cycles",
				Buckets:   prometheus.DefBuckets,
			},
		),
		LocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "locations_total",
				Help:      "Locations visited by ingestion cycles",
			},
			[]string{"outcome"}, // outcome: processed, fresh, rate_limited, failed
		),
		FetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "fetches_total",
				Help:      "Total number of provider fetches",
			},
			[]string{"provider", "status"}, // status: success, error
		),
		FetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "fetch_duration_seconds",
				Help:      "Duration of provider fetches",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		RecordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reconciler",
				Name:      "records_total",
				Help:      "Records touched by reconciliation",
			},
			[]string{"dataset", "action"}, // action: inserted, updated, skipped, purged
		),
		DatasetErrorTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reconciler",
				Name:      "dataset_errors_total",
				Help:      "Datasets whose reconciliation failed",
			},
			[]string{"dataset"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.CyclesTotal,
			m.CycleDuration,
			m.LocationsTotal,
			m.FetchesTotal,
			m.FetchDuration,
			m.RecordsTotal,
			m.DatasetErrorTotal,
		)
	}

	return m
}

// ObserveCycle records a finished cycle.
func (m *Ingestion) ObserveCycle(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.CyclesTotal.WithLabelValues(outcome).Inc()
	m.CycleDuration.Observe(took.Seconds())
}

// ObserveLocation records the outcome of one location within a cycle.
func (m *Ingestion) ObserveLocation(outcome string) {
	if m == nil {
		return
	}
	m.LocationsTotal.WithLabelValues(outcome).Inc()
}

// ObserveFetch records a provider call.
func (m *Ingestion) ObserveFetch(provider string, err error, took time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.FetchesTotal.WithLabelValues(provider, status).Inc()
	m.FetchDuration.WithLabelValues(provider).Observe(took.Seconds())
}

// ObserveDataset records the counters of one dataset reconciliation.
func (m *Ingestion) ObserveDataset(dataset string, inserted, updated, skipped, purged int, err error) {
	if m == nil {
		return
	}
	m.RecordsTotal.WithLabelValues(dataset, "inserted").Add(float64(inserted))
	m.RecordsTotal.WithLabelValues(dataset, "updated").Add(float64(updated))
	m.RecordsTotal.WithLabelValues(dataset, "skipped").Add(float64(skipped))
	m.RecordsTotal.WithLabelValues(dataset, "purged").Add(float64(purged))
	if err != nil {
		m.DatasetErrorTotal.WithLabelValues(dataset).Inc()
	}
}
