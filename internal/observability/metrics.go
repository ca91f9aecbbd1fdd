// Package observability provides Prometheus metrics for the prediction
// pipeline.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects and exposes pipeline-level Prometheus metrics.
type Metrics struct {
	registry *prometheus.Registry

	// Prediction pipeline
	PredictionsTotal   *prometheus.CounterVec
	PredictionLatency  *prometheus.HistogramVec
	EnsembleConfidence *prometheus.HistogramVec
	PartialPredictions prometheus.Counter

	// Upstream fetching
	FetchSlotsTotal  *prometheus.CounterVec
	FetchSlotLatency *prometheus.HistogramVec

	// Fingerprint cache
	CacheLookupsTotal *prometheus.CounterVec

	// Models
	ModelFailuresTotal *prometheus.CounterVec
	ActiveModelVersion *prometheus.GaugeVec

	// Retraining
	RetrainRunsTotal   *prometheus.CounterVec
	RetrainRunDuration prometheus.Histogram
}

// NewMetrics creates a metrics collector backed by its own registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		PredictionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "matchcast_predictions_total",
				Help: "Total predictions produced, by ensemble method and outcome status",
			},
			[]string{"method", "status"},
		),
		PredictionLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "matchcast_prediction_latency_seconds",
				Help:    "End-to-end prediction latency",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"method"},
		),
		EnsembleConfidence: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "matchcast_ensemble_confidence",
				Help:    "Confidence of the fused distribution",
				Buckets: []float64{0.34, 0.4, 0.45, 0.5, 0.55, 0.6, 0.7, 0.8, 0.9, 1.0},
			},
			[]string{"method"},
		),
		PartialPredictions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "matchcast_partial_predictions_total",
				Help: "Predictions produced from incomplete upstream bundles",
			},
		),

		FetchSlotsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "matchcast_fetch_slots_total",
				Help: "Upstream fetch slot attempts, by category and result",
			},
			[]string{"category", "result"},
		),
		FetchSlotLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "matchcast_fetch_slot_latency_seconds",
				Help:    "Per-slot upstream fetch latency including retries",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 13),
			},
			[]string{"category"},
		),

		CacheLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "matchcast_cache_lookups_total",
				Help: "Fingerprint cache lookups, by category and result (hit, miss, expired)",
			},
			[]string{"category", "result"},
		),

		ModelFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "matchcast_model_failures_total",
				Help: "Per-model inference failures, by family and reason",
			},
			[]string{"family", "reason"},
		),
		ActiveModelVersion: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "matchcast_active_model_info",
				Help: "Set to 1 for the currently active version of each model family",
			},
			[]string{"family", "version"},
		),

		RetrainRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "matchcast_retrain_runs_total",
				Help: "Retraining runs, by trigger and result",
			},
			[]string{"trigger", "result"},
		),
		RetrainRunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "matchcast_retrain_run_duration_seconds",
				Help:    "Wall time of a full retraining run",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			},
		),
	}

	m.registerAll()

	return m
}

func (m *Metrics) registerAll() {
	m.registry.MustRegister(
		m.PredictionsTotal,
		m.PredictionLatency,
		m.EnsembleConfidence,
		m.PartialPredictions,
		m.FetchSlotsTotal,
		m.FetchSlotLatency,
		m.CacheLookupsTotal,
		m.ModelFailuresTotal,
		m.ActiveModelVersion,
		m.RetrainRunsTotal,
		m.RetrainRunDuration,
	)
}

// Registry returns the prometheus registry backing this collector.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordCacheLookup increments the cache lookup counter.
func (m *Metrics) RecordCacheLookup(category, result string) {
	m.CacheLookupsTotal.WithLabelValues(category, result).Inc()
}

// RecordFetchSlot records one fetch slot attempt outcome.
func (m *Metrics) RecordFetchSlot(category, result string, seconds float64) {
	m.FetchSlotsTotal.WithLabelValues(category, result).Inc()
	m.FetchSlotLatency.WithLabelValues(category).Observe(seconds)
}

// SetActiveModel marks version as the active one for a family, clearing any
// previously exported version gauge for that family.
func (m *Metrics) SetActiveModel(family, version string) {
	m.ActiveModelVersion.DeletePartialMatch(prometheus.Labels{"family": family})
	m.ActiveModelVersion.WithLabelValues(family, version).Set(1)
}
