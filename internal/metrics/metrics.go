// Package metrics provides Prometheus metrics collection for the
// inference service. It defines and manages the prediction, consensus,
// and cache metrics that are exposed via the Prometheus endpoint for
// monitoring and alerting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the inference service.
type Metrics struct {
	// Prediction metrics
	PredictionsTotal   prometheus.Counter   // Total number of predictions served
	PredictionFailures prometheus.Counter   // Total number of failed predictions
	PredictionLatency  prometheus.Histogram // Prediction latency in seconds
	MalignantScores    prometheus.Histogram // Distribution of malignant probabilities

	// Consensus metrics
	ConsensusRuns      prometheus.Counter   // Total number of consensus evaluations
	ConsensusAgreement prometheus.Histogram // Agreement fraction per consensus run

	// Model and cache metrics
	ModelLoads   prometheus.Counter // Total number of model artifact loads
	LoadedModels prometheus.Gauge   // Number of models currently cached
	CacheHits    prometheus.Counter // Prediction cache hits
	CacheMisses  prometheus.Counter // Prediction cache misses

	// System metrics
	ErrorsTotal prometheus.Counter // Total number of errors encountered
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
// This allows for isolated metric collection in tests without affecting
// the global Prometheus registry.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		PredictionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "predictions_total",
			Help: "Total number of predictions served",
		}),
		PredictionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "prediction_failures_total",
			Help: "Total number of failed predictions",
		}),
		PredictionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_latency_seconds",
			Help:    "Prediction latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		MalignantScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "malignant_probability",
			Help:    "Distribution of predicted malignant probabilities",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		ConsensusRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "consensus_runs_total",
			Help: "Total number of consensus evaluations",
		}),
		ConsensusAgreement: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "consensus_agreement",
			Help:    "Fraction of models agreeing with the majority vote",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		ModelLoads: factory.NewCounter(prometheus.CounterOpts{
			Name: "model_loads_total",
			Help: "Total number of model artifact loads",
		}),
		LoadedModels: factory.NewGauge(prometheus.GaugeOpts{
			Name: "loaded_models",
			Help: "Number of models currently cached in memory",
		}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "prediction_cache_hits_total",
			Help: "Total number of prediction cache hits",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "prediction_cache_misses_total",
			Help: "Total number of prediction cache misses",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors encountered",
		}),
	}
}
