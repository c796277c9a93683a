// Package metrics exposes Prometheus instrumentation for distance evaluations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors for scoring. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Evaluations counts evaluations by distance kind and result code
	Evaluations *prometheus.CounterVec

	// EvaluationSeconds observes evaluation latency by distance kind
	EvaluationSeconds *prometheus.HistogramVec

	// Batches counts completed batch runs
	Batches prometheus.Counter
}

// New registers the scoring collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Evaluations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "distscore_evaluations_total",
				Help: "Total number of distance evaluations by kind and result code",
			},
			[]string{"kind", "code"},
		),
		EvaluationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "distscore_evaluation_seconds",
				Help:    "Latency of a single distance evaluation",
				Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
			},
			[]string{"kind"},
		),
		Batches: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "distscore_batches_total",
				Help: "Total number of completed batch scoring runs",
			},
		),
	}
}

// ObserveEvaluation records one evaluation outcome.
func (m *Metrics) ObserveEvaluation(kind, code string, d time.Duration) {
	if m == nil {
		return
	}
	m.Evaluations.WithLabelValues(kind, code).Inc()
	m.EvaluationSeconds.WithLabelValues(kind).Observe(d.Seconds())
}

// ObserveBatch records a finished batch.
func (m *Metrics) ObserveBatch() {
	if m == nil {
		return
	}
	m.Batches.Inc()
}
