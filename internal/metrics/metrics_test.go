package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveEvaluation(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveEvaluation("euclidean", "ok", time.Microsecond)
	m.ObserveEvaluation("euclidean", "ok", time.Microsecond)
	m.ObserveEvaluation("cosine", "zero_vector", time.Microsecond)
	m.ObserveBatch()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Evaluations.WithLabelValues("euclidean", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Evaluations.WithLabelValues("cosine", "zero_vector")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Batches))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.ElementsMatch(t, []string{
		"distscore_evaluations_total",
		"distscore_evaluation_seconds",
		"distscore_batches_total",
	}, names)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveEvaluation("euclidean", "ok", time.Second)
		m.ObserveBatch()
	})
}

func TestNew_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
