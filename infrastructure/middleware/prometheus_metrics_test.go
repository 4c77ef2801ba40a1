package middleware

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) (*PrometheusMetrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewPrometheusMetrics(reg), reg
}

func TestPrometheusMetrics_Counters(t *testing.T) {
	pm, _ := newTestMetrics(t)

	pm.RecordCounter("scores_submitted_total", 1, map[string]string{"kind": "step", "step": "1"})
	pm.RecordCounter("scores_submitted_total", 1, map[string]string{"kind": "step", "step": "1"})
	pm.RecordCounter("batch_items_total", 1, map[string]string{"transition": "advance", "outcome": "skipped", "reason": "below_cutoff"})
	pm.RecordCounter("batch_items_total", 1, map[string]string{"transition": "advance", "outcome": "transitioned"})
	pm.RecordCounter("tx_retries_total", 1, map[string]string{"operation": "Advance"})
	pm.RecordCounter("batch_runs_total", 1, map[string]string{"transition": "admit"})

	assert.Equal(t, 2.0, testutil.ToFloat64(pm.scoresSubmitted.WithLabelValues("step", "1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.batchItems.WithLabelValues("advance", "skipped", "below_cutoff")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.batchItems.WithLabelValues("advance", "transitioned", "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.txRetries.WithLabelValues("Advance")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.operationCounter.WithLabelValues("batch_runs_total", "success")))
}

func TestPrometheusMetrics_MissingLabels(t *testing.T) {
	pm, _ := newTestMetrics(t)

	pm.RecordCounter("scores_submitted_total", 1, nil)
	pm.RecordGauge("scoreboard_size", 4, map[string]string{})

	assert.Equal(t, 1.0, testutil.ToFloat64(pm.scoresSubmitted.WithLabelValues("unknown", "unknown")))
	assert.Equal(t, 4.0, testutil.ToFloat64(pm.scoreboardSize.WithLabelValues("unknown")))
}

func TestPrometheusMetrics_GaugesAndHistograms(t *testing.T) {
	pm, reg := newTestMetrics(t)

	pm.RecordGauge("scoreboard_size", 12, map[string]string{"step": "step1"})
	pm.RecordGauge("scoreboard_size", 9, map[string]string{"step": "step1"})
	pm.RecordGauge("open_events", 2, nil)
	pm.RecordHistogram("normalized_score", 7.5, map[string]string{"kind": "step", "step": "2"})
	pm.RecordHistogram("demo_day_percentage", 73.3, nil)
	pm.RecordLatency("Advance", 25*time.Millisecond, map[string]string{"operation": "Advance"})

	assert.Equal(t, 9.0, testutil.ToFloat64(pm.scoreboardSize.WithLabelValues("step1")))
	assert.Equal(t, 2.0, testutil.ToFloat64(pm.systemGauges.WithLabelValues("open_events")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"cohort_normalized_score",
		"cohort_values",
		"cohort_operation_duration_seconds",
		"cohort_scoreboard_size",
		"cohort_system_state",
	} {
		assert.True(t, names[want], "expected %s to be registered", want)
	}

	count, err := testutil.GatherAndCount(reg, "cohort_operation_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNewPrometheusMetrics_SeparateRegistries(t *testing.T) {
	// Each registry owns its own collectors, so two instances never collide.
	assert.NotPanics(t, func() {
		_, _ = newTestMetrics(t)
		_, _ = newTestMetrics(t)
	})

	reg := prometheus.NewRegistry()
	NewPrometheusMetrics(reg)
	assert.Panics(t, func() { NewPrometheusMetrics(reg) })
}
