package ports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ahrav/go-cohort/internal/domain"
)

// mockMetricsCollector implements MetricsCollector interface
type mockMetricsCollector struct {
	latencies  []time.Duration
	counters   map[string]float64
	gauges     map[string]float64
	histograms map[string][]float64
}

// newMockMetricsCollector creates a new mock metrics collector for testing.
func newMockMetricsCollector() *mockMetricsCollector {
	return &mockMetricsCollector{
		latencies:  []time.Duration{},
		counters:   make(map[string]float64),
		gauges:     make(map[string]float64),
		histograms: make(map[string][]float64),
	}
}

func (m *mockMetricsCollector) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	m.latencies = append(m.latencies, duration)
}

func (m *mockMetricsCollector) RecordCounter(metric string, value float64, labels map[string]string) {
	m.counters[metric] += value
}

func (m *mockMetricsCollector) RecordGauge(metric string, value float64, labels map[string]string) {
	m.gauges[metric] = value
}

func (m *mockMetricsCollector) RecordHistogram(metric string, value float64, labels map[string]string) {
	m.histograms[metric] = append(m.histograms[metric], value)
}

type ctxKey struct{}

// mockBatchObserver implements BatchObserver interface
type mockBatchObserver struct {
	started  []domain.Transition
	finished []domain.BatchResult
	sawCtx   bool
}

func (m *mockBatchObserver) PreBatch(ctx context.Context, t domain.Transition, _ string, _ int) context.Context {
	m.started = append(m.started, t)
	return context.WithValue(ctx, ctxKey{}, t)
}

func (m *mockBatchObserver) PostBatch(ctx context.Context, result domain.BatchResult, _ time.Duration, _ error) {
	m.sawCtx = ctx.Value(ctxKey{}) == result.Transition
	m.finished = append(m.finished, result)
}

func TestInterfaces_Implementation(t *testing.T) {
	var _ MetricsCollector = (*mockMetricsCollector)(nil)
	var _ BatchObserver = (*mockBatchObserver)(nil)
}

func TestMetricsCollector_Recording(t *testing.T) {
	metrics := newMockMetricsCollector()
	labels := map[string]string{"transition": "advance"}

	metrics.RecordLatency("advance", 100*time.Millisecond, labels)
	assert.Len(t, metrics.latencies, 1, "RecordLatency() should record one duration")
	assert.Equal(t, 100*time.Millisecond, metrics.latencies[0], "RecordLatency() duration mismatch")

	metrics.RecordCounter("transitions", 1, labels)
	metrics.RecordCounter("transitions", 2, labels)
	assert.Equal(t, float64(3), metrics.counters["transitions"], "RecordCounter() sum mismatch")

	metrics.RecordGauge("scoreboard_size", 10, labels)
	metrics.RecordGauge("scoreboard_size", 5, labels)
	assert.Equal(t, float64(5), metrics.gauges["scoreboard_size"], "RecordGauge() value mismatch")

	metrics.RecordHistogram("normalized_score", 7.5, labels)
	metrics.RecordHistogram("normalized_score", 9, labels)
	assert.Len(t, metrics.histograms["normalized_score"], 2, "RecordHistogram() should record two values")
}

func TestBatchObserver_ContextFlowsThrough(t *testing.T) {
	obs := &mockBatchObserver{}
	ctx := obs.PreBatch(context.Background(), domain.TransitionAdmit, "app-1", 3)

	result := domain.NewBatchResult(domain.TransitionAdmit)
	obs.PostBatch(ctx, result, time.Millisecond, nil)

	assert.Equal(t, []domain.Transition{domain.TransitionAdmit}, obs.started)
	assert.Len(t, obs.finished, 1)
	assert.True(t, obs.sawCtx, "PostBatch should receive the context returned by PreBatch")
}
