package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/go-cohort/internal/domain"
)

type fakeMetrics struct {
	mu       sync.Mutex
	latency  map[string]time.Duration
	counters map[string]map[string]string
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{
		latency:  make(map[string]time.Duration),
		counters: make(map[string]map[string]string),
	}
}

func (f *fakeMetrics) RecordLatency(op string, d time.Duration, _ map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latency[op] = d
}

func (f *fakeMetrics) RecordCounter(metric string, _ float64, labels map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters[metric] = labels
}

func (f *fakeMetrics) RecordGauge(string, float64, map[string]string)     {}
func (f *fakeMetrics) RecordHistogram(string, float64, map[string]string) {}

func TestOTelBatchObserver(t *testing.T) {
	tests := []struct {
		name        string
		result      func() domain.BatchResult
		err         error
		wantStatus  string
		wantPartial string
	}{
		{
			name: "all transitioned",
			result: func() domain.BatchResult {
				r := domain.NewBatchResult(domain.TransitionAdvance)
				r.Succeed("a")
				return r
			},
			wantStatus:  "ok",
			wantPartial: "false",
		},
		{
			name: "partial",
			result: func() domain.BatchResult {
				r := domain.NewBatchResult(domain.TransitionAdvance)
				r.Succeed("a")
				r.Skip("b", domain.ReasonBelowCutoff, "")
				return r
			},
			wantStatus:  "ok",
			wantPartial: "true",
		},
		{
			name: "everything skipped",
			result: func() domain.BatchResult {
				r := domain.NewBatchResult(domain.TransitionAdvance)
				r.Skip("b", domain.ReasonQuorumUnmet, "")
				return r
			},
			wantStatus:  "all_skipped",
			wantPartial: "true",
		},
		{
			name:        "aborted",
			result:      func() domain.BatchResult { return domain.NewBatchResult(domain.TransitionAdvance) },
			err:         errors.New("store unavailable"),
			wantStatus:  "error",
			wantPartial: "false",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics := newFakeMetrics()
			obs := NewOTelBatchObserver(metrics, noop.NewTracerProvider().Tracer("test"))

			ctx := obs.PreBatch(context.Background(), domain.TransitionAdvance, "app-1", 2)
			assert.NotNil(t, trace.SpanFromContext(ctx))

			obs.PostBatch(ctx, tt.result(), 40*time.Millisecond, tt.err)

			assert.Equal(t, 40*time.Millisecond, metrics.latency["batch_advance"])
			labels := metrics.counters["batch_runs_total"]
			assert.Equal(t, tt.wantStatus, labels["status"])
			assert.Equal(t, tt.wantPartial, labels["partial"])
			assert.Equal(t, "advance", labels["transition"])
		})
	}
}

func TestOTelBatchObserver_NilMetrics(t *testing.T) {
	obs := NewOTelBatchObserver(nil, nil)
	ctx := obs.PreBatch(context.Background(), domain.TransitionAdmit, "app-1", 1)

	assert.NotPanics(t, func() {
		obs.PostBatch(ctx, domain.NewBatchResult(domain.TransitionAdmit), time.Millisecond, nil)
	})
}
