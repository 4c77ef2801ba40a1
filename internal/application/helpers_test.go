package application

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-cohort/infrastructure/store/memory"
	"github.com/ahrav/go-cohort/internal/domain"
	"github.com/ahrav/go-cohort/internal/ports"
)

var (
	testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	admin = domain.Grant("admin",
		domain.CapabilityAdvance, domain.CapabilityAdmit, domain.CapabilityReject, domain.CapabilityConfigure)
)

func judge(id string) domain.Authorization { return domain.Grant(id, domain.CapabilityScore) }

// recordingMetrics captures counters and gauges by name.
type recordingMetrics struct {
	mu       sync.Mutex
	counters map[string]float64
	gauges   map[string]float64
	hist     map[string][]float64
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		counters: make(map[string]float64),
		gauges:   make(map[string]float64),
		hist:     make(map[string][]float64),
	}
}

func (m *recordingMetrics) RecordLatency(string, time.Duration, map[string]string) {}

func (m *recordingMetrics) RecordCounter(name string, v float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name] += v
	if r, ok := labels["reason"]; ok && r != "" {
		m.counters[name+"/"+r] += v
	}
}

func (m *recordingMetrics) RecordGauge(name string, v float64, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[name] = v
}

func (m *recordingMetrics) RecordHistogram(name string, v float64, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hist[name] = append(m.hist[name], v)
}

func (m *recordingMetrics) counter(name string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

// sequentialIDs returns a generator of "id-1", "id-2", ...
func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

type harness struct {
	eng     *Engine
	store   *memory.Store
	metrics *recordingMetrics
	steps   StepIDs
}

// newHarness builds an engine over a fresh memory store holding one
// application "app-1" with cutoffs of 7 at both steps and a 75% quorum. Step
// 1 has four eligible judges and step 2 has two.
func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()

	store := memory.New()
	metrics := newRecordingMetrics()
	base := []Option{
		WithMetrics(metrics),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() time.Time { return testNow }),
		WithIDGenerator(sequentialIDs()),
	}
	eng, err := NewEngine(store, append(base, opts...)...)
	require.NoError(t, err)

	settings := domain.EvaluationSettings{RequiredEvaluatorPercentage: 75, MinScore: 1, MaxScore: 10}
	seed(t, store, func(ctx context.Context, tx ports.Tx) error {
		if err := tx.CreateApplication(ctx, domain.Application{
			ID:   "app-1",
			Name: "Spring Cohort",
			Cutoffs: domain.CutoffConfiguration{
				Cutoffs:  map[string]float64{"step1": 7, "step2": 7},
				Settings: settings,
			},
		}); err != nil {
			return err
		}
		if err := tx.AssignEvaluators(ctx, "app-1", 1, []string{"j1", "j2", "j3", "j4"}); err != nil {
			return err
		}
		return tx.AssignEvaluators(ctx, "app-1", 2, []string{"j1", "j2"})
	})

	h := &harness{eng: eng, store: store, metrics: metrics}
	h.steps, err = eng.SetupSteps(context.Background(), admin, "app-1", screeningStep(), interviewStep())
	require.NoError(t, err)
	return h
}

func screeningStep() StepInput {
	return StepInput{
		Name: "Application Review",
		Type: domain.StepTypeInitialReview,
		Criteria: []domain.Criterion{
			{ID: "team", Name: "Team", Weight: 1.5},
			{ID: "market", Name: "Market", Weight: 1},
		},
	}
}

func interviewStep() StepInput {
	return StepInput{
		Name:     "Partner Interview",
		Type:     domain.StepTypeInterview,
		Criteria: []domain.Criterion{{ID: "pitch", Name: "Pitch", Weight: 1}},
	}
}

func seed(t *testing.T, store ports.Store, fn func(ctx context.Context, tx ports.Tx) error) {
	t.Helper()
	require.NoError(t, store.WithTx(context.Background(), fn))
}

// addSubmission stores a submission in the given status at the given step.
func (h *harness) addSubmission(t *testing.T, id string, status domain.SubmissionStatus, step int) {
	t.Helper()
	seed(t, h.store, func(ctx context.Context, tx ports.Tx) error {
		return tx.CreateSubmission(ctx, domain.Submission{
			ID:            id,
			ApplicationID: "app-1",
			Applicant:     domain.Applicant{Name: "Applicant " + id},
			Status:        status,
			CurrentStep:   step,
		})
	})
}

// scoreStep1 records a judge's step-1 scores with the same raw value on
// both criteria, which makes the normalized total equal to that value.
func (h *harness) scoreStep1(t *testing.T, judgeID, subID string, raw float64) {
	t.Helper()
	_, err := h.eng.SubmitScore(context.Background(), judge(judgeID), ScoreInput{
		SubmissionID: subID,
		StepID:       h.steps.Step1,
		Scores:       map[string]float64{"team": raw, "market": raw},
	})
	require.NoError(t, err)
}

func (h *harness) scoreStep2(t *testing.T, judgeID, subID string, raw float64) {
	t.Helper()
	_, err := h.eng.SubmitScore(context.Background(), judge(judgeID), ScoreInput{
		SubmissionID: subID,
		StepID:       h.steps.Step2,
		Scores:       map[string]float64{"pitch": raw},
	})
	require.NoError(t, err)
}

func (h *harness) submission(t *testing.T, id string) domain.Submission {
	t.Helper()
	var sub domain.Submission
	seed(t, h.store, func(ctx context.Context, tx ports.Tx) error {
		var err error
		sub, err = tx.GetSubmission(ctx, id)
		return err
	})
	return sub
}
