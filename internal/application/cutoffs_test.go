package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-cohort/internal/domain"
	"github.com/ahrav/go-cohort/internal/payload"
	"github.com/ahrav/go-cohort/internal/ports"
)

func TestCutoffsFor(t *testing.T) {
	defaults := DefaultConfig().Defaults

	tests := []struct {
		name     string
		settings domain.EvaluationSettings
		want     domain.EvaluationSettings
	}{
		{
			name:     "empty takes every default",
			settings: domain.EvaluationSettings{},
			want:     defaults,
		},
		{
			name:     "quorum only",
			settings: domain.EvaluationSettings{RequiredEvaluatorPercentage: 75},
			want:     domain.EvaluationSettings{RequiredEvaluatorPercentage: 75, MinScore: 1, MaxScore: 10, AdmitPolicy: domain.AdmitRequirePass},
		},
		{
			name:     "range only",
			settings: domain.EvaluationSettings{MinScore: 0, MaxScore: 5},
			want:     domain.EvaluationSettings{RequiredEvaluatorPercentage: 100, MinScore: 0, MaxScore: 5, AdmitPolicy: domain.AdmitRequirePass},
		},
		{
			name:     "min without max",
			settings: domain.EvaluationSettings{MinScore: 2},
			want:     domain.EvaluationSettings{RequiredEvaluatorPercentage: 100, MinScore: 2, MaxScore: 10, AdmitPolicy: domain.AdmitRequirePass},
		},
		{
			name:     "min above max falls back to default min",
			settings: domain.EvaluationSettings{RequiredEvaluatorPercentage: 50, MinScore: 20},
			want:     domain.EvaluationSettings{RequiredEvaluatorPercentage: 50, MinScore: 1, MaxScore: 10, AdmitPolicy: domain.AdmitRequirePass},
		},
		{
			name:     "complete settings are kept",
			settings: domain.EvaluationSettings{RequiredEvaluatorPercentage: 60, MinScore: 0, MaxScore: 100, AdmitPolicy: domain.AdmitFinalStep},
			want:     domain.EvaluationSettings{RequiredEvaluatorPercentage: 60, MinScore: 0, MaxScore: 100, AdmitPolicy: domain.AdmitFinalStep},
		},
	}

	eng, err := NewEngine(nopStore{})
	require.NoError(t, err)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := eng.cutoffsFor(domain.Application{Cutoffs: domain.CutoffConfiguration{Settings: tt.settings}})
			assert.Equal(t, tt.want, got.Settings)
		})
	}
}

// nopStore satisfies ports.Store for tests that never open a transaction.
type nopStore struct{}

func (nopStore) WithTx(context.Context, func(context.Context, ports.Tx) error) error { return nil }

func TestSubmitScore_PartialStoredSettings(t *testing.T) {
	h := newHarness(t)

	// Decoded the way the postgres store reads rows: absent settings stay zero.
	cutoffs, err := payload.Cutoffs([]byte(`{"step1":7,"settings":{"requiredEvaluatorPercentage":75}}`), domain.EvaluationSettings{})
	require.NoError(t, err)
	require.Zero(t, cutoffs.Settings.MaxScore)

	seed(t, h.store, func(ctx context.Context, tx ports.Tx) error {
		if err := tx.CreateApplication(ctx, domain.Application{ID: "app-2", Name: "Winter Cohort", Cutoffs: cutoffs}); err != nil {
			return err
		}
		if err := tx.AssignEvaluators(ctx, "app-2", 1, []string{"j1"}); err != nil {
			return err
		}
		return tx.CreateSubmission(ctx, domain.Submission{
			ID: "sub-w", ApplicationID: "app-2", Status: domain.StatusSubmitted, CurrentStep: 1,
		})
	})
	steps, err := h.eng.SetupSteps(context.Background(), admin, "app-2", screeningStep(), interviewStep())
	require.NoError(t, err)

	rec, err := h.eng.SubmitScore(context.Background(), judge("j1"), ScoreInput{
		SubmissionID: "sub-w",
		StepID:       steps.Step1,
		Scores:       map[string]float64{"team": 8, "market": 8},
	})
	require.NoError(t, err)
	assert.InDelta(t, 8.0, rec.NormalizedTotal, 1e-9)

	agg, err := h.eng.Aggregate(context.Background(), "sub-w", steps.Step1)
	require.NoError(t, err)
	assert.Equal(t, domain.AggregatePassed, agg.Status)

	_, err = h.eng.SubmitScore(context.Background(), judge("j1"), ScoreInput{
		SubmissionID: "sub-w",
		StepID:       steps.Step1,
		Scores:       map[string]float64{"team": 11, "market": 8},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidScore)
}
