package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-cohort/internal/domain"
	"github.com/ahrav/go-cohort/internal/ports"
)

func seed(t *testing.T, s *Store) {
	t.Helper()
	err := s.WithTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		require.NoError(t, tx.CreateApplication(ctx, domain.Application{
			ID:   "app-1",
			Name: "Spring Cohort",
			Cutoffs: domain.CutoffConfiguration{
				Cutoffs:  map[string]float64{"step1": 7},
				Settings: domain.DefaultEvaluationSettings(),
			},
		}))
		require.NoError(t, tx.CreateSubmission(ctx, domain.Submission{
			ID: "sub-1", ApplicationID: "app-1", Status: domain.StatusSubmitted, CurrentStep: 1,
		}))
		return tx.CreateSteps(ctx, []domain.EvaluationStep{
			{ID: "s2", ApplicationID: "app-1", StepNumber: 2, Criteria: []domain.Criterion{{ID: "z", Name: "Z", Weight: 1}}},
			{ID: "s1", ApplicationID: "app-1", StepNumber: 1, Criteria: []domain.Criterion{
				{ID: "b", Name: "B", Weight: 2}, {ID: "a", Name: "A", Weight: 1},
			}},
		})
	})
	require.NoError(t, err)
}

func TestStore_RollbackOnError(t *testing.T) {
	s := New()
	seed(t, s)
	boom := errors.New("boom")

	err := s.WithTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		sub, err := tx.GetSubmission(ctx, "sub-1")
		require.NoError(t, err)
		sub.Status = domain.StatusRejected
		require.NoError(t, tx.UpdateSubmission(ctx, sub))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_ = s.WithTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		sub, err := tx.GetSubmission(ctx, "sub-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusSubmitted, sub.Status, "failed transaction must not commit")
		return nil
	})
}

func TestStore_StepsKeepOrder(t *testing.T) {
	s := New()
	seed(t, s)

	_ = s.WithTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		steps, err := tx.ListSteps(ctx, "app-1")
		require.NoError(t, err)
		require.Len(t, steps, 2)
		assert.Equal(t, 1, steps[0].StepNumber)
		assert.Equal(t, []string{"b", "a"}, []string{steps[0].Criteria[0].ID, steps[0].Criteria[1].ID})

		// Mutating a returned step does not leak into the store.
		steps[0].Criteria[0].Weight = 99
		again, err := tx.GetStep(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, 2.0, again.Criteria[0].Weight)
		return nil
	})
}

func TestStore_UpsertScoreOverwrites(t *testing.T) {
	s := New()
	seed(t, s)
	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_ = s.WithTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		rec, err := tx.UpsertScore(ctx, domain.ScoreRecord{
			ID: "r1", SubmissionID: "sub-1", StepID: "s1", EvaluatorID: "e1",
			Scores: map[string]float64{"a": 5, "b": 5}, CreatedAt: first, UpdatedAt: first,
		})
		require.NoError(t, err)
		assert.Equal(t, "r1", rec.ID)

		rec, err = tx.UpsertScore(ctx, domain.ScoreRecord{
			ID: "r2", SubmissionID: "sub-1", StepID: "s1", EvaluatorID: "e1",
			Scores: map[string]float64{"a": 9, "b": 9}, CreatedAt: first.Add(time.Hour), UpdatedAt: first.Add(time.Hour),
		})
		require.NoError(t, err)
		assert.Equal(t, "r1", rec.ID, "record id is stable across overwrites")
		assert.Equal(t, first, rec.CreatedAt)

		recs, err := tx.ListScores(ctx, "sub-1", "s1")
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, 9.0, recs[0].Scores["a"])
		return nil
	})
}

func TestStore_NotFound(t *testing.T) {
	s := New()
	_ = s.WithTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		_, err := tx.GetSubmission(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = tx.GetStep(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = tx.GetApplication(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = tx.GetDemoDayEvent(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.ErrorIs(t, tx.UpdateSubmission(ctx, domain.Submission{ID: "missing"}), domain.ErrNotFound)

		subs, err := tx.ListSubmissions(ctx, "missing")
		assert.NoError(t, err)
		assert.Empty(t, subs)
		return nil
	})
}

func TestStore_EvaluatorPool(t *testing.T) {
	s := New()
	_ = s.WithTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		require.NoError(t, tx.AssignEvaluators(ctx, "app-1", 1, []string{"e2", "e1", "e2"}))
		n, err := tx.CountEligibleEvaluators(ctx, "app-1", 1)
		require.NoError(t, err)
		assert.Equal(t, 2, n, "duplicates are collapsed")

		n, err = tx.CountEligibleEvaluators(ctx, "app-1", 2)
		require.NoError(t, err)
		assert.Zero(t, n)
		return nil
	})
}

func TestStore_DemoDayScoresByEvent(t *testing.T) {
	s := New()
	_ = s.WithTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		require.NoError(t, tx.CreateDemoDayEvent(ctx, domain.DemoDayEvent{ID: "ev-1"}))
		require.NoError(t, tx.CreateDemoDaySubmission(ctx, domain.DemoDaySubmission{ID: "d1", EventID: "ev-1"}))
		require.NoError(t, tx.CreateDemoDaySubmission(ctx, domain.DemoDaySubmission{ID: "d2", EventID: "ev-2"}))

		_, err := tx.UpsertDemoDayScore(ctx, domain.DemoDayScore{ID: "x", SubmissionID: "d1", JudgeID: "j1", TotalScore: 10})
		require.NoError(t, err)
		again, err := tx.UpsertDemoDayScore(ctx, domain.DemoDayScore{ID: "y", SubmissionID: "d1", JudgeID: "j1", TotalScore: 12})
		require.NoError(t, err)
		assert.Equal(t, "x", again.ID)
		_, err = tx.UpsertDemoDayScore(ctx, domain.DemoDayScore{ID: "z", SubmissionID: "d2", JudgeID: "j1", TotalScore: 30})
		require.NoError(t, err)

		scores, err := tx.ListDemoDayScores(ctx, "ev-1")
		require.NoError(t, err)
		require.Len(t, scores, 1)
		assert.Equal(t, 12.0, scores[0].TotalScore)
		return nil
	})
}

func TestStore_CanceledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.WithTx(ctx, func(context.Context, ports.Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
