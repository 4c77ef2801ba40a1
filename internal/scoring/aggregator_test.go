package scoring

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-cohort/internal/domain"
)

func twoCriteriaStep() domain.EvaluationStep {
	return domain.EvaluationStep{
		ID:         "step-1",
		StepNumber: 1,
		Criteria: []domain.Criterion{
			{ID: "team", Name: "Team", Weight: 1.5},
			{ID: "market", Name: "Market", Weight: 1.0},
		},
	}
}

func fiveCriteriaStep() domain.EvaluationStep {
	return domain.EvaluationStep{
		ID:         "step-2",
		StepNumber: 2,
		Criteria: []domain.Criterion{
			{ID: "a", Name: "A", Weight: 0.5},
			{ID: "b", Name: "B", Weight: 1},
			{ID: "c", Name: "C", Weight: 2},
			{ID: "d", Name: "D", Weight: 3},
			{ID: "e", Name: "E", Weight: 5},
		},
	}
}

func allScores(step domain.EvaluationStep, v float64) map[string]float64 {
	out := make(map[string]float64, len(step.Criteria))
	for _, c := range step.Criteria {
		out[c.ID] = v
	}
	return out
}

// TestComputeTotals_NormalizationInvariant verifies that a perfect score
// normalizes to the maximum regardless of criteria count and weights.
func TestComputeTotals_NormalizationInvariant(t *testing.T) {
	for _, step := range []domain.EvaluationStep{twoCriteriaStep(), fiveCriteriaStep()} {
		t.Run(step.ID, func(t *testing.T) {
			totals, err := ComputeTotals(step, allScores(step, 10), 10)
			require.NoError(t, err)
			assert.InDelta(t, 10.0, totals.Normalized, 1e-9)
			assert.InDelta(t, 10*step.TotalWeight(), totals.Weighted, 1e-9)
			assert.Equal(t, 10.0, domain.Round2(totals.Normalized))
		})
	}
}

func TestComputeTotals(t *testing.T) {
	tests := []struct {
		name           string
		step           domain.EvaluationStep
		scores         map[string]float64
		maxScore       float64
		wantWeighted   float64
		wantNormalized float64
		wantErr        error
	}{
		{
			name: "weighted mix",
			step: domain.EvaluationStep{Criteria: []domain.Criterion{
				{ID: "a", Weight: 2}, {ID: "b", Weight: 1},
			}},
			scores:         map[string]float64{"a": 8, "b": 5},
			maxScore:       10,
			wantWeighted:   21,
			wantNormalized: 7,
		},
		{
			name: "unscored criteria are left out of the weight total",
			step: domain.EvaluationStep{Criteria: []domain.Criterion{
				{ID: "a", Weight: 2}, {ID: "b", Weight: 1},
			}},
			scores:         map[string]float64{"a": 6},
			maxScore:       10,
			wantWeighted:   12,
			wantNormalized: 6,
		},
		{
			name:     "no criteria",
			step:     domain.EvaluationStep{},
			scores:   map[string]float64{"a": 6},
			maxScore: 10,
			wantErr:  ErrNoCriteria,
		},
		{
			name:     "nothing scored",
			step:     twoCriteriaStep(),
			scores:   map[string]float64{},
			maxScore: 10,
			wantErr:  ErrNonPositiveWeight,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			totals, err := ComputeTotals(tt.step, tt.scores, tt.maxScore)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.wantWeighted, totals.Weighted, 1e-9)
			assert.InDelta(t, tt.wantNormalized, totals.Normalized, 1e-9)
		})
	}
}

func TestValidateScores(t *testing.T) {
	step := twoCriteriaStep()
	settings := domain.DefaultEvaluationSettings()

	t.Run("complete and in range", func(t *testing.T) {
		assert.NoError(t, ValidateScores(step, map[string]float64{"team": 1, "market": 10}, settings))
	})

	t.Run("out of range", func(t *testing.T) {
		err := ValidateScores(step, map[string]float64{"team": 11, "market": 5}, settings)
		assert.ErrorIs(t, err, domain.ErrInvalidScore)
		assert.Equal(t, domain.ReasonScoreOutOfRange, domain.ReasonOf(err))

		err = ValidateScores(step, map[string]float64{"team": 0, "market": 5}, settings)
		assert.ErrorIs(t, err, domain.ErrInvalidScore)
	})

	t.Run("missing and unknown criteria", func(t *testing.T) {
		err := ValidateScores(step, map[string]float64{"team": 5, "vision": 5}, settings)
		var verr *domain.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Len(t, verr.Errors, 2)
	})

	t.Run("step without criteria", func(t *testing.T) {
		assert.ErrorIs(t, ValidateScores(domain.EvaluationStep{}, nil, settings), ErrNoCriteria)
	})
}

func TestAverageScores(t *testing.T) {
	step := domain.EvaluationStep{ID: "s1", Criteria: []domain.Criterion{{ID: "overall", Weight: 1}}}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	record := func(evaluator string, v float64, at time.Time) domain.ScoreRecord {
		return domain.ScoreRecord{
			SubmissionID: "sub",
			StepID:       "s1",
			EvaluatorID:  evaluator,
			Scores:       map[string]float64{"overall": v},
			UpdatedAt:    at,
		}
	}

	t.Run("no records", func(t *testing.T) {
		avg := AverageScores(step, nil, 10)
		assert.Equal(t, 0, avg.EvaluatorCount)
		assert.Nil(t, avg.Value)
	})

	t.Run("mean of normalized totals", func(t *testing.T) {
		avg := AverageScores(step, []domain.ScoreRecord{
			record("e1", 8, now), record("e2", 9, now), record("e3", 8.5, now),
		}, 10)
		require.NotNil(t, avg.Value)
		assert.Equal(t, 3, avg.EvaluatorCount)
		assert.InDelta(t, 8.5, *avg.Value, 1e-9)
	})

	t.Run("latest record per evaluator wins", func(t *testing.T) {
		avg := AverageScores(step, []domain.ScoreRecord{
			record("e1", 2, now), record("e1", 9, now.Add(time.Minute)), record("e2", 7, now),
		}, 10)
		require.NotNil(t, avg.Value)
		assert.Equal(t, 2, avg.EvaluatorCount)
		assert.InDelta(t, 8.0, *avg.Value, 1e-9)
	})

	t.Run("records from another step are ignored", func(t *testing.T) {
		other := record("e9", 1, now)
		other.StepID = "s2"
		avg := AverageScores(step, []domain.ScoreRecord{record("e1", 6, now), other}, 10)
		assert.Equal(t, 1, avg.EvaluatorCount)
		assert.InDelta(t, 6.0, *avg.Value, 1e-9)
	})

	t.Run("full precision is retained", func(t *testing.T) {
		avg := AverageScores(step, []domain.ScoreRecord{
			record("e1", 7, now), record("e2", 7, now), record("e3", 8, now),
		}, 10)
		require.NotNil(t, avg.Value)
		assert.InDelta(t, 22.0/3, *avg.Value, 1e-12)
		assert.Equal(t, 7.33, domain.Round2(*avg.Value))
	})
}
