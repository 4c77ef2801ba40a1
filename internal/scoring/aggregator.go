package scoring

import (
	"fmt"
	"math"
	"sort"

	"github.com/ahrav/go-cohort/internal/domain"
)

// Totals holds one evaluator's weighted and normalized totals.
type Totals struct {
	// Weighted is Σ raw × weight over the scored criteria.
	Weighted float64

	// Normalized is Weighted / (Σ weight × maxScore) × maxScore, which puts
	// the total on the evaluator input scale regardless of how many
	// criteria exist or how they are weighted.
	Normalized float64
}

// ValidateScores checks one evaluator's raw score map against a step. Every
// criterion of the step must be scored, no unknown criterion may appear,
// and every value must lie in [MinScore, MaxScore].
func ValidateScores(step domain.EvaluationStep, scores map[string]float64, settings domain.EvaluationSettings) error {
	if len(step.Criteria) == 0 {
		return ErrNoCriteria
	}

	verr := domain.NewValidationError("ScoreRecord")
	for id := range scores {
		if _, ok := step.Criterion(id); !ok {
			verr.AddErrorf("%v: %s", ErrUnknownCriterion, id)
		}
	}
	for _, c := range step.Criteria {
		raw, ok := scores[c.ID]
		if !ok {
			verr.AddErrorf("%v: %s", ErrMissingCriterion, c.ID)
			continue
		}
		if math.IsNaN(raw) || math.IsInf(raw, 0) || raw < settings.MinScore || raw > settings.MaxScore {
			return fmt.Errorf("%w: criterion %s value %v outside [%v, %v]",
				domain.ErrInvalidScore, c.ID, raw, settings.MinScore, settings.MaxScore)
		}
	}
	return verr.ErrOrNil()
}

// ComputeTotals computes the weighted and normalized totals of one
// evaluator's raw scores against the step's criteria. Criteria the
// evaluator did not score contribute to neither the sum nor the weight
// total, so a record written before a criterion was added still
// normalizes onto the same scale.
func ComputeTotals(step domain.EvaluationStep, scores map[string]float64, maxScore float64) (Totals, error) {
	if len(step.Criteria) == 0 {
		return Totals{}, ErrNoCriteria
	}

	var weighted, weights float64
	for _, c := range step.Criteria {
		raw, ok := scores[c.ID]
		if !ok {
			continue
		}
		weighted += raw * c.Weight
		weights += c.Weight
	}
	if weights <= 0 {
		return Totals{}, ErrNonPositiveWeight
	}

	return Totals{
		Weighted:   weighted,
		Normalized: weighted / (weights * maxScore) * maxScore,
	}, nil
}

// Average is the mean of each evaluator's normalized total.
type Average struct {
	// EvaluatorCount is the number of distinct evaluators included.
	EvaluatorCount int

	// Value is the mean at full precision, nil when EvaluatorCount is 0.
	Value *float64
}

// AverageScores reduces the score records of one (submission, step) pair to
// an arithmetic mean of normalized totals. When the same evaluator appears
// twice the most recently updated record wins, matching the store's
// last-write-wins upsert. Records that cannot be normalized against the
// step are skipped.
func AverageScores(step domain.EvaluationStep, records []domain.ScoreRecord, maxScore float64) Average {
	latest := make(map[string]domain.ScoreRecord, len(records))
	for _, r := range records {
		if r.StepID != "" && step.ID != "" && r.StepID != step.ID {
			continue
		}
		prev, ok := latest[r.EvaluatorID]
		if !ok || r.UpdatedAt.After(prev.UpdatedAt) {
			latest[r.EvaluatorID] = r
		}
	}

	// Sum in evaluator order so the result does not depend on map order.
	evaluators := make([]string, 0, len(latest))
	for id := range latest {
		evaluators = append(evaluators, id)
	}
	sort.Strings(evaluators)

	var sum float64
	var count int
	for _, id := range evaluators {
		totals, err := ComputeTotals(step, latest[id].Scores, maxScore)
		if err != nil {
			continue
		}
		sum += totals.Normalized
		count++
	}

	if count == 0 {
		return Average{}
	}
	mean := sum / float64(count)
	return Average{EvaluatorCount: count, Value: &mean}
}
