package domain

import "math"

// AggregateStatus is the verdict for a (submission, step) pair.
type AggregateStatus string

// Aggregate statuses.
const (
	AggregatePassed    AggregateStatus = "PASSED"
	AggregateFailed    AggregateStatus = "FAILED"
	AggregatePending   AggregateStatus = "PENDING"
	AggregateNotScored AggregateStatus = "NOT_SCORED"
)

// AggregateResult is the derived evaluation outcome for a submission at a
// step. It is computed from live score records and never persisted as a
// first-class entity, except as the reason attached to a Decision.
type AggregateResult struct {
	SubmissionID string `json:"submission_id"`
	StepID       string `json:"step_id"`
	StepNumber   int    `json:"step_number"`

	// EvaluatorCount is the number of distinct evaluators who scored.
	EvaluatorCount int `json:"evaluator_count"`

	// TotalJudges is the eligible evaluator pool size for the step.
	TotalJudges int `json:"total_judges"`

	// AverageScore is the mean normalized total at full precision. It is
	// nil when nobody has scored.
	AverageScore *float64 `json:"average_score"`

	// Cutoff is the cutoff score the average was compared against.
	Cutoff float64 `json:"cutoff"`

	// EvaluatorPercentage is the clamped share of the pool that scored.
	EvaluatorPercentage float64 `json:"evaluator_percentage"`

	MeetsEvaluatorRequirement bool            `json:"meets_evaluator_requirement"`
	MeetsCutoff               bool            `json:"meets_cutoff"`
	Status                    AggregateStatus `json:"status"`

	// Valid is false when the aggregate cannot be trusted at all, e.g. no
	// judge pool is configured.
	Valid bool `json:"valid"`

	// InvalidReason says why an aggregate is not Valid.
	InvalidReason Reason `json:"invalid_reason,omitempty"`

	// ValidityMessage explains an invalid or pending aggregate.
	ValidityMessage string `json:"validity_message,omitempty"`
}

// DisplayAverage returns the average rounded to two decimal places, and
// false when the submission has not been scored.
func (a AggregateResult) DisplayAverage() (float64, bool) {
	if a.AverageScore == nil {
		return 0, false
	}
	return Round2(*a.AverageScore), true
}

// Reason returns the machine-readable reason a non-PASSED aggregate blocks
// a transition that requires PASSED.
func (a AggregateResult) Reason() Reason {
	switch a.Status {
	case AggregatePassed:
		return ReasonNone
	case AggregateNotScored:
		return ReasonNotScored
	case AggregateFailed:
		return ReasonBelowCutoff
	}
	if !a.Valid {
		if a.InvalidReason != ReasonNone {
			return a.InvalidReason
		}
		return ReasonNoJudgePool
	}
	return ReasonQuorumUnmet
}

// Round2 rounds a score to two decimal places for display.
func Round2(v float64) float64 { return math.Round(v*100) / 100 }
