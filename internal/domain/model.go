// Package domain contains pure, dependency-free domain models and types
// for the applicant evaluation core.
package domain

import (
	"fmt"
	"time"
)

// StepType classifies what kind of evaluation happens at a step.
type StepType string

// Supported step types.
const (
	StepTypeInitialReview StepType = "INITIAL_REVIEW"
	StepTypeInterview     StepType = "INTERVIEW"
	StepTypeTechnical     StepType = "TECHNICAL_REVIEW"
	StepTypeFinalReview   StepType = "FINAL_REVIEW"
)

// Criterion is a named, weighted dimension of evaluation within a step.
type Criterion struct {
	// ID uniquely identifies the criterion within its step. Score maps are
	// keyed by it.
	ID string `json:"id"`

	// Name is the display label. It must not be empty.
	Name string `json:"name" validate:"required"`

	// Weight scales the raw score for this criterion. Any positive value
	// is accepted; display layers constrain it further.
	Weight float64 `json:"weight" validate:"gt=0"`

	// Order is used for display only.
	Order int `json:"order"`
}

// EvaluationStep is one stage of an application's evaluation pipeline.
type EvaluationStep struct {
	// ID uniquely identifies the step.
	ID string `json:"id"`

	// ApplicationID references the application the step belongs to.
	ApplicationID string `json:"application_id"`

	// StepNumber is 1 or 2. Step numbers for one application are unique
	// and contiguous starting at 1.
	StepNumber int `json:"step_number"`

	// Name is the human-readable step name.
	Name string `json:"name"`

	// Type classifies the step.
	Type StepType `json:"type"`

	// Criteria is the ordered list of scoring criteria.
	Criteria []Criterion `json:"criteria"`

	// IsActive reports whether evaluators may currently score at this step.
	IsActive bool `json:"is_active"`

	// CreatedAt records when the step was set up.
	CreatedAt time.Time `json:"created_at"`
}

// TotalWeight returns the sum of all criterion weights in the step.
func (s EvaluationStep) TotalWeight() float64 {
	var total float64
	for _, c := range s.Criteria {
		total += c.Weight
	}
	return total
}

// Criterion looks up a criterion by id.
func (s EvaluationStep) Criterion(id string) (Criterion, bool) {
	for _, c := range s.Criteria {
		if c.ID == id {
			return c, true
		}
	}
	return Criterion{}, false
}

// StepKey returns the cutoff-configuration key for a step number, e.g.
// "step1".
func StepKey(stepNumber int) string { return fmt.Sprintf("step%d", stepNumber) }

// AdmitPolicy selects the precondition for the Admit transition.
type AdmitPolicy string

const (
	// AdmitRequirePass admits only when the final-step aggregate is PASSED.
	AdmitRequirePass AdmitPolicy = "require_pass"

	// AdmitFinalStep admits any submission that has reached the final step.
	AdmitFinalStep AdmitPolicy = "final_step"
)

// EvaluationSettings holds global evaluation settings for an application.
type EvaluationSettings struct {
	// RequiredEvaluatorPercentage is the quorum threshold in [0, 100].
	RequiredEvaluatorPercentage float64 `json:"required_evaluator_percentage" yaml:"required_evaluator_percentage" validate:"min=0,max=100"`

	// MinScore is the lowest raw score an evaluator may enter.
	MinScore float64 `json:"min_score" yaml:"min_score" validate:"min=0"`

	// MaxScore is the highest raw score an evaluator may enter. It also
	// defines the scale normalized totals are reported on.
	MaxScore float64 `json:"max_score" yaml:"max_score" validate:"gtfield=MinScore"`

	// AdmitPolicy selects the Admit precondition. Empty means
	// AdmitRequirePass.
	AdmitPolicy AdmitPolicy `json:"admit_policy,omitempty" yaml:"admit_policy" validate:"omitempty,oneof=require_pass final_step"`
}

// DefaultEvaluationSettings returns the settings used when an application
// has none: every evaluator must score, on a 1-10 scale.
func DefaultEvaluationSettings() EvaluationSettings {
	return EvaluationSettings{
		RequiredEvaluatorPercentage: 100,
		MinScore:                    1,
		MaxScore:                    10,
		AdmitPolicy:                 AdmitRequirePass,
	}
}

// EffectiveAdmitPolicy returns the configured admit policy, defaulting to
// AdmitRequirePass.
func (s EvaluationSettings) EffectiveAdmitPolicy() AdmitPolicy {
	if s.AdmitPolicy == "" {
		return AdmitRequirePass
	}
	return s.AdmitPolicy
}

// CutoffConfiguration maps step keys ("step1", "step2") to cutoff scores
// and carries the application's evaluation settings.
type CutoffConfiguration struct {
	// Cutoffs maps StepKey values to the minimum passing average.
	Cutoffs map[string]float64 `json:"cutoffs"`

	// Settings holds quorum and score-range settings.
	Settings EvaluationSettings `json:"settings"`
}

// CutoffFor returns the cutoff for a step number and whether one is
// configured.
func (c CutoffConfiguration) CutoffFor(stepNumber int) (float64, bool) {
	v, ok := c.Cutoffs[StepKey(stepNumber)]
	return v, ok
}

// Application is the program intake that submissions and steps belong to.
type Application struct {
	// ID uniquely identifies the application.
	ID string `json:"id"`

	// Name is the program name.
	Name string `json:"name"`

	// Cutoffs holds cutoff scores and evaluation settings.
	Cutoffs CutoffConfiguration `json:"cutoffs"`
}

// SubmissionStatus is the lifecycle status of a submission.
type SubmissionStatus string

// Submission statuses.
const (
	StatusDraft       SubmissionStatus = "DRAFT"
	StatusSubmitted   SubmissionStatus = "SUBMITTED"
	StatusUnderReview SubmissionStatus = "UNDER_REVIEW"
	StatusAccepted    SubmissionStatus = "ACCEPTED"
	StatusRejected    SubmissionStatus = "REJECTED"
	StatusWaitlisted  SubmissionStatus = "WAITLISTED"
)

// IsTerminal reports whether the status accepts no further Advance or
// Admit transitions.
func (s SubmissionStatus) IsTerminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

// Applicant holds identity fields for the person or team applying.
type Applicant struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Company string `json:"company,omitempty"`
}

// Decision records the aggregate that authorized a committed transition.
// The aggregate is the same snapshot read that was checked.
type Decision struct {
	Transition Transition       `json:"transition"`
	ActorID    string           `json:"actor_id"`
	Aggregate  *AggregateResult `json:"aggregate,omitempty"`
	DecidedAt  time.Time        `json:"decided_at"`
}

// Submission is an applicant's entry under evaluation.
type Submission struct {
	// ID uniquely identifies the submission.
	ID string `json:"id"`

	// ApplicationID references the application being applied to.
	ApplicationID string `json:"application_id"`

	// Applicant holds identity fields.
	Applicant Applicant `json:"applicant"`

	// Status is the lifecycle status.
	Status SubmissionStatus `json:"status"`

	// CurrentStep starts at 1 and never decreases.
	CurrentStep int `json:"current_step"`

	// SubmittedAt is set on DRAFT -> SUBMITTED.
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`

	// ReviewedAt is set when a final decision is made.
	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`

	// ReviewNotes holds free-form reviewer notes.
	ReviewNotes string `json:"review_notes,omitempty"`

	// LastDecision records the most recent committed transition.
	LastDecision *Decision `json:"last_decision,omitempty"`
}

// ScoreRecord is one evaluator's scoring of one submission at one step.
// At most one exists per (SubmissionID, StepID, EvaluatorID).
type ScoreRecord struct {
	// ID uniquely identifies the record. It is stable across overwrites.
	ID string `json:"id"`

	SubmissionID string `json:"submission_id"`
	StepID       string `json:"step_id"`
	EvaluatorID  string `json:"evaluator_id"`

	// Scores maps criterion id to raw score.
	Scores map[string]float64 `json:"scores"`

	// WeightedTotal is Σ raw × weight over the step's criteria.
	WeightedTotal float64 `json:"weighted_total"`

	// NormalizedTotal is WeightedTotal rescaled onto the MaxScore scale.
	NormalizedTotal float64 `json:"normalized_total"`

	Feedback  string    `json:"feedback,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ScoreKey identifies the upsert key of a ScoreRecord.
type ScoreKey struct {
	SubmissionID string
	StepID       string
	EvaluatorID  string
}

// Key returns the upsert key for the record.
func (r ScoreRecord) Key() ScoreKey {
	return ScoreKey{SubmissionID: r.SubmissionID, StepID: r.StepID, EvaluatorID: r.EvaluatorID}
}
