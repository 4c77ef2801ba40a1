package domain

import (
	"errors"
	"fmt"
)

// Common domain errors that can occur during evaluation operations.
var (
	// ErrNotFound indicates that a submission, step, application, or event
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStateConflict indicates that a transition was attempted from a
	// state that does not allow it.
	ErrStateConflict = errors.New("state conflict")

	// ErrPermissionDenied indicates that the caller lacks the capability an
	// operation requires.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrQuorumUnmet indicates that too few evaluators have scored a
	// submission for its aggregate to be trusted. It is informational and
	// surfaces as AggregatePending rather than as a hard failure.
	ErrQuorumUnmet = errors.New("evaluator quorum not met")

	// ErrInvalidScore indicates that a raw score falls outside the
	// configured evaluator input range.
	ErrInvalidScore = errors.New("score out of range")

	// ErrInvalidConfiguration indicates that configuration is invalid or incomplete.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// Reason is a machine-readable explanation attached to every rejected
// operation and every skipped batch item. Callers switch on it to tell
// "not enough evaluators yet" apart from "not authorized" apart from
// "already decided".
type Reason string

// Reasons reported by the evaluation core.
const (
	ReasonNone              Reason = ""
	ReasonValidation        Reason = "validation_failed"
	ReasonNotFound          Reason = "not_found"
	ReasonPermissionDenied  Reason = "permission_denied"
	ReasonQuorumUnmet       Reason = "quorum_unmet"
	ReasonNotScored         Reason = "not_scored"
	ReasonBelowCutoff       Reason = "below_cutoff"
	ReasonNoJudgePool       Reason = "no_judge_pool"
	ReasonNoCutoff          Reason = "no_cutoff_configured"
	ReasonWrongStep         Reason = "wrong_step"
	ReasonAlreadyTerminal   Reason = "already_terminal"
	ReasonAlreadyRejected   Reason = "already_rejected"
	ReasonNotSubmitted      Reason = "not_submitted"
	ReasonWrongApplication  Reason = "wrong_application"
	ReasonStepsConfigured   Reason = "steps_already_configured"
	ReasonScoreOutOfRange   Reason = "score_out_of_range"
	ReasonIllegalTransition Reason = "illegal_transition"
	ReasonInternal          Reason = "internal_error"
)

// ValidationError represents an error that occurred during validation.
// It can contain multiple validation failures.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// AddErrorf adds a formatted error message to the validation error.
func (e *ValidationError) AddErrorf(format string, args ...any) {
	e.Errors = append(e.Errors, fmt.Sprintf(format, args...))
}

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// ErrOrNil returns the ValidationError as an error when it holds at least
// one message, and nil otherwise.
func (e *ValidationError) ErrOrNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Errors: make([]string, 0),
	}
}

// NotFoundError reports that a referenced entity does not exist.
type NotFoundError struct {
	// Entity is the kind of record that was looked up, e.g. "submission".
	Entity string

	// ID is the identifier that failed to resolve.
	ID string
}

// Error implements the error interface for NotFoundError.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// Unwrap allows errors.Is(err, ErrNotFound).
func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NewNotFoundError creates a NotFoundError for the given entity and id.
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// StateConflictError reports a transition attempted from an illegal state.
// Batch operations turn it into a per-item Skip rather than failing the
// whole batch.
type StateConflictError struct {
	// SubmissionID is the submission the transition was attempted on.
	SubmissionID string

	// Transition names the attempted transition.
	Transition Transition

	// From is the submission status at the time of the attempt.
	From SubmissionStatus

	// Reason is the machine-readable cause.
	Reason Reason

	// Detail is a human-readable explanation.
	Detail string
}

// Error implements the error interface for StateConflictError.
func (e *StateConflictError) Error() string {
	msg := fmt.Sprintf("cannot %s submission %s from %s: %s", e.Transition, e.SubmissionID, e.From, e.Reason)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

// Unwrap allows errors.Is(err, ErrStateConflict).
func (e *StateConflictError) Unwrap() error { return ErrStateConflict }

// NewStateConflictError creates a StateConflictError with the given details.
func NewStateConflictError(sub Submission, transition Transition, reason Reason, detail string) *StateConflictError {
	return &StateConflictError{
		SubmissionID: sub.ID,
		Transition:   transition,
		From:         sub.Status,
		Reason:       reason,
		Detail:       detail,
	}
}

// ConflictError reports a write that collides with existing state outside
// the submission lifecycle, such as configuring an application's steps a
// second time.
type ConflictError struct {
	// Entity is the kind of record involved, e.g. "application".
	Entity string

	// ID identifies the record.
	ID string

	// Reason is the machine-readable cause.
	Reason Reason

	// Detail is a human-readable explanation.
	Detail string
}

// Error implements the error interface for ConflictError.
func (e *ConflictError) Error() string {
	msg := fmt.Sprintf("%s %q conflict: %s", e.Entity, e.ID, e.Reason)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

// Unwrap allows errors.Is(err, ErrStateConflict).
func (e *ConflictError) Unwrap() error { return ErrStateConflict }

// PermissionError reports that the caller lacks a required capability.
// It is returned before any state is read or mutated.
type PermissionError struct {
	// ActorID identifies the caller, if known.
	ActorID string

	// Capability is the capability the operation requires.
	Capability Capability
}

// Error implements the error interface for PermissionError.
func (e *PermissionError) Error() string {
	return fmt.Sprintf("actor %q lacks %s capability", e.ActorID, e.Capability)
}

// Unwrap allows errors.Is(err, ErrPermissionDenied).
func (e *PermissionError) Unwrap() error { return ErrPermissionDenied }

// ReasonOf maps any error produced by the core to its machine-readable
// Reason. Unknown errors map to ReasonInternal and nil maps to ReasonNone.
func ReasonOf(err error) Reason {
	if err == nil {
		return ReasonNone
	}

	var conflict *StateConflictError
	if errors.As(err, &conflict) {
		return conflict.Reason
	}
	var collision *ConflictError
	if errors.As(err, &collision) {
		return collision.Reason
	}

	var validation *ValidationError
	switch {
	case errors.As(err, &validation):
		return ReasonValidation
	case errors.Is(err, ErrPermissionDenied):
		return ReasonPermissionDenied
	case errors.Is(err, ErrNotFound):
		return ReasonNotFound
	case errors.Is(err, ErrInvalidScore):
		return ReasonScoreOutOfRange
	case errors.Is(err, ErrQuorumUnmet):
		return ReasonQuorumUnmet
	case errors.Is(err, ErrInvalidConfiguration):
		return ReasonValidation
	}
	return ReasonInternal
}
