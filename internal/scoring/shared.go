// Package scoring turns raw evaluator scores into trusted verdicts. It holds
// the score aggregator, the quorum validator, the cutoff engine, and the
// demo-day weighted scorer. Every function is pure: inputs are
// already-materialized score sets and nothing here performs I/O.
package scoring

import "errors"

// Common errors returned by scoring functions.
var (
	// ErrNoCriteria is returned when a step or event has no criteria to
	// score against.
	ErrNoCriteria = errors.New("no criteria configured")

	// ErrNonPositiveWeight is returned when criteria weights do not sum to a
	// positive total.
	ErrNonPositiveWeight = errors.New("criteria weights must be positive")

	// ErrUnknownCriterion is returned when a score references a criterion
	// that is not part of the step or event.
	ErrUnknownCriterion = errors.New("unknown criterion")

	// ErrMissingCriterion is returned when a score omits one of the step's
	// criteria.
	ErrMissingCriterion = errors.New("missing criterion score")
)

// epsilon absorbs floating-point noise in threshold comparisons so that a
// mean that is mathematically equal to the cutoff compares as equal.
const epsilon = 1e-9
