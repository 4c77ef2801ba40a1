// Package ports defines the boundaries between the evaluation core and the
// infrastructure that stores its state and observes its operations.
package ports

import (
	"context"
	"time"

	"github.com/ahrav/go-cohort/internal/domain"
)

// Store opens transactions over evaluation state. It is the snapshot
// boundary: everything read inside one WithTx call is mutually consistent,
// and everything written commits together or not at all.
type Store interface {
	// WithTx runs fn inside one transaction. The transaction commits when
	// fn returns nil and rolls back otherwise. The error returned by fn is
	// returned unchanged so callers can inspect domain errors.
	//
	// Implementations must give fn an isolation level at which an
	// aggregate computed from ListScores cannot change before commit. A
	// transaction aborted by a concurrent writer is reported as a
	// *StoreError wrapping ErrSerializationFailure.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the set of reads and writes available inside a transaction. Get
// methods return *domain.NotFoundError for unknown ids. List methods return
// an empty slice, never an error, when nothing matches.
type Tx interface {
	// GetApplication returns an application with its cutoff configuration.
	GetApplication(ctx context.Context, id string) (domain.Application, error)

	// CreateApplication inserts an application.
	CreateApplication(ctx context.Context, app domain.Application) error

	// ListSteps returns an application's steps ordered by StepNumber.
	ListSteps(ctx context.Context, applicationID string) ([]domain.EvaluationStep, error)

	// GetStep returns a step with its criteria in their stored order.
	GetStep(ctx context.Context, stepID string) (domain.EvaluationStep, error)

	// CreateSteps inserts steps and their criteria, preserving criteria
	// order.
	CreateSteps(ctx context.Context, steps []domain.EvaluationStep) error

	// GetSubmission returns a submission. Implementations lock the row
	// until the transaction ends.
	GetSubmission(ctx context.Context, id string) (domain.Submission, error)

	// ListSubmissions returns an application's submissions ordered by id.
	ListSubmissions(ctx context.Context, applicationID string) ([]domain.Submission, error)

	// CreateSubmission inserts a submission.
	CreateSubmission(ctx context.Context, sub domain.Submission) error

	// UpdateSubmission persists the lifecycle fields of a submission.
	UpdateSubmission(ctx context.Context, sub domain.Submission) error

	// ListScores returns the score records of one (submission, step) pair.
	ListScores(ctx context.Context, submissionID, stepID string) ([]domain.ScoreRecord, error)

	// ListScoresForStep returns every score record for a step.
	ListScoresForStep(ctx context.Context, stepID string) ([]domain.ScoreRecord, error)

	// UpsertScore stores rec keyed by (SubmissionID, StepID, EvaluatorID).
	// A second write for the same key overwrites the first and keeps its
	// ID and CreatedAt. The stored record is returned.
	UpsertScore(ctx context.Context, rec domain.ScoreRecord) (domain.ScoreRecord, error)

	// AssignEvaluators replaces the eligible evaluator pool for step
	// stepNumber of an application.
	AssignEvaluators(ctx context.Context, applicationID string, stepNumber int, evaluatorIDs []string) error

	// CountEligibleEvaluators returns the size of the eligible evaluator
	// pool for step stepNumber of an application.
	CountEligibleEvaluators(ctx context.Context, applicationID string, stepNumber int) (int, error)

	// GetDemoDayEvent returns a demo-day event with resolved criteria.
	GetDemoDayEvent(ctx context.Context, id string) (domain.DemoDayEvent, error)

	// CreateDemoDayEvent inserts a demo-day event.
	CreateDemoDayEvent(ctx context.Context, event domain.DemoDayEvent) error

	// GetDemoDaySubmission returns a demo-day submission.
	GetDemoDaySubmission(ctx context.Context, id string) (domain.DemoDaySubmission, error)

	// ListDemoDaySubmissions returns an event's submissions ordered by id.
	ListDemoDaySubmissions(ctx context.Context, eventID string) ([]domain.DemoDaySubmission, error)

	// CreateDemoDaySubmission inserts a demo-day submission.
	CreateDemoDaySubmission(ctx context.Context, sub domain.DemoDaySubmission) error

	// ListDemoDayScores returns every judge score for an event's
	// submissions.
	ListDemoDayScores(ctx context.Context, eventID string) ([]domain.DemoDayScore, error)

	// UpsertDemoDayScore stores s keyed by (SubmissionID, JudgeID) with the
	// same overwrite semantics as UpsertScore.
	UpsertDemoDayScore(ctx context.Context, s domain.DemoDayScore) (domain.DemoDayScore, error)
}

// MetricsCollector defines the interface for collecting operational metrics.
// Implementations should integrate with observability platforms like
// Prometheus or OpenTelemetry.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	// The labels map provides additional context for the metric.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric by the given value.
	// Counters are used for tracking cumulative values like transitions
	// committed, items skipped, etc.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	// This is useful for tracking values like the size of a scoreboard.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram.
	// This is useful for tracking distributions like normalized scores.
	RecordHistogram(metric string, value float64, labels map[string]string)
}

// BatchObserver is notified around every batch transition. PreBatch returns
// the context the batch runs under, so an implementation can carry a span
// through it; PostBatch receives that same context.
type BatchObserver interface {
	// PreBatch is called before any item is processed.
	PreBatch(ctx context.Context, transition domain.Transition, applicationID string, requested int) context.Context

	// PostBatch is called once with the final result, or with the error
	// that failed the whole batch.
	PostBatch(ctx context.Context, result domain.BatchResult, elapsed time.Duration, err error)
}
