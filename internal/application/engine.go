// Package application orchestrates the evaluation core. The Engine wires
// the pure scoring and lifecycle packages to a ports.Store, and wraps every
// decide-and-commit unit of work in a single transaction so that the
// aggregate that authorizes a transition is the aggregate recorded with it.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/ahrav/go-cohort/internal/domain"
	"github.com/ahrav/go-cohort/internal/lifecycle"
	"github.com/ahrav/go-cohort/internal/ports"
	"github.com/ahrav/go-cohort/internal/scoring"
)

const tracerName = "github.com/ahrav/go-cohort/internal/application"

// Engine exposes the evaluation core's operations. It holds no evaluation
// state of its own; every call reads what it needs from the store.
// An Engine is safe for concurrent use.
type Engine struct {
	store    ports.Store
	metrics  ports.MetricsCollector
	observer ports.BatchObserver
	logger   *slog.Logger
	tracer   trace.Tracer
	validate *validator.Validate
	config   EngineConfig
	now      func() time.Time
	newID    func() string

	// sf collapses concurrent Aggregate calls for the same pair.
	sf singleflight.Group
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics sets the metrics collector.
func WithMetrics(m ports.MetricsCollector) Option { return func(e *Engine) { e.metrics = m } }

// WithObserver sets the batch observer.
func WithObserver(o ports.BatchObserver) Option { return func(e *Engine) { e.observer = o } }

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithTracer sets the tracer used for operation spans.
func WithTracer(t trace.Tracer) Option { return func(e *Engine) { e.tracer = t } }

// WithConfig sets the engine configuration.
func WithConfig(c EngineConfig) Option { return func(e *Engine) { e.config = c } }

// WithClock sets the time source used for timestamps.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithIDGenerator sets the generator used for new record ids.
func WithIDGenerator(f func() string) Option { return func(e *Engine) { e.newID = f } }

// NewEngine creates an Engine over store. Unset options default to a
// no-op metrics collector and observer, slog.Default, the global OTel
// tracer, DefaultConfig, time.Now, and random UUIDs.
// NewEngine returns an error if store is nil or validator registration
// fails.
func NewEngine(store ports.Store, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", domain.ErrInvalidConfiguration)
	}
	v, err := NewValidator()
	if err != nil {
		return nil, err
	}

	e := &Engine{
		store:    store,
		metrics:  noopMetrics{},
		observer: noopObserver{},
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
		validate: v,
		config:   DefaultConfig(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.config.Scoreboard.Concurrency < 1 {
		e.config.Scoreboard.Concurrency = 1
	}
	return e, nil
}

// Config returns the configuration the engine runs with.
func (e *Engine) Config() EngineConfig { return e.config }

// withTx runs fn in a store transaction, rerunning it when the store
// reports a retryable failure.
func (e *Engine) withTx(ctx context.Context, op string, fn func(ctx context.Context, tx ports.Tx) error) error {
	attempts := e.config.Store.MaxRetries + 1
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = e.runTx(ctx, fn)
		if err == nil || !ports.IsRetryable(err) || ctx.Err() != nil || attempt == attempts {
			return err
		}
		e.logger.WarnContext(ctx, "retrying transaction",
			"operation", op, "attempt", attempt, "error", err)
		e.metrics.RecordCounter("tx_retries_total", 1, map[string]string{"operation": op})
	}
	return err
}

func (e *Engine) runTx(ctx context.Context, fn func(ctx context.Context, tx ports.Tx) error) error {
	if s := e.config.Store.TxTimeoutSeconds; s > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s)*time.Second)
		defer cancel()
	}
	return e.store.WithTx(ctx, fn)
}

// observe records latency for op and the error on span, if any.
func (e *Engine) observe(span trace.Span, op string, start time.Time, err error) {
	e.metrics.RecordLatency(op, time.Since(start), map[string]string{"operation": op})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("cohort.reason", string(domain.ReasonOf(err))))
	}
}

// cutoffsFor returns the application's cutoff configuration with engine
// defaults filled in for each unset setting. Stores often hold partial
// settings payloads, so fields are defaulted one at a time: a zero quorum
// percentage, a non-positive MaxScore, and a MinScore that is zero while
// the range is unset or not below MaxScore.
func (e *Engine) cutoffsFor(app domain.Application) domain.CutoffConfiguration {
	cfg := app.Cutoffs
	s, d := cfg.Settings, e.config.Defaults

	if s.RequiredEvaluatorPercentage == 0 {
		s.RequiredEvaluatorPercentage = d.RequiredEvaluatorPercentage
	}
	if s.MaxScore <= 0 {
		s.MaxScore = d.MaxScore
		if s.MinScore == 0 {
			s.MinScore = d.MinScore
		}
	}
	if s.MinScore >= s.MaxScore {
		s.MinScore = min(d.MinScore, s.MaxScore)
	}
	if s.AdmitPolicy == "" {
		s.AdmitPolicy = d.EffectiveAdmitPolicy()
	}
	cfg.Settings = s
	return cfg
}

// aggregateTx computes the aggregate for one (submission, step) pair from
// reads made on tx.
func (e *Engine) aggregateTx(
	ctx context.Context,
	tx ports.Tx,
	app domain.Application,
	step domain.EvaluationStep,
	submissionID string,
) (domain.AggregateResult, error) {
	records, err := tx.ListScores(ctx, submissionID, step.ID)
	if err != nil {
		return domain.AggregateResult{}, err
	}
	judges, err := tx.CountEligibleEvaluators(ctx, app.ID, step.StepNumber)
	if err != nil {
		return domain.AggregateResult{}, err
	}
	return scoring.Evaluate(scoring.Input{
		SubmissionID: submissionID,
		Step:         step,
		Records:      records,
		TotalJudges:  judges,
		Cutoffs:      e.cutoffsFor(app),
	}), nil
}

// StepInput describes one step passed to SetupSteps. Criterion ids are
// generated when empty; criterion order is taken from slice position.
type StepInput struct {
	Name     string             `json:"name" yaml:"name" validate:"required,max=255"`
	Type     domain.StepType    `json:"type" yaml:"type" validate:"required,steptype"`
	Criteria []domain.Criterion `json:"criteria" yaml:"criteria" validate:"required,min=1,dive"`
}

// StepIDs holds the ids of the steps created by SetupSteps.
type StepIDs struct {
	Step1 string `json:"step1_id"`
	Step2 string `json:"step2_id"`
}

// SetupSteps creates an application's two evaluation steps atomically.
// Either step failing validation aborts the whole setup and nothing is
// written. An application that already has steps is left untouched and a
// *domain.ConflictError with domain.ReasonStepsConfigured is returned.
func (e *Engine) SetupSteps(
	ctx context.Context,
	auth domain.Authorization,
	applicationID string,
	step1, step2 StepInput,
) (ids StepIDs, err error) {
	ctx, span := e.tracer.Start(ctx, "Engine.SetupSteps",
		trace.WithAttributes(attribute.String("application.id", applicationID)))
	defer span.End()
	start := time.Now()
	defer func() { e.observe(span, "setup_steps", start, err) }()

	if err := auth.Require(domain.CapabilityConfigure); err != nil {
		return StepIDs{}, err
	}

	steps, err := e.buildSteps(applicationID, step1, step2)
	if err != nil {
		return StepIDs{}, err
	}

	err = e.withTx(ctx, "setup_steps", func(ctx context.Context, tx ports.Tx) error {
		if _, err := tx.GetApplication(ctx, applicationID); err != nil {
			return err
		}
		existing, err := tx.ListSteps(ctx, applicationID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return &domain.ConflictError{
				Entity: "application",
				ID:     applicationID,
				Reason: domain.ReasonStepsConfigured,
				Detail: fmt.Sprintf("%d steps already exist", len(existing)),
			}
		}
		return tx.CreateSteps(ctx, steps)
	})
	if err != nil {
		return StepIDs{}, err
	}

	e.logger.InfoContext(ctx, "evaluation steps configured",
		"application_id", applicationID, "actor", auth.ActorID,
		"step1_id", steps[0].ID, "step2_id", steps[1].ID)
	return StepIDs{Step1: steps[0].ID, Step2: steps[1].ID}, nil
}

// buildSteps validates step inputs and turns them into steps numbered from 1.
// Every failing field of every input is reported in one ValidationError.
func (e *Engine) buildSteps(applicationID string, inputs ...StepInput) ([]domain.EvaluationStep, error) {
	now := e.now()
	verr := domain.NewValidationError("EvaluationStep")
	steps := make([]domain.EvaluationStep, 0, len(inputs))
	for i, in := range inputs {
		number := i + 1
		prefix := fmt.Sprintf("step%d: ", number)
		if err := e.validate.Struct(in); err != nil {
			if !appendFieldErrors(verr, prefix, err) {
				return nil, err
			}
			continue
		}

		step := domain.EvaluationStep{
			ID:            e.newID(),
			ApplicationID: applicationID,
			StepNumber:    number,
			Name:          in.Name,
			Type:          in.Type,
			Criteria:      make([]domain.Criterion, len(in.Criteria)),
			IsActive:      true,
			CreatedAt:     now,
		}
		seen := make(map[string]struct{}, len(in.Criteria))
		for j, c := range in.Criteria {
			if c.ID == "" {
				c.ID = e.newID()
			}
			if _, dup := seen[c.ID]; dup {
				verr.AddErrorf("%scriterion id %q is duplicated", prefix, c.ID)
			}
			seen[c.ID] = struct{}{}
			c.Order = j
			step.Criteria[j] = c
		}
		steps = append(steps, step)
	}
	if err := verr.ErrOrNil(); err != nil {
		return nil, err
	}
	return steps, nil
}

// Steps returns an application's steps ordered by step number.
func (e *Engine) Steps(ctx context.Context, applicationID string) ([]domain.EvaluationStep, error) {
	var steps []domain.EvaluationStep
	err := e.withTx(ctx, "list_steps", func(ctx context.Context, tx ports.Tx) error {
		if _, err := tx.GetApplication(ctx, applicationID); err != nil {
			return err
		}
		var err error
		steps, err = tx.ListSteps(ctx, applicationID)
		return err
	})
	return steps, err
}

// ScoreInput is one evaluator's score submission. The evaluator is the
// authorized actor.
type ScoreInput struct {
	SubmissionID string             `json:"submission_id" validate:"required"`
	StepID       string             `json:"step_id" validate:"required"`
	Scores       map[string]float64 `json:"scores" validate:"required,min=1"`
	Feedback     string             `json:"feedback,omitempty" validate:"max=10000"`
	Notes        string             `json:"notes,omitempty" validate:"max=10000"`
}

// SubmitScore validates and upserts one evaluator's scores for a
// submission at a step. A repeat submission by the same evaluator
// overwrites the earlier one. The first score a SUBMITTED submission
// receives moves it to UNDER_REVIEW in the same transaction.
func (e *Engine) SubmitScore(ctx context.Context, auth domain.Authorization, in ScoreInput) (rec domain.ScoreRecord, err error) {
	ctx, span := e.tracer.Start(ctx, "Engine.SubmitScore", trace.WithAttributes(
		attribute.String("submission.id", in.SubmissionID),
		attribute.String("step.id", in.StepID),
	))
	defer span.End()
	start := time.Now()
	defer func() { e.observe(span, "submit_score", start, err) }()

	if err := auth.Require(domain.CapabilityScore); err != nil {
		return domain.ScoreRecord{}, err
	}
	if err := e.validateInput("ScoreRecord", in); err != nil {
		return domain.ScoreRecord{}, err
	}
	if auth.ActorID == "" {
		return domain.ScoreRecord{}, &domain.ValidationError{Entity: "ScoreRecord", Errors: []string{"evaluator id is required"}}
	}

	var step domain.EvaluationStep
	err = e.withTx(ctx, "submit_score", func(ctx context.Context, tx ports.Tx) error {
		sub, err := tx.GetSubmission(ctx, in.SubmissionID)
		if err != nil {
			return err
		}
		if step, err = tx.GetStep(ctx, in.StepID); err != nil {
			return err
		}
		if step.ApplicationID != sub.ApplicationID {
			return &domain.ConflictError{Entity: "step", ID: step.ID, Reason: domain.ReasonWrongApplication,
				Detail: "step belongs to a different application than the submission"}
		}
		if !step.IsActive {
			return &domain.ConflictError{Entity: "step", ID: step.ID, Reason: domain.ReasonWrongStep, Detail: "step is not active"}
		}
		if err := lifecycle.Scorable(sub); err != nil {
			return err
		}

		app, err := tx.GetApplication(ctx, sub.ApplicationID)
		if err != nil {
			return err
		}
		settings := e.cutoffsFor(app).Settings
		if err := scoring.ValidateScores(step, in.Scores, settings); err != nil {
			return err
		}
		totals, err := scoring.ComputeTotals(step, in.Scores, settings.MaxScore)
		if err != nil {
			return err
		}

		now := e.now()
		rec, err = tx.UpsertScore(ctx, domain.ScoreRecord{
			ID:              e.newID(),
			SubmissionID:    sub.ID,
			StepID:          step.ID,
			EvaluatorID:     auth.ActorID,
			Scores:          in.Scores,
			WeightedTotal:   totals.Weighted,
			NormalizedTotal: totals.Normalized,
			Feedback:        in.Feedback,
			Notes:           in.Notes,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
		if err != nil {
			return err
		}

		if sub.Status == domain.StatusSubmitted {
			next, err := lifecycle.BeginReview(sub, lifecycle.Stamp{ActorID: auth.ActorID, At: now})
			if err != nil {
				return err
			}
			return tx.UpdateSubmission(ctx, next)
		}
		return nil
	})
	if err != nil {
		return domain.ScoreRecord{}, err
	}

	labels := map[string]string{"kind": "step", "step": domain.StepKey(step.StepNumber)}
	e.metrics.RecordCounter("scores_submitted_total", 1, labels)
	e.metrics.RecordHistogram("normalized_score", rec.NormalizedTotal, labels)
	e.logger.DebugContext(ctx, "score recorded",
		"submission_id", rec.SubmissionID, "step_id", rec.StepID,
		"evaluator_id", rec.EvaluatorID, "normalized_total", rec.NormalizedTotal)
	return rec, nil
}

// Aggregate computes the AggregateResult for a submission at a step from a
// single snapshot read. Concurrent calls for the same pair share one
// computation, so their results are identical. A caller whose context is
// canceled returns early without failing the others.
func (e *Engine) Aggregate(ctx context.Context, submissionID, stepID string) (domain.AggregateResult, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.Aggregate", trace.WithAttributes(
		attribute.String("submission.id", submissionID),
		attribute.String("step.id", stepID),
	))
	defer span.End()
	start := time.Now()

	// The shared read outlives any single caller's cancellation; each
	// caller still stops waiting when its own context is done. runTx keeps
	// the transaction bounded.
	flightCtx := context.WithoutCancel(ctx)
	ch := e.sf.DoChan(submissionID+"\x00"+stepID, func() (any, error) {
		var res domain.AggregateResult
		err := e.withTx(flightCtx, "aggregate", func(ctx context.Context, tx ports.Tx) error {
			sub, err := tx.GetSubmission(ctx, submissionID)
			if err != nil {
				return err
			}
			step, err := tx.GetStep(ctx, stepID)
			if err != nil {
				return err
			}
			if step.ApplicationID != sub.ApplicationID {
				return &domain.ConflictError{Entity: "step", ID: step.ID, Reason: domain.ReasonWrongApplication,
					Detail: "step belongs to a different application than the submission"}
			}
			app, err := tx.GetApplication(ctx, sub.ApplicationID)
			if err != nil {
				return err
			}
			res, err = e.aggregateTx(ctx, tx, app, step, submissionID)
			return err
		})
		return res, err
	})

	var (
		v      any
		err    error
		shared bool
	)
	select {
	case r := <-ch:
		v, err, shared = r.Val, r.Err, r.Shared
	case <-ctx.Done():
		err = ctx.Err()
	}
	span.SetAttributes(attribute.Bool("singleflight.shared", shared))
	e.observe(span, "aggregate", start, err)
	if err != nil {
		return domain.AggregateResult{}, err
	}

	res := v.(domain.AggregateResult)
	span.SetAttributes(attribute.String("aggregate.status", string(res.Status)))
	return res, nil
}

// Submit hands in a DRAFT submission, moving it to SUBMITTED. It is the
// applicant's action and needs no reviewer capability.
func (e *Engine) Submit(ctx context.Context, auth domain.Authorization, submissionID string) (domain.Submission, error) {
	var out domain.Submission
	err := e.withTx(ctx, "submit", func(ctx context.Context, tx ports.Tx) error {
		sub, err := tx.GetSubmission(ctx, submissionID)
		if err != nil {
			return err
		}
		if out, err = lifecycle.Submit(sub, lifecycle.Stamp{ActorID: auth.ActorID, At: e.now()}); err != nil {
			return err
		}
		return tx.UpdateSubmission(ctx, out)
	})
	if err != nil {
		return domain.Submission{}, err
	}
	e.logger.InfoContext(ctx, "transition committed",
		"transition", domain.TransitionSubmit, "submission_id", submissionID, "actor", auth.ActorID)
	return out, nil
}

// validateInput runs struct validation on in and converts failures into a
// *domain.ValidationError for entity.
func (e *Engine) validateInput(entity string, in any) error {
	if err := e.validate.Struct(in); err != nil {
		return toValidationError(entity, err)
	}
	return nil
}

// finalStep returns the highest step number among steps.
func finalStep(steps []domain.EvaluationStep) (domain.EvaluationStep, bool) {
	if len(steps) == 0 {
		return domain.EvaluationStep{}, false
	}
	return slices.MaxFunc(steps, func(a, b domain.EvaluationStep) int { return a.StepNumber - b.StepNumber }), true
}

// stepAt returns the step with the given number.
func stepAt(steps []domain.EvaluationStep, number int) (domain.EvaluationStep, bool) {
	i := slices.IndexFunc(steps, func(s domain.EvaluationStep) bool { return s.StepNumber == number })
	if i < 0 {
		return domain.EvaluationStep{}, false
	}
	return steps[i], true
}

// isNotFound reports whether err is a NotFoundError for entity.
func isNotFound(err error, entity string) bool {
	var nf *domain.NotFoundError
	return errors.As(err, &nf) && nf.Entity == entity
}

type noopMetrics struct{}

func (noopMetrics) RecordLatency(string, time.Duration, map[string]string) {}
func (noopMetrics) RecordCounter(string, float64, map[string]string)      {}
func (noopMetrics) RecordGauge(string, float64, map[string]string)        {}
func (noopMetrics) RecordHistogram(string, float64, map[string]string)    {}

type noopObserver struct{}

func (noopObserver) PreBatch(ctx context.Context, _ domain.Transition, _ string, _ int) context.Context {
	return ctx
}

func (noopObserver) PostBatch(context.Context, domain.BatchResult, time.Duration, error) {}
