package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-cohort/internal/domain"
	"github.com/ahrav/go-cohort/internal/lifecycle"
	"github.com/ahrav/go-cohort/internal/ports"
)

// itemFunc applies one transition to one locked submission, reading
// whatever else it needs from the same transaction.
type itemFunc func(ctx context.Context, tx ports.Tx, sub domain.Submission, stamp lifecycle.Stamp) (domain.Submission, error)

// prepareFunc loads batch-wide context once and returns the per-item step.
// Errors it returns fail the whole batch.
type prepareFunc func(ctx context.Context, tx ports.Tx, app domain.Application) (itemFunc, error)

// runBatch drives a batch transition. Each id is decided and committed in
// its own transaction so the aggregate a decision is based on comes from the
// same snapshot the transition is written in. State conflicts and unknown
// ids become skips; any other failure stops the batch and is returned with
// the partial result.
func (e *Engine) runBatch(
	ctx context.Context,
	auth domain.Authorization,
	capability domain.Capability,
	transition domain.Transition,
	applicationID string,
	ids []string,
	prepare prepareFunc,
) (result domain.BatchResult, err error) {
	result = domain.NewBatchResult(transition)
	if err := auth.Require(capability); err != nil {
		return result, err
	}

	ids = dedupe(ids)
	if len(ids) == 0 {
		return result, &domain.ValidationError{Entity: "BatchRequest", Errors: []string{"submission ids must not be empty"}}
	}

	ctx, span := e.tracer.Start(ctx, "Engine."+string(transition), trace.WithAttributes(
		attribute.String("application.id", applicationID),
		attribute.Int("batch.requested", len(ids)),
	))
	defer span.End()
	start := time.Now()

	ctx = e.observer.PreBatch(ctx, transition, applicationID, len(ids))
	defer func() {
		e.observer.PostBatch(ctx, result, time.Since(start), err)
		span.SetAttributes(attribute.Int("batch.count", result.Count), attribute.Int("batch.skipped", len(result.Skipped)))
		e.observe(span, string(transition), start, err)
	}()

	var apply itemFunc
	err = e.withTx(ctx, string(transition)+"_prepare", func(ctx context.Context, tx ports.Tx) error {
		app, err := tx.GetApplication(ctx, applicationID)
		if err != nil {
			return err
		}
		apply, err = prepare(ctx, tx, app)
		return err
	})
	if err != nil {
		return result, err
	}

	notFound := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		itemErr := e.withTx(ctx, string(transition), func(ctx context.Context, tx ports.Tx) error {
			sub, err := tx.GetSubmission(ctx, id)
			if err != nil {
				return err
			}
			if sub.ApplicationID != applicationID {
				return &domain.ConflictError{Entity: "submission", ID: id, Reason: domain.ReasonWrongApplication,
					Detail: fmt.Sprintf("submission belongs to application %s", sub.ApplicationID)}
			}
			next, err := apply(ctx, tx, sub, lifecycle.Stamp{ActorID: auth.ActorID, At: e.now()})
			if err != nil {
				return err
			}
			return tx.UpdateSubmission(ctx, next)
		})

		switch {
		case itemErr == nil:
			result.Succeed(id)
			e.recordItem(transition, "committed", domain.ReasonNone)
			e.logger.InfoContext(ctx, "transition committed",
				"transition", transition, "application_id", applicationID,
				"submission_id", id, "actor", auth.ActorID)
		case isNotFound(itemErr, "submission"):
			notFound++
			e.skip(ctx, &result, id, domain.ReasonNotFound, itemErr.Error())
		case errors.Is(itemErr, domain.ErrStateConflict):
			e.skip(ctx, &result, id, domain.ReasonOf(itemErr), skipDetail(itemErr))
		default:
			return result, fmt.Errorf("%s submission %s: %w", transition, id, itemErr)
		}
	}

	if notFound == len(ids) {
		return result, &domain.NotFoundError{Entity: "submission", ID: ids[0]}
	}
	return result, nil
}

func (e *Engine) skip(ctx context.Context, result *domain.BatchResult, id string, reason domain.Reason, detail string) {
	result.Skip(id, reason, detail)
	e.recordItem(result.Transition, "skipped", reason)
	e.logger.DebugContext(ctx, "batch item skipped",
		"transition", result.Transition, "submission_id", id, "reason", reason, "detail", detail)
}

func (e *Engine) recordItem(transition domain.Transition, outcome string, reason domain.Reason) {
	e.metrics.RecordCounter("batch_items_total", 1, map[string]string{
		"transition": string(transition),
		"outcome":    outcome,
		"reason":     string(reason),
	})
}

// skipDetail prefers the human-readable detail of a conflict over its full
// error string.
func skipDetail(err error) string {
	var sc *domain.StateConflictError
	if errors.As(err, &sc) && sc.Detail != "" {
		return sc.Detail
	}
	var c *domain.ConflictError
	if errors.As(err, &c) && c.Detail != "" {
		return c.Detail
	}
	return err.Error()
}

// dedupe drops empty and repeated ids, keeping first-seen order.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Advance moves each listed submission from the given step to the next one.
// A submission is moved only if its aggregate at that step is PASSED and it
// is still sitting at the step; otherwise it is skipped with a reason.
// Re-running Advance over already advanced ids skips them with
// domain.ReasonWrongStep and writes nothing.
func (e *Engine) Advance(
	ctx context.Context,
	auth domain.Authorization,
	applicationID, stepID string,
	submissionIDs []string,
) (domain.BatchResult, error) {
	return e.runBatch(ctx, auth, domain.CapabilityAdvance, domain.TransitionAdvance, applicationID, submissionIDs,
		func(ctx context.Context, tx ports.Tx, app domain.Application) (itemFunc, error) {
			step, err := tx.GetStep(ctx, stepID)
			if err != nil {
				return nil, err
			}
			if step.ApplicationID != app.ID {
				return nil, &domain.ConflictError{Entity: "step", ID: stepID, Reason: domain.ReasonWrongApplication,
					Detail: fmt.Sprintf("step belongs to application %s", step.ApplicationID)}
			}
			steps, err := tx.ListSteps(ctx, app.ID)
			if err != nil {
				return nil, err
			}
			last, _ := finalStep(steps)

			return func(ctx context.Context, tx ports.Tx, sub domain.Submission, stamp lifecycle.Stamp) (domain.Submission, error) {
				agg, err := e.aggregateTx(ctx, tx, app, step, sub.ID)
				if err != nil {
					return sub, err
				}
				return lifecycle.Advance(sub, agg, last.StepNumber, stamp)
			}, nil
		})
}

// Admit accepts each listed submission that has reached the final step and
// satisfies the application's admit policy. Submissions at an earlier step
// are always skipped.
func (e *Engine) Admit(
	ctx context.Context,
	auth domain.Authorization,
	applicationID string,
	submissionIDs []string,
) (domain.BatchResult, error) {
	return e.runBatch(ctx, auth, domain.CapabilityAdmit, domain.TransitionAdmit, applicationID, submissionIDs,
		func(ctx context.Context, tx ports.Tx, app domain.Application) (itemFunc, error) {
			steps, err := tx.ListSteps(ctx, app.ID)
			if err != nil {
				return nil, err
			}
			last, ok := finalStep(steps)
			if !ok {
				return nil, fmt.Errorf("%w: application %s has no evaluation steps", domain.ErrInvalidConfiguration, app.ID)
			}
			policy := e.cutoffsFor(app).Settings.EffectiveAdmitPolicy()

			return func(ctx context.Context, tx ports.Tx, sub domain.Submission, stamp lifecycle.Stamp) (domain.Submission, error) {
				agg, err := e.aggregateTx(ctx, tx, app, last, sub.ID)
				if err != nil {
					return sub, err
				}
				return lifecycle.Admit(sub, agg, last.StepNumber, policy, stamp)
			}, nil
		})
}

// BulkReject rejects every listed submission that is not already REJECTED,
// ACCEPTED included. The aggregate at the submission's current step, when
// the step exists, is recorded with the decision.
func (e *Engine) BulkReject(
	ctx context.Context,
	auth domain.Authorization,
	applicationID string,
	submissionIDs []string,
) (domain.BatchResult, error) {
	return e.runBatch(ctx, auth, domain.CapabilityReject, domain.TransitionReject, applicationID, submissionIDs,
		e.overrideWith(lifecycle.Reject))
}

// Waitlist parks each listed non-terminal submission in WAITLISTED. It
// requires the admit capability.
func (e *Engine) Waitlist(
	ctx context.Context,
	auth domain.Authorization,
	applicationID string,
	submissionIDs []string,
) (domain.BatchResult, error) {
	return e.runBatch(ctx, auth, domain.CapabilityAdmit, domain.TransitionWaitlist, applicationID, submissionIDs,
		e.overrideWith(lifecycle.Waitlist))
}

// overrideWith builds the prepare step shared by the administrative
// overrides, which record the current-step aggregate when one is available.
func (e *Engine) overrideWith(
	transition func(domain.Submission, *domain.AggregateResult, lifecycle.Stamp) (domain.Submission, error),
) prepareFunc {
	return func(ctx context.Context, tx ports.Tx, app domain.Application) (itemFunc, error) {
		steps, err := tx.ListSteps(ctx, app.ID)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, tx ports.Tx, sub domain.Submission, stamp lifecycle.Stamp) (domain.Submission, error) {
			var agg *domain.AggregateResult
			if step, ok := stepAt(steps, sub.CurrentStep); ok && sub.Status != domain.StatusDraft {
				res, err := e.aggregateTx(ctx, tx, app, step, sub.ID)
				if err != nil {
					return sub, err
				}
				agg = &res
			}
			return transition(sub, agg, stamp)
		}, nil
	}
}
