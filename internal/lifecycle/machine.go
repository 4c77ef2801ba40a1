// Package lifecycle implements the submission state machine. Every function
// takes a Submission by value and returns the transitioned copy, or a
// *domain.StateConflictError explaining why the transition is illegal. The
// package never computes scores itself; callers pass in the AggregateResult
// that authorizes a transition, and that same value is recorded on the
// Submission as its LastDecision.
//
// State diagram:
//
//	DRAFT --[Submit]--> SUBMITTED --[BeginReview]--> UNDER_REVIEW(step 1)
//	UNDER_REVIEW(step n) --[Advance]--> UNDER_REVIEW(step n+1)
//	UNDER_REVIEW(final step) --[Admit]--> ACCEPTED
//	any state except REJECTED --[Reject]--> REJECTED
//	any non-terminal state --[Waitlist]--> WAITLISTED
package lifecycle

import (
	"fmt"
	"time"

	"github.com/ahrav/go-cohort/internal/domain"
)

// Stamp identifies who performs a transition and when.
type Stamp struct {
	ActorID string
	At      time.Time
}

func (s Stamp) decide(t domain.Transition, agg *domain.AggregateResult) *domain.Decision {
	var snapshot *domain.AggregateResult
	if agg != nil {
		cp := *agg
		snapshot = &cp
	}
	return &domain.Decision{Transition: t, ActorID: s.ActorID, Aggregate: snapshot, DecidedAt: s.At}
}

// Submit moves a DRAFT submission to SUBMITTED and stamps SubmittedAt.
func Submit(sub domain.Submission, stamp Stamp) (domain.Submission, error) {
	if sub.Status != domain.StatusDraft {
		return sub, domain.NewStateConflictError(sub, domain.TransitionSubmit, domain.ReasonIllegalTransition,
			"only drafts can be submitted")
	}
	at := stamp.At
	sub.Status = domain.StatusSubmitted
	sub.SubmittedAt = &at
	if sub.CurrentStep < 1 {
		sub.CurrentStep = 1
	}
	sub.LastDecision = stamp.decide(domain.TransitionSubmit, nil)
	return sub, nil
}

// BeginReview moves a SUBMITTED submission to UNDER_REVIEW. It is triggered
// by the first accepted score.
func BeginReview(sub domain.Submission, stamp Stamp) (domain.Submission, error) {
	if sub.Status != domain.StatusSubmitted {
		return sub, domain.NewStateConflictError(sub, domain.TransitionBeginReview, domain.ReasonIllegalTransition,
			"review starts only from SUBMITTED")
	}
	sub.Status = domain.StatusUnderReview
	if sub.CurrentStep < 1 {
		sub.CurrentStep = 1
	}
	sub.LastDecision = stamp.decide(domain.TransitionBeginReview, nil)
	return sub, nil
}

// Scorable reports whether evaluators may score the submission. Drafts have
// not been handed in and cannot be scored.
func Scorable(sub domain.Submission) error {
	if sub.Status == domain.StatusDraft {
		return domain.NewStateConflictError(sub, domain.TransitionBeginReview, domain.ReasonNotSubmitted,
			"drafts cannot be scored")
	}
	return nil
}

// inPipeline rejects the states that Advance and Admit never leave from.
func inPipeline(sub domain.Submission, t domain.Transition) error {
	switch {
	case sub.Status.IsTerminal():
		return domain.NewStateConflictError(sub, t, domain.ReasonAlreadyTerminal, "final decision already recorded")
	case sub.Status == domain.StatusDraft:
		return domain.NewStateConflictError(sub, t, domain.ReasonNotSubmitted, "")
	case sub.Status == domain.StatusWaitlisted:
		return domain.NewStateConflictError(sub, t, domain.ReasonIllegalTransition, "waitlisted submissions are held outside the pipeline")
	}
	return nil
}

// Advance moves a submission from the step agg was computed for to the next
// one. It requires the aggregate to be PASSED, the submission to be sitting
// at that step, and a later step to exist. Calling it again on an already
// advanced submission fails with ReasonWrongStep and changes nothing.
func Advance(sub domain.Submission, agg domain.AggregateResult, finalStep int, stamp Stamp) (domain.Submission, error) {
	if err := inPipeline(sub, domain.TransitionAdvance); err != nil {
		return sub, err
	}
	if sub.CurrentStep != agg.StepNumber {
		return sub, domain.NewStateConflictError(sub, domain.TransitionAdvance, domain.ReasonWrongStep,
			fmt.Sprintf("submission is at step %d, not step %d", sub.CurrentStep, agg.StepNumber))
	}
	if agg.StepNumber >= finalStep {
		return sub, domain.NewStateConflictError(sub, domain.TransitionAdvance, domain.ReasonWrongStep,
			fmt.Sprintf("step %d is the final step", agg.StepNumber))
	}
	if agg.Status != domain.AggregatePassed {
		return sub, domain.NewStateConflictError(sub, domain.TransitionAdvance, agg.Reason(), describe(agg))
	}

	sub.CurrentStep = agg.StepNumber + 1
	sub.Status = domain.StatusUnderReview
	sub.LastDecision = stamp.decide(domain.TransitionAdvance, &agg)
	return sub, nil
}

// Admit accepts a submission that has reached the final step. Under
// domain.AdmitRequirePass the final-step aggregate must also be PASSED;
// under domain.AdmitFinalStep reaching the step is enough.
func Admit(
	sub domain.Submission,
	agg domain.AggregateResult,
	finalStep int,
	policy domain.AdmitPolicy,
	stamp Stamp,
) (domain.Submission, error) {
	if err := inPipeline(sub, domain.TransitionAdmit); err != nil {
		return sub, err
	}
	if sub.CurrentStep != finalStep || agg.StepNumber != finalStep {
		return sub, domain.NewStateConflictError(sub, domain.TransitionAdmit, domain.ReasonWrongStep,
			fmt.Sprintf("submission is at step %d, admission happens at step %d", sub.CurrentStep, finalStep))
	}
	if policy != domain.AdmitFinalStep && agg.Status != domain.AggregatePassed {
		return sub, domain.NewStateConflictError(sub, domain.TransitionAdmit, agg.Reason(), describe(agg))
	}

	at := stamp.At
	sub.Status = domain.StatusAccepted
	sub.ReviewedAt = &at
	sub.LastDecision = stamp.decide(domain.TransitionAdmit, &agg)
	return sub, nil
}

// Reject is the administrative override. It is legal from every state,
// ACCEPTED included, except REJECTED itself. agg may be nil when no
// aggregate is available for the submission's current step.
func Reject(sub domain.Submission, agg *domain.AggregateResult, stamp Stamp) (domain.Submission, error) {
	if sub.Status == domain.StatusRejected {
		return sub, domain.NewStateConflictError(sub, domain.TransitionReject, domain.ReasonAlreadyRejected, "")
	}
	at := stamp.At
	sub.Status = domain.StatusRejected
	sub.ReviewedAt = &at
	sub.LastDecision = stamp.decide(domain.TransitionReject, agg)
	return sub, nil
}

// Waitlist parks a submitted, non-terminal submission in WAITLISTED. It is
// the only way into that status.
func Waitlist(sub domain.Submission, agg *domain.AggregateResult, stamp Stamp) (domain.Submission, error) {
	switch {
	case sub.Status.IsTerminal():
		return sub, domain.NewStateConflictError(sub, domain.TransitionWaitlist, domain.ReasonAlreadyTerminal, "final decision already recorded")
	case sub.Status == domain.StatusDraft:
		return sub, domain.NewStateConflictError(sub, domain.TransitionWaitlist, domain.ReasonNotSubmitted, "")
	case sub.Status == domain.StatusWaitlisted:
		return sub, domain.NewStateConflictError(sub, domain.TransitionWaitlist, domain.ReasonIllegalTransition, "already waitlisted")
	}
	sub.Status = domain.StatusWaitlisted
	sub.LastDecision = stamp.decide(domain.TransitionWaitlist, agg)
	return sub, nil
}

func describe(agg domain.AggregateResult) string {
	if agg.ValidityMessage != "" {
		return agg.ValidityMessage
	}
	if avg, ok := agg.DisplayAverage(); ok {
		return fmt.Sprintf("step %d is %s (average %.2f, cutoff %.2f)", agg.StepNumber, agg.Status, avg, agg.Cutoff)
	}
	return fmt.Sprintf("step %d is %s", agg.StepNumber, agg.Status)
}
