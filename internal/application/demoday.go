package application

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-cohort/internal/domain"
	"github.com/ahrav/go-cohort/internal/ports"
	"github.com/ahrav/go-cohort/internal/scoring"
)

// DemoDayScoreInput is one judge's scores for a demo-day project. The judge
// is the authorized actor.
type DemoDayScoreInput struct {
	SubmissionID string             `json:"submission_id" validate:"required"`
	Scores       map[string]float64 `json:"scores" validate:"required,min=1"`
	Feedback     string             `json:"feedback,omitempty" validate:"max=10000"`
	Notes        string             `json:"notes,omitempty" validate:"max=10000"`
}

// DemoDayScoreResult reports a stored judge total together with the figure
// it is out of. Percentage is derived from those two numbers only.
type DemoDayScoreResult struct {
	Score       domain.DemoDayScore `json:"score"`
	MaxPossible float64             `json:"max_possible"`
	Percentage  float64             `json:"percentage"`
}

// eventDefaults fills in the engine's raw score range for an event that
// does not configure one.
func (e *Engine) eventDefaults(event domain.DemoDayEvent) domain.DemoDayEvent {
	if event.MaxRawScore <= 0 {
		event.MaxRawScore = e.config.DemoDay.MaxRawScore
		event.MinRawScore = e.config.DemoDay.MinRawScore
	}
	return event
}

// SubmitDemoDayScore validates and upserts one judge's scores for a
// demo-day project. The stored total is the raw weighted sum.
func (e *Engine) SubmitDemoDayScore(
	ctx context.Context,
	auth domain.Authorization,
	in DemoDayScoreInput,
) (res DemoDayScoreResult, err error) {
	ctx, span := e.tracer.Start(ctx, "Engine.SubmitDemoDayScore",
		trace.WithAttributes(attribute.String("submission.id", in.SubmissionID)))
	defer span.End()
	start := time.Now()
	defer func() { e.observe(span, "submit_demo_day_score", start, err) }()

	if err := auth.Require(domain.CapabilityScore); err != nil {
		return DemoDayScoreResult{}, err
	}
	if err := e.validateInput("DemoDayScore", in); err != nil {
		return DemoDayScoreResult{}, err
	}
	if auth.ActorID == "" {
		return DemoDayScoreResult{}, &domain.ValidationError{Entity: "DemoDayScore", Errors: []string{"judge id is required"}}
	}

	var event domain.DemoDayEvent
	err = e.withTx(ctx, "submit_demo_day_score", func(ctx context.Context, tx ports.Tx) error {
		sub, err := tx.GetDemoDaySubmission(ctx, in.SubmissionID)
		if err != nil {
			return err
		}
		if event, err = tx.GetDemoDayEvent(ctx, sub.EventID); err != nil {
			return err
		}
		event = e.eventDefaults(event)

		total, err := scoring.DemoDayTotal(event, in.Scores)
		if err != nil {
			return err
		}
		now := e.now()
		res.Score, err = tx.UpsertDemoDayScore(ctx, domain.DemoDayScore{
			ID:           e.newID(),
			SubmissionID: sub.ID,
			JudgeID:      auth.ActorID,
			Scores:       in.Scores,
			TotalScore:   total,
			Feedback:     in.Feedback,
			Notes:        in.Notes,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
		return err
	})
	if err != nil {
		return DemoDayScoreResult{}, err
	}

	res.MaxPossible = scoring.DemoDayMaxPossible(event)
	res.Percentage = scoring.DemoDayPercentage(event, res.Score.TotalScore)

	labels := map[string]string{"kind": "demo_day", "step": "event"}
	e.metrics.RecordCounter("scores_submitted_total", 1, labels)
	e.logger.DebugContext(ctx, "demo day score recorded",
		"event_id", event.ID, "submission_id", res.Score.SubmissionID,
		"judge_id", res.Score.JudgeID, "total", res.Score.TotalScore)
	return res, nil
}

// DemoDayLeaderboard ranks an event's projects by their judges' average
// total, unscored projects last.
func (e *Engine) DemoDayLeaderboard(ctx context.Context, eventID string) (standings []domain.DemoDayStanding, err error) {
	ctx, span := e.tracer.Start(ctx, "Engine.DemoDayLeaderboard",
		trace.WithAttributes(attribute.String("event.id", eventID)))
	defer span.End()
	start := time.Now()
	defer func() { e.observe(span, "demo_day_leaderboard", start, err) }()

	err = e.withTx(ctx, "demo_day_leaderboard", func(ctx context.Context, tx ports.Tx) error {
		event, err := tx.GetDemoDayEvent(ctx, eventID)
		if err != nil {
			return err
		}
		subs, err := tx.ListDemoDaySubmissions(ctx, eventID)
		if err != nil {
			return err
		}
		scores, err := tx.ListDemoDayScores(ctx, eventID)
		if err != nil {
			return err
		}
		bySub := make(map[string][]domain.DemoDayScore, len(subs))
		for _, s := range scores {
			bySub[s.SubmissionID] = append(bySub[s.SubmissionID], s)
		}
		standings = scoring.RankDemoDay(e.eventDefaults(event), subs, bySub)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return standings, nil
}
