package application

import (
	"context"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-cohort/internal/domain"
	"github.com/ahrav/go-cohort/internal/ports"
	"github.com/ahrav/go-cohort/internal/scoring"
)

// ScoreboardEntry is one row of a step's scoreboard.
type ScoreboardEntry struct {
	Submission domain.Submission      `json:"submission"`
	Aggregate  domain.AggregateResult `json:"aggregate"`

	// Selectable reports whether the row may be picked for a batch
	// advance or admit. Rows that fail quorum or have no trusted aggregate
	// are listed but not selectable.
	Selectable bool `json:"selectable"`
}

// Scoreboard returns the aggregate for every submitted submission sitting
// at the given step, best average first. Unscored rows sort last and ties
// are broken by submission id. All rows come from one snapshot read.
func (e *Engine) Scoreboard(ctx context.Context, applicationID, stepID string) (entries []ScoreboardEntry, err error) {
	ctx, span := e.tracer.Start(ctx, "Engine.Scoreboard", trace.WithAttributes(
		attribute.String("application.id", applicationID),
		attribute.String("step.id", stepID),
	))
	defer span.End()
	start := time.Now()
	defer func() { e.observe(span, "scoreboard", start, err) }()

	var stepNumber int
	err = e.withTx(ctx, "scoreboard", func(ctx context.Context, tx ports.Tx) error {
		app, err := tx.GetApplication(ctx, applicationID)
		if err != nil {
			return err
		}
		step, err := tx.GetStep(ctx, stepID)
		if err != nil {
			return err
		}
		stepNumber = step.StepNumber
		if step.ApplicationID != app.ID {
			return &domain.ConflictError{Entity: "step", ID: stepID, Reason: domain.ReasonWrongApplication,
				Detail: "step belongs to a different application"}
		}

		subs, err := tx.ListSubmissions(ctx, app.ID)
		if err != nil {
			return err
		}
		records, err := tx.ListScoresForStep(ctx, step.ID)
		if err != nil {
			return err
		}
		judges, err := tx.CountEligibleEvaluators(ctx, app.ID, step.StepNumber)
		if err != nil {
			return err
		}

		bySub := make(map[string][]domain.ScoreRecord)
		for _, r := range records {
			bySub[r.SubmissionID] = append(bySub[r.SubmissionID], r)
		}

		rows := make([]domain.Submission, 0, len(subs))
		for _, s := range subs {
			if s.CurrentStep == step.StepNumber && s.Status != domain.StatusDraft {
				rows = append(rows, s)
			}
		}

		cutoffs := e.cutoffsFor(app)
		entries = make([]ScoreboardEntry, len(rows))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.config.Scoreboard.Concurrency)
		for i, sub := range rows {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				agg := scoring.Evaluate(scoring.Input{
					SubmissionID: sub.ID,
					Step:         step,
					Records:      bySub[sub.ID],
					TotalJudges:  judges,
					Cutoffs:      cutoffs,
				})
				entries[i] = ScoreboardEntry{
					Submission: sub,
					Aggregate:  agg,
					Selectable: agg.Valid && agg.MeetsEvaluatorRequirement && inPipeline(sub.Status),
				}
				return nil
			})
		}
		return g.Wait()
	})
	if err != nil {
		return nil, err
	}

	sortScoreboard(entries)
	e.metrics.RecordGauge("scoreboard_size", float64(len(entries)), map[string]string{"step": domain.StepKey(stepNumber)})
	return entries, nil
}

func inPipeline(s domain.SubmissionStatus) bool {
	return s == domain.StatusSubmitted || s == domain.StatusUnderReview
}

func sortScoreboard(entries []ScoreboardEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].Aggregate.AverageScore, entries[j].Aggregate.AverageScore
		switch {
		case a == nil && b != nil:
			return false
		case a != nil && b == nil:
			return true
		case a != nil && b != nil && *a != *b:
			return *a > *b
		}
		return entries[i].Submission.ID < entries[j].Submission.ID
	})
}
