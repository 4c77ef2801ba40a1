package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-cohort/internal/application"
	"github.com/ahrav/go-cohort/internal/payload"
)

func newSubmitCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <submission-id>",
		Short: "Move a draft submission to SUBMITTED",
		Args:  cobra.ExactArgs(1),
		RunE: run(opts, func(ctx context.Context, rt *runtime, args []string) (any, error) {
			return rt.engine.Submit(ctx, rt.opts.authorization(), args[0])
		}),
	}
}

func newScoreCmd(opts *options) *cobra.Command {
	var (
		applicationID string
		submissionID  string
		stepRef       string
		scores        string
		feedback      string
		notes         string
	)

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Record the actor's scores for a submission at a step",
		Long: "Scores are a JSON object of criterion id to raw value, for example " +
			`'{"team": 8, "market": "7"}'. Repeating the command overwrites the actor's earlier scores.`,
		RunE: run(opts, func(ctx context.Context, rt *runtime, _ []string) (any, error) {
			values, err := payload.Scores([]byte(scores))
			if err != nil {
				return nil, err
			}
			step, err := rt.resolveStep(ctx, applicationID, stepRef)
			if err != nil {
				return nil, err
			}
			return rt.engine.SubmitScore(ctx, rt.opts.authorization(), application.ScoreInput{
				SubmissionID: submissionID,
				StepID:       step.ID,
				Scores:       values,
				Feedback:     feedback,
				Notes:        notes,
			})
		}),
	}
	cmd.Flags().StringVarP(&applicationID, "application", "a", "", "Application id (required)")
	cmd.Flags().StringVarP(&submissionID, "submission", "s", "", "Submission id (required)")
	cmd.Flags().StringVar(&stepRef, "step", "", "Step id or step number (required)")
	cmd.Flags().StringVar(&scores, "scores", "", "JSON object of criterion id to raw score (required)")
	cmd.Flags().StringVar(&feedback, "feedback", "", "Feedback shared with the applicant")
	cmd.Flags().StringVar(&notes, "notes", "", "Private evaluator notes")
	markRequired(cmd, "application", "submission", "step", "scores")
	return cmd
}

func newAggregateCmd(opts *options) *cobra.Command {
	var applicationID, submissionID, stepRef string

	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Compute the aggregate verdict for a submission at a step",
		RunE: run(opts, func(ctx context.Context, rt *runtime, _ []string) (any, error) {
			step, err := rt.resolveStep(ctx, applicationID, stepRef)
			if err != nil {
				return nil, err
			}
			return rt.engine.Aggregate(ctx, submissionID, step.ID)
		}),
	}
	cmd.Flags().StringVarP(&applicationID, "application", "a", "", "Application id (required)")
	cmd.Flags().StringVarP(&submissionID, "submission", "s", "", "Submission id (required)")
	cmd.Flags().StringVar(&stepRef, "step", "", "Step id or step number (required)")
	markRequired(cmd, "application", "submission", "step")
	return cmd
}

func newScoreboardCmd(opts *options) *cobra.Command {
	var applicationID, stepRef string

	cmd := &cobra.Command{
		Use:   "scoreboard",
		Short: "Rank every submission at a step by average score",
		RunE: run(opts, func(ctx context.Context, rt *runtime, _ []string) (any, error) {
			step, err := rt.resolveStep(ctx, applicationID, stepRef)
			if err != nil {
				return nil, err
			}
			return rt.engine.Scoreboard(ctx, applicationID, step.ID)
		}),
	}
	cmd.Flags().StringVarP(&applicationID, "application", "a", "", "Application id (required)")
	cmd.Flags().StringVar(&stepRef, "step", "", "Step id or step number (required)")
	markRequired(cmd, "application", "step")
	return cmd
}
