package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-cohort/internal/application"
	"github.com/ahrav/go-cohort/internal/payload"
)

func newDemoDayCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demoday",
		Short: "Demo-day judging",
	}
	cmd.AddCommand(newDemoDayScoreCmd(opts), newDemoDayLeaderboardCmd(opts))
	return cmd
}

func newDemoDayScoreCmd(opts *options) *cobra.Command {
	var submissionID, scores, feedback, notes string

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Record the actor's judge scores for a demo-day project",
		RunE: run(opts, func(ctx context.Context, rt *runtime, _ []string) (any, error) {
			values, err := payload.Scores([]byte(scores))
			if err != nil {
				return nil, err
			}
			return rt.engine.SubmitDemoDayScore(ctx, rt.opts.authorization(), application.DemoDayScoreInput{
				SubmissionID: submissionID,
				Scores:       values,
				Feedback:     feedback,
				Notes:        notes,
			})
		}),
	}
	cmd.Flags().StringVarP(&submissionID, "submission", "s", "", "Demo-day submission id (required)")
	cmd.Flags().StringVar(&scores, "scores", "", "JSON object of criterion key to raw score (required)")
	cmd.Flags().StringVar(&feedback, "feedback", "", "Feedback for the team")
	cmd.Flags().StringVar(&notes, "notes", "", "Private judge notes")
	markRequired(cmd, "submission", "scores")
	return cmd
}

func newDemoDayLeaderboardCmd(opts *options) *cobra.Command {
	var eventID string

	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Rank an event's projects by average judge total",
		RunE: run(opts, func(ctx context.Context, rt *runtime, _ []string) (any, error) {
			return rt.engine.DemoDayLeaderboard(ctx, eventID)
		}),
	}
	cmd.Flags().StringVarP(&eventID, "event", "e", "", "Demo-day event id (required)")
	markRequired(cmd, "event")
	return cmd
}
