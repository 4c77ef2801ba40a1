package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-cohort/internal/application"
	"github.com/ahrav/go-cohort/internal/domain"
)

// batchFunc is the shape shared by the override transitions.
type batchFunc func(e *application.Engine, ctx context.Context, auth domain.Authorization, applicationID string, ids []string) (domain.BatchResult, error)

func newAdvanceCmd(opts *options) *cobra.Command {
	var applicationID, stepRef string

	cmd := &cobra.Command{
		Use:   "advance <submission-id>...",
		Short: "Advance submissions that passed the given step",
		Args:  cobra.MinimumNArgs(1),
		RunE: run(opts, func(ctx context.Context, rt *runtime, args []string) (any, error) {
			step, err := rt.resolveStep(ctx, applicationID, stepRef)
			if err != nil {
				return nil, err
			}
			return rt.engine.Advance(ctx, rt.opts.authorization(), applicationID, step.ID, args)
		}),
	}
	cmd.Flags().StringVarP(&applicationID, "application", "a", "", "Application id (required)")
	cmd.Flags().StringVar(&stepRef, "step", "", "Step id or step number (required)")
	markRequired(cmd, "application", "step")
	return cmd
}

func newAdmitCmd(opts *options) *cobra.Command {
	var applicationID string

	cmd := &cobra.Command{
		Use:   "admit <submission-id>...",
		Short: "Accept submissions at the final step",
		Args:  cobra.MinimumNArgs(1),
		RunE: run(opts, func(ctx context.Context, rt *runtime, args []string) (any, error) {
			return rt.engine.Admit(ctx, rt.opts.authorization(), applicationID, args)
		}),
	}
	cmd.Flags().StringVarP(&applicationID, "application", "a", "", "Application id (required)")
	markRequired(cmd, "application")
	return cmd
}

func newBatchOverrideCmd(opts *options, use, short string, fn batchFunc) *cobra.Command {
	var applicationID string

	cmd := &cobra.Command{
		Use:   use + " <submission-id>...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: run(opts, func(ctx context.Context, rt *runtime, args []string) (any, error) {
			return fn(rt.engine, ctx, rt.opts.authorization(), applicationID, args)
		}),
	}
	cmd.Flags().StringVarP(&applicationID, "application", "a", "", "Application id (required)")
	markRequired(cmd, "application")
	return cmd
}
