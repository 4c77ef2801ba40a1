package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-cohort/infrastructure/store/postgres"
	"github.com/ahrav/go-cohort/internal/application"
	"github.com/ahrav/go-cohort/internal/ports"
)

func newMigrateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the PostgreSQL schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.databaseURL == "" {
				return ports.NewConfigError("DATABASE_URL", fmt.Errorf("%w: migrate requires --database-url", ports.ErrConfigNotFound))
			}
			store, err := postgres.Connect(cmd.Context(), opts.databaseURL)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Migrate(cmd.Context()); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]string{"status": "migrated"})
		},
	}
}

func newSeedCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed <fixtures.yaml>",
		Short: "Load applications, steps, submissions and demo-day events from a fixture file",
		Args:  cobra.ExactArgs(1),
		RunE: run(opts, func(ctx context.Context, rt *runtime, args []string) (any, error) {
			return rt.seed(ctx, args[0], rt.opts.authorization())
		}),
	}
	return cmd
}

// stepsFile is the document setup-steps reads.
type stepsFile struct {
	Step1 application.StepInput `yaml:"step1"`
	Step2 application.StepInput `yaml:"step2"`
}

func newSetupStepsCmd(opts *options) *cobra.Command {
	var applicationID, file string

	cmd := &cobra.Command{
		Use:   "setup-steps",
		Short: "Create an application's two evaluation steps",
		Long:  "Reads a YAML document with step1 and step2 entries and creates both steps atomically.",
		RunE: run(opts, func(ctx context.Context, rt *runtime, _ []string) (any, error) {
			data, err := os.ReadFile(filepath.Clean(file))
			if err != nil {
				return nil, fmt.Errorf("failed to read steps file %s: %w", file, err)
			}
			var doc stepsFile
			if err := yaml.Unmarshal(data, &doc); err != nil {
				return nil, fmt.Errorf("failed to parse steps file: %w", err)
			}
			return rt.engine.SetupSteps(ctx, rt.opts.authorization(), applicationID, doc.Step1, doc.Step2)
		}),
	}
	cmd.Flags().StringVarP(&applicationID, "application", "a", "", "Application id (required)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to steps YAML (required)")
	markRequired(cmd, "application", "file")
	return cmd
}

func newStepsCmd(opts *options) *cobra.Command {
	var applicationID string

	cmd := &cobra.Command{
		Use:   "steps",
		Short: "List an application's evaluation steps",
		RunE: run(opts, func(ctx context.Context, rt *runtime, _ []string) (any, error) {
			return rt.engine.Steps(ctx, applicationID)
		}),
	}
	cmd.Flags().StringVarP(&applicationID, "application", "a", "", "Application id (required)")
	markRequired(cmd, "application")
	return cmd
}
