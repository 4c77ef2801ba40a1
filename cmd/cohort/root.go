package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/ahrav/go-cohort/infrastructure/middleware"
	"github.com/ahrav/go-cohort/infrastructure/store/memory"
	"github.com/ahrav/go-cohort/infrastructure/store/postgres"
	"github.com/ahrav/go-cohort/internal/application"
	"github.com/ahrav/go-cohort/internal/domain"
	"github.com/ahrav/go-cohort/internal/ports"
)

// options holds the persistent flags shared by every subcommand.
type options struct {
	configPath   string
	databaseURL  string
	fixturesPath string
	actor        string
	capabilities []string
	logFormat    string
	logLevel     string
	metricsOut   string
}

// runtime is the engine and its collaborators for one invocation.
type runtime struct {
	engine   *application.Engine
	registry *prometheus.Registry
	close    func()
	opts     *options
	out      io.Writer
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "cohort",
		Short: "Accelerator-program evaluation engine",
		Long: "cohort configures evaluation steps, records evaluator and demo-day judge scores, " +
			"computes aggregates and scoreboards, and runs batch stage transitions.",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", os.Getenv("COHORT_CONFIG"), "Path to engine YAML configuration")
	flags.StringVar(&opts.databaseURL, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string; empty uses an in-memory store")
	flags.StringVar(&opts.fixturesPath, "fixtures", "", "YAML fixtures to seed into the in-memory store before running")
	flags.StringVar(&opts.actor, "actor", "operator", "Actor id recorded on decisions and used as evaluator id")
	flags.StringSliceVar(&opts.capabilities, "capabilities", capabilityNames(domain.AllCapabilities), "Capabilities granted to the actor")
	flags.StringVar(&opts.logFormat, "log-format", "text", "Log format: text or json")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "Log level: debug, info, warn or error")
	flags.StringVar(&opts.metricsOut, "metrics-out", "", "Write collected Prometheus metrics to this file on exit")

	root.AddCommand(
		newMigrateCmd(opts),
		newSeedCmd(opts),
		newSetupStepsCmd(opts),
		newStepsCmd(opts),
		newSubmitCmd(opts),
		newScoreCmd(opts),
		newAggregateCmd(opts),
		newScoreboardCmd(opts),
		newAdvanceCmd(opts),
		newAdmitCmd(opts),
		newBatchOverrideCmd(opts, "reject", "Reject submissions regardless of scores", (*application.Engine).BulkReject),
		newBatchOverrideCmd(opts, "waitlist", "Waitlist non-terminal submissions", (*application.Engine).Waitlist),
		newDemoDayCmd(opts),
	)
	return root
}

func capabilityNames(caps []domain.Capability) []string {
	names := make([]string, len(caps))
	for i, c := range caps {
		names[i] = string(c)
	}
	return names
}

func (o *options) authorization() domain.Authorization {
	caps := make([]domain.Capability, 0, len(o.capabilities))
	for _, c := range o.capabilities {
		caps = append(caps, domain.Capability(strings.TrimSpace(c)))
	}
	return domain.Grant(o.actor, caps...)
}

func newLogger(w io.Writer, format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	handlerOpts := &slog.HandlerOptions{Level: lvl}
	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(w, handlerOpts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, handlerOpts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q: must be text or json", format)
	}
}

// openStore connects to PostgreSQL when a database URL is configured and
// otherwise returns an empty in-memory store.
func openStore(ctx context.Context, opts *options, logger *slog.Logger) (ports.Store, func(), error) {
	if opts.databaseURL == "" {
		logger.Info("no database configured, using in-memory store")
		return memory.New(), func() {}, nil
	}
	if opts.fixturesPath != "" {
		return nil, nil, ports.NewConfigError("fixtures", errors.New("--fixtures is only supported with the in-memory store"))
	}
	store, err := postgres.Connect(ctx, opts.databaseURL)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

// setup builds the runtime for a subcommand. The in-memory store is seeded
// from --fixtures before it is returned.
func setup(cmd *cobra.Command, opts *options) (*runtime, error) {
	ctx := cmd.Context()

	logger, err := newLogger(cmd.ErrOrStderr(), opts.logFormat, opts.logLevel)
	if err != nil {
		return nil, err
	}

	cfg := application.DefaultConfig()
	if opts.configPath != "" {
		if cfg, err = application.LoadConfig(opts.configPath); err != nil {
			return nil, err
		}
	}

	store, closeStore, err := openStore(ctx, opts, logger)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	metrics := middleware.NewPrometheusMetrics(registry)
	engine, err := application.NewEngine(store,
		application.WithConfig(cfg),
		application.WithLogger(logger),
		application.WithMetrics(metrics),
		application.WithObserver(middleware.NewOTelBatchObserver(metrics, nil)),
	)
	if err != nil {
		closeStore()
		return nil, err
	}

	rt := &runtime{engine: engine, registry: registry, close: closeStore, opts: opts, out: cmd.OutOrStdout()}
	if opts.fixturesPath != "" {
		// Fixtures bootstrap a scratch store, so they load regardless of
		// the capabilities granted for the command itself.
		if _, err := rt.seed(ctx, opts.fixturesPath, domain.Grant(opts.actor, domain.CapabilityConfigure)); err != nil {
			closeStore()
			return nil, err
		}
	}
	return rt, nil
}

func (rt *runtime) seed(ctx context.Context, path string, auth domain.Authorization) (application.SeedReport, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return application.SeedReport{}, fmt.Errorf("failed to open fixtures %s: %w", path, err)
	}
	defer f.Close()

	fx, err := application.LoadFixtures(f)
	if err != nil {
		return application.SeedReport{}, err
	}
	return rt.engine.Seed(ctx, auth, fx)
}

// finish writes collected metrics when requested and releases the store.
func (rt *runtime) finish() error {
	defer rt.close()
	if rt.opts.metricsOut == "" {
		return nil
	}

	families, err := rt.registry.Gather()
	if err != nil {
		return ports.NewMetricsError("*", "Gather", err)
	}
	f, err := os.Create(filepath.Clean(rt.opts.metricsOut))
	if err != nil {
		return fmt.Errorf("failed to create metrics file: %w", err)
	}
	defer f.Close()

	enc := expfmt.NewEncoder(f, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return ports.NewMetricsError(mf.GetName(), "Encode", err)
		}
	}
	return nil
}

// run wraps a subcommand body with runtime setup and teardown and prints
// its result as indented JSON.
func run(opts *options, body func(ctx context.Context, rt *runtime, args []string) (any, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		rt, err := setup(cmd, opts)
		if err != nil {
			return err
		}
		result, err := body(cmd.Context(), rt, args)
		if ferr := rt.finish(); err == nil {
			err = ferr
		}
		if err != nil {
			return fmt.Errorf("%s: %w", domain.ReasonOf(err), err)
		}
		return printJSON(rt.out, result)
	}
}

func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

// resolveStep accepts either a step id or a step number and returns the
// matching step of the application.
func (rt *runtime) resolveStep(ctx context.Context, applicationID, ref string) (domain.EvaluationStep, error) {
	steps, err := rt.engine.Steps(ctx, applicationID)
	if err != nil {
		return domain.EvaluationStep{}, err
	}
	number, numErr := strconv.Atoi(ref)
	for _, s := range steps {
		if s.ID == ref || (numErr == nil && s.StepNumber == number) {
			return s, nil
		}
	}
	return domain.EvaluationStep{}, domain.NewNotFoundError("step", ref)
}

func markRequired(cmd *cobra.Command, names ...string) {
	for _, name := range names {
		if err := cmd.MarkFlagRequired(name); err != nil {
			panic(fmt.Sprintf("failed to mark %s flag as required: %v", name, err))
		}
	}
}
