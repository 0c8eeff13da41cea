package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/kcibridge/internal/bridge"
	"github.com/roach88/kcibridge/internal/channel"
	"github.com/roach88/kcibridge/internal/store"
	"github.com/roach88/kcibridge/internal/tracker"
)

// TrackerOptions holds flags for the regression-tracker command.
type TrackerOptions struct {
	*RootOptions
	DBConfig string
	Input    string

	// Channel overrides the node source (for testing).
	Channel channel.Channel

	// IDGenerator allows overriding regression ids (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDGenerator tracker.IDGenerator
}

// NewRegressionTrackerCommand creates the regression-tracker command.
func NewRegressionTrackerCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TrackerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "regression-tracker",
		Short: "Group pass and fail results into regressions",
		Long: `Listen for completed nodes and maintain regressions.

A pass result for a test with no regression opens one. A fail result for a
test with a regression appends the node to it. Regressions are stored in the
database selected by --db-config.

Example:
  kcibridge regression-tracker --config kcibridge.yaml --db-config staging
  kcibridge regression-tracker --db-config default --input nodes.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegressionTracker(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DBConfig, "db-config", "default", "name of the database config in db_configs")
	cmd.Flags().StringVar(&opts.Input, "input", "", "replay nodes from a YAML/JSON file instead of the live stream")

	return cmd
}

func runRegressionTracker(opts *TrackerOptions, cmd *cobra.Command) error {
	rt, err := newRuntime(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer rt.close()
	logger := rt.logger

	db, err := rt.cfg.DB(opts.DBConfig)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --db-config", err)
	}

	logger.Info("opening database", "config", opts.DBConfig, "type", db.Type, "path", db.Path)
	st, err := store.OpenBackend(db.Type, db.Path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	ctx, cancel := signalContext(cmd, logger)
	defer cancel()

	trackerOpts := []tracker.Option{}
	if opts.IDGenerator != nil {
		trackerOpts = append(trackerOpts, tracker.WithIDGenerator(opts.IDGenerator))
	}
	tr, err := tracker.New(ctx, st, trackerOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize tracker", err)
	}

	ch, _, err := rt.openStream(opts.Input, opts.Channel)
	if err != nil {
		return err
	}

	metrics, err := bridge.NewMetrics(rt.registry, "regression_tracker")
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to register metrics", err)
	}

	b := bridge.New(ch, bridge.TrackerFilter,
		bridge.NewTrackerHandler(tr, logger, metrics),
		bridge.WithName("regression_tracker"),
		bridge.WithLogger(logger),
		bridge.WithMetrics(metrics),
		bridge.WithTracer(rt.tracer),
	)

	listenBanner(cmd.OutOrStdout(), "Regression tracker")
	if err := b.Run(ctx); err != nil {
		return WrapExitError(ExitFailure, "regression tracker stopped", err)
	}

	logger.Info("regression tracker stopped gracefully")
	return nil
}
