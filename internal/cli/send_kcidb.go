package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/kcibridge/internal/bridge"
	"github.com/roach88/kcibridge/internal/channel"
	"github.com/roach88/kcibridge/internal/config"
	"github.com/roach88/kcibridge/internal/kcidb"
)

// SendKCIDBOptions holds flags for the send-kcidb command.
type SendKCIDBOptions struct {
	*RootOptions
	Origin    string
	ProjectID string
	TopicName string
	DryRun    bool
	Input     string

	// Channel overrides the node source (for testing).
	Channel channel.Channel

	// Sink overrides the KCIDB destination (for testing).
	Sink kcidb.Sink
}

// NewSendKCIDBCommand creates the send-kcidb command.
func NewSendKCIDBCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SendKCIDBOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "send-kcidb",
		Short: "Submit completed checkouts to KCIDB",
		Long: `Listen for completed checkout nodes and submit them to KCIDB.

Each checkout becomes a KCIDB v4 revision. Revisions that fail schema
validation are logged and dropped. With --dry-run, revisions are printed as
JSON lines instead of being published.

Example:
  kcibridge send-kcidb --origin kernelci --kcidb-project-id kernelci-prod --kcidb-topic-name playground_kcidb_new
  kcibridge send-kcidb --origin kernelci --dry-run --input nodes.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSendKCIDB(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Origin, "origin", "", "CI system identifier, overrides config")
	cmd.Flags().StringVar(&opts.ProjectID, "kcidb-project-id", "", "KCIDB project ID, overrides config")
	cmd.Flags().StringVar(&opts.TopicName, "kcidb-topic-name", "", "KCIDB topic name, overrides config")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "print revisions instead of publishing them")
	cmd.Flags().StringVar(&opts.Input, "input", "", "replay nodes from a YAML/JSON file instead of the live stream")

	return cmd
}

func runSendKCIDB(opts *SendKCIDBOptions, cmd *cobra.Command) error {
	rt, err := newRuntime(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer rt.close()
	logger := rt.logger
	cfg := rt.cfg

	if opts.Origin != "" {
		cfg.Origin = opts.Origin
	}
	if opts.ProjectID != "" {
		cfg.KCIDB.ProjectID = opts.ProjectID
	}
	if opts.TopicName != "" {
		cfg.KCIDB.TopicName = opts.TopicName
	}

	var errs config.ValidationErrors
	errs = append(errs, cfg.Validate()...)
	if !opts.DryRun && opts.Sink == nil {
		errs = append(errs, cfg.ValidateKCIDB()...)
	} else if cfg.Origin == "" {
		errs = append(errs, config.ValidationError{Field: "origin", Value: "", Message: "is required"})
	}
	if len(errs) > 0 {
		return WrapExitError(ExitCommandError, "invalid configuration", errs)
	}

	validator, err := kcidb.NewValidator()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load KCIDB schema", err)
	}

	ctx, cancel := signalContext(cmd, logger)
	defer cancel()

	ch, streamConn, err := rt.openStream(opts.Input, opts.Channel)
	if err != nil {
		return err
	}

	sink := opts.Sink
	switch {
	case sink != nil:
	case opts.DryRun:
		sink = kcidb.NewWriterSink(cmd.OutOrStdout())
	default:
		nc := streamConn
		if nc == nil || (cfg.KCIDB.URL != "" && cfg.KCIDB.URL != cfg.Channel.URL) {
			url := cfg.KCIDB.URL
			if url == "" {
				url = cfg.Channel.URL
			}
			nc, err = rt.dial(url)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to connect to KCIDB broker", err)
			}
		}
		sink = kcidb.NewNATSSink(nc, cfg.KCIDB.ProjectID, cfg.KCIDB.TopicName,
			kcidb.WithFlushTimeout(cfg.KCIDB.FlushTimeout))
		logger.Info("publishing revisions", "subject", kcidb.Subject(cfg.KCIDB.ProjectID, cfg.KCIDB.TopicName))
	}

	metrics, err := bridge.NewMetrics(rt.registry, "send_kcidb")
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to register metrics", err)
	}

	transformer := kcidb.Transformer{Origin: cfg.Origin, Submitter: cfg.KCIDB.Submitter}
	b := bridge.New(ch, bridge.KCIDBFilter,
		bridge.NewKCIDBHandler(transformer, validator, sink, logger, metrics),
		bridge.WithName("send_kcidb"),
		bridge.WithLogger(logger),
		bridge.WithMetrics(metrics),
		bridge.WithTracer(rt.tracer),
	)

	if !opts.DryRun {
		listenBanner(cmd.OutOrStdout(), "KCIDB bridge")
	}
	if err := b.Run(ctx); err != nil {
		return WrapExitError(ExitFailure, "KCIDB bridge stopped", err)
	}

	logger.Info("KCIDB bridge stopped gracefully")
	return nil
}
