package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath  string
	Verbose     bool
	Format      string // "json" | "text", output of validate
	LogFormat   string // "json" | "text", overrides logging.format
	MetricsAddr string // overrides metrics.addr
	TraceFile   string // overrides tracing.file
}

// ValidFormats defines the allowed output and log formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the kcibridge CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "kcibridge",
		Short: "Bridge KernelCI node events to regressions and KCIDB",
		Long: `kcibridge consumes the KernelCI node notification stream.

regression-tracker groups pass and fail results of the same test into
regressions. send-kcidb turns completed checkouts into KCIDB revisions and
submits the ones that pass schema validation.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return WrapExitError(ExitCommandError, "invalid flag",
					fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if opts.LogFormat != "" && !slices.Contains(ValidFormats, opts.LogFormat) {
				return WrapExitError(ExitCommandError, "invalid flag",
					fmt.Errorf("invalid log format %q: must be one of %v", opts.LogFormat, ValidFormats))
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output and debug logging")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "", "log format (json|text), overrides config")
	cmd.PersistentFlags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, overrides config")
	cmd.PersistentFlags().StringVar(&opts.TraceFile, "trace-file", "", "write spans as JSON to this file, overrides config")

	// Add subcommands
	cmd.AddCommand(NewRegressionTrackerCommand(opts))
	cmd.AddCommand(NewSendKCIDBCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))

	return cmd
}
