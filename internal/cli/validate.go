package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/kcibridge/internal/bridge"
	"github.com/roach88/kcibridge/internal/channel"
	"github.com/roach88/kcibridge/internal/config"
	"github.com/roach88/kcibridge/internal/kcidb"
	"github.com/roach88/kcibridge/internal/node"
)

// Record statuses reported by validate.
const (
	StatusValid     = "valid"
	StatusInvalid   = "invalid"
	StatusMalformed = "malformed"
	StatusSkipped   = "skipped"
)

// RecordResult is the validate outcome for one input record.
type RecordResult struct {
	Index    int    `json:"index"`
	NodeID   string `json:"node_id,omitempty"`
	Status   string `json:"status"`
	Code     string `json:"code,omitempty"`
	Message  string `json:"message,omitempty"`
	Checkout string `json:"checkout,omitempty"`
}

// ValidationReport holds the results for a whole file.
type ValidationReport struct {
	File      string         `json:"file"`
	Records   []RecordResult `json:"records"`
	Valid     int            `json:"valid"`
	Invalid   int            `json:"invalid"`
	Malformed int            `json:"malformed"`
	Skipped   int            `json:"skipped"`
}

// OK reports whether no record was rejected.
func (r *ValidationReport) OK() bool {
	return r.Invalid == 0 && r.Malformed == 0
}

// String renders the report for text output.
func (r *ValidationReport) String() string {
	var sb strings.Builder
	for _, rec := range r.Records {
		id := rec.NodeID
		if id == "" {
			id = fmt.Sprintf("#%d", rec.Index)
		}
		switch rec.Status {
		case StatusValid:
			fmt.Fprintf(&sb, "ok       %s -> %s\n", id, rec.Checkout)
		case StatusSkipped:
			fmt.Fprintf(&sb, "skipped  %s: %s\n", id, rec.Message)
		default:
			fmt.Fprintf(&sb, "%-8s %s [%s]: %s\n", rec.Status, id, rec.Code, rec.Message)
		}
	}
	fmt.Fprintf(&sb, "%s: %d valid, %d invalid, %d malformed, %d skipped",
		r.File, r.Valid, r.Invalid, r.Malformed, r.Skipped)
	return sb.String()
}

// defaultValidateOrigin is used when neither --origin nor the config sets one.
const defaultValidateOrigin = "kernelci"

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Origin string
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <nodes-file>",
		Short: "Check which checkout nodes would be forwarded to KCIDB",
		Long: `Run the KCIDB transformer and schema validator over a node file.

The file holds a YAML or JSON list of node records. Completed checkouts are
transformed and validated; other nodes are reported as skipped. Nothing is
published. Exits 1 if any record is malformed or invalid.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Origin, "origin", "", "CI system identifier used to build checkout ids, overrides config (default \"kernelci\")")

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	transformer := kcidb.Transformer{Origin: cfg.Origin, Submitter: cfg.KCIDB.Submitter}
	if opts.Origin != "" {
		transformer.Origin = opts.Origin
	}
	if transformer.Origin == "" {
		transformer.Origin = defaultValidateOrigin
	}

	fc, err := channel.LoadFile(path)
	if err != nil {
		code := ErrCodeParse
		if errors.Is(err, os.ErrNotExist) {
			code = ErrCodeNotFound
		}
		_ = formatter.Error(code, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load nodes", err)
	}
	formatter.VerboseLog("Loaded %d record(s) from %s", fc.Len(), path)

	validator, err := kcidb.NewValidator()
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load KCIDB schema", err)
	}

	report, err := validateRecords(cmd.Context(), fc, transformer, validator, formatter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read nodes", err)
	}
	report.File = path

	if err := formatter.Success(report); err != nil {
		return err
	}
	if !report.OK() {
		return NewExitError(ExitFailure, fmt.Sprintf("%d record(s) rejected", report.Invalid+report.Malformed))
	}
	return nil
}

func validateRecords(ctx context.Context, fc *channel.FileChannel, t kcidb.Transformer, v *kcidb.Validator, formatter *OutputFormatter) (*ValidationReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	sub, err := fc.Subscribe(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer sub.Unsubscribe()

	report := &ValidationReport{Records: []RecordResult{}}
	for i := 0; ; i++ {
		n, err := sub.Receive(ctx)
		if errors.Is(err, channel.ErrClosed) {
			return report, nil
		}

		res := RecordResult{Index: i}
		var malformed *channel.MalformedError
		switch {
		case errors.As(err, &malformed):
			res.Status, res.Code, res.Message = StatusMalformed, ErrCodeMalformed, malformed.Err.Error()
			report.Malformed++
		case err != nil:
			return nil, err
		case !bridge.KCIDBFilter.Matches(n):
			res.NodeID = n.ID
			res.Status, res.Message = StatusSkipped, "not a completed checkout"
			report.Skipped++
		default:
			res.NodeID = n.ID
			res = checkCheckout(res, t, v, n)
			if res.Status == StatusValid {
				report.Valid++
			} else {
				report.Invalid++
			}
		}

		formatter.VerboseLog("record %d: %s", i, res.Status)
		report.Records = append(report.Records, res)
	}
}

// checkCheckout runs the transformer and schema validator over one
// completed checkout.
func checkCheckout(res RecordResult, t kcidb.Transformer, v *kcidb.Validator, n node.Node) RecordResult {
	rev, err := t.Transform(n)
	if err != nil {
		res.Status, res.Code, res.Message = StatusInvalid, ErrCodeTransform, err.Error()
		return res
	}

	if err := v.Validate(rev); err != nil {
		msg := err.Error()
		var schemaErr *kcidb.SchemaError
		if errors.As(err, &schemaErr) && schemaErr.Details != "" {
			msg = strings.TrimSpace(schemaErr.Details)
		}
		res.Status, res.Code, res.Message = StatusInvalid, ErrCodeSchema, msg
		return res
	}

	res.Status = StatusValid
	res.Checkout = rev.CheckoutID()
	return res
}
