// Package cli implements the german-ocr command line tool on top of the ocr
// client.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"german-ocr/internal/shared/telemetry"
	"german-ocr/ocr"
)

// Exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

// usageError marks a problem with the command line itself.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return usageError{err: fmt.Errorf(format, args...)}
}

// errReported is returned when the command already printed why it failed.
var errReported = errors.New("failure reported")

type rootOptions struct {
	apiKey    string
	apiSecret string
	baseURL   string
	logLevel  string

	stdout io.Writer
	stderr io.Writer
}

// Execute runs the CLI and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCommand(stdout, stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	code := ExitCode(err)
	if err != nil && !errors.Is(err, errReported) {
		fmt.Fprintf(stderr, "error: %v\n", err)
		if code == ExitUsage {
			fmt.Fprintf(stderr, "run '%s --help' for usage\n", root.Name())
		}
	}
	return code
}

// ExitCode maps a command error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ue usageError
	if errors.As(err, &ue) {
		return ExitUsage
	}
	return ExitFailure
}

// NewRootCommand builds the command tree writing to stdout and stderr.
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{stdout: stdout, stderr: stderr}
	root := &cobra.Command{
		Use:           "german-ocr",
		Short:         "Extract text from German documents with the German-OCR API",
		Version:       ocr.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          usageArgs(cobra.NoArgs),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			telemetry.SetOutput(stderr)
			telemetry.SetLevel(opts.logLevel)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return usagef("a command is required")
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err: err}
	})

	pf := root.PersistentFlags()
	pf.StringVar(&opts.apiKey, "api-key", "", "API key (default $"+ocr.EnvAPIKey+")")
	pf.StringVar(&opts.apiSecret, "api-secret", "", "API secret (default $"+ocr.EnvAPISecret+")")
	pf.StringVar(&opts.baseURL, "base-url", "", "API root (default $"+ocr.EnvBaseURL+" or "+ocr.DefaultBaseURL+")")
	pf.StringVar(&opts.logLevel, "log-level", "warn", "log level on stderr: debug, info, warn, error")

	root.AddCommand(
		newAnalyzeCommand(opts),
		newStatusCommand(opts),
		newBatchCommand(opts),
	)
	return root
}

func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return usageError{err: err}
		}
		return nil
	}
}

// client resolves credentials from flags and environment and builds a
// client. extra options are applied last.
func (o *rootOptions) client(extra ...ocr.Option) (*ocr.Client, error) {
	creds, err := ocr.ResolveCredentials(o.apiKey, o.apiSecret)
	if err != nil {
		return nil, err
	}
	opts := []ocr.Option{
		ocr.WithUserAgent("german-ocr-cli/" + ocr.Version),
		ocr.WithStatusHook(func(job ocr.Job) {
			telemetry.Debug("job.status", map[string]any{"job_id": job.ID, "status": job.Status})
		}),
	}
	if base := strings.TrimSpace(o.baseURL); base != "" {
		opts = append(opts, ocr.WithBaseURL(base))
	}
	return ocr.NewClient(creds, append(opts, extra...)...)
}

func parseModelFlag(raw string) (ocr.Model, error) {
	m, err := ocr.ParseModel(raw)
	if err != nil {
		return "", usagef("--model: %v", err)
	}
	return m, nil
}
