package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"german-ocr/ocr"
)

type analyzeOptions struct {
	prompt       string
	model        string
	outputFormat string
	noWait       bool
	json         bool
	schema       string
	interval     time.Duration
	maxAttempts  int
	exponential  bool
}

func newAnalyzeCommand(root *rootOptions) *cobra.Command {
	o := &analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Analyze one document and print the extracted text",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, root, o, args[0])
		},
	}
	f := cmd.Flags()
	f.StringVarP(&o.prompt, "prompt", "p", "", "instruction for the model, e.g. \"Extrahiere die Rechnungsnummer\"")
	f.StringVarP(&o.model, "model", "m", "", "model: local, cloud_fast or cloud (default cloud_fast)")
	f.StringVarP(&o.outputFormat, "output-format", "f", "", "output format: text, json or markdown")
	f.BoolVar(&o.noWait, "no-wait", false, "submit and print the job id without waiting")
	f.BoolVar(&o.json, "json", false, "print the full result as JSON")
	f.StringVar(&o.schema, "schema", "", "JSON Schema file the extracted JSON must satisfy (implies --output-format json)")
	f.DurationVar(&o.interval, "interval", 0, "pause between status polls (default 5s)")
	f.IntVar(&o.maxAttempts, "max-attempts", 0, "maximum status polls (default 60)")
	f.BoolVar(&o.exponential, "exponential", false, "double the pause after every poll, up to 30s")
	return cmd
}

func runAnalyze(cmd *cobra.Command, root *rootOptions, o *analyzeOptions, path string) error {
	model, err := parseModelFlag(o.model)
	if err != nil {
		return err
	}
	format, err := ocr.ParseOutputFormat(o.outputFormat)
	if err != nil {
		return usagef("--output-format: %v", err)
	}
	if o.maxAttempts < 0 || o.interval < 0 {
		return usagef("--interval and --max-attempts must not be negative")
	}

	var schema []byte
	if o.schema != "" {
		schema, err = os.ReadFile(o.schema)
		if err != nil {
			return fmt.Errorf("read schema: %w", err)
		}
		if format == "" {
			format = ocr.OutputJSON
		}
	}

	client, err := root.client(ocr.WithRetryPolicy(pollPolicy(o)))
	if err != nil {
		return err
	}
	defer client.Close()

	req := ocr.AnalyzeRequest{
		Document:     ocr.FromPath(path),
		Model:        model,
		Prompt:       o.prompt,
		OutputFormat: format,
	}
	ctx := cmd.Context()

	if o.noWait {
		sub, err := client.Submit(ctx, req)
		if err != nil {
			return err
		}
		if sub.Kind() == ocr.SubmissionJob {
			if o.json {
				return writeJSON(root.stdout, sub.Job)
			}
			fmt.Fprintln(root.stdout, sub.Job.JobID)
			return nil
		}
		return printResult(root, o, *sub.Result, schema)
	}

	res, err := client.Analyze(ctx, req)
	if err != nil {
		return err
	}
	return printResult(root, o, res, schema)
}

func printResult(root *rootOptions, o *analyzeOptions, res ocr.Result, schema []byte) error {
	if o.json {
		if err := writeJSON(root.stdout, res); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(root.stdout, res.Text)
	}
	if schema != nil {
		if err := ocr.ValidateJSON(res.Text, schema); err != nil {
			return fmt.Errorf("result does not match schema: %w", err)
		}
	}
	return nil
}

func pollPolicy(o *analyzeOptions) ocr.RetryPolicy {
	p := ocr.DefaultRetryPolicy()
	if o.interval > 0 {
		p.Interval = o.interval
	}
	if o.maxAttempts > 0 {
		p.MaxAttempts = o.maxAttempts
	}
	if o.exponential {
		p.Backoff = ocr.ExponentialBackoff{Initial: p.Interval, Max: 30 * time.Second, Multiplier: 2}
	}
	return p
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
