package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"german-ocr/ocr"
)

type batchOptions struct {
	concurrency  int
	xlsx         string
	model        string
	prompt       string
	outputFormat string
}

func newBatchCommand(root *rootOptions) *cobra.Command {
	o := &batchOptions{}
	cmd := &cobra.Command{
		Use:   "batch <file|dir>...",
		Short: "Analyze several documents concurrently",
		Long: "Analyze every given file and every supported document directly inside the\n" +
			"given directories (.pdf .png .jpg .jpeg .tif .tiff .webp).",
		Args: usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, root, o, args)
		},
	}
	f := cmd.Flags()
	f.IntVarP(&o.concurrency, "concurrency", "c", ocr.DefaultBatchConcurrency, "documents in flight at once")
	f.StringVar(&o.xlsx, "xlsx", "", "also write an XLSX report to this path")
	f.StringVarP(&o.model, "model", "m", "", "model: local, cloud_fast or cloud (default cloud_fast)")
	f.StringVarP(&o.prompt, "prompt", "p", "", "instruction applied to every document")
	f.StringVarP(&o.outputFormat, "output-format", "f", "", "output format: text, json or markdown")
	return cmd
}

func runBatch(cmd *cobra.Command, root *rootOptions, o *batchOptions, args []string) error {
	model, err := parseModelFlag(o.model)
	if err != nil {
		return err
	}
	format, err := ocr.ParseOutputFormat(o.outputFormat)
	if err != nil {
		return usagef("--output-format: %v", err)
	}
	if o.concurrency < 1 {
		return usagef("--concurrency must be at least 1")
	}
	paths, err := expandInputs(args)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return usagef("no supported documents in %v", args)
	}

	client, err := root.client()
	if err != nil {
		return err
	}
	defer client.Close()

	reqs := make([]ocr.AnalyzeRequest, len(paths))
	for i, p := range paths {
		reqs[i] = ocr.AnalyzeRequest{Document: ocr.FromPath(p), Model: model, Prompt: o.prompt, OutputFormat: format}
	}
	items := client.AnalyzeBatch(cmd.Context(), reqs, ocr.BatchOptions{Concurrency: o.concurrency})

	for _, item := range items {
		name := paths[item.Index]
		if item.OK() {
			fmt.Fprintf(root.stdout, "ok    %s  (%d chars, %s, %d ms)\n",
				name, len([]rune(item.Result.Text)), item.Result.ModelUsed, item.Result.ProcessingTimeMs)
			continue
		}
		fmt.Fprintf(root.stdout, "fail  %s  %v\n", name, item.Err)
	}
	succeeded, failed := ocr.BatchSummary(items)
	fmt.Fprintf(root.stdout, "%d documents: %d succeeded, %d failed\n", len(items), succeeded, failed)

	if o.xlsx != "" {
		if err := writeReport(o.xlsx, paths, items); err != nil {
			return err
		}
		fmt.Fprintf(root.stdout, "report written to %s\n", o.xlsx)
	}
	if failed > 0 {
		return errReported
	}
	return nil
}

// expandInputs keeps files as given and replaces each directory by its
// supported documents, sorted by name. Subdirectories are not entered.
// Paths that cannot be stat'ed stay in the list so they are reported as
// failed documents alongside the others.
func expandInputs(args []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil || !info.IsDir() {
			out = append(out, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", arg, err)
		}
		var found []string
		for _, e := range entries {
			if e.Type().IsRegular() && ocr.SupportedExtension(e.Name()) {
				found = append(found, filepath.Join(arg, e.Name()))
			}
		}
		sort.Strings(found)
		out = append(out, found...)
	}
	return out, nil
}
