package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"german-ocr/ocr"
)

func newStatusCommand(root *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Look up a submitted job once",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := root.client()
			if err != nil {
				return err
			}
			defer client.Close()

			job, err := client.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(root.stdout, job)
			}
			printJob(root, job)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the job as JSON")
	return cmd
}

func printJob(root *rootOptions, job ocr.Job) {
	out := root.stdout
	fmt.Fprintf(out, "job:     %s\n", job.ID)
	fmt.Fprintf(out, "status:  %s\n", job.Status)
	if job.Model != "" {
		fmt.Fprintf(out, "model:   %s\n", job.Model.DisplayName())
	}
	if job.ProcessingTimeMs > 0 {
		fmt.Fprintf(out, "time:    %d ms\n", job.ProcessingTimeMs)
	}
	if job.PriceDisplay != "" {
		fmt.Fprintf(out, "price:   %s\n", job.PriceDisplay)
	}
	switch job.Status {
	case ocr.StatusFailed:
		msg := job.Error
		if msg == "" {
			msg = "job failed without a message"
		}
		fmt.Fprintf(out, "error:   %s\n", msg)
	case ocr.StatusCompleted:
		if job.Result != nil && job.Result.Text != nil {
			fmt.Fprintf(out, "\n%s\n", *job.Result.Text)
		}
	}
}
