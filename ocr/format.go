package ocr

import "fmt"

const missingFailureMessage = "job failed without error message"

// FormatJob maps a terminal job to a Result. Failed jobs become
// *JobFailedError; a job that is still running is a protocol error.
func FormatJob(job Job) (Result, error) {
	switch job.Status {
	case StatusCompleted:
		if job.Result == nil || job.Result.Text == nil {
			return Result{}, &ProtocolError{Op: "format", Reason: fmt.Sprintf("completed job %s has no result text", job.ID)}
		}
		return Result{
			Text:             *job.Result.Text,
			ModelUsed:        job.Model,
			ProcessingTimeMs: job.ProcessingTimeMs,
			JobID:            job.ID,
			Metadata: Metadata{
				Tokens:       job.Tokens,
				PriceDisplay: job.PriceDisplay,
				Privacy:      job.Privacy,
				Pages:        job.Result.Pages,
			},
		}, nil
	case StatusFailed:
		return Result{}, jobFailed(job)
	}
	return Result{}, &ProtocolError{Op: "format", Reason: fmt.Sprintf("job %s is not terminal (status %q)", job.ID, job.Status)}
}

func jobFailed(job Job) error {
	msg := job.Error
	if msg == "" {
		msg = missingFailureMessage
	}
	return &JobFailedError{JobID: job.ID, Message: msg}
}
