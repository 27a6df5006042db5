package ocr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Job fetches the current state of a job once. It is also the lookup used by
// fire-and-forget callers.
func (c *Client) Job(ctx context.Context, jobID string) (Job, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return Job{}, &PreconditionError{Field: "job_id", Err: ErrEmptyJobID}
	}
	path := jobsPath + url.PathEscape(jobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path), nil)
	if err != nil {
		return Job{}, fmt.Errorf("get job %s: %w", jobID, err)
	}
	status, raw, err := c.do(req)
	if err != nil {
		return Job{}, fmt.Errorf("get job %s: %w", jobID, err)
	}
	if status != http.StatusOK {
		return Job{}, &APIError{Method: http.MethodGet, Path: path, StatusCode: status, Body: string(raw)}
	}
	var job Job
	if err := decodeJSON("get job", raw, &job); err != nil {
		return Job{}, err
	}
	if !job.Status.Known() {
		return Job{}, &ProtocolError{Op: "get job", Reason: fmt.Sprintf("unknown status %q", job.Status)}
	}
	if job.ID == "" {
		job.ID = jobID
	}
	return job, nil
}

// Status is Job under the name fire-and-forget callers look for.
func (c *Client) Status(ctx context.Context, jobID string) (Job, error) {
	return c.Job(ctx, jobID)
}

// Wait polls a job with the client's RetryPolicy until it completes or fails.
func (c *Client) Wait(ctx context.Context, jobID string) (Job, error) {
	return c.WaitWithPolicy(ctx, jobID, c.policy)
}

// WaitWithPolicy polls with an explicit policy.
//
// A completed job is returned as is; a failed job yields *JobFailedError.
// Network errors and 5xx/429 responses consume one attempt each; other API
// errors end polling immediately. When the attempts run out the result is a
// *TimeoutError wrapping the last transport error, if any. Cancelling ctx
// stops polling and aborts the in-flight request.
func (c *Client) WaitWithPolicy(ctx context.Context, jobID string, policy RetryPolicy) (Job, error) {
	policy = policy.normalized()
	start := time.Now()

	var (
		last    Job
		seen    bool
		lastErr error
		timer   *time.Timer
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		job, err := c.Job(ctx, jobID)
		switch {
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Job{}, fmt.Errorf("wait for job %s: %w", jobID, ctxErr)
			}
			if !retryablePollError(err) {
				return Job{}, err
			}
			lastErr = err
		default:
			if seen {
				if err := checkTransition(last, job); err != nil {
					return Job{}, err
				}
			}
			last, seen, lastErr = job, true, nil
			if c.onStatus != nil {
				c.onStatus(job)
			}
			switch job.Status {
			case StatusCompleted:
				return job, nil
			case StatusFailed:
				return job, jobFailed(job)
			}
		}

		if attempt == policy.MaxAttempts {
			break
		}
		delay := policy.Delay(attempt)
		if timer == nil {
			timer = time.NewTimer(delay)
		} else {
			timer.Reset(delay)
		}
		select {
		case <-ctx.Done():
			return Job{}, fmt.Errorf("wait for job %s: %w", jobID, ctx.Err())
		case <-timer.C:
		}
	}

	return Job{}, &TimeoutError{
		JobID:    jobID,
		Attempts: policy.MaxAttempts,
		Elapsed:  time.Since(start),
		Last:     lastErr,
	}
}

func checkTransition(prev, next Job) error {
	if prev.Status.Terminal() && next.Status != prev.Status {
		return &ProtocolError{Op: "wait", Reason: fmt.Sprintf("job %s moved from %s to %s", next.ID, prev.Status, next.Status), Err: ErrStatusRegressed}
	}
	if next.Status.Rank() < prev.Status.Rank() {
		return &ProtocolError{Op: "wait", Reason: fmt.Sprintf("job %s moved from %s back to %s", next.ID, prev.Status, next.Status), Err: ErrStatusRegressed}
	}
	return nil
}

func retryablePollError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	var protoErr *ProtocolError
	if errors.As(err, &protoErr) {
		return false
	}
	var pre *PreconditionError
	return !errors.As(err, &pre)
}
