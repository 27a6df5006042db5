package ocr

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrDocumentNotFound   = errors.New("document not found")
	ErrDocumentUnreadable = errors.New("document unreadable")
	ErrInvalidModel       = errors.New("invalid model")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmptyPrompt        = errors.New("prompt is empty")
	ErrEmptyJobID         = errors.New("job id is required")

	// ErrTimeout is matched by *TimeoutError.
	ErrTimeout = errors.New("job polling timed out")
	// ErrJobFailed is matched by *JobFailedError.
	ErrJobFailed = errors.New("job failed")
	// ErrProtocol is matched by *ProtocolError.
	ErrProtocol = errors.New("unexpected response")
	// ErrStatusRegressed reports a job leaving a terminal state or moving backwards.
	ErrStatusRegressed = errors.New("job status regressed")
)

const maxErrorBody = 2048

// PreconditionError is raised before any network call is made.
type PreconditionError struct {
	Field string
	Err   error
}

func (e *PreconditionError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return e.Field + ": " + e.Err.Error()
}

func (e *PreconditionError) Unwrap() error { return e.Err }

// APIError carries a non-success HTTP response verbatim.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody] + "..."
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, body)
}

// Temporary reports whether retrying the same request may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// ProtocolError reports a response that does not match the wire contract.
type ProtocolError struct {
	Op     string
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	msg := e.Op + ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProtocolError) Is(target error) bool { return target == ErrProtocol }

func (e *ProtocolError) Unwrap() error { return e.Err }

// JobFailedError carries the server-supplied failure message.
type JobFailedError struct {
	JobID   string
	Message string
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("job %s failed: %s", e.JobID, e.Message)
}

func (e *JobFailedError) Is(target error) bool { return target == ErrJobFailed }

// TimeoutError is returned when the polling budget is exhausted.
type TimeoutError struct {
	JobID    string
	Attempts int
	Elapsed  time.Duration
	Last     error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("job %s not finished after %d attempts (%s)", e.JobID, e.Attempts, e.Elapsed.Round(time.Millisecond))
	if e.Last != nil {
		msg += ": last error: " + e.Last.Error()
	}
	return msg
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

func (e *TimeoutError) Unwrap() error { return e.Last }

// StatusCode extracts the HTTP status of an *APIError in err's chain, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
