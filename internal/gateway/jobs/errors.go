package jobs

import "errors"

var (
	ErrNotFound = errors.New("job not found")
	// ErrTerminal is returned when a transition targets a completed or failed job.
	ErrTerminal = errors.New("job already terminal")
	// ErrInvalidTransition is returned for moves that skip or reverse a status.
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrEmptyDocument     = errors.New("empty document")
	ErrUnsupportedType   = errors.New("unsupported document type")
	ErrQueueUnavailable  = errors.New("job queue unavailable")
)

// Failure reasons reported in metrics.
const (
	ReasonInference   = "inference"
	ReasonNoTextLayer = "no_text_layer"
	ReasonStorage     = "storage"
	ReasonTimeout     = "timeout"
	ReasonInternal    = "internal"
)
