package ocr

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Model selects which remote inference variant processes a document.
type Model string

const (
	// ModelLocal is German-OCR Turbo: processed on-premises, DSGVO-compliant.
	ModelLocal Model = "local"
	// ModelCloudFast is German-OCR Pro, the default speed/quality trade-off.
	ModelCloudFast Model = "cloud_fast"
	// ModelCloud is German-OCR Ultra, the most precise variant.
	ModelCloud Model = "cloud"

	DefaultModel = ModelCloudFast
)

var modelAliases = map[string]Model{
	"local":      ModelLocal,
	"privacy":    ModelLocal,
	"turbo":      ModelLocal,
	"cloud_fast": ModelCloudFast,
	"fast":       ModelCloudFast,
	"standard":   ModelCloudFast,
	"pro":        ModelCloudFast,
	"cloud":      ModelCloud,
	"precise":    ModelCloud,
	"ultra":      ModelCloud,
}

// ParseModel resolves a model selector or one of its aliases. An empty
// string yields DefaultModel.
func ParseModel(raw string) (Model, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return DefaultModel, nil
	}
	key = strings.ReplaceAll(key, "-", "_")
	if m, ok := modelAliases[key]; ok {
		return m, nil
	}
	return "", &PreconditionError{Field: "model", Err: fmt.Errorf("%w: %q", ErrInvalidModel, raw)}
}

// Valid reports whether m is one of the wire values.
func (m Model) Valid() bool {
	switch m {
	case ModelLocal, ModelCloudFast, ModelCloud:
		return true
	}
	return false
}

// DisplayName returns the product name of the model.
func (m Model) DisplayName() string {
	switch m {
	case ModelLocal:
		return "German-OCR Turbo"
	case ModelCloudFast:
		return "German-OCR Pro"
	case ModelCloud:
		return "German-OCR Ultra"
	}
	return string(m)
}

// PricePerPageCents is the list price per page in euro cents.
func (m Model) PricePerPageCents() int {
	switch m {
	case ModelLocal:
		return 2
	case ModelCloudFast, ModelCloud:
		return 5
	}
	return 0
}

// OutputFormat asks the service for a specific text representation.
type OutputFormat string

const (
	OutputText     OutputFormat = "text"
	OutputJSON     OutputFormat = "json"
	OutputMarkdown OutputFormat = "markdown"
)

// ParseOutputFormat accepts "", text, json or markdown (md).
func ParseOutputFormat(raw string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return "", nil
	case "text", "txt":
		return OutputText, nil
	case "json":
		return OutputJSON, nil
	case "markdown", "md":
		return OutputMarkdown, nil
	}
	return "", &PreconditionError{Field: "output_format", Err: fmt.Errorf("unsupported output format %q", raw)}
}

// JobStatus is the server-side lifecycle state of a job.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Known reports whether s is a recognized status.
func (s JobStatus) Known() bool {
	return s.Rank() >= 0
}

// Terminal reports whether no further transitions are expected.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Rank orders statuses so that observed sequences never decrease.
// Unknown statuses rank -1.
func (s JobStatus) Rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusProcessing:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	}
	return -1
}

// TokenUsage reports model token counts. The service sends either a plain
// total or an object with input/output/total.
type TokenUsage struct {
	Input  int `json:"input,omitempty"`
	Output int `json:"output,omitempty"`
	Total  int `json:"total"`
}

// UnmarshalJSON accepts a number or an object.
func (t *TokenUsage) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" || trimmed == "" {
		return nil
	}
	if trimmed[0] != '{' {
		var total int
		if err := json.Unmarshal(data, &total); err != nil {
			return fmt.Errorf("tokens: %w", err)
		}
		*t = TokenUsage{Total: total}
		return nil
	}
	type plain TokenUsage
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("tokens: %w", err)
	}
	if p.Total == 0 {
		p.Total = p.Input + p.Output
	}
	*t = TokenUsage(p)
	return nil
}

// PrivacyInfo carries compliance flags reported for a job.
type PrivacyInfo struct {
	LocalProcessing bool   `json:"local_processing"`
	DSGVOCompliant  bool   `json:"dsgvo_compliant"`
	Region          string `json:"region,omitempty"`
}

// JobResult is the payload of a completed job.
type JobResult struct {
	Text  *string `json:"text"`
	Pages int     `json:"pages,omitempty"`
}

// Job is a snapshot of a server-side job as returned by GET /v1/jobs/{id}.
type Job struct {
	ID               string       `json:"job_id,omitempty"`
	Status           JobStatus    `json:"status"`
	Model            Model        `json:"model,omitempty"`
	Result           *JobResult   `json:"result,omitempty"`
	Error            string       `json:"error,omitempty"`
	ProcessingTimeMs int64        `json:"processing_time_ms,omitempty"`
	Tokens           *TokenUsage  `json:"tokens,omitempty"`
	PriceDisplay     string       `json:"price_display,omitempty"`
	Privacy          *PrivacyInfo `json:"privacy,omitempty"`
}

// Metadata holds optional structured information about a result.
type Metadata struct {
	Tokens       *TokenUsage  `json:"tokens,omitempty"`
	PriceDisplay string       `json:"price_display,omitempty"`
	Privacy      *PrivacyInfo `json:"privacy,omitempty"`
	Pages        int          `json:"pages,omitempty"`
}

// Result is the caller-facing outcome of an analysis.
type Result struct {
	Text             string   `json:"text"`
	ModelUsed        Model    `json:"model_used"`
	ProcessingTimeMs int64    `json:"processing_time_ms"`
	JobID            string   `json:"job_id,omitempty"`
	Metadata         Metadata `json:"metadata"`
}

// Accepted is the acknowledgement of an asynchronous submission.
type Accepted struct {
	JobID  string    `json:"job_id"`
	Model  Model     `json:"model"`
	Status JobStatus `json:"status"`
}

// SubmissionKind discriminates Submission.
type SubmissionKind int

const (
	SubmissionJob SubmissionKind = iota + 1
	SubmissionResult
)

func (k SubmissionKind) String() string {
	switch k {
	case SubmissionJob:
		return "job"
	case SubmissionResult:
		return "result"
	}
	return "unknown"
}

// Submission is the outcome of Submit: either an accepted job to poll or a
// direct result from the synchronous endpoint generation. Exactly one of
// Job and Result is set.
type Submission struct {
	Job    *Accepted
	Result *Result
}

// Kind reports which variant is populated.
func (s Submission) Kind() SubmissionKind {
	if s.Job != nil {
		return SubmissionJob
	}
	if s.Result != nil {
		return SubmissionResult
	}
	return 0
}
