package jobs

import (
	"fmt"
	"time"

	"german-ocr/ocr"
)

// Job is one OCR request handled by the gateway.
type Job struct {
	ID           string
	Principal    string
	Model        ocr.Model
	Status       ocr.JobStatus
	Prompt       string
	OutputFormat ocr.OutputFormat
	FileName     string
	ContentType  string
	ObjectKey    string

	ResultText       *string
	Pages            int
	ErrorMessage     string
	Tokens           *ocr.TokenUsage
	ProcessingTimeMs int64

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// Outcome is what a worker records when a job completes.
type Outcome struct {
	Text             string
	Pages            int
	Tokens           *ocr.TokenUsage
	ProcessingTimeMs int64
	CompletedAt      time.Time
}

// Privacy is reported on every job: inference never leaves this host.
var localPrivacy = ocr.PrivacyInfo{LocalProcessing: true, DSGVOCompliant: true, Region: "local"}

// Wire renders the job as returned by GET /v1/jobs/{id}.
func (j Job) Wire() ocr.Job {
	out := ocr.Job{
		ID:     j.ID,
		Status: j.Status,
		Model:  j.Model,
	}
	privacy := localPrivacy
	out.Privacy = &privacy
	switch j.Status {
	case ocr.StatusCompleted:
		out.Result = &ocr.JobResult{Text: j.ResultText, Pages: j.Pages}
		out.ProcessingTimeMs = j.ProcessingTimeMs
		out.Tokens = j.Tokens
		out.PriceDisplay = PriceDisplay(j.Model, j.Pages)
	case ocr.StatusFailed:
		out.Error = j.ErrorMessage
		out.ProcessingTimeMs = j.ProcessingTimeMs
	}
	return out
}

// Accepted renders the 202 body for a new job.
func (j Job) Accepted() ocr.Accepted {
	return ocr.Accepted{JobID: j.ID, Model: j.Model, Status: j.Status}
}

// PriceDisplay formats the list price for pages of model as "0,05 EUR".
// Documents without a page count are billed as one page.
func PriceDisplay(model ocr.Model, pages int) string {
	if pages < 1 {
		pages = 1
	}
	cents := model.PricePerPageCents() * pages
	return fmt.Sprintf("%d,%02d EUR", cents/100, cents%100)
}
