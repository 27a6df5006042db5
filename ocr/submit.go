package ocr

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
)

// AnalyzeRequest describes one document submission.
type AnalyzeRequest struct {
	Document     Document
	Model        Model
	Prompt       string
	OutputFormat OutputFormat
}

type analyzeResponse struct {
	JobID            *string      `json:"job_id"`
	Model            Model        `json:"model"`
	Status           JobStatus    `json:"status"`
	Text             *string      `json:"text"`
	ModelUsed        Model        `json:"model_used"`
	ProcessingTimeMs int64        `json:"processing_time_ms"`
	Tokens           *TokenUsage  `json:"tokens"`
	PriceDisplay     string       `json:"price_display"`
	Privacy          *PrivacyInfo `json:"privacy"`
	Pages            int          `json:"pages"`
}

// Submit sends exactly one POST /v1/analyze request. Local preconditions are
// checked first; remote failures are returned as *APIError without retry.
func (c *Client) Submit(ctx context.Context, req AnalyzeRequest) (Submission, error) {
	model, err := ParseModel(string(req.Model))
	if err != nil {
		return Submission{}, err
	}
	if req.Prompt != "" && strings.TrimSpace(req.Prompt) == "" {
		return Submission{}, &PreconditionError{Field: "prompt", Err: ErrEmptyPrompt}
	}
	format, err := ParseOutputFormat(string(req.OutputFormat))
	if err != nil {
		return Submission{}, err
	}
	data, err := req.Document.load()
	if err != nil {
		return Submission{}, err
	}

	body, contentType, err := buildMultipart(req.Document.FileName(), data, model, req.Prompt, format)
	if err != nil {
		return Submission{}, fmt.Errorf("submit: build request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(analyzePath), body)
	if err != nil {
		return Submission{}, fmt.Errorf("submit: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)

	status, raw, err := c.do(httpReq)
	if err != nil {
		return Submission{}, fmt.Errorf("submit: %w", err)
	}
	if status != http.StatusOK && status != http.StatusAccepted {
		return Submission{}, &APIError{Method: http.MethodPost, Path: analyzePath, StatusCode: status, Body: string(raw)}
	}
	return parseSubmission(status, raw, model)
}

func parseSubmission(status int, raw []byte, requested Model) (Submission, error) {
	var resp analyzeResponse
	if err := decodeJSON("submit", raw, &resp); err != nil {
		return Submission{}, err
	}
	switch {
	case resp.JobID != nil:
		if strings.TrimSpace(*resp.JobID) == "" {
			return Submission{}, &ProtocolError{Op: "submit", Reason: "empty job_id"}
		}
		acc := &Accepted{JobID: *resp.JobID, Model: resp.Model, Status: resp.Status}
		if acc.Model == "" {
			acc.Model = requested
		}
		if acc.Status == "" {
			acc.Status = StatusPending
		}
		return Submission{Job: acc}, nil
	case resp.Text != nil:
		if status == http.StatusAccepted {
			return Submission{}, &ProtocolError{Op: "submit", Reason: "202 response without job_id"}
		}
		res := &Result{
			Text:             *resp.Text,
			ModelUsed:        resp.ModelUsed,
			ProcessingTimeMs: resp.ProcessingTimeMs,
			Metadata: Metadata{
				Tokens:       resp.Tokens,
				PriceDisplay: resp.PriceDisplay,
				Privacy:      resp.Privacy,
				Pages:        resp.Pages,
			},
		}
		if res.ModelUsed == "" {
			res.ModelUsed = requested
		}
		return Submission{Result: res}, nil
	}
	return Submission{}, &ProtocolError{Op: "submit", Reason: fmt.Sprintf("status %d response has neither job_id nor text", status)}
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func buildMultipart(fileName string, data []byte, model Model, prompt string, format OutputFormat) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(fileName)))
	h.Set("Content-Type", ContentType(fileName, data))
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("model", string(model)); err != nil {
		return nil, "", err
	}
	if prompt != "" {
		if err := w.WriteField("prompt", prompt); err != nil {
			return nil, "", err
		}
	}
	if format != "" {
		if err := w.WriteField("output_format", string(format)); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
