// Package inference abstracts the model runtime the gateway delegates OCR to.
package inference

import (
	"context"
	"errors"
	"strings"
)

// DefaultPrompt is used when a request carries no prompt.
const DefaultPrompt = "Extract all text from this image. Return only the text content."

// ErrEmptyOutput is returned when the model produced no text.
var ErrEmptyOutput = errors.New("model returned empty output")

// Request is one generation call. Images are raw bytes; engines encode them
// as their runtime expects.
type Request struct {
	Model  string
	Prompt string
	Images [][]byte
}

// Response is the model output with token accounting when the runtime
// reports it.
type Response struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Engine runs a prompt, optionally with images, against a named model.
type Engine interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// StripEcho removes the prompt when a vision model repeats it in its output.
func StripEcho(text, prompt string) string {
	text = strings.TrimSpace(text)
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return text
	}
	if strings.Contains(text, prompt) {
		text = strings.TrimSpace(strings.ReplaceAll(text, prompt, ""))
	}
	return text
}
