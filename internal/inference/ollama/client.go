// Package ollama implements inference.Engine on Ollama's /api/generate.
package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"german-ocr/internal/inference"
	"german-ocr/internal/shared/telemetry"
)

const (
	DefaultURL     = "http://localhost:11434"
	defaultTimeout = 5 * time.Minute
	generatePath   = "/api/generate"
	maxErrorBody   = 1024
)

// Client talks to a single Ollama server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a client. An empty baseURL means DefaultURL and a
// non-positive timeout means five minutes.
func NewClient(baseURL string, timeout time.Duration) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Images  []string       `json:"images,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	TotalDuration   int64  `json:"total_duration"`
	Error           string `json:"error"`
}

// Generate sends one non-streaming generation request.
func (c *Client) Generate(ctx context.Context, in inference.Request) (inference.Response, error) {
	if strings.TrimSpace(in.Model) == "" {
		return inference.Response{}, errors.New("ollama: model is required")
	}
	images := make([]string, 0, len(in.Images))
	for _, img := range in.Images {
		images = append(images, base64.StdEncoding.EncodeToString(img))
	}
	payload, err := json.Marshal(generateRequest{
		Model:   in.Model,
		Prompt:  in.Prompt,
		Images:  images,
		Stream:  false,
		Options: map[string]any{"temperature": 0},
	})
	if err != nil {
		return inference.Response{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+generatePath, bytes.NewReader(payload))
	if err != nil {
		return inference.Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "Client.Timeout") {
			return inference.Response{}, fmt.Errorf("ollama request timeout: %w", err)
		}
		return inference.Response{}, fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return inference.Response{}, fmt.Errorf("ollama read body: %w", err)
	}

	var parsed generateResponse
	decodeErr := json.Unmarshal(body, &parsed)
	if resp.StatusCode != http.StatusOK {
		msg := parsed.Error
		if decodeErr != nil || msg == "" {
			msg = truncate(string(body), maxErrorBody)
		}
		return inference.Response{}, fmt.Errorf("ollama status %d: %s", resp.StatusCode, msg)
	}
	if decodeErr != nil {
		return inference.Response{}, fmt.Errorf("ollama response parse: %w", decodeErr)
	}
	if parsed.Error != "" {
		return inference.Response{}, fmt.Errorf("ollama error: %s", parsed.Error)
	}

	text := strings.TrimSpace(parsed.Response)
	if text == "" {
		return inference.Response{}, inference.ErrEmptyOutput
	}

	telemetry.Debug("ollama.generate", map[string]any{
		"model":         in.Model,
		"images":        len(images),
		"prompt_tokens": parsed.PromptEvalCount,
		"eval_tokens":   parsed.EvalCount,
		"duration_ms":   time.Duration(parsed.TotalDuration).Milliseconds(),
	})

	model := parsed.Model
	if model == "" {
		model = in.Model
	}
	return inference.Response{
		Text:         text,
		Model:        model,
		InputTokens:  parsed.PromptEvalCount,
		OutputTokens: parsed.EvalCount,
	}, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ inference.Engine = (*Client)(nil)
