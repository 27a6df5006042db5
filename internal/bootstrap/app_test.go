package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"german-ocr/internal/inference"
	"german-ocr/internal/shared/config"
	"german-ocr/internal/shared/telemetry"
	"german-ocr/ocr"
)

type echoEngine struct{}

func (echoEngine) Generate(ctx context.Context, req inference.Request) (inference.Response, error) {
	return inference.Response{Text: "Lieferschein 7", Model: req.Model, InputTokens: 10, OutputTokens: 3}, nil
}

func testConfig(t *testing.T) config.Config {
	return config.Config{
		Env:               "dev",
		LocalStoreDir:     t.TempDir(),
		OllamaModels:      map[string]string{"local": "german-ocr-turbo", "cloud_fast": "german-ocr"},
		WorkerConcurrency: 1,
		QueueSize:         4,
		PollWindow:        time.Millisecond,
		ShutdownTimeout:   time.Second,
		RateLimitRate:     100,
		RateLimitBurst:    100,
	}
}

func TestBuildRejectsMissingDatabaseOutsideDev(t *testing.T) {
	cfg := testConfig(t)
	cfg.Env = "production"
	cfg.APIKey, cfg.APISecret = "gocr_prod", "0123456789abcdef0123456789abcdef"
	_, err := Build(context.Background(), cfg, Options{Engine: echoEngine{}})
	if err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Fatalf("expected DATABASE_URL error in production, got %v", err)
	}
}

func TestBuildRejectsMissingCredentialsOutsideDev(t *testing.T) {
	for _, env := range []string{"production", "staging"} {
		cfg := testConfig(t)
		cfg.Env = env
		cfg.DatabaseURL = "postgres://ocr@localhost/ocr"
		cfg.APIKey = "gocr_prod"
		_, err := Build(context.Background(), cfg, Options{Engine: echoEngine{}})
		if err == nil || !strings.Contains(err.Error(), "GATEWAY_API_SECRET") {
			t.Fatalf("%s: expected credentials error, got %v", env, err)
		}
	}
}

func TestRuntimeModelsResolvesSelectors(t *testing.T) {
	got := runtimeModels(map[string]string{"local": "turbo", "cloud": " ", "bogus": "x"})
	if len(got) != 1 || got[ocr.ModelLocal] != "turbo" {
		t.Fatalf("unexpected models %+v", got)
	}
}

func TestGatewayEndToEnd(t *testing.T) {
	telemetry.SetOutput(io.Discard)
	t.Cleanup(func() { telemetry.SetOutput(nil) })

	app, err := Build(context.Background(), testConfig(t), Options{Engine: echoEngine{}})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Pool.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	srv := httptest.NewServer(app.Router)
	defer srv.Close()

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	_ = mw.WriteField("model", "local")
	part, _ := mw.CreateFormFile("file", "lieferschein.png")
	_, _ = part.Write(append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...))
	_ = mw.Close()

	resp, err := http.Post(srv.URL+"/v1/analyze", mw.FormDataContentType(), body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	var accepted ocr.Accepted
	_ = json.NewDecoder(resp.Body).Decode(&accepted)
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted || accepted.JobID == "" {
		t.Fatalf("expected 202 with job id, got %d", resp.StatusCode)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(srv.URL + "/v1/jobs/" + accepted.JobID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		var job ocr.Job
		_ = json.NewDecoder(resp.Body).Decode(&job)
		resp.Body.Close()
		if job.Status == ocr.StatusCompleted {
			if job.Result == nil || job.Result.Text == nil || *job.Result.Text != "Lieferschein 7" {
				t.Fatalf("unexpected result %+v", job.Result)
			}
			if job.PriceDisplay != "0,02 EUR" {
				t.Fatalf("unexpected price %q", job.PriceDisplay)
			}
			return
		}
		if job.Status == ocr.StatusFailed {
			t.Fatalf("job failed: %s", job.Error)
		}
		if time.Now().After(deadline) {
			t.Fatalf("job did not finish, last status %q", job.Status)
		}
		time.Sleep(20 * time.Millisecond)
	}
}
