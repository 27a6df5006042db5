package ocr_test

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"german-ocr/ocr"
)

const (
	testKey    = "gocr_test_key"
	testSecret = "0123456789abcdef0123456789abcdef"
)

// upload is what the fake server saw in one POST /v1/analyze.
type upload struct {
	FileName     string
	ContentType  string
	Size         int
	Model        string
	Prompt       string
	HasPrompt    bool
	OutputFormat string
	Auth         string
}

// fakeAPI is an in-process stand-in for the cloud service. Each accepted
// job replays script; the last entry repeats forever.
type fakeAPI struct {
	t *testing.T

	mu       sync.Mutex
	uploads  []upload
	jobs     map[string]*fakeJob
	script   []string
	failMsg  string
	syncMode bool
	text     string

	submitHook func(w http.ResponseWriter, u upload) bool
	pollHook   func(w http.ResponseWriter, id string, n int) bool

	nextID    atomic.Int64
	polls     atomic.Int64
	inFlight  atomic.Int64
	maxFlight atomic.Int64
	delay     time.Duration
}

type fakeJob struct {
	id    string
	model string
	polls int
}

func newFakeAPI(t *testing.T, script ...string) (*fakeAPI, *httptest.Server) {
	t.Helper()
	f := &fakeAPI{
		t:      t,
		jobs:   make(map[string]*fakeJob),
		script: script,
		text:   "Rechnung Nr. 2024-0815\nGesamtbetrag: 119,00 EUR",
	}
	if len(f.script) == 0 {
		f.script = []string{"completed"}
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/analyze", f.analyze)
	mux.HandleFunc("/v1/jobs/", f.job)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeAPI) analyze(w http.ResponseWriter, r *http.Request) {
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		prev := f.maxFlight.Load()
		if cur <= prev || f.maxFlight.CompareAndSwap(prev, cur) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, `{"error":"bad multipart"}`, http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, `{"error":"file missing"}`, http.StatusBadRequest)
		return
	}
	data, _ := io.ReadAll(file)
	_ = file.Close()
	prompt, hasPrompt := r.MultipartForm.Value["prompt"]
	u := upload{
		FileName:     header.Filename,
		ContentType:  header.Header.Get("Content-Type"),
		Size:         len(data),
		Model:        r.FormValue("model"),
		HasPrompt:    hasPrompt,
		OutputFormat: r.FormValue("output_format"),
		Auth:         r.Header.Get("Authorization"),
	}
	if hasPrompt {
		u.Prompt = prompt[0]
	}
	f.mu.Lock()
	f.uploads = append(f.uploads, u)
	f.mu.Unlock()

	if f.submitHook != nil && f.submitHook(w, u) {
		return
	}
	if len(data) == 0 {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"empty document"}`))
		return
	}
	if f.syncMode {
		writeJSON(w, http.StatusOK, map[string]any{
			"text":               f.text,
			"model_used":         u.Model,
			"processing_time_ms": 840,
			"price_display":      "0,05 EUR",
		})
		return
	}

	id := fmt.Sprintf("job_%d", f.nextID.Add(1))
	f.mu.Lock()
	f.jobs[id] = &fakeJob{id: id, model: u.Model}
	f.mu.Unlock()
	writeJSON(w, http.StatusAccepted, map[string]any{"job_id": id, "model": u.Model, "status": "pending"})
}

func (f *fakeAPI) job(w http.ResponseWriter, r *http.Request) {
	f.polls.Add(1)
	id := strings.TrimPrefix(r.URL.Path, "/v1/jobs/")
	f.mu.Lock()
	j, ok := f.jobs[id]
	var n int
	if ok {
		j.polls++
		n = j.polls
	}
	f.mu.Unlock()

	if f.pollHook != nil && f.pollHook(w, id, n) {
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "job not found"})
		return
	}
	idx := n - 1
	if idx >= len(f.script) {
		idx = len(f.script) - 1
	}
	status := f.script[idx]
	body := map[string]any{"job_id": id, "status": status, "model": j.model}
	switch status {
	case "completed":
		body["result"] = map[string]any{"text": f.text, "pages": 1}
		body["processing_time_ms"] = 1234
		body["tokens"] = map[string]any{"input": 900, "output": 120}
		body["price_display"] = "0,05 EUR"
		body["privacy"] = map[string]any{"local_processing": false, "dsgvo_compliant": true}
	case "failed":
		body["error"] = f.failMsg
	}
	writeJSON(w, http.StatusOK, body)
}

func (f *fakeAPI) Uploads() []upload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]upload(nil), f.uploads...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func fastPolicy(attempts int) ocr.RetryPolicy {
	return ocr.RetryPolicy{MaxAttempts: attempts, Interval: 5 * time.Millisecond}
}

func newTestClient(t *testing.T, srv *httptest.Server, opts ...ocr.Option) *ocr.Client {
	t.Helper()
	opts = append([]ocr.Option{ocr.WithBaseURL(srv.URL), ocr.WithRetryPolicy(fastPolicy(20))}, opts...)
	client, err := ocr.NewClient(ocr.Credentials{APIKey: testKey, APISecret: testSecret}, opts...)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}
