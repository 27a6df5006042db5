package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/xuri/excelize/v2"

	"german-ocr/internal/shared/telemetry"
	"german-ocr/ocr"
)

const (
	testKey    = "gocr_cli_test"
	testSecret = "0123456789abcdef0123456789abcdef"
)

// fakeAPI completes every job on its first poll. Uploads whose name
// contains "kaputt" fail instead. Markdown jobs get a heading.
type fakeAPI struct {
	mu      sync.Mutex
	jobs    map[string]string
	formats map[string]string
	polls   int
}

func newFakeAPI(t *testing.T) *httptest.Server {
	t.Helper()
	f := &fakeAPI{jobs: map[string]string{}, formats: map[string]string{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/analyze", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+testKey+":"+testSecret {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		file, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, `{"error":"missing file"}`, http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(file)
		if len(data) == 0 {
			http.Error(w, `{"error":"empty document"}`, http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		id := fmt.Sprintf("job_%d", len(f.jobs)+1)
		f.jobs[id] = hdr.Filename
		f.formats[id] = r.FormValue("output_format")
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]any{"job_id": id, "model": r.FormValue("model"), "status": "pending"})
	})
	mux.HandleFunc("/v1/jobs/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/v1/jobs/")
		f.mu.Lock()
		name, ok := f.jobs[id]
		format := f.formats[id]
		f.polls++
		f.mu.Unlock()
		if !ok {
			http.Error(w, `{"error":"job not found"}`, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(name, "kaputt") {
			_ = json.NewEncoder(w).Encode(map[string]any{"job_id": id, "status": "failed", "error": "Dokument unlesbar"})
			return
		}
		text := "Text von " + name
		if strings.HasSuffix(name, ".json.png") {
			text = `{"rechnungsnummer": "RE-42"}`
		}
		if format == "markdown" {
			text = "# " + text
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"job_id":             id,
			"status":             "completed",
			"model":              "cloud_fast",
			"result":             map[string]any{"text": text, "pages": 1},
			"processing_time_ms": 1500,
			"price_display":      "0,05 EUR",
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	t.Cleanup(func() { telemetry.SetOutput(nil) })
	var stdout, stderr bytes.Buffer
	code := Execute(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func withAPI(t *testing.T) []string {
	srv := newFakeAPI(t)
	t.Setenv(ocr.EnvAPIKey, testKey)
	t.Setenv(ocr.EnvAPISecret, testSecret)
	return []string{"--base-url", srv.URL}
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

var png = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 16)...)

func TestAnalyzePrintsText(t *testing.T) {
	base := withAPI(t)
	path := writeFile(t, t.TempDir(), "rechnung.png", png)

	code, out, errOut := run(t, append([]string{"analyze", path, "--interval", "10ms"}, base...)...)
	if code != ExitOK {
		t.Fatalf("expected exit 0, got %d: %s", code, errOut)
	}
	if strings.TrimSpace(out) != "Text von rechnung.png" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestAnalyzeJSONOutput(t *testing.T) {
	base := withAPI(t)
	path := writeFile(t, t.TempDir(), "rechnung.png", png)

	code, out, errOut := run(t, append([]string{"analyze", path, "--json"}, base...)...)
	if code != ExitOK {
		t.Fatalf("expected exit 0, got %d: %s", code, errOut)
	}
	var res ocr.Result
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if res.JobID == "" || res.ProcessingTimeMs != 1500 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestAnalyzeNoWaitPrintsJobID(t *testing.T) {
	base := withAPI(t)
	path := writeFile(t, t.TempDir(), "rechnung.png", png)

	code, out, _ := run(t, append([]string{"analyze", path, "--no-wait"}, base...)...)
	if code != ExitOK || strings.TrimSpace(out) != "job_1" {
		t.Fatalf("expected job id, got %d %q", code, out)
	}
}

func TestAnalyzeSchemaValidation(t *testing.T) {
	base := withAPI(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "rechnung.json.png", png)
	good := writeFile(t, dir, "good.json", []byte(`{"type":"object","required":["rechnungsnummer"]}`))
	bad := writeFile(t, dir, "bad.json", []byte(`{"type":"object","required":["summe"]}`))

	if code, _, errOut := run(t, append([]string{"analyze", path, "--schema", good}, base...)...); code != ExitOK {
		t.Fatalf("expected exit 0, got %d: %s", code, errOut)
	}
	code, _, errOut := run(t, append([]string{"analyze", path, "--schema", bad}, base...)...)
	if code != ExitFailure || !strings.Contains(errOut, "schema") {
		t.Fatalf("expected schema failure, got %d: %s", code, errOut)
	}
}

func TestAnalyzeFailedJobExitsOne(t *testing.T) {
	base := withAPI(t)
	path := writeFile(t, t.TempDir(), "kaputt.png", png)

	code, _, errOut := run(t, append([]string{"analyze", path}, base...)...)
	if code != ExitFailure || !strings.Contains(errOut, "Dokument unlesbar") {
		t.Fatalf("expected failure with server message, got %d: %s", code, errOut)
	}
}

func TestUsageErrorsExitTwo(t *testing.T) {
	base := withAPI(t)
	path := writeFile(t, t.TempDir(), "rechnung.png", png)

	cases := [][]string{
		{},
		{"analyze"},
		{"analyze", path, "--model", "gpt-4"},
		{"analyze", path, "--output-format", "xml"},
		{"analyze", path, "--bogus"},
		{"frobnicate"},
		{"batch", path, "--concurrency", "0"},
		{"batch", path, "--output-format", "xml"},
	}
	for _, args := range cases {
		code, _, errOut := run(t, append(args, base...)...)
		if code != ExitUsage {
			t.Fatalf("%v: expected exit 2, got %d: %s", args, code, errOut)
		}
	}
}

func TestMissingCredentialsFailBeforeNetwork(t *testing.T) {
	t.Setenv(ocr.EnvAPIKey, "")
	t.Setenv(ocr.EnvAPISecret, "")
	path := writeFile(t, t.TempDir(), "rechnung.png", png)

	code, _, errOut := run(t, "analyze", path, "--base-url", "http://127.0.0.1:1")
	if code != ExitFailure || !strings.Contains(errOut, "credentials") {
		t.Fatalf("expected credentials error, got %d: %s", code, errOut)
	}
}

func TestStatusCommand(t *testing.T) {
	base := withAPI(t)
	path := writeFile(t, t.TempDir(), "rechnung.png", png)
	if code, _, _ := run(t, append([]string{"analyze", path, "--no-wait"}, base...)...); code != ExitOK {
		t.Fatalf("submit failed")
	}

	code, out, _ := run(t, append([]string{"status", "job_1"}, base...)...)
	if code != ExitOK || !strings.Contains(out, "status:  completed") || !strings.Contains(out, "Text von rechnung.png") {
		t.Fatalf("unexpected status output %d %q", code, out)
	}

	code, out, _ = run(t, append([]string{"status", "job_1", "--json"}, base...)...)
	var job ocr.Job
	if code != ExitOK || json.Unmarshal([]byte(out), &job) != nil || job.Status != ocr.StatusCompleted {
		t.Fatalf("unexpected json status %d %q", code, out)
	}

	if code, _, _ := run(t, append([]string{"status", "job_99"}, base...)...); code != ExitFailure {
		t.Fatalf("unknown job must exit 1, got %d", code)
	}
}

func TestBatchExpandsDirectoriesAndWritesReport(t *testing.T) {
	base := withAPI(t)
	dir := t.TempDir()
	writeFile(t, dir, "b.png", png)
	writeFile(t, dir, "a.pdf", []byte("%PDF-1.4 fake"))
	writeFile(t, dir, "notes.txt", []byte("ignored"))
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o700); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, "sub"), "c.png", png)
	report := filepath.Join(t.TempDir(), "report.xlsx")

	code, out, errOut := run(t, append([]string{"batch", dir, "--xlsx", report, "-c", "2"}, base...)...)
	if code != ExitOK {
		t.Fatalf("expected exit 0, got %d: %s\n%s", code, errOut, out)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if !strings.Contains(lines[0], "a.pdf") || !strings.Contains(lines[1], "b.png") {
		t.Fatalf("expected sorted per-file lines, got %q", out)
	}
	if !strings.Contains(out, "2 documents: 2 succeeded, 0 failed") {
		t.Fatalf("missing summary in %q", out)
	}

	f, err := excelize.OpenFile(report)
	if err != nil {
		t.Fatalf("open report: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(reportSheet)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 3 || rows[0][0] != "File" || rows[1][1] != "completed" {
		t.Fatalf("unexpected report rows %v", rows)
	}
}

func TestBatchPartialFailureExitsOne(t *testing.T) {
	base := withAPI(t)
	dir := t.TempDir()
	ok := writeFile(t, dir, "gut.png", png)
	bad := writeFile(t, dir, "kaputt.png", png)

	code, out, _ := run(t, append([]string{"batch", ok, bad}, base...)...)
	if code != ExitFailure {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(out, "fail  "+bad) || !strings.Contains(out, "1 succeeded, 1 failed") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestBatchWithoutDocumentsIsUsageError(t *testing.T) {
	base := withAPI(t)
	dir := t.TempDir()
	writeFile(t, dir, "notes.txt", []byte("x"))
	if code, _, _ := run(t, append([]string{"batch", dir}, base...)...); code != ExitUsage {
		t.Fatalf("expected exit 2, got %d", code)
	}
}

func TestBatchMissingFileIsReportedPerFile(t *testing.T) {
	base := withAPI(t)
	dir := t.TempDir()
	ok := writeFile(t, dir, "gut.png", png)
	missing := filepath.Join(dir, "fehlt", "rechnung.pdf")

	code, out, errOut := run(t, append([]string{"batch", ok, missing}, base...)...)
	if code != ExitFailure {
		t.Fatalf("expected exit 1, got %d: %s", code, errOut)
	}
	if !strings.Contains(out, "ok    "+ok) || !strings.Contains(out, "fail  "+missing) {
		t.Fatalf("expected per-file lines, got %q", out)
	}
	if !strings.Contains(out, "2 documents: 1 succeeded, 1 failed") {
		t.Fatalf("missing summary in %q", out)
	}
}

func TestBatchForwardsOutputFormat(t *testing.T) {
	base := withAPI(t)
	path := writeFile(t, t.TempDir(), "beleg.png", png)
	report := filepath.Join(t.TempDir(), "report.xlsx")

	code, out, errOut := run(t, append([]string{"batch", path, "--output-format", "md", "--xlsx", report}, base...)...)
	if code != ExitOK {
		t.Fatalf("expected exit 0, got %d: %s\n%s", code, errOut, out)
	}
	f, err := excelize.OpenFile(report)
	if err != nil {
		t.Fatalf("open report: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(reportSheet)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 2 || rows[1][7] != "# Text von beleg.png" {
		t.Fatalf("expected markdown format forwarded, got %v", rows)
	}
}
