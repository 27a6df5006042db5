package jobs

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"german-ocr/internal/inference"
	"german-ocr/internal/queue"
	"german-ocr/internal/shared/storage/object/local"
	"german-ocr/internal/shared/telemetry"
	"german-ocr/ocr"
)

type fakeEngine struct {
	mu       sync.Mutex
	requests []inference.Request
	text     string
	err      error
}

func (e *fakeEngine) Generate(ctx context.Context, req inference.Request) (inference.Response, error) {
	e.mu.Lock()
	e.requests = append(e.requests, req)
	e.mu.Unlock()
	if e.err != nil {
		return inference.Response{}, e.err
	}
	return inference.Response{Text: e.text, Model: req.Model, InputTokens: 900, OutputTokens: 120}, nil
}

func (e *fakeEngine) last() inference.Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.requests) == 0 {
		return inference.Request{}
	}
	return e.requests[len(e.requests)-1]
}

type failingQueue struct{}

func (failingQueue) Send(ctx context.Context, msg queue.Message) error { return queue.ErrQueueFull }

type fixture struct {
	svc    *Service
	repo   *MemoryRepo
	queue  *queue.MemoryQueue
	engine *fakeEngine
	store  *local.Store
	dir    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	telemetry.SetOutput(io.Discard)
	t.Cleanup(func() { telemetry.SetOutput(nil) })

	dir := t.TempDir()
	f := &fixture{
		repo:   NewMemoryRepo(),
		queue:  queue.NewMemoryQueue(16),
		engine: &fakeEngine{text: "Rechnung Nr. 2024-001"},
		store:  local.New(dir),
		dir:    dir,
	}
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	f.svc = &Service{
		Repo:   f.repo,
		Store:  f.store,
		Queue:  f.queue,
		Engine: f.engine,
		Models: map[ocr.Model]string{ocr.ModelCloudFast: "german-ocr", ocr.ModelLocal: "german-ocr-turbo"},
		Now: func() time.Time {
			now = now.Add(250 * time.Millisecond)
			return now
		},
	}
	return f
}

// drain runs every queued message through ProcessJob.
func (f *fixture) drain(t *testing.T) {
	t.Helper()
	for f.queue.Len() > 0 {
		payload, ok := f.queue.Receive(context.Background())
		if !ok {
			return
		}
		msg, _, err := queue.ParseMessage(payload)
		if err != nil {
			t.Fatalf("parse queued message: %v", err)
		}
		if err := f.svc.ProcessJob(context.Background(), msg.JobID); err != nil {
			t.Fatalf("process %s: %v", msg.JobID, err)
		}
	}
}

var errEngineDown = errors.New("connection refused")

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)
