package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"german-ocr/ocr"
)

func TestMemoryRepoTransitions(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	if err := repo.Create(ctx, Job{ID: "j1", Status: ocr.StatusPending, CreatedAt: created}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := repo.Complete(ctx, "j1", Outcome{Text: "x"}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("pending->completed must be rejected, got %v", err)
	}
	if err := repo.MarkProcessing(ctx, "j1", created.Add(time.Second)); err != nil {
		t.Fatalf("mark processing: %v", err)
	}
	if err := repo.MarkProcessing(ctx, "j1", created.Add(2*time.Second)); err != nil {
		t.Fatalf("re-mark processing: %v", err)
	}
	job, _ := repo.Get(ctx, "j1")
	if !job.StartedAt.Equal(created.Add(time.Second)) {
		t.Fatalf("started_at must keep the first value, got %v", job.StartedAt)
	}

	if err := repo.Complete(ctx, "j1", Outcome{Text: "Hallo", Pages: 1, CompletedAt: created.Add(3 * time.Second)}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	for name, err := range map[string]error{
		"mark":     repo.MarkProcessing(ctx, "j1", created),
		"complete": repo.Complete(ctx, "j1", Outcome{Text: "other"}),
		"fail":     repo.Fail(ctx, "j1", "late", 0, created),
	} {
		if !errors.Is(err, ErrTerminal) {
			t.Fatalf("%s on terminal job: expected ErrTerminal, got %v", name, err)
		}
	}
	job, _ = repo.Get(ctx, "j1")
	if job.Status != ocr.StatusCompleted || *job.ResultText != "Hallo" {
		t.Fatalf("terminal job mutated: %+v", job)
	}
}

func TestMemoryRepoNotFoundAndUnfinished(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := repo.Fail(ctx, "missing", "x", 0, time.Now()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	_ = repo.Create(ctx, Job{ID: "late", Status: ocr.StatusPending, CreatedAt: base.Add(time.Minute)})
	_ = repo.Create(ctx, Job{ID: "early", Status: ocr.StatusProcessing, CreatedAt: base})
	_ = repo.Create(ctx, Job{ID: "done", Status: ocr.StatusFailed, CreatedAt: base})

	unfinished, err := repo.ListUnfinished(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(unfinished) != 2 || unfinished[0].ID != "early" || unfinished[1].ID != "late" {
		t.Fatalf("unexpected unfinished jobs %+v", unfinished)
	}
}
