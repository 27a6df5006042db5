package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"german-ocr/ocr"
)

// MemoryRepo stores jobs in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu   sync.RWMutex
	byID map[string]Job
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: make(map[string]Job)}
}

var _ Repo = (*MemoryRepo)(nil)

// Create stores a new job.
func (r *MemoryRepo) Create(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[job.ID] = job
	return nil
}

// Get returns a copy of the job.
func (r *MemoryRepo) Get(ctx context.Context, id string) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.byID[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return job, nil
}

// MarkProcessing moves a pending job to processing. Re-marking a job that
// is already processing is allowed so recovered jobs can be re-run.
func (r *MemoryRepo) MarkProcessing(ctx context.Context, id string, startedAt time.Time) error {
	return r.update(ctx, id, func(job *Job) error {
		if job.Status.Terminal() {
			return ErrTerminal
		}
		job.Status = ocr.StatusProcessing
		if job.StartedAt == nil {
			t := startedAt
			job.StartedAt = &t
		}
		return nil
	})
}

// Complete stores the outcome and moves a processing job to completed.
func (r *MemoryRepo) Complete(ctx context.Context, id string, out Outcome) error {
	return r.update(ctx, id, func(job *Job) error {
		if job.Status.Terminal() {
			return ErrTerminal
		}
		if job.Status != ocr.StatusProcessing {
			return ErrInvalidTransition
		}
		text := out.Text
		job.Status = ocr.StatusCompleted
		job.ResultText = &text
		job.Pages = out.Pages
		job.Tokens = out.Tokens
		job.ProcessingTimeMs = out.ProcessingTimeMs
		t := out.CompletedAt
		job.CompletedAt = &t
		return nil
	})
}

// Fail moves a non-terminal job to failed.
func (r *MemoryRepo) Fail(ctx context.Context, id string, message string, processingTimeMs int64, completedAt time.Time) error {
	return r.update(ctx, id, func(job *Job) error {
		if job.Status.Terminal() {
			return ErrTerminal
		}
		job.Status = ocr.StatusFailed
		job.ErrorMessage = message
		job.ProcessingTimeMs = processingTimeMs
		t := completedAt
		job.CompletedAt = &t
		return nil
	})
}

// ListUnfinished returns pending and processing jobs, oldest first.
func (r *MemoryRepo) ListUnfinished(ctx context.Context) ([]Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]Job, 0)
	for _, job := range r.byID {
		if !job.Status.Terminal() {
			out = append(out, job)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemoryRepo) update(ctx context.Context, id string, fn func(*Job) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	if err := fn(&job); err != nil {
		return err
	}
	r.byID[id] = job
	return nil
}
