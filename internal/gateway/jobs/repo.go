package jobs

import (
	"context"
	"time"
)

// Repo persists jobs. Implementations enforce pending -> processing ->
// completed|failed and refuse to move terminal jobs with ErrTerminal.
type Repo interface {
	Create(ctx context.Context, job Job) error
	Get(ctx context.Context, id string) (Job, error)
	MarkProcessing(ctx context.Context, id string, startedAt time.Time) error
	Complete(ctx context.Context, id string, out Outcome) error
	Fail(ctx context.Context, id string, message string, processingTimeMs int64, completedAt time.Time) error
	ListUnfinished(ctx context.Context) ([]Job, error)
}
