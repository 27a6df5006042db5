package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"german-ocr/internal/shared/metrics"
	"german-ocr/internal/shared/telemetry"
)

const (
	defaultWorkerConcurrency = 2
	defaultShutdownTimeout   = 30 * time.Second
)

// Processor runs one job to a terminal status.
type Processor interface {
	ProcessJob(ctx context.Context, jobID string) error
}

// Source yields encoded messages to workers.
type Source interface {
	Receive(ctx context.Context) ([]byte, bool)
	Len() int
}

// Pool consumes a Source with a fixed number of concurrent workers.
type Pool struct {
	Source          Source
	Processor       Processor
	Concurrency     int
	ShutdownTimeout time.Duration
}

// Run blocks until ctx is done or the source is exhausted. In-flight jobs
// keep running after ctx is canceled and get ShutdownTimeout to finish;
// after that their context is canceled too.
func (p *Pool) Run(ctx context.Context) error {
	if p.Source == nil || p.Processor == nil {
		return errors.New("queue: pool needs a source and a processor")
	}
	concurrency := p.Concurrency
	if concurrency <= 0 {
		concurrency = defaultWorkerConcurrency
	}
	shutdownTimeout := p.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}

	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	telemetry.Info("worker.started", map[string]any{"concurrency": concurrency})

receiveLoop:
	for {
		select {
		case <-ctx.Done():
			break receiveLoop
		case sem <- struct{}{}:
		}
		payload, ok := p.Source.Receive(ctx)
		if !ok {
			<-sem
			break receiveLoop
		}
		metrics.SetQueueDepth(p.Source.Len())
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			p.handle(workCtx, payload)
		}()
	}

	telemetry.Info("worker.draining", map[string]any{"timeout_ms": shutdownTimeout.Milliseconds()})
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		telemetry.Warn("worker.shutdown_timeout", map[string]any{"timeout_ms": shutdownTimeout.Milliseconds()})
		cancelWork()
		<-done
	}
	return nil
}

func (p *Pool) handle(ctx context.Context, payload []byte) {
	msg, meta, err := ParseMessage(payload)
	if err != nil {
		fields := map[string]any{"body_len": meta.BodyLen, "body_sha256": meta.BodySHA}
		switch e := err.(type) {
		case ErrEmptyBody:
			telemetry.Error("worker.job.empty_body", fields)
		case ErrDecode:
			fields["error"] = e.Err.Error()
			telemetry.Error("worker.job.decode_failed", fields)
		case ErrMissingJobID:
			fields["request_id"] = e.RequestID
			telemetry.Error("worker.job.missing_id", fields)
		default:
			fields["error"] = err.Error()
			telemetry.Error("worker.job.decode_failed", fields)
		}
		return
	}

	fields := map[string]any{"job_id": msg.JobID, "request_id": msg.RequestID}
	if enqueued, err := time.Parse(time.RFC3339Nano, msg.EnqueuedAt); err == nil {
		fields["queued_ms"] = time.Since(enqueued).Milliseconds()
	}
	telemetry.Info("worker.job.received", fields)

	if err := p.Processor.ProcessJob(ctx, msg.JobID); err != nil {
		fields["error"] = err.Error()
		telemetry.Error("worker.job.failed", fields)
		return
	}
	telemetry.Info("worker.job.done", fields)
}
