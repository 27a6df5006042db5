package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"german-ocr/internal/extract"
	"german-ocr/internal/inference"
	"german-ocr/internal/queue"
	"german-ocr/internal/shared/metrics"
	"german-ocr/internal/shared/storage/object"
	"german-ocr/internal/shared/telemetry"
	"german-ocr/ocr"
)

// SubmitInput is a parsed POST /v1/analyze request.
type SubmitInput struct {
	Principal    string
	RequestID    string
	Model        ocr.Model
	Prompt       string
	OutputFormat ocr.OutputFormat
	FileName     string
	ContentType  string
	Body         io.Reader
}

// Service runs the job lifecycle: accept, queue, process, report.
type Service struct {
	Repo   Repo
	Store  object.ObjectStore
	Queue  queue.Client
	Engine inference.Engine
	// Models maps a selector to the runtime model name.
	Models map[ocr.Model]string
	// KeepUploads leaves documents in the store after a job finishes.
	KeepUploads bool
	Now         func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Submit stores the upload, records a pending job and queues it.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (Job, error) {
	if s.Repo == nil || s.Store == nil || s.Queue == nil {
		return Job{}, errors.New("jobs service not configured")
	}
	if !in.Model.Valid() {
		return Job{}, fmt.Errorf("%w: %q", ocr.ErrInvalidModel, in.Model)
	}

	obj, err := s.Store.Save(ctx, in.Principal, in.FileName, in.Body)
	if err != nil {
		return Job{}, fmt.Errorf("store upload: %w", err)
	}
	if obj.Size == 0 {
		s.discard(obj.Key)
		return Job{}, ErrEmptyDocument
	}
	contentType := extract.DetectMimeType(in.ContentType, in.FileName, nil)
	if extract.KindOf(contentType) == extract.KindUnsupported {
		contentType = extract.DetectMimeType(obj.ContentType, in.FileName, nil)
	}
	if extract.KindOf(contentType) == extract.KindUnsupported {
		s.discard(obj.Key)
		return Job{}, fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}

	job := Job{
		ID:           uuid.NewString(),
		Principal:    in.Principal,
		Model:        in.Model,
		Status:       ocr.StatusPending,
		Prompt:       in.Prompt,
		OutputFormat: in.OutputFormat,
		FileName:     in.FileName,
		ContentType:  contentType,
		ObjectKey:    obj.Key,
		CreatedAt:    s.now(),
	}
	if err := s.Repo.Create(ctx, job); err != nil {
		s.discard(obj.Key)
		return Job{}, fmt.Errorf("create job: %w", err)
	}

	if err := s.Queue.Send(ctx, queue.NewMessage(job.ID, in.RequestID, job.CreatedAt)); err != nil {
		s.failJob(context.WithoutCancel(ctx), job, ReasonInternal, "job queue unavailable", nil)
		return Job{}, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}

	metrics.IncJobSubmitted(string(job.Model))
	telemetry.Info("job.status", map[string]any{
		"request_id": in.RequestID,
		"job_id":     job.ID,
		"model":      job.Model,
		"status":     job.Status,
		"size_bytes": obj.Size,
	})
	return job, nil
}

// Get returns a job owned by principal. Jobs of other principals are
// reported as not found.
func (s *Service) Get(ctx context.Context, principal, id string) (Job, error) {
	if strings.TrimSpace(id) == "" {
		return Job{}, ErrNotFound
	}
	job, err := s.Repo.Get(ctx, id)
	if err != nil {
		return Job{}, err
	}
	if job.Principal != principal {
		return Job{}, ErrNotFound
	}
	return job, nil
}

// ProcessJob runs a queued job to a terminal status. Failures of the job
// itself are recorded on the job; the returned error only reports that the
// job could not be run or recorded.
func (s *Service) ProcessJob(ctx context.Context, id string) (err error) {
	job, err := s.Repo.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("job lookup: %w", err)
	}
	if job.Status.Terminal() {
		return nil
	}

	startedAt := s.now()
	if err := s.Repo.MarkProcessing(ctx, id, startedAt); err != nil {
		if errors.Is(err, ErrTerminal) {
			return nil
		}
		return fmt.Errorf("mark processing: %w", err)
	}
	from := job.Status
	job.Status = ocr.StatusProcessing
	s.logTransition(job, from, ocr.StatusProcessing, nil)

	defer func() {
		if r := recover(); r != nil {
			s.failJob(ctx, job, ReasonInternal, fmt.Sprintf("internal error: %v", r), &startedAt)
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	out, reason, runErr := s.run(ctx, job)
	if runErr != nil {
		s.failJob(ctx, job, reason, sanitizeError(runErr), &startedAt)
		return nil
	}

	completedAt := s.now()
	out.CompletedAt = completedAt
	out.ProcessingTimeMs = completedAt.Sub(startedAt).Milliseconds()
	if err := s.Repo.Complete(ctx, id, out); err != nil {
		if errors.Is(err, ErrTerminal) {
			return nil
		}
		s.failJob(ctx, job, ReasonStorage, "failed to store result", &startedAt)
		return fmt.Errorf("complete job: %w", err)
	}

	metrics.IncJobCompleted(string(job.Model))
	metrics.ObserveJobDuration(string(job.Model), string(ocr.StatusCompleted), completedAt.Sub(startedAt))
	s.logTransition(job, ocr.StatusProcessing, ocr.StatusCompleted, map[string]any{
		"duration_ms": out.ProcessingTimeMs,
		"pages":       out.Pages,
	})
	s.discard(job.ObjectKey)
	return nil
}

// run produces the outcome for a job. The reason classifies failures.
func (s *Service) run(ctx context.Context, job Job) (Outcome, string, error) {
	if s.Engine == nil {
		return Outcome{}, ReasonInternal, errors.New("no inference engine configured")
	}
	data, err := extract.Load(ctx, s.Store, job.ObjectKey)
	if err != nil {
		return Outcome{}, ReasonStorage, fmt.Errorf("load document: %w", err)
	}
	modelName := s.Models[job.Model]
	if modelName == "" {
		modelName = string(job.Model)
	}

	switch extract.KindOf(job.ContentType) {
	case extract.KindPDF:
		text, pages, err := extract.PDFText(ctx, data)
		if errors.Is(err, extract.ErrNoTextLayer) {
			return Outcome{}, ReasonNoTextLayer, err
		}
		if err != nil {
			return Outcome{}, ReasonInference, fmt.Errorf("read pdf: %w", err)
		}
		if strings.TrimSpace(job.Prompt) == "" && job.OutputFormat != ocr.OutputJSON {
			return Outcome{Text: text, Pages: pages}, "", nil
		}
		prompt := job.Prompt
		if strings.TrimSpace(prompt) == "" {
			prompt = "Convert this document text into structured data."
		}
		resp, err := s.Engine.Generate(ctx, inference.Request{
			Model:  modelName,
			Prompt: inference.BuildTextPrompt(prompt, text, job.OutputFormat),
		})
		if err != nil {
			return Outcome{}, classifyEngineError(err), fmt.Errorf("inference: %w", err)
		}
		return Outcome{Text: resp.Text, Pages: pages, Tokens: tokens(resp)}, "", nil

	case extract.KindImage:
		prompt := inference.BuildImagePrompt(job.Prompt, job.OutputFormat)
		resp, err := s.Engine.Generate(ctx, inference.Request{
			Model:  modelName,
			Prompt: prompt,
			Images: [][]byte{data},
		})
		if err != nil {
			return Outcome{}, classifyEngineError(err), fmt.Errorf("inference: %w", err)
		}
		return Outcome{Text: inference.StripEcho(resp.Text, prompt), Pages: 1, Tokens: tokens(resp)}, "", nil
	}
	return Outcome{}, ReasonInternal, fmt.Errorf("%w: %s", ErrUnsupportedType, job.ContentType)
}

// Recover re-queues jobs left unfinished by a previous process. It blocks
// while the queue is full, so workers must already be consuming. Jobs that
// cannot be queued are marked failed.
func (s *Service) Recover(ctx context.Context) (int, error) {
	unfinished, err := s.Repo.ListUnfinished(ctx)
	if err != nil {
		return 0, fmt.Errorf("list unfinished: %w", err)
	}
	requeued, failed := 0, 0
	for _, job := range unfinished {
		err := s.requeue(ctx, queue.NewMessage(job.ID, "", s.now()))
		if err == nil {
			requeued++
			continue
		}
		if ctx.Err() != nil {
			return requeued, fmt.Errorf("requeue %s: %w", job.ID, err)
		}
		// A job that cannot be queued would stay pending forever.
		s.failJob(ctx, job, ReasonInternal, "job could not be requeued after restart", nil)
		failed++
	}
	if requeued > 0 || failed > 0 {
		telemetry.Info("job.recovered", map[string]any{"count": requeued, "failed": failed})
	}
	return requeued, nil
}

// requeue waits for room when the queue supports it. Recovery may find
// more unfinished jobs than the queue holds.
func (s *Service) requeue(ctx context.Context, msg queue.Message) error {
	if w, ok := s.Queue.(queue.WaitingClient); ok {
		return w.SendWait(ctx, msg)
	}
	return s.Queue.Send(ctx, msg)
}

func (s *Service) failJob(ctx context.Context, job Job, reason, message string, startedAt *time.Time) {
	completedAt := s.now()
	var elapsed time.Duration
	if startedAt != nil {
		elapsed = completedAt.Sub(*startedAt)
	}
	if err := s.Repo.Fail(context.WithoutCancel(ctx), job.ID, message, elapsed.Milliseconds(), completedAt); err != nil {
		if !errors.Is(err, ErrTerminal) {
			telemetry.Error("job.fail.update_failed", map[string]any{
				"job_id": job.ID,
				"error":  err.Error(),
				"cause":  message,
			})
		}
		return
	}
	metrics.IncJobFailed(string(job.Model), reason)
	if startedAt != nil {
		metrics.ObserveJobDuration(string(job.Model), string(ocr.StatusFailed), elapsed)
	}
	s.logTransition(job, job.Status, ocr.StatusFailed, map[string]any{
		"reason":      reason,
		"error":       message,
		"duration_ms": elapsed.Milliseconds(),
	})
	s.discard(job.ObjectKey)
}

func (s *Service) logTransition(job Job, from, to ocr.JobStatus, extra map[string]any) {
	fields := map[string]any{
		"job_id":            job.ID,
		"model":             job.Model,
		"status":            to,
		"status_transition": string(from) + "->" + string(to),
	}
	for k, v := range extra {
		fields[k] = v
	}
	telemetry.Info("job.status", fields)
}

// discard removes a finished job's upload unless uploads are kept.
func (s *Service) discard(key string) {
	if s.KeepUploads || key == "" || s.Store == nil {
		return
	}
	if err := s.Store.Delete(context.Background(), key); err != nil {
		telemetry.Warn("job.upload.delete_failed", map[string]any{"key": key, "error": err.Error()})
	}
}

func tokens(resp inference.Response) *ocr.TokenUsage {
	if resp.InputTokens == 0 && resp.OutputTokens == 0 {
		return nil
	}
	return &ocr.TokenUsage{
		Input:  resp.InputTokens,
		Output: resp.OutputTokens,
		Total:  resp.InputTokens + resp.OutputTokens,
	}
}

func classifyEngineError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "timeout") {
		return ReasonTimeout
	}
	return ReasonInference
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.TrimSpace(msg)
	const maxLen = 500
	if len(msg) > maxLen {
		msg = msg[:maxLen]
	}
	return msg
}
