package jobs

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"german-ocr/ocr"
)

// PGRepo implements Repo on Postgres via database/sql and the pgx driver.
type PGRepo struct {
	DB *sql.DB
}

var _ Repo = (*PGRepo)(nil)

const jobColumns = `id, principal, model, status, prompt, output_format, file_name, content_type, object_key,
       result_text, pages, error_message, tokens_input, tokens_output, processing_time_ms,
       created_at, started_at, completed_at`

// Create inserts a new job.
func (r *PGRepo) Create(ctx context.Context, job Job) error {
	const query = `
INSERT INTO jobs (id, principal, model, status, prompt, output_format, file_name, content_type, object_key, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.DB.ExecContext(ctx, query,
		job.ID,
		job.Principal,
		string(job.Model),
		string(job.Status),
		nullString(job.Prompt),
		nullString(string(job.OutputFormat)),
		job.FileName,
		job.ContentType,
		job.ObjectKey,
		job.CreatedAt,
	)
	return err
}

// Get returns a job by ID.
func (r *PGRepo) Get(ctx context.Context, id string) (Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1 LIMIT 1`
	job, err := scanJob(r.DB.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	return job, err
}

// MarkProcessing moves a pending (or re-run processing) job to processing.
func (r *PGRepo) MarkProcessing(ctx context.Context, id string, startedAt time.Time) error {
	const query = `
UPDATE jobs SET status = 'processing', started_at = COALESCE(started_at, $2)
WHERE id = $1 AND status IN ('pending', 'processing')`
	res, err := r.DB.ExecContext(ctx, query, id, startedAt)
	if err != nil {
		return err
	}
	return r.checkTransition(ctx, res, id)
}

// Complete stores the outcome of a processing job.
func (r *PGRepo) Complete(ctx context.Context, id string, out Outcome) error {
	const query = `
UPDATE jobs SET status = 'completed', result_text = $2, pages = $3, tokens_input = $4, tokens_output = $5,
       processing_time_ms = $6, completed_at = $7
WHERE id = $1 AND status = 'processing'`
	var in, outTokens sql.NullInt64
	if out.Tokens != nil {
		in = sql.NullInt64{Int64: int64(out.Tokens.Input), Valid: true}
		outTokens = sql.NullInt64{Int64: int64(out.Tokens.Output), Valid: true}
	}
	res, err := r.DB.ExecContext(ctx, query, id, out.Text, out.Pages, in, outTokens, out.ProcessingTimeMs, out.CompletedAt)
	if err != nil {
		return err
	}
	return r.checkTransition(ctx, res, id)
}

// Fail moves a non-terminal job to failed.
func (r *PGRepo) Fail(ctx context.Context, id string, message string, processingTimeMs int64, completedAt time.Time) error {
	const query = `
UPDATE jobs SET status = 'failed', error_message = $2, processing_time_ms = $3, completed_at = $4
WHERE id = $1 AND status IN ('pending', 'processing')`
	res, err := r.DB.ExecContext(ctx, query, id, message, processingTimeMs, completedAt)
	if err != nil {
		return err
	}
	return r.checkTransition(ctx, res, id)
}

// ListUnfinished returns pending and processing jobs, oldest first.
func (r *PGRepo) ListUnfinished(ctx context.Context) ([]Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE status IN ('pending', 'processing') ORDER BY created_at ASC`
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// checkTransition explains a zero-row UPDATE: unknown id, terminal job, or
// a status the transition does not start from.
func (r *PGRepo) checkTransition(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var status string
	err = r.DB.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if ocr.JobStatus(status).Terminal() {
		return ErrTerminal
	}
	return ErrInvalidTransition
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (Job, error) {
	var (
		job          Job
		model        string
		status       string
		prompt       sql.NullString
		outputFormat sql.NullString
		resultText   sql.NullString
		pages        sql.NullInt64
		errorMessage sql.NullString
		tokensIn     sql.NullInt64
		tokensOut    sql.NullInt64
		processingMs sql.NullInt64
		startedAt    sql.NullTime
		completedAt  sql.NullTime
	)
	err := row.Scan(
		&job.ID,
		&job.Principal,
		&model,
		&status,
		&prompt,
		&outputFormat,
		&job.FileName,
		&job.ContentType,
		&job.ObjectKey,
		&resultText,
		&pages,
		&errorMessage,
		&tokensIn,
		&tokensOut,
		&processingMs,
		&job.CreatedAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return Job{}, err
	}
	job.Model = ocr.Model(model)
	job.Status = ocr.JobStatus(status)
	job.Prompt = prompt.String
	job.OutputFormat = ocr.OutputFormat(outputFormat.String)
	if resultText.Valid {
		text := resultText.String
		job.ResultText = &text
	}
	job.Pages = int(pages.Int64)
	job.ErrorMessage = errorMessage.String
	if tokensIn.Valid || tokensOut.Valid {
		job.Tokens = &ocr.TokenUsage{
			Input:  int(tokensIn.Int64),
			Output: int(tokensOut.Int64),
			Total:  int(tokensIn.Int64 + tokensOut.Int64),
		}
	}
	job.ProcessingTimeMs = processingMs.Int64
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	return job, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
