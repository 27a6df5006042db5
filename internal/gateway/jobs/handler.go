package jobs

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"german-ocr/internal/shared/metrics"
	"german-ocr/internal/shared/server/middleware"
	"german-ocr/internal/shared/server/respond"
	"german-ocr/ocr"
)

// DefaultMaxUploadBytes bounds a single multipart upload.
const DefaultMaxUploadBytes = 50 << 20

// Handler serves the analyze and job status endpoints.
type Handler struct {
	Svc            *Service
	MaxUploadBytes int64
	limiter        *pollLimiter
}

// NewHandler constructs a Handler. pollWindow is the minimum spacing of
// status polls on one job.
func NewHandler(svc *Service, pollWindow time.Duration) *Handler {
	return &Handler{
		Svc:            svc,
		MaxUploadBytes: DefaultMaxUploadBytes,
		limiter:        newPollLimiter(pollWindow, nil),
	}
}

// RegisterRoutes attaches job routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/analyze", h.analyze)
	rg.GET("/jobs/:id", h.getJob)
}

func (h *Handler) analyze(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes)

	model, err := ocr.ParseModel(c.PostForm("model"))
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "invalid_model", "model must be one of local, cloud_fast, cloud", nil)
		return
	}
	format, err := ocr.ParseOutputFormat(c.PostForm("output_format"))
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "invalid_output_format", "output_format must be text, json or markdown", nil)
		return
	}
	prompt := c.PostForm("prompt")
	if prompt != "" && strings.TrimSpace(prompt) == "" {
		respond.Error(c, http.StatusBadRequest, "invalid_prompt", "prompt must not be blank", nil)
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respond.Error(c, http.StatusRequestEntityTooLarge, "too_large", "document exceeds upload limit", nil)
			return
		}
		respond.Error(c, http.StatusBadRequest, "missing_file", "multipart field 'file' is required", nil)
		return
	}
	if fh.Size == 0 {
		respond.Error(c, http.StatusBadRequest, "empty_document", "empty document", nil)
		return
	}
	f, err := fh.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "unreadable_file", "could not read uploaded file", nil)
		return
	}
	defer f.Close()

	job, err := h.Svc.Submit(c.Request.Context(), SubmitInput{
		Principal:    middleware.PrincipalFromContext(c),
		RequestID:    middleware.RequestIDFromContext(c),
		Model:        model,
		Prompt:       prompt,
		OutputFormat: format,
		FileName:     fh.Filename,
		ContentType:  fh.Header.Get("Content-Type"),
		Body:         f,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrEmptyDocument):
			respond.Error(c, http.StatusBadRequest, "empty_document", "empty document", nil)
		case errors.Is(err, ErrUnsupportedType):
			respond.Error(c, http.StatusUnsupportedMediaType, "unsupported_type", "document must be a PDF or an image", nil)
		case errors.Is(err, ErrQueueUnavailable):
			c.Header("Retry-After", "5")
			respond.Error(c, http.StatusServiceUnavailable, "queue_full", "too many pending jobs, retry later", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to accept document", nil)
		}
		return
	}

	c.Set(middleware.JobIDKey, job.ID)
	c.Set(middleware.StatusTransitionKey, "->"+string(job.Status))
	respond.Accepted(c, job.Accepted())
}

func (h *Handler) getJob(c *gin.Context) {
	jobID := strings.TrimSpace(c.Param("id"))
	if jobID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "job id is required", nil)
		return
	}
	principal := middleware.PrincipalFromContext(c)
	c.Set(middleware.JobIDKey, jobID)

	job, err := h.Svc.Get(c.Request.Context(), principal, jobID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "job not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch job", nil)
		}
		return
	}

	// Terminal jobs never change, so re-fetching them is not limited.
	if job.Status.Terminal() {
		h.limiter.forget(principal, jobID)
	} else if ok, wait := h.limiter.Allow(principal, jobID); !ok {
		metrics.IncPollRejected()
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
		respond.Error(c, http.StatusTooManyRequests, "poll_too_fast", "job polled too frequently", gin.H{
			"retryAfterMs": wait.Milliseconds(),
		})
		return
	}

	respond.OK(c, job.Wire())
}
