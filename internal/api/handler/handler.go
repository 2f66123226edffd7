package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/push-orchestrator/internal/api/dto"
	"github.com/cuongbtq/push-orchestrator/internal/job"
	"github.com/cuongbtq/push-orchestrator/internal/orchestrator"
	"github.com/gin-gonic/gin"
)

// JobService is the job state machine as seen by the HTTP layer
type JobService interface {
	Create(ctx context.Context, jobID, commitID string, target job.Target) (job.Job, error)
	UpdateTargetStatus(ctx context.Context, jobID string, target job.Target, status job.SubStatus, result *job.Result) (job.Job, error)
	ApplyWebhook(ctx context.Context, event orchestrator.WebhookEvent) (job.Job, error)
	GetStatus(ctx context.Context, jobID string) (job.Job, error)
	ListActive(ctx context.Context) ([]job.Job, error)
	ListJobs(ctx context.Context) ([]job.Job, error)
}

// HealthCheck reports the health of one backing dependency
type HealthCheck func(ctx context.Context) error

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger       *slog.Logger
	Jobs         JobService
	LiveChannel  gin.HandlerFunc
	HealthChecks map[string]HealthCheck

	// WebhookSecret enables signature verification when non-empty
	WebhookSecret   string
	SignatureHeader string
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger *slog.Logger
	jobs   JobService
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger: deps.Logger,
		jobs:   deps.Jobs,
	}
}

// writeError maps domain errors onto HTTP status codes
func (h *JobHandler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := "Internal error"

	switch {
	case errors.Is(err, job.ErrJobNotFound):
		status, message = http.StatusNotFound, "Job not found"
	case errors.Is(err, job.ErrJobExists):
		status, message = http.StatusConflict, "Job already exists"
	case errors.Is(err, job.ErrInvalidJobID),
		errors.Is(err, job.ErrInvalidTarget),
		errors.Is(err, job.ErrInvalidStatus):
		status, message = http.StatusBadRequest, err.Error()
	case job.IsPersistenceError(err):
		message = "Failed to persist job state"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status, message = http.StatusServiceUnavailable, "Job store is not ready"
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			slog.String("path", c.Request.URL.Path),
			slog.Any("error", err),
		)
	}
	c.JSON(status, dto.ErrorResponse{Error: message})
}
