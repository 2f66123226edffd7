package handler

import (
	"log/slog"
	"net/http"

	"github.com/cuongbtq/push-orchestrator/internal/api/dto"
	"github.com/cuongbtq/push-orchestrator/internal/job"
	"github.com/gin-gonic/gin"
)

const (
	defaultPageSize = 100
	maxPageSize     = 100
)

// CreateJob handles POST /api/v1/jobs
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	created, err := h.jobs.Create(c.Request.Context(), req.JobID, req.CommitID, job.Target(req.Target))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.JobResponse{Success: true, Job: created})
}

// GetJob handles GET /api/v1/jobs/:job_id
func (h *JobHandler) GetJob(c *gin.Context) {
	current, err := h.jobs.GetStatus(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, current)
}

// ListJobs handles GET /api/v1/jobs
// Lists all jobs, or only non-terminal ones with active=true
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Warn("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid query parameters"})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Warn("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid cursor"})
		return
	}

	var jobs []job.Job
	if req.Active {
		jobs, err = h.jobs.ListActive(c.Request.Context())
	} else {
		jobs, err = h.jobs.ListJobs(c.Request.Context())
	}
	if err != nil {
		h.writeError(c, err)
		return
	}

	page, next := paginate(jobs, cursor, req.PageSize)
	if page == nil {
		page = []job.Job{}
	}
	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       page,
		NextCursor: next,
	})
}

// UpdateStatus handles POST /api/v1/jobs/:job_id/status
// Records progress of one target as reported by the pushing caller
func (h *JobHandler) UpdateStatus(c *gin.Context) {
	var req dto.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	updated, err := h.jobs.UpdateTargetStatus(
		c.Request.Context(),
		c.Param("job_id"),
		job.Target(req.Target),
		job.SubStatus(req.Status),
		req.Result,
	)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.JobResponse{Success: true, Job: updated})
}
