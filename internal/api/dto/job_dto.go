package dto

import "github.com/cuongbtq/push-orchestrator/internal/job"

type CreateJobRequest struct {
	JobID    string `json:"jobId" binding:"required"`
	CommitID string `json:"commitId"`
	Target   string `json:"target" binding:"required"`
}

type UpdateStatusRequest struct {
	Target string      `json:"target" binding:"required"`
	Status string      `json:"status" binding:"required"`
	Result *job.Result `json:"result,omitempty"`
}

type WebhookRequest struct {
	JobID   string         `json:"jobId" binding:"required"`
	Source  string         `json:"source" binding:"required"`
	Status  string         `json:"status" binding:"required"`
	Message string         `json:"message,omitempty"`
	Error   string         `json:"error,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

type ListJobsRequest struct {
	Active   bool   `form:"active"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type JobResponse struct {
	Success bool    `json:"success"`
	Job     job.Job `json:"job"`
}

type WebhookResponse struct {
	Success   bool              `json:"success"`
	JobStatus job.OverallStatus `json:"jobStatus"`
	Message   string            `json:"message"`
}

type ListJobsResponse struct {
	Jobs       []job.Job `json:"jobs"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}
