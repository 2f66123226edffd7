package handler

import (
	"log/slog"
	"net/http"

	"github.com/cuongbtq/push-orchestrator/internal/api/dto"
	"github.com/cuongbtq/push-orchestrator/internal/job"
	"github.com/cuongbtq/push-orchestrator/internal/orchestrator"
	"github.com/gin-gonic/gin"
)

// PushWebhook handles POST /api/v1/webhooks/push
// The signature has already been verified by middleware at this point.
func (h *JobHandler) PushWebhook(c *gin.Context) {
	var req dto.WebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid webhook body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	updated, err := h.jobs.ApplyWebhook(c.Request.Context(), orchestrator.WebhookEvent{
		JobID:   req.JobID,
		Source:  job.Target(req.Source),
		Status:  job.SubStatus(req.Status),
		Message: req.Message,
		Error:   req.Error,
		Details: req.Details,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.WebhookResponse{
		Success:   true,
		JobStatus: updated.OverallStatus,
		Message:   "Webhook processed",
	})
}
