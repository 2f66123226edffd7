package router

import (
	"github.com/cuongbtq/push-orchestrator/internal/api/handler"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", handler.Health(deps))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	jobHandler := handler.NewJobHandler(deps)

	v1 := r.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		{
			jobs.POST("", jobHandler.CreateJob)
			jobs.GET("", jobHandler.ListJobs)
			jobs.GET("/:job_id", jobHandler.GetJob)
			jobs.POST("/:job_id/status", jobHandler.UpdateStatus)
		}

		webhooks := v1.Group("/webhooks")
		webhooks.Use(WebhookSignatureMiddleware(deps.WebhookSecret, deps.SignatureHeader, deps.Logger))
		{
			webhooks.POST("/push", jobHandler.PushWebhook)
		}

		if deps.LiveChannel != nil {
			v1.GET("/ws", deps.LiveChannel)
		}
	}

	return r
}
