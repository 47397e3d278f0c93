package api

import (
	"fieldsync/internal/metrics"
	"fieldsync/internal/middleware"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(queueHandler *QueueHandler, jwtSecret []byte) *gin.Engine {
	r := gin.New()

	r.Use(
		middleware.CorsMiddleware(),
		middleware.GinZapLogger(),
		middleware.GinZapRecovery(),
	)
	r.SetTrustedProxies(nil)

	// Public Routes
	r.GET("/health", queueHandler.HealthCheck)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Queue Routes (UI / dashboard)
	protected := r.Group("/v1")
	protected.Use(middleware.JWTMiddleware(jwtSecret))
	{
		protected.POST("/queue", queueHandler.Enqueue)
		protected.GET("/queue", queueHandler.GetQueue)
		protected.GET("/queue/counts", queueHandler.GetCounts)
		protected.POST("/queue/retry-all", queueHandler.RetryAllFailed)
		protected.GET("/queue/items/:id/status", queueHandler.GetSyncStatus)
		protected.POST("/queue/items/:id/retry", queueHandler.RetryItem)
		protected.DELETE("/queue/items/:id", queueHandler.RemoveItem)
		protected.POST("/sync", queueHandler.TriggerSync)
	}
	return r
}
