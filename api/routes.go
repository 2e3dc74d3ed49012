package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/docrelay/docrelay/api/handlers"
	"github.com/docrelay/docrelay/api/middleware"
	"github.com/docrelay/docrelay/internal/tracing"
	"github.com/docrelay/docrelay/services"
)

// RegisterRoutes sets up all API endpoints
func RegisterRoutes(ctx context.Context, r *gin.Engine, s *services.Services, apikey string) {
	if s == nil {
		panic("Services cannot be nil")
	}

	// Add recovery middlewares
	r.Use(gin.Recovery())
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer()))

	// Health check and status endpoints (no auth needed)
	r.GET("/health", handlers.HealthCheck)
	r.GET("/status", handlers.Status(s.SessionRegistry))

	apiKeyMiddleware := middleware.APIKeyMiddleware(middleware.APIKeyConfig{
		HeaderName:  "X-DOCRELAY-API-KEY",
		ValidAPIKey: apikey,
	})

	// API group with version
	api := r.Group("/v1")
	api.Use(apiKeyMiddleware)
	api.Use(middleware.TracingMiddleware())
	{
		accounts := api.Group("/accounts")
		{
			accounts.POST("/test-connection", handlers.TestConnection(s.SessionRegistry))
			accounts.POST("/:address/polling/start", handlers.StartPolling(s.SessionRegistry))
			accounts.POST("/:address/polling/stop", handlers.StopPolling(s.SessionRegistry))
			accounts.GET("/:address/status", handlers.AccountStatus(s.SessionRegistry))
			accounts.PUT("/:address/notification-email", handlers.SetNotificationEmail(s.SessionRegistry))
		}

		debug := api.Group("/debug")
		{
			debug.GET("/polling", handlers.DebugPolling(s.SessionRegistry))
		}
	}
}
