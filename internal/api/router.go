package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brpag/pix-gateway/internal/telemetry"
)

// SetupRouter configures the Gin router with all routes and middleware.
func SetupRouter(handler *Handler, ginMode, apiKey string) *gin.Engine {
	gin.SetMode(ginMode)

	router := gin.New()

	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(CORSMiddleware())
	router.Use(RequestIDMiddleware())
	router.Use(telemetry.TracingMiddleware())
	router.Use(MetricsMiddleware())

	// Operational endpoints, no auth required.
	router.GET("/health", handler.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(APIKeyMiddleware(apiKey))
	{
		charges := v1.Group("/charges")
		{
			charges.POST("", handler.CreateCharge)
			charges.GET("/:transactionId/status", handler.CheckStatus)
		}
	}

	// Provider callbacks authenticate by signature where the provider
	// supports one, never by API key.
	router.POST("/webhooks/:provider", handler.HandleWebhook)

	return router
}
