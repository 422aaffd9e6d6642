package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/enkapcm/payment-service/internal/config"
	"github.com/enkapcm/payment-service/internal/handlers"
	"github.com/enkapcm/payment-service/internal/middleware"
)

// SetupRoutes wires all HTTP endpoints.
//
// The notification paths are part of the provider contract: enKap is
// configured with them and they must stay stable.
func SetupRoutes(router *gin.Engine, cfg *config.Config, enkapHandler *handlers.EnkapHandler, paymentHandler *handlers.PaymentHandler) {
	notificationLimiter := middleware.NewRateLimiter(20, 40)

	// Provider-facing notification endpoints (public)
	enkapGroup := router.Group("/payment/enkap")
	enkapGroup.Use(notificationLimiter.Middleware())
	{
		enkapGroup.GET("/callback/:reference", enkapHandler.Callback)
		enkapGroup.POST("/callback/:reference", enkapHandler.Callback)
		enkapGroup.GET("/return/:reference", enkapHandler.Return)
		enkapGroup.POST("/webhook", enkapHandler.Webhook)
	}

	// Admin connectivity check
	adminGroup := router.Group("/payment/enkap")
	adminGroup.Use(middleware.AuthMiddleware(cfg.JWT.Secret))
	adminGroup.Use(middleware.AdminMiddleware())
	{
		adminGroup.GET("/test", enkapHandler.TestConnection)
	}

	// Checkout API (authenticated)
	api := router.Group("/api")
	api.Use(middleware.AuthMiddleware(cfg.JWT.Secret))
	{
		api.POST("/payments", paymentHandler.InitiatePayment)
		api.GET("/payments/:reference", paymentHandler.GetPayment)
	}
}
