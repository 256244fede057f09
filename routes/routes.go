package routes

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"pricewatch_backend/controllers"
	"pricewatch_backend/middleware"
	"pricewatch_backend/services/alerts"
	"pricewatch_backend/services/pricecache"
	"pricewatch_backend/services/ratelimit"
	"pricewatch_backend/services/realtime"
)

// Dependencies carries the shared service instances the routes need
type Dependencies struct {
	DB       *gorm.DB
	Cache    *pricecache.Cache
	Recorder *alerts.Recorder
	Cycle    *alerts.Cycle
	Limiter  *ratelimit.Limiter
	Hub      *realtime.Hub
}

// SetupRoutes sets up all API routes
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	alertController := controllers.NewAlertController(deps.DB, deps.Recorder, deps.Cycle)
	priceController := controllers.NewPriceController(deps.Cache)
	deviceController := controllers.NewDeviceController(deps.DB)

	// API v1 group, throttled per client IP
	api := router.Group("/api/v1")
	api.Use(middleware.RateLimitMiddleware(deps.Limiter))
	{
		// Alert routes
		alertRoutes := api.Group("/alerts")
		{
			alertRoutes.GET("", alertController.GetAlerts)
			alertRoutes.POST("", alertController.CreateAlert)
			alertRoutes.GET("/:id", alertController.GetAlert)
			alertRoutes.PUT("/:id", alertController.UpdateAlert)
			alertRoutes.DELETE("/:id", alertController.DeleteAlert)
			alertRoutes.GET("/:id/triggers", alertController.GetAlertTriggers)
		}

		// Trigger acknowledgment
		api.POST("/triggers/:id/read", alertController.MarkTriggerRead)

		// Price routes
		priceRoutes := api.Group("/prices")
		{
			priceRoutes.GET("", priceController.GetCachedPrices)
			priceRoutes.POST("/batch", priceController.GetBatchPrices)
			priceRoutes.GET("/:symbol", priceController.GetPrice)
		}

		// Device registration
		deviceRoutes := api.Group("/devices")
		{
			deviceRoutes.GET("", deviceController.GetDevices)
			deviceRoutes.POST("", deviceController.RegisterDevice)
			deviceRoutes.DELETE("/:token", deviceController.UnregisterDevice)
		}

		// On-demand evaluation
		api.POST("/evaluate", alertController.RunEvaluation)
	}

	// Realtime price and trigger stream
	if deps.Hub != nil {
		router.GET("/ws/prices", func(c *gin.Context) {
			deps.Hub.HandleWebSocket(c.Writer, c.Request)
		})
		router.GET("/ws/status", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"connected_clients": deps.Hub.ClientCount(),
				"max_clients":       realtime.MaxClients,
			})
		})
	}
}
