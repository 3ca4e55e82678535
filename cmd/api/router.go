package api

import (
	"net/http"
	"time"

	authdelivery "fcm-push-backend/internal/auth/delivery"
	authusecase "fcm-push-backend/internal/auth/usecase"
	"fcm-push-backend/internal/mw"
	pushdelivery "fcm-push-backend/internal/push/delivery"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

func SetupRoutes(r *gin.Engine, authUsecase authusecase.AuthUsecase, pushHandler *pushdelivery.PushHandler) {
	validateCache := cache.New(time.Minute, 5*time.Minute)

	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		push := api.Group("/push")
		{
			// Public; polled by mobile clients during setup.
			push.GET("/validate", mw.CacheResponse(validateCache, 30*time.Second), pushHandler.Validate)

			// Device lifecycle (protected)
			devices := push.Group("/devices")
			devices.Use(authdelivery.AuthMiddleware(authUsecase))
			{
				devices.POST("", pushHandler.RegisterDevice)
				devices.DELETE("", pushHandler.UnregisterDevice)
				devices.GET("", pushHandler.ListMyDevices)
			}

			// Sends (protected, rate limited per client IP)
			sends := push.Group("")
			sends.Use(authdelivery.AuthMiddleware(authUsecase), mw.RateLimiter(rate.Limit(5), 10))
			{
				sends.POST("/send", pushHandler.Send)
				sends.POST("/topic", pushHandler.SendToTopic)
			}

			// Administrative
			admin := push.Group("")
			admin.Use(authdelivery.AuthMiddleware(authUsecase), authdelivery.AdminMiddleware())
			{
				admin.POST("/broadcast", pushHandler.Broadcast)
				admin.GET("/test", pushHandler.TestConnection)
				admin.GET("/logs", pushHandler.ListLogs)
			}
		}

		// Settings routes (admin) - runtime push configuration
		settings := api.Group("/settings")
		settings.Use(authdelivery.AuthMiddleware(authUsecase), authdelivery.AdminMiddleware())
		{
			settings.GET("/push", pushHandler.GetSettings)
			settings.PUT("/push", pushHandler.UpdateSettings)
		}
	}
}
