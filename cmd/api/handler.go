package api

import (
	authusecase "fcm-push-backend/internal/auth/usecase"
	pushdelivery "fcm-push-backend/internal/push/delivery"
	"fcm-push-backend/pkg/config"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	authUsecase authusecase.AuthUsecase
	pushHandler *pushdelivery.PushHandler
	config      *config.Config
}

func NewHandler(authUc authusecase.AuthUsecase, pushHandler *pushdelivery.PushHandler, cfg *config.Config) *Handler {
	return &Handler{
		authUsecase: authUc,
		pushHandler: pushHandler,
		config:      cfg,
	}
}

func (h *Handler) Start(addr string) error {
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()

	// CORS middleware
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		}
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	SetupRoutes(r, h.authUsecase, h.pushHandler)

	return r.Run(addr)
}
