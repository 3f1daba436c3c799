package api

import (
	"github.com/gin-gonic/gin"

	"health-companion/services/chat-gateway/internal/interfaces/httpserver/handlers"
)

func registerThreadRoutes(group *gin.RouterGroup, handler *handlers.ThreadHandler) {
	threads := group.Group("/threads")
	{
		threads.GET("", handler.List)
		threads.POST("", handler.Create)
		threads.GET("/:id", handler.Get)
		threads.PATCH("/:id", handler.Update)
		threads.DELETE("/:id", handler.Delete)
		threads.POST("/:id/archive", handler.Archive)
	}
}
