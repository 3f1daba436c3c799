package api

import (
	"github.com/gin-gonic/gin"

	"health-companion/services/chat-gateway/internal/interfaces/httpserver/handlers"
)

func registerChatRoutes(group *gin.RouterGroup, handler *handlers.ChatHandler) {
	chat := group.Group("/chat")
	{
		chat.POST("", handler.Create)
		chat.GET("/messages", handler.Messages)
	}
}
