package router

import (
	"github.com/labstack/echo/v4"

	"servicehub/internal/adapter/api/handler"
	"servicehub/internal/adapter/api/middleware"
)

func SetupMessagingRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware) {
	messagingHandler := handler.GetMessagingHandler()

	conversations := e.Group("/v1/conversations")
	conversations.Use(authMiddleware.RequireSession)

	conversations.GET("", messagingHandler.ListConversations)
	conversations.POST("", messagingHandler.StartConversation)
	conversations.POST("/refresh", messagingHandler.RefreshConversations)
	conversations.GET("/:id/messages", messagingHandler.ListMessages)
	conversations.POST("/:id/messages", messagingHandler.SendMessage)
	conversations.POST("/:id/read", messagingHandler.MarkRead)
}
