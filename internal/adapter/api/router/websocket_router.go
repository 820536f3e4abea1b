package router

import (
	"github.com/labstack/echo/v4"

	"servicehub/internal/adapter/api/handler"
	"servicehub/internal/adapter/api/middleware"
)

// SetupWebSocketRouter serves the change feed. Browsers pass the token as
// the access_token query parameter.
func SetupWebSocketRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware) {
	wsHandler := handler.GetWebSocketHandler()
	e.GET("/v1/ws", wsHandler.HandleWebSocket, authMiddleware.RequireSession)
}
