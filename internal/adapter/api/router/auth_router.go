package router

import (
	"github.com/labstack/echo/v4"

	"servicehub/internal/adapter/api/handler"
	"servicehub/internal/adapter/api/middleware"
)

func SetupAuthRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware) {
	authHandler := handler.GetAuthHandler()

	e.POST("/v1/auth/register", authHandler.Register)
	e.POST("/v1/auth/login", authHandler.Login)
	e.POST("/v1/auth/resume", authHandler.Resume)

	protected := e.Group("/v1/auth")
	protected.Use(authMiddleware.RequireSession)

	protected.POST("/logout", authHandler.Logout)
	protected.GET("/me", authHandler.Me)
}
