package router

import (
	"github.com/labstack/echo/v4"

	"servicehub/internal/adapter/api/handler"
	"servicehub/internal/adapter/api/middleware"
)

func SetupReviewRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware) {
	reviewHandler := handler.GetReviewHandler()

	reviews := e.Group("/v1/reviews")
	reviews.Use(authMiddleware.RequireSession)

	reviews.POST("", reviewHandler.Create)
	reviews.GET("/mine", reviewHandler.Written)
	reviews.GET("/received", reviewHandler.Received)
	reviews.PATCH("/:id", reviewHandler.Update)
	reviews.DELETE("/:id", reviewHandler.Delete)
}
