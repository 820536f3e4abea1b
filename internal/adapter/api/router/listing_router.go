package router

import (
	"github.com/labstack/echo/v4"

	"servicehub/internal/adapter/api/handler"
	"servicehub/internal/adapter/api/middleware"
)

func SetupListingRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware) {
	listingHandler := handler.GetListingHandler()
	reviewHandler := handler.GetReviewHandler()

	listings := e.Group("/v1/listings")
	listings.Use(authMiddleware.RequireSession)

	listings.GET("", listingHandler.Browse)
	listings.POST("", listingHandler.Create)
	listings.GET("/mine", listingHandler.Mine)
	listings.POST("/mine/refresh", listingHandler.RefreshMine)
	listings.GET("/:id", listingHandler.Get)
	listings.DELETE("/:id", listingHandler.Delete)

	listings.GET("/:id/reviews", reviewHandler.ListingReviews)
	listings.GET("/:id/reviews/eligibility", reviewHandler.Eligibility)
}
