package router

import (
	"github.com/labstack/echo/v4"

	"servicehub/internal/adapter/api/middleware"
)

func Setup(e *echo.Echo, authMiddleware *middleware.AuthMiddleware) {
	SetupAuthRouter(e, authMiddleware)
	SetupListingRouter(e, authMiddleware)
	SetupMessagingRouter(e, authMiddleware)
	SetupPaymentRouter(e, authMiddleware)
	SetupReviewRouter(e, authMiddleware)
	SetupWebSocketRouter(e, authMiddleware)
	SetupHealthRouter(e)
}
