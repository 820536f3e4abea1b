package router

import (
	"github.com/labstack/echo/v4"

	"servicehub/internal/adapter/api/handler"
	"servicehub/internal/adapter/api/middleware"
)

func SetupPaymentRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware) {
	paymentHandler := handler.GetPaymentHandler()

	payments := e.Group("/v1/payments")
	payments.Use(authMiddleware.RequireSession)

	payments.GET("", paymentHandler.ListPayments)
	payments.GET("/summary", paymentHandler.Summary)
	payments.POST("/refresh", paymentHandler.Refresh)
	payments.POST("/intents", paymentHandler.CreateIntent)
	payments.GET("/:id", paymentHandler.GetPayment)

	e.GET("/v1/transactions", paymentHandler.ListTransactions, authMiddleware.RequireSession)
}
