package handler

import (
	"github.com/labstack/echo/v4"

	"servicehub/internal/adapter/api/middleware"
	"servicehub/internal/infrastructure/metrics"
	ws "servicehub/internal/infrastructure/websocket"
	"servicehub/internal/session"
	"servicehub/pkg/errors"
)

var (
	authHandler      *AuthHandler
	listingHandler   *ListingHandler
	messagingHandler *MessagingHandler
	paymentHandler   *PaymentHandler
	reviewHandler    *ReviewHandler
	healthHandler    *HealthHandler
	webSocketHandler *WebSocketHandler
)

func Setup(sessions *session.Registry, wsManager *ws.Manager, m *metrics.Metrics) {
	authHandler = NewAuthHandler(sessions)
	listingHandler = NewListingHandler()
	messagingHandler = NewMessagingHandler()
	paymentHandler = NewPaymentHandler()
	reviewHandler = NewReviewHandler()
	healthHandler = NewHealthHandler(sessions, m)
	webSocketHandler = NewWebSocketHandler(wsManager)
}

func GetAuthHandler() *AuthHandler {
	return authHandler
}

func GetListingHandler() *ListingHandler {
	return listingHandler
}

func GetMessagingHandler() *MessagingHandler {
	return messagingHandler
}

func GetPaymentHandler() *PaymentHandler {
	return paymentHandler
}

func GetReviewHandler() *ReviewHandler {
	return reviewHandler
}

func GetHealthHandler() *HealthHandler {
	return healthHandler
}

func GetWebSocketHandler() *WebSocketHandler {
	return webSocketHandler
}

// currentSession returns the gateway session the session middleware attached.
func currentSession(c echo.Context) (*session.Session, error) {
	s := middleware.Session(c)
	if s == nil {
		return nil, errors.Unauthenticated("No active session")
	}
	return s, nil
}

func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return errors.BadRequest("Invalid request body", err)
	}
	return c.Validate(req)
}
