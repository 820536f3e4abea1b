package handler

import (
	"time"

	"github.com/labstack/echo/v4"

	"servicehub/internal/infrastructure/metrics"
	"servicehub/internal/session"
	"servicehub/pkg/response"
)

type HealthHandler struct {
	sessions *session.Registry
	metrics  *metrics.Metrics
}

func NewHealthHandler(sessions *session.Registry, m *metrics.Metrics) *HealthHandler {
	return &HealthHandler{
		sessions: sessions,
		metrics:  m,
	}
}

func (h *HealthHandler) CheckHealth(c echo.Context) error {
	return response.Success(c, map[string]interface{}{
		"status":   "ok",
		"time":     time.Now().UTC().Format(time.RFC3339),
		"sessions": h.sessions.Len(),
	})
}

func (h *HealthHandler) Metrics(c echo.Context) error {
	h.metrics.Handler().ServeHTTP(c.Response(), c.Request())
	return nil
}
