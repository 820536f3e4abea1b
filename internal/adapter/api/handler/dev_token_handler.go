package handler

import (
	"context"

	"github.com/labstack/echo/v4"

	"servicehub/internal/domain/entity"
	"servicehub/internal/session"
	"servicehub/pkg/errors"
	"servicehub/pkg/response"
)

// SessionIssuer mints credentials for a user without their password.
type SessionIssuer interface {
	SessionForUser(ctx context.Context, uid string) (*entity.Session, error)
}

type DevTokenHandler struct {
	issuer   SessionIssuer
	sessions *session.Registry
}

var devTokenHandler *DevTokenHandler

func NewDevTokenHandler(issuer SessionIssuer, sessions *session.Registry) *DevTokenHandler {
	return &DevTokenHandler{
		issuer:   issuer,
		sessions: sessions,
	}
}

func SetupDevTokenHandler(issuer SessionIssuer, sessions *session.Registry) {
	devTokenHandler = NewDevTokenHandler(issuer, sessions)
}

func GetDevTokenHandler() *DevTokenHandler {
	return devTokenHandler
}

// SessionForUser opens a gateway session as uid. Development only.
func (h *DevTokenHandler) SessionForUser(c echo.Context) error {
	uid := c.Param("uid")
	if uid == "" {
		return response.Error(c, errors.Validation("uid is required"))
	}

	creds, err := h.issuer.SessionForUser(c.Request().Context(), uid)
	if err != nil {
		return response.Error(c, err)
	}

	_, creds, err = h.sessions.Resume(c.Request().Context(), creds)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, newAuthResponse(creds))
}
