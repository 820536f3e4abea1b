package handler

import (
	"time"

	"github.com/labstack/echo/v4"

	"servicehub/internal/adapter/api/middleware"
	"servicehub/internal/domain/entity"
	"servicehub/internal/session"
	"servicehub/pkg/errors"
	"servicehub/pkg/response"
)

type AuthHandler struct {
	sessions *session.Registry
}

func NewAuthHandler(sessions *session.Registry) *AuthHandler {
	return &AuthHandler{
		sessions: sessions,
	}
}

type credentialsRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type resumeRequest struct {
	UserID       string `json:"user_id"`
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type authResponse struct {
	Token        string          `json:"token"`
	RefreshToken string          `json:"refresh_token"`
	ExpiresAt    time.Time       `json:"expires_at"`
	User         entity.Identity `json:"user"`
}

func newAuthResponse(creds *entity.Session) authResponse {
	return authResponse{
		Token:        creds.IDToken,
		RefreshToken: creds.RefreshToken,
		ExpiresAt:    creds.ExpiresAt,
		User:         creds.Identity,
	}
}

func (h *AuthHandler) Register(c echo.Context) error {
	var req credentialsRequest
	if err := bindAndValidate(c, &req); err != nil {
		return response.Error(c, err)
	}

	_, creds, err := h.sessions.Register(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Created(c, newAuthResponse(creds))
}

func (h *AuthHandler) Login(c echo.Context) error {
	var req credentialsRequest
	if err := bindAndValidate(c, &req); err != nil {
		return response.Error(c, err)
	}

	_, creds, err := h.sessions.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, newAuthResponse(creds))
}

// Resume reattaches stored credentials after a gateway restart or an
// expired ID token. The refresh token is enough when the ID token is stale.
func (h *AuthHandler) Resume(c echo.Context) error {
	var req resumeRequest
	if err := bindAndValidate(c, &req); err != nil {
		return response.Error(c, err)
	}

	_, creds, err := h.sessions.Resume(c.Request().Context(), &entity.Session{
		Identity:     entity.Identity{ID: req.UserID},
		IDToken:      req.IDToken,
		RefreshToken: req.RefreshToken,
	})
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, newAuthResponse(creds))
}

func (h *AuthHandler) Logout(c echo.Context) error {
	h.sessions.Logout(c.Request().Context(), middleware.UserID(c))
	return response.Success(c, map[string]string{"status": "logged out"})
}

// Me reports the session identity and the load state of each cache.
func (h *AuthHandler) Me(c echo.Context) error {
	s, err := currentSession(c)
	if err != nil {
		return response.Error(c, err)
	}

	user := s.Auth.CurrentUser()
	if user == nil {
		return response.Error(c, errors.Unauthenticated("Session has ended"))
	}

	return response.Success(c, map[string]interface{}{
		"user":         user,
		"auth_checked": s.Auth.AuthChecked(),
		"epoch":        s.Auth.Epoch(),
		"caches": map[string]string{
			"listings":  s.Listings.State().String(),
			"messaging": s.Messaging.State().String(),
			"payments":  s.Payments.State().String(),
			"reviews":   s.Reviews.State().String(),
		},
	})
}
