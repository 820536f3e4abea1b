package middleware

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"

	"servicehub/internal/session"
	"servicehub/pkg/errors"
)

const (
	ContextUserID  = "uid"
	ContextSession = "session"
)

// TokenVerifier checks a bearer ID token and returns the user it belongs to.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, idToken string) (string, error)
}

type AuthMiddleware struct {
	verifier TokenVerifier
	sessions *session.Registry
}

func NewAuthMiddleware(verifier TokenVerifier, sessions *session.Registry) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
		sessions: sessions,
	}
}

// Authenticate verifies the bearer token and stores its uid on the context.
func (m *AuthMiddleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, err := bearerToken(c)
		if err != nil {
			return err
		}

		uid, err := m.verifier.VerifyToken(c.Request().Context(), token)
		if err != nil {
			return err
		}

		c.Set(ContextUserID, uid)
		return next(c)
	}
}

// RequireSession additionally attaches the caller's live gateway session.
func (m *AuthMiddleware) RequireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return m.Authenticate(func(c echo.Context) error {
		s, ok := m.sessions.Get(UserID(c))
		if !ok {
			return errors.Unauthenticated("No active session, log in or resume first")
		}
		c.Set(ContextSession, s)
		return next(c)
	})
}

func UserID(c echo.Context) string {
	uid, _ := c.Get(ContextUserID).(string)
	return uid
}

func Session(c echo.Context) *session.Session {
	s, _ := c.Get(ContextSession).(*session.Session)
	return s
}

// bearerToken reads the Authorization header, falling back to the
// access_token query parameter browsers use for websocket upgrades.
func bearerToken(c echo.Context) (string, error) {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if header == "" {
		if token := c.QueryParam("access_token"); token != "" {
			return token, nil
		}
		return "", errors.Unauthenticated("Authorization header is required")
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", errors.Unauthenticated("Invalid authorization format")
	}
	return parts[1], nil
}
