package firebase

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/oauth2"

	"servicehub/internal/domain/entity"
	"servicehub/pkg/errors"
)

// SessionTokenSource hands the current session's ID token to Google API
// clients, so Firestore evaluates security rules as the signed-in user.
type SessionTokenSource struct {
	current func() *entity.Session
}

func NewSessionTokenSource(current func() *entity.Session) oauth2.TokenSource {
	return &SessionTokenSource{current: current}
}

func (s *SessionTokenSource) Token() (*oauth2.Token, error) {
	session := s.current()
	if session == nil || session.IDToken == "" {
		return nil, errors.Unauthenticated("No active session")
	}
	return &oauth2.Token{
		AccessToken: session.IDToken,
		TokenType:   "Bearer",
		Expiry:      session.ExpiresAt,
	}, nil
}

// TokenExpiry reads the exp claim of a Firebase ID token without verifying it.
// The signature is checked by whoever receives the token.
func TokenExpiry(idToken string, fallback time.Time) time.Time {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, &claims); err != nil {
		return fallback
	}
	if claims.ExpiresAt == nil {
		return fallback
	}
	return claims.ExpiresAt.Time
}
