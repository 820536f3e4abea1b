package repository

import (
	"context"

	"servicehub/internal/domain/entity"
)

// AuthProvider is the remote session-based authentication endpoint.
type AuthProvider interface {
	// CreateSession signs in with email and password.
	CreateSession(ctx context.Context, email, password string) (*entity.Session, error)
	// CreateAccount registers a new account without signing in.
	CreateAccount(ctx context.Context, email, password string) (*entity.Identity, error)
	// CurrentSession validates session against the endpoint, refreshing its token when needed.
	CurrentSession(ctx context.Context, session *entity.Session) (*entity.Session, error)
	DeleteSession(ctx context.Context, session *entity.Session) error
}
