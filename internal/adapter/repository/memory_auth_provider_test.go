package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"servicehub/pkg/errors"
)

func TestMemoryAuthProviderAccountLifecycle(t *testing.T) {
	ctx := context.Background()
	auth := NewMemoryAuthProvider()

	identity, err := auth.CreateAccount(ctx, "Seller@Example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "seller@example.com", identity.Email)

	_, err = auth.CreateAccount(ctx, "seller@example.com", "secret1")
	assert.True(t, errors.Is(err, errors.CodeAccountExists))

	_, err = auth.CreateSession(ctx, "seller@example.com", "wrong")
	assert.True(t, errors.Is(err, errors.CodeInvalidCredentials))

	session, err := auth.CreateSession(ctx, "seller@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, identity.ID, session.Identity.ID)

	userID, ok := auth.Authorize(session.IDToken)
	assert.True(t, ok)
	assert.Equal(t, identity.ID, userID)

	require.NoError(t, auth.DeleteSession(ctx, session))
	_, ok = auth.Authorize(session.IDToken)
	assert.False(t, ok)
}

func TestMemoryAuthProviderRefreshesExpiredToken(t *testing.T) {
	ctx := context.Background()
	auth := NewMemoryAuthProvider()
	_, err := auth.CreateAccount(ctx, "buyer@example.com", "secret1")
	require.NoError(t, err)
	session, err := auth.CreateSession(ctx, "buyer@example.com", "secret1")
	require.NoError(t, err)

	auth.ExpireTokens(session.Identity.ID)

	refreshed, err := auth.CurrentSession(ctx, session)
	require.NoError(t, err)
	assert.NotEqual(t, session.IDToken, refreshed.IDToken)
	_, ok := auth.Authorize(refreshed.IDToken)
	assert.True(t, ok)

	auth.RevokeSessions(session.Identity.ID)
	_, err = auth.CurrentSession(ctx, refreshed)
	assert.True(t, errors.Is(err, errors.CodeUnauthenticated))
}

func TestMemoryAuthProviderSessionForUser(t *testing.T) {
	ctx := context.Background()
	auth := NewMemoryAuthProvider()
	identity, err := auth.CreateAccount(ctx, "dev@example.com", "secret1")
	require.NoError(t, err)

	session, err := auth.SessionForUser(ctx, identity.ID)
	require.NoError(t, err)
	assert.Equal(t, "dev@example.com", session.Identity.Email)

	userID, err := auth.VerifyToken(ctx, session.IDToken)
	require.NoError(t, err)
	assert.Equal(t, identity.ID, userID)

	_, err = auth.SessionForUser(ctx, "nobody")
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}
