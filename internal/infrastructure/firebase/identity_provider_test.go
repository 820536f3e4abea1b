package firebase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"servicehub/internal/domain/entity"
	"servicehub/pkg/errors"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
		Subject:   "uid-1",
	}).SignedString([]byte("test"))
	require.NoError(t, err)
	return token
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func apiError(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, map[string]interface{}{
		"error": map[string]interface{}{"code": 400, "message": message},
	})
}

func newTestProvider(t *testing.T, handler http.HandlerFunc) *IdentityProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := NewIdentityProvider(context.Background(), "test-key",
		[]option.ClientOption{option.WithEndpoint(srv.URL + "/"), option.WithHTTPClient(srv.Client())},
		WithTokenURL(srv.URL+"/token"),
		WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return p
}

func TestCreateSessionReturnsTokens(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	idToken := signedToken(t, exp)

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/verifyPassword", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"localId":      "uid-1",
			"email":        "seller@example.com",
			"idToken":      idToken,
			"refreshToken": "refresh-1",
			"expiresIn":    "3600",
		})
	})

	session, err := p.CreateSession(context.Background(), "seller@example.com", "secret1")

	require.NoError(t, err)
	assert.Equal(t, "uid-1", session.Identity.ID)
	assert.Equal(t, "refresh-1", session.RefreshToken)
	assert.True(t, exp.Equal(session.ExpiresAt))
}

func TestAuthErrorsAreClassified(t *testing.T) {
	tests := []struct {
		message string
		code    string
	}{
		{"INVALID_PASSWORD", errors.CodeInvalidCredentials},
		{"INVALID_LOGIN_CREDENTIALS", errors.CodeInvalidCredentials},
		{"EMAIL_EXISTS", errors.CodeAccountExists},
		{"WEAK_PASSWORD : Password should be at least 6 characters", errors.CodeValidation},
		{"SOMETHING_ELSE", errors.CodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				apiError(w, tt.message)
			})

			_, err := p.CreateAccount(context.Background(), "a@example.com", "secret1")

			assert.Equal(t, tt.code, errors.CodeOf(err))
		})
	}
}

func TestCurrentSessionRefreshesExpiredToken(t *testing.T) {
	fresh := signedToken(t, time.Now().Add(time.Hour))
	var refreshed bool

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
			assert.Equal(t, "test-key", r.URL.Query().Get("key"))
			refreshed = true
			writeJSON(w, http.StatusOK, map[string]string{
				"id_token":      fresh,
				"refresh_token": "refresh-2",
				"expires_in":    "3600",
				"user_id":       "uid-1",
			})
		case "/getAccountInfo":
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"users": []map[string]interface{}{{"localId": "uid-1", "email": "seller@example.com"}},
			})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})

	stale := &entity.Session{
		Identity:     entity.Identity{ID: "uid-1"},
		IDToken:      signedToken(t, time.Now().Add(-time.Minute)),
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(-time.Minute),
	}

	session, err := p.CurrentSession(context.Background(), stale)

	require.NoError(t, err)
	assert.True(t, refreshed)
	assert.Equal(t, fresh, session.IDToken)
	assert.Equal(t, "refresh-2", session.RefreshToken)
	assert.Equal(t, "seller@example.com", session.Identity.Email)
}

func TestCurrentSessionRejectsRevokedRefreshToken(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": map[string]interface{}{"message": "TOKEN_EXPIRED"},
		})
	})

	_, err := p.CurrentSession(context.Background(), &entity.Session{
		IDToken:      "expired",
		RefreshToken: "revoked",
		ExpiresAt:    time.Now().Add(-time.Hour),
	})

	assert.True(t, errors.Is(err, errors.CodeUnauthenticated))
}

func TestSessionTokenSource(t *testing.T) {
	var current *entity.Session
	ts := NewSessionTokenSource(func() *entity.Session { return current })

	_, err := ts.Token()
	assert.Error(t, err)

	current = &entity.Session{IDToken: "abc", ExpiresAt: time.Now().Add(time.Hour)}
	token, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "abc", token.AccessToken)
	assert.Equal(t, "Bearer", token.TokenType)
}

func TestTokenExpiryFallsBackOnGarbage(t *testing.T) {
	fallback := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, fallback, TokenExpiry("not-a-jwt", fallback))
}
