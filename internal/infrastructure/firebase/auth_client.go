package firebase

import (
	"context"

	"firebase.google.com/go/v4/auth"

	"servicehub/pkg/errors"
)

// FirebaseAuthClient wraps the admin SDK for the gateway.
type FirebaseAuthClient struct {
	client *auth.Client
}

func NewFirebaseAuthClient(client *auth.Client) *FirebaseAuthClient {
	return &FirebaseAuthClient{
		client: client,
	}
}

// VerifyToken checks a bearer ID token's signature and revocation and returns its uid.
func (f *FirebaseAuthClient) VerifyToken(ctx context.Context, token string) (string, error) {
	result, err := f.client.VerifyIDTokenAndCheckRevoked(ctx, token)
	if err != nil {
		if auth.IsIDTokenRevoked(err) || auth.IsIDTokenExpired(err) {
			return "", errors.Unauthorized("Session expired, please log in again", err)
		}
		return "", errors.Unauthorized("Invalid token", err)
	}

	return result.UID, nil
}

func (f *FirebaseAuthClient) RevokeSessions(ctx context.Context, uid string) error {
	return f.client.RevokeRefreshTokens(ctx, uid)
}
