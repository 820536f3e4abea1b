package firebase

import (
	"context"

	identitytoolkit "google.golang.org/api/identitytoolkit/v3"

	"servicehub/internal/domain/entity"
	"servicehub/pkg/errors"
)

// SessionForUser mints a session for uid without a password by exchanging an
// admin custom token. Only the development gateway exposes it.
func (p *IdentityProvider) SessionForUser(ctx context.Context, uid string) (*entity.Session, error) {
	if p.admin == nil {
		return nil, errors.Forbidden("Custom token sessions need an admin client", nil)
	}

	customToken, err := p.admin.CustomToken(ctx, uid)
	if err != nil {
		return nil, errors.Internal("Failed to mint custom token", err)
	}

	resp, err := p.service.Relyingparty.VerifyCustomToken(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyCustomTokenRequest{
		Token:             customToken,
		ReturnSecureToken: true,
	}).Context(ctx).Do()
	if err != nil {
		return nil, classifyAuthError(err)
	}

	session := p.session(uid, "", resp.IdToken, resp.RefreshToken, resp.ExpiresIn)
	identity, err := p.lookup(ctx, session.IDToken)
	if err != nil {
		return nil, err
	}
	session.Identity = *identity
	return session, nil
}
