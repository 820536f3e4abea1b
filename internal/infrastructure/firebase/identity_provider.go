package firebase

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/googleapi"
	identitytoolkit "google.golang.org/api/identitytoolkit/v3"
	"google.golang.org/api/option"

	"servicehub/internal/domain/entity"
	"servicehub/pkg/errors"
	"servicehub/pkg/logger"
)

const defaultTokenURL = "https://securetoken.googleapis.com/v1/token"

// IdentityProvider signs users in against Firebase Authentication through the
// Identity Toolkit API and refreshes their ID tokens through the secure token service.
type IdentityProvider struct {
	service    *identitytoolkit.Service
	apiKey     string
	tokenURL   string
	httpClient *http.Client
	admin      *auth.Client
	now        func() time.Time
}

type ProviderOption func(*IdentityProvider)

// WithAdmin enables refresh token revocation on sign-out and custom-token sessions.
func WithAdmin(admin *auth.Client) ProviderOption {
	return func(p *IdentityProvider) { p.admin = admin }
}

// WithTokenURL overrides the secure token endpoint.
func WithTokenURL(tokenURL string) ProviderOption {
	return func(p *IdentityProvider) { p.tokenURL = tokenURL }
}

func WithHTTPClient(client *http.Client) ProviderOption {
	return func(p *IdentityProvider) { p.httpClient = client }
}

func NewIdentityProvider(ctx context.Context, apiKey string, clientOpts []option.ClientOption, opts ...ProviderOption) (*IdentityProvider, error) {
	if apiKey == "" {
		return nil, errors.Internal("FIREBASE_API_KEY is required for password sign-in", nil)
	}

	clientOpts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, clientOpts...)
	service, err := identitytoolkit.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, errors.Internal("Failed to create identity toolkit client", err)
	}

	p := &IdentityProvider{
		service:    service,
		apiKey:     apiKey,
		tokenURL:   defaultTokenURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *IdentityProvider) CreateSession(ctx context.Context, email, password string) (*entity.Session, error) {
	resp, err := p.service.Relyingparty.VerifyPassword(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyPasswordRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	}).Context(ctx).Do()
	if err != nil {
		return nil, classifyAuthError(err)
	}

	return p.session(resp.LocalId, resp.Email, resp.IdToken, resp.RefreshToken, resp.ExpiresIn), nil
}

func (p *IdentityProvider) CreateAccount(ctx context.Context, email, password string) (*entity.Identity, error) {
	resp, err := p.service.Relyingparty.SignupNewUser(&identitytoolkit.IdentitytoolkitRelyingpartySignupNewUserRequest{
		Email:    email,
		Password: password,
	}).Context(ctx).Do()
	if err != nil {
		return nil, classifyAuthError(err)
	}

	return &entity.Identity{ID: resp.LocalId, Email: resp.Email}, nil
}

// CurrentSession looks the account up with the session's ID token, exchanging
// the refresh token first when the ID token has expired or is rejected.
func (p *IdentityProvider) CurrentSession(ctx context.Context, session *entity.Session) (*entity.Session, error) {
	if session == nil || session.RefreshToken == "" {
		return nil, errors.Unauthenticated("No active session")
	}

	current := *session
	if !current.Expired(p.now()) {
		identity, err := p.lookup(ctx, current.IDToken)
		if err == nil {
			current.Identity = *identity
			return &current, nil
		}
		if !errors.Is(err, errors.CodeAuthorizationExpired) {
			return nil, err
		}
		logger.Debug("ID token for %s rejected, refreshing", session.Identity.ID)
	}

	refreshed, err := p.refresh(ctx, current.RefreshToken)
	if err != nil {
		return nil, err
	}

	identity, err := p.lookup(ctx, refreshed.IDToken)
	if err != nil {
		if errors.Is(err, errors.CodeAuthorizationExpired) {
			return nil, errors.Unauthenticated("Session is no longer valid")
		}
		return nil, err
	}
	refreshed.Identity = *identity
	return refreshed, nil
}

// DeleteSession revokes the user's refresh tokens when an admin client is configured.
// ID tokens stay valid until they expire.
func (p *IdentityProvider) DeleteSession(ctx context.Context, session *entity.Session) error {
	if session == nil || p.admin == nil {
		return nil
	}
	if err := p.admin.RevokeRefreshTokens(ctx, session.Identity.ID); err != nil {
		return errors.Unknown(err)
	}
	return nil
}

func (p *IdentityProvider) lookup(ctx context.Context, idToken string) (*entity.Identity, error) {
	resp, err := p.service.Relyingparty.GetAccountInfo(&identitytoolkit.IdentitytoolkitRelyingpartyGetAccountInfoRequest{
		IdToken: idToken,
	}).Context(ctx).Do()
	if err != nil {
		return nil, classifyAuthError(err)
	}
	if len(resp.Users) == 0 {
		return nil, errors.Unauthenticated("Account not found")
	}

	user := resp.Users[0]
	if user.Disabled {
		return nil, errors.Unauthenticated("Account is disabled")
	}
	return &entity.Identity{ID: user.LocalId, Email: user.Email}, nil
}

type tokenResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
	UserID       string `json:"user_id"`
}

type tokenErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (p *IdentityProvider) refresh(ctx context.Context, refreshToken string) (*entity.Session, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL+"?key="+url.QueryEscape(p.apiKey), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Internal("Failed to build token refresh request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, errors.Network("Token refresh failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body tokenErrorResponse
		json.NewDecoder(resp.Body).Decode(&body)
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, errors.Network("Token service unavailable", stderrors.New(body.Error.Message))
		}
		return nil, errors.Unauthorized("Session is no longer valid", stderrors.New(body.Error.Message))
	}

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.Unknown(err)
	}

	expiresIn, _ := strconv.ParseInt(body.ExpiresIn, 10, 64)
	return p.session(body.UserID, "", body.IDToken, body.RefreshToken, expiresIn), nil
}

func (p *IdentityProvider) session(userID, email, idToken, refreshToken string, expiresIn int64) *entity.Session {
	fallback := p.now().Add(time.Duration(expiresIn) * time.Second)
	if expiresIn == 0 {
		fallback = time.Time{}
	}
	return &entity.Session{
		Identity:     entity.Identity{ID: userID, Email: email},
		IDToken:      idToken,
		RefreshToken: refreshToken,
		ExpiresAt:    TokenExpiry(idToken, fallback),
	}
}

// classifyAuthError maps Identity Toolkit error codes onto the AppError taxonomy.
func classifyAuthError(err error) error {
	var apiErr *googleapi.Error
	if stderrors.As(err, &apiErr) {
		code := apiErr.Message
		if idx := strings.Index(code, " "); idx > 0 {
			code = code[:idx]
		}

		switch code {
		case "EMAIL_EXISTS":
			return errors.AccountExists(err)
		case "INVALID_PASSWORD", "EMAIL_NOT_FOUND", "INVALID_LOGIN_CREDENTIALS", "INVALID_EMAIL", "MISSING_PASSWORD":
			return errors.InvalidCredentials(err)
		case "WEAK_PASSWORD":
			return errors.Validation("Password should be at least 6 characters")
		case "TOKEN_EXPIRED", "INVALID_ID_TOKEN", "CREDENTIAL_TOO_OLD_LOGIN_AGAIN":
			return errors.AuthorizationExpired("Session token rejected", err)
		case "USER_NOT_FOUND", "USER_DISABLED":
			return errors.Unauthenticated("Account is no longer available")
		case "TOO_MANY_ATTEMPTS_TRY_LATER":
			return errors.TooManyRequests("Too many sign-in attempts", "a few minutes")
		}

		if apiErr.Code >= http.StatusInternalServerError {
			return errors.Network("Authentication service unavailable", err)
		}
		return errors.Unknown(stderrors.New(apiErr.Message))
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) || stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Network("Authentication service unreachable", err)
	}
	return errors.Unknown(err)
}
