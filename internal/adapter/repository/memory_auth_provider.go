package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"servicehub/internal/domain/entity"
	"servicehub/pkg/errors"
)

const memoryTokenTTL = time.Hour

type memoryAccount struct {
	identity entity.Identity
	password string
}

// MemoryAuthProvider issues opaque tokens for accounts held in memory. It backs
// the memory store mode and tests, and doubles as that mode's token verifier.
type MemoryAuthProvider struct {
	mu       sync.Mutex
	accounts map[string]*memoryAccount
	idTokens map[string]string
	refresh  map[string]string
	expiry   map[string]time.Time
	failures map[string]error
	now      func() time.Time
}

func NewMemoryAuthProvider() *MemoryAuthProvider {
	return &MemoryAuthProvider{
		accounts: make(map[string]*memoryAccount),
		idTokens: make(map[string]string),
		refresh:  make(map[string]string),
		expiry:   make(map[string]time.Time),
		failures: make(map[string]error),
		now:      time.Now,
	}
}

// FailNext makes the next call of method ("createSession", "createAccount",
// "currentSession", "deleteSession") return err.
func (p *MemoryAuthProvider) FailNext(method string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[method] = err
}

func (p *MemoryAuthProvider) takeFailure(method string) error {
	err := p.failures[method]
	delete(p.failures, method)
	return err
}

func (p *MemoryAuthProvider) CreateAccount(ctx context.Context, email, password string) (*entity.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.takeFailure("createAccount"); err != nil {
		return nil, err
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, errors.Validation("A valid email is required")
	}
	if len(password) < 6 {
		return nil, errors.Validation("Password should be at least 6 characters")
	}
	if _, exists := p.accounts[email]; exists {
		return nil, errors.AccountExists(nil)
	}

	account := &memoryAccount{
		identity: entity.Identity{ID: uuid.New().String(), Email: email},
		password: password,
	}
	p.accounts[email] = account

	identity := account.identity
	return &identity, nil
}

func (p *MemoryAuthProvider) CreateSession(ctx context.Context, email, password string) (*entity.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.takeFailure("createSession"); err != nil {
		return nil, err
	}

	account, ok := p.accounts[strings.ToLower(strings.TrimSpace(email))]
	if !ok || account.password != password {
		return nil, errors.InvalidCredentials(nil)
	}

	refreshToken := uuid.New().String()
	p.refresh[refreshToken] = account.identity.ID
	return p.issue(account.identity, refreshToken), nil
}

// CurrentSession accepts a live ID token as is and trades a valid refresh token
// for a new ID token otherwise.
func (p *MemoryAuthProvider) CurrentSession(ctx context.Context, session *entity.Session) (*entity.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.takeFailure("currentSession"); err != nil {
		return nil, err
	}
	if session == nil {
		return nil, errors.Unauthenticated("No active session")
	}

	if userID, ok := p.validToken(session.IDToken); ok && userID == session.Identity.ID {
		current := *session
		current.ExpiresAt = p.expiry[session.IDToken]
		return &current, nil
	}

	userID, ok := p.refresh[session.RefreshToken]
	if !ok {
		return nil, errors.Unauthenticated("Session has been revoked")
	}
	identity, ok := p.identityByID(userID)
	if !ok {
		return nil, errors.Unauthenticated("Account no longer exists")
	}

	delete(p.idTokens, session.IDToken)
	delete(p.expiry, session.IDToken)
	return p.issue(identity, session.RefreshToken), nil
}

func (p *MemoryAuthProvider) DeleteSession(ctx context.Context, session *entity.Session) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if session != nil {
		delete(p.idTokens, session.IDToken)
		delete(p.expiry, session.IDToken)
		delete(p.refresh, session.RefreshToken)
	}
	return p.takeFailure("deleteSession")
}

// Authorize reports the user an ID token belongs to while it is live.
func (p *MemoryAuthProvider) Authorize(idToken string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.validToken(idToken)
}

// VerifyToken validates a bearer token for the gateway.
func (p *MemoryAuthProvider) VerifyToken(ctx context.Context, idToken string) (string, error) {
	userID, ok := p.Authorize(idToken)
	if !ok {
		return "", errors.Unauthorized("Invalid or expired token", nil)
	}
	return userID, nil
}

// SessionForUser signs in as userID without a password.
func (p *MemoryAuthProvider) SessionForUser(ctx context.Context, userID string) (*entity.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	identity, ok := p.identityByID(userID)
	if !ok {
		return nil, errors.NotFound("Account", nil)
	}
	refreshToken := uuid.New().String()
	p.refresh[refreshToken] = identity.ID
	return p.issue(identity, refreshToken), nil
}

// ExpireTokens invalidates every ID token of userID, leaving refresh tokens usable.
func (p *MemoryAuthProvider) ExpireTokens(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for token, owner := range p.idTokens {
		if owner == userID {
			delete(p.idTokens, token)
			delete(p.expiry, token)
		}
	}
}

// RevokeSessions invalidates every ID and refresh token of userID.
func (p *MemoryAuthProvider) RevokeSessions(userID string) {
	p.ExpireTokens(userID)

	p.mu.Lock()
	defer p.mu.Unlock()
	for token, owner := range p.refresh {
		if owner == userID {
			delete(p.refresh, token)
		}
	}
}

func (p *MemoryAuthProvider) validToken(idToken string) (string, bool) {
	userID, ok := p.idTokens[idToken]
	if !ok {
		return "", false
	}
	if !p.now().Before(p.expiry[idToken]) {
		return "", false
	}
	return userID, true
}

func (p *MemoryAuthProvider) identityByID(userID string) (entity.Identity, bool) {
	for _, account := range p.accounts {
		if account.identity.ID == userID {
			return account.identity, true
		}
	}
	return entity.Identity{}, false
}

func (p *MemoryAuthProvider) issue(identity entity.Identity, refreshToken string) *entity.Session {
	idToken := uuid.New().String()
	expiresAt := p.now().Add(memoryTokenTTL)
	p.idTokens[idToken] = identity.ID
	p.expiry[idToken] = expiresAt

	return &entity.Session{
		Identity:     identity,
		IDToken:      idToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
	}
}
