package usecase

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"servicehub/internal/domain/entity"
	"servicehub/internal/domain/repository"
	"servicehub/internal/infrastructure/metrics"
	"servicehub/pkg/errors"
	"servicehub/pkg/logger"
)

// IdentityObserver is told about every identity change. epoch increases with
// each change so that late results of older work can be recognised.
type IdentityObserver func(identity *entity.Identity, epoch uint64)

type observerEntry struct {
	id int
	fn IdentityObserver
}

// AuthUseCase owns the signed-in identity of one client session.
type AuthUseCase struct {
	provider repository.AuthProvider
	metrics  *metrics.Metrics
	now      func() time.Time

	mu          sync.RWMutex
	session     *entity.Session
	authChecked bool
	lastError   string
	epoch       uint64
	observers   []observerEntry
	nextID      int

	// refreshes coalesces concurrent recoveries into one provider round trip.
	refreshes singleflight.Group
}

func NewAuthUseCase(provider repository.AuthProvider, m *metrics.Metrics) *AuthUseCase {
	return &AuthUseCase{
		provider: provider,
		metrics:  m,
		now:      time.Now,
	}
}

// Observe registers fn and returns a function that removes it.
func (uc *AuthUseCase) Observe(fn IdentityObserver) func() {
	uc.mu.Lock()
	uc.nextID++
	id := uc.nextID
	uc.observers = append(uc.observers, observerEntry{id: id, fn: fn})
	uc.mu.Unlock()

	return func() {
		uc.mu.Lock()
		defer uc.mu.Unlock()
		for i, o := range uc.observers {
			if o.id == id {
				uc.observers = append(uc.observers[:i:i], uc.observers[i+1:]...)
				return
			}
		}
	}
}

func (uc *AuthUseCase) CurrentUser() *entity.Identity {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	if uc.session == nil {
		return nil
	}
	identity := uc.session.Identity
	return &identity
}

// Credentials returns a copy of the current session, or nil when signed out.
func (uc *AuthUseCase) Credentials() *entity.Session {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	if uc.session == nil {
		return nil
	}
	session := *uc.session
	return &session
}

// IdentityAndEpoch reads both under one lock.
func (uc *AuthUseCase) IdentityAndEpoch() (*entity.Identity, uint64) {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	if uc.session == nil {
		return nil, uc.epoch
	}
	identity := uc.session.Identity
	return &identity, uc.epoch
}

func (uc *AuthUseCase) Epoch() uint64 {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	return uc.epoch
}

// AuthChecked is false until the first session check has finished.
func (uc *AuthUseCase) AuthChecked() bool {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	return uc.authChecked
}

func (uc *AuthUseCase) LastError() string {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	return uc.lastError
}

func (uc *AuthUseCase) Login(ctx context.Context, email, password string) (*entity.Identity, error) {
	session, err := uc.provider.CreateSession(ctx, email, password)
	if err != nil {
		logger.Warn("Login failed for %s: %v", email, err)
		uc.recordError(err)
		return nil, err
	}

	uc.setSession(session, "")
	logger.Info("User %s signed in", session.Identity.ID)
	identity := session.Identity
	return &identity, nil
}

func (uc *AuthUseCase) Register(ctx context.Context, email, password string) (*entity.Identity, error) {
	if _, err := uc.provider.CreateAccount(ctx, email, password); err != nil {
		logger.Warn("Registration failed for %s: %v", email, err)
		uc.recordError(err)
		return nil, err
	}
	return uc.Login(ctx, email, password)
}

// Logout always clears the local identity, even when the remote call fails.
func (uc *AuthUseCase) Logout(ctx context.Context) {
	session := uc.Credentials()
	if session != nil {
		if err := uc.provider.DeleteSession(ctx, session); err != nil {
			logger.Warn("Remote session deletion failed for %s: %v", session.Identity.ID, err)
		}
	}
	uc.setSession(nil, "")
}

// RefreshAuth re-validates the current session with the provider. On failure
// the identity is cleared, the error recorded and nil returned.
func (uc *AuthUseCase) RefreshAuth(ctx context.Context) *entity.Identity {
	v, _, _ := uc.refreshes.Do("refresh", func() (interface{}, error) {
		return uc.refresh(ctx), nil
	})
	identity, _ := v.(*entity.Identity)
	if identity == nil {
		return nil
	}
	shared := *identity
	return &shared
}

func (uc *AuthUseCase) refresh(ctx context.Context) *entity.Identity {
	current := uc.Credentials()
	if current == nil {
		return nil
	}

	session, err := uc.provider.CurrentSession(ctx, current)
	if err != nil {
		logger.Warn("Session refresh failed for %s: %v", current.Identity.ID, err)
		uc.setSession(nil, errors.MessageOf(err))
		return nil
	}

	uc.setSession(session, "")
	identity := session.Identity
	return &identity
}

// EnsureFresh refreshes the session when its ID token has run out, without a
// round trip otherwise.
func (uc *AuthUseCase) EnsureFresh(ctx context.Context) error {
	session := uc.Credentials()
	if session == nil {
		return errors.Unauthenticated("Not signed in")
	}
	if !session.Expired(uc.now()) {
		return nil
	}
	if uc.RefreshAuth(ctx) == nil {
		return errors.SessionExpired(nil)
	}
	return nil
}

// CheckSession validates stored credentials on first load. Auth-class failures
// leave no error text, since being signed out is the expected outcome there.
func (uc *AuthUseCase) CheckSession(ctx context.Context, stored *entity.Session) (*entity.Identity, error) {
	defer uc.markChecked()

	if stored == nil {
		uc.setSession(nil, "")
		return nil, errors.Unauthenticated("No stored session")
	}

	session, err := uc.provider.CurrentSession(ctx, stored)
	if err != nil {
		message := errors.MessageOf(err)
		if isAuthClass(err) {
			message = ""
		}
		uc.setSession(nil, message)
		return nil, err
	}

	uc.setSession(session, "")
	identity := session.Identity
	return &identity, nil
}

// Resume adopts credentials issued elsewhere, validating them first.
func (uc *AuthUseCase) Resume(ctx context.Context, credentials *entity.Session) (*entity.Identity, error) {
	if credentials == nil {
		return nil, errors.Unauthenticated("No credentials")
	}
	if current := uc.Credentials(); current != nil && current.IDToken == credentials.IDToken {
		identity := current.Identity
		return &identity, nil
	}
	return uc.CheckSession(ctx, credentials)
}

func (uc *AuthUseCase) markChecked() {
	uc.mu.Lock()
	uc.authChecked = true
	uc.mu.Unlock()
}

func (uc *AuthUseCase) recordError(err error) {
	uc.mu.Lock()
	uc.lastError = errors.MessageOf(err)
	uc.mu.Unlock()
}

// setSession swaps the session in and notifies observers when the user changed.
// A refreshed token for the same user is not an identity change.
func (uc *AuthUseCase) setSession(session *entity.Session, lastError string) {
	uc.mu.Lock()
	before := ""
	if uc.session != nil {
		before = uc.session.Identity.ID
	}
	after := ""
	if session != nil {
		copied := *session
		uc.session = &copied
		after = session.Identity.ID
	} else {
		uc.session = nil
	}
	uc.lastError = lastError

	if before == after {
		uc.mu.Unlock()
		return
	}

	uc.epoch++
	epoch := uc.epoch
	observers := append([]observerEntry(nil), uc.observers...)
	uc.mu.Unlock()

	if session == nil {
		uc.metrics.SessionClosed()
	} else if before == "" {
		uc.metrics.SessionOpened()
	}

	var identity *entity.Identity
	if session != nil {
		id := session.Identity
		identity = &id
	}
	for _, o := range observers {
		o.fn(identity, epoch)
	}
}

// isAuthClass reports errors that mean "not signed in" rather than a failure.
func isAuthClass(err error) bool {
	switch errors.CodeOf(err) {
	case errors.CodeUnauthenticated, errors.CodeAuthorizationExpired, errors.CodeSessionExpired:
		return true
	}
	return false
}
