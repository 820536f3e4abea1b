package session

import (
	"context"
	"sync"
	"time"

	"servicehub/internal/domain/entity"
	"servicehub/internal/domain/repository"
	"servicehub/internal/domain/service"
	"servicehub/internal/infrastructure/metrics"
	"servicehub/internal/infrastructure/ratelimit"
	"servicehub/internal/infrastructure/websocket"
	"servicehub/internal/usecase"
	"servicehub/pkg/errors"
	"servicehub/pkg/logger"
)

const cleanupInterval = time.Minute

// Notifier receives every cache change and session expiry of a user.
type Notifier interface {
	NotifyChange(userID string, change websocket.ChangeData)
	NotifySessionExpired(userID string)
}

type Options struct {
	Provider    repository.AuthProvider
	Backend     Backend
	Intents     service.PaymentIntentService
	Limiter     *ratelimit.RateLimiter
	Metrics     *metrics.Metrics
	Notifier    Notifier
	Currency    string
	IdleTimeout time.Duration
}

// Registry holds one Session per signed-in user.
type Registry struct {
	opts     Options
	now      func() time.Time
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(opts Options) *Registry {
	return &Registry{
		opts:     opts,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Login signs in and returns the user's session with the fresh credentials.
// A user who is already signed in elsewhere keeps the existing caches.
func (r *Registry) Login(ctx context.Context, email, password string) (*Session, *entity.Session, error) {
	auth := usecase.NewAuthUseCase(r.opts.Provider, r.opts.Metrics)
	if _, err := auth.Login(ctx, email, password); err != nil {
		return nil, nil, err
	}
	return r.adopt(ctx, auth)
}

// Register creates an account, signs in and opens its session.
func (r *Registry) Register(ctx context.Context, email, password string) (*Session, *entity.Session, error) {
	auth := usecase.NewAuthUseCase(r.opts.Provider, r.opts.Metrics)
	if _, err := auth.Register(ctx, email, password); err != nil {
		return nil, nil, err
	}
	return r.adopt(ctx, auth)
}

// Resume validates stored credentials, refreshing them when needed, and
// reattaches to or reopens the user's session.
func (r *Registry) Resume(ctx context.Context, creds *entity.Session) (*Session, *entity.Session, error) {
	auth := usecase.NewAuthUseCase(r.opts.Provider, r.opts.Metrics)
	identity, err := auth.Resume(ctx, creds)
	if err != nil {
		return nil, nil, err
	}
	if identity == nil {
		return nil, nil, errors.SessionExpired(nil)
	}
	return r.adopt(ctx, auth)
}

// Get returns the live session of userID.
func (r *Registry) Get(userID string) (*Session, bool) {
	r.mu.Lock()
	s, ok := r.sessions[userID]
	r.mu.Unlock()
	if ok {
		s.touch(r.now())
	}
	return s, ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Logout ends the remote session of userID and closes its caches.
func (r *Registry) Logout(ctx context.Context, userID string) {
	r.mu.Lock()
	s, ok := r.sessions[userID]
	delete(r.sessions, userID)
	r.mu.Unlock()
	if !ok {
		return
	}

	s.Auth.Logout(ctx)
	s.Close()
	logger.Info("Session of %s logged out", userID)
}

func (r *Registry) adopt(ctx context.Context, auth *usecase.AuthUseCase) (*Session, *entity.Session, error) {
	me := auth.CurrentUser()
	if me == nil {
		return nil, nil, errors.Unauthenticated("Sign in first")
	}

	r.mu.Lock()
	existing, ok := r.sessions[me.ID]
	r.mu.Unlock()
	if ok {
		creds := auth.Credentials()
		if _, err := existing.Auth.Resume(ctx, creds); err != nil {
			return nil, nil, err
		}
		existing.touch(r.now())
		return existing, creds, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.sessions[me.ID]; ok {
		existing.touch(r.now())
		return existing, existing.Auth.Credentials(), nil
	}

	s, err := r.open(ctx, me.ID, auth)
	if err != nil {
		return nil, nil, err
	}
	r.sessions[me.ID] = s
	logger.Info("Session opened for %s", me.ID)
	return s, auth.Credentials(), nil
}

func (r *Registry) open(ctx context.Context, userID string, auth *usecase.AuthUseCase) (*Session, error) {
	cols, closeCols, err := r.opts.Backend.Open(ctx, auth)
	if err != nil {
		return nil, err
	}

	s := &Session{
		Auth:      auth,
		Listings:  usecase.NewListingUseCase(auth, cols.Listings, r.opts.Metrics),
		Messaging: usecase.NewMessagingUseCase(auth, cols.Conversations, cols.Messages, r.opts.Limiter, r.opts.Metrics),
		Payments:  usecase.NewPaymentUseCase(auth, cols.Payments, cols.Transactions, cols.Listings, r.opts.Intents, r.opts.Currency, r.opts.Metrics),
		Reviews:   usecase.NewReviewUseCase(auth, cols.Reviews, r.opts.Metrics),
		userID:    userID,
		closeCols: closeCols,
	}
	s.touch(r.now())

	if r.opts.Notifier != nil {
		forward := func(ch usecase.Change) {
			r.opts.Notifier.NotifyChange(userID, websocket.ChangeData{
				Cache:     ch.Cache,
				Operation: string(ch.Operation),
				ID:        ch.ID,
				Payload:   ch.Payload,
			})
		}
		s.Listings.OnChange(forward)
		s.Messaging.OnChange(forward)
		s.Payments.OnChange(forward)
		s.Reviews.OnChange(forward)
	}

	auth.Observe(func(identity *entity.Identity, _ uint64) {
		if identity == nil || identity.ID != userID {
			// Observers run inside auth calls that may hold a context's lock.
			go r.expire(userID, s)
		}
	})

	s.Listings.Start()
	s.Messaging.Start()
	s.Payments.Start()
	s.Reviews.Start()
	return s, nil
}

// expire drops s after its identity went away without a logout.
func (r *Registry) expire(userID string, s *Session) {
	r.mu.Lock()
	current, ok := r.sessions[userID]
	if ok && current == s {
		delete(r.sessions, userID)
	}
	r.mu.Unlock()
	if !ok || current != s {
		s.Close()
		return
	}

	logger.Warn("Session of %s expired", userID)
	if r.opts.Notifier != nil {
		r.opts.Notifier.NotifySessionExpired(userID)
	}
	s.Close()
}

// CloseIdle closes sessions unused for longer than the idle timeout. Their
// remote sessions stay valid and can be resumed.
func (r *Registry) CloseIdle() int {
	if r.opts.IdleTimeout <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.opts.IdleTimeout)

	var idle []*Session
	r.mu.Lock()
	for id, s := range r.sessions {
		if s.idleSince().Before(cutoff) {
			idle = append(idle, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range idle {
		logger.Info("Closing idle session of %s", s.userID)
		s.Close()
	}
	return len(idle)
}

func (r *Registry) StartCleanupRoutine(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.CloseIdle()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// CloseAll closes every session without logging it out.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

// HandleCommand runs a websocket client command against the sender's session.
func (r *Registry) HandleCommand(ctx context.Context, userID string, msg websocket.WSMessage) error {
	s, ok := r.Get(userID)
	if !ok {
		return errors.Unauthenticated("No active session")
	}

	switch msg.Type {
	case websocket.MessageTypeMarkRead:
		var data websocket.MarkReadData
		if err := websocket.DecodeData(msg, &data); err != nil || data.ConversationID == "" {
			return errors.Validation("conversation_id is required")
		}
		return s.Messaging.MarkRead(ctx, data.ConversationID)
	default:
		return errors.Validation("Unknown command " + msg.Type)
	}
}
