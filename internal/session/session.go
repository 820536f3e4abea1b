package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"servicehub/internal/usecase"
	"servicehub/pkg/errors"
	"servicehub/pkg/logger"
)

// Session is one signed-in user's auth manager and cache contexts. Every
// device of the user shares it.
type Session struct {
	Auth      *usecase.AuthUseCase
	Listings  *usecase.ListingUseCase
	Messaging *usecase.MessagingUseCase
	Payments  *usecase.PaymentUseCase
	Reviews   *usecase.ReviewUseCase

	userID    string
	closeCols func() error
	lastSeen  atomic.Int64
	closeOnce sync.Once
}

type readiness interface {
	Ready() <-chan struct{}
	Close()
}

func (s *Session) UserID() string {
	return s.userID
}

func (s *Session) contexts() []readiness {
	return []readiness{s.Listings, s.Messaging, s.Payments, s.Reviews}
}

func (s *Session) touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

func (s *Session) idleSince() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// WaitReady blocks until every cache context finished its initial load.
func (s *Session) WaitReady(ctx context.Context) error {
	for _, c := range s.contexts() {
		select {
		case <-c.Ready():
		case <-ctx.Done():
			return errors.Network("Timed out loading session data", ctx.Err())
		}
	}
	return nil
}

// Close stops every push feed and releases the store client. The remote
// session stays valid; use Registry.Logout to end it.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		for _, c := range s.contexts() {
			c.Close()
		}
		if s.closeCols != nil {
			if err := s.closeCols(); err != nil {
				logger.Warn("Closing store client for %s: %v", s.userID, err)
			}
		}
	})
}
