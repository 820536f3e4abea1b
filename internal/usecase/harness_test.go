package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	adapterrepo "servicehub/internal/adapter/repository"
	"servicehub/internal/domain/entity"
	"servicehub/internal/domain/repository"
	"servicehub/internal/domain/service"
	"servicehub/internal/infrastructure/ratelimit"
)

const (
	listingsCol      = "services"
	conversationsCol = "conversations"
	messagesCol      = "messages"
	paymentsCol      = "payments"
	transactionsCol  = "transactions"
	reviewsCol       = "reviews"
)

// backend is one shared remote store and auth endpoint for several clients.
type backend struct {
	store *adapterrepo.MemoryStore
	auth  *adapterrepo.MemoryAuthProvider
}

func newBackend() *backend {
	return &backend{
		store: adapterrepo.NewMemoryStore(),
		auth:  adapterrepo.NewMemoryAuthProvider(),
	}
}

// client is one signed-in user with all four cache contexts.
type client struct {
	auth      *AuthUseCase
	listings  *ListingUseCase
	messaging *MessagingUseCase
	payments  *PaymentUseCase
	reviews   *ReviewUseCase
	intents   *fakeIntents
}

func (b *backend) actor(auth *AuthUseCase) adapterrepo.Actor {
	return func() (string, bool) {
		session := auth.Credentials()
		if session == nil {
			return "", false
		}
		return b.auth.Authorize(session.IDToken)
	}
}

// admin writes with full access, standing in for the payment webhook.
func (b *backend) adminPayments() repository.Collection[*entity.Payment] {
	return adapterrepo.NewMemoryCollection[entity.Payment](b.store, paymentsCol, nil)
}

func (b *backend) adminTransactions() repository.Collection[*entity.Transaction] {
	return adapterrepo.NewMemoryCollection[entity.Transaction](b.store, transactionsCol, nil)
}

func (b *backend) newClient(t *testing.T, email string) *client {
	t.Helper()

	auth := NewAuthUseCase(b.auth, nil)
	_, err := auth.Register(context.Background(), email, "secret123")
	require.NoError(t, err)

	actor := b.actor(auth)
	listings := adapterrepo.NewMemoryCollection[entity.Listing](b.store, listingsCol, actor)
	intents := &fakeIntents{}

	c := &client{
		auth:     auth,
		listings: NewListingUseCase(auth, listings, nil),
		messaging: NewMessagingUseCase(auth,
			adapterrepo.NewMemoryCollection[entity.Conversation](b.store, conversationsCol, actor),
			adapterrepo.NewMemoryCollection[entity.Message](b.store, messagesCol, actor),
			ratelimit.NewRateLimiter(ratelimit.DefaultRules(100)), nil),
		payments: NewPaymentUseCase(auth,
			adapterrepo.NewMemoryCollection[entity.Payment](b.store, paymentsCol, actor),
			adapterrepo.NewMemoryCollection[entity.Transaction](b.store, transactionsCol, actor),
			listings, intents, "SGD", nil),
		reviews: NewReviewUseCase(auth, adapterrepo.NewMemoryCollection[entity.Review](b.store, reviewsCol, actor), nil),
		intents: intents,
	}

	for _, l := range c.lifecycles() {
		l.Start()
	}
	t.Cleanup(c.close)
	c.waitReady(t)
	return c
}

func (c *client) lifecycles() []*lifecycle {
	return []*lifecycle{c.listings.lifecycle, c.messaging.lifecycle, c.payments.lifecycle, c.reviews.lifecycle}
}

func (c *client) waitReady(t *testing.T) {
	t.Helper()
	for _, l := range c.lifecycles() {
		select {
		case <-l.Ready():
		case <-time.After(3 * time.Second):
			t.Fatalf("%s did not become ready", l.name)
		}
	}
}

func (c *client) close() {
	for _, l := range c.lifecycles() {
		l.Close()
	}
}

func (c *client) me() entity.Identity {
	return *c.auth.CurrentUser()
}

type fakeIntents struct {
	bearers []string
	err     error
	req     service.PaymentIntentRequest
}

func (f *fakeIntents) CreatePaymentIntent(ctx context.Context, bearer string, req service.PaymentIntentRequest) (*entity.PaymentIntent, error) {
	f.bearers = append(f.bearers, bearer)
	f.req = req
	if f.err != nil {
		err := f.err
		f.err = nil
		return nil, err
	}
	return &entity.PaymentIntent{ClientSecret: "cs_test", PaymentIntentID: "pi_1", PaymentRecordID: "pay_1"}, nil
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 3*time.Second, 10*time.Millisecond, msg)
}
