package session

import (
	"context"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"

	adapterrepo "servicehub/internal/adapter/repository"
	"servicehub/internal/domain/entity"
	"servicehub/internal/domain/repository"
	"servicehub/internal/infrastructure/firebase"
	"servicehub/internal/usecase"
	"servicehub/pkg/config"
	"servicehub/pkg/errors"
)

// Collections are the remote collections one session reads and writes.
// Reviews is nil when no reviews collection is configured.
type Collections struct {
	Listings      repository.Collection[*entity.Listing]
	Conversations repository.Collection[*entity.Conversation]
	Messages      repository.Collection[*entity.Message]
	Payments      repository.Collection[*entity.Payment]
	Transactions  repository.Collection[*entity.Transaction]
	Reviews       repository.Collection[*entity.Review]
}

// Backend opens collections that act as the user signed in to auth.
// The returned close func releases whatever the collections hold open.
type Backend interface {
	Open(ctx context.Context, auth *usecase.AuthUseCase) (Collections, func() error, error)
}

// MemoryBackend serves every session from one in-process store. Calls are
// authorized against the memory auth provider with the session's ID token.
type MemoryBackend struct {
	store *adapterrepo.MemoryStore
	auth  *adapterrepo.MemoryAuthProvider
	names config.Collections
}

func NewMemoryBackend(store *adapterrepo.MemoryStore, auth *adapterrepo.MemoryAuthProvider, names config.Collections) *MemoryBackend {
	return &MemoryBackend{
		store: store,
		auth:  auth,
		names: names,
	}
}

func (b *MemoryBackend) Open(ctx context.Context, auth *usecase.AuthUseCase) (Collections, func() error, error) {
	actor := func() (string, bool) {
		creds := auth.Credentials()
		if creds == nil {
			return "", false
		}
		return b.auth.Authorize(creds.IDToken)
	}

	cols := Collections{
		Listings:      adapterrepo.NewMemoryCollection[entity.Listing](b.store, b.names.Listings, actor),
		Conversations: adapterrepo.NewMemoryCollection[entity.Conversation](b.store, b.names.Conversations, actor),
		Messages:      adapterrepo.NewMemoryCollection[entity.Message](b.store, b.names.Messages, actor),
		Payments:      adapterrepo.NewMemoryCollection[entity.Payment](b.store, b.names.Payments, actor),
		Transactions:  adapterrepo.NewMemoryCollection[entity.Transaction](b.store, b.names.Transactions, actor),
	}
	if b.names.Reviews != "" {
		cols.Reviews = adapterrepo.NewMemoryCollection[entity.Review](b.store, b.names.Reviews, actor)
	}
	return cols, func() error { return nil }, nil
}

// FirestoreBackend gives each session its own Firestore client whose
// credentials are the session's ID token, so security rules run as the user.
type FirestoreBackend struct {
	projectID string
	names     config.Collections
	opts      []option.ClientOption
}

func NewFirestoreBackend(projectID string, names config.Collections, opts ...option.ClientOption) *FirestoreBackend {
	return &FirestoreBackend{
		projectID: projectID,
		names:     names,
		opts:      opts,
	}
}

func (b *FirestoreBackend) Open(ctx context.Context, auth *usecase.AuthUseCase) (Collections, func() error, error) {
	opts := append([]option.ClientOption{
		option.WithTokenSource(firebase.NewSessionTokenSource(auth.Credentials)),
	}, b.opts...)

	client, err := firestore.NewClient(ctx, b.projectID, opts...)
	if err != nil {
		return Collections{}, nil, errors.Internal("Failed to open the document store", err)
	}

	cols := Collections{
		Listings:      adapterrepo.NewFirestoreCollection[entity.Listing](client, b.names.Listings),
		Conversations: adapterrepo.NewFirestoreCollection[entity.Conversation](client, b.names.Conversations),
		Messages:      adapterrepo.NewFirestoreCollection[entity.Message](client, b.names.Messages),
		Payments:      adapterrepo.NewFirestoreCollection[entity.Payment](client, b.names.Payments),
		Transactions:  adapterrepo.NewFirestoreCollection[entity.Transaction](client, b.names.Transactions),
	}
	if b.names.Reviews != "" {
		cols.Reviews = adapterrepo.NewFirestoreCollection[entity.Review](client, b.names.Reviews)
	}
	return cols, client.Close, nil
}
