package repository

import (
	"context"
	"sort"
	"sync"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"servicehub/internal/domain/entity"
	"servicehub/internal/domain/repository"
	"servicehub/pkg/logger"
)

// PermissionsField holds the create-time grants that security rules evaluate.
const PermissionsField = "_permissions"

const subscriptionBuffer = 64

type firestoreCollection[E any, T interface {
	*E
	entity.Document
}] struct {
	client *firestore.Client
	name   string
}

// NewFirestoreCollection binds a typed collection to a Firestore client.
// The client's credentials decide which documents the caller may touch.
func NewFirestoreCollection[E any, T interface {
	*E
	entity.Document
}](client *firestore.Client, name string) repository.Collection[T] {
	return &firestoreCollection[E, T]{
		client: client,
		name:   name,
	}
}

func (c *firestoreCollection[E, T]) Name() string {
	return c.name
}

func (c *firestoreCollection[E, T]) List(ctx context.Context, query repository.Query) ([]T, error) {
	q := c.client.Collection(c.name).Query
	for _, f := range query.Filters {
		q = q.WhereEntity(toEntityFilter(f))
	}
	if query.OrderField != "" {
		dir := firestore.Asc
		if query.Direction == repository.Desc {
			dir = firestore.Desc
		}
		q = q.OrderBy(query.OrderField, dir)
	}
	if query.Limit > 0 {
		q = q.Limit(query.Limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var docs []T
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, classifyStoreError(err, c.name)
		}

		doc, err := c.decode(snap)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	return docs, nil
}

func (c *firestoreCollection[E, T]) Get(ctx context.Context, id string) (T, error) {
	snap, err := c.client.Collection(c.name).Doc(id).Get(ctx)
	if err != nil {
		return nil, classifyStoreError(err, c.name)
	}
	return c.decode(snap)
}

func (c *firestoreCollection[E, T]) Create(ctx context.Context, doc T, permissions ...repository.Permission) (T, error) {
	var ref *firestore.DocumentRef
	if doc.GetID() == "" {
		ref = c.client.Collection(c.name).NewDoc()
		doc.SetID(ref.ID)
	} else {
		ref = c.client.Collection(c.name).Doc(doc.GetID())
	}

	if _, err := ref.Create(ctx, doc); err != nil {
		return nil, classifyStoreError(err, c.name)
	}

	if len(permissions) > 0 {
		_, err := ref.Set(ctx, map[string]interface{}{PermissionsField: permissions}, firestore.MergeAll)
		if err != nil {
			logger.LogSecondaryWriteError(c.name, ref.ID, "grant permissions", err)
		}
	}

	return c.Get(ctx, ref.ID)
}

func (c *firestoreCollection[E, T]) Update(ctx context.Context, id string, patch map[string]interface{}) (T, error) {
	keys := make([]string, 0, len(patch))
	for k := range patch {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	updates := make([]firestore.Update, 0, len(keys))
	for _, k := range keys {
		updates = append(updates, firestore.Update{Path: k, Value: patch[k]})
	}

	ref := c.client.Collection(c.name).Doc(id)
	if _, err := ref.Update(ctx, updates); err != nil {
		return nil, classifyStoreError(err, c.name)
	}

	return c.Get(ctx, id)
}

func (c *firestoreCollection[E, T]) Delete(ctx context.Context, id string) error {
	ref := c.client.Collection(c.name).Doc(id)
	if _, err := ref.Get(ctx); err != nil {
		return classifyStoreError(err, c.name)
	}
	if _, err := ref.Delete(ctx); err != nil {
		return classifyStoreError(err, c.name)
	}
	return nil
}

// Subscribe listens to the documents matching query's filters. The listener's
// initial snapshot only establishes the baseline; later changes are delivered as events.
func (c *firestoreCollection[E, T]) Subscribe(ctx context.Context, query repository.Query) (repository.Subscription[T], error) {
	ctx, cancel := context.WithCancel(ctx)
	sub := &firestoreSubscription[T]{
		events: make(chan repository.ChangeEvent[T], subscriptionBuffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	q := c.client.Collection(c.name).Query
	for _, f := range query.Filters {
		q = q.WhereEntity(toEntityFilter(f))
	}
	it := q.Snapshots(ctx)
	sub.stop = it.Stop

	go func() {
		defer close(sub.done)
		defer close(sub.events)

		baseline := true
		for {
			snap, err := it.Next()
			if err != nil {
				if ctx.Err() == nil && status.Code(err) != codes.Canceled {
					logger.Error("Snapshot listener for %s stopped: %v", c.name, err)
				}
				return
			}
			if baseline {
				baseline = false
				continue
			}

			for _, change := range snap.Changes {
				doc, err := c.decode(change.Doc)
				if err != nil {
					logger.Warn("Dropping undecodable %s change for %s: %v", c.name, change.Doc.Ref.ID, err)
					continue
				}

				event := repository.ChangeEvent[T]{
					Payload: doc,
					Events:  []repository.EventTag{repository.NewEventTag(c.name, doc.GetID(), changeOperation(change.Kind))},
				}

				select {
				case sub.events <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return sub, nil
}

func (c *firestoreCollection[E, T]) decode(snap *firestore.DocumentSnapshot) (T, error) {
	doc := T(new(E))
	if err := snap.DataTo(doc); err != nil {
		return nil, classifyStoreError(err, c.name)
	}
	doc.SetID(snap.Ref.ID)
	return doc, nil
}

func changeOperation(kind firestore.DocumentChangeKind) repository.Operation {
	switch kind {
	case firestore.DocumentAdded:
		return repository.OpCreate
	case firestore.DocumentRemoved:
		return repository.OpDelete
	default:
		return repository.OpUpdate
	}
}

func toEntityFilter(f repository.Filter) firestore.EntityFilter {
	switch {
	case len(f.Or) > 0:
		or := firestore.OrFilter{}
		for _, sub := range f.Or {
			or.Filters = append(or.Filters, toEntityFilter(sub))
		}
		return or
	case len(f.And) > 0:
		and := firestore.AndFilter{}
		for _, sub := range f.And {
			and.Filters = append(and.Filters, toEntityFilter(sub))
		}
		return and
	default:
		return firestore.PropertyFilter{Path: f.Field, Operator: f.Op, Value: f.Value}
	}
}

type firestoreSubscription[T any] struct {
	events chan repository.ChangeEvent[T]
	cancel context.CancelFunc
	stop   func()
	done   chan struct{}
	once   sync.Once
}

func (s *firestoreSubscription[T]) Events() <-chan repository.ChangeEvent[T] {
	return s.events
}

func (s *firestoreSubscription[T]) Close() error {
	s.once.Do(func() {
		s.cancel()
		s.stop()
	})
	<-s.done
	return nil
}
