package repository

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/google/uuid"

	"servicehub/internal/domain/entity"
	"servicehub/internal/domain/repository"
	"servicehub/pkg/errors"
)

// Actor reports the user a store call runs as. ok is false when the caller's
// credentials are no longer accepted.
type Actor func() (userID string, ok bool)

type storedDoc struct {
	value       interface{}
	permissions []repository.Permission
	seq         uint64
}

type storeListener func(op repository.Operation, doc storedDoc)

type injectedFailure struct {
	collection string
	method     string
	err        error
}

// MemoryStore is an in-process document store with push fan-out. Collections
// created from it share data across every actor, the way sessions share a
// remote database.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]map[string]storedDoc
	listeners   map[string]map[uint64]storeListener
	failures    []injectedFailure
	seq         uint64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]storedDoc),
		listeners:   make(map[string]map[uint64]storeListener),
	}
}

// FailNext makes the next call of method ("list", "get", "create", "update",
// "delete", "subscribe") on collection return err instead of running.
func (s *MemoryStore) FailNext(collection, method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, injectedFailure{collection: collection, method: method, err: err})
}

// Len reports the number of documents held for collection.
func (s *MemoryStore) Len(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.collections[collection])
}

// Listeners reports the number of open subscriptions on collection.
func (s *MemoryStore) Listeners(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners[collection])
}

// takeFailure must be called with s.mu held.
func (s *MemoryStore) takeFailure(collection, method string) error {
	for i, f := range s.failures {
		if f.collection == collection && f.method == method {
			s.failures = append(s.failures[:i], s.failures[i+1:]...)
			return f.err
		}
	}
	return nil
}

// publish must be called with s.mu held; listeners only enqueue.
func (s *MemoryStore) publish(collection string, op repository.Operation, doc storedDoc) {
	for _, l := range s.listeners[collection] {
		l(op, doc)
	}
}

func (s *MemoryStore) docs(collection string) map[string]storedDoc {
	docs, ok := s.collections[collection]
	if !ok {
		docs = make(map[string]storedDoc)
		s.collections[collection] = docs
	}
	return docs
}

type memoryCollection[E any, T interface {
	*E
	entity.Document
}] struct {
	store *MemoryStore
	name  string
	actor Actor
}

// NewMemoryCollection returns a typed view of one store collection. A nil actor
// runs every call with full access.
func NewMemoryCollection[E any, T interface {
	*E
	entity.Document
}](store *MemoryStore, name string, actor Actor) repository.Collection[T] {
	return &memoryCollection[E, T]{
		store: store,
		name:  name,
		actor: actor,
	}
}

func (c *memoryCollection[E, T]) Name() string {
	return c.name
}

// caller must run with c.store.mu held.
func (c *memoryCollection[E, T]) caller(method string) (string, error) {
	if err := c.store.takeFailure(c.name, method); err != nil {
		return "", err
	}
	if c.actor == nil {
		return "", nil
	}
	userID, ok := c.actor()
	if !ok {
		return "", errors.AuthorizationExpired("Session is no longer valid", nil)
	}
	return userID, nil
}

func (c *memoryCollection[E, T]) List(ctx context.Context, query repository.Query) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, classifyStoreError(err, c.name)
	}

	c.store.mu.Lock()
	userID, err := c.caller("list")
	if err != nil {
		c.store.mu.Unlock()
		return nil, err
	}

	type row struct {
		doc    T
		fields map[string]interface{}
		seq    uint64
	}
	var rows []row
	for _, stored := range c.store.docs(c.name) {
		if !c.allowed(userID, "read", stored) {
			continue
		}
		fields := fieldValues(stored.value)
		if !matchesAll(fields, query.Filters) {
			continue
		}
		rows = append(rows, row{doc: clone[E, T](stored.value), fields: fields, seq: stored.seq})
	}
	c.store.mu.Unlock()

	sort.SliceStable(rows, func(i, j int) bool {
		if query.OrderField != "" {
			cmp, ok := compareValues(rows[i].fields[query.OrderField], rows[j].fields[query.OrderField])
			if ok && cmp != 0 {
				if query.Direction == repository.Desc {
					return cmp > 0
				}
				return cmp < 0
			}
		}
		return rows[i].seq < rows[j].seq
	})

	if query.Limit > 0 && len(rows) > query.Limit {
		rows = rows[:query.Limit]
	}

	docs := make([]T, 0, len(rows))
	for _, r := range rows {
		docs = append(docs, r.doc)
	}
	return docs, nil
}

func (c *memoryCollection[E, T]) Get(ctx context.Context, id string) (T, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	userID, err := c.caller("get")
	if err != nil {
		return nil, err
	}

	stored, ok := c.store.docs(c.name)[id]
	if !ok || !c.allowed(userID, "read", stored) {
		return nil, errors.NotFound(c.name, nil)
	}
	return clone[E, T](stored.value), nil
}

func (c *memoryCollection[E, T]) Create(ctx context.Context, doc T, permissions ...repository.Permission) (T, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	if _, err := c.caller("create"); err != nil {
		return nil, err
	}

	docs := c.store.docs(c.name)
	stored := clone[E, T](doc)
	if stored.GetID() == "" {
		stored.SetID(uuid.New().String())
	}
	if _, exists := docs[stored.GetID()]; exists {
		return nil, errors.New("ALREADY_EXISTS", fmt.Sprintf("%s %s already exists", c.name, stored.GetID()), http.StatusConflict, nil)
	}

	c.store.seq++
	entry := storedDoc{
		value:       stored,
		permissions: append([]repository.Permission(nil), permissions...),
		seq:         c.store.seq,
	}
	docs[stored.GetID()] = entry
	c.store.publish(c.name, repository.OpCreate, entry)

	return clone[E, T](stored), nil
}

func (c *memoryCollection[E, T]) Update(ctx context.Context, id string, patch map[string]interface{}) (T, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	userID, err := c.caller("update")
	if err != nil {
		return nil, err
	}

	docs := c.store.docs(c.name)
	stored, ok := docs[id]
	if !ok || !c.allowed(userID, "read", stored) {
		return nil, errors.NotFound(c.name, nil)
	}
	if !c.allowed(userID, "update", stored) {
		return nil, errors.Forbidden(fmt.Sprintf("Not allowed to update %s %s", c.name, id), nil)
	}

	updated := clone[E, T](stored.value)
	if err := applyPatch(updated, patch); err != nil {
		return nil, errors.BadRequest(err.Error(), err)
	}
	updated.SetID(id)

	stored.value = updated
	docs[id] = stored
	c.store.publish(c.name, repository.OpUpdate, stored)

	return clone[E, T](updated), nil
}

func (c *memoryCollection[E, T]) Delete(ctx context.Context, id string) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	userID, err := c.caller("delete")
	if err != nil {
		return err
	}

	docs := c.store.docs(c.name)
	stored, ok := docs[id]
	if !ok || !c.allowed(userID, "read", stored) {
		return errors.NotFound(c.name, nil)
	}
	if !c.allowed(userID, "delete", stored) {
		return errors.Forbidden(fmt.Sprintf("Not allowed to delete %s %s", c.name, id), nil)
	}

	delete(docs, id)
	c.store.publish(c.name, repository.OpDelete, stored)
	return nil
}

func (c *memoryCollection[E, T]) Subscribe(ctx context.Context, query repository.Query) (repository.Subscription[T], error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	if _, err := c.caller("subscribe"); err != nil {
		return nil, err
	}

	sub := newMemorySubscription[T]()
	c.store.seq++
	key := c.store.seq
	listeners, ok := c.store.listeners[c.name]
	if !ok {
		listeners = make(map[uint64]storeListener)
		c.store.listeners[c.name] = listeners
	}

	listeners[key] = func(op repository.Operation, doc storedDoc) {
		userID := ""
		if c.actor != nil {
			var valid bool
			if userID, valid = c.actor(); !valid {
				return
			}
		}
		if !c.allowed(userID, "read", doc) || !matchesAll(fieldValues(doc.value), query.Filters) {
			return
		}
		payload := clone[E, T](doc.value)
		sub.enqueue(repository.ChangeEvent[T]{
			Payload: payload,
			Events:  []repository.EventTag{repository.NewEventTag(c.name, payload.GetID(), op)},
		})
	}

	sub.unregister = func() {
		c.store.mu.Lock()
		delete(c.store.listeners[c.name], key)
		c.store.mu.Unlock()
	}

	go sub.run()
	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.closing:
		}
	}()

	return sub, nil
}

// allowed evaluates create-time grants. Documents created without grants are open.
func (c *memoryCollection[E, T]) allowed(userID, action string, doc storedDoc) bool {
	if c.actor == nil || len(doc.permissions) == 0 {
		return true
	}
	for _, p := range doc.permissions {
		if p.Action != action {
			continue
		}
		if p.Role == "any" || p.Role == "user:"+userID {
			return true
		}
	}
	return false
}

func clone[E any, T interface {
	*E
	entity.Document
}](value interface{}) T {
	src := (*E)(value.(T))
	cp := new(E)
	*cp = *src
	return T(cp)
}

type memorySubscription[T any] struct {
	events     chan repository.ChangeEvent[T]
	mu         sync.Mutex
	queue      []repository.ChangeEvent[T]
	signal     chan struct{}
	closing    chan struct{}
	exited     chan struct{}
	once       sync.Once
	unregister func()
}

func newMemorySubscription[T any]() *memorySubscription[T] {
	return &memorySubscription[T]{
		events:  make(chan repository.ChangeEvent[T]),
		signal:  make(chan struct{}, 1),
		closing: make(chan struct{}),
		exited:  make(chan struct{}),
	}
}

func (s *memorySubscription[T]) enqueue(event repository.ChangeEvent[T]) {
	s.mu.Lock()
	s.queue = append(s.queue, event)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *memorySubscription[T]) run() {
	defer close(s.exited)
	defer close(s.events)

	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.signal:
				continue
			case <-s.closing:
				return
			}
		}
		event := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.events <- event:
		case <-s.closing:
			return
		}
	}
}

func (s *memorySubscription[T]) Events() <-chan repository.ChangeEvent[T] {
	return s.events
}

func (s *memorySubscription[T]) Close() error {
	s.once.Do(func() {
		if s.unregister != nil {
			s.unregister()
		}
		close(s.closing)
	})
	<-s.exited
	return nil
}
