package usecase

import (
	"sync"

	"servicehub/internal/domain/entity"
	"servicehub/internal/domain/repository"
	"servicehub/internal/infrastructure/metrics"
)

// OpReset is reported to change watchers when a cache is emptied.
const OpReset repository.Operation = "reset"

type InsertPolicy int

const (
	// InsertNewestFirst prepends created entities.
	InsertNewestFirst InsertPolicy = iota
	// InsertChronological appends created entities.
	InsertChronological
)

// Visibility decides whether an entity belongs in a cache for the signed-in user.
type Visibility[T any] func(item T, me entity.Identity) bool

// Change is one mutation of a cache, as reported to watchers.
type Change struct {
	Cache     string               `json:"cache"`
	Operation repository.Operation `json:"operation"`
	ID        string               `json:"id,omitempty"`
	Partition string               `json:"partition,omitempty"`
	Payload   interface{}          `json:"payload,omitempty"`
}

type fetchTicket struct {
	epoch uint64
	start uint64
	key   string
}

type journalEntry[T any] struct {
	seq   uint64
	event repository.ChangeEvent[T]
}

// journal keeps push events that arrive while a fetch is in flight, so the
// fetch commit can replay them on top of its snapshot.
type journal[T any] struct {
	inflight int
	seq      uint64
	entries  []journalEntry[T]
}

func (j *journal[T]) begin() uint64 {
	j.inflight++
	return j.seq
}

func (j *journal[T]) record(event repository.ChangeEvent[T]) {
	if j.inflight == 0 {
		return
	}
	j.seq++
	j.entries = append(j.entries, journalEntry[T]{seq: j.seq, event: event})
}

func (j *journal[T]) since(start uint64) []repository.ChangeEvent[T] {
	var events []repository.ChangeEvent[T]
	for _, e := range j.entries {
		if e.seq > start {
			events = append(events, e.event)
		}
	}
	return events
}

func (j *journal[T]) end() {
	j.inflight--
	if j.inflight <= 0 {
		j.inflight = 0
		j.entries = nil
	}
}

// entityStore is the reconciliation core shared by every cache. Entities are
// kept in partitions; a flat cache uses a single partition.
type entityStore[T entity.Document] struct {
	name    string
	policy  InsertPolicy
	visible Visibility[T]
	key     func(T) string
	metrics *metrics.Metrics

	mu       sync.RWMutex
	parts    map[string][]T
	fetched  map[string]bool
	me       entity.Identity
	epoch    uint64
	journal  journal[T]
	watchers []func(Change)
}

func newEntityStore[T entity.Document](name string, policy InsertPolicy, visible Visibility[T], key func(T) string, m *metrics.Metrics) *entityStore[T] {
	if key == nil {
		key = func(T) string { return "" }
	}
	return &entityStore[T]{
		name:    name,
		policy:  policy,
		visible: visible,
		key:     key,
		metrics: m,
		parts:   make(map[string][]T),
		fetched: make(map[string]bool),
	}
}

func (s *entityStore[T]) onChange(fn func(Change)) {
	s.mu.Lock()
	s.watchers = append(s.watchers, fn)
	s.mu.Unlock()
}

func (s *entityStore[T]) notify(changes []Change) {
	if len(changes) == 0 {
		return
	}
	s.mu.RLock()
	watchers := append([]func(Change){}, s.watchers...)
	s.mu.RUnlock()

	for _, w := range watchers {
		for _, c := range changes {
			w(c)
		}
	}
}

func (s *entityStore[T]) currentEpoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

// reset empties every partition and scopes the store to me under epoch.
func (s *entityStore[T]) reset(epoch uint64, me *entity.Identity) {
	s.mu.Lock()
	removed := 0
	for _, items := range s.parts {
		removed += len(items)
	}
	s.parts = make(map[string][]T)
	s.fetched = make(map[string]bool)
	s.journal = journal[T]{}
	s.epoch = epoch
	s.me = entity.Identity{}
	if me != nil {
		s.me = *me
	}
	s.mu.Unlock()

	s.metrics.CacheDelta(s.name, -removed)
	s.notify([]Change{{Cache: s.name, Operation: OpReset}})
}

func (s *entityStore[T]) isVisible(item T) bool {
	return s.visible == nil || s.visible(item, s.me)
}

func indexOf[T entity.Document](items []T, id string) int {
	for i, item := range items {
		if item.GetID() == id {
			return i
		}
	}
	return -1
}

// insertLocked adds item to its partition unless an entity with the same id is there.
func (s *entityStore[T]) insertLocked(item T) (Change, bool) {
	key := s.key(item)
	items := s.parts[key]
	if indexOf(items, item.GetID()) >= 0 || !s.isVisible(item) {
		return Change{}, false
	}

	if s.policy == InsertChronological {
		items = append(items, item)
	} else {
		items = append([]T{item}, items...)
	}
	s.parts[key] = items
	s.metrics.CacheDelta(s.name, 1)
	return Change{Cache: s.name, Operation: repository.OpCreate, ID: item.GetID(), Partition: key, Payload: item}, true
}

// replaceLocked swaps item in by id wherever it is held.
func (s *entityStore[T]) replaceLocked(item T) (Change, bool) {
	replaced := false
	for key, items := range s.parts {
		if idx := indexOf(items, item.GetID()); idx >= 0 {
			items[idx] = item
			s.parts[key] = items
			replaced = true
		}
	}
	if !replaced {
		return Change{}, false
	}
	return Change{Cache: s.name, Operation: repository.OpUpdate, ID: item.GetID(), Partition: s.key(item), Payload: item}, true
}

// removeLocked drops id from every partition.
func (s *entityStore[T]) removeLocked(id string) (Change, bool) {
	var change Change
	removed := false
	for key, items := range s.parts {
		if idx := indexOf(items, id); idx >= 0 {
			s.parts[key] = append(items[:idx:idx], items[idx+1:]...)
			s.metrics.CacheDelta(s.name, -1)
			change = Change{Cache: s.name, Operation: repository.OpDelete, ID: id, Partition: key}
			removed = true
		}
	}
	return change, removed
}

// mergeLocked applies the merge rule: create inserts if absent, update
// replaces if present, delete removes if present.
func (s *entityStore[T]) mergeLocked(event repository.ChangeEvent[T]) []Change {
	var changes []Change
	if event.Has(repository.OpCreate) {
		if c, ok := s.insertLocked(event.Payload); ok {
			changes = append(changes, c)
		}
	}
	if event.Has(repository.OpUpdate) {
		if c, ok := s.replaceLocked(event.Payload); ok {
			changes = append(changes, c)
		}
	}
	if event.Has(repository.OpDelete) {
		if c, ok := s.removeLocked(event.Payload.GetID()); ok {
			changes = append(changes, c)
		}
	}
	return changes
}

// apply merges a push event delivered under epoch. Events from an older epoch are dropped.
func (s *entityStore[T]) apply(event repository.ChangeEvent[T], epoch uint64) bool {
	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return false
	}
	s.journal.record(event)
	changes := s.mergeLocked(event)
	s.mu.Unlock()

	for _, tag := range event.Events {
		s.metrics.PushEvent(tag.Collection(), string(tag.Operation()), len(changes) > 0)
	}
	s.notify(changes)
	return len(changes) > 0
}

func (s *entityStore[T]) mutate(epoch uint64, fn func() (Change, bool)) bool {
	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return false
	}
	change, ok := fn()
	s.mu.Unlock()

	if ok {
		s.notify([]Change{change})
	}
	return ok
}

func (s *entityStore[T]) insert(item T, epoch uint64) bool {
	return s.mutate(epoch, func() (Change, bool) { return s.insertLocked(item) })
}

func (s *entityStore[T]) replace(item T, epoch uint64) bool {
	return s.mutate(epoch, func() (Change, bool) { return s.replaceLocked(item) })
}

func (s *entityStore[T]) remove(id string, epoch uint64) bool {
	return s.mutate(epoch, func() (Change, bool) { return s.removeLocked(id) })
}

func (s *entityStore[T]) beginFetch(key string) fetchTicket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fetchTicket{epoch: s.epoch, start: s.journal.begin(), key: key}
}

// abortFetch releases a ticket whose fetch failed; the cache is left as it was.
func (s *entityStore[T]) abortFetch(ticket fetchTicket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ticket.epoch == s.epoch {
		s.journal.end()
	}
}

// commitFetch replaces the ticket's partition with items, then replays the
// events of that partition journalled while the fetch was in flight.
func (s *entityStore[T]) commitFetch(ticket fetchTicket, items []T) bool {
	s.mu.Lock()
	if ticket.epoch != s.epoch {
		s.mu.Unlock()
		return false
	}

	before := len(s.parts[ticket.key])
	snapshot := make([]T, 0, len(items))
	for _, item := range items {
		if s.isVisible(item) && indexOf(snapshot, item.GetID()) < 0 {
			snapshot = append(snapshot, item)
		}
	}
	s.parts[ticket.key] = snapshot
	s.fetched[ticket.key] = true
	s.metrics.CacheDelta(s.name, len(snapshot)-before)

	for _, event := range s.journal.since(ticket.start) {
		if s.key(event.Payload) == ticket.key {
			s.mergeLocked(event)
		}
	}
	s.journal.end()
	s.mu.Unlock()

	s.notify([]Change{{Cache: s.name, Operation: OpReset, Partition: ticket.key}})
	return true
}

func (s *entityStore[T]) partition(key string) []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]T(nil), s.parts[key]...)
}

func (s *entityStore[T]) all() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var items []T
	for _, part := range s.parts {
		items = append(items, part...)
	}
	return items
}

func (s *entityStore[T]) find(id string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, items := range s.parts {
		if idx := indexOf(items, id); idx >= 0 {
			return items[idx], true
		}
	}
	var zero T
	return zero, false
}

func (s *entityStore[T]) isFetched(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fetched[key]
}

// Cache mirrors one remote collection slice as an ordered list.
type Cache[T entity.Document] struct {
	store *entityStore[T]
}

func NewCache[T entity.Document](name string, policy InsertPolicy, visible Visibility[T], m *metrics.Metrics) *Cache[T] {
	return &Cache[T]{store: newEntityStore[T](name, policy, visible, nil, m)}
}

func (c *Cache[T]) Name() string                            { return c.store.name }
func (c *Cache[T]) Items() []T                              { return c.store.partition("") }
func (c *Cache[T]) Len() int                                { return len(c.store.partition("")) }
func (c *Cache[T]) Find(id string) (T, bool)                { return c.store.find(id) }
func (c *Cache[T]) Fetched() bool                           { return c.store.isFetched("") }
func (c *Cache[T]) Epoch() uint64                           { return c.store.currentEpoch() }
func (c *Cache[T]) OnChange(fn func(Change))                { c.store.onChange(fn) }
func (c *Cache[T]) Reset(epoch uint64, me *entity.Identity) { c.store.reset(epoch, me) }

// Apply merges a push event received under epoch.
func (c *Cache[T]) Apply(event repository.ChangeEvent[T], epoch uint64) bool {
	return c.store.apply(event, epoch)
}

func (c *Cache[T]) Insert(item T, epoch uint64) bool  { return c.store.insert(item, epoch) }
func (c *Cache[T]) Replace(item T, epoch uint64) bool { return c.store.replace(item, epoch) }
func (c *Cache[T]) Remove(id string, epoch uint64) bool {
	return c.store.remove(id, epoch)
}

func (c *Cache[T]) beginFetch() fetchTicket                   { return c.store.beginFetch("") }
func (c *Cache[T]) abortFetch(t fetchTicket)                  { c.store.abortFetch(t) }
func (c *Cache[T]) commitFetch(t fetchTicket, items []T) bool { return c.store.commitFetch(t, items) }

// PartitionedCache mirrors a collection grouped by a parent key, such as
// messages by conversation.
type PartitionedCache[T entity.Document] struct {
	store *entityStore[T]
}

func NewPartitionedCache[T entity.Document](name string, policy InsertPolicy, key func(T) string, m *metrics.Metrics) *PartitionedCache[T] {
	return &PartitionedCache[T]{store: newEntityStore[T](name, policy, nil, key, m)}
}

func (c *PartitionedCache[T]) Name() string                            { return c.store.name }
func (c *PartitionedCache[T]) Partition(key string) []T                { return c.store.partition(key) }
func (c *PartitionedCache[T]) All() []T                                { return c.store.all() }
func (c *PartitionedCache[T]) Find(id string) (T, bool)                { return c.store.find(id) }
func (c *PartitionedCache[T]) Fetched(key string) bool                 { return c.store.isFetched(key) }
func (c *PartitionedCache[T]) Epoch() uint64                           { return c.store.currentEpoch() }
func (c *PartitionedCache[T]) OnChange(fn func(Change))                { c.store.onChange(fn) }
func (c *PartitionedCache[T]) Reset(epoch uint64, me *entity.Identity) { c.store.reset(epoch, me) }

func (c *PartitionedCache[T]) Apply(event repository.ChangeEvent[T], epoch uint64) bool {
	return c.store.apply(event, epoch)
}

func (c *PartitionedCache[T]) Insert(item T, epoch uint64) bool  { return c.store.insert(item, epoch) }
func (c *PartitionedCache[T]) Replace(item T, epoch uint64) bool { return c.store.replace(item, epoch) }
func (c *PartitionedCache[T]) Remove(id string, epoch uint64) bool {
	return c.store.remove(id, epoch)
}

func (c *PartitionedCache[T]) beginFetch(key string) fetchTicket { return c.store.beginFetch(key) }
func (c *PartitionedCache[T]) abortFetch(t fetchTicket)          { c.store.abortFetch(t) }
func (c *PartitionedCache[T]) commitFetch(t fetchTicket, items []T) bool {
	return c.store.commitFetch(t, items)
}
