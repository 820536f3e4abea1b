package repository

import (
	"context"
	"strings"

	"servicehub/internal/domain/entity"
)

type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// EventTag names the collection path and operation of a push event,
// formatted as "collections.<collection>.documents.<id>.<operation>".
type EventTag string

func NewEventTag(collection, documentID string, op Operation) EventTag {
	return EventTag("collections." + collection + ".documents." + documentID + "." + string(op))
}

func (t EventTag) Operation() Operation {
	s := string(t)
	if idx := strings.LastIndex(s, "."); idx >= 0 {
		return Operation(s[idx+1:])
	}
	return Operation(s)
}

func (t EventTag) Collection() string {
	parts := strings.Split(string(t), ".")
	for i := 0; i+1 < len(parts); i++ {
		if parts[i] == "collections" {
			return parts[i+1]
		}
	}
	return ""
}

// ChangeEvent is one server-pushed notification for a collection channel.
type ChangeEvent[T any] struct {
	Payload T
	Events  []EventTag
}

// Has reports whether any tag of the event carries op.
func (e ChangeEvent[T]) Has(op Operation) bool {
	for _, tag := range e.Events {
		if tag.Operation() == op {
			return true
		}
	}
	return false
}

// Subscription delivers push events until closed. Close is idempotent and
// returns only after the delivery goroutine has stopped.
type Subscription[T any] interface {
	Events() <-chan ChangeEvent[T]
	Close() error
}

type Direction int

const (
	Asc Direction = iota
	Desc
)

// Filter is either a field comparison or an OR/AND composition of filters.
type Filter struct {
	Field string
	Op    string
	Value interface{}
	Or    []Filter
	And   []Filter
}

func Equal(field string, value interface{}) Filter {
	return Filter{Field: field, Op: "==", Value: value}
}

func Or(filters ...Filter) Filter {
	return Filter{Or: filters}
}

func And(filters ...Filter) Filter {
	return Filter{And: filters}
}

func (f Filter) IsComposite() bool {
	return len(f.Or) > 0 || len(f.And) > 0
}

// Query selects documents. Top-level filters are ANDed.
type Query struct {
	Filters    []Filter
	OrderField string
	Direction  Direction
	Limit      int
}

func NewQuery(filters ...Filter) Query {
	return Query{Filters: filters}
}

func (q Query) OrderBy(field string, dir Direction) Query {
	q.OrderField = field
	q.Direction = dir
	return q
}

func (q Query) WithLimit(n int) Query {
	q.Limit = n
	return q
}

// Permission is granted on a document at create time and enforced by the store.
type Permission struct {
	Action string `json:"action" firestore:"action"`
	Role   string `json:"role" firestore:"role"`
}

func ReadAny() Permission               { return Permission{Action: "read", Role: "any"} }
func ReadUser(userID string) Permission { return Permission{Action: "read", Role: "user:" + userID} }
func UpdateUser(userID string) Permission {
	return Permission{Action: "update", Role: "user:" + userID}
}
func DeleteUser(userID string) Permission {
	return Permission{Action: "delete", Role: "user:" + userID}
}

// OwnerOnly grants public read and owner-only update/delete.
func OwnerOnly(userID string) []Permission {
	return []Permission{ReadAny(), UpdateUser(userID), DeleteUser(userID)}
}

// Collection is the remote document store as seen through one typed collection.
// Field names in filters, ordering and patches are the stored field names.
type Collection[T entity.Document] interface {
	Name() string
	List(ctx context.Context, query Query) ([]T, error)
	Get(ctx context.Context, id string) (T, error)
	Create(ctx context.Context, doc T, permissions ...Permission) (T, error)
	Update(ctx context.Context, id string, patch map[string]interface{}) (T, error)
	Delete(ctx context.Context, id string) error
	// Subscribe opens the push channel for documents matching query's filters.
	Subscribe(ctx context.Context, query Query) (Subscription[T], error)
}
