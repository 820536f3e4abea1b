package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"servicehub/internal/domain/entity"
	"servicehub/internal/domain/repository"
)

func listingEvent(l *entity.Listing, ops ...repository.Operation) repository.ChangeEvent[*entity.Listing] {
	ev := repository.ChangeEvent[*entity.Listing]{Payload: l}
	for _, op := range ops {
		ev.Events = append(ev.Events, repository.NewEventTag("services", l.ID, op))
	}
	return ev
}

func ownListingCache(me string) *Cache[*entity.Listing] {
	c := NewCache[*entity.Listing]("listings", InsertNewestFirst, func(l *entity.Listing, id entity.Identity) bool {
		return l.OwnerUserID == id.ID
	}, nil)
	c.Reset(1, &entity.Identity{ID: me})
	return c
}

func TestCacheCreateEventIsIdempotent(t *testing.T) {
	c := ownListingCache("u1")
	l := &entity.Listing{ID: "l1", OwnerUserID: "u1", Title: "Logo design"}

	assert.True(t, c.Apply(listingEvent(l, repository.OpCreate), 1))
	assert.False(t, c.Apply(listingEvent(l, repository.OpCreate), 1))

	require.Len(t, c.Items(), 1)
	assert.Equal(t, "l1", c.Items()[0].ID)
}

func TestCacheLocalCreateAndEchoDoNotDuplicate(t *testing.T) {
	c := ownListingCache("u1")
	l := &entity.Listing{ID: "l1", OwnerUserID: "u1"}

	c.Insert(l, 1)
	c.Apply(listingEvent(l, repository.OpCreate), 1)

	assert.Equal(t, 1, c.Len())
}

func TestCacheUpdateAfterDeleteIsNoop(t *testing.T) {
	c := ownListingCache("u1")
	l := &entity.Listing{ID: "l1", OwnerUserID: "u1", Title: "old"}
	c.Apply(listingEvent(l, repository.OpCreate), 1)

	c.Apply(listingEvent(l, repository.OpDelete), 1)
	late := &entity.Listing{ID: "l1", OwnerUserID: "u1", Title: "new"}
	assert.False(t, c.Apply(listingEvent(late, repository.OpUpdate), 1))

	_, ok := c.Find("l1")
	assert.False(t, ok)
}

func TestCacheRespectsVisibility(t *testing.T) {
	c := ownListingCache("u1")
	c.Apply(listingEvent(&entity.Listing{ID: "l2", OwnerUserID: "u2"}, repository.OpCreate), 1)
	assert.Empty(t, c.Items())
}

func TestCacheInsertPolicies(t *testing.T) {
	c := ownListingCache("u1")
	c.Insert(&entity.Listing{ID: "a", OwnerUserID: "u1"}, 1)
	c.Insert(&entity.Listing{ID: "b", OwnerUserID: "u1"}, 1)
	assert.Equal(t, "b", c.Items()[0].ID)

	msgs := NewPartitionedCache[*entity.Message]("messages", InsertChronological, func(m *entity.Message) string {
		return m.ConversationID
	}, nil)
	msgs.Insert(&entity.Message{ID: "m1", ConversationID: "c1"}, 0)
	msgs.Insert(&entity.Message{ID: "m2", ConversationID: "c1"}, 0)
	msgs.Insert(&entity.Message{ID: "m3", ConversationID: "c2"}, 0)

	part := msgs.Partition("c1")
	require.Len(t, part, 2)
	assert.Equal(t, "m1", part[0].ID)
	assert.Equal(t, "m2", part[1].ID)
	assert.Len(t, msgs.All(), 3)
}

func TestCacheStaleEpochIsIgnored(t *testing.T) {
	c := ownListingCache("u1")
	c.Reset(2, &entity.Identity{ID: "u1"})

	assert.False(t, c.Insert(&entity.Listing{ID: "l1", OwnerUserID: "u1"}, 1))
	assert.False(t, c.Apply(listingEvent(&entity.Listing{ID: "l2", OwnerUserID: "u1"}, repository.OpCreate), 1))
	assert.Empty(t, c.Items())
}

func TestCacheFetchCommitReplaysEventsSeenDuringFetch(t *testing.T) {
	c := ownListingCache("u1")
	ticket := c.beginFetch()

	// Pushed while the fetch was in flight.
	c.Apply(listingEvent(&entity.Listing{ID: "new", OwnerUserID: "u1"}, repository.OpCreate), 1)
	c.Apply(listingEvent(&entity.Listing{ID: "gone", OwnerUserID: "u1"}, repository.OpDelete), 1)

	snapshot := []*entity.Listing{
		{ID: "gone", OwnerUserID: "u1"},
		{ID: "kept", OwnerUserID: "u1"},
	}
	require.True(t, c.commitFetch(ticket, snapshot))

	ids := []string{}
	for _, l := range c.Items() {
		ids = append(ids, l.ID)
	}
	assert.ElementsMatch(t, []string{"new", "kept"}, ids)
	assert.True(t, c.Fetched())
}

func TestCacheFetchCommitDiscardedAfterReset(t *testing.T) {
	c := ownListingCache("u1")
	ticket := c.beginFetch()
	c.Reset(2, nil)

	assert.False(t, c.commitFetch(ticket, []*entity.Listing{{ID: "l1", OwnerUserID: "u1"}}))
	assert.Empty(t, c.Items())
}

func TestCacheAbortLeavesItemsUntouched(t *testing.T) {
	c := ownListingCache("u1")
	c.Insert(&entity.Listing{ID: "l1", OwnerUserID: "u1"}, 1)

	ticket := c.beginFetch()
	c.abortFetch(ticket)

	assert.Equal(t, 1, c.Len())
}

func TestCacheNotifiesWatchers(t *testing.T) {
	c := ownListingCache("u1")
	var changes []Change
	c.OnChange(func(ch Change) { changes = append(changes, ch) })

	l := &entity.Listing{ID: "l1", OwnerUserID: "u1", CreatedAt: time.Now()}
	c.Apply(listingEvent(l, repository.OpCreate), 1)
	c.Remove("l1", 1)

	require.Len(t, changes, 2)
	assert.Equal(t, repository.OpCreate, changes[0].Operation)
	assert.Equal(t, repository.OpDelete, changes[1].Operation)
	assert.Equal(t, "l1", changes[1].ID)
}
