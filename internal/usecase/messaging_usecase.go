package usecase

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/tomb.v2"

	"servicehub/internal/domain/entity"
	"servicehub/internal/domain/repository"
	"servicehub/internal/infrastructure/metrics"
	"servicehub/internal/infrastructure/ratelimit"
	"servicehub/pkg/errors"
	"servicehub/pkg/logger"
)

const (
	messageFetchLimit  = 100
	lastMessageMaxRune = 100
)

// MessagingUseCase caches the signed-in user's conversations and the messages
// of each conversation.
type MessagingUseCase struct {
	*lifecycle

	auth          *AuthUseCase
	conversations repository.Collection[*entity.Conversation]
	messages      repository.Collection[*entity.Message]
	convCache     *Cache[*entity.Conversation]
	msgCache      *PartitionedCache[*entity.Message]
	limiter       *ratelimit.RateLimiter
	metrics       *metrics.Metrics
	now           func() time.Time
	loading       atomic.Int32
}

func NewMessagingUseCase(
	auth *AuthUseCase,
	conversations repository.Collection[*entity.Conversation],
	messages repository.Collection[*entity.Message],
	limiter *ratelimit.RateLimiter,
	m *metrics.Metrics,
) *MessagingUseCase {
	uc := &MessagingUseCase{
		auth:          auth,
		conversations: conversations,
		messages:      messages,
		limiter:       limiter,
		metrics:       m,
		now:           time.Now,
		convCache: NewCache[*entity.Conversation]("conversations", InsertNewestFirst, func(c *entity.Conversation, me entity.Identity) bool {
			return c.HasParticipant(me.ID)
		}, m),
		msgCache: NewPartitionedCache[*entity.Message]("messages", InsertChronological, func(msg *entity.Message) string {
			return msg.ConversationID
		}, m),
	}
	uc.lifecycle = newLifecycle("messaging", auth, uc)
	return uc
}

func (uc *MessagingUseCase) Conversations() []*entity.Conversation {
	return uc.convCache.Items()
}

// Messages returns the cached messages of a conversation, oldest first.
func (uc *MessagingUseCase) Messages(conversationID string) []*entity.Message {
	return uc.msgCache.Partition(conversationID)
}

// Loading reports whether a conversation fetch is in flight.
func (uc *MessagingUseCase) Loading() bool {
	return uc.loading.Load() > 0
}

func (uc *MessagingUseCase) OnChange(fn func(Change)) {
	uc.convCache.OnChange(fn)
	uc.msgCache.OnChange(fn)
}

func participantFilter(userID string) repository.Filter {
	return repository.Or(
		repository.Equal("participant1Id", userID),
		repository.Equal("participant2Id", userID),
	)
}

func (uc *MessagingUseCase) FetchConversations(ctx context.Context) ([]*entity.Conversation, error) {
	me := uc.auth.CurrentUser()
	if me == nil {
		return nil, errors.Unauthenticated("Sign in to see your conversations")
	}

	uc.loading.Add(1)
	defer uc.loading.Add(-1)

	ticket := uc.convCache.beginFetch()
	query := repository.NewQuery(participantFilter(me.ID)).OrderBy("lastMessageAt", repository.Desc)
	conversations, err := withAuthRecovery(ctx, uc.auth, "fetch conversations", func(ctx context.Context) ([]*entity.Conversation, error) {
		return uc.conversations.List(ctx, query)
	})
	uc.metrics.Fetch(uc.convCache.Name(), err)
	if err != nil {
		uc.convCache.abortFetch(ticket)
		logger.Error("Failed to fetch conversations for %s: %v", me.ID, err)
		return nil, err
	}

	uc.convCache.commitFetch(ticket, conversations)
	return uc.convCache.Items(), nil
}

func (uc *MessagingUseCase) FetchMessages(ctx context.Context, conversationID string) ([]*entity.Message, error) {
	me := uc.auth.CurrentUser()
	if me == nil {
		return nil, errors.Unauthenticated("Sign in to read messages")
	}

	ticket := uc.msgCache.beginFetch(conversationID)
	query := repository.NewQuery(repository.Equal("conversationId", conversationID)).
		OrderBy("sentAt", repository.Asc).
		WithLimit(messageFetchLimit)
	messages, err := withAuthRecovery(ctx, uc.auth, "fetch messages", func(ctx context.Context) ([]*entity.Message, error) {
		return uc.messages.List(ctx, query)
	})
	uc.metrics.Fetch(uc.msgCache.Name(), err)
	if err != nil {
		uc.msgCache.abortFetch(ticket)
		logger.Error("Failed to fetch messages of %s: %v", conversationID, err)
		return nil, err
	}

	uc.msgCache.commitFetch(ticket, messages)
	return uc.msgCache.Partition(conversationID), nil
}

func (uc *MessagingUseCase) RefreshConversations(ctx context.Context) error {
	return uc.refresh(ctx)
}

// FindOrCreateConversation returns the conversation between the signed-in user
// and otherUserID, creating it when neither ordering of the pair exists.
func (uc *MessagingUseCase) FindOrCreateConversation(ctx context.Context, otherUserID, listingID, listingTitle string) (*entity.Conversation, error) {
	me, epoch := uc.auth.IdentityAndEpoch()
	if me == nil {
		return nil, errors.Unauthenticated("Sign in to contact this provider")
	}
	otherUserID = strings.TrimSpace(otherUserID)
	if otherUserID == "" {
		return nil, errors.Validation("Other participant is required")
	}
	if otherUserID == me.ID {
		return nil, errors.Validation("Cannot start a conversation with yourself")
	}

	query := repository.NewQuery(repository.Or(
		repository.And(repository.Equal("participant1Id", me.ID), repository.Equal("participant2Id", otherUserID)),
		repository.And(repository.Equal("participant1Id", otherUserID), repository.Equal("participant2Id", me.ID)),
	))
	existing, err := withAuthRecovery(ctx, uc.auth, "find conversation", func(ctx context.Context) ([]*entity.Conversation, error) {
		return uc.conversations.List(ctx, query)
	})
	if err != nil {
		logger.Error("Failed to look up conversation %s/%s: %v", me.ID, otherUserID, err)
		return nil, err
	}
	if len(existing) > 0 {
		uc.convCache.Insert(existing[0], epoch)
		return existing[0], nil
	}

	if ok, wait := uc.limiter.Allow(me.ID, ratelimit.ActionCreateConversation); !ok {
		return nil, errors.TooManyRequests("Too many new conversations", wait.Round(time.Second))
	}

	conversation := &entity.Conversation{
		ParticipantAID:      me.ID,
		ParticipantBID:      otherUserID,
		ParticipantAEmail:   me.Email,
		ParticipantBEmail:   entity.UnknownParticipantEmail,
		LastMessageAt:       uc.now().UTC(),
		RelatedListingID:    listingID,
		RelatedListingTitle: listingTitle,
	}
	perms := []repository.Permission{
		repository.ReadUser(me.ID), repository.ReadUser(otherUserID),
		repository.UpdateUser(me.ID), repository.UpdateUser(otherUserID),
		repository.DeleteUser(me.ID), repository.DeleteUser(otherUserID),
	}
	created, err := withAuthRecovery(ctx, uc.auth, "create conversation", func(ctx context.Context) (*entity.Conversation, error) {
		return uc.conversations.Create(ctx, conversation, perms...)
	})
	if err != nil {
		logger.Error("Failed to create conversation %s/%s: %v", me.ID, otherUserID, err)
		return nil, err
	}

	uc.convCache.Insert(created, epoch)
	logger.Info("Conversation %s opened between %s and %s", created.ID, me.ID, otherUserID)
	return created, nil
}

func (uc *MessagingUseCase) conversation(ctx context.Context, id string) (*entity.Conversation, error) {
	if c, ok := uc.convCache.Find(id); ok {
		return c, nil
	}
	return withAuthRecovery(ctx, uc.auth, "get conversation", func(ctx context.Context) (*entity.Conversation, error) {
		return uc.conversations.Get(ctx, id)
	})
}

// SendMessage appends a message to a conversation. The conversation summary is
// updated afterwards; a failure there is logged and does not fail the send.
func (uc *MessagingUseCase) SendMessage(ctx context.Context, conversationID, text string) (*entity.Message, error) {
	me, epoch := uc.auth.IdentityAndEpoch()
	if me == nil {
		return nil, errors.Unauthenticated("Sign in to send messages")
	}
	content := strings.TrimSpace(text)
	if content == "" {
		return nil, errors.Validation("Message cannot be empty")
	}
	if ok, wait := uc.limiter.Allow(me.ID, ratelimit.ActionSendMessage); !ok {
		return nil, errors.TooManyRequests("Too many messages", wait.Round(time.Second))
	}

	conv, err := uc.conversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(me.ID) {
		return nil, errors.Forbidden("Not a participant of this conversation", nil)
	}

	message := &entity.Message{
		ConversationID: conversationID,
		SenderUserID:   me.ID,
		SenderEmail:    me.Email,
		Content:        content,
		Type:           entity.MessageTypeText,
		SentAt:         uc.now().UTC(),
	}
	// Both sides may flip isRead; only the sender may delete.
	perms := []repository.Permission{
		repository.ReadUser(conv.ParticipantAID), repository.ReadUser(conv.ParticipantBID),
		repository.UpdateUser(conv.ParticipantAID), repository.UpdateUser(conv.ParticipantBID),
		repository.DeleteUser(me.ID),
	}
	sent, err := withAuthRecovery(ctx, uc.auth, "send message", func(ctx context.Context) (*entity.Message, error) {
		return uc.messages.Create(ctx, message, perms...)
	})
	if err != nil {
		logger.Error("Failed to send message in %s: %v", conversationID, err)
		return nil, err
	}
	uc.msgCache.Insert(sent, epoch)

	patch := map[string]interface{}{
		"lastMessage":   truncateRunes(content, lastMessageMaxRune),
		"lastMessageAt": sent.SentAt,
	}
	updated, err := withAuthRecovery(ctx, uc.auth, "update conversation summary", func(ctx context.Context) (*entity.Conversation, error) {
		return uc.conversations.Update(ctx, conversationID, patch)
	})
	if err != nil {
		logger.LogSecondaryWriteError(uc.conversations.Name(), conversationID, "update summary", err)
		return sent, nil
	}
	uc.convCache.Replace(updated, epoch)
	return sent, nil
}

// MarkRead flags every unread message from the other participant as read.
// Messages already read are skipped, so repeated calls do nothing.
func (uc *MessagingUseCase) MarkRead(ctx context.Context, conversationID string) error {
	me, epoch := uc.auth.IdentityAndEpoch()
	if me == nil {
		return errors.Unauthenticated("Sign in to read messages")
	}

	for _, msg := range uc.msgCache.Partition(conversationID) {
		if msg.IsRead || msg.SenderUserID == me.ID {
			continue
		}
		id := msg.ID
		updated, err := withAuthRecovery(ctx, uc.auth, "mark message read", func(ctx context.Context) (*entity.Message, error) {
			return uc.messages.Update(ctx, id, map[string]interface{}{"isRead": true})
		})
		if err != nil {
			logger.Error("Failed to mark message %s read: %v", id, err)
			return err
		}
		uc.msgCache.Replace(updated, epoch)
	}
	return nil
}

// OtherParticipant returns the side of conv that is not the signed-in user.
func (uc *MessagingUseCase) OtherParticipant(conv *entity.Conversation) *entity.Participant {
	me := uc.auth.CurrentUser()
	if me == nil || conv == nil {
		return nil
	}
	if conv.ParticipantAID == me.ID {
		return &entity.Participant{ID: conv.ParticipantBID, Email: conv.ParticipantBEmail}
	}
	return &entity.Participant{ID: conv.ParticipantAID, Email: conv.ParticipantAEmail}
}

// UnreadCount counts cached messages of conv sent by the other side and not yet read.
func (uc *MessagingUseCase) UnreadCount(conv *entity.Conversation) int {
	me := uc.auth.CurrentUser()
	if me == nil || conv == nil {
		return 0
	}
	count := 0
	for _, msg := range uc.msgCache.Partition(conv.ID) {
		if !msg.IsRead && msg.SenderUserID != me.ID {
			count++
		}
	}
	return count
}

// TotalUnread sums UnreadCount over every cached conversation.
func (uc *MessagingUseCase) TotalUnread() int {
	total := 0
	for _, conv := range uc.convCache.Items() {
		total += uc.UnreadCount(conv)
	}
	return total
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

func (uc *MessagingUseCase) reset(epoch uint64, me *entity.Identity) {
	uc.convCache.Reset(epoch, me)
	uc.msgCache.Reset(epoch, me)
}

func (uc *MessagingUseCase) subscribe(ctx context.Context, t *tomb.Tomb, me entity.Identity, epoch uint64) error {
	err := openFeed(ctx, t, uc.conversations, repository.NewQuery(participantFilter(me.ID)), func(ev repository.ChangeEvent[*entity.Conversation]) {
		uc.convCache.Apply(ev, epoch)
	})
	if err != nil {
		return err
	}
	return openFeed(ctx, t, uc.messages, repository.NewQuery(), func(ev repository.ChangeEvent[*entity.Message]) {
		uc.msgCache.Apply(ev, epoch)
	})
}

func (uc *MessagingUseCase) probe(ctx context.Context) error {
	if err := probeCollection(ctx, uc.auth, uc.conversations); err != nil {
		return err
	}
	return probeCollection(ctx, uc.auth, uc.messages)
}

func (uc *MessagingUseCase) fetch(ctx context.Context) error {
	_, err := uc.FetchConversations(ctx)
	return err
}
