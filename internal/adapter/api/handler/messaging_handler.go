package handler

import (
	"github.com/labstack/echo/v4"

	"servicehub/internal/domain/entity"
	"servicehub/internal/usecase"
	"servicehub/pkg/response"
)

type MessagingHandler struct{}

func NewMessagingHandler() *MessagingHandler {
	return &MessagingHandler{}
}

type startConversationRequest struct {
	ParticipantID string `json:"participant_id" validate:"required"`
	ListingID     string `json:"listing_id"`
	ListingTitle  string `json:"listing_title"`
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

type conversationView struct {
	*entity.Conversation
	OtherParticipant *entity.Participant `json:"other_participant,omitempty"`
	Unread           int                 `json:"unread"`
}

func viewConversation(uc *usecase.MessagingUseCase, conv *entity.Conversation) conversationView {
	return conversationView{
		Conversation:     conv,
		OtherParticipant: uc.OtherParticipant(conv),
		Unread:           uc.UnreadCount(conv),
	}
}

func (h *MessagingHandler) ListConversations(c echo.Context) error {
	s, err := currentSession(c)
	if err != nil {
		return response.Error(c, err)
	}

	convs := s.Messaging.Conversations()
	views := make([]conversationView, 0, len(convs))
	for _, conv := range convs {
		views = append(views, viewConversation(s.Messaging, conv))
	}
	return response.Success(c, map[string]interface{}{
		"conversations": views,
		"total_unread":  s.Messaging.TotalUnread(),
		"loading":       s.Messaging.Loading(),
	})
}

func (h *MessagingHandler) RefreshConversations(c echo.Context) error {
	s, err := currentSession(c)
	if err != nil {
		return response.Error(c, err)
	}
	if err := s.Messaging.RefreshConversations(c.Request().Context()); err != nil {
		return response.Error(c, err)
	}
	return h.ListConversations(c)
}

// StartConversation returns the conversation with the participant,
// creating it on first contact.
func (h *MessagingHandler) StartConversation(c echo.Context) error {
	s, err := currentSession(c)
	if err != nil {
		return response.Error(c, err)
	}

	var req startConversationRequest
	if err := bindAndValidate(c, &req); err != nil {
		return response.Error(c, err)
	}

	conv, err := s.Messaging.FindOrCreateConversation(c.Request().Context(), req.ParticipantID, req.ListingID, req.ListingTitle)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, viewConversation(s.Messaging, conv))
}

func (h *MessagingHandler) ListMessages(c echo.Context) error {
	s, err := currentSession(c)
	if err != nil {
		return response.Error(c, err)
	}

	messages, err := s.Messaging.FetchMessages(c.Request().Context(), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, messages)
}

func (h *MessagingHandler) SendMessage(c echo.Context) error {
	s, err := currentSession(c)
	if err != nil {
		return response.Error(c, err)
	}

	var req sendMessageRequest
	if err := bindAndValidate(c, &req); err != nil {
		return response.Error(c, err)
	}

	msg, err := s.Messaging.SendMessage(c.Request().Context(), c.Param("id"), req.Content)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Created(c, msg)
}

func (h *MessagingHandler) MarkRead(c echo.Context) error {
	s, err := currentSession(c)
	if err != nil {
		return response.Error(c, err)
	}
	if err := s.Messaging.MarkRead(c.Request().Context(), c.Param("id")); err != nil {
		return response.Error(c, err)
	}
	return response.NoContent(c)
}
