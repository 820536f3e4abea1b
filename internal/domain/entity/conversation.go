package entity

import "time"

// UnknownParticipantEmail is stored for the invited side of a new conversation.
const UnknownParticipantEmail = "Unknown User"

// Conversation is a two-party thread. At most one exists per unordered participant pair.
type Conversation struct {
	ID                  string    `json:"id" firestore:"id"`
	ParticipantAID      string    `json:"participant_a_id" firestore:"participant1Id"`
	ParticipantBID      string    `json:"participant_b_id" firestore:"participant2Id"`
	ParticipantAEmail   string    `json:"participant_a_email" firestore:"participant1Email"`
	ParticipantBEmail   string    `json:"participant_b_email" firestore:"participant2Email"`
	LastMessageText     string    `json:"last_message" firestore:"lastMessage"`
	LastMessageAt       time.Time `json:"last_message_at" firestore:"lastMessageAt"`
	RelatedListingID    string    `json:"related_listing_id,omitempty" firestore:"serviceId,omitempty"`
	RelatedListingTitle string    `json:"related_listing_title,omitempty" firestore:"serviceTitle,omitempty"`
	UnreadCountForA     int       `json:"unread_count_a" firestore:"unreadCount1"`
	UnreadCountForB     int       `json:"unread_count_b" firestore:"unreadCount2"`
}

func (c *Conversation) GetID() string   { return c.ID }
func (c *Conversation) SetID(id string) { c.ID = id }

// HasParticipant reports whether userID is one of the two sides.
func (c *Conversation) HasParticipant(userID string) bool {
	return userID != "" && (c.ParticipantAID == userID || c.ParticipantBID == userID)
}

// Participant is the other side of a conversation relative to a viewer.
type Participant struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}
