package entity

import "time"

const MessageTypeText = "text"

// Message is immutable once sent apart from IsRead, which only moves false to true.
type Message struct {
	ID             string    `json:"id" firestore:"id"`
	ConversationID string    `json:"conversation_id" firestore:"conversationId"`
	SenderUserID   string    `json:"sender_id" firestore:"senderId"`
	SenderEmail    string    `json:"sender_email" firestore:"senderEmail"`
	Content        string    `json:"content" firestore:"content"`
	Type           string    `json:"type" firestore:"messageType"`
	SentAt         time.Time `json:"sent_at" firestore:"sentAt"`
	IsRead         bool      `json:"is_read" firestore:"isRead"`
}

func (m *Message) GetID() string   { return m.ID }
func (m *Message) SetID(id string) { m.ID = id }
