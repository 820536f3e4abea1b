package websocket

import (
	"context"
	"encoding/json"
	"time"

	"servicehub/pkg/errors"
	"servicehub/pkg/logger"
)

const (
	MessageTypePing           = "ping"
	MessageTypePong           = "pong"
	MessageTypeChange         = "change"
	MessageTypeMarkRead       = "mark_read"
	MessageTypeSessionExpired = "session_expired"
	MessageTypeError          = "error"
)

const commandTimeout = 15 * time.Second

type WSMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// ChangeData describes one merged cache change.
type ChangeData struct {
	Cache     string      `json:"cache"`
	Operation string      `json:"operation"`
	ID        string      `json:"id"`
	Payload   interface{} `json:"payload,omitempty"`
}

type MarkReadData struct {
	ConversationID string `json:"conversation_id"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewMessage(msgType string, data interface{}) WSMessage {
	return WSMessage{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

// NotifyChange pushes a cache change to every connection of userID.
func (m *Manager) NotifyChange(userID string, change ChangeData) {
	m.SendToUser(userID, NewMessage(MessageTypeChange, change))
}

// HandleClientMessage processes one inbound frame.
func (m *Manager) HandleClientMessage(client *Client, raw []byte) {
	var msg WSMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		logger.Debug("Invalid websocket frame from %s: %v", client.UserID, err)
		m.sendError(client, errors.CodeValidation, "Invalid message format")
		return
	}

	switch msg.Type {
	case MessageTypePing:
		m.sendToClient(client, NewMessage(MessageTypePong, map[string]string{"status": "alive"}))

	case MessageTypeMarkRead:
		m.mutex.RLock()
		handler := m.commands
		m.mutex.RUnlock()
		if handler == nil {
			m.sendError(client, errors.CodeInternal, "Commands are not available")
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		if err := handler(ctx, client.UserID, msg); err != nil {
			m.sendError(client, errors.CodeOf(err), err.Error())
		}

	default:
		m.sendError(client, errors.CodeValidation, "Unknown message type")
	}
}

// DecodeData re-decodes the loosely typed Data of msg into out.
func DecodeData(msg WSMessage, out interface{}) error {
	raw, err := json.Marshal(msg.Data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (m *Manager) sendError(client *Client, code, message string) {
	m.sendToClient(client, NewMessage(MessageTypeError, ErrorData{Code: code, Message: message}))
}

func (m *Manager) sendToClient(client *Client, msg WSMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		logger.Error("Failed to encode websocket message %s: %v", msg.Type, err)
		return
	}

	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if m.clients[client.UserID][client.ID] != client {
		return
	}

	select {
	case client.Send <- payload:
	default:
		logger.Warn("Send buffer full for websocket client %s", client.ID)
	}
}

// NotifySessionExpired tells every connection of userID to log in again.
func (m *Manager) NotifySessionExpired(userID string) {
	m.SendToUser(userID, NewMessage(MessageTypeSessionExpired, ErrorData{
		Code:    errors.CodeSessionExpired,
		Message: "Session expired, please log in again",
	}))
}
