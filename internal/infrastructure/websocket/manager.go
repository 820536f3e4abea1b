package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"servicehub/internal/infrastructure/metrics"
	"servicehub/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Client is one websocket connection of a user. A user may hold several.
type Client struct {
	ID     string
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte
}

func NewClient(userID string, conn *websocket.Conn) *Client {
	return &Client{
		ID:     uuid.New().String(),
		UserID: userID,
		Conn:   conn,
		Send:   make(chan []byte, sendBuffer),
	}
}

// CommandHandler executes a client command on behalf of userID.
type CommandHandler func(ctx context.Context, userID string, msg WSMessage) error

// Manager fans cache change notifications out to every connection of a user.
type Manager struct {
	clients    map[string]map[string]*Client
	Register   chan *Client
	Unregister chan *Client
	commands   CommandHandler
	metrics    *metrics.Metrics
	mutex      sync.RWMutex
}

func NewManager(m *metrics.Metrics) *Manager {
	return &Manager{
		clients:    make(map[string]map[string]*Client),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		metrics:    m,
	}
}

// SetCommandHandler routes client commands such as mark_read.
func (m *Manager) SetCommandHandler(h CommandHandler) {
	m.mutex.Lock()
	m.commands = h
	m.mutex.Unlock()
}

// Start runs the registration loop until ctx is done, then closes every client.
func (m *Manager) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case client := <-m.Register:
				m.mutex.Lock()
				if m.clients[client.UserID] == nil {
					m.clients[client.UserID] = make(map[string]*Client)
				}
				m.clients[client.UserID][client.ID] = client
				m.mutex.Unlock()
				m.metrics.ClientConnected()
				logger.Debug("Websocket client %s registered for %s", client.ID, client.UserID)

			case client := <-m.Unregister:
				m.remove(client)

			case <-ctx.Done():
				m.mutex.Lock()
				for userID, conns := range m.clients {
					for _, client := range conns {
						close(client.Send)
						m.metrics.ClientDisconnected()
					}
					delete(m.clients, userID)
				}
				m.mutex.Unlock()
				return
			}
		}
	}()
}

func (m *Manager) remove(client *Client) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	conns, ok := m.clients[client.UserID]
	if !ok {
		return
	}
	if _, ok := conns[client.ID]; !ok {
		return
	}
	delete(conns, client.ID)
	if len(conns) == 0 {
		delete(m.clients, client.UserID)
	}
	close(client.Send)
	m.metrics.ClientDisconnected()
	logger.Debug("Websocket client %s unregistered for %s", client.ID, client.UserID)
}

// SendToUser queues msg on every connection of userID. Slow connections are dropped.
func (m *Manager) SendToUser(userID string, msg WSMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		logger.Error("Failed to encode websocket message %s: %v", msg.Type, err)
		return
	}

	m.mutex.RLock()
	var slow []*Client
	for _, client := range m.clients[userID] {
		select {
		case client.Send <- payload:
		default:
			slow = append(slow, client)
		}
	}
	m.mutex.RUnlock()

	for _, client := range slow {
		logger.Warn("Dropping slow websocket client %s for %s", client.ID, userID)
		m.remove(client)
	}
}

// ConnectedClients reports the connection count of userID.
func (m *Manager) ConnectedClients(userID string) int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.clients[userID])
}

// ReadPump reads client commands until the connection fails.
func (c *Client) ReadPump(m *Manager) {
	defer func() {
		m.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("Websocket read error for %s: %v", c.UserID, err)
			}
			return
		}

		m.HandleClientMessage(c, message)
	}
}

// WritePump writes queued messages and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Warn("Websocket write error for %s: %v", c.UserID, err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
