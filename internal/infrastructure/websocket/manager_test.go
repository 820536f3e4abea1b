package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, m *Manager, userID string) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(userID, conn)
		m.Register <- client
		go client.WritePump()
		go client.ReadPump(m)
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return m.ConnectedClients(userID) > 0 }, time.Second, 10*time.Millisecond)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg WSMessage
	require.NoError(t, json.Unmarshal(raw, &msg))
	return msg
}

func TestManagerNotifiesEveryConnectionOfUser(t *testing.T) {
	// Setup
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := NewManager(nil)
	m.Start(ctx)

	first := dial(t, m, "u1")
	second := dial(t, m, "u1")
	require.Equal(t, 2, m.ConnectedClients("u1"))

	// Execute
	m.NotifyChange("u1", ChangeData{Cache: "messages", Operation: "create", ID: "m1"})

	// Assertions
	for _, conn := range []*websocket.Conn{first, second} {
		msg := readMessage(t, conn)
		assert.Equal(t, MessageTypeChange, msg.Type)

		var change ChangeData
		require.NoError(t, DecodeData(msg, &change))
		assert.Equal(t, "m1", change.ID)
	}
}

func TestManagerAnswersPingAndRoutesCommands(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := NewManager(nil)
	m.Start(ctx)

	commands := make(chan string, 1)
	m.SetCommandHandler(func(ctx context.Context, userID string, msg WSMessage) error {
		var data MarkReadData
		if err := DecodeData(msg, &data); err != nil {
			return err
		}
		commands <- userID + ":" + data.ConversationID
		return nil
	})

	conn := dial(t, m, "u1")

	require.NoError(t, conn.WriteJSON(WSMessage{Type: MessageTypePing}))
	assert.Equal(t, MessageTypePong, readMessage(t, conn).Type)

	require.NoError(t, conn.WriteJSON(WSMessage{Type: MessageTypeMarkRead, Data: MarkReadData{ConversationID: "c1"}}))
	select {
	case got := <-commands:
		assert.Equal(t, "u1:c1", got)
	case <-time.After(2 * time.Second):
		t.Fatal("command not routed")
	}

	require.NoError(t, conn.WriteJSON(WSMessage{Type: "bogus"}))
	assert.Equal(t, MessageTypeError, readMessage(t, conn).Type)
}

func TestManagerUnregistersClosedConnections(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := NewManager(nil)
	m.Start(ctx)

	conn := dial(t, m, "u1")
	conn.Close()

	require.Eventually(t, func() bool { return m.ConnectedClients("u1") == 0 }, 2*time.Second, 10*time.Millisecond)
}
