package handlers

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
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cavitas/internal/interfaces"
	"github.com/ternarybob/cavitas/internal/models"
	"github.com/ternarybob/cavitas/internal/services/events"
)

type rawMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestWebSocket_HelloThenEvents(t *testing.T) {
	logger := arbor.NewLogger()
	eventService := events.NewService(logger, 0)
	defer eventService.Close()

	handler := NewWebSocketHandler(eventService, StatusProviderFunc(func() interface{} {
		return map[string]bool{"service_up": true}
	}), logger)

	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	defer server.Close()

	conn := dial(t, server)

	var hello rawMessage
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "hello", hello.Type)

	var helloPayload HelloMessage
	require.NoError(t, json.Unmarshal(hello.Payload, &helloPayload))
	assert.Equal(t, handler.ServerInstanceID(), helloPayload.ServerInstanceID)

	require.Eventually(t, func() bool { return handler.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, eventService.Publish(context.Background(), interfaces.Event{
		Type:    interfaces.EventJobExpired,
		Payload: models.JobEventPayload{JobID: "abc"},
	}))

	var msg rawMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, string(interfaces.EventJobExpired), msg.Type)

	var relayed struct {
		ID   string                 `json:"id"`
		Data models.JobEventPayload `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msg.Payload, &relayed))
	assert.NotEmpty(t, relayed.ID)
	assert.Equal(t, "abc", relayed.Data.JobID)
}

func TestWebSocket_BroadcastReachesAllClients(t *testing.T) {
	handler := NewWebSocketHandler(nil, nil, arbor.NewLogger())
	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	defer server.Close()

	conns := []*websocket.Conn{dial(t, server), dial(t, server), dial(t, server)}
	for _, conn := range conns {
		var hello rawMessage
		require.NoError(t, conn.ReadJSON(&hello))
	}
	require.Eventually(t, func() bool { return handler.ClientCount() == 3 }, time.Second, 5*time.Millisecond)

	handler.Broadcast(WSMessage{Type: "server_status", Payload: models.ServerStatusPayload{Up: false}})

	for _, conn := range conns {
		var msg rawMessage
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, "server_status", msg.Type)
	}

	conns[0].Close()
	assert.Eventually(t, func() bool { return handler.ClientCount() == 2 }, time.Second, 5*time.Millisecond)
}

func TestWebSocket_OriginCheck(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  func(serverURL string) string
		wantOK  bool
	}{
		{"no origin header", nil, func(string) string { return "" }, true},
		{"same origin", nil, func(u string) string { return u }, true},
		{"foreign origin rejected by default", nil, func(string) string { return "http://evil.example" }, false},
		{"listed origin", []string{"http://viewer.local"}, func(string) string { return "http://viewer.local" }, true},
		{"unlisted origin", []string{"http://viewer.local"}, func(string) string { return "http://evil.example" }, false},
		{"wildcard", []string{"*"}, func(string) string { return "http://evil.example" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewWebSocketHandler(nil, nil, arbor.NewLogger(), WithAllowedOrigins(tt.allowed))
			server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
			defer server.Close()

			header := http.Header{}
			if origin := tt.origin(server.URL); origin != "" {
				header.Set("Origin", origin)
			}
			wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
			conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
			if tt.wantOK {
				require.NoError(t, err)
				conn.Close()
				return
			}
			require.ErrorIs(t, err, websocket.ErrBadHandshake)
			require.NotNil(t, resp)
			assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		})
	}
}
