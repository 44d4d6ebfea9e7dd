package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cavitas/internal/interfaces"
)

const writeTimeout = 5 * time.Second

// WebSocketOption configures a WebSocketHandler.
type WebSocketOption func(*WebSocketHandler)

// WithAllowedOrigins lets browser pages on the listed origins connect.
// "*" allows any origin. Same-origin and non-browser clients are always accepted.
func WithAllowedOrigins(origins []string) WebSocketOption {
	return func(h *WebSocketHandler) {
		h.allowedOrigins = append([]string(nil), origins...)
	}
}

// StatusProvider supplies the snapshot sent to newly connected clients.
type StatusProvider interface {
	GetStatus() interface{}
}

// StatusProviderFunc adapts a function to StatusProvider.
type StatusProviderFunc func() interface{}

func (f StatusProviderFunc) GetStatus() interface{} { return f() }

// WSMessage is the envelope of every message sent to clients
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// EventMessage is the payload of a relayed event
type EventMessage struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// HelloMessage is sent once per connection. Clients compare the server
// instance id to detect a restart and reload history from /api/events.
type HelloMessage struct {
	ServerInstanceID string      `json:"server_instance_id"`
	Status           interface{} `json:"status,omitempty"`
}

type WebSocketHandler struct {
	logger           arbor.ILogger
	clients          map[*websocket.Conn]*sync.Mutex
	mu               sync.RWMutex
	status           StatusProvider
	serverInstanceID string // Unique ID generated on startup
	allowedOrigins   []string
	upgrader         websocket.Upgrader
}

// NewWebSocketHandler creates the handler and relays every event published
// on eventService to connected clients. eventService and status may be nil.
func NewWebSocketHandler(eventService interfaces.EventService, status StatusProvider, logger arbor.ILogger, opts ...WebSocketOption) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		clients:          make(map[*websocket.Conn]*sync.Mutex),
		status:           status,
		serverInstanceID: uuid.New().String(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}

	logger.Debug().Str("server_instance_id", h.serverInstanceID).Msg("WebSocket handler initialized")

	if eventService != nil {
		if err := eventService.SubscribeAll(h.relayEvent); err != nil {
			logger.Warn().Err(err).Msg("WebSocket handler could not subscribe to events")
		}
	}

	return h
}

// ServerInstanceID returns the id sent in the hello message.
func (h *WebSocketHandler) ServerInstanceID() string {
	return h.serverInstanceID
}

// checkOrigin accepts requests without an Origin header, same-origin pages
// and the configured origins.
func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range h.allowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	mutex := &sync.Mutex{}
	h.mu.Lock()
	h.clients[conn] = mutex
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Int("clients", clientCount).Msg("WebSocket client connected")

	hello := HelloMessage{ServerInstanceID: h.serverInstanceID}
	if h.status != nil {
		hello.Status = h.status.GetStatus()
	}
	if data, err := json.Marshal(WSMessage{Type: "hello", Payload: hello}); err == nil {
		h.write(conn, mutex, data)
	}

	// Handle client disconnection
	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		clientCount := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Int("clients", clientCount).Msg("WebSocket client disconnected")
	}()

	// Read messages from client (keep connection alive)
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}
	}
}

func (h *WebSocketHandler) relayEvent(ctx context.Context, event interfaces.Event) error {
	h.Broadcast(WSMessage{
		Type: string(event.Type),
		Payload: EventMessage{
			ID:        event.ID,
			Timestamp: event.Timestamp,
			Data:      event.Payload,
		},
	})
	return nil
}

// Broadcast sends msg to all connected clients
func (h *WebSocketHandler) Broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal WebSocket message")
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn, mutex := range h.clients {
		clients = append(clients, conn)
		mutexes = append(mutexes, mutex)
	}
	h.mu.RUnlock()

	for i, conn := range clients {
		h.write(conn, mutexes[i], data)
	}
}

func (h *WebSocketHandler) write(conn *websocket.Conn, mutex *sync.Mutex, data []byte) {
	mutex.Lock()
	defer mutex.Unlock()

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to send message to client")
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client
func (h *WebSocketHandler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn, mutex := range h.clients {
		mutex.Lock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		conn.Close()
		mutex.Unlock()
	}
}
