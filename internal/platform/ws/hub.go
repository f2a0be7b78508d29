// Package ws pushes review-session events to connected clients over
// WebSockets. It implements a hub-and-spoke pattern where each client
// subscribes to the sessions it is watching and receives every event
// broadcast for those sessions.
package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// EventType identifies what happened in a review session.
type EventType string

const (
	EventDocumentSwitched  EventType = "document_switched"
	EventPageChanged       EventType = "page_changed"
	EventHighlightShown    EventType = "highlight_shown"
	EventHighlightsCleared EventType = "highlights_cleared"
	EventConflictOpened    EventType = "conflict_opened"
	EventConflictResolved  EventType = "conflict_resolved"
	EventDecisionUpdated   EventType = "decision_updated"
	EventSaveCompleted     EventType = "save_completed"
)

// Event is a real-time notification about a review session.
type Event struct {
	Type      EventType       `json:"type"`
	SessionID string          `json:"session_id"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewEvent builds an Event, marshalling data as the payload. A nil data
// produces an event with no payload.
func NewEvent(typ EventType, sessionID string, data interface{}) Event {
	evt := Event{
		Type:      typ,
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			log.Printf("ws: failed to marshal event payload: %v", err)
			return evt
		}
		evt.Data = raw
	}
	return evt
}

// ClientMessage is an inbound message from a WebSocket client.
type ClientMessage struct {
	Action   string   `json:"action"`
	Sessions []string `json:"sessions"`
}

// EventPublisher is implemented by the Hub and consumed by the session
// service so tests can substitute a recorder.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client represents a single WebSocket connection.
type Client struct {
	ID       string
	Sessions []string
	Send     chan []byte
	hub      *Hub
	conn     Conn
}

// Hub is the central connection manager that tracks clients and their
// session subscriptions. All operations are thread-safe via sync.RWMutex.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{} // session ID -> set of clients
	all     map[*Client]struct{}            // all connected clients
}

// NewHub creates a new Hub ready to manage WebSocket clients.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
	}
}

// Register adds a client to the hub and subscribes it to its initial sessions.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}

	for _, sessionID := range client.Sessions {
		if h.clients[sessionID] == nil {
			h.clients[sessionID] = make(map[*Client]struct{})
		}
		h.clients[sessionID][client] = struct{}{}
	}
}

// Unregister removes a client from the hub, all session subscriptions, and
// closes the client's Send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}

	for _, sessionID := range client.Sessions {
		if subscribers, ok := h.clients[sessionID]; ok {
			delete(subscribers, client)
			if len(subscribers) == 0 {
				delete(h.clients, sessionID)
			}
		}
	}

	delete(h.all, client)
	close(client.Send)
}

// Subscribe dynamically adds sessions to an already-registered client.
func (h *Hub) Subscribe(client *Client, sessions []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sessionID := range sessions {
		if h.clients[sessionID] == nil {
			h.clients[sessionID] = make(map[*Client]struct{})
		}
		h.clients[sessionID][client] = struct{}{}
	}
	client.Sessions = append(client.Sessions, sessions...)
}

// Unsubscribe dynamically removes sessions from an already-registered client.
func (h *Hub) Unsubscribe(client *Client, sessions []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	removeSet := make(map[string]struct{}, len(sessions))
	for _, s := range sessions {
		removeSet[s] = struct{}{}
	}

	for _, sessionID := range sessions {
		if subscribers, ok := h.clients[sessionID]; ok {
			delete(subscribers, client)
			if len(subscribers) == 0 {
				delete(h.clients, sessionID)
			}
		}
	}

	remaining := make([]string, 0, len(client.Sessions))
	for _, s := range client.Sessions {
		if _, rm := removeSet[s]; !rm {
			remaining = append(remaining, s)
		}
	}
	client.Sessions = remaining
}

// ProcessMessage handles an inbound ClientMessage, dispatching to Subscribe
// or Unsubscribe as appropriate.
func (h *Hub) ProcessMessage(client *Client, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		h.Subscribe(client, msg.Sessions)
	case "unsubscribe":
		h.Unsubscribe(client, msg.Sessions)
	}
}

// Broadcast sends an event to all clients watching the event's session.
func (h *Hub) Broadcast(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("ws: failed to marshal event: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	subscribers, ok := h.clients[event.SessionID]
	if !ok {
		return
	}

	for client := range subscribers {
		select {
		case client.Send <- data:
		default:
			// Client buffer full; skip to avoid blocking.
		}
	}
}

// Publish implements EventPublisher by broadcasting to the event's session.
func (h *Hub) Publish(_ context.Context, event Event) error {
	h.Broadcast(event)
	return nil
}

// ClientCount returns the total number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// SessionWatcherCount returns the number of clients watching a session.
func (h *Hub) SessionWatcherCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionID])
}

// ---------------------------------------------------------------------------
// Handler — Echo HTTP handler for WebSocket connections
// ---------------------------------------------------------------------------

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins; tighten in production.
	},
}

// Handler handles HTTP-to-WebSocket upgrades and message routing.
type Handler struct {
	hub *Hub
}

// NewHandler creates a new handler bound to the given Hub.
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// RegisterRoutes registers the WebSocket endpoint on the provided Echo group.
func (wsh *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("", wsh.HandleConnect)
}

// HandleConnect upgrades an HTTP connection to WebSocket, registers the
// client with the hub, and starts read/write pumps. A session query
// parameter subscribes the client immediately.
func (wsh *Handler) HandleConnect(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	var sessions []string
	if sid := c.QueryParam("session"); sid != "" {
		sessions = append(sessions, sid)
	}

	client := &Client{
		ID:       uuid.New().String(),
		Sessions: sessions,
		Send:     make(chan []byte, 256),
		hub:      wsh.hub,
		conn:     &gorillaConnAdapter{ws},
	}

	wsh.hub.Register(client)

	go wsh.writePump(client, ws)
	go wsh.readPump(client, ws)

	return nil
}

// readPump reads messages from the WebSocket connection and processes them.
func (wsh *Handler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		wsh.hub.Unregister(client)
		ws.Close()
	}()

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue // Ignore malformed messages.
		}

		wsh.hub.ProcessMessage(client, msg)
	}
}

// writePump writes messages from the Send channel to the WebSocket connection.
func (wsh *Handler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	defer ws.Close()

	for message := range client.Send {
		if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
			break
		}
	}
}

// gorillaConnAdapter wraps a gorilla/websocket.Conn to satisfy the Conn interface.
type gorillaConnAdapter struct {
	conn *gorillawebsocket.Conn
}

func (a *gorillaConnAdapter) ReadMessage() (int, []byte, error) {
	return a.conn.ReadMessage()
}

func (a *gorillaConnAdapter) WriteMessage(messageType int, data []byte) error {
	return a.conn.WriteMessage(messageType, data)
}

func (a *gorillaConnAdapter) Close() error {
	return a.conn.Close()
}
