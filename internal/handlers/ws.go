package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/chepyr/charity-tasks/internal/events"
	"github.com/chepyr/charity-tasks/internal/logger"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsSendBuffer   = 16
)

// WSClient is one live connection with its outgoing queue.
type WSClient struct {
	conn   *websocket.Conn
	send   chan []byte
	topics []uuid.UUID
	closed bool
}

// WSHub keeps live connections grouped by topic. A topic is the id of a
// charity or benefactor profile.
type WSHub struct {
	connections map[uuid.UUID]map[*WSClient]bool
	mutex       sync.Mutex
	logger      *logger.Logger
}

var _ events.Publisher = (*WSHub)(nil)

func NewWSHub(lg *logger.Logger) *WSHub {
	if lg == nil {
		lg = logger.Discard()
	}
	return &WSHub{
		connections: make(map[uuid.UUID]map[*WSClient]bool),
		logger:      lg,
	}
}

// Register subscribes conn to topics and starts its writer.
func (h *WSHub) Register(conn *websocket.Conn, topics ...uuid.UUID) *WSClient {
	client := h.attach(conn, topics)
	go client.writePump(h.logger)
	return client
}

func (h *WSHub) attach(conn *websocket.Conn, topics []uuid.UUID) *WSClient {
	client := &WSClient{conn: conn, send: make(chan []byte, wsSendBuffer), topics: topics}
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for _, topic := range topics {
		if h.connections[topic] == nil {
			h.connections[topic] = make(map[*WSClient]bool)
		}
		h.connections[topic][client] = true
	}
	return client
}

// Unregister removes the client from every topic and stops its writer.
// Calling it again is a no-op.
func (h *WSHub) Unregister(client *WSClient) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.drop(client)
}

// drop requires h.mutex.
func (h *WSHub) drop(client *WSClient) {
	if client.closed {
		return
	}
	client.closed = true
	for _, topic := range client.topics {
		clients, exists := h.connections[topic]
		if !exists {
			continue
		}
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.connections, topic)
		}
	}
	close(client.send)
}

// Publish queues the event for the owning charity and, when set, for the
// benefactor it concerns. A connection subscribed to both receives it once.
// Publish never writes to a socket; a client whose queue is full is dropped.
func (h *WSHub) Publish(_ context.Context, event events.Event) error {
	message, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal task event: %w", err)
	}

	topics := []uuid.UUID{event.CharityID}
	if event.BenefactorID.Valid {
		topics = append(topics, event.BenefactorID.UUID)
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	queued := make(map[*WSClient]bool)
	for _, topic := range topics {
		for client := range h.connections[topic] {
			if queued[client] {
				continue
			}
			queued[client] = true
			select {
			case client.send <- message:
			default:
				h.logger.Warn("WebSocket client too slow, dropping", map[string]any{"topic": topic.String()})
				h.drop(client)
			}
		}
	}
	return nil
}

func (h *WSHub) count(topic uuid.UUID) int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.connections[topic])
}

// writePump drains the queue onto the socket until the hub closes it or a
// write fails.
func (c *WSClient) writePump(lg *logger.Logger) {
	defer c.conn.Close()
	for message := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			lg.Warn("Failed to send WebSocket message", map[string]any{"error": err.Error()})
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// HandleWebSocket streams the lifecycle events of the caller's charity and
// benefactor profiles.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ip := h.clientIP(r)
	if h.WSRateLimiter != nil && !h.WSRateLimiter.Allow(ip) {
		h.log().Warn("Rate limit exceeded", map[string]any{"ip": ip, "route": "ws"})
		sendError(w, "Too many WebSocket connection attempts", http.StatusTooManyRequests)
		return
	}

	actor, err := h.actor(r)
	if err != nil {
		h.sendAppError(w, err)
		return
	}
	var topics []uuid.UUID
	if actor.CharityID.Valid {
		topics = append(topics, actor.CharityID.UUID)
	}
	if actor.BenefactorID.Valid {
		topics = append(topics, actor.BenefactorID.UUID)
	}
	if len(topics) == 0 {
		sendError(w, "Register a charity or benefactor profile first", http.StatusForbidden)
		return
	}

	upgrader := websocket.Upgrader{CheckOrigin: h.checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.log().Warn("WebSocket upgrade failed", map[string]any{"error": err.Error()})
		return
	}

	client := h.WSHub.Register(conn, topics...)
	h.log().Info("WebSocket connected", map[string]any{"user_id": actor.UserID.String()})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.WSHub.Unregister(client)
			conn.Close()
			h.log().Debug("WebSocket closed", map[string]any{"user_id": actor.UserID.String(), "error": err.Error()})
			return
		}
	}
}

// checkOrigin allows every origin when AllowedOrigins is empty.
func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.AllowedOrigins) == 0 {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	return slices.Contains(h.AllowedOrigins, origin)
}
