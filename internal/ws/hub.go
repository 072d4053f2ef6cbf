// Package ws fans real-time events out to operator clients over websockets,
// scoped to per-instance rooms.
package ws

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Event families emitted to rooms.
const (
	EventNewMessage          = "new:message"
	EventConversationUpdated = "conversation:updated"
	EventConversationStatus  = "conversation:status-changed"
	EventConversationTaken   = "conversation:taken"
	EventChatTyping          = "chat:typing"
	EventPresenceUpdate      = "presence:update"
)

// Frame is the wire envelope for server-to-client events.
type Frame struct {
	Event    string `json:"event"`
	Instance string `json:"instance"`
	Data     any    `json:"data"`
}

// Hub tracks connected clients and the instance room each has joined.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Client]struct{}
	logger *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[*Client]struct{}),
		logger: logger,
	}
}

// Publish broadcasts an event to every client joined to the instance room.
// It never blocks: slow clients are disconnected instead of stalling the
// ingestion path, and an empty room is a no-op.
func (h *Hub) Publish(instance, event string, data any) {
	frame, err := json.Marshal(Frame{Event: event, Instance: instance, Data: data})
	if err != nil {
		h.logger.Error("failed to encode frame", zap.Error(err), zap.String("event", event))
		return
	}

	h.mu.RLock()
	room := h.rooms[instance]
	clients := make([]*Client, 0, len(room))
	for c := range room {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- frame:
		default:
			h.logger.Warn("dropping slow websocket client", zap.String("client", c.id), zap.String("instance", instance))
			c.close()
		}
	}
}

// RoomSize reports how many clients are joined to an instance room.
func (h *Hub) RoomSize(instance string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[instance])
}

// roomOf returns the room a client is currently joined to. Membership is
// only ever read or written under h.mu: Publish-triggered disconnects leave
// rooms from the publisher's goroutine while the read loop handles frames.
func (h *Hub) roomOf(c *Client) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return c.instance
}

func (h *Hub) join(c *Client, instance string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.instance == instance {
		return
	}
	h.leaveLocked(c)
	if h.rooms[instance] == nil {
		h.rooms[instance] = make(map[*Client]struct{})
	}
	h.rooms[instance][c] = struct{}{}
	c.instance = instance
}

func (h *Hub) leave(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c)
}

func (h *Hub) leaveLocked(c *Client) {
	if c.instance == "" {
		return
	}
	if room := h.rooms[c.instance]; room != nil {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, c.instance)
		}
	}
	c.instance = ""
}
