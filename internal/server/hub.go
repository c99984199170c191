package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

var errUnknownConnection = errors.New("unknown connection")

// Hub tracks live websocket clients and the session room each one is
// attached to. It implements broadcast.Rooms and broadcast.Sender.
type Hub struct {
	logger *zap.Logger

	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[string]*Client

	onRoomEmpty func(sessionID string)
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger:  logger,
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]*Client),
	}
}

// OnRoomEmpty registers fn to run when the last client leaves a room.
func (h *Hub) OnRoomEmpty(fn func(sessionID string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onRoomEmpty = fn
}

// Run blocks until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[string]*Client)
	h.rooms = make(map[string]map[string]*Client)
	h.mu.Unlock()

	for _, c := range clients {
		c.shutdown()
	}
	h.logger.Info("hub stopped", zap.Int("clients", len(clients)))
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug("client registered",
		zap.String("conn_id", c.id),
		zap.Int("clients", count),
	)
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	delete(h.clients, c.id)
	emptied := h.leaveLocked(c)
	h.mu.Unlock()

	c.shutdown()
	if ok {
		h.logger.Debug("client unregistered", zap.String("conn_id", c.id))
	}
	h.roomEmptied(emptied)
}

// Attach moves c into the room of sessionID, leaving any previous room.
func (h *Hub) Attach(c *Client, sessionID string) {
	h.mu.Lock()
	emptied := ""
	if prev := c.sessionID(); prev != sessionID {
		emptied = h.leaveLocked(c)
	}
	room, ok := h.rooms[sessionID]
	if !ok {
		room = make(map[string]*Client)
		h.rooms[sessionID] = room
	}
	room[c.id] = c
	c.setSession(sessionID)
	h.mu.Unlock()

	h.roomEmptied(emptied)
}

// Detach removes c from its room.
func (h *Hub) Detach(c *Client) {
	h.mu.Lock()
	emptied := h.leaveLocked(c)
	h.mu.Unlock()
	h.roomEmptied(emptied)
}

// EvictRoom detaches every client from the room of sessionID without
// triggering the empty-room callback.
func (h *Hub) EvictRoom(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.rooms[sessionID] {
		c.setSession("")
	}
	delete(h.rooms, sessionID)
}

// leaveLocked removes c from its room and returns the room's session id if
// the room is now empty.
func (h *Hub) leaveLocked(c *Client) string {
	sessionID := c.sessionID()
	if sessionID == "" {
		return ""
	}
	c.setSession("")
	room, ok := h.rooms[sessionID]
	if !ok {
		return ""
	}
	delete(room, c.id)
	if len(room) > 0 {
		return ""
	}
	delete(h.rooms, sessionID)
	return sessionID
}

func (h *Hub) roomEmptied(sessionID string) {
	if sessionID == "" {
		return
	}
	h.mu.RLock()
	fn := h.onRoomEmpty
	h.mu.RUnlock()

	h.logger.Debug("room empty", zap.String("session_id", sessionID))
	if fn != nil {
		fn(sessionID)
	}
}

// MembersOf returns the connection ids attached to sessionID in a stable
// order.
func (h *Hub) MembersOf(sessionID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.rooms[sessionID]))
	for id := range h.rooms[sessionID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// IdentityOf returns the user id of an identified connection.
func (h *Hub) IdentityOf(connID string) (string, bool) {
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		return "", false
	}
	cc := c.Context()
	return cc.Identity.UserID, cc.Identified()
}

// Send delivers one event to one connection.
func (h *Hub) Send(connID, event string, payload any) error {
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", errUnknownConnection, connID)
	}
	return c.emit(event, payload)
}

// SendToSession delivers one event to every connection in the room.
func (h *Hub) SendToSession(sessionID, event string, payload any) {
	data, err := encode(event, payload)
	if err != nil {
		h.logger.Error("encode failed", zap.String("event", event), zap.Error(err))
		return
	}
	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[sessionID]))
	for _, c := range h.rooms[sessionID] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	h.fanOut(members, event, data)
}

// BroadcastAll delivers one event to every connected client.
func (h *Hub) BroadcastAll(event string, payload any) {
	data, err := encode(event, payload)
	if err != nil {
		h.logger.Error("encode failed", zap.String("event", event), zap.Error(err))
		return
	}
	h.mu.RLock()
	all := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		all = append(all, c)
	}
	h.mu.RUnlock()

	h.fanOut(all, event, data)
}

func (h *Hub) fanOut(clients []*Client, event string, data []byte) {
	for _, c := range clients {
		if err := c.enqueue(data); err != nil {
			h.logger.Warn("dropping event",
				zap.String("conn_id", c.id),
				zap.String("event", event),
				zap.Error(err),
			)
		}
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func encode(event string, payload any) ([]byte, error) {
	return json.Marshal(ServerMessage{Event: event, Data: payload})
}
