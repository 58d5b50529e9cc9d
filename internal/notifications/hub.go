// Package notifications provides real-time event delivery over websockets.
package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"combox/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	// Max connections per user
	maxConnsPerUser = 12
	// Max total connections
	maxTotalConns = 10000
)

// Event is the JSON envelope pushed to connected clients.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Marshal encodes the event, returning nil on failure.
func (e Event) Marshal() []byte {
	data, err := json.Marshal(e)
	if err != nil {
		slog.Error("failed to marshal event", "type", e.Type, "error", err)
		return nil
	}
	return data
}

// Group name helpers. Channels and per-user private groups share one
// namespace inside the hub.
func ChannelGroup(channelID uint) string { return fmt.Sprintf("channel:%d", channelID) }

// UserGroup is the private notification group for one user.
func UserGroup(userID uint) string { return fmt.Sprintf("user:%d", userID) }

// Publisher is the capability object services use to push events. Both the
// in-process Hub and the Redis-backed Notifier satisfy it.
type Publisher interface {
	ToChannel(channelID uint, event Event)
	ToUser(userID uint, event Event)
}

// Hub maps named subscriber groups to websocket clients. A client joins its
// private user group on registration and channel groups on demand.
type Hub struct {
	mu           sync.RWMutex
	groups       map[string]map[*Client]struct{}
	clientGroups map[*Client]map[string]struct{}
	userConns    map[uint]map[*Client]struct{}
	totalConns   int
}

// NewHub creates a new Hub instance.
func NewHub() *Hub {
	return &Hub{
		groups:       make(map[string]map[*Client]struct{}),
		clientGroups: make(map[*Client]map[string]struct{}),
		userConns:    make(map[uint]map[*Client]struct{}),
	}
}

// Register a connection for a given userID. The client is subscribed to its
// private user group. Returns the Client or an error if limits are exceeded.
func (h *Hub) Register(userID uint, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()

	if h.totalConns >= maxTotalConns {
		h.mu.Unlock()
		return nil, errors.New("server connection limit reached")
	}

	conns, ok := h.userConns[userID]
	if !ok {
		conns = make(map[*Client]struct{})
		h.userConns[userID] = conns
	}
	if len(conns) >= maxConnsPerUser {
		h.mu.Unlock()
		return nil, errors.New("user connection limit reached")
	}

	client := newClient(h, conn, userID)
	conns[client] = struct{}{}
	h.totalConns++
	h.joinLocked(client, UserGroup(userID))
	h.mu.Unlock()

	observability.WebSocketConnectionsTotal.Inc()
	return client, nil
}

// UnregisterClient removes the client from every group it joined.
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	removed := false
	if conns, ok := h.userConns[client.UserID]; ok {
		if _, exists := conns[client]; exists {
			delete(conns, client)
			h.totalConns--
			removed = true
		}
		if len(conns) == 0 {
			delete(h.userConns, client.UserID)
		}
	}
	for group := range h.clientGroups[client] {
		h.leaveLocked(client, group)
	}
	delete(h.clientGroups, client)
	h.mu.Unlock()

	if removed {
		observability.WebSocketConnectionsTotal.Dec()
	}
}

// JoinGroup subscribes the client to a named group.
func (h *Hub) JoinGroup(client *Client, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.joinLocked(client, group)
}

// LeaveGroup unsubscribes the client from a named group.
func (h *Hub) LeaveGroup(client *Client, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(client, group)
}

func (h *Hub) joinLocked(client *Client, group string) {
	if h.groups[group] == nil {
		h.groups[group] = make(map[*Client]struct{})
	}
	h.groups[group][client] = struct{}{}
	if h.clientGroups[client] == nil {
		h.clientGroups[client] = make(map[string]struct{})
	}
	h.clientGroups[client][group] = struct{}{}
}

func (h *Hub) leaveLocked(client *Client, group string) {
	if members, ok := h.groups[group]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.groups, group)
		}
	}
	if groups, ok := h.clientGroups[client]; ok {
		delete(groups, group)
	}
}

// Publish sends the event to every client subscribed to the group.
// Delivery is fire-and-forget; slow clients drop, they never block.
func (h *Hub) Publish(group string, event Event) {
	data := event.Marshal()
	if data == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.groups[group] {
		client.TrySend(data)
	}
}

// ToChannel publishes an event to a channel's subscriber group.
func (h *Hub) ToChannel(channelID uint, event Event) {
	h.Publish(ChannelGroup(channelID), event)
}

// ToUser publishes an event to a user's private group.
func (h *Hub) ToUser(userID uint, event Event) {
	h.Publish(UserGroup(userID), event)
}

// IsOnline reports whether a user currently has at least one active connection.
func (h *Hub) IsOnline(userID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns, ok := h.userConns[userID]
	return ok && len(conns) > 0
}

// GroupSize returns the number of clients subscribed to a group.
func (h *Hub) GroupSize(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[group])
}

// StartWiring subscribes the hub to the Notifier's Redis channels so events
// published by other instances reach this hub's local clients.
func (h *Hub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartSubscriber(ctx, func(group string, payload []byte) {
		var event Event
		if err := json.Unmarshal(payload, &event); err != nil {
			slog.Warn("invalid event payload from redis", "group", group, "error", err)
			return
		}
		h.Publish(group, event)
	})
}

// Shutdown gracefully closes all websocket connections.
func (h *Hub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, conns := range h.userConns {
		for client := range conns {
			if client.Conn == nil {
				continue
			}
			if err := client.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down")); err != nil {
				slog.Warn("failed to write close message", "user_id", userID, "error", err)
			}
			if err := client.Conn.Close(); err != nil {
				slog.Warn("failed to close websocket", "user_id", userID, "error", err)
			}
		}
	}

	h.groups = make(map[string]map[*Client]struct{})
	h.clientGroups = make(map[*Client]map[string]struct{})
	h.userConns = make(map[uint]map[*Client]struct{})
	h.totalConns = 0

	return nil
}
