// Package session implements the per-connection state machine, the command
// dispatcher, and the broadcast primitives that keep room peers consistent.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/parlorchat/parlor/internal/v1/events"
	"github.com/parlorchat/parlor/internal/v1/logging"
	"github.com/parlorchat/parlor/internal/v1/metrics"
	"github.com/parlorchat/parlor/internal/v1/protocol"
	"github.com/parlorchat/parlor/internal/v1/room"
	"github.com/parlorchat/parlor/internal/v1/store"
	"github.com/parlorchat/parlor/internal/v1/types"
)

// Hub owns the live sessions, the account map, and the shared services.
// Lock order: rooms registry and room locks first, then hub.mu, then a
// client's mutex; never a client mutex while waiting on a room.
type Hub struct {
	mu      sync.Mutex
	clients map[string]*Client

	accountsMu sync.RWMutex
	accounts   map[string]*types.Account

	registry *room.Registry
	store    *store.Store
	keys     *KeyRegistry
	events   *events.Publisher
}

// NewHub builds a hub over the store and room registry.
func NewHub(st *store.Store, reg *room.Registry, pub *events.Publisher) *Hub {
	return &Hub{
		clients:  make(map[string]*Client),
		accounts: make(map[string]*types.Account),
		registry: reg,
		store:    st,
		keys:     NewKeyRegistry(),
		events:   pub,
	}
}

// LoadAccounts replaces the in-memory account map from users.json.
func (h *Hub) LoadAccounts() error {
	accounts, err := h.store.LoadUsers()
	if err != nil {
		return err
	}
	h.accountsMu.Lock()
	h.accounts = accounts
	h.accountsMu.Unlock()
	return nil
}

// Registry exposes the room registry.
func (h *Hub) Registry() *room.Registry { return h.registry }

// Keys exposes the public-key registry.
func (h *Hub) Keys() *KeyRegistry { return h.keys }

// Register creates a session for a fresh connection.
func (h *Hub) Register(conn net.Conn) *Client {
	c := newClient(conn)
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	logging.Info(context.Background(), "session connected",
		zap.String("session_id", c.id),
		zap.String("addr", logging.RedactAddr(c.addr)))
	return c
}

// Disconnect removes a session: in-room sessions leave their room first,
// the public key is dropped, and the socket is closed.
func (h *Hub) Disconnect(ctx context.Context, c *Client) {
	st := c.State()
	if st.Phase == PhaseInRoom {
		if r, ok := h.registry.Get(st.Room); ok {
			h.leaveRoom(ctx, c, r, "")
		}
	}
	if st.Username != "" {
		h.keys.Drop(st.Username)
	}

	h.mu.Lock()
	_, present := h.clients[c.id]
	delete(h.clients, c.id)
	h.mu.Unlock()

	if present {
		c.released()
	}
	c.Close()

	logging.Info(ctx, "session disconnected",
		zap.String("session_id", c.id),
		zap.String("addr", logging.RedactAddr(c.addr)))
}

// Shutdown notifies and closes every session.
func (h *Hub) Shutdown(ctx context.Context) {
	for _, c := range h.clientsSnapshot() {
		_ = c.Send(protocol.Yellow("Server shutting down"))
		h.Disconnect(ctx, c)
	}
}

func (h *Hub) clientsSnapshot() []*Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, c)
	}
	return out
}

// findByUsername returns the live session holding the username, if any.
func (h *Hub) findByUsername(username string) *Client {
	for _, c := range h.clientsSnapshot() {
		st := c.State()
		if st.Phase != PhaseGuest && st.Username == username {
			return c
		}
	}
	return nil
}

// roomMembers returns the sessions currently in the named room.
func (h *Hub) roomMembers(roomName string) []*Client {
	var out []*Client
	for _, c := range h.clientsSnapshot() {
		st := c.State()
		if st.Phase == PhaseInRoom && st.Room == roomName {
			out = append(out, c)
		}
	}
	return out
}

// account returns the stored account for a username.
func (h *Hub) account(username string) (*types.Account, bool) {
	h.accountsMu.RLock()
	defer h.accountsMu.RUnlock()
	a, ok := h.accounts[username]
	return a, ok
}

// persistUsers writes users.json; on failure the in-memory state stays
// mutated, the caller's session sees a red error, and the drift is logged.
func (h *Hub) persistUsers(ctx context.Context, c *Client) bool {
	h.accountsMu.RLock()
	snapshot := make(map[string]*types.Account, len(h.accounts))
	for k, v := range h.accounts {
		snapshot[k] = v
	}
	h.accountsMu.RUnlock()

	if err := h.store.SaveUsers(snapshot); err != nil {
		metrics.PersistenceErrors.Inc()
		logging.Error(ctx, "user persistence failed, memory ahead of disk", zap.Error(err))
		if c != nil {
			_ = c.Send(protocol.Red("Error: Failed to save user data"))
		}
		return false
	}
	return true
}

// persistRooms writes rooms.json with the same failure semantics.
func (h *Hub) persistRooms(ctx context.Context, c *Client) bool {
	if err := h.registry.Persist(); err != nil {
		logging.Error(ctx, "room persistence failed, memory ahead of disk", zap.Error(err))
		if c != nil {
			_ = c.Send(protocol.Red("Error: Failed to save room data"))
		}
		return false
	}
	return true
}

// leaveRoom takes the session out of the room: online list, lastSeen,
// persistence, state back to the lobby, then peer syncs. The optional
// notice is sent before the state frame.
func (h *Hub) leaveRoom(ctx context.Context, c *Client, r *room.Room, notice string) {
	st := c.State()
	now := time.Now().Unix()

	r.WithWrite(func(d *types.Room) {
		d.RemoveOnline(st.Username)
		if ru, ok := d.Users[st.Username]; ok {
			ru.LastSeen = now
		}
	})
	// disk catches up with the membership change before the state frames go out
	h.persistRooms(ctx, c)
	c.ToLoggedIn(st.Username)

	if notice != "" {
		_ = c.Send(notice)
	}
	_ = c.Send("/LOBBY_STATE")

	h.syncRoomMembers(r)
	h.broadcastUserList(r)
}

// hashPassword is the stored form of account passwords.
func hashPassword(pw string) string {
	sum := sha256.Sum256([]byte(pw))
	return hex.EncodeToString(sum[:])
}

// displayName returns the room display name: the nick when set, otherwise
// the username.
func displayName(username string, ru *types.RoomUser) string {
	if ru != nil && ru.Nick != "" {
		return ru.Nick
	}
	return username
}

// coloredName renders the display name in the user's color, falling back to
// the role color.
func coloredName(username string, ru *types.RoomUser, d *types.Room) string {
	name := displayName(username, ru)
	color := ""
	if ru != nil {
		color = ru.Color
		if color == "" {
			color = d.RoleColor(ru.Role)
		}
	}
	if color == "" {
		return name
	}
	return protocol.Colored(color, name)
}

// publish emits a server event when the publisher is configured.
func (h *Hub) publish(ctx context.Context, ev events.Event) {
	h.events.Publish(ctx, ev)
}

// sessionCtx tags the context with session fields for log lines.
func sessionCtx(ctx context.Context, c *Client) context.Context {
	st := c.State()
	ctx = context.WithValue(ctx, logging.SessionIDKey, c.id)
	if st.Username != "" {
		ctx = context.WithValue(ctx, logging.UsernameKey, st.Username)
	}
	if st.Room != "" {
		ctx = context.WithValue(ctx, logging.RoomKey, st.Room)
	}
	return ctx
}

// roomOf resolves the caller's current room; a vanished room yields a
// yellow notice and false.
func (h *Hub) roomOf(c *Client) (*room.Room, bool) {
	st := c.State()
	r, ok := h.registry.Get(st.Room)
	if !ok {
		_ = c.Send(protocol.Yellow("Room not found"))
		return nil, false
	}
	return r, ok
}
