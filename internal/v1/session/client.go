package session

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parlorchat/parlor/internal/v1/metrics"
)

// Phase is the session state machine position.
type Phase int

const (
	PhaseGuest Phase = iota
	PhaseLoggedIn
	PhaseInRoom
)

func (p Phase) String() string {
	switch p {
	case PhaseGuest:
		return "guest"
	case PhaseLoggedIn:
		return "logged_in"
	case PhaseInRoom:
		return "in_room"
	default:
		return "unknown"
	}
}

// State is the mutable per-session state. MsgTimestamps holds the recent
// send instants for the room message rate limit; only the last 5 s matter.
type State struct {
	Phase         Phase
	Username      string
	Room          string
	JoinedAt      time.Time
	MsgTimestamps []time.Time
	InactiveSince time.Time
	IsAFK         bool
}

// confirm is a pending y/n question consuming the session's next line.
type confirm struct {
	prompt string
	action func() Result
}

// Client is one connected session. The mutex guards the state, the ignore
// list, the attempt window, and writes to the stream, so concurrent
// broadcasts to the same peer serialize.
type Client struct {
	id   string
	addr string
	conn net.Conn

	mu       sync.Mutex
	state    State
	ignore   []string
	attempts []time.Time
	pending  *confirm
	closed   bool
}

func newClient(conn net.Conn) *Client {
	addr := ""
	if conn.RemoteAddr() != nil {
		addr = conn.RemoteAddr().String()
	}
	c := &Client{
		id:   uuid.NewString(),
		addr: addr,
		conn: conn,
	}
	metrics.SessionsByState.WithLabelValues(PhaseGuest.String()).Inc()
	return c
}

// ID returns the session id.
func (c *Client) ID() string { return c.id }

// Addr returns the peer address.
func (c *Client) Addr() string { return c.addr }

// Send writes one line to the peer.
func (c *Client) Send(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("session %s closed", c.id)
	}
	_, err := c.conn.Write([]byte(line + "\n"))
	return err
}

// Close shuts the stream down; further sends fail.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()
	conn.Close()
}

// State returns a copy of the session state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// setPhase swaps the state and keeps the per-phase gauge consistent.
// Callers hold c.mu.
func (c *Client) setPhaseLocked(next State) {
	if c.state.Phase != next.Phase {
		metrics.SessionsByState.WithLabelValues(c.state.Phase.String()).Dec()
		metrics.SessionsByState.WithLabelValues(next.Phase.String()).Inc()
	}
	c.state = next
}

// ToGuest resets the session to the unauthenticated state.
func (c *Client) ToGuest() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setPhaseLocked(State{Phase: PhaseGuest})
	c.ignore = nil
}

// ToLoggedIn moves the session to the lobby under username.
func (c *Client) ToLoggedIn(username string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setPhaseLocked(State{Phase: PhaseLoggedIn, Username: username})
}

// ToInRoom moves the session into a room.
func (c *Client) ToInRoom(username, roomName string) {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setPhaseLocked(State{
		Phase:         PhaseInRoom,
		Username:      username,
		Room:          roomName,
		JoinedAt:      now,
		InactiveSince: now,
	})
}

// released decrements the gauge for the final phase; called once when the
// session is removed from the hub.
func (c *Client) released() {
	c.mu.Lock()
	defer c.mu.Unlock()
	metrics.SessionsByState.WithLabelValues(c.state.Phase.String()).Dec()
}

// Touch marks the session active: resets the inactivity clock and clears
// AFK. A no-op outside rooms.
func (c *Client) Touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Phase == PhaseInRoom {
		c.state.InactiveSince = time.Now()
		c.state.IsAFK = false
	}
}

// SetAFK flags the session away.
func (c *Client) SetAFK() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.IsAFK = true
}

// RenameRoom rewrites the room name in place after a room rename.
func (c *Client) RenameRoom(oldName, newName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Phase == PhaseInRoom && c.state.Room == oldName {
		c.state.Room = newName
	}
}

// TakeMessageSlot enforces the room message rate: prunes timestamps older
// than the 5 s window and, when a slot is free, records the send. msgRate 0
// is unlimited.
func (c *Client) TakeMessageSlot(msgRate uint8) bool {
	now := time.Now()
	cutoff := now.Add(-5 * time.Second)

	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.state.MsgTimestamps[:0]
	for _, ts := range c.state.MsgTimestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	c.state.MsgTimestamps = kept

	if msgRate > 0 && len(kept) >= int(msgRate) {
		return false
	}
	c.state.MsgTimestamps = append(c.state.MsgTimestamps, now)
	return true
}

// Ignoring reports whether the session ignores the user.
func (c *Client) Ignoring(user string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, u := range c.ignore {
		if u == user {
			return true
		}
	}
	return false
}

// IgnoreList returns a copy of the ignore list.
func (c *Client) IgnoreList() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.ignore))
	copy(out, c.ignore)
	return out
}

// SetIgnoreList replaces the ignore list, on login.
func (c *Client) SetIgnoreList(list []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ignore = append([]string(nil), list...)
}

// AddIgnore appends a user if absent and reports whether it was added.
func (c *Client) AddIgnore(user string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, u := range c.ignore {
		if u == user {
			return false
		}
	}
	c.ignore = append(c.ignore, user)
	return true
}

// RemoveIgnore drops a user and reports whether it was present.
func (c *Client) RemoveIgnore(user string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, u := range c.ignore {
		if u == user {
			c.ignore = append(c.ignore[:i], c.ignore[i+1:]...)
			return true
		}
	}
	return false
}

// AllowAttempt enforces the sliding login/register window: at most 5
// attempts per 60 s per session.
func (c *Client) AllowAttempt() bool {
	now := time.Now()
	cutoff := now.Add(-60 * time.Second)

	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.attempts[:0]
	for _, ts := range c.attempts {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	c.attempts = kept
	if len(kept) >= 5 {
		return false
	}
	c.attempts = append(c.attempts, now)
	return true
}

// setPending arms a y/n confirmation consuming the next line.
func (c *Client) setPending(prompt string, action func() Result) {
	c.mu.Lock()
	c.pending = &confirm{prompt: prompt, action: action}
	c.mu.Unlock()
}

// takePending pops the pending confirmation, if any.
func (c *Client) takePending() *confirm {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.pending
	c.pending = nil
	return p
}
