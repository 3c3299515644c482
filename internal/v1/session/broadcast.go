package session

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/parlorchat/parlor/internal/v1/logging"
	"github.com/parlorchat/parlor/internal/v1/metrics"
	"github.com/parlorchat/parlor/internal/v1/protocol"
	"github.com/parlorchat/parlor/internal/v1/room"
	"github.com/parlorchat/parlor/internal/v1/types"
)

// userListSeparator joins /USERS entries; entries themselves carry ANSI and
// spaces, so a control byte keeps them splittable.
const userListSeparator = "\x1F"

// syncUserCommands sends one session its granted restricted commands.
func (h *Hub) syncUserCommands(c *Client, r *room.Room) {
	st := c.State()
	var tokens []string
	r.WithRead(func(d *types.Room) {
		if ru, ok := d.Users[st.Username]; ok {
			tokens = room.GrantedTokens(ru.Role, d.Roles)
		}
	})
	line := "/CMDS"
	if len(tokens) > 0 {
		line += " " + strings.Join(tokens, " ")
	}
	_ = c.Send(line)
}

// syncRoomCommands refreshes the granted commands of every session in the
// room, after role or grant changes.
func (h *Hub) syncRoomCommands(r *room.Room) {
	for _, member := range h.roomMembers(r.Name()) {
		h.syncUserCommands(member, r)
	}
}

// memberEntry is a snapshot row used by the roster and user-list frames.
type memberEntry struct {
	username string
	record   types.RoomUser
}

func snapshotOnline(r *room.Room) (entries []memberEntry, data types.Room) {
	r.WithRead(func(d *types.Room) {
		data = types.Room{Roles: d.Roles}
		data.Roles.Colors = make(map[string]string, len(d.Roles.Colors))
		for k, v := range d.Roles.Colors {
			data.Roles.Colors[k] = v
		}
		for _, u := range d.OnlineUsers {
			ru := d.Users[u]
			if ru == nil {
				continue
			}
			entries = append(entries, memberEntry{username: u, record: *ru})
		}
	})
	return entries, data
}

// syncRoomMembers sends each session its view of the roster as
// "/members user:pubkey ...". Hidden users are omitted for viewers below
// admin; users without a registered key are omitted for everyone.
func (h *Hub) syncRoomMembers(r *room.Room) {
	entries, _ := snapshotOnline(r)

	for _, viewer := range h.roomMembers(r.Name()) {
		viewerName := viewer.State().Username
		viewerRank := 0
		r.WithRead(func(d *types.Room) {
			if ru, ok := d.Users[viewerName]; ok {
				viewerRank = ru.Role.Rank()
			}
		})

		var pairs []string
		for _, e := range entries {
			if e.record.Hidden && viewerRank < types.RoleAdmin.Rank() {
				continue
			}
			key, ok := h.keys.Get(e.username)
			if !ok {
				continue
			}
			pairs = append(pairs, e.username+":"+key)
		}

		line := "/members"
		if len(pairs) > 0 {
			line += " " + strings.Join(pairs, " ")
		}
		_ = viewer.Send(line)
	}
}

// broadcastUserList sends the room the display list: "/USERS" followed by
// role-prefixed colored entries separated by the unit separator. Hidden and
// AFK users are omitted.
func (h *Hub) broadcastUserList(r *room.Room) {
	entries, data := snapshotOnline(r)

	var rendered []string
	for _, e := range entries {
		if e.record.Hidden {
			continue
		}
		if c := h.findByUsername(e.username); c != nil && c.State().IsAFK {
			continue
		}
		prefix := protocol.Colored(data.RoleColor(e.record.Role), "["+e.record.Role.Display()+"]")
		rendered = append(rendered, prefix+" "+coloredName(e.username, &e.record, &data))
	}

	line := "/USERS"
	if len(rendered) > 0 {
		line += " " + strings.Join(rendered, userListSeparator)
	}
	for _, member := range h.roomMembers(r.Name()) {
		_ = member.Send(line)
	}
}

// broadcastMessage writes text verbatim to every session in the room.
// The sender is skipped unless includeSender; receivers ignoring the sender
// are skipped unless bypassIgnores.
func (h *Hub) broadcastMessage(r *room.Room, sender, text string, includeSender, bypassIgnores bool) {
	metrics.MessagesBroadcast.Inc()
	for _, member := range h.roomMembers(r.Name()) {
		st := member.State()
		if !includeSender && st.Username == sender {
			continue
		}
		if !bypassIgnores && st.Username != sender && member.Ignoring(sender) {
			continue
		}
		if err := member.Send(text); err != nil {
			metrics.BroadcastErrors.Inc()
			logging.Warn(context.Background(), "broadcast write failed",
				zap.String("session_id", member.id),
				zap.String("room", r.Name()),
				zap.Error(err))
		}
	}
}

// broadcastRoomList pushes "/ROOMS name:count ..." to every lobby session,
// filtered per viewer by whitelist visibility. Sent after create, delete,
// rename, and whitelist changes.
func (h *Hub) broadcastRoomList() {
	rooms := h.registry.Rooms()
	for _, c := range h.clientsSnapshot() {
		st := c.State()
		if st.Phase != PhaseLoggedIn {
			continue
		}
		var parts []string
		for _, r := range rooms {
			name := r.Name()
			r.WithRead(func(d *types.Room) {
				if d.VisibleTo(st.Username) {
					parts = append(parts, fmt.Sprintf("%s:%d", name, len(d.OnlineUsers)))
				}
			})
		}
		line := "/ROOMS"
		if len(parts) > 0 {
			line += " " + strings.Join(parts, " ")
		}
		_ = c.Send(line)
	}
}
