package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/parlorchat/parlor/internal/v1/events"
	"github.com/parlorchat/parlor/internal/v1/logging"
	"github.com/parlorchat/parlor/internal/v1/protocol"
	"github.com/parlorchat/parlor/internal/v1/room"
	"github.com/parlorchat/parlor/internal/v1/types"
)

// evict removes a session from the room without persisting; callers batch
// the disk write and peer syncs.
func (h *Hub) evict(c *Client, r *room.Room, notice string) {
	st := c.State()
	now := time.Now().Unix()
	r.WithWrite(func(d *types.Room) {
		d.RemoveOnline(st.Username)
		if ru, ok := d.Users[st.Username]; ok {
			ru.LastSeen = now
		}
	})
	c.ToLoggedIn(st.Username)
	if notice != "" {
		_ = c.Send(notice)
	}
	_ = c.Send("/LOBBY_STATE")
}

func (h *Hub) handleSuperUsers(ctx context.Context, c *Client) Result {
	r, ok := h.roomOf(c)
	if !ok {
		return Handled
	}
	entries, data := snapshotOnline(r)

	now := time.Now()
	rows := []string{fmt.Sprintf("%-10s %-16s %-16s %-8s %-7s %-5s %s",
		"Role", "User", "Nick", "Color", "Hidden", "AFK", "Session")}
	for _, e := range entries {
		afk := "no"
		session := "--:--:--"
		if member := h.findByUsername(e.username); member != nil {
			st := member.State()
			if st.IsAFK {
				afk = "yes"
			}
			d := now.Sub(st.JoinedAt)
			session = fmt.Sprintf("%02d:%02d:%02d",
				int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
		}
		hidden := "no"
		if e.record.Hidden {
			hidden = "yes"
		}
		color := e.record.Color
		if color == "" {
			color = data.RoleColor(e.record.Role)
		}
		rows = append(rows, fmt.Sprintf("%-10s %-16s %-16s %-8s %-7s %-5s %s",
			e.record.Role.Display(), e.username, e.record.Nick, color, hidden, afk, session))
	}
	_ = c.Send(protocol.Cyan(strings.Join(rows, "\n")))
	return Handled
}

func (h *Hub) handleSuperRename(ctx context.Context, c *Client, cmd protocol.SuperRename) Result {
	oldName := c.State().Room
	if _, ok := h.roomOf(c); !ok {
		return Handled
	}

	if err := h.registry.Rename(oldName, cmd.NewName); err != nil {
		if errors.Is(err, room.ErrExists) {
			_ = c.Send(protocol.Yellow("Room name '" + cmd.NewName + "' is already taken"))
		} else {
			_ = c.Send(protocol.Yellow("Room not found"))
		}
		return Handled
	}

	for _, member := range h.roomMembers(oldName) {
		member.RenameRoom(oldName, cmd.NewName)
		_ = member.Send("/ROOM_NAME " + cmd.NewName)
		_ = member.Send(protocol.Green("Room renamed to: " + cmd.NewName))
	}

	h.persistRooms(ctx, c)
	h.broadcastRoomList()

	logging.Info(ctx, "room renamed",
		zap.String("old", oldName), zap.String("new", cmd.NewName))
	h.publish(ctx, events.Event{Type: events.TypeRoomRenamed, Room: cmd.NewName, Actor: c.State().Username, Detail: oldName})
	return Handled
}

func (h *Hub) handleSuperExport(ctx context.Context, c *Client, cmd protocol.SuperExport) Result {
	r, ok := h.roomOf(c)
	if !ok {
		return Handled
	}
	name := r.Name()

	var (
		path string
		err  error
	)
	r.WithRead(func(d *types.Room) {
		path, err = h.store.ExportRoom(name, d, cmd.File)
	})
	if err != nil {
		logging.Error(ctx, "room export failed", zap.Error(err))
		_ = c.Send(protocol.Red("Error: Failed to export room"))
		return Handled
	}
	_ = c.Send(protocol.Green("Room exported to: " + path))
	return Handled
}

func (h *Hub) handleSuperWhitelist(ctx context.Context, c *Client, cmd protocol.SuperWhitelist) Result {
	r, ok := h.roomOf(c)
	if !ok {
		return Handled
	}

	switch cmd.Action {
	case "info":
		var enabled bool
		var entries []string
		r.WithRead(func(d *types.Room) {
			enabled = d.WhitelistEnabled
			entries = append(entries, d.Whitelist...)
		})
		status := "disabled"
		if enabled {
			status = "enabled"
		}
		line := "Whitelist: " + status
		if len(entries) > 0 {
			line += "\n  " + strings.Join(entries, ", ")
		} else {
			line += "\n  (empty)"
		}
		_ = c.Send(protocol.Cyan(line))
		return Handled

	case "toggle":
		var enabled bool
		r.WithWrite(func(d *types.Room) {
			d.WhitelistEnabled = !d.WhitelistEnabled
			enabled = d.WhitelistEnabled
		})

		if enabled {
			// eject occupants the whitelist no longer admits; the owner stays
			for _, member := range h.roomMembers(r.Name()) {
				name := member.State().Username
				allowed := false
				r.WithRead(func(d *types.Room) {
					ru := d.Users[name]
					allowed = d.Whitelisted(name) || (ru != nil && ru.Role == types.RoleOwner)
				})
				if !allowed {
					h.evict(member, r, protocol.Red("You are not whitelisted in this room"))
				}
			}
			_ = c.Send(protocol.Green("Whitelist enabled"))
		} else {
			_ = c.Send(protocol.Green("Whitelist disabled"))
		}

		h.persistRooms(ctx, c)
		h.syncRoomMembers(r)
		h.broadcastUserList(r)
		h.broadcastRoomList()
		return Handled

	case "add":
		var added, already []string
		r.WithWrite(func(d *types.Room) {
			for _, u := range cmd.Users {
				if d.Whitelisted(u) {
					already = append(already, u)
					continue
				}
				d.Whitelist = append(d.Whitelist, u)
				added = append(added, u)
			}
		})
		if len(added) > 0 {
			h.persistRooms(ctx, c)
			_ = c.Send(protocol.Green("Added to whitelist: " + strings.Join(added, ", ")))
			h.broadcastRoomList()
		}
		if len(already) > 0 {
			_ = c.Send(protocol.Yellow("Already whitelisted: " + strings.Join(already, ", ")))
		}
		if len(added) == 0 && len(already) == 0 {
			_ = c.Send(protocol.Yellow("No changes made"))
		}
		return Handled

	case "remove":
		var removed, missing []string
		var enabled bool
		r.WithWrite(func(d *types.Room) {
			enabled = d.WhitelistEnabled
			for _, u := range cmd.Users {
				found := false
				for i, w := range d.Whitelist {
					if w == u {
						d.Whitelist = append(d.Whitelist[:i], d.Whitelist[i+1:]...)
						found = true
						break
					}
				}
				if found {
					removed = append(removed, u)
				} else {
					missing = append(missing, u)
				}
			}
		})

		if len(removed) > 0 {
			if enabled {
				for _, name := range removed {
					member := h.findByUsername(name)
					if member == nil || member.State().Room != r.Name() {
						continue
					}
					isOwner := false
					r.WithRead(func(d *types.Room) {
						ru := d.Users[name]
						isOwner = ru != nil && ru.Role == types.RoleOwner
					})
					if !isOwner {
						h.evict(member, r, protocol.Red("You are no longer whitelisted in this room"))
					}
				}
			}
			h.persistRooms(ctx, c)
			_ = c.Send(protocol.Green("Removed from whitelist: " + strings.Join(removed, ", ")))
			h.syncRoomMembers(r)
			h.broadcastUserList(r)
			h.broadcastRoomList()
		}
		if len(missing) > 0 {
			_ = c.Send(protocol.Yellow("Not whitelisted: " + strings.Join(missing, ", ")))
		}
		return Handled
	}
	return Handled
}

func (h *Hub) handleSuperLimit(ctx context.Context, c *Client, cmd protocol.SuperLimit) Result {
	r, ok := h.roomOf(c)
	if !ok {
		return Handled
	}

	rateText := func(n uint8) string {
		if n == 0 {
			return "UNLIMITED"
		}
		return strconv.Itoa(int(n)) + " messages per 5 sec"
	}
	sessionText := func(n uint32) string {
		if n == 0 {
			return "UNLIMITED"
		}
		return strconv.Itoa(int(n)) + " sec of inactivity"
	}

	switch cmd.Action {
	case "info":
		var rate uint8
		var timeout uint32
		r.WithRead(func(d *types.Room) {
			rate = d.MsgRate
			timeout = d.SessionTimeout
		})
		_ = c.Send(protocol.Cyan(
			"Message rate: " + rateText(rate) + "\nSession timeout: " + sessionText(timeout)))
		return Handled

	case "rate":
		var rate uint8
		if cmd.Value == "*" {
			rate = 0
		} else {
			n, err := strconv.ParseUint(cmd.Value, 10, 8)
			if err != nil {
				_ = c.Send(protocol.Yellow("Error: Invalid rate '" + cmd.Value + "'"))
				return Handled
			}
			rate = uint8(n)
		}
		r.WithWrite(func(d *types.Room) { d.MsgRate = rate })
		h.persistRooms(ctx, c)
		_ = c.Send(protocol.Green("Message rate set to: " + rateText(rate)))
		return Handled

	case "session":
		var timeout uint32
		if cmd.Value == "*" {
			timeout = 0
		} else {
			n, err := strconv.ParseUint(cmd.Value, 10, 32)
			if err != nil {
				_ = c.Send(protocol.Yellow("Error: Invalid timeout '" + cmd.Value + "'"))
				return Handled
			}
			timeout = uint32(n)
		}
		r.WithWrite(func(d *types.Room) { d.SessionTimeout = timeout })
		h.persistRooms(ctx, c)
		_ = c.Send(protocol.Green("Session timeout set to: " + sessionText(timeout)))
		return Handled
	}
	return Handled
}
