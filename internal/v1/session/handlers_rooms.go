package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/parlorchat/parlor/internal/v1/events"
	"github.com/parlorchat/parlor/internal/v1/logging"
	"github.com/parlorchat/parlor/internal/v1/protocol"
	"github.com/parlorchat/parlor/internal/v1/room"
	"github.com/parlorchat/parlor/internal/v1/store"
	"github.com/parlorchat/parlor/internal/v1/types"
)

func (h *Hub) handleRoomList(ctx context.Context, c *Client) Result {
	username := c.State().Username

	var lines []string
	for _, name := range h.registry.Names() {
		r, ok := h.registry.Get(name)
		if !ok {
			continue
		}
		r.WithRead(func(d *types.Room) {
			if !d.VisibleTo(username) {
				return
			}
			n := len(d.OnlineUsers)
			lines = append(lines, fmt.Sprintf("  %s (%d user(s) online)", name, n))
		})
	}

	if len(lines) == 0 {
		_ = c.Send(protocol.Yellow("No rooms available"))
		return Handled
	}
	_ = c.Send(protocol.Cyan("Available rooms:\n" + strings.Join(lines, "\n")))
	return Handled
}

func (h *Hub) handleRoomCreate(ctx context.Context, c *Client, cmd protocol.RoomCreate) Result {
	username := c.State().Username

	if _, err := h.registry.Create(cmd.Name, username, cmd.Whitelist); err != nil {
		if errors.Is(err, room.ErrExists) {
			_ = c.Send(protocol.Yellow("Room name '" + cmd.Name + "' is already taken"))
			return Handled
		}
		_ = c.Send(protocol.Red("Error: Failed to create room"))
		return Handled
	}
	h.persistRooms(ctx, c)

	_ = c.Send(protocol.Green("Room created: " + cmd.Name))
	h.broadcastRoomList()

	logging.Info(ctx, "room created",
		zap.String("room", cmd.Name),
		zap.Bool("whitelist", cmd.Whitelist))
	h.publish(ctx, events.Event{Type: events.TypeRoomCreated, Room: cmd.Name, Actor: username})
	return Handled
}

func (h *Hub) handleRoomJoin(ctx context.Context, c *Client, cmd protocol.RoomJoin) Result {
	username := c.State().Username
	r, ok := h.registry.Get(cmd.Name)
	if !ok {
		_ = c.Send(protocol.Yellow("Room not found"))
		return Handled
	}

	now := time.Now().Unix()
	var (
		refused   string
		role      types.Role
		remaining uint64
		banReason string
		banned    bool
	)
	r.WithWrite(func(d *types.Room) {
		ru := d.Users[username]
		isOwner := ru != nil && ru.Role == types.RoleOwner

		if d.WhitelistEnabled && !d.Whitelisted(username) && !isOwner {
			refused = protocol.Yellow("Room '" + cmd.Name + "' is whitelist-only")
			return
		}

		if ru != nil && ru.Banned {
			// expired bans clear on join and persist with the join below
			if !room.ExpireBan(ru, now) {
				banned = true
				remaining = room.BanRemaining(ru, now)
				banReason = ru.BanReason
				return
			}
		}

		if ru == nil {
			ru = types.NewRoomUser(types.RoleUser)
			d.Users[username] = ru
		}
		role = ru.Role
		d.AddOnline(username)
	})

	if refused != "" {
		_ = c.Send(refused)
		return Handled
	}
	if banned {
		msg := "You are banned from this room"
		if remaining == 0 {
			msg += " (PERMANENT)"
		} else {
			msg += " (" + protocol.FormatDuration(remaining) + " remaining)"
		}
		if banReason != "" {
			msg += " - " + banReason
		}
		_ = c.Send(protocol.Red(msg))
		return Handled
	}

	// disk catches up with the membership change before the state frames go out
	h.persistRooms(ctx, c)

	c.ToInRoom(username, cmd.Name)
	_ = c.Send("/ROOM_STATE")
	_ = c.Send("/ROOM_NAME " + cmd.Name)
	_ = c.Send("/ROLE " + string(role))
	_ = c.Send(protocol.Green("Joined room: " + cmd.Name))

	h.syncUserCommands(c, r)
	h.syncRoomMembers(r)
	h.broadcastUserList(r)

	logging.Info(ctx, "user joined room",
		zap.String("username", username),
		zap.String("room", cmd.Name),
		zap.String("role", string(role)))
	h.publish(ctx, events.Event{Type: events.TypeJoin, Room: cmd.Name, Actor: username})
	return Handled
}

func (h *Hub) handleRoomImport(ctx context.Context, c *Client, cmd protocol.RoomImport) Result {
	name, data, err := h.store.ImportRoom(cmd.File)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_ = c.Send(protocol.Yellow("File not found: " + cmd.File))
		} else {
			logging.Error(ctx, "room import failed", zap.Error(err))
			_ = c.Send(protocol.Red("Error: Failed to import room"))
		}
		return Handled
	}
	if _, err := h.registry.Add(name, data); err != nil {
		if errors.Is(err, room.ErrInvalidRoom) {
			_ = c.Send(protocol.Red("Error: Invalid room file: more than one owner"))
			return Handled
		}
		_ = c.Send(protocol.Yellow("Room name '" + name + "' is already taken"))
		return Handled
	}
	h.persistRooms(ctx, c)

	_ = c.Send(protocol.Green("Room imported: " + name))
	h.broadcastRoomList()
	h.publish(ctx, events.Event{Type: events.TypeRoomCreated, Room: name, Actor: c.State().Username, Detail: "imported"})
	return Handled
}

func (h *Hub) handleRoomDelete(ctx context.Context, c *Client, cmd protocol.RoomDelete) Result {
	username := c.State().Username
	r, ok := h.registry.Get(cmd.Name)
	if !ok {
		_ = c.Send(protocol.Yellow("Room not found"))
		return Handled
	}

	isOwner := false
	r.WithRead(func(d *types.Room) {
		ru := d.Users[username]
		isOwner = ru != nil && ru.Role == types.RoleOwner
	})
	if !isOwner {
		_ = c.Send(protocol.Red("Only the room owner can delete this room"))
		return Handled
	}

	deleteAction := func() Result {
		// eject anyone still inside before the room disappears
		for _, member := range h.roomMembers(cmd.Name) {
			st := member.State()
			member.ToLoggedIn(st.Username)
			_ = member.Send(protocol.Red("Room '" + cmd.Name + "' was deleted"))
			_ = member.Send("/LOBBY_STATE")
		}
		h.registry.Delete(cmd.Name)
		h.persistRooms(ctx, c)

		_ = c.Send(protocol.Green("Room deleted: " + cmd.Name))
		h.broadcastRoomList()

		logging.Info(ctx, "room deleted", zap.String("room", cmd.Name))
		h.publish(ctx, events.Event{Type: events.TypeRoomDeleted, Room: cmd.Name, Actor: username})
		return Handled
	}

	if cmd.Force {
		return deleteAction()
	}
	prompt := protocol.Red("Delete room '" + cmd.Name + "'? This cannot be undone. (y/n)")
	c.setPending(prompt, deleteAction)
	_ = c.Send(prompt)
	return Handled
}
