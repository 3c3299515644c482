package session

import (
	"context"
	"strings"

	"github.com/parlorchat/parlor/internal/v1/protocol"
	"github.com/parlorchat/parlor/internal/v1/types"
)

func clearsValue(s string) bool { return s == "*" || s == "reset" }

func (h *Hub) handleUserList(ctx context.Context, c *Client) Result {
	r, ok := h.roomOf(c)
	if !ok {
		return Handled
	}

	var lines []string
	r.WithRead(func(d *types.Room) {
		for _, name := range d.OnlineUsers {
			ru := d.Users[name]
			if ru == nil || ru.Hidden {
				continue
			}
			tag := protocol.Colored(d.RoleColor(ru.Role), "["+ru.Role.Display()+"]")
			lines = append(lines, "  "+tag+" "+coloredName(name, ru, d))
		}
	})

	if len(lines) == 0 {
		_ = c.Send(protocol.Yellow("No users online"))
		return Handled
	}
	_ = c.Send("Online users:\n" + strings.Join(lines, "\n"))
	return Handled
}

func (h *Hub) handleUserRename(ctx context.Context, c *Client, cmd protocol.UserRename) Result {
	username := c.State().Username
	r, ok := h.roomOf(c)
	if !ok {
		return Handled
	}

	target := cmd.Target
	if target == "" {
		target = username
	}

	var refused string
	r.WithWrite(func(d *types.Room) {
		caller := d.Users[username]
		if caller == nil {
			refused = protocol.Yellow("Room not found")
			return
		}
		if target != username && caller.Role.Rank() < types.RoleAdmin.Rank() {
			refused = protocol.Red("You don't have permission to rename other users")
			return
		}
		ru, ok := d.Users[target]
		if !ok {
			refused = protocol.Yellow("User '" + target + "' not found in this room")
			return
		}
		if clearsValue(cmd.NewNick) {
			ru.Nick = ""
		} else {
			ru.Nick = cmd.NewNick
		}
	})
	if refused != "" {
		_ = c.Send(refused)
		return Handled
	}

	h.persistRooms(ctx, c)
	if clearsValue(cmd.NewNick) {
		if target == username {
			_ = c.Send(protocol.Green("Nickname cleared"))
		} else {
			_ = c.Send(protocol.Green("Nickname for " + target + " cleared"))
		}
	} else {
		if target == username {
			_ = c.Send(protocol.Green("Nickname set to: " + cmd.NewNick))
		} else {
			_ = c.Send(protocol.Green("Nickname for " + target + " set to: " + cmd.NewNick))
		}
	}
	h.syncRoomMembers(r)
	h.broadcastUserList(r)
	return Handled
}

func (h *Hub) handleUserRecolor(ctx context.Context, c *Client, cmd protocol.UserRecolor) Result {
	username := c.State().Username
	r, ok := h.roomOf(c)
	if !ok {
		return Handled
	}

	clearing := clearsValue(cmd.Color)
	if !clearing && !protocol.ValidHexColor(cmd.Color) {
		_ = c.Send(protocol.Yellow("Error: Invalid color '" + cmd.Color + "', expected 6-digit hex"))
		return Handled
	}

	target := cmd.Target
	if target == "" {
		target = username
	}

	var refused string
	r.WithWrite(func(d *types.Room) {
		caller := d.Users[username]
		if caller == nil {
			refused = protocol.Yellow("Room not found")
			return
		}
		ru, ok := d.Users[target]
		if !ok {
			refused = protocol.Yellow("User '" + target + "' not found in this room")
			return
		}
		if target != username {
			if caller.Role.Rank() < types.RoleAdmin.Rank() {
				refused = protocol.Red("You don't have permission to recolor other users")
				return
			}
			if caller.Role.Rank() <= ru.Role.Rank() {
				refused = protocol.Yellow("Error: Cannot recolor a user with equal or higher privilege")
				return
			}
		}
		if clearing {
			ru.Color = ""
		} else {
			ru.Color = protocol.NormalizeHexColor(cmd.Color)
		}
	})
	if refused != "" {
		_ = c.Send(refused)
		return Handled
	}

	h.persistRooms(ctx, c)
	if clearing {
		_ = c.Send(protocol.Green("Color cleared"))
	} else {
		_ = c.Send(protocol.Green("Color set to: " + protocol.NormalizeHexColor(cmd.Color)))
	}
	h.syncRoomMembers(r)
	h.broadcastUserList(r)
	return Handled
}

func (h *Hub) handleUserHide(ctx context.Context, c *Client) Result {
	username := c.State().Username
	r, ok := h.roomOf(c)
	if !ok {
		return Handled
	}

	hidden := false
	r.WithWrite(func(d *types.Room) {
		if ru, ok := d.Users[username]; ok {
			ru.Hidden = !ru.Hidden
			hidden = ru.Hidden
		}
	})

	h.persistRooms(ctx, c)
	if hidden {
		_ = c.Send(protocol.Yellow("You are now hidden"))
	} else {
		_ = c.Send(protocol.Yellow("You are no longer hidden"))
	}
	h.syncRoomMembers(r)
	h.broadcastUserList(r)
	return Handled
}
