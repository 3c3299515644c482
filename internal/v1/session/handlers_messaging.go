package session

import (
	"context"
	"time"

	"github.com/parlorchat/parlor/internal/v1/protocol"
	"github.com/parlorchat/parlor/internal/v1/room"
	"github.com/parlorchat/parlor/internal/v1/types"
)

// checkMute gates every message-emitting command. Expired mutes clear and
// persist; active mutes notify the caller and block.
func (h *Hub) checkMute(ctx context.Context, c *Client, r *room.Room) bool {
	username := c.State().Username
	now := time.Now().Unix()

	var (
		blocked    bool
		cleared    bool
		remaining  uint64
		muteReason string
	)
	r.WithWrite(func(d *types.Room) {
		ru, ok := d.Users[username]
		if !ok || !ru.Muted {
			return
		}
		if room.ExpireMute(ru, now) {
			cleared = true
			return
		}
		blocked = true
		remaining = room.MuteRemaining(ru, now)
		muteReason = ru.MuteReason
	})

	if cleared {
		h.persistRooms(ctx, c)
	}
	if blocked {
		msg := "You are muted"
		if remaining == 0 {
			msg += " (PERMANENT)"
		} else {
			msg += " (" + protocol.FormatDuration(remaining) + " left)"
		}
		if muteReason != "" {
			msg += " - " + muteReason
		}
		_ = c.Send(protocol.Red(msg))
		return false
	}
	return true
}

// takeChatSlot applies the room message rate limit; the timestamp is
// recorded at acceptance, after the mute check.
func (h *Hub) takeChatSlot(c *Client, r *room.Room) bool {
	var msgRate uint8
	r.WithRead(func(d *types.Room) {
		msgRate = d.MsgRate
	})
	if !c.TakeMessageSlot(msgRate) {
		_ = c.Send(protocol.Yellow("Message rate limit reached, please wait"))
		return false
	}
	return true
}

// chatPrefix renders the sender's role tag and colored display name.
func chatPrefix(username string, r *room.Room) string {
	var prefix string
	r.WithRead(func(d *types.Room) {
		ru := d.Users[username]
		if ru == nil {
			prefix = username
			return
		}
		tag := protocol.Colored(d.RoleColor(ru.Role), "["+ru.Role.Display()+"]")
		prefix = tag + " " + coloredName(username, ru, d)
	})
	return prefix
}

func (h *Hub) handleChat(ctx context.Context, c *Client, cmd protocol.Chat) Result {
	username := c.State().Username
	r, ok := h.roomOf(c)
	if !ok {
		return Handled
	}
	if !h.checkMute(ctx, c, r) {
		return Handled
	}
	if !h.takeChatSlot(c, r) {
		return Handled
	}
	h.broadcastMessage(r, username, chatPrefix(username, r)+": "+cmd.Text, true, false)
	return Handled
}

// handleEnc relays an opaque encrypted payload to room peers. The sender
// already holds the plaintext, so the relay excludes them.
func (h *Hub) handleEnc(ctx context.Context, c *Client, cmd protocol.Enc) Result {
	username := c.State().Username
	r, ok := h.roomOf(c)
	if !ok {
		return Handled
	}
	if !h.checkMute(ctx, c, r) {
		return Handled
	}
	if !h.takeChatSlot(c, r) {
		return Handled
	}
	h.broadcastMessage(r, username, cmd.Raw, false, false)
	return Handled
}

func (h *Hub) handleAfk(ctx context.Context, c *Client) Result {
	r, ok := h.roomOf(c)
	if !ok {
		return Handled
	}
	c.SetAFK()
	_ = c.Send(protocol.Yellow("You are now set as AFK"))
	h.broadcastUserList(r)
	return Handled
}

func (h *Hub) handleSeen(ctx context.Context, c *Client, cmd protocol.Seen) Result {
	r, ok := h.roomOf(c)
	if !ok {
		return Handled
	}
	now := time.Now().Unix()

	var (
		online   bool
		known    bool
		lastSeen int64
	)
	r.WithRead(func(d *types.Room) {
		online = d.IsOnline(cmd.User)
		if ru, ok := d.Users[cmd.User]; ok {
			known = true
			lastSeen = ru.LastSeen
		}
	})

	switch {
	case online:
		_ = c.Send(protocol.Green(cmd.User + " is online now"))
	case known:
		ago := uint64(0)
		if now > lastSeen {
			ago = uint64(now - lastSeen)
		}
		_ = c.Send(protocol.Green(cmd.User + " was last seen " + protocol.FormatDuration(ago) + " ago"))
	default:
		_ = c.Send(protocol.Yellow(cmd.User + " has never joined this room"))
	}
	return Handled
}

func (h *Hub) handleDirectMessage(ctx context.Context, c *Client, cmd protocol.DirectMessage) Result {
	username := c.State().Username
	r, ok := h.roomOf(c)
	if !ok {
		return Handled
	}
	if !h.checkMute(ctx, c, r) {
		return Handled
	}

	var online bool
	r.WithRead(func(d *types.Room) {
		online = d.IsOnline(cmd.To)
	})
	if !online {
		_ = c.Send(protocol.Yellow(cmd.To + " is not online"))
		return Handled
	}
	if c.Ignoring(cmd.To) {
		_ = c.Send(protocol.Yellow("Cannot send message to " + cmd.To + ", you have them ignored"))
		return Handled
	}

	// a recipient who ignores the sender silently "receives" the message
	recipient := h.findByUsername(cmd.To)
	if recipient != nil && !recipient.Ignoring(username) {
		_ = recipient.Send(protocol.Cyan(protocol.Italic("(Private) " + username + ": " + cmd.Text)))
	}
	_ = c.Send(protocol.Cyan(protocol.Italic("(Private) to " + cmd.To + ": " + cmd.Text)))
	return Handled
}

func (h *Hub) handleMe(ctx context.Context, c *Client, cmd protocol.MeAction) Result {
	username := c.State().Username
	r, ok := h.roomOf(c)
	if !ok {
		return Handled
	}
	if !h.checkMute(ctx, c, r) {
		return Handled
	}
	h.broadcastMessage(r, username, protocol.BrightGreen("* "+username+" "+cmd.Text), true, false)
	return Handled
}

func (h *Hub) handleAnnounce(ctx context.Context, c *Client, cmd protocol.Announce) Result {
	username := c.State().Username
	r, ok := h.roomOf(c)
	if !ok {
		return Handled
	}
	if !h.checkMute(ctx, c, r) {
		return Handled
	}
	h.broadcastMessage(r, username, protocol.BrightYellow("Announcement: "+cmd.Text), true, true)
	return Handled
}
