package session

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/parlorchat/parlor/internal/v1/events"
	"github.com/parlorchat/parlor/internal/v1/logging"
	"github.com/parlorchat/parlor/internal/v1/metrics"
	"github.com/parlorchat/parlor/internal/v1/protocol"
	"github.com/parlorchat/parlor/internal/v1/room"
	"github.com/parlorchat/parlor/internal/v1/types"
)

// outranks reports whether the caller may moderate the target: strictly
// higher rank, with absent targets ranking as plain users.
func outranks(d *types.Room, caller, target string) bool {
	cu, ok := d.Users[caller]
	if !ok {
		return false
	}
	targetRank := types.RoleUser.Rank()
	if tu, ok := d.Users[target]; ok {
		targetRank = tu.Role.Rank()
	}
	return cu.Role.Rank() > targetRank
}

func (h *Hub) handleKick(ctx context.Context, c *Client, cmd protocol.Kick) Result {
	username := c.State().Username
	r, ok := h.roomOf(c)
	if !ok {
		return Handled
	}

	var refused string
	r.WithRead(func(d *types.Room) {
		if !d.IsOnline(cmd.Target) {
			refused = protocol.Yellow(cmd.Target + " is not in the room")
			return
		}
		if !outranks(d, username, cmd.Target) {
			refused = protocol.Yellow("Error: Cannot kick a user with equal or higher privilege")
		}
	})
	if refused != "" {
		_ = c.Send(refused)
		return Handled
	}

	notice := "You have been kicked from the room"
	if cmd.Reason != "" {
		notice += ": " + cmd.Reason
	}
	if target := h.findByUsername(cmd.Target); target != nil {
		h.leaveRoom(ctx, target, r, protocol.Red(notice))
	}
	_ = c.Send(protocol.Green("Kicked " + cmd.Target))

	metrics.ModerationActions.WithLabelValues("kick").Inc()
	logging.Info(ctx, "user kicked",
		zap.String("target", cmd.Target),
		zap.String("reason", cmd.Reason))
	h.publish(ctx, events.Event{Type: events.TypeKick, Room: r.Name(), Actor: username, Target: cmd.Target, Detail: cmd.Reason})
	return Handled
}

func (h *Hub) handleBan(ctx context.Context, c *Client, cmd protocol.Ban) Result {
	username := c.State().Username
	r, ok := h.roomOf(c)
	if !ok {
		return Handled
	}

	length, err := protocol.ParseDuration(cmd.Duration)
	if err != nil {
		_ = c.Send(protocol.Yellow("Error: Invalid duration '" + cmd.Duration + "'"))
		return Handled
	}

	now := time.Now().Unix()
	var refused string
	r.WithWrite(func(d *types.Room) {
		if !outranks(d, username, cmd.Target) {
			refused = protocol.Yellow("Error: Cannot ban a user with equal or higher privilege")
			return
		}
		ru, ok := d.Users[cmd.Target]
		if !ok {
			ru = types.NewRoomUser(types.RoleUser)
			d.Users[cmd.Target] = ru
		}
		room.ApplyBan(ru, now, length, cmd.Reason)
		d.RemoveOnline(cmd.Target)
		ru.LastSeen = now
	})
	if refused != "" {
		_ = c.Send(refused)
		return Handled
	}

	notice := "You have been banned from the room (" + protocol.FormatDuration(length) + ")"
	if cmd.Reason != "" {
		notice += ": " + cmd.Reason
	}
	if target := h.findByUsername(cmd.Target); target != nil && target.State().Room == r.Name() {
		target.ToLoggedIn(cmd.Target)
		_ = target.Send(protocol.Red(notice))
		_ = target.Send("/LOBBY_STATE")
	}

	h.persistRooms(ctx, c)
	h.syncRoomMembers(r)
	h.broadcastUserList(r)
	_ = c.Send(protocol.Green("Banned " + cmd.Target + " (" + protocol.FormatDuration(length) + ")"))

	metrics.ModerationActions.WithLabelValues("ban").Inc()
	logging.Info(ctx, "user banned",
		zap.String("target", cmd.Target),
		zap.Uint64("length_seconds", length),
		zap.String("reason", cmd.Reason))
	h.publish(ctx, events.Event{Type: events.TypeBan, Room: r.Name(), Actor: username, Target: cmd.Target, Detail: cmd.Reason})
	return Handled
}

func (h *Hub) handleUnban(ctx context.Context, c *Client, cmd protocol.Unban) Result {
	r, ok := h.roomOf(c)
	if !ok {
		return Handled
	}

	changed := false
	r.WithWrite(func(d *types.Room) {
		if ru, ok := d.Users[cmd.Target]; ok && ru.Banned {
			room.ClearBan(ru)
			changed = true
		}
	})
	if !changed {
		_ = c.Send(protocol.Yellow(cmd.Target + " is not currently banned"))
		return Handled
	}

	h.persistRooms(ctx, c)
	_ = c.Send(protocol.Green("Unbanned " + cmd.Target))
	metrics.ModerationActions.WithLabelValues("unban").Inc()
	h.publish(ctx, events.Event{Type: events.TypeUnban, Room: r.Name(), Actor: c.State().Username, Target: cmd.Target})
	return Handled
}

func (h *Hub) handleMute(ctx context.Context, c *Client, cmd protocol.Mute) Result {
	username := c.State().Username
	r, ok := h.roomOf(c)
	if !ok {
		return Handled
	}

	length, err := protocol.ParseDuration(cmd.Duration)
	if err != nil {
		_ = c.Send(protocol.Yellow("Error: Invalid duration '" + cmd.Duration + "'"))
		return Handled
	}

	now := time.Now().Unix()
	var refused string
	r.WithWrite(func(d *types.Room) {
		if !outranks(d, username, cmd.Target) {
			refused = protocol.Yellow("Error: Cannot mute a user with equal or higher privilege")
			return
		}
		ru, ok := d.Users[cmd.Target]
		if !ok {
			ru = types.NewRoomUser(types.RoleUser)
			d.Users[cmd.Target] = ru
		}
		room.ApplyMute(ru, now, length, cmd.Reason)
	})
	if refused != "" {
		_ = c.Send(refused)
		return Handled
	}

	h.persistRooms(ctx, c)

	notice := "You have been muted (" + protocol.FormatDuration(length) + ")"
	if cmd.Reason != "" {
		notice += ": " + cmd.Reason
	}
	if target := h.findByUsername(cmd.Target); target != nil && target.State().Room == r.Name() {
		_ = target.Send(protocol.Red(notice))
	}
	_ = c.Send(protocol.Green("Muted " + cmd.Target + " (" + protocol.FormatDuration(length) + ")"))

	metrics.ModerationActions.WithLabelValues("mute").Inc()
	logging.Info(ctx, "user muted",
		zap.String("target", cmd.Target),
		zap.Uint64("length_seconds", length),
		zap.String("reason", cmd.Reason))
	h.publish(ctx, events.Event{Type: events.TypeMute, Room: r.Name(), Actor: username, Target: cmd.Target, Detail: cmd.Reason})
	return Handled
}

func (h *Hub) handleUnmute(ctx context.Context, c *Client, cmd protocol.Unmute) Result {
	r, ok := h.roomOf(c)
	if !ok {
		return Handled
	}

	changed := false
	r.WithWrite(func(d *types.Room) {
		if ru, ok := d.Users[cmd.Target]; ok && ru.Muted {
			room.ClearMute(ru)
			changed = true
		}
	})
	if !changed {
		_ = c.Send(protocol.Yellow(cmd.Target + " is not currently muted"))
		return Handled
	}

	h.persistRooms(ctx, c)
	_ = c.Send(protocol.Green("Unmuted " + cmd.Target))
	metrics.ModerationActions.WithLabelValues("unmute").Inc()
	h.publish(ctx, events.Event{Type: events.TypeUnmute, Room: r.Name(), Actor: c.State().Username, Target: cmd.Target})
	return Handled
}

// handleModInfo expires stale bans and mutes, persists if anything cleared,
// and lists the remainder.
func (h *Hub) handleModInfo(ctx context.Context, c *Client) Result {
	r, ok := h.roomOf(c)
	if !ok {
		return Handled
	}
	now := time.Now().Unix()

	type entry struct {
		name      string
		remaining uint64
		reason    string
	}
	var banned, muted []entry
	changed := false
	r.WithWrite(func(d *types.Room) {
		for name, ru := range d.Users {
			if room.ExpireBan(ru, now) || room.ExpireMute(ru, now) {
				changed = true
			}
			if ru.Banned {
				banned = append(banned, entry{name, room.BanRemaining(ru, now), ru.BanReason})
			}
			if ru.Muted {
				muted = append(muted, entry{name, room.MuteRemaining(ru, now), ru.MuteReason})
			}
		}
	})
	if changed {
		h.persistRooms(ctx, c)
	}

	render := func(list []entry) []string {
		if len(list) == 0 {
			return []string{"  None"}
		}
		var lines []string
		for _, e := range list {
			line := "  > " + e.name + " (" + protocol.FormatDuration(e.remaining) + " left)"
			if e.remaining == 0 {
				line = "  > " + e.name + " (PERMANENT)"
			}
			if e.reason != "" {
				line += " - " + e.reason
			}
			lines = append(lines, line)
		}
		return lines
	}

	var out []string
	out = append(out, "- Banned users -")
	out = append(out, render(banned)...)
	out = append(out, "- Muted users -")
	out = append(out, render(muted)...)
	_ = c.Send(protocol.Cyan(strings.Join(out, "\n")))
	return Handled
}
