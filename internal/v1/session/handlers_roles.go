package session

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/parlorchat/parlor/internal/v1/events"
	"github.com/parlorchat/parlor/internal/v1/logging"
	"github.com/parlorchat/parlor/internal/v1/metrics"
	"github.com/parlorchat/parlor/internal/v1/protocol"
	"github.com/parlorchat/parlor/internal/v1/room"
	"github.com/parlorchat/parlor/internal/v1/types"
)

func (h *Hub) handleRolesList(ctx context.Context, c *Client) Result {
	r, ok := h.roomOf(c)
	if !ok {
		return Handled
	}

	var modGrants, userGrants []string
	r.WithRead(func(d *types.Room) {
		modGrants = append(modGrants, d.Roles.Moderator...)
		userGrants = append(userGrants, d.Roles.User...)
	})

	granted := func(grants []string, token string) string {
		for _, g := range grants {
			if protocol.GrantMatches(g, token) {
				return "yes"
			}
		}
		return "no"
	}

	rows := []string{fmt.Sprintf("%-22s %-10s %s", "Command", "Moderator", "User")}
	for _, token := range protocol.CommandOrder() {
		rows = append(rows, fmt.Sprintf("%-22s %-10s %s",
			"/"+strings.ReplaceAll(token, ".", " "),
			granted(modGrants, token),
			granted(userGrants, token)))
	}
	_ = c.Send(protocol.Cyan(strings.Join(rows, "\n")))
	return Handled
}

// grantListFor resolves which role grant list an add/revoke targets. Only
// moderator and user carry editable lists; owner and admin hold everything.
func grantListFor(d *types.Room, role types.Role) *[]string {
	switch role {
	case types.RoleModerator:
		return &d.Roles.Moderator
	case types.RoleUser:
		return &d.Roles.User
	}
	return nil
}

func validateGrantTokens(tokens []string) (valid []string, unknown []string) {
	for _, t := range tokens {
		t = strings.ReplaceAll(strings.TrimPrefix(t, "/"), " ", ".")
		if protocol.Grantable(t) {
			valid = append(valid, t)
		} else {
			unknown = append(unknown, t)
		}
	}
	return valid, unknown
}

func (h *Hub) handleRolesAdd(ctx context.Context, c *Client, cmd protocol.SuperRolesAdd) Result {
	r, ok := h.roomOf(c)
	if !ok {
		return Handled
	}

	role, ok := types.NormalizeRole(cmd.Role)
	if !ok || (role != types.RoleModerator && role != types.RoleUser) {
		_ = c.Send(protocol.Yellow("Error: Unknown role '" + cmd.Role + "'"))
		return Handled
	}
	tokens, unknown := validateGrantTokens(cmd.Tokens)
	if len(unknown) > 0 {
		_ = c.Send(protocol.Yellow("Error: Unknown commands: " + strings.Join(unknown, ", ")))
		return Handled
	}

	var added []string
	r.WithWrite(func(d *types.Room) {
		list := grantListFor(d, role)
		for _, t := range tokens {
			exists := false
			for _, g := range *list {
				if g == t {
					exists = true
					break
				}
			}
			if !exists {
				*list = append(*list, t)
				added = append(added, t)
			}
		}
	})
	if len(added) == 0 {
		_ = c.Send(protocol.Yellow("No changes made"))
		return Handled
	}

	h.persistRooms(ctx, c)
	_ = c.Send(protocol.Green("Commands added to " + string(role) + ": " + strings.Join(added, ", ")))
	h.syncRoomCommands(r)
	return Handled
}

func (h *Hub) handleRolesRevoke(ctx context.Context, c *Client, cmd protocol.SuperRolesRevoke) Result {
	r, ok := h.roomOf(c)
	if !ok {
		return Handled
	}

	role, ok := types.NormalizeRole(cmd.Role)
	if !ok || (role != types.RoleModerator && role != types.RoleUser) {
		_ = c.Send(protocol.Yellow("Error: Unknown role '" + cmd.Role + "'"))
		return Handled
	}
	tokens, unknown := validateGrantTokens(cmd.Tokens)
	if len(unknown) > 0 {
		_ = c.Send(protocol.Yellow("Error: Unknown commands: " + strings.Join(unknown, ", ")))
		return Handled
	}

	var revoked []string
	r.WithWrite(func(d *types.Room) {
		list := grantListFor(d, role)
		for _, t := range tokens {
			for i, g := range *list {
				if g == t {
					*list = append((*list)[:i], (*list)[i+1:]...)
					revoked = append(revoked, t)
					break
				}
			}
		}
	})
	if len(revoked) == 0 {
		_ = c.Send(protocol.Yellow("No changes made"))
		return Handled
	}

	h.persistRooms(ctx, c)
	_ = c.Send(protocol.Green("Commands revoked from " + string(role) + ": " + strings.Join(revoked, ", ")))
	h.syncRoomCommands(r)
	return Handled
}

func (h *Hub) handleRolesAssign(ctx context.Context, c *Client, cmd protocol.SuperRolesAssign) Result {
	username := c.State().Username
	r, ok := h.roomOf(c)
	if !ok {
		return Handled
	}

	role, ok := types.NormalizeRole(cmd.Role)
	if !ok {
		_ = c.Send(protocol.Yellow("Error: Unknown role '" + cmd.Role + "'"))
		return Handled
	}

	if role == types.RoleOwner {
		return h.assignOwner(ctx, c, r, cmd.Users)
	}

	var callerRank int
	r.WithRead(func(d *types.Room) {
		if ru, ok := d.Users[username]; ok {
			callerRank = ru.Role.Rank()
		}
	})
	// only the owner can hand out a rank equal to or above the caller's
	if role.Rank() >= callerRank && callerRank < types.RoleOwner.Rank() {
		_ = c.Send(protocol.Red("You don't have permission to assign that role"))
		return Handled
	}

	var assigned, skipped, missing []string
	var ownerBlocked []string
	r.WithWrite(func(d *types.Room) {
		for _, u := range cmd.Users {
			ru, ok := d.Users[u]
			if !ok {
				missing = append(missing, u)
				continue
			}
			if ru.Role == types.RoleOwner {
				ownerBlocked = append(ownerBlocked, u)
				continue
			}
			if ru.Role == role {
				skipped = append(skipped, u)
				continue
			}
			ru.Role = role
			assigned = append(assigned, u)
		}
	})

	if len(assigned) > 0 {
		h.persistRooms(ctx, c)
		for _, u := range assigned {
			if member := h.findByUsername(u); member != nil && member.State().Room == r.Name() {
				_ = member.Send("/ROLE " + string(role))
				h.syncUserCommands(member, r)
			}
		}
		_ = c.Send(protocol.Green("Assigned " + string(role) + " to: " + strings.Join(assigned, ", ")))
		h.syncRoomMembers(r)
		h.broadcastUserList(r)
		metrics.ModerationActions.WithLabelValues("role_assign").Inc()
	}
	if len(skipped) > 0 {
		_ = c.Send(protocol.Yellow("Already " + string(role) + ": " + strings.Join(skipped, ", ")))
	}
	if len(ownerBlocked) > 0 {
		_ = c.Send(protocol.Yellow("Cannot change the role of the room owner"))
	}
	for _, u := range missing {
		_ = c.Send(protocol.Yellow("User '" + u + "' not found in this room"))
	}
	if len(assigned) == 0 && len(skipped) == 0 && len(ownerBlocked) == 0 && len(missing) == 0 {
		_ = c.Send(protocol.Yellow("No changes made"))
	}
	return Handled
}

// assignOwner transfers room ownership. A single target, an owning caller,
// and an explicit confirmation are all required; the outgoing owner drops to
// admin unless they transferred to themselves.
func (h *Hub) assignOwner(ctx context.Context, c *Client, r *room.Room, users []string) Result {
	username := c.State().Username
	if len(users) != 1 {
		_ = c.Send(protocol.Yellow("Error: Ownership can only be transferred to a single user"))
		return Handled
	}
	target := users[0]

	var callerIsOwner, targetKnown bool
	r.WithRead(func(d *types.Room) {
		ru := d.Users[username]
		callerIsOwner = ru != nil && ru.Role == types.RoleOwner
		_, targetKnown = d.Users[target]
	})
	if !callerIsOwner {
		_ = c.Send(protocol.Red("Only the room owner can transfer ownership"))
		return Handled
	}
	if !targetKnown {
		_ = c.Send(protocol.Yellow("User '" + target + "' not found in this room"))
		return Handled
	}

	roomName := r.Name()
	transfer := func() Result {
		// caller may have left or lost ownership while the prompt was pending
		var done bool
		r.WithWrite(func(d *types.Room) {
			caller := d.Users[username]
			tu := d.Users[target]
			if caller == nil || tu == nil || caller.Role != types.RoleOwner {
				return
			}
			tu.Role = types.RoleOwner
			if target != username {
				caller.Role = types.RoleAdmin
			}
			done = true
		})
		if !done {
			_ = c.Send(protocol.Yellow("Operation cancelled"))
			return Handled
		}

		h.persistRooms(ctx, c)
		if target != username {
			_ = c.Send("/ROLE " + string(types.RoleAdmin))
			h.syncUserCommands(c, r)
		}
		if member := h.findByUsername(target); member != nil && member.State().Room == roomName {
			_ = member.Send("/ROLE " + string(types.RoleOwner))
			_ = member.Send(protocol.Green("You are now the owner of '" + roomName + "'"))
			h.syncUserCommands(member, r)
		}
		_ = c.Send(protocol.Green("Ownership of '" + roomName + "' transferred to " + target))
		h.syncRoomMembers(r)
		h.broadcastUserList(r)

		metrics.ModerationActions.WithLabelValues("owner_transfer").Inc()
		logging.Info(ctx, "room ownership transferred",
			zap.String("room", roomName),
			zap.String("from", username),
			zap.String("to", target))
		h.publish(ctx, events.Event{Type: events.TypeOwnerTransfer, Room: roomName, Actor: username, Target: target})
		return Handled
	}

	prompt := protocol.Red("Transfer ownership of '" + roomName + "' to " + target + "? This cannot be undone. (y/n)")
	c.setPending(prompt, transfer)
	_ = c.Send(prompt)
	return Handled
}

func (h *Hub) handleRolesRecolor(ctx context.Context, c *Client, cmd protocol.SuperRolesRecolor) Result {
	r, ok := h.roomOf(c)
	if !ok {
		return Handled
	}

	role, ok := types.NormalizeRole(cmd.Role)
	if !ok {
		_ = c.Send(protocol.Yellow("Error: Unknown role '" + cmd.Role + "'"))
		return Handled
	}
	if !protocol.ValidHexColor(cmd.Color) {
		_ = c.Send(protocol.Yellow("Error: Invalid color '" + cmd.Color + "', expected 6-digit hex"))
		return Handled
	}

	color := protocol.NormalizeHexColor(cmd.Color)
	r.WithWrite(func(d *types.Room) {
		if d.Roles.Colors == nil {
			d.Roles.Colors = map[string]string{}
		}
		d.Roles.Colors[string(role)] = color
	})

	h.persistRooms(ctx, c)
	_ = c.Send(protocol.Green("Color for " + string(role) + " set to: " + color))
	h.syncRoomMembers(r)
	h.broadcastUserList(r)
	return Handled
}
