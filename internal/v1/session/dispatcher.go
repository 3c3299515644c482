package session

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/parlorchat/parlor/internal/v1/events"
	"github.com/parlorchat/parlor/internal/v1/metrics"
	"github.com/parlorchat/parlor/internal/v1/protocol"
	"github.com/parlorchat/parlor/internal/v1/room"
	"github.com/parlorchat/parlor/internal/v1/types"
)

// Result is a handler outcome: Handled keeps the session alive, Stop tells
// the transport to shut the connection down.
type Result int

const (
	Handled Result = iota
	Stop
)

// Fixed wrong-state advisories.
var (
	adviseMustLogin  = protocol.Yellow("Must log in to perform this command")
	adviseMustBeIn   = protocol.Yellow("Must be in a room to perform this command")
	adviseLeaveFirst = protocol.Yellow("Cannot use this command while in a room. Leave the room first.")
	adviseUnknown    = protocol.Red("Command not available, use /help to see available commands")
)

// HandleLine interprets one inbound line against the session state.
func (h *Hub) HandleLine(ctx context.Context, c *Client, raw string) Result {
	line := strings.TrimRight(raw, "\r\n")
	if strings.TrimSpace(line) == "" {
		return Handled
	}
	ctx = sessionCtx(ctx, c)

	// a pending y/n confirmation consumes the next line whole
	if p := c.takePending(); p != nil {
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return p.action()
		case "n", "no":
			_ = c.Send(protocol.Yellow("Operation cancelled"))
			return Handled
		default:
			c.setPending(p.prompt, p.action)
			_ = c.Send(p.prompt)
			return Handled
		}
	}

	cmd, err := protocol.Parse(line)
	if err != nil {
		_ = c.Send(protocol.Yellow(err.Error()))
		return Handled
	}

	verb := verbOf(cmd)
	metrics.CommandsTotal.WithLabelValues(verb).Inc()
	start := time.Now()
	defer func() {
		metrics.CommandDuration.WithLabelValues(verb).Observe(time.Since(start).Seconds())
	}()

	switch c.State().Phase {
	case PhaseGuest:
		return h.dispatchGuest(ctx, c, cmd)
	case PhaseLoggedIn:
		return h.dispatchLoggedIn(ctx, c, cmd)
	case PhaseInRoom:
		c.Touch()
		return h.dispatchInRoom(ctx, c, cmd)
	}
	return Handled
}

// verbOf labels a command for metrics.
func verbOf(cmd protocol.Command) string {
	if tok := cmd.Token(); tok != "" {
		return tok
	}
	switch cmd.(type) {
	case protocol.Chat:
		return "chat"
	case protocol.Enc:
		return "enc"
	case protocol.Help:
		return "help"
	case protocol.Ping:
		return "ping"
	case protocol.Quit:
		return "quit"
	case protocol.Leave:
		return "leave"
	case protocol.Status:
		return "status"
	case protocol.Ignore:
		return "ignore"
	case protocol.Pubkey:
		return "pubkey"
	case protocol.AccountRegister, protocol.AccountLogin, protocol.AccountLogout,
		protocol.AccountEditUsername, protocol.AccountEditPassword,
		protocol.AccountImport, protocol.AccountExport, protocol.AccountDelete,
		protocol.AccountInfo:
		return "account"
	case protocol.RoomList, protocol.RoomCreate, protocol.RoomJoin,
		protocol.RoomImport, protocol.RoomDelete:
		return "room"
	default:
		return "unknown"
	}
}

func (h *Hub) dispatchGuest(ctx context.Context, c *Client, cmd protocol.Command) Result {
	switch cmd := cmd.(type) {
	case protocol.Help:
		_ = c.Send(protocol.HelpGuest())
	case protocol.Ping:
		_ = c.Send("/PONG " + cmd.Payload)
	case protocol.Quit:
		return Stop
	case protocol.AccountRegister:
		return h.handleRegister(ctx, c, cmd)
	case protocol.AccountLogin:
		return h.handleLogin(ctx, c, cmd)
	case protocol.Unknown:
		_ = c.Send(adviseUnknown)
	default:
		_ = c.Send(adviseMustLogin)
	}
	return Handled
}

func (h *Hub) dispatchLoggedIn(ctx context.Context, c *Client, cmd protocol.Command) Result {
	switch cmd := cmd.(type) {
	case protocol.Help:
		_ = c.Send(protocol.HelpLoggedIn())
	case protocol.Ping:
		_ = c.Send("/PONG " + cmd.Payload)
	case protocol.Quit:
		return Stop
	case protocol.AccountLogout:
		return h.handleLogout(ctx, c)
	case protocol.AccountEditUsername:
		return h.handleEditUsername(ctx, c, cmd)
	case protocol.AccountEditPassword:
		return h.handleEditPassword(ctx, c, cmd)
	case protocol.AccountImport:
		return h.handleAccountImport(ctx, c, cmd)
	case protocol.AccountExport:
		return h.handleAccountExport(ctx, c, cmd)
	case protocol.AccountDelete:
		return h.handleAccountDelete(ctx, c, cmd)
	case protocol.AccountInfo:
		st := c.State()
		_ = c.Send(protocol.Green("Currently logged in as: " + st.Username + " (not in a room)"))
	case protocol.Ignore:
		return h.handleIgnore(ctx, c, cmd)
	case protocol.Pubkey:
		return h.handlePubkey(ctx, c, cmd)
	case protocol.RoomList:
		return h.handleRoomList(ctx, c)
	case protocol.RoomCreate:
		return h.handleRoomCreate(ctx, c, cmd)
	case protocol.RoomJoin:
		return h.handleRoomJoin(ctx, c, cmd)
	case protocol.RoomImport:
		return h.handleRoomImport(ctx, c, cmd)
	case protocol.RoomDelete:
		return h.handleRoomDelete(ctx, c, cmd)
	case protocol.Unknown, protocol.AccountRegister, protocol.AccountLogin:
		_ = c.Send(adviseUnknown)
	default:
		_ = c.Send(adviseMustBeIn)
	}
	return Handled
}

func (h *Hub) dispatchInRoom(ctx context.Context, c *Client, cmd protocol.Command) Result {
	// commands outside the always-available set pass the permission engine
	if tok := cmd.Token(); tok != "" {
		if !h.permitted(c, tok) {
			_ = c.Send(protocol.Red("You don't have permission to use /" + strings.ReplaceAll(tok, ".", " ")))
			return Handled
		}
	}

	switch cmd := cmd.(type) {
	case protocol.Help:
		return h.handleRoomHelp(ctx, c)
	case protocol.Ping:
		_ = c.Send("/PONG " + cmd.Payload)
	case protocol.Quit:
		return Stop
	case protocol.Leave:
		return h.handleLeave(ctx, c)
	case protocol.Status:
		return h.handleStatus(ctx, c)
	case protocol.Ignore:
		return h.handleIgnore(ctx, c, cmd)
	case protocol.Chat:
		return h.handleChat(ctx, c, cmd)
	case protocol.Enc:
		return h.handleEnc(ctx, c, cmd)

	case protocol.Afk:
		return h.handleAfk(ctx, c)
	case protocol.Seen:
		return h.handleSeen(ctx, c, cmd)
	case protocol.DirectMessage:
		return h.handleDirectMessage(ctx, c, cmd)
	case protocol.MeAction:
		return h.handleMe(ctx, c, cmd)
	case protocol.Announce:
		return h.handleAnnounce(ctx, c, cmd)

	case protocol.UserList:
		return h.handleUserList(ctx, c)
	case protocol.UserRename:
		return h.handleUserRename(ctx, c, cmd)
	case protocol.UserRecolor:
		return h.handleUserRecolor(ctx, c, cmd)
	case protocol.UserHide:
		return h.handleUserHide(ctx, c)

	case protocol.ModInfo:
		return h.handleModInfo(ctx, c)
	case protocol.Kick:
		return h.handleKick(ctx, c, cmd)
	case protocol.Ban:
		return h.handleBan(ctx, c, cmd)
	case protocol.Unban:
		return h.handleUnban(ctx, c, cmd)
	case protocol.Mute:
		return h.handleMute(ctx, c, cmd)
	case protocol.Unmute:
		return h.handleUnmute(ctx, c, cmd)

	case protocol.SuperUsers:
		return h.handleSuperUsers(ctx, c)
	case protocol.SuperRename:
		return h.handleSuperRename(ctx, c, cmd)
	case protocol.SuperExport:
		return h.handleSuperExport(ctx, c, cmd)
	case protocol.SuperWhitelist:
		return h.handleSuperWhitelist(ctx, c, cmd)
	case protocol.SuperLimit:
		return h.handleSuperLimit(ctx, c, cmd)
	case protocol.SuperRolesList:
		return h.handleRolesList(ctx, c)
	case protocol.SuperRolesAdd:
		return h.handleRolesAdd(ctx, c, cmd)
	case protocol.SuperRolesRevoke:
		return h.handleRolesRevoke(ctx, c, cmd)
	case protocol.SuperRolesAssign:
		return h.handleRolesAssign(ctx, c, cmd)
	case protocol.SuperRolesRecolor:
		return h.handleRolesRecolor(ctx, c, cmd)

	case protocol.Unknown:
		_ = c.Send(adviseUnknown)
	default:
		// lobby-only commands: account, room, pubkey
		_ = c.Send(adviseLeaveFirst)
	}
	return Handled
}

// permitted checks the caller's room role against the token.
func (h *Hub) permitted(c *Client, token string) bool {
	st := c.State()
	r, ok := h.registry.Get(st.Room)
	if !ok {
		return false
	}
	allowed := false
	r.WithRead(func(d *types.Room) {
		if ru, ok := d.Users[st.Username]; ok {
			allowed = room.Allow(ru.Role, token, d.Roles)
		}
	})
	return allowed
}

// handleRoomHelp renders the in-room help from the caller's grants.
func (h *Hub) handleRoomHelp(ctx context.Context, c *Client) Result {
	st := c.State()
	r, ok := h.roomOf(c)
	if !ok {
		return Handled
	}
	var granted []string
	r.WithRead(func(d *types.Room) {
		if ru, ok := d.Users[st.Username]; ok {
			granted = room.GrantedTokens(ru.Role, d.Roles)
		}
	})
	_ = c.Send(protocol.HelpInRoom(granted))
	return Handled
}

// handleStatus reports the caller's room, role, and the online count.
func (h *Hub) handleStatus(ctx context.Context, c *Client) Result {
	st := c.State()
	r, ok := h.roomOf(c)
	if !ok {
		return Handled
	}
	var role types.Role
	online := 0
	r.WithRead(func(d *types.Room) {
		if ru, ok := d.Users[st.Username]; ok {
			role = ru.Role
		}
		online = len(d.OnlineUsers)
	})
	_ = c.Send(protocol.Cyan(
		"Room: " + st.Room + " | Role: " + string(role) + " | Online: " + strconv.Itoa(online)))
	return Handled
}

// handleLeave returns the session to the lobby.
func (h *Hub) handleLeave(ctx context.Context, c *Client) Result {
	st := c.State()
	r, ok := h.roomOf(c)
	if !ok {
		c.ToLoggedIn(st.Username)
		_ = c.Send("/LOBBY_STATE")
		return Handled
	}
	h.leaveRoom(ctx, c, r, "")
	_ = c.Send(protocol.Green("Left room: " + st.Room))
	h.publish(ctx, events.Event{Type: events.TypeLeave, Room: st.Room, Actor: st.Username})
	return Handled
}
