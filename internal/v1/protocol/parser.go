package protocol

import (
	"strings"
)

// Command is a parsed client line. Token returns the permission token checked
// by the in-room dispatcher; the empty string marks commands that bypass the
// permission engine.
type Command interface {
	Token() string
}

// SyntaxError carries the usage line shown to the client in yellow.
type SyntaxError struct {
	Usage string
}

func (e *SyntaxError) Error() string { return e.Usage }

func syntax(usage string) (Command, error) {
	return nil, &SyntaxError{Usage: "Usage: " + usage}
}

// Unrestricted commands.

type Help struct{}
type Ping struct{ Payload string }
type Quit struct{}
type Leave struct{}
type Status struct{}
type Pubkey struct{ Key string }
type Chat struct{ Text string }

// Enc is an opaque encrypted chat payload; Raw is the full line, relayed
// verbatim to room peers.
type Enc struct{ Raw string }

type Ignore struct {
	Action string // list|add|remove
	Users  []string
}

type AccountRegister struct{ Username, Password, Confirm string }
type AccountLogin struct{ Username, Password string }
type AccountLogout struct{}
type AccountEditUsername struct{ NewName string }
type AccountEditPassword struct{ Current, New string }
type AccountImport struct{ File string }
type AccountExport struct{ File string }
type AccountDelete struct{ Force bool }
type AccountInfo struct{}

type RoomList struct{}
type RoomCreate struct {
	Name      string
	Whitelist bool
}
type RoomJoin struct{ Name string }
type RoomImport struct{ File string }
type RoomDelete struct {
	Name  string
	Force bool
}

func (Help) Token() string                { return "" }
func (Ping) Token() string                { return "" }
func (Quit) Token() string                { return "" }
func (Leave) Token() string               { return "" }
func (Status) Token() string              { return "" }
func (Pubkey) Token() string              { return "" }
func (Chat) Token() string                { return "" }
func (Enc) Token() string                 { return "" }
func (Ignore) Token() string              { return "" }
func (AccountRegister) Token() string     { return "" }
func (AccountLogin) Token() string        { return "" }
func (AccountLogout) Token() string       { return "" }
func (AccountEditUsername) Token() string { return "" }
func (AccountEditPassword) Token() string { return "" }
func (AccountImport) Token() string       { return "" }
func (AccountExport) Token() string       { return "" }
func (AccountDelete) Token() string       { return "" }
func (AccountInfo) Token() string         { return "" }
func (RoomList) Token() string            { return "" }
func (RoomCreate) Token() string          { return "" }
func (RoomJoin) Token() string            { return "" }
func (RoomImport) Token() string          { return "" }
func (RoomDelete) Token() string          { return "" }

// Restricted commands.

type Afk struct{}
type Seen struct{ User string }
type DirectMessage struct{ To, Text string }
type MeAction struct{ Text string }
type Announce struct{ Text string }

func (Afk) Token() string           { return "afk" }
func (Seen) Token() string          { return "seen" }
func (DirectMessage) Token() string { return "msg" }
func (MeAction) Token() string      { return "me" }
func (Announce) Token() string      { return "announce" }

type UserList struct{}
type UserRename struct {
	Target  string // empty = self
	NewNick string // "*" or "reset" clears
}
type UserRecolor struct {
	Target string // empty = self
	Color  string // "*" or "reset" clears
}
type UserHide struct{}

func (UserList) Token() string    { return "user.list" }
func (UserRename) Token() string  { return "user.rename" }
func (UserRecolor) Token() string { return "user.recolor" }
func (UserHide) Token() string    { return "user.hide" }

type ModInfo struct{}
type Kick struct{ Target, Reason string }
type Ban struct{ Target, Duration, Reason string }
type Unban struct{ Target string }
type Mute struct{ Target, Duration, Reason string }
type Unmute struct{ Target string }

func (ModInfo) Token() string { return "mod.info" }
func (Kick) Token() string    { return "mod.kick" }
func (Ban) Token() string     { return "mod.ban" }
func (Unban) Token() string   { return "mod.unban" }
func (Mute) Token() string    { return "mod.mute" }
func (Unmute) Token() string  { return "mod.unmute" }

type SuperUsers struct{}
type SuperRename struct{ NewName string }
type SuperExport struct{ File string }
type SuperWhitelist struct {
	Action string // info|toggle|add|remove
	Users  []string
}
type SuperLimit struct {
	Action string // info|rate|session
	Value  string // "*" = unlimited
}
type SuperRolesList struct{}
type SuperRolesAdd struct {
	Role   string // moderator|user
	Tokens []string
}
type SuperRolesRevoke struct {
	Role   string
	Tokens []string
}
type SuperRolesAssign struct {
	Role  string
	Users []string
}
type SuperRolesRecolor struct{ Role, Color string }

func (SuperUsers) Token() string        { return "super.users" }
func (SuperRename) Token() string       { return "super.rename" }
func (SuperExport) Token() string       { return "super.export" }
func (s SuperWhitelist) Token() string  { return "super.whitelist." + s.Action }
func (s SuperLimit) Token() string      { return "super.limit." + s.Action }
func (SuperRolesList) Token() string    { return "super.roles.list" }
func (SuperRolesAdd) Token() string     { return "super.roles.add" }
func (SuperRolesRevoke) Token() string  { return "super.roles.revoke" }
func (SuperRolesAssign) Token() string  { return "super.roles.assign" }
func (SuperRolesRecolor) Token() string { return "super.roles.recolor" }

// Unknown is any slash command the parser does not recognize.
type Unknown struct{ Verb string }

func (Unknown) Token() string { return "" }

// Parse turns a raw client line into a typed command. Lines without a slash
// prefix parse as Chat; "/enc " lines are kept opaque. A *SyntaxError result
// carries the usage line for the client.
func Parse(line string) (Command, error) {
	if !strings.HasPrefix(line, "/") {
		return Chat{Text: line}, nil
	}
	if strings.HasPrefix(line, "/enc ") {
		return Enc{Raw: line}, nil
	}

	fields := strings.Fields(line)
	verb := strings.TrimPrefix(fields[0], "/")
	args := fields[1:]

	switch verb {
	case "help":
		return Help{}, nil
	case "ping":
		if len(args) != 1 {
			return syntax("/ping <ms>")
		}
		return Ping{Payload: args[0]}, nil
	case "quit":
		return Quit{}, nil
	case "leave":
		return Leave{}, nil
	case "status":
		return Status{}, nil
	case "pubkey":
		if len(args) != 1 {
			return syntax("/pubkey <base64-key>")
		}
		return Pubkey{Key: args[0]}, nil
	case "ignore":
		return parseIgnore(args)
	case "account":
		return parseAccount(args)
	case "room":
		return parseRoom(args)
	case "afk":
		return Afk{}, nil
	case "seen":
		if len(args) != 1 {
			return syntax("/seen <user>")
		}
		return Seen{User: args[0]}, nil
	case "msg":
		if len(args) < 2 {
			return syntax("/msg <user> <message>")
		}
		return DirectMessage{To: args[0], Text: strings.Join(args[1:], " ")}, nil
	case "me":
		if len(args) == 0 {
			return syntax("/me <action>")
		}
		return MeAction{Text: strings.Join(args, " ")}, nil
	case "announce":
		if len(args) == 0 {
			return syntax("/announce <message>")
		}
		return Announce{Text: strings.Join(args, " ")}, nil
	case "user":
		return parseUser(args)
	case "mod":
		return parseMod(args)
	case "super":
		return parseSuper(args)
	default:
		return Unknown{Verb: verb}, nil
	}
}

func parseIgnore(args []string) (Command, error) {
	usage := "/ignore list|add|remove <user...>"
	if len(args) == 0 {
		return syntax(usage)
	}
	switch args[0] {
	case "list":
		return Ignore{Action: "list"}, nil
	case "add", "remove":
		if len(args) < 2 {
			return syntax(usage)
		}
		return Ignore{Action: args[0], Users: args[1:]}, nil
	}
	return syntax(usage)
}

func parseAccount(args []string) (Command, error) {
	if len(args) == 0 {
		return AccountInfo{}, nil
	}
	switch args[0] {
	case "register":
		if len(args) != 4 {
			return syntax("/account register <user> <password> <confirm>")
		}
		return AccountRegister{Username: args[1], Password: args[2], Confirm: args[3]}, nil
	case "login":
		if len(args) != 3 {
			return syntax("/account login <user> <password>")
		}
		return AccountLogin{Username: args[1], Password: args[2]}, nil
	case "logout":
		return AccountLogout{}, nil
	case "edit":
		if len(args) >= 2 && args[1] == "username" {
			if len(args) != 3 {
				return syntax("/account edit username <new-name>")
			}
			return AccountEditUsername{NewName: args[2]}, nil
		}
		if len(args) >= 2 && args[1] == "password" {
			if len(args) != 4 {
				return syntax("/account edit password <current> <new>")
			}
			return AccountEditPassword{Current: args[2], New: args[3]}, nil
		}
		return syntax("/account edit username|password ...")
	case "import":
		if len(args) != 2 {
			return syntax("/account import <file>")
		}
		return AccountImport{File: args[1]}, nil
	case "export":
		if len(args) > 2 {
			return syntax("/account export [file]")
		}
		cmd := AccountExport{}
		if len(args) == 2 {
			cmd.File = args[1]
		}
		return cmd, nil
	case "delete":
		if len(args) == 2 && args[1] == "force" {
			return AccountDelete{Force: true}, nil
		}
		if len(args) != 1 {
			return syntax("/account delete [force]")
		}
		return AccountDelete{}, nil
	case "info":
		return AccountInfo{}, nil
	}
	return syntax("/account register|login|logout|edit|import|export|delete|info")
}

func parseRoom(args []string) (Command, error) {
	usage := "/room list|create|join|import|delete ..."
	if len(args) == 0 {
		return syntax(usage)
	}
	switch args[0] {
	case "list":
		return RoomList{}, nil
	case "create":
		if len(args) == 2 {
			return RoomCreate{Name: args[1]}, nil
		}
		if len(args) == 3 && args[2] == "whitelist" {
			return RoomCreate{Name: args[1], Whitelist: true}, nil
		}
		return syntax("/room create <name> [whitelist]")
	case "join":
		if len(args) != 2 {
			return syntax("/room join <name>")
		}
		return RoomJoin{Name: args[1]}, nil
	case "import":
		if len(args) != 2 {
			return syntax("/room import <file>")
		}
		return RoomImport{File: args[1]}, nil
	case "delete":
		if len(args) == 3 && args[2] == "force" {
			return RoomDelete{Name: args[1], Force: true}, nil
		}
		if len(args) != 2 {
			return syntax("/room delete <name> [force]")
		}
		return RoomDelete{Name: args[1]}, nil
	}
	return syntax(usage)
}

func parseUser(args []string) (Command, error) {
	usage := "/user list|rename|recolor|hide ..."
	if len(args) == 0 {
		return syntax(usage)
	}
	switch args[0] {
	case "list":
		return UserList{}, nil
	case "rename":
		if len(args) == 2 {
			return UserRename{NewNick: args[1]}, nil
		}
		if len(args) == 3 {
			return UserRename{Target: args[1], NewNick: args[2]}, nil
		}
		return syntax("/user rename [user] <nick|*>")
	case "recolor":
		if len(args) == 2 {
			return UserRecolor{Color: args[1]}, nil
		}
		if len(args) == 3 {
			return UserRecolor{Target: args[1], Color: args[2]}, nil
		}
		return syntax("/user recolor [user] <hex|*>")
	case "hide":
		return UserHide{}, nil
	}
	return syntax(usage)
}

func parseMod(args []string) (Command, error) {
	usage := "/mod info|kick|ban|unban|mute|unmute ..."
	if len(args) == 0 {
		return syntax(usage)
	}
	switch args[0] {
	case "info":
		return ModInfo{}, nil
	case "kick":
		if len(args) < 2 {
			return syntax("/mod kick <user> [reason]")
		}
		return Kick{Target: args[1], Reason: strings.Join(args[2:], " ")}, nil
	case "ban":
		if len(args) < 3 {
			return syntax("/mod ban <user> <duration|*> [reason]")
		}
		return Ban{Target: args[1], Duration: args[2], Reason: strings.Join(args[3:], " ")}, nil
	case "unban":
		if len(args) != 2 {
			return syntax("/mod unban <user>")
		}
		return Unban{Target: args[1]}, nil
	case "mute":
		if len(args) < 3 {
			return syntax("/mod mute <user> <duration|*> [reason]")
		}
		return Mute{Target: args[1], Duration: args[2], Reason: strings.Join(args[3:], " ")}, nil
	case "unmute":
		if len(args) != 2 {
			return syntax("/mod unmute <user>")
		}
		return Unmute{Target: args[1]}, nil
	}
	return syntax(usage)
}

func parseSuper(args []string) (Command, error) {
	usage := "/super users|rename|export|whitelist|limit|roles ..."
	if len(args) == 0 {
		return syntax(usage)
	}
	switch args[0] {
	case "users":
		return SuperUsers{}, nil
	case "rename":
		if len(args) != 2 {
			return syntax("/super rename <new-name>")
		}
		return SuperRename{NewName: args[1]}, nil
	case "export":
		if len(args) > 2 {
			return syntax("/super export [file]")
		}
		cmd := SuperExport{}
		if len(args) == 2 {
			cmd.File = args[1]
		}
		return cmd, nil
	case "whitelist":
		if len(args) == 1 {
			return SuperWhitelist{Action: "info"}, nil
		}
		switch args[1] {
		case "info":
			return SuperWhitelist{Action: "info"}, nil
		case "toggle":
			return SuperWhitelist{Action: "toggle"}, nil
		case "add", "remove":
			if len(args) < 3 {
				return syntax("/super whitelist add|remove <user...>")
			}
			return SuperWhitelist{Action: args[1], Users: args[2:]}, nil
		}
		return syntax("/super whitelist [info|toggle|add|remove]")
	case "limit":
		if len(args) == 1 {
			return SuperLimit{Action: "info"}, nil
		}
		switch args[1] {
		case "info":
			return SuperLimit{Action: "info"}, nil
		case "rate", "session":
			if len(args) != 3 {
				return syntax("/super limit rate|session <n|*>")
			}
			return SuperLimit{Action: args[1], Value: args[2]}, nil
		}
		return syntax("/super limit [info|rate|session]")
	case "roles":
		return parseSuperRoles(args[1:])
	}
	return syntax(usage)
}

func parseSuperRoles(args []string) (Command, error) {
	usage := "/super roles [list|add|revoke|assign|recolor]"
	if len(args) == 0 {
		return SuperRolesList{}, nil
	}
	switch args[0] {
	case "list":
		return SuperRolesList{}, nil
	case "add":
		if len(args) < 3 {
			return syntax("/super roles add <moderator|user> <command...>")
		}
		return SuperRolesAdd{Role: args[1], Tokens: args[2:]}, nil
	case "revoke":
		if len(args) < 3 {
			return syntax("/super roles revoke <moderator|user> <command...>")
		}
		return SuperRolesRevoke{Role: args[1], Tokens: args[2:]}, nil
	case "assign":
		if len(args) < 3 {
			return syntax("/super roles assign <role> <user...>")
		}
		return SuperRolesAssign{Role: args[1], Users: args[2:]}, nil
	case "recolor":
		if len(args) != 3 {
			return syntax("/super roles recolor <role> <hex>")
		}
		return SuperRolesRecolor{Role: args[1], Color: args[2]}, nil
	}
	return syntax(usage)
}
