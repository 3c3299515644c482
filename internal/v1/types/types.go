// Package types defines the persisted domain model: rooms, per-room user
// records, role grants, and accounts. JSON field names are part of the disk
// format and must stay stable.
package types

import "time"

// Role is a per-room membership role.
type Role string

const (
	RoleOwner     Role = "owner"
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleUser      Role = "user"
)

// Rank orders roles for privilege comparisons. Moderation against another
// user requires a strictly higher rank.
func (r Role) Rank() int {
	switch r {
	case RoleOwner:
		return 4
	case RoleAdmin:
		return 3
	case RoleModerator:
		return 2
	case RoleUser:
		return 1
	default:
		return 0
	}
}

// Display returns the capitalized role name for user-facing tables.
func (r Role) Display() string {
	switch r {
	case RoleOwner:
		return "Owner"
	case RoleAdmin:
		return "Admin"
	case RoleModerator:
		return "Moderator"
	case RoleUser:
		return "User"
	default:
		return string(r)
	}
}

// NormalizeRole maps user-typed role synonyms to a canonical Role.
func NormalizeRole(s string) (Role, bool) {
	switch s {
	case "user", "usr":
		return RoleUser, true
	case "moderator", "mod":
		return RoleModerator, true
	case "admin", "administrator":
		return RoleAdmin, true
	case "owner", "creator", "founder":
		return RoleOwner, true
	}
	return "", false
}

// RoomUser is the persisted per-room record for a user. Ban and mute lengths
// of 0 with the flag set mean permanent.
type RoomUser struct {
	Nick       string `json:"nick"`
	Color      string `json:"color"`
	Role       Role   `json:"role"`
	Hidden     bool   `json:"hidden"`
	LastSeen   int64  `json:"last_seen"`
	Banned     bool   `json:"banned"`
	BanStamp   int64  `json:"ban_stamp"`
	BanLength  uint64 `json:"ban_length"`
	BanReason  string `json:"ban_reason"`
	Muted      bool   `json:"muted"`
	MuteStamp  int64  `json:"mute_stamp"`
	MuteLength uint64 `json:"mute_length"`
	MuteReason string `json:"mute_reason"`
}

// NewRoomUser returns a fresh record with the given role.
func NewRoomUser(role Role) *RoomUser {
	return &RoomUser{Role: role}
}

// Roles holds the command grants and display colors for a room.
type Roles struct {
	Moderator []string          `json:"moderator"`
	User      []string          `json:"user"`
	Colors    map[string]string `json:"colors"`
}

// Room is the persisted room document. OnlineUsers is transient session
// state and never serialized.
type Room struct {
	WhitelistEnabled bool                 `json:"whitelist_enabled"`
	Whitelist        []string             `json:"whitelist"`
	MsgRate          uint8                `json:"msg_rate"`
	SessionTimeout   uint32               `json:"session_timeout"`
	Roles            Roles                `json:"roles"`
	Users            map[string]*RoomUser `json:"users"`
	OnlineUsers      []string             `json:"-"`
}

// NewRoom builds a room with the stock defaults; the creator becomes owner.
// With whitelist set, the whitelist starts enabled and seeded with the
// creator.
func NewRoom(creator string, whitelist bool) *Room {
	r := &Room{
		MsgRate:        10,
		SessionTimeout: 3600,
		Roles: Roles{
			Moderator: []string{"afk", "seen", "msg", "me", "super.users", "user", "mod"},
			User:      []string{"afk", "seen", "msg", "me", "user"},
			Colors: map[string]string{
				"owner":     "#FFD700",
				"admin":     "#FF3030",
				"moderator": "#0080FF",
				"user":      "FFFFFF",
			},
		},
		Users: map[string]*RoomUser{
			creator: {Role: RoleOwner, LastSeen: time.Now().Unix()},
		},
	}
	if whitelist {
		r.WhitelistEnabled = true
		r.Whitelist = []string{creator}
	}
	return r
}

// RoleColor returns the display color configured for a role.
func (r *Room) RoleColor(role Role) string {
	return r.Roles.Colors[string(role)]
}

// IsOnline reports whether the user is currently in the room.
func (r *Room) IsOnline(user string) bool {
	for _, u := range r.OnlineUsers {
		if u == user {
			return true
		}
	}
	return false
}

// AddOnline appends the user to the online list if absent.
func (r *Room) AddOnline(user string) {
	if !r.IsOnline(user) {
		r.OnlineUsers = append(r.OnlineUsers, user)
	}
}

// RemoveOnline drops the user from the online list.
func (r *Room) RemoveOnline(user string) {
	for i, u := range r.OnlineUsers {
		if u == user {
			r.OnlineUsers = append(r.OnlineUsers[:i], r.OnlineUsers[i+1:]...)
			return
		}
	}
}

// Whitelisted reports whether the user is on the whitelist.
func (r *Room) Whitelisted(user string) bool {
	for _, u := range r.Whitelist {
		if u == user {
			return true
		}
	}
	return false
}

// VisibleTo reports whether the room shows up in listings for the user.
// Whitelist-enabled rooms are visible to listed users and the owner only.
func (r *Room) VisibleTo(user string) bool {
	if !r.WhitelistEnabled {
		return true
	}
	if r.Whitelisted(user) {
		return true
	}
	ru, ok := r.Users[user]
	return ok && ru.Role == RoleOwner
}

// Owner returns the owning username, or "" when the room has none.
func (r *Room) Owner() string {
	for name, ru := range r.Users {
		if ru.Role == RoleOwner {
			return name
		}
	}
	return ""
}

// Account is the persisted user record.
type Account struct {
	Password string   `json:"password"`
	Ignore   []string `json:"ignore"`
}
