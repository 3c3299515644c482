package protocol

import (
	"sort"
	"strings"

	"k8s.io/utils/set"
)

// Restricted command tokens. Every in-room command outside the always-available
// set maps to one of these; the permission engine grants them to moderator and
// user roles per room via dotted-prefix matching (admin and owner hold all).
var Restricted = set.New(
	"afk",
	"seen",
	"msg",
	"me",
	"announce",
	"user.list",
	"user.rename",
	"user.recolor",
	"user.hide",
	"mod.info",
	"mod.kick",
	"mod.ban",
	"mod.unban",
	"mod.mute",
	"mod.unmute",
	"super.users",
	"super.rename",
	"super.export",
	"super.whitelist.info",
	"super.whitelist.toggle",
	"super.whitelist.add",
	"super.whitelist.remove",
	"super.limit.info",
	"super.limit.rate",
	"super.limit.session",
	"super.roles.list",
	"super.roles.add",
	"super.roles.revoke",
	"super.roles.assign",
	"super.roles.recolor",
)

// CommandOrder is the display order for the roles table and help output.
func CommandOrder() []string {
	return []string{
		"afk",
		"seen",
		"msg",
		"me",
		"announce",
		"user.list",
		"user.rename",
		"user.recolor",
		"user.hide",
		"mod.info",
		"mod.kick",
		"mod.ban",
		"mod.unban",
		"mod.mute",
		"mod.unmute",
		"super.users",
		"super.rename",
		"super.export",
		"super.whitelist.info",
		"super.whitelist.toggle",
		"super.whitelist.add",
		"super.whitelist.remove",
		"super.limit.info",
		"super.limit.rate",
		"super.limit.session",
		"super.roles.list",
		"super.roles.add",
		"super.roles.revoke",
		"super.roles.assign",
		"super.roles.recolor",
	}
}

// Descriptions maps each restricted token to its help line.
var Descriptions = map[string]string{
	"afk":                    "Mark yourself as away",
	"seen":                   "Show when a user was last online",
	"msg":                    "Send a private message",
	"me":                     "Send an action line",
	"announce":               "Send an announcement to the room",
	"user.list":              "List online users",
	"user.rename":            "Set or clear a nickname",
	"user.recolor":           "Set or clear a display color",
	"user.hide":              "Toggle hidden status",
	"mod.info":               "List banned and muted users",
	"mod.kick":               "Kick a user from the room",
	"mod.ban":                "Ban a user for a duration",
	"mod.unban":              "Lift a ban",
	"mod.mute":               "Mute a user for a duration",
	"mod.unmute":             "Lift a mute",
	"super.users":            "Show the full user table",
	"super.rename":           "Rename the room",
	"super.export":           "Export the room to the vault",
	"super.whitelist.info":   "Show whitelist status",
	"super.whitelist.toggle": "Enable or disable the whitelist",
	"super.whitelist.add":    "Add users to the whitelist",
	"super.whitelist.remove": "Remove users from the whitelist",
	"super.limit.info":       "Show room limits",
	"super.limit.rate":       "Set the message rate limit",
	"super.limit.session":    "Set the session inactivity timeout",
	"super.roles.list":       "Show role command grants",
	"super.roles.add":        "Grant commands to a role",
	"super.roles.revoke":     "Revoke commands from a role",
	"super.roles.assign":     "Assign a role to users",
	"super.roles.recolor":    "Set a role color",
}

// GrantMatches reports whether the grant covers the token: an exact match or
// a dotted prefix ("super.whitelist" covers "super.whitelist.add"; "super"
// covers everything under "super.").
func GrantMatches(grant, token string) bool {
	return token == grant || strings.HasPrefix(token, grant+".")
}

// Grantable reports whether tok is a restricted token or a dotted prefix of
// one, i.e. a valid entry for a role's command list.
func Grantable(tok string) bool {
	for _, leaf := range Restricted.UnsortedList() {
		if GrantMatches(tok, leaf) {
			return true
		}
	}
	return false
}

// ExpandGrants expands a role's grant list into the sorted set of restricted
// tokens it covers.
func ExpandGrants(grants []string) []string {
	out := set.New[string]()
	for _, leaf := range Restricted.UnsortedList() {
		for _, g := range grants {
			if GrantMatches(g, leaf) {
				out.Insert(leaf)
				break
			}
		}
	}
	expanded := out.UnsortedList()
	sort.Strings(expanded)
	return expanded
}

// AllRestricted returns the full restricted set sorted, the grant expansion
// for admin and owner.
func AllRestricted() []string {
	all := Restricted.UnsortedList()
	sort.Strings(all)
	return all
}
