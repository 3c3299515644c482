package room

import (
	"github.com/parlorchat/parlor/internal/v1/protocol"
	"github.com/parlorchat/parlor/internal/v1/types"
)

// Allow decides whether a role may run the command behind token under the
// room's grant lists. Owner and admin always may; moderator and user need a
// matching grant (exact token or dotted prefix); unknown roles never may.
// The empty token marks unrestricted commands.
func Allow(role types.Role, token string, roles types.Roles) bool {
	if token == "" {
		return true
	}
	switch role {
	case types.RoleOwner, types.RoleAdmin:
		return true
	case types.RoleModerator:
		return anyGrantMatches(roles.Moderator, token)
	case types.RoleUser:
		return anyGrantMatches(roles.User, token)
	default:
		return false
	}
}

func anyGrantMatches(grants []string, token string) bool {
	for _, g := range grants {
		if protocol.GrantMatches(g, token) {
			return true
		}
	}
	return false
}

// GrantedTokens expands a role's grants into the sorted restricted tokens it
// may run, the payload of a /CMDS frame.
func GrantedTokens(role types.Role, roles types.Roles) []string {
	switch role {
	case types.RoleOwner, types.RoleAdmin:
		return protocol.AllRestricted()
	case types.RoleModerator:
		return protocol.ExpandGrants(roles.Moderator)
	case types.RoleUser:
		return protocol.ExpandGrants(roles.User)
	default:
		return nil
	}
}
