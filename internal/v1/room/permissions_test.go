package room

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/parlorchat/parlor/internal/v1/protocol"
	"github.com/parlorchat/parlor/internal/v1/types"
)

func defaultRoles() types.Roles {
	return types.NewRoom("alice", false).Roles
}

func TestAllowByRole(t *testing.T) {
	roles := defaultRoles()

	tests := []struct {
		name  string
		role  types.Role
		token string
		want  bool
	}{
		{"owner always", types.RoleOwner, "super.roles.assign", true},
		{"admin always", types.RoleAdmin, "mod.kick", true},
		{"moderator granted leaf", types.RoleModerator, "afk", true},
		{"moderator granted prefix", types.RoleModerator, "mod.kick", true},
		{"moderator super.users only", types.RoleModerator, "super.users", true},
		{"moderator denied super.rename", types.RoleModerator, "super.rename", false},
		{"user granted", types.RoleUser, "user.hide", true},
		{"user denied mod", types.RoleUser, "mod.kick", false},
		{"unknown role denied", types.Role("ghost"), "afk", false},
		{"unrestricted empty token", types.Role("ghost"), "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Allow(tt.role, tt.token, roles))
		})
	}
}

func TestAllowPrefixGrant(t *testing.T) {
	roles := types.Roles{User: []string{"super.whitelist"}}

	assert.True(t, Allow(types.RoleUser, "super.whitelist.add", roles))
	assert.True(t, Allow(types.RoleUser, "super.whitelist.toggle", roles))
	assert.False(t, Allow(types.RoleUser, "super.limit.rate", roles))
	assert.False(t, Allow(types.RoleUser, "super.rename", roles))
}

func TestGrantedTokens(t *testing.T) {
	roles := defaultRoles()

	t.Run("owner and admin get the full set", func(t *testing.T) {
		assert.Equal(t, protocol.AllRestricted(), GrantedTokens(types.RoleOwner, roles))
		assert.Equal(t, protocol.AllRestricted(), GrantedTokens(types.RoleAdmin, roles))
	})

	t.Run("moderator defaults expand", func(t *testing.T) {
		got := GrantedTokens(types.RoleModerator, roles)
		assert.Contains(t, got, "mod.kick")
		assert.Contains(t, got, "user.hide")
		assert.Contains(t, got, "super.users")
		assert.NotContains(t, got, "super.rename")
		assert.NotContains(t, got, "announce")
	})

	t.Run("prefix grant expands to leaves", func(t *testing.T) {
		got := GrantedTokens(types.RoleUser, types.Roles{User: []string{"super.whitelist"}})
		assert.Equal(t, []string{
			"super.whitelist.add",
			"super.whitelist.info",
			"super.whitelist.remove",
			"super.whitelist.toggle",
		}, got)
	})

	t.Run("unknown role gets nothing", func(t *testing.T) {
		assert.Nil(t, GrantedTokens(types.Role("ghost"), roles))
	})
}
