package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChatAndEnc(t *testing.T) {
	cmd, err := Parse("hello there")
	require.NoError(t, err)
	assert.Equal(t, Chat{Text: "hello there"}, cmd)

	cmd, err = Parse("/enc alice: aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, Enc{Raw: "/enc alice: aGVsbG8="}, cmd)
}

func TestParseSimpleVerbs(t *testing.T) {
	tests := []struct {
		line string
		want Command
	}{
		{"/help", Help{}},
		{"/ping 1724680000", Ping{Payload: "1724680000"}},
		{"/quit", Quit{}},
		{"/leave", Leave{}},
		{"/status", Status{}},
		{"/afk", Afk{}},
		{"/pubkey c29tZWtleQ==", Pubkey{Key: "c29tZWtleQ=="}},
		{"/seen bob", Seen{User: "bob"}},
		{"/msg bob hi there", DirectMessage{To: "bob", Text: "hi there"}},
		{"/me waves slowly", MeAction{Text: "waves slowly"}},
		{"/announce server restarting", Announce{Text: "server restarting"}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			cmd, err := Parse(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cmd)
		})
	}
}

func TestParseAccount(t *testing.T) {
	tests := []struct {
		line string
		want Command
	}{
		{"/account", AccountInfo{}},
		{"/account info", AccountInfo{}},
		{"/account register alice pw pw", AccountRegister{Username: "alice", Password: "pw", Confirm: "pw"}},
		{"/account login alice pw", AccountLogin{Username: "alice", Password: "pw"}},
		{"/account logout", AccountLogout{}},
		{"/account edit username alice2", AccountEditUsername{NewName: "alice2"}},
		{"/account edit password old new", AccountEditPassword{Current: "old", New: "new"}},
		{"/account import alice.json", AccountImport{File: "alice.json"}},
		{"/account export", AccountExport{}},
		{"/account export backup.json", AccountExport{File: "backup.json"}},
		{"/account delete", AccountDelete{}},
		{"/account delete force", AccountDelete{Force: true}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			cmd, err := Parse(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cmd)
		})
	}

	t.Run("bad register arity", func(t *testing.T) {
		_, err := Parse("/account register alice pw")
		var se *SyntaxError
		require.ErrorAs(t, err, &se)
		assert.Contains(t, se.Usage, "/account register")
	})
}

func TestParseRoom(t *testing.T) {
	tests := []struct {
		line string
		want Command
	}{
		{"/room list", RoomList{}},
		{"/room create den", RoomCreate{Name: "den"}},
		{"/room create den whitelist", RoomCreate{Name: "den", Whitelist: true}},
		{"/room join den", RoomJoin{Name: "den"}},
		{"/room import den.json", RoomImport{File: "den.json"}},
		{"/room delete den", RoomDelete{Name: "den"}},
		{"/room delete den force", RoomDelete{Name: "den", Force: true}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			cmd, err := Parse(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cmd)
		})
	}
}

func TestParseModeration(t *testing.T) {
	tests := []struct {
		line string
		want Command
	}{
		{"/mod info", ModInfo{}},
		{"/mod kick bob", Kick{Target: "bob"}},
		{"/mod kick bob being rude", Kick{Target: "bob", Reason: "being rude"}},
		{"/mod ban bob * spam", Ban{Target: "bob", Duration: "*", Reason: "spam"}},
		{"/mod ban bob 1d2h", Ban{Target: "bob", Duration: "1d2h"}},
		{"/mod unban bob", Unban{Target: "bob"}},
		{"/mod mute bob 5m", Mute{Target: "bob", Duration: "5m"}},
		{"/mod unmute bob", Unmute{Target: "bob"}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			cmd, err := Parse(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cmd)
		})
	}

	t.Run("ban requires duration", func(t *testing.T) {
		_, err := Parse("/mod ban bob")
		var se *SyntaxError
		require.ErrorAs(t, err, &se)
	})
}

func TestParseSuper(t *testing.T) {
	tests := []struct {
		line string
		want Command
	}{
		{"/super users", SuperUsers{}},
		{"/super rename den2", SuperRename{NewName: "den2"}},
		{"/super export", SuperExport{}},
		{"/super export den.json", SuperExport{File: "den.json"}},
		{"/super whitelist", SuperWhitelist{Action: "info"}},
		{"/super whitelist info", SuperWhitelist{Action: "info"}},
		{"/super whitelist toggle", SuperWhitelist{Action: "toggle"}},
		{"/super whitelist add bob carol", SuperWhitelist{Action: "add", Users: []string{"bob", "carol"}}},
		{"/super whitelist remove bob", SuperWhitelist{Action: "remove", Users: []string{"bob"}}},
		{"/super limit", SuperLimit{Action: "info"}},
		{"/super limit rate 10", SuperLimit{Action: "rate", Value: "10"}},
		{"/super limit session *", SuperLimit{Action: "session", Value: "*"}},
		{"/super roles", SuperRolesList{}},
		{"/super roles list", SuperRolesList{}},
		{"/super roles add user seen afk", SuperRolesAdd{Role: "user", Tokens: []string{"seen", "afk"}}},
		{"/super roles revoke moderator mod.kick", SuperRolesRevoke{Role: "moderator", Tokens: []string{"mod.kick"}}},
		{"/super roles assign owner bob", SuperRolesAssign{Role: "owner", Users: []string{"bob"}}},
		{"/super roles recolor moderator 00FF00", SuperRolesRecolor{Role: "moderator", Color: "00FF00"}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			cmd, err := Parse(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cmd)
		})
	}
}

func TestParseUser(t *testing.T) {
	tests := []struct {
		line string
		want Command
	}{
		{"/user list", UserList{}},
		{"/user rename newnick", UserRename{NewNick: "newnick"}},
		{"/user rename bob newnick", UserRename{Target: "bob", NewNick: "newnick"}},
		{"/user recolor FF0000", UserRecolor{Color: "FF0000"}},
		{"/user recolor bob *", UserRecolor{Target: "bob", Color: "*"}},
		{"/user hide", UserHide{}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			cmd, err := Parse(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cmd)
		})
	}
}

func TestParseUnknown(t *testing.T) {
	cmd, err := Parse("/dance")
	require.NoError(t, err)
	assert.Equal(t, Unknown{Verb: "dance"}, cmd)
}

func TestPermissionTokens(t *testing.T) {
	assert.Equal(t, "", Chat{}.Token())
	assert.Equal(t, "", Help{}.Token())
	assert.Equal(t, "afk", Afk{}.Token())
	assert.Equal(t, "mod.kick", Kick{}.Token())
	assert.Equal(t, "super.whitelist.add", SuperWhitelist{Action: "add"}.Token())
	assert.Equal(t, "super.limit.rate", SuperLimit{Action: "rate"}.Token())
	assert.Equal(t, "super.roles.assign", SuperRolesAssign{}.Token())

	// every restricted token produced by a command exists in the restricted set
	for _, cmd := range []Command{
		Afk{}, Seen{}, DirectMessage{}, MeAction{}, Announce{},
		UserList{}, UserRename{}, UserRecolor{}, UserHide{},
		ModInfo{}, Kick{}, Ban{}, Unban{}, Mute{}, Unmute{},
		SuperUsers{}, SuperRename{}, SuperExport{},
		SuperWhitelist{Action: "info"}, SuperWhitelist{Action: "toggle"},
		SuperLimit{Action: "info"}, SuperLimit{Action: "rate"},
		SuperRolesList{}, SuperRolesAdd{}, SuperRolesRevoke{},
		SuperRolesAssign{}, SuperRolesRecolor{},
	} {
		assert.True(t, Restricted.Has(cmd.Token()), "token %q", cmd.Token())
	}
}

func TestAnsiHelpers(t *testing.T) {
	assert.Equal(t, "\x1b[33mwarn\x1b[0m", Yellow("warn"))
	assert.Equal(t, "\x1b[38;2;255;0;0mred\x1b[0m", Colored("#FF0000", "red"))
	assert.Equal(t, "plain", Colored("nothex", "plain"))
	assert.True(t, ValidHexColor("FFD700"))
	assert.True(t, ValidHexColor("#0080FF"))
	assert.False(t, ValidHexColor("#FFF"))
	assert.False(t, ValidHexColor("GGGGGG"))
	assert.Equal(t, "#FFD700", NormalizeHexColor("ffd700"))
}
