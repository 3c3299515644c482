package session

import (
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parlorchat/parlor/internal/v1/types"
)

func TestRegisterRaceSingleWinner(t *testing.T) {
	h := newTestHub(t)
	c1, fc1 := dial(h)
	c2, fc2 := dial(h)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		send(t, h, c1, "/account register dup pw pw")
	}()
	go func() {
		defer wg.Done()
		send(t, h, c2, "/account register dup pw pw")
	}()
	wg.Wait()

	wins, losses := 0, 0
	for _, fc := range []*fakeConn{fc1, fc2} {
		if fc.Contains("/LOGIN_OK dup") {
			wins++
		}
		if fc.Contains("Error: Name is already taken") {
			losses++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, losses)
}

func TestLoginRejectsSecondSession(t *testing.T) {
	h := newTestHub(t)
	c1, fc1 := dial(h)
	register(t, h, c1, fc1, "alice")

	c2, fc2 := dial(h)
	send(t, h, c2, "/account login alice pw")
	assert.True(t, fc2.Contains("Error: alice is already logged in"), "got %v", fc2.Lines())
}

func TestLoginWrongPassword(t *testing.T) {
	h := newTestHub(t)
	c1, fc1 := dial(h)
	register(t, h, c1, fc1, "alice")
	send(t, h, c1, "/account logout")

	c2, fc2 := dial(h)
	send(t, h, c2, "/account login alice nope")
	assert.True(t, fc2.Contains("Error: Incorrect password"), "got %v", fc2.Lines())

	fc2.Drain()
	send(t, h, c2, "/account login alice pw")
	assert.True(t, fc2.Contains("/LOGIN_OK alice"), "got %v", fc2.Lines())
}

func TestAttemptWindowThrottles(t *testing.T) {
	h := newTestHub(t)
	c, fc := dial(h)

	for i := 0; i < 5; i++ {
		send(t, h, c, "/account login ghost pw")
	}
	fc.Drain()
	send(t, h, c, "/account login ghost pw")
	assert.True(t, fc.Contains("Too many attempts, try again later"), "got %v", fc.Lines())
}

// twoInRoom wires an owner and a plain user into the same room.
func twoInRoom(t *testing.T, h *Hub, roomName string) (owner, user *Client, ownerFC, userFC *fakeConn) {
	t.Helper()
	owner, ownerFC = dial(h)
	register(t, h, owner, ownerFC, "alice")
	join(t, h, owner, ownerFC, roomName, true)

	user, userFC = dial(h)
	register(t, h, user, userFC, "bob")
	join(t, h, user, userFC, roomName, false)
	ownerFC.Drain()
	userFC.Drain()
	return owner, user, ownerFC, userFC
}

func TestPermissionGateAndPrefixGrant(t *testing.T) {
	h := newTestHub(t)
	_, bob, aliceFC, bobFC := dial2(t, h)

	lastCmds := func(fc *fakeConn) string {
		var line string
		for _, l := range fc.Lines() {
			if strings.HasPrefix(l, "/CMDS") {
				line = l
			}
		}
		return line
	}

	send(t, h, bob, "/mod kick alice")
	require.True(t, bobFC.Contains("You don't have permission to use /mod kick"), "got %v", bobFC.Lines())

	// granting the "mod" and "super.whitelist" prefixes to the user role
	// opens every leaf under them
	alice := h.findByUsername("alice")
	bobFC.Drain()
	send(t, h, alice, "/super roles add user mod super.whitelist")
	require.True(t, aliceFC.Contains("Commands added to user:"), "got %v", aliceFC.Lines())

	// every member gets a refreshed command set on the grant change
	cmds := lastCmds(bobFC)
	require.NotEmpty(t, cmds, "expected a /CMDS frame, got %v", bobFC.Lines())
	assert.Contains(t, cmds, "mod.kick")
	assert.Contains(t, cmds, "super.whitelist.add")

	bobFC.Drain()
	send(t, h, bob, "/mod kick alice")
	// past the gate now; the rank check refuses instead
	assert.True(t, bobFC.Contains("Error: Cannot kick a user with equal or higher privilege"),
		"got %v", bobFC.Lines())

	// revoking shrinks the pushed set back down
	bobFC.Drain()
	send(t, h, alice, "/super roles revoke user mod super.whitelist")
	cmds = lastCmds(bobFC)
	require.NotEmpty(t, cmds, "expected a /CMDS frame, got %v", bobFC.Lines())
	assert.NotContains(t, cmds, "mod.kick")
	assert.NotContains(t, cmds, "super.whitelist.add")
	assert.Contains(t, cmds, "msg")
}

// dial2 is twoInRoom with the default room name.
func dial2(t *testing.T, h *Hub) (owner, user *Client, ownerFC, userFC *fakeConn) {
	t.Helper()
	return twoInRoom(t, h, "den")
}

func TestKickEjectsTarget(t *testing.T) {
	h := newTestHub(t)
	alice, bob, aliceFC, bobFC := dial2(t, h)

	send(t, h, alice, "/mod kick bob spamming")
	assert.True(t, aliceFC.Contains("Kicked bob"), "got %v", aliceFC.Lines())
	assert.True(t, bobFC.Contains("You have been kicked from the room: spamming"), "got %v", bobFC.Lines())
	assert.True(t, bobFC.Contains("/LOBBY_STATE"))
	assert.Equal(t, PhaseLoggedIn, bob.State().Phase)
}

func TestBanExpiryClearsOnJoin(t *testing.T) {
	h := newTestHub(t)
	alice, bob, aliceFC, bobFC := dial2(t, h)

	send(t, h, alice, "/mod ban bob 2s flooding")
	require.True(t, aliceFC.Contains("Banned bob (2s)"), "got %v", aliceFC.Lines())
	require.True(t, bobFC.Contains("You have been banned from the room (2s): flooding"), "got %v", bobFC.Lines())
	require.Equal(t, PhaseLoggedIn, bob.State().Phase)

	bobFC.Drain()
	send(t, h, bob, "/room join den")
	require.True(t, bobFC.Contains("You are banned from this room"), "got %v", bobFC.Lines())

	// age the ban past its length instead of sleeping
	r, ok := h.Registry().Get("den")
	require.True(t, ok)
	r.WithWrite(func(d *types.Room) {
		d.Users["bob"].BanStamp -= 3
	})

	bobFC.Drain()
	send(t, h, bob, "/room join den")
	assert.True(t, bobFC.Contains("Joined room: den"), "got %v", bobFC.Lines())
	r.WithRead(func(d *types.Room) {
		assert.False(t, d.Users["bob"].Banned, "expired ban should clear on join")
	})
}

func TestPermanentBan(t *testing.T) {
	h := newTestHub(t)
	alice, bob, aliceFC, bobFC := dial2(t, h)
	_ = aliceFC

	send(t, h, alice, "/mod ban bob *")
	bobFC.Drain()
	send(t, h, bob, "/room join den")
	assert.True(t, bobFC.Contains("You are banned from this room (PERMANENT)"), "got %v", bobFC.Lines())
}

func TestMuteBlocksChat(t *testing.T) {
	h := newTestHub(t)
	alice, bob, _, bobFC := dial2(t, h)

	send(t, h, alice, "/mod mute bob * spam")
	require.True(t, bobFC.Contains("You have been muted (PERMANENT): spam"), "got %v", bobFC.Lines())

	bobFC.Drain()
	send(t, h, bob, "hello")
	assert.True(t, bobFC.Contains("You are muted (PERMANENT) - spam"), "got %v", bobFC.Lines())

	send(t, h, alice, "/mod unmute bob")
	bobFC.Drain()
	send(t, h, bob, "hello again")
	assert.True(t, bobFC.Contains("hello again"), "unmuted user should chat, got %v", bobFC.Lines())
}

func TestUnbanUnmuteIdempotent(t *testing.T) {
	h := newTestHub(t)
	alice, _, aliceFC, _ := dial2(t, h)

	send(t, h, alice, "/mod unban bob")
	assert.True(t, aliceFC.Contains("bob is not currently banned"), "got %v", aliceFC.Lines())

	aliceFC.Drain()
	send(t, h, alice, "/mod unmute bob")
	assert.True(t, aliceFC.Contains("bob is not currently muted"), "got %v", aliceFC.Lines())
}

func TestMessageRateLimit(t *testing.T) {
	h := newTestHub(t)
	_, bob, aliceFC, bobFC := dial2(t, h)

	r, ok := h.Registry().Get("den")
	require.True(t, ok)
	r.WithWrite(func(d *types.Room) { d.MsgRate = 3 })

	aliceFC.Drain()
	for i := 0; i < 4; i++ {
		send(t, h, bob, "burst")
	}

	delivered := 0
	for _, l := range aliceFC.Lines() {
		if strings.Contains(l, "burst") {
			delivered++
		}
	}
	assert.Equal(t, 3, delivered, "fourth message should be dropped")
	assert.True(t, bobFC.Contains("Message rate limit reached, please wait"), "got %v", bobFC.Lines())
}

func TestDirectMessageAndIgnores(t *testing.T) {
	h := newTestHub(t)
	alice, bob, aliceFC, bobFC := dial2(t, h)

	send(t, h, alice, "/msg bob psst")
	assert.True(t, aliceFC.Contains("(Private) to bob: psst"), "got %v", aliceFC.Lines())
	assert.True(t, bobFC.Contains("(Private) alice: psst"), "got %v", bobFC.Lines())

	// the ignoring side cannot message the ignored user
	send(t, h, bob, "/ignore add alice")
	bobFC.Drain()
	send(t, h, bob, "/msg alice hi")
	assert.True(t, bobFC.Contains("Cannot send message to alice, you have them ignored"), "got %v", bobFC.Lines())

	// the ignored sender is silently dropped
	aliceFC.Drain()
	bobFC.Drain()
	send(t, h, alice, "/msg bob psst2")
	assert.True(t, aliceFC.Contains("(Private) to bob: psst2"), "sender still sees the echo")
	assert.False(t, bobFC.Contains("psst2"), "ignored sender must not reach bob")

	// room chat from the ignored sender is dropped too
	send(t, h, alice, "room line")
	assert.False(t, bobFC.Contains("room line"))

	// announcements bypass ignore lists
	send(t, h, alice, "/announce maintenance")
	assert.True(t, bobFC.Contains("Announcement: maintenance"), "got %v", bobFC.Lines())
}

func TestEncRelayExcludesSender(t *testing.T) {
	h := newTestHub(t)
	alice, _, aliceFC, bobFC := dial2(t, h)

	aliceFC.Drain()
	send(t, h, alice, "/enc AAAA.BBBB")
	assert.True(t, bobFC.Contains("/enc AAAA.BBBB"), "got %v", bobFC.Lines())
	assert.False(t, aliceFC.Contains("/enc"), "sender already holds the plaintext")
}

func TestHiddenMemberVisibility(t *testing.T) {
	h := newTestHub(t)
	alice, _, aliceFC, bobFC := dial2(t, h)
	h.Keys().Register("alice", "KA")
	h.Keys().Register("bob", "KB")

	aliceFC.Drain()
	bobFC.Drain()
	send(t, h, alice, "/user hide")

	var bobRoster, aliceRoster string
	for _, l := range bobFC.Lines() {
		if strings.HasPrefix(l, "/members") {
			bobRoster = l
		}
	}
	for _, l := range aliceFC.Lines() {
		if strings.HasPrefix(l, "/members") {
			aliceRoster = l
		}
	}
	assert.NotContains(t, bobRoster, "alice:KA", "hidden owner must vanish for plain users")
	assert.Contains(t, bobRoster, "bob:KB")
	assert.Contains(t, aliceRoster, "alice:KA", "admins and above still see hidden users")

	// the user list omits hidden members for everyone
	var userList string
	for _, l := range bobFC.Lines() {
		if strings.HasPrefix(l, "/USERS") {
			userList = l
		}
	}
	assert.NotContains(t, userList, "alice")
}

func TestOwnerTransferConfirm(t *testing.T) {
	h := newTestHub(t)
	alice, bob, aliceFC, bobFC := dial2(t, h)

	send(t, h, alice, "/super roles assign owner bob")
	require.True(t, aliceFC.Contains("Transfer ownership of 'den' to bob? This cannot be undone. (y/n)"),
		"got %v", aliceFC.Lines())

	aliceFC.Drain()
	bobFC.Drain()
	send(t, h, alice, "y")
	require.True(t, aliceFC.Contains("Ownership of 'den' transferred to bob"), "got %v", aliceFC.Lines())
	assert.True(t, aliceFC.Contains("/ROLE admin"))
	assert.True(t, bobFC.Contains("/ROLE owner"))
	assert.True(t, bobFC.Contains("You are now the owner of 'den'"))

	r, ok := h.Registry().Get("den")
	require.True(t, ok)
	r.WithRead(func(d *types.Room) {
		assert.Equal(t, types.RoleOwner, d.Users["bob"].Role)
		assert.Equal(t, types.RoleAdmin, d.Users["alice"].Role)
	})
	_ = bob
}

func TestOwnerTransferDeclined(t *testing.T) {
	h := newTestHub(t)
	alice, _, aliceFC, _ := dial2(t, h)

	send(t, h, alice, "/super roles assign owner bob")
	aliceFC.Drain()
	send(t, h, alice, "n")
	require.True(t, aliceFC.Contains("Operation cancelled"), "got %v", aliceFC.Lines())

	r, _ := h.Registry().Get("den")
	r.WithRead(func(d *types.Room) {
		assert.Equal(t, types.RoleOwner, d.Users["alice"].Role)
		assert.Equal(t, types.RoleUser, d.Users["bob"].Role)
	})
}

func TestRolesAssignModerator(t *testing.T) {
	h := newTestHub(t)
	alice, bob, aliceFC, bobFC := dial2(t, h)

	send(t, h, alice, "/super roles assign moderator bob")
	require.True(t, aliceFC.Contains("Assigned moderator to: bob"), "got %v", aliceFC.Lines())
	assert.True(t, bobFC.Contains("/ROLE moderator"))

	// repeat is a no-op
	aliceFC.Drain()
	send(t, h, alice, "/super roles assign mod bob")
	assert.True(t, aliceFC.Contains("Already moderator: bob"), "got %v", aliceFC.Lines())

	// the new moderator can now moderate plain users
	carol, carolFC := dial(h)
	register(t, h, carol, carolFC, "carol")
	join(t, h, carol, carolFC, "den", false)
	bobFC.Drain()
	send(t, h, bob, "/mod kick carol")
	assert.True(t, bobFC.Contains("Kicked carol"), "got %v", bobFC.Lines())
}

func TestRolesAddRevokeUnknownTokens(t *testing.T) {
	h := newTestHub(t)
	alice, _, aliceFC, _ := dial2(t, h)

	send(t, h, alice, "/super roles add user mod.kick bogus")
	assert.True(t, aliceFC.Contains("Error: Unknown commands: bogus"), "got %v", aliceFC.Lines())

	aliceFC.Drain()
	send(t, h, alice, "/super roles revoke user announce")
	assert.True(t, aliceFC.Contains("No changes made"), "revoking an absent grant is a no-op, got %v", aliceFC.Lines())

	aliceFC.Drain()
	send(t, h, alice, "/super roles add user announce")
	assert.True(t, aliceFC.Contains("Commands added to user: announce"), "got %v", aliceFC.Lines())
	aliceFC.Drain()
	send(t, h, alice, "/super roles revoke user announce")
	assert.True(t, aliceFC.Contains("Commands revoked from user: announce"), "got %v", aliceFC.Lines())
}

func TestWhitelistGate(t *testing.T) {
	h := newTestHub(t)
	alice, aliceFC := dial(h)
	register(t, h, alice, aliceFC, "alice")
	send(t, h, alice, "/room create club whitelist")
	send(t, h, alice, "/room join club")
	aliceFC.Drain()

	carol, carolFC := dial(h)
	register(t, h, carol, carolFC, "carol")
	send(t, h, carol, "/room join club")
	require.True(t, carolFC.Contains("Room 'club' is whitelist-only"), "got %v", carolFC.Lines())

	send(t, h, alice, "/super whitelist add carol")
	require.True(t, aliceFC.Contains("Added to whitelist: carol"), "got %v", aliceFC.Lines())

	// adding her again changes nothing
	aliceFC.Drain()
	send(t, h, alice, "/super whitelist add carol")
	assert.True(t, aliceFC.Contains("Already whitelisted: carol"), "got %v", aliceFC.Lines())
	assert.False(t, aliceFC.Contains("Added to whitelist"))
	r, _ := h.Registry().Get("club")
	r.WithRead(func(d *types.Room) {
		assert.Equal(t, []string{"alice", "carol"}, d.Whitelist)
	})

	carolFC.Drain()
	send(t, h, carol, "/room join club")
	assert.True(t, carolFC.Contains("Joined room: club"), "got %v", carolFC.Lines())
}

func TestWhitelistToggleEjects(t *testing.T) {
	h := newTestHub(t)
	alice, bob, aliceFC, bobFC := dial2(t, h)
	_ = aliceFC

	// bob is in the room but was never whitelisted; flipping the gate on
	// pushes him out, the owner stays
	bobFC.Drain()
	send(t, h, alice, "/super whitelist toggle")
	assert.True(t, bobFC.Contains("You are not whitelisted in this room"), "got %v", bobFC.Lines())
	assert.Equal(t, PhaseLoggedIn, bob.State().Phase)
	assert.Equal(t, PhaseInRoom, alice.State().Phase)
}

func TestSeen(t *testing.T) {
	h := newTestHub(t)
	alice, bob, aliceFC, bobFC := dial2(t, h)
	_ = bobFC

	send(t, h, alice, "/seen bob")
	assert.True(t, aliceFC.Contains("bob is online now"), "got %v", aliceFC.Lines())

	send(t, h, bob, "/leave")
	r, _ := h.Registry().Get("den")
	r.WithWrite(func(d *types.Room) {
		d.Users["bob"].LastSeen -= 90
	})
	aliceFC.Drain()
	send(t, h, alice, "/seen bob")
	assert.True(t, aliceFC.Contains("bob was last seen 1m 30s ago"), "got %v", aliceFC.Lines())

	aliceFC.Drain()
	send(t, h, alice, "/seen ghost")
	assert.True(t, aliceFC.Contains("ghost has never joined this room"), "got %v", aliceFC.Lines())
}

func TestRoomRename(t *testing.T) {
	h := newTestHub(t)
	alice, bob, aliceFC, bobFC := dial2(t, h)

	send(t, h, alice, "/super rename lounge")
	assert.True(t, aliceFC.Contains("/ROOM_NAME lounge"), "got %v", aliceFC.Lines())
	assert.True(t, bobFC.Contains("Room renamed to: lounge"), "got %v", bobFC.Lines())
	assert.Equal(t, "lounge", alice.State().Room)
	assert.Equal(t, "lounge", bob.State().Room)

	_, ok := h.Registry().Get("den")
	assert.False(t, ok)
	_, ok = h.Registry().Get("lounge")
	assert.True(t, ok)
}

func TestRoomDeleteEjectsMembers(t *testing.T) {
	h := newTestHub(t)
	alice, bob, aliceFC, bobFC := dial2(t, h)

	send(t, h, alice, "/room delete den")
	// room commands are lobby-only; the owner must leave first
	assert.True(t, aliceFC.Contains("Cannot use this command while in a room"), "got %v", aliceFC.Lines())

	send(t, h, alice, "/leave")
	aliceFC.Drain()
	send(t, h, alice, "/room delete den force")
	assert.True(t, aliceFC.Contains("Room deleted: den"), "got %v", aliceFC.Lines())
	assert.True(t, bobFC.Contains("Room 'den' was deleted"), "got %v", bobFC.Lines())
	assert.Equal(t, PhaseLoggedIn, bob.State().Phase)
}

func TestRoomImportRejectsMultipleOwners(t *testing.T) {
	h := newTestHub(t)
	c, fc := dial(h)
	register(t, h, c, fc, "alice")

	d := types.NewRoom("mallory", false)
	d.Users["eve"] = types.NewRoomUser(types.RoleOwner)
	_, err := h.store.ExportRoom("loot", d, "loot")
	require.NoError(t, err)

	send(t, h, c, "/room import loot")
	assert.True(t, fc.Contains("Error: Invalid room file: more than one owner"), "got %v", fc.Lines())
	_, ok := h.Registry().Get("loot")
	assert.False(t, ok, "room must not be registered")
}

func TestRoomSavedBeforeStateFrames(t *testing.T) {
	h := newTestHub(t)
	c, fc := dial(h)
	register(t, h, c, fc, "alice")
	send(t, h, c, "/room create den")
	fc.Drain()

	// break the store so a failed save surfaces to the caller
	require.NoError(t, os.RemoveAll(h.store.DataDir()))

	frameOrder := func(frame string) (errIdx, frameIdx int) {
		errIdx, frameIdx = -1, -1
		for i, l := range fc.Lines() {
			if errIdx == -1 && strings.Contains(l, "Error: Failed to save room data") {
				errIdx = i
			}
			if frameIdx == -1 && l == frame {
				frameIdx = i
			}
		}
		return errIdx, frameIdx
	}

	send(t, h, c, "/room join den")
	errIdx, frameIdx := frameOrder("/ROOM_STATE")
	require.NotEqual(t, -1, errIdx, "got %v", fc.Lines())
	require.NotEqual(t, -1, frameIdx, "got %v", fc.Lines())
	assert.Less(t, errIdx, frameIdx, "save runs before the room state frame")

	fc.Drain()
	send(t, h, c, "/leave")
	errIdx, frameIdx = frameOrder("/LOBBY_STATE")
	require.NotEqual(t, -1, errIdx, "got %v", fc.Lines())
	require.NotEqual(t, -1, frameIdx, "got %v", fc.Lines())
	assert.Less(t, errIdx, frameIdx, "save runs before the lobby frame")
}

func TestSuperLimitInfoAndSet(t *testing.T) {
	h := newTestHub(t)
	alice, _, aliceFC, _ := dial2(t, h)

	send(t, h, alice, "/super limit info")
	assert.True(t, aliceFC.Contains("Message rate: 10 messages per 5 sec"), "got %v", aliceFC.Lines())
	assert.True(t, aliceFC.Contains("Session timeout: 3600 sec of inactivity"))

	aliceFC.Drain()
	send(t, h, alice, "/super limit rate *")
	assert.True(t, aliceFC.Contains("Message rate set to: UNLIMITED"), "got %v", aliceFC.Lines())

	aliceFC.Drain()
	send(t, h, alice, "/super limit session 120")
	assert.True(t, aliceFC.Contains("Session timeout set to: 120 sec of inactivity"), "got %v", aliceFC.Lines())

	aliceFC.Drain()
	send(t, h, alice, "/super limit rate abc")
	assert.True(t, aliceFC.Contains("Error: Invalid rate 'abc'"), "got %v", aliceFC.Lines())
}

func TestUserRenameAndRecolor(t *testing.T) {
	h := newTestHub(t)
	alice, bob, aliceFC, bobFC := dial2(t, h)

	send(t, h, bob, "/user rename bobby")
	assert.True(t, bobFC.Contains("Nickname set to: bobby"), "got %v", bobFC.Lines())

	// plain users cannot touch other users
	bobFC.Drain()
	send(t, h, bob, "/user rename alice al")
	assert.True(t, bobFC.Contains("You don't have permission to rename other users"), "got %v", bobFC.Lines())

	send(t, h, alice, "/user recolor 00FF00")
	assert.True(t, aliceFC.Contains("Color set to: #00FF00"), "got %v", aliceFC.Lines())

	aliceFC.Drain()
	send(t, h, alice, "/user recolor zzz")
	assert.True(t, aliceFC.Contains("Error: Invalid color 'zzz', expected 6-digit hex"), "got %v", aliceFC.Lines())

	// owner outranks bob, recolor applies
	aliceFC.Drain()
	send(t, h, alice, "/user recolor bob ff00ff")
	assert.True(t, aliceFC.Contains("Color set to: #FF00FF"), "got %v", aliceFC.Lines())
}
