package room

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parlorchat/parlor/internal/v1/store"
	"github.com/parlorchat/parlor/internal/v1/types"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	st, err := store.New(t.TempDir())
	require.NoError(t, err)
	return NewRegistry(st)
}

func TestCreateAndGet(t *testing.T) {
	reg := newTestRegistry(t)

	r, err := reg.Create("den", "alice", false)
	require.NoError(t, err)
	assert.Equal(t, "den", r.Name())

	got, ok := reg.Get("den")
	require.True(t, ok)
	assert.Same(t, r, got)

	got.WithRead(func(d *types.Room) {
		assert.Equal(t, types.RoleOwner, d.Users["alice"].Role)
	})

	_, ok = reg.Get("nope")
	assert.False(t, ok)
}

func TestCreateDuplicate(t *testing.T) {
	reg := newTestRegistry(t)
	_, err := reg.Create("den", "alice", false)
	require.NoError(t, err)

	_, err = reg.Create("den", "bob", false)
	assert.ErrorIs(t, err, ErrExists)
}

func TestAddRejectsMultipleOwners(t *testing.T) {
	reg := newTestRegistry(t)

	d := types.NewRoom("alice", false)
	d.Users["bob"] = types.NewRoomUser(types.RoleOwner)
	_, err := reg.Add("den", d)
	assert.ErrorIs(t, err, ErrInvalidRoom)
	_, ok := reg.Get("den")
	assert.False(t, ok)

	// a single owner passes, as does an owner with ordinary members
	d = types.NewRoom("alice", false)
	d.Users["bob"] = types.NewRoomUser(types.RoleAdmin)
	_, err = reg.Add("den", d)
	assert.NoError(t, err)
}

func TestDelete(t *testing.T) {
	reg := newTestRegistry(t)
	_, err := reg.Create("den", "alice", false)
	require.NoError(t, err)

	assert.True(t, reg.Delete("den"))
	assert.False(t, reg.Delete("den"))
	_, ok := reg.Get("den")
	assert.False(t, ok)
}

func TestRename(t *testing.T) {
	reg := newTestRegistry(t)
	r, err := reg.Create("den", "alice", false)
	require.NoError(t, err)
	_, err = reg.Create("attic", "bob", false)
	require.NoError(t, err)

	t.Run("collision", func(t *testing.T) {
		assert.ErrorIs(t, reg.Rename("den", "attic"), ErrExists)
	})

	t.Run("missing", func(t *testing.T) {
		assert.ErrorIs(t, reg.Rename("cellar", "basement"), ErrNotFound)
	})

	t.Run("success keeps room identity", func(t *testing.T) {
		require.NoError(t, reg.Rename("den", "study"))
		assert.Equal(t, "study", r.Name())
		got, ok := reg.Get("study")
		require.True(t, ok)
		assert.Same(t, r, got)
		_, ok = reg.Get("den")
		assert.False(t, ok)
	})
}

func TestNames(t *testing.T) {
	reg := newTestRegistry(t)
	for _, n := range []string{"zebra", "attic", "den"} {
		_, err := reg.Create(n, "alice", false)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"attic", "den", "zebra"}, reg.Names())
}

func TestPersistAndLoadRoundTrip(t *testing.T) {
	st, err := store.New(t.TempDir())
	require.NoError(t, err)
	reg := NewRegistry(st)

	r, err := reg.Create("den", "alice", true)
	require.NoError(t, err)
	r.WithWrite(func(d *types.Room) {
		d.Users["bob"] = types.NewRoomUser(types.RoleModerator)
		d.AddOnline("alice")
		d.MsgRate = 3
	})
	require.NoError(t, reg.Persist())

	reloaded := NewRegistry(st)
	require.NoError(t, reloaded.Load())

	got, ok := reloaded.Get("den")
	require.True(t, ok)
	got.WithRead(func(d *types.Room) {
		assert.True(t, d.WhitelistEnabled)
		assert.Equal(t, uint8(3), d.MsgRate)
		assert.Equal(t, types.RoleModerator, d.Users["bob"].Role)
		assert.Empty(t, d.OnlineUsers, "online list is transient")
	})
}

func TestConcurrentAccess(t *testing.T) {
	reg := newTestRegistry(t)
	r, err := reg.Create("den", "alice", false)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.WithWrite(func(d *types.Room) {
				d.AddOnline("alice")
				d.RemoveOnline("alice")
			})
			r.WithRead(func(d *types.Room) {
				_ = d.IsOnline("alice")
			})
			_ = reg.Persist()
		}()
	}
	wg.Wait()

	r.WithRead(func(d *types.Room) {
		assert.Empty(t, d.OnlineUsers)
	})
}
