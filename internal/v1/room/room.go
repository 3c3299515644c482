// Package room holds the in-memory room registry, the per-room locking
// discipline, the permission engine, and moderation bookkeeping.
package room

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/parlorchat/parlor/internal/v1/metrics"
	"github.com/parlorchat/parlor/internal/v1/store"
	"github.com/parlorchat/parlor/internal/v1/types"
)

var (
	// ErrExists is returned when a room name is already taken.
	ErrExists = errors.New("room exists")
	// ErrNotFound is returned when a room is absent from the registry.
	ErrNotFound = errors.New("room not found")
	// ErrInvalidRoom is returned when a room document breaks the
	// single-owner invariant.
	ErrInvalidRoom = errors.New("invalid room document")
)

// Room pairs a room document with its lock. All reads and writes of the
// document go through WithRead/WithWrite; the name is registry-owned and
// only changes on rename.
type Room struct {
	mu   sync.RWMutex
	name string
	data *types.Room
}

// Name returns the current room name.
func (r *Room) Name() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.name
}

// WithRead runs fn with the room read-locked.
func (r *Room) WithRead(fn func(d *types.Room)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn(r.data)
}

// WithWrite runs fn with the room write-locked.
func (r *Room) WithWrite(fn func(d *types.Room)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.data)
}

// Registry is the set of live rooms, keyed by name. Lock order: registry
// before any room; rooms in name order when more than one is held.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
	store *store.Store
}

// NewRegistry builds an empty registry backed by the store.
func NewRegistry(st *store.Store) *Registry {
	return &Registry{rooms: make(map[string]*Room), store: st}
}

// Load replaces the registry contents with the persisted room map.
func (reg *Registry) Load() error {
	rooms, err := reg.store.LoadRooms()
	if err != nil {
		return err
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.rooms = make(map[string]*Room, len(rooms))
	for name, data := range rooms {
		if data.Users == nil {
			data.Users = make(map[string]*types.RoomUser)
		}
		reg.rooms[name] = &Room{name: name, data: data}
	}
	metrics.OpenRooms.Set(float64(len(reg.rooms)))
	return nil
}

// Get looks up a room by name.
func (reg *Registry) Get(name string) (*Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	r, ok := reg.rooms[name]
	return r, ok
}

// Create adds a room with the stock defaults; the creator becomes owner.
func (reg *Registry) Create(name, creator string, whitelist bool) (*Room, error) {
	return reg.Add(name, types.NewRoom(creator, whitelist))
}

// Add registers an existing room document under name, for imports. A
// document carrying more than one owner is refused.
func (reg *Registry) Add(name string, data *types.Room) (*Room, error) {
	owners := 0
	for _, ru := range data.Users {
		if ru.Role == types.RoleOwner {
			owners++
		}
	}
	if owners > 1 {
		return nil, ErrInvalidRoom
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, ok := reg.rooms[name]; ok {
		return nil, ErrExists
	}
	if data.Users == nil {
		data.Users = make(map[string]*types.RoomUser)
	}
	r := &Room{name: name, data: data}
	reg.rooms[name] = r
	metrics.OpenRooms.Set(float64(len(reg.rooms)))
	return r, nil
}

// Delete removes a room from the registry.
func (reg *Registry) Delete(name string) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, ok := reg.rooms[name]; !ok {
		return false
	}
	delete(reg.rooms, name)
	metrics.OpenRooms.Set(float64(len(reg.rooms)))
	return true
}

// Rename rekeys a room. The room keeps its document and lock identity so
// sessions holding the *Room keep working.
func (reg *Registry) Rename(oldName, newName string) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.rooms[oldName]
	if !ok {
		return ErrNotFound
	}
	if _, taken := reg.rooms[newName]; taken {
		return ErrExists
	}
	delete(reg.rooms, oldName)
	reg.rooms[newName] = r
	r.mu.Lock()
	r.name = newName
	r.mu.Unlock()
	return nil
}

// Names returns the room names sorted.
func (reg *Registry) Names() []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	names := make([]string, 0, len(reg.rooms))
	for name := range reg.rooms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Rooms returns a snapshot of the live rooms.
func (reg *Registry) Rooms() []*Room {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]*Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		out = append(out, r)
	}
	return out
}

// Persist writes the full room map to disk. Rooms are read-locked in name
// order for a consistent snapshot.
func (reg *Registry) Persist() error {
	reg.mu.RLock()
	names := make([]string, 0, len(reg.rooms))
	for name := range reg.rooms {
		names = append(names, name)
	}
	sort.Strings(names)

	doc := make(map[string]*types.Room, len(names))
	locked := make([]*Room, 0, len(names))
	for _, name := range names {
		r := reg.rooms[name]
		r.mu.RLock()
		locked = append(locked, r)
		doc[name] = r.data
	}
	reg.mu.RUnlock()

	err := reg.store.SaveRooms(doc)
	for _, r := range locked {
		r.mu.RUnlock()
	}
	if err != nil {
		metrics.PersistenceErrors.Inc()
		return fmt.Errorf("persisting rooms: %w", err)
	}
	return nil
}
