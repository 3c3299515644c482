// Package store owns the durable JSON state: users.json, rooms.json, and the
// vault of single-record export files. Documents are written as 4-space
// indented UTF-8 JSON.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/parlorchat/parlor/internal/v1/types"
)

// ErrNotFound is returned when a vault file does not exist.
var ErrNotFound = errors.New("not found")

const vaultTimeLayout = "060102150405"

// Store serializes access to the data directory. Callers hold their own
// in-memory state; the store only loads and saves snapshots.
type Store struct {
	dataDir string
	mu      sync.Mutex
}

// New opens the data directory, creating the layout when missing.
func New(dataDir string) (*Store, error) {
	s := &Store{dataDir: dataDir}
	for _, dir := range []string{
		dataDir,
		filepath.Join(dataDir, "vault", "users"),
		filepath.Join(dataDir, "vault", "rooms"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data layout: %w", err)
		}
	}
	return s, nil
}

// DataDir returns the configured root.
func (s *Store) DataDir() string { return s.dataDir }

func (s *Store) usersPath() string { return filepath.Join(s.dataDir, "users.json") }
func (s *Store) roomsPath() string { return filepath.Join(s.dataDir, "rooms.json") }

// LoadUsers reads users.json; a missing file yields an empty map.
func (s *Store) LoadUsers() (map[string]*types.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*types.Account)
	if err := readJSON(s.usersPath(), &out); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return out, nil
		}
		return nil, fmt.Errorf("loading users: %w", err)
	}
	return out, nil
}

// SaveUsers writes the full account map to users.json.
func (s *Store) SaveUsers(users map[string]*types.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeJSON(s.usersPath(), users); err != nil {
		return fmt.Errorf("saving users: %w", err)
	}
	return nil
}

// LoadRooms reads rooms.json; a missing file yields an empty map.
func (s *Store) LoadRooms() (map[string]*types.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*types.Room)
	if err := readJSON(s.roomsPath(), &out); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return out, nil
		}
		return nil, fmt.Errorf("loading rooms: %w", err)
	}
	return out, nil
}

// SaveRooms writes the full room map to rooms.json.
func (s *Store) SaveRooms(rooms map[string]*types.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeJSON(s.roomsPath(), rooms); err != nil {
		return fmt.Errorf("saving rooms: %w", err)
	}
	return nil
}

// WriteCheck verifies the data directory is writable; used by readiness.
func (s *Store) WriteCheck() error {
	f, err := os.CreateTemp(s.dataDir, ".writecheck-*")
	if err != nil {
		return fmt.Errorf("data dir not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// DefaultVaultName builds the default export filename: <base>_<yymmddHHMMSS>.json.
func DefaultVaultName(base string, now time.Time) string {
	return fmt.Sprintf("%s_%s.json", base, now.Format(vaultTimeLayout))
}

// vaultFile normalizes a user-supplied filename: path components are
// stripped and ".json" appended when missing.
func vaultFile(name string) string {
	name = filepath.Base(name)
	if filepath.Ext(name) != ".json" {
		name += ".json"
	}
	return name
}

// ExportUser writes a single-key account document to the user vault and
// returns the path written. An empty file picks the default name.
func (s *Store) ExportUser(username string, acct *types.Account, file string) (string, error) {
	if file == "" {
		file = DefaultVaultName(username, time.Now())
	}
	path := filepath.Join(s.dataDir, "vault", "users", vaultFile(file))
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeJSON(path, map[string]*types.Account{username: acct}); err != nil {
		return "", fmt.Errorf("exporting user: %w", err)
	}
	return path, nil
}

// ImportUser reads a single-key account document from the user vault.
func (s *Store) ImportUser(file string) (string, *types.Account, error) {
	path := filepath.Join(s.dataDir, "vault", "users", vaultFile(file))
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := make(map[string]*types.Account)
	if err := readJSON(path, &doc); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil, ErrNotFound
		}
		return "", nil, fmt.Errorf("importing user: %w", err)
	}
	if len(doc) != 1 {
		return "", nil, fmt.Errorf("importing user: expected exactly one record, got %d", len(doc))
	}
	for name, acct := range doc {
		return name, acct, nil
	}
	panic("unreachable")
}

// ExportRoom writes a single-key room document to the room vault and returns
// the path written. An empty file picks the default name.
func (s *Store) ExportRoom(name string, room *types.Room, file string) (string, error) {
	if file == "" {
		file = DefaultVaultName(name, time.Now())
	}
	path := filepath.Join(s.dataDir, "vault", "rooms", vaultFile(file))
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeJSON(path, map[string]*types.Room{name: room}); err != nil {
		return "", fmt.Errorf("exporting room: %w", err)
	}
	return path, nil
}

// ImportRoom reads a single-key room document from the room vault.
func (s *Store) ImportRoom(file string) (string, *types.Room, error) {
	path := filepath.Join(s.dataDir, "vault", "rooms", vaultFile(file))
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := make(map[string]*types.Room)
	if err := readJSON(path, &doc); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil, ErrNotFound
		}
		return "", nil, fmt.Errorf("importing room: %w", err)
	}
	if len(doc) != 1 {
		return "", nil, fmt.Errorf("importing room: expected exactly one record, got %d", len(doc))
	}
	for n, room := range doc {
		return n, room, nil
	}
	panic("unreachable")
}

func readJSON(path string, v any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func writeJSON(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(raw, '\n'), 0o644)
}
