package session

import "sync"

// KeyRegistry maps logged-in usernames to their registered public keys.
// Keys are opaque base64 blobs; the server only relays them so room peers
// can encrypt to each other.
type KeyRegistry struct {
	mu   sync.RWMutex
	keys map[string]string
}

// NewKeyRegistry returns an empty registry.
func NewKeyRegistry() *KeyRegistry {
	return &KeyRegistry{keys: make(map[string]string)}
}

// Register stores a key for the user. Re-registering the same key is a
// no-op; a different key while one is held is refused.
func (k *KeyRegistry) Register(user, key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if existing, ok := k.keys[user]; ok && existing != key {
		return false
	}
	k.keys[user] = key
	return true
}

// Get returns the user's key.
func (k *KeyRegistry) Get(user string) (string, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	key, ok := k.keys[user]
	return key, ok
}

// Drop removes the user's key, on logout, quit, or account deletion.
func (k *KeyRegistry) Drop(user string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.keys, user)
}

// Rename moves a key to a new username after an account rename.
func (k *KeyRegistry) Rename(oldName, newName string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if key, ok := k.keys[oldName]; ok {
		delete(k.keys, oldName)
		k.keys[newName] = key
	}
}
