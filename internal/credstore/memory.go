package credstore

import (
	"context"
	"log/slog"
	"sync"

	"github.com/lumeo-social/walletbridge/internal/keyring"
)

// MemoryStore is the unencrypted fallback store. It satisfies Store but loses
// everything on process exit; it exists so encrypted-store initialization
// failure degrades instead of crashing.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// Get returns the stored value or ("", nil).
func (s *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key], nil
}

// Put stores a value.
func (s *MemoryStore) Put(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// Remove deletes a key.
func (s *MemoryStore) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// Clear wipes the store.
func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]string)
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)

// Open returns the encrypted SQLite store, or the in-memory fallback when
// its initialization fails. Fallback is logged, never fatal.
func Open(dbPath string, ring keyring.Provider) Store {
	store, err := NewSQLite(dbPath, ring)
	if err != nil {
		slog.Warn("encrypted credential store unavailable, falling back to in-memory store",
			"error", err, "path", dbPath)
		return NewMemory()
	}
	return store
}
