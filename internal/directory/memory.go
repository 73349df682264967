package directory

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps key records in process memory. It is the default backend
// when no Postgres URL is configured and the backend used by tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore creates an empty in-memory directory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Upsert stores or replaces the key material for a username.
func (s *MemoryStore) Upsert(_ context.Context, username, publicKeyB64 string) (Record, error) {
	if err := validate(username, publicKeyB64); err != nil {
		return Record{}, err
	}

	rec := Record{
		Username:     username,
		PublicKeyB64: publicKeyB64,
		UpdatedAt:    time.Now().UTC(),
	}

	s.mu.Lock()
	s.records[username] = rec
	s.mu.Unlock()

	return rec, nil
}

// Get returns the record for a username or ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, username string) (Record, error) {
	s.mu.RLock()
	rec, ok := s.records[username]
	s.mu.RUnlock()

	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() {}
