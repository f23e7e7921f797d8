package repository

import (
	"context"
	"sync"
	"time"
)

// MemorySessionPersistence implements domain.SessionPersistence in process
// memory, for development without Redis and for tests. The ttl is ignored:
// expiry belongs to the session store.
type MemorySessionPersistence struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemorySessionPersistence creates an empty in-memory persistence.
func NewMemorySessionPersistence() *MemorySessionPersistence {
	return &MemorySessionPersistence{blobs: make(map[string][]byte)}
}

func (m *MemorySessionPersistence) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blobs[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), b...), nil
}

func (m *MemorySessionPersistence) Save(_ context.Context, key string, blob []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = append([]byte(nil), blob...)
	return nil
}

func (m *MemorySessionPersistence) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	return nil
}

// Len returns the number of stored keys.
func (m *MemorySessionPersistence) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}
