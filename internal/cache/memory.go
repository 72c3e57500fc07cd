package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryBackend is a process-local backend guarded by a RWMutex. Expiry is
// passive; expired entries are dropped on read.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry

	now func() time.Time
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]memoryEntry)}
}

func (m *MemoryBackend) clock() time.Time {
	if m.now != nil {
		return m.now()
	}
	return time.Now()
}

func memKey(namespace, key string) string { return namespace + "\x00" + key }

func (m *MemoryBackend) Get(_ context.Context, namespace, key string) ([]byte, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[memKey(namespace, key)]
	m.mu.RUnlock()
	if !ok || !m.clock().Before(e.expiresAt) {
		return nil, false, nil
	}
	return e.value, true, nil
}

func (m *MemoryBackend) Set(_ context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	m.entries[memKey(namespace, key)] = memoryEntry{value: value, expiresAt: m.clock().Add(ttl)}
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, namespace, key string) error {
	m.mu.Lock()
	delete(m.entries, memKey(namespace, key))
	m.mu.Unlock()
	return nil
}
