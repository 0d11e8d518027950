package storage

import (
	"fmt"
	"sync"
)

// MemoryStore is an in-process DeviceStateStore.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func memKey(namespace, key string) string {
	return namespace + "\x00" + key
}

// ReadString returns the value stored under namespace/key.
func (m *MemoryStore) ReadString(namespace, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[memKey(namespace, key)]
	if !ok {
		return "", fmt.Errorf("%s/%s: %w", namespace, key, ErrNotFound)
	}
	return v, nil
}

// WriteString stores value under namespace/key.
func (m *MemoryStore) WriteString(namespace, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[memKey(namespace, key)] = value
	return nil
}
