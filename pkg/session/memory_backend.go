package session

import (
	"sort"
	"sync"
)

// MemoryBackend is an in-memory Backend intended for tests and dev.
type MemoryBackend struct {
	mutex sync.Mutex
	items map[string]string
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{items: make(map[string]string)}
}

// GetItem returns the raw value stored at key.
func (backend *MemoryBackend) GetItem(key string) (string, bool, error) {
	backend.mutex.Lock()
	defer backend.mutex.Unlock()
	value, ok := backend.items[key]
	return value, ok, nil
}

// SetItem stores value at key.
func (backend *MemoryBackend) SetItem(key string, value string) error {
	backend.mutex.Lock()
	defer backend.mutex.Unlock()
	backend.items[key] = value
	return nil
}

// RemoveItem deletes key if present.
func (backend *MemoryBackend) RemoveItem(key string) error {
	backend.mutex.Lock()
	defer backend.mutex.Unlock()
	delete(backend.items, key)
	return nil
}

// Keys lists every stored key in lexical order.
func (backend *MemoryBackend) Keys() ([]string, error) {
	backend.mutex.Lock()
	defer backend.mutex.Unlock()
	keys := make([]string, 0, len(backend.items))
	for key := range backend.items {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// Len returns the number of stored keys.
func (backend *MemoryBackend) Len() int {
	backend.mutex.Lock()
	defer backend.mutex.Unlock()
	return len(backend.items)
}
