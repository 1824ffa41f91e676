// Package storage provides key/value persistence for the board, the user
// registry and the activity log.
package storage

import (
	"context"
	"sync"
)

// Keys under which the application keeps its data.
const (
	StateKey           = "taskboard-state"
	RejectedStateKey   = "taskboard-state.rejected"
	CurrentUserKey     = "currentUser"
	ActivityLogsKey    = "activity-logs"
	UsersKey           = "users"
	DemoInitializedKey = "demo-initialized"
)

// KV is a string key/value store with local storage semantics.
type KV interface {
	// GetItem returns the stored value and whether the key exists.
	GetItem(ctx context.Context, key string) (string, bool, error)
	SetItem(ctx context.Context, key, value string) error
	// RemoveItem deletes key. Removing a missing key is not an error.
	RemoveItem(ctx context.Context, key string) error
}

// MemoryKV keeps items in process memory.
type MemoryKV struct {
	mu    sync.RWMutex
	items map[string]string
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{items: make(map[string]string)}
}

func (m *MemoryKV) GetItem(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	return v, ok, nil
}

func (m *MemoryKV) SetItem(_ context.Context, key, value string) error {
	m.mu.Lock()
	m.items[key] = value
	m.mu.Unlock()
	return nil
}

func (m *MemoryKV) RemoveItem(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}
