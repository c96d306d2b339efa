package storage

import (
	"context"
	"sync"

	"github.com/JonMunkholm/msmtupload/internal/core"
)

// MemoryPreferences is a process-local core.PreferenceStore.
type MemoryPreferences struct {
	mu     sync.RWMutex
	values map[string]string
}

var _ core.PreferenceStore = (*MemoryPreferences)(nil)

func NewMemoryPreferences() *MemoryPreferences {
	return &MemoryPreferences{values: make(map[string]string)}
}

func (m *MemoryPreferences) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryPreferences) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}
