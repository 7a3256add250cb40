package testing

import (
	"context"
	"sync"

	"github.com/arloliu/livequery/types"
)

// MemoryBackup is an in-memory types.BackupStore.
type MemoryBackup struct {
	mu      sync.Mutex
	data    map[string][]byte
	loadErr error
	saveErr error
}

var _ types.BackupStore = (*MemoryBackup)(nil)

// NewMemoryBackup creates an empty MemoryBackup.
func NewMemoryBackup() *MemoryBackup {
	return &MemoryBackup{data: make(map[string][]byte)}
}

// Load returns a copy of the value saved under key.
func (m *MemoryBackup) Load(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loadErr != nil {
		return nil, false, m.loadErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}

	return append([]byte(nil), v...), true, nil
}

// Save stores a copy of value under key.
func (m *MemoryBackup) Save(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.saveErr != nil {
		return m.saveErr
	}
	m.data[key] = append([]byte(nil), value...)

	return nil
}

// Get returns the raw value under key, for assertions.
func (m *MemoryBackup) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.data[key]

	return string(v), ok
}

// FailLoads makes every Load return err (nil restores normal behavior).
func (m *MemoryBackup) FailLoads(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadErr = err
}

// FailSaves makes every Save return err (nil restores normal behavior).
func (m *MemoryBackup) FailSaves(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
}
