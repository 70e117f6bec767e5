package store

import (
	"context"
	"sync"
)

// MemoryStore keeps snapshots in process memory
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string][]byte
	failSaves bool
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string][]byte)}
}

func (m *MemoryStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	payload, ok := m.snapshots[key]
	if !ok {
		return nil, false, nil
	}
	return clone(payload), true, nil
}

func (m *MemoryStore) Save(ctx context.Context, key string, payload []byte) error {
	return m.SaveAll(ctx, map[string][]byte{key: payload})
}

func (m *MemoryStore) SaveAll(ctx context.Context, snapshots map[string][]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failSaves {
		return ErrUnavailable
	}
	for key, payload := range snapshots {
		m.snapshots[key] = clone(payload)
	}
	return nil
}

// SetFailSaves makes every subsequent write fail with ErrUnavailable.
// Used to exercise persistence failure paths.
func (m *MemoryStore) SetFailSaves(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failSaves = fail
}

func (m *MemoryStore) Close() error {
	return nil
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
