// Copyright 2025 Certen Protocol
//
// In-memory KV implementation, adapted from the simple MemoryKV used as a
// fallback store in the node bootstrap path. Used directly by tests and by
// any deployment that runs without a persistent backing store.

package kvdb

import (
	"sort"
	"sync"
)

// MemoryKV is an in-memory, concurrency-safe implementation of KV.
type MemoryKV struct {
	mu    sync.RWMutex
	store map[string][]byte
}

// NewMemoryKV creates an empty in-memory KV.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{store: make(map[string][]byte)}
}

// Get implements KV.Get.
func (m *MemoryKV) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.store[string(key)]; ok {
		return append([]byte(nil), v...), nil
	}
	return nil, nil
}

// Set implements KV.Set.
func (m *MemoryKV) Set(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[string(key)] = append([]byte(nil), value...)
	return nil
}

// Delete implements KV.Delete.
func (m *MemoryKV) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.store, string(key))
	return nil
}

// Iterate implements KV.Iterate in ascending lexicographic key order.
func (m *MemoryKV) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	m.mu.RLock()
	keys := make([]string, 0, len(m.store))
	for k := range m.store {
		if len(k) >= len(prefix) && k[:len(prefix)] == string(prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	values := make(map[string][]byte, len(keys))
	for _, k := range keys {
		values[k] = append([]byte(nil), m.store[k]...)
	}
	m.mu.RUnlock()

	for _, k := range keys {
		if err := fn([]byte(k), values[k]); err != nil {
			return err
		}
	}
	return nil
}
