package credstore

import (
	"errors"
	"sync"
)

// ErrStorageUnavailable is returned by a MemoryBackend that has been told to fail.
var ErrStorageUnavailable = errors.New("storage unavailable")

// MemoryBackend is an in-process backend. SetFailWrites models a quota-exceeded or disabled
// store, SetFailDeletes a locked or read-only one.
type MemoryBackend struct {
	mu          sync.Mutex
	entries     map[string]string
	failWrites  bool
	failDeletes bool
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: map[string]string{}}
}

func (m *MemoryBackend) SetFailWrites(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWrites = fail
}

func (m *MemoryBackend) SetFailDeletes(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failDeletes = fail
}

// Set writes a single raw entry, bypassing Store encoding. Used to plant corrupt data in tests.
func (m *MemoryBackend) Set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = value
}

func (m *MemoryBackend) ReadAll() (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]string, len(m.entries))
	for k, v := range m.entries {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryBackend) WriteAll(entries map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWrites {
		return ErrStorageUnavailable
	}

	next := make(map[string]string, len(entries))
	for k, v := range entries {
		next[k] = v
	}
	m.entries = next
	return nil
}

func (m *MemoryBackend) DeleteAll(keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failDeletes {
		return ErrStorageUnavailable
	}

	for _, k := range keys {
		delete(m.entries, k)
	}
	return nil
}
