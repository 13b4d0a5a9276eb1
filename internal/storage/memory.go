package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"ledgerbak/internal/backup"
)

// MemoryProvider is an in-memory implementation of the StorageProvider
// interface. It keeps every stored object and the order of Store calls,
// making it useful for tests and dry runs. Safe for concurrent use.
type MemoryProvider struct {
	mu      sync.RWMutex
	objects map[string][]byte
	order   []string
}

// NewMemoryProvider creates an empty in-memory provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		objects: make(map[string][]byte),
	}
}

// Store reads r fully and keeps the bytes under name.
func (m *MemoryProvider) Store(ctx context.Context, r io.Reader, name string) error {
	data, err := io.ReadAll(newContextReader(ctx, r))
	if err != nil {
		return fmt.Errorf("%w: reading %s: %w", backup.ErrStorageUnavailable, name, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.objects[name] = data
	m.order = append(m.order, name)
	return nil
}

// Get returns a copy of the object stored under name.
func (m *MemoryProvider) Get(name string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.objects[name]
	if !ok {
		return nil, false
	}
	return bytes.Clone(data), true
}

// Names returns object names in the order Store was called.
func (m *MemoryProvider) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]string(nil), m.order...)
}

// ValidateSetup always succeeds for the in-memory provider.
func (m *MemoryProvider) ValidateSetup(context.Context) error {
	return nil
}

// Compile-time check that MemoryProvider implements backup.StorageProvider
var _ backup.StorageProvider = (*MemoryProvider)(nil)
