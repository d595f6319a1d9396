package docstore

import (
	"context"
	"maps"
	"sync"
)

// MemoryStore keeps documents in process memory. Contents are lost on restart.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]map[string]map[string]any
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]map[string]map[string]any)}
}

func (m *MemoryStore) Upsert(ctx context.Context, collection, key string, fields map[string]any) error {
	if err := validateAddress(collection, key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.docs[collection]
	if !ok {
		c = make(map[string]map[string]any)
		m.docs[collection] = c
	}
	c[key] = maps.Clone(fields)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, collection, key string) (map[string]any, error) {
	if err := validateAddress(collection, key); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.docs[collection][key]
	if !ok {
		return nil, ErrNotFound
	}
	return maps.Clone(doc), nil
}

// Len returns the number of documents in collection
func (m *MemoryStore) Len(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs[collection])
}

func (m *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

func (m *MemoryStore) Close() error { return nil }
