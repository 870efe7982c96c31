package registry

import (
	"context"
	"sync"
)

// Memory is an in-memory Registry for tests and the demo binary.
type Memory struct {
	mu       sync.RWMutex
	products map[string]ProductRecord
}

// NewMemory returns an empty registry.
func NewMemory() *Memory {
	return &Memory{products: make(map[string]ProductRecord)}
}

// Add stores or replaces a product record.
func (m *Memory) Add(rec ProductRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[rec.ProductID] = rec
}

func (m *Memory) Lookup(ctx context.Context, productID string) (*ProductRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.products[productID]
	if !ok {
		return nil, nil
	}
	cp := rec
	return &cp, nil
}
