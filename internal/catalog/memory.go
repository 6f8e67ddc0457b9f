package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/product-similarity/pkg/errors"
)

// MemoryStore is an in-process Catalog used by tests and local tooling.
type MemoryStore struct {
	mu       sync.RWMutex
	products map[int64]Product
}

// NewMemoryStore creates a MemoryStore seeded with products.
func NewMemoryStore(products ...Product) *MemoryStore {
	m := &MemoryStore{products: make(map[int64]Product, len(products))}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}

// Put inserts or replaces a product.
func (m *MemoryStore) Put(p Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
}

// Delete removes a product.
func (m *MemoryStore) Delete(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.products, id)
}

func (m *MemoryStore) List(ctx context.Context) ([]Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) Get(ctx context.Context, id int64) (*Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, apperrors.ErrProductNotFound)
	}
	return &p, nil
}

// GetMany returns matches in ascending id order, which is deliberately not
// the order callers asked for.
func (m *MemoryStore) GetMany(ctx context.Context, ids []int64) ([]Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Product, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if p, ok := m.products[id]; ok {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out, nil
}

var _ Catalog = (*MemoryStore)(nil)
