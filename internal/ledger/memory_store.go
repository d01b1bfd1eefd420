package ledger

import (
	"context"
	"sync"
)

// NewMemoryStore constructs an in-memory store seeded with the given
// quantities.
func NewMemoryStore(initial map[string]int) *MemoryStore {
	quantities := make(map[string]int, len(initial))
	for sku, qty := range initial {
		quantities[sku] = qty
	}
	return &MemoryStore{quantities: quantities}
}

// MemoryStore keeps per-SKU quantities in a map.
type MemoryStore struct {
	mu         sync.RWMutex
	quantities map[string]int
}

func (s *MemoryStore) Quantities(ctx context.Context, skus []string) (map[string]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, len(skus))
	for _, sku := range skus {
		out[sku] = s.quantities[sku]
	}
	return out, nil
}

func (s *MemoryStore) SetQuantity(ctx context.Context, sku string, qty int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quantities[sku] = qty
	return nil
}

// Quantity returns the current quantity for one SKU (for testing/inspection).
func (s *MemoryStore) Quantity(sku string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.quantities[sku]
}

// Snapshot returns a copy of all quantities (for testing/inspection).
func (s *MemoryStore) Snapshot() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, len(s.quantities))
	for sku, qty := range s.quantities {
		out[sku] = qty
	}
	return out
}
