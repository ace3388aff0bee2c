package memory

import (
	"context"
	"sync"

	"github.com/utafrali/ordersaga/internal/domain"
)

// InventoryStore keeps the last saved ledger in memory.
type InventoryStore struct {
	mu    sync.Mutex
	items map[string]domain.InventoryItem
	saves int
}

// NewInventoryStore creates an empty store.
func NewInventoryStore() *InventoryStore {
	return &InventoryStore{}
}

// Load returns a copy of the last saved ledger, or nil.
func (s *InventoryStore) Load(_ context.Context) (map[string]domain.InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CloneInventory(s.items), nil
}

// Save stores a copy of items.
func (s *InventoryStore) Save(_ context.Context, items map[string]domain.InventoryItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = domain.CloneInventory(items)
	s.saves++
	return nil
}

// Saves returns how many times Save has been called.
func (s *InventoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
