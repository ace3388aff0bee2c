package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/utafrali/ordersaga/internal/domain"
)

// HistoryStore keeps run histories in memory.
type HistoryStore struct {
	mu     sync.RWMutex
	events map[string][]domain.HistoryEvent
}

// NewHistoryStore creates an empty history store.
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{events: make(map[string][]domain.HistoryEvent)}
}

func (s *HistoryStore) Append(_ context.Context, runID string, event domain.HistoryEvent) error {
	event.Result = slices.Clone(event.Result)
	s.mu.Lock()
	s.events[runID] = append(s.events[runID], event)
	s.mu.Unlock()
	return nil
}

func (s *HistoryStore) List(_ context.Context, runID string) ([]domain.HistoryEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.HistoryEvent, len(s.events[runID]))
	copy(out, s.events[runID])
	return out, nil
}
