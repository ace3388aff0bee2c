package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/ordersaga/internal/domain"
)

// HistoryStore keeps each run's history as a Redis list of JSON events.
type HistoryStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewHistoryStore creates a Redis-backed history store. A zero ttl keeps
// histories forever.
func NewHistoryStore(client *redis.Client, ttl time.Duration) *HistoryStore {
	return &HistoryStore{client: client, ttl: ttl}
}

// Append pushes event onto the run's list.
func (s *HistoryStore) Append(ctx context.Context, runID string, event domain.HistoryEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal history event: %w", err)
	}

	key := historyKeyPrefix + runID
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis append history: %w", err)
	}
	return nil
}

// List returns the run's events in append order.
func (s *HistoryStore) List(ctx context.Context, runID string) ([]domain.HistoryEvent, error) {
	raw, err := s.client.LRange(ctx, historyKeyPrefix+runID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list history: %w", err)
	}

	events := make([]domain.HistoryEvent, 0, len(raw))
	for _, item := range raw {
		var event domain.HistoryEvent
		if err := json.Unmarshal([]byte(item), &event); err != nil {
			return nil, fmt.Errorf("unmarshal history event: %w", err)
		}
		events = append(events, event)
	}
	return events, nil
}
