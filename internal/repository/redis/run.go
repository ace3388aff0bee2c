package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/ordersaga/internal/domain"
	apperrors "github.com/utafrali/ordersaga/pkg/errors"
)

const (
	runKeyPrefix     = "ordersaga:run:"
	historyKeyPrefix = "ordersaga:history:"
	runIndexKey      = "ordersaga:runs"
)

// RunStore keeps run records as JSON strings and indexes them in a sorted
// set scored by start time.
type RunStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRunStore creates a Redis-backed run store. A zero ttl keeps runs forever.
func NewRunStore(client *redis.Client, ttl time.Duration) *RunStore {
	return &RunStore{client: client, ttl: ttl}
}

// Create stores a new run. It fails with ErrAlreadyExists if the ID is taken.
func (s *RunStore) Create(ctx context.Context, run *domain.Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}

	ok, err := s.client.SetNX(ctx, runKeyPrefix+run.ID, data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("redis setnx run: %w", err)
	}
	if !ok {
		return apperrors.AlreadyExists("run", run.ID)
	}

	if err := s.client.ZAdd(ctx, runIndexKey, redis.Z{
		Score:  float64(run.StartedAt.UnixMilli()),
		Member: run.ID,
	}).Err(); err != nil {
		// Drop the record so a retry under the same ID can start the run.
		if delErr := s.client.Del(context.WithoutCancel(ctx), runKeyPrefix+run.ID).Err(); delErr != nil {
			return fmt.Errorf("redis index run: %w (record left behind: %v)", err, delErr)
		}
		return fmt.Errorf("redis index run: %w", err)
	}

	// The run is created at this point; a failed prune is retried by the
	// next Create or List.
	if s.ttl > 0 {
		_ = s.pruneBefore(ctx, run.StartedAt.Add(-s.ttl).UnixMilli())
	}
	return nil
}

// pruneBatch caps how many index entries one Create inspects.
const pruneBatch = 100

// pruneBefore removes index entries older than cutoff (unix millis) whose
// run record has expired. Records kept alive by a later Save stay indexed.
func (s *RunStore) pruneBefore(ctx context.Context, cutoff int64) error {
	ids, err := s.client.ZRangeByScore(ctx, runIndexKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   "(" + strconv.FormatInt(cutoff, 10),
		Count: pruneBatch,
	}).Result()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	_, err = s.removeExpired(ctx, ids)
	return err
}

// removeExpired drops ids whose run record no longer exists from the index
// and reports how many were removed.
func (s *RunStore) removeExpired(ctx context.Context, ids []string) (int, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = runKeyPrefix + id
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return 0, err
	}
	var gone []any
	for i, v := range values {
		if v == nil {
			gone = append(gone, ids[i])
		}
	}
	if len(gone) == 0 {
		return 0, nil
	}
	if err := s.client.ZRem(ctx, runIndexKey, gone...).Err(); err != nil {
		return 0, err
	}
	return len(gone), nil
}

// Save overwrites an existing run.
func (s *RunStore) Save(ctx context.Context, run *domain.Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}

	ok, err := s.client.SetXX(ctx, runKeyPrefix+run.ID, data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("redis set run: %w", err)
	}
	if !ok {
		return apperrors.NotFound("run", run.ID)
	}
	return nil
}

// Get retrieves a run by ID.
func (s *RunStore) Get(ctx context.Context, id string) (*domain.Run, error) {
	data, err := s.client.Get(ctx, runKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound("run", id)
		}
		return nil, fmt.Errorf("redis get run: %w", err)
	}

	var run domain.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("unmarshal run: %w", err)
	}
	return &run, nil
}

// List returns runs newest first. Index entries whose record has expired are
// skipped and removed from the index.
func (s *RunStore) List(ctx context.Context, offset, limit int) ([]domain.Run, int, error) {
	total, err := s.client.ZCard(ctx, runIndexKey).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("redis count runs: %w", err)
	}
	if limit <= 0 || int64(offset) >= total {
		return []domain.Run{}, int(total), nil
	}

	ids, err := s.client.ZRevRange(ctx, runIndexKey, int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("redis range runs: %w", err)
	}
	if len(ids) == 0 {
		return []domain.Run{}, int(total), nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = runKeyPrefix + id
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("redis mget runs: %w", err)
	}

	runs := make([]domain.Run, 0, len(values))
	var expired []any
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		var run domain.Run
		if err := json.Unmarshal([]byte(raw), &run); err != nil {
			return nil, 0, fmt.Errorf("unmarshal run: %w", err)
		}
		runs = append(runs, run)
	}

	if len(expired) > 0 {
		removed, err := s.client.ZRem(ctx, runIndexKey, expired...).Result()
		if err != nil {
			return nil, 0, fmt.Errorf("redis prune run index: %w", err)
		}
		total -= removed
	}
	return runs, int(total), nil
}

// Ping checks connectivity.
func (s *RunStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
