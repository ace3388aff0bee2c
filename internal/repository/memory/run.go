package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/utafrali/ordersaga/internal/domain"
	apperrors "github.com/utafrali/ordersaga/pkg/errors"
)

// RunStore keeps run records in memory.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]domain.Run
}

// NewRunStore creates an empty run store.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]domain.Run)}
}

func (s *RunStore) Create(_ context.Context, run *domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; ok {
		return apperrors.AlreadyExists("run", run.ID)
	}
	s.runs[run.ID] = copyRun(run)
	return nil
}

func (s *RunStore) Save(_ context.Context, run *domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		return apperrors.NotFound("run", run.ID)
	}
	s.runs[run.ID] = copyRun(run)
	return nil
}

func (s *RunStore) Get(_ context.Context, id string) (*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, apperrors.NotFound("run", id)
	}
	out := copyRun(&run)
	return &out, nil
}

func (s *RunStore) List(_ context.Context, offset, limit int) ([]domain.Run, int, error) {
	s.mu.RLock()
	all := make([]domain.Run, 0, len(s.runs))
	for _, run := range s.runs {
		all = append(all, copyRun(&run))
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].StartedAt.Equal(all[j].StartedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].StartedAt.After(all[j].StartedAt)
	})

	total := len(all)
	if offset >= total {
		return []domain.Run{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return all[offset:end], total, nil
}

func (s *RunStore) Ping(context.Context) error { return nil }

func copyRun(run *domain.Run) domain.Run {
	out := *run
	if run.Outcome != nil {
		o := *run.Outcome
		if o.Refunded != nil {
			r := *o.Refunded
			o.Refunded = &r
		}
		if o.Shipping != nil {
			q := *o.Shipping
			o.Shipping = &q
		}
		out.Outcome = &o
	}
	if run.ClosedAt != nil {
		t := *run.ClosedAt
		out.ClosedAt = &t
	}
	return out
}
