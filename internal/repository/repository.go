package repository

import (
	"context"

	"github.com/utafrali/ordersaga/internal/domain"
)

// InventoryStore persists the ledger as a whole. Load returns (nil, nil) when
// nothing has been saved yet.
type InventoryStore interface {
	// Load returns every persisted item keyed by product ID.
	Load(ctx context.Context) (map[string]domain.InventoryItem, error)

	// Save replaces the persisted ledger with items.
	Save(ctx context.Context, items map[string]domain.InventoryItem) error
}

// RunStore persists saga run records.
type RunStore interface {
	// Create inserts a new run. It returns an ErrAlreadyExists error when the
	// ID is taken.
	Create(ctx context.Context, run *domain.Run) error

	// Save overwrites an existing run.
	Save(ctx context.Context, run *domain.Run) error

	// Get returns the run or an ErrNotFound error.
	Get(ctx context.Context, id string) (*domain.Run, error)

	// List returns runs newest first along with the total count.
	List(ctx context.Context, offset, limit int) ([]domain.Run, int, error)

	// Ping checks that the backing store is reachable.
	Ping(ctx context.Context) error
}

// HistoryStore persists the append-only event history of each run.
type HistoryStore interface {
	// Append adds event to the end of the run's history.
	Append(ctx context.Context, runID string, event domain.HistoryEvent) error

	// List returns the run's history in append order. An unknown run yields
	// an empty slice.
	List(ctx context.Context, runID string) ([]domain.HistoryEvent, error)
}
