package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/ordersaga/internal/domain"
	"github.com/utafrali/ordersaga/internal/repository"
	apperrors "github.com/utafrali/ordersaga/pkg/errors"
)

// ErrLedgerNotInitialized is returned by every ledger operation before the
// first successful Load.
var ErrLedgerNotInitialized = errors.New("inventory ledger not initialized")

const defaultSaveTimeout = 5 * time.Second

// LedgerOption configures an InventoryLedger.
type LedgerOption func(*InventoryLedger)

// WithLedgerClock overrides the clock used for lastUpdated stamps.
func WithLedgerClock(now func() time.Time) LedgerOption {
	return func(l *InventoryLedger) { l.now = now }
}

// WithSaveTimeout bounds each store write.
func WithSaveTimeout(d time.Duration) LedgerOption {
	return func(l *InventoryLedger) { l.saveTimeout = d }
}

// InventoryLedger owns stock and reservation state for every product. All
// mutations are serialized by one mutex; reserve checks and mutates under it
// so concurrent reservations can never exceed stock.
//
// Persistence is best-effort: each mutation snapshots the state under the
// lock and saves it afterwards. Snapshots carry a version so a slow, older
// save never overwrites a newer one.
type InventoryLedger struct {
	mu      sync.Mutex
	items   map[string]domain.InventoryItem
	loaded  bool
	version uint64

	saveMu       sync.Mutex
	savedVersion uint64

	store       repository.InventoryStore
	logger      *slog.Logger
	now         func() time.Time
	saveTimeout time.Duration
}

// NewInventoryLedger creates an unloaded ledger backed by store.
func NewInventoryLedger(store repository.InventoryStore, logger *slog.Logger, opts ...LedgerOption) *InventoryLedger {
	l := &InventoryLedger{
		store:       store,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
		saveTimeout: defaultSaveTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads the persisted ledger. An empty store is seeded with the default
// catalog, which is then saved.
func (l *InventoryLedger) Load(ctx context.Context) error {
	items, err := l.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load inventory: %w", err)
	}

	seeded := len(items) == 0
	if seeded {
		items = domain.DefaultCatalog(l.now())
	}

	l.mu.Lock()
	l.items = items
	l.loaded = true
	l.version++
	snap, version := domain.CloneInventory(l.items), l.version
	l.mu.Unlock()

	if seeded {
		l.logger.InfoContext(ctx, "inventory seeded with default catalog", slog.Int("products", len(snap)))
		l.persist(ctx, "load", snap, version)
	} else {
		l.logger.InfoContext(ctx, "inventory loaded", slog.Int("products", len(snap)))
	}
	return nil
}

// Reserve atomically holds quantity units of productID. An unknown product or
// insufficient stock yields Available=false and no mutation. A context that
// is already done once the lock is held aborts without mutation.
func (l *InventoryLedger) Reserve(ctx context.Context, productID string, quantity int) (domain.ReserveResult, error) {
	if quantity <= 0 {
		return domain.ReserveResult{}, apperrors.InvalidInput("quantity must be greater than 0")
	}

	var result domain.ReserveResult
	err := l.update(ctx, "reserve", true, func(items map[string]domain.InventoryItem, now time.Time) bool {
		item, ok := items[productID]
		if !ok || item.Available() < quantity {
			return false
		}
		item.Reserved += quantity
		item.LastUpdated = now
		items[productID] = item

		result = domain.ReserveResult{
			Available:        true,
			ReservedQuantity: quantity,
			UnitPrice:        item.Price,
			ReservationID:    uuid.NewString(),
		}
		return true
	})
	if err != nil {
		return domain.ReserveResult{}, err
	}

	if result.Available {
		l.logger.InfoContext(ctx, "inventory reserved",
			slog.String("product_id", productID),
			slog.Int("quantity", quantity),
			slog.String("reservation_id", result.ReservationID),
		)
	} else {
		l.logger.InfoContext(ctx, "inventory unavailable",
			slog.String("product_id", productID),
			slog.Int("quantity", quantity),
		)
	}
	return result, nil
}

// Release returns quantity reserved units of productID. Reserved is floored
// at zero. Released=false only for an unknown product.
func (l *InventoryLedger) Release(ctx context.Context, productID string, quantity int) (domain.ReleaseResult, error) {
	if quantity <= 0 {
		return domain.ReleaseResult{}, apperrors.InvalidInput("quantity must be greater than 0")
	}

	var result domain.ReleaseResult
	err := l.update(ctx, "release", false, func(items map[string]domain.InventoryItem, now time.Time) bool {
		item, ok := items[productID]
		if !ok {
			return false
		}
		item.Reserved = max(item.Reserved-quantity, 0)
		item.LastUpdated = now
		items[productID] = item
		result.Released = true
		return true
	})
	if err != nil {
		return domain.ReleaseResult{}, err
	}

	l.logger.InfoContext(ctx, "inventory release",
		slog.String("product_id", productID),
		slog.Int("quantity", quantity),
		slog.Bool("released", result.Released),
	)
	return result, nil
}

// Confirm turns quantity reserved units into a permanent stock decrement.
// Stock and reserved are each floored at zero. Confirmed=false only for an
// unknown product.
func (l *InventoryLedger) Confirm(ctx context.Context, productID string, quantity int) (domain.ConfirmResult, error) {
	if quantity <= 0 {
		return domain.ConfirmResult{}, apperrors.InvalidInput("quantity must be greater than 0")
	}

	var result domain.ConfirmResult
	err := l.update(ctx, "confirm", false, func(items map[string]domain.InventoryItem, now time.Time) bool {
		item, ok := items[productID]
		if !ok {
			return false
		}
		item.Stock = max(item.Stock-quantity, 0)
		item.Reserved = max(item.Reserved-quantity, 0)
		item.LastUpdated = now
		items[productID] = item
		result.Confirmed = true
		return true
	})
	if err != nil {
		return domain.ConfirmResult{}, err
	}

	l.logger.InfoContext(ctx, "inventory confirm",
		slog.String("product_id", productID),
		slog.Int("quantity", quantity),
		slog.Bool("confirmed", result.Confirmed),
	)
	return result, nil
}

// Item returns a copy of one product's record.
func (l *InventoryLedger) Item(_ context.Context, productID string) (domain.InventoryItem, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.loaded {
		return domain.InventoryItem{}, ErrLedgerNotInitialized
	}
	item, ok := l.items[productID]
	if !ok {
		return domain.InventoryItem{}, apperrors.NotFound("product", productID)
	}
	return item, nil
}

// Snapshot returns a copy of the whole ledger.
func (l *InventoryLedger) Snapshot(_ context.Context) (map[string]domain.InventoryItem, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.loaded {
		return nil, ErrLedgerNotInitialized
	}
	return domain.CloneInventory(l.items), nil
}

// Stats aggregates the current state.
func (l *InventoryLedger) Stats(_ context.Context) (domain.InventoryStats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.loaded {
		return domain.InventoryStats{}, ErrLedgerNotInitialized
	}

	stats := domain.InventoryStats{TotalProducts: len(l.items)}
	for _, item := range l.items {
		stats.TotalStock += item.Stock
		stats.TotalReserved += item.Reserved
		stats.TotalAvailable += item.Available()
	}
	return stats, nil
}

// Reset restores the default catalog with nothing reserved.
func (l *InventoryLedger) Reset(ctx context.Context) error {
	err := l.update(ctx, "reset", false, func(items map[string]domain.InventoryItem, now time.Time) bool {
		clear(items)
		for id, item := range domain.DefaultCatalog(now) {
			items[id] = item
		}
		return true
	})
	if err != nil {
		return err
	}
	l.logger.InfoContext(ctx, "inventory reset to default catalog")
	return nil
}

// update runs fn under the lock. When fn reports a change the version is
// bumped and the new state is persisted after the lock is released.
func (l *InventoryLedger) update(
	ctx context.Context,
	op string,
	abortOnDone bool,
	fn func(items map[string]domain.InventoryItem, now time.Time) bool,
) error {
	l.mu.Lock()
	if !l.loaded {
		l.mu.Unlock()
		ledgerOperations.WithLabelValues(op, "uninitialized").Inc()
		return ErrLedgerNotInitialized
	}
	if abortOnDone {
		if err := ctx.Err(); err != nil {
			l.mu.Unlock()
			ledgerOperations.WithLabelValues(op, "aborted").Inc()
			return fmt.Errorf("%s aborted: %w", op, err)
		}
	}
	if !fn(l.items, l.now()) {
		l.mu.Unlock()
		ledgerOperations.WithLabelValues(op, "rejected").Inc()
		return nil
	}
	l.version++
	snap, version := domain.CloneInventory(l.items), l.version
	l.mu.Unlock()

	ledgerOperations.WithLabelValues(op, "applied").Inc()
	l.persist(ctx, op, snap, version)
	return nil
}

// persist saves snap unless a newer version has already been saved. Errors
// are logged and counted.
func (l *InventoryLedger) persist(ctx context.Context, op string, snap map[string]domain.InventoryItem, version uint64) {
	l.saveMu.Lock()
	defer l.saveMu.Unlock()

	if version <= l.savedVersion {
		ledgerStaleSnapshots.Inc()
		return
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.saveTimeout)
	defer cancel()

	if err := l.store.Save(saveCtx, snap); err != nil {
		ledgerPersistFailures.Inc()
		l.logger.ErrorContext(ctx, "failed to persist inventory",
			slog.String("op", op),
			slog.Uint64("version", version),
			slog.String("error", err.Error()),
		)
		return
	}
	l.savedVersion = version
}
