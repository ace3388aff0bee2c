package service

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/ordersaga/internal/domain"
	"github.com/utafrali/ordersaga/internal/repository/memory"
	apperrors "github.com/utafrali/ordersaga/pkg/errors"
)

// failingStore fails every call with err.
type failingStore struct {
	err   error
	saves atomic.Int32
}

func (s *failingStore) Load(context.Context) (map[string]domain.InventoryItem, error) {
	return nil, s.err
}

func (s *failingStore) Save(context.Context, map[string]domain.InventoryItem) error {
	s.saves.Add(1)
	return s.err
}

// ---------------------------------------------------------------------------
// Load
// ---------------------------------------------------------------------------

func TestLedger_OperationsBeforeLoad(t *testing.T) {
	ledger := NewInventoryLedger(memory.NewInventoryStore(), newTestLogger())
	ctx := context.Background()

	_, err := ledger.Reserve(ctx, "Shirts", 1)
	assert.ErrorIs(t, err, ErrLedgerNotInitialized)
	_, err = ledger.Release(ctx, "Shirts", 1)
	assert.ErrorIs(t, err, ErrLedgerNotInitialized)
	_, err = ledger.Confirm(ctx, "Shirts", 1)
	assert.ErrorIs(t, err, ErrLedgerNotInitialized)
	_, err = ledger.Item(ctx, "Shirts")
	assert.ErrorIs(t, err, ErrLedgerNotInitialized)
	_, err = ledger.Snapshot(ctx)
	assert.ErrorIs(t, err, ErrLedgerNotInitialized)
	_, err = ledger.Stats(ctx)
	assert.ErrorIs(t, err, ErrLedgerNotInitialized)
	assert.ErrorIs(t, ledger.Reset(ctx), ErrLedgerNotInitialized)
}

func TestLedger_LoadSeedsAndPersistsDefaultCatalog(t *testing.T) {
	ledger, store := newLoadedLedger(t)
	ctx := context.Background()

	snap, err := ledger.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snap, 10)

	saved, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, saved, 10)
	assert.Equal(t, 1, store.Saves())
}

func TestLedger_LoadUsesPersistedState(t *testing.T) {
	store := memory.NewInventoryStore()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, map[string]domain.InventoryItem{
		"Hats": {Stock: 5, Reserved: 2, Price: 400},
	}))

	ledger := NewInventoryLedger(store, newTestLogger())
	require.NoError(t, ledger.Load(ctx))

	item, err := ledger.Item(ctx, "Hats")
	require.NoError(t, err)
	assert.Equal(t, 2, item.Reserved)
	_, err = ledger.Item(ctx, "Shirts")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Equal(t, 1, store.Saves())
}

func TestLedger_LoadError(t *testing.T) {
	ledger := NewInventoryLedger(&failingStore{err: errors.New("connection refused")}, newTestLogger())

	err := ledger.Load(context.Background())
	assert.ErrorContains(t, err, "load inventory")

	_, err = ledger.Stats(context.Background())
	assert.ErrorIs(t, err, ErrLedgerNotInitialized)
}

// ---------------------------------------------------------------------------
// Reserve / Release / Confirm
// ---------------------------------------------------------------------------

func TestLedger_Reserve(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	ledger := NewInventoryLedger(memory.NewInventoryStore(), newTestLogger(), WithLedgerClock(func() time.Time { return now }))
	ctx := context.Background()
	require.NoError(t, ledger.Load(ctx))

	now = now.Add(time.Minute)
	res, err := ledger.Reserve(ctx, "Shoes", 4)
	require.NoError(t, err)
	assert.True(t, res.Available)
	assert.Equal(t, 4, res.ReservedQuantity)
	assert.Equal(t, int64(300), res.UnitPrice)
	assert.NotEmpty(t, res.ReservationID)

	item, err := ledger.Item(ctx, "Shoes")
	require.NoError(t, err)
	assert.Equal(t, 30, item.Stock)
	assert.Equal(t, 4, item.Reserved)
	assert.Equal(t, now, item.LastUpdated)

	other, err := ledger.Reserve(ctx, "Shoes", 4)
	require.NoError(t, err)
	assert.NotEqual(t, res.ReservationID, other.ReservationID)
}

func TestLedger_ReserveRejections(t *testing.T) {
	tests := []struct {
		name      string
		productID string
		quantity  int
	}{
		{"unknown product", "Umbrellas", 1},
		{"more than available", "Shirts", 11},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ledger, store := newLoadedLedger(t)
			ctx := context.Background()
			before, _ := ledger.Snapshot(ctx)

			res, err := ledger.Reserve(ctx, tc.productID, tc.quantity)

			require.NoError(t, err)
			assert.Equal(t, domain.ReserveResult{}, res)
			after, _ := ledger.Snapshot(ctx)
			assert.Equal(t, before, after)
			assert.Equal(t, 1, store.Saves(), "rejected reserve must not persist")
		})
	}
}

func TestLedger_ReserveInvalidQuantity(t *testing.T) {
	ledger, _ := newLoadedLedger(t)

	for _, q := range []int{0, -3} {
		_, err := ledger.Reserve(context.Background(), "Shirts", q)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	}
}

func TestLedger_ReserveAbortsOnDoneContext(t *testing.T) {
	ledger, _ := newLoadedLedger(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ledger.Reserve(ctx, "Shirts", 1)
	assert.ErrorIs(t, err, context.Canceled)

	item, err := ledger.Item(context.Background(), "Shirts")
	require.NoError(t, err)
	assert.Zero(t, item.Reserved)
}

func TestLedger_ReserveThenConfirm(t *testing.T) {
	ledger, _ := newLoadedLedger(t)
	ctx := context.Background()

	_, err := ledger.Reserve(ctx, "Jeans", 7)
	require.NoError(t, err)
	res, err := ledger.Confirm(ctx, "Jeans", 7)
	require.NoError(t, err)
	assert.True(t, res.Confirmed)

	item, _ := ledger.Item(ctx, "Jeans")
	assert.Equal(t, 83, item.Stock)
	assert.Zero(t, item.Reserved)
}

func TestLedger_ReserveThenRelease(t *testing.T) {
	ledger, _ := newLoadedLedger(t)
	ctx := context.Background()

	_, err := ledger.Reserve(ctx, "Jeans", 7)
	require.NoError(t, err)
	res, err := ledger.Release(ctx, "Jeans", 7)
	require.NoError(t, err)
	assert.True(t, res.Released)

	item, _ := ledger.Item(ctx, "Jeans")
	assert.Equal(t, 90, item.Stock)
	assert.Zero(t, item.Reserved)
}

func TestLedger_FloorsAtZero(t *testing.T) {
	ledger, _ := newLoadedLedger(t)
	ctx := context.Background()

	_, err := ledger.Reserve(ctx, "Shirts", 2)
	require.NoError(t, err)

	res, err := ledger.Release(ctx, "Shirts", 5)
	require.NoError(t, err)
	assert.True(t, res.Released)
	item, _ := ledger.Item(ctx, "Shirts")
	assert.Zero(t, item.Reserved)

	conf, err := ledger.Confirm(ctx, "Shirts", 50)
	require.NoError(t, err)
	assert.True(t, conf.Confirmed)
	item, _ = ledger.Item(ctx, "Shirts")
	assert.Zero(t, item.Stock)
	assert.Zero(t, item.Reserved)
}

func TestLedger_UnknownProductIsNoOp(t *testing.T) {
	ledger, store := newLoadedLedger(t)
	ctx := context.Background()
	before, _ := ledger.Snapshot(ctx)

	rel, err := ledger.Release(ctx, "Umbrellas", 1)
	require.NoError(t, err)
	assert.False(t, rel.Released)

	conf, err := ledger.Confirm(ctx, "Umbrellas", 1)
	require.NoError(t, err)
	assert.False(t, conf.Confirmed)

	after, _ := ledger.Snapshot(ctx)
	assert.Equal(t, before, after)
	assert.Equal(t, 1, store.Saves())
}

// ---------------------------------------------------------------------------
// Concurrency
// ---------------------------------------------------------------------------

func TestLedger_ContestedReservesNeverOversell(t *testing.T) {
	ledger, _ := newLoadedLedger(t)
	ctx := context.Background()

	const workers = 50
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := ledger.Reserve(ctx, "Shirts", 3)
			if err == nil && res.Available {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(3), succeeded.Load(), "10 units allow three reservations of 3")
	item, _ := ledger.Item(ctx, "Shirts")
	assert.Equal(t, 9, item.Reserved)
}

func TestLedger_InvariantUnderRandomInterleavings(t *testing.T) {
	ledger, _ := newLoadedLedger(t)
	ctx := context.Background()
	products := []string{"Shirts", "Pants", "Hats"}

	var wg sync.WaitGroup
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func(seed uint64) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(seed, seed+1))
			for i := 0; i < 200; i++ {
				p := products[rng.IntN(len(products))]
				q := 1 + rng.IntN(4)
				switch rng.IntN(3) {
				case 0:
					_, _ = ledger.Reserve(ctx, p, q)
				case 1:
					_, _ = ledger.Release(ctx, p, q)
				case 2:
					_, _ = ledger.Confirm(ctx, p, q)
				}
			}
		}(uint64(w))
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		snap, err := ledger.Snapshot(ctx)
		require.NoError(t, err)
		for id, item := range snap {
			require.GreaterOrEqual(t, item.Reserved, 0, id)
			require.LessOrEqual(t, item.Reserved, item.Stock, id)
		}
		select {
		case <-done:
			return
		default:
		}
	}
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

func TestLedger_SnapshotDoesNotAlias(t *testing.T) {
	ledger, _ := newLoadedLedger(t)
	ctx := context.Background()

	snap, _ := ledger.Snapshot(ctx)
	snap["Shirts"] = domain.InventoryItem{Stock: 9999}
	delete(snap, "Pants")

	item, _ := ledger.Item(ctx, "Shirts")
	assert.Equal(t, 10, item.Stock)
	_, err := ledger.Item(ctx, "Pants")
	assert.NoError(t, err)
}

func TestLedger_Stats(t *testing.T) {
	ledger, _ := newLoadedLedger(t)
	ctx := context.Background()

	_, err := ledger.Reserve(ctx, "Hats", 15)
	require.NoError(t, err)

	stats, err := ledger.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.InventoryStats{
		TotalProducts:  10,
		TotalStock:     550,
		TotalReserved:  15,
		TotalAvailable: 535,
	}, stats)
}

func TestLedger_ResetRestoresDefaultCatalog(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	ledger := NewInventoryLedger(memory.NewInventoryStore(), newTestLogger(), WithLedgerClock(func() time.Time { return now }))
	ctx := context.Background()
	require.NoError(t, ledger.Load(ctx))

	_, _ = ledger.Reserve(ctx, "Socks", 10)
	_, _ = ledger.Confirm(ctx, "Gloves", 30)
	require.NoError(t, ledger.Reset(ctx))

	snap, err := ledger.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultCatalog(now), snap)
}

// ---------------------------------------------------------------------------
// Persistence
// ---------------------------------------------------------------------------

func TestLedger_PersistFailureIsAbsorbed(t *testing.T) {
	store := memory.NewInventoryStore()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, domain.DefaultCatalog(time.Now())))

	flaky := &switchableStore{inner: store}
	ledger := NewInventoryLedger(flaky, newTestLogger())
	require.NoError(t, ledger.Load(ctx))

	flaky.fail.Store(true)
	before := testutil.ToFloat64(ledgerPersistFailures)

	res, err := ledger.Reserve(ctx, "Dresses", 5)
	require.NoError(t, err)
	assert.True(t, res.Available)
	assert.Equal(t, before+1, testutil.ToFloat64(ledgerPersistFailures))

	item, _ := ledger.Item(ctx, "Dresses")
	assert.Equal(t, 5, item.Reserved, "in-memory state stays authoritative")
}

func TestLedger_StaleSnapshotIsNotSaved(t *testing.T) {
	ledger, store := newLoadedLedger(t)
	ctx := context.Background()

	newer := map[string]domain.InventoryItem{"Hats": {Stock: 1}}
	older := map[string]domain.InventoryItem{"Hats": {Stock: 2}}

	ledger.persist(ctx, "test", newer, 10)
	ledger.persist(ctx, "test", older, 9)

	saved, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, newer, saved)
}

type switchableStore struct {
	inner *memory.InventoryStore
	fail  atomic.Bool
}

func (s *switchableStore) Load(ctx context.Context) (map[string]domain.InventoryItem, error) {
	return s.inner.Load(ctx)
}

func (s *switchableStore) Save(ctx context.Context, items map[string]domain.InventoryItem) error {
	if s.fail.Load() {
		return errors.New("disk full")
	}
	return s.inner.Save(ctx, items)
}
