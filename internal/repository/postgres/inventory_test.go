package postgres

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/ordersaga/internal/domain"
	"github.com/utafrali/ordersaga/pkg/retry"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func setupStore(t *testing.T) (*InventoryStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return NewInventoryStore(mock), mock
}

var inventoryColumns = []string{"product_id", "stock", "reserved", "price", "last_updated"}

var sampleTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// ---------------------------------------------------------------------------
// Load
// ---------------------------------------------------------------------------

func TestInventoryStore_Load(t *testing.T) {
	store, mock := setupStore(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM inventory_items ORDER BY product_id").
		WillReturnRows(pgxmock.NewRows(inventoryColumns).
			AddRow("Hats", 40, 3, int64(400), sampleTime).
			AddRow("Shirts", 10, 0, int64(100), sampleTime))

	items, err := store.Load(context.Background())

	require.NoError(t, err)
	assert.Equal(t, map[string]domain.InventoryItem{
		"Hats":   {Stock: 40, Reserved: 3, Price: 400, LastUpdated: sampleTime},
		"Shirts": {Stock: 10, Reserved: 0, Price: 100, LastUpdated: sampleTime},
	}, items)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInventoryStore_LoadEmpty(t *testing.T) {
	store, mock := setupStore(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM inventory_items").
		WillReturnRows(pgxmock.NewRows(inventoryColumns))

	items, err := store.Load(context.Background())

	require.NoError(t, err)
	assert.Nil(t, items)
}

func TestInventoryStore_LoadError(t *testing.T) {
	store, mock := setupStore(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM inventory_items").
		WillReturnError(errors.New("connection reset"))

	_, err := store.Load(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "load inventory")
}

// ---------------------------------------------------------------------------
// Save
// ---------------------------------------------------------------------------

func TestInventoryStore_Save(t *testing.T) {
	store, mock := setupStore(t)
	defer mock.Close()

	items := map[string]domain.InventoryItem{
		"Shirts": {Stock: 10, Reserved: 2, Price: 100, LastUpdated: sampleTime},
		"Hats":   {Stock: 40, Price: 400, LastUpdated: sampleTime},
	}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM inventory_items").
		WithArgs([]string{"Hats", "Shirts"}).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("INSERT INTO inventory_items").
		WithArgs("Hats", 40, 0, int64(400), sampleTime).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO inventory_items").
		WithArgs("Shirts", 10, 2, int64(100), sampleTime).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := store.Save(context.Background(), items)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInventoryStore_SaveRollsBackOnError(t *testing.T) {
	store, mock := setupStore(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM inventory_items").
		WithArgs([]string{"Hats"}).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("INSERT INTO inventory_items").
		WithArgs("Hats", 40, 0, int64(400), sampleTime).
		WillReturnError(errors.New("check constraint violated"))
	mock.ExpectRollback()

	err := store.Save(context.Background(), map[string]domain.InventoryItem{
		"Hats": {Stock: 40, Price: 400, LastUpdated: sampleTime},
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert inventory Hats")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// Migrate
// ---------------------------------------------------------------------------

func TestMigrate_AppliesEmbeddedSchema(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("0001_inventory_items.up.sql").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS inventory_items").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("INSERT INTO schema_migrations").
		WithArgs("0001_inventory_items.up.sql").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	policy := retry.Policy{MaxAttempts: 1, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
	err = Migrate(context.Background(), mock, policy, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
