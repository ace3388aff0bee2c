package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/utafrali/ordersaga/internal/domain"
	"github.com/utafrali/ordersaga/pkg/database"
	"github.com/utafrali/ordersaga/pkg/retry"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, db database.DBTX, policy retry.Policy, logger *slog.Logger) error {
	migrations, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}
	return database.RunMigrations(ctx, db, migrations, policy, logger)
}

const (
	loadInventoryQuery = `
		SELECT product_id, stock, reserved, price, last_updated
		FROM inventory_items
		ORDER BY product_id`

	pruneInventoryQuery = `
		DELETE FROM inventory_items
		WHERE NOT (product_id = ANY($1))`

	upsertInventoryQuery = `
		INSERT INTO inventory_items (product_id, stock, reserved, price, last_updated)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (product_id) DO UPDATE SET
			stock = EXCLUDED.stock,
			reserved = EXCLUDED.reserved,
			price = EXCLUDED.price,
			last_updated = EXCLUDED.last_updated`
)

// InventoryStore persists the ledger in the inventory_items table.
type InventoryStore struct {
	db database.DBTX
}

// NewInventoryStore creates a PostgreSQL-backed ledger store.
func NewInventoryStore(db database.DBTX) *InventoryStore {
	return &InventoryStore{db: db}
}

// Load reads every row. An empty table yields (nil, nil).
func (s *InventoryStore) Load(ctx context.Context) (_ map[string]domain.InventoryItem, err error) {
	ctx, end := database.TraceQuery(ctx, "LoadInventory", loadInventoryQuery)
	defer func() { end(err) }()

	rows, err := s.db.Query(ctx, loadInventoryQuery)
	if err != nil {
		return nil, fmt.Errorf("load inventory: %w", err)
	}
	defer rows.Close()

	var items map[string]domain.InventoryItem
	for rows.Next() {
		var (
			id   string
			item domain.InventoryItem
		)
		if err := rows.Scan(&id, &item.Stock, &item.Reserved, &item.Price, &item.LastUpdated); err != nil {
			return nil, fmt.Errorf("scan inventory row: %w", err)
		}
		if items == nil {
			items = make(map[string]domain.InventoryItem)
		}
		items[id] = item
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inventory rows: %w", err)
	}
	return items, nil
}

// Save replaces the table contents with items in one transaction. Rows are
// written in product ID order so concurrent savers lock in the same order.
func (s *InventoryStore) Save(ctx context.Context, items map[string]domain.InventoryItem) (err error) {
	ctx, end := database.TraceQuery(ctx, "SaveInventory", upsertInventoryQuery)
	defer func() { end(err) }()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin inventory save: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	ids := domain.SortedProductIDs(items)
	if _, err = tx.Exec(ctx, pruneInventoryQuery, ids); err != nil {
		return fmt.Errorf("prune inventory: %w", err)
	}
	for _, id := range ids {
		item := items[id]
		if _, err = tx.Exec(ctx, upsertInventoryQuery, id, item.Stock, item.Reserved, item.Price, item.LastUpdated); err != nil {
			return fmt.Errorf("upsert inventory %s: %w", id, err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit inventory save: %w", err)
	}
	return nil
}
