package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/ordersaga/internal/domain"
)

// InventoryOverview is the whole ledger plus aggregates.
type InventoryOverview struct {
	Inventory []domain.InventoryView `json:"inventory"`
	Stats     domain.InventoryStats  `json:"stats"`
}

// InventoryService exposes ledger queries and the reset operation.
type InventoryService struct {
	ledger *InventoryLedger
	events EventPublisher
	logger *slog.Logger
}

// NewInventoryService creates a new inventory service.
func NewInventoryService(ledger *InventoryLedger, events EventPublisher, logger *slog.Logger) *InventoryService {
	return &InventoryService{ledger: ledger, events: events, logger: logger}
}

// Item returns one product.
func (s *InventoryService) Item(ctx context.Context, productID string) (domain.InventoryView, error) {
	item, err := s.ledger.Item(ctx, productID)
	if err != nil {
		return domain.InventoryView{}, fmt.Errorf("get inventory item: %w", err)
	}
	return domain.NewInventoryView(productID, item), nil
}

// Overview returns every product, ordered by ID, with aggregates.
func (s *InventoryService) Overview(ctx context.Context) (InventoryOverview, error) {
	items, err := s.ledger.Snapshot(ctx)
	if err != nil {
		return InventoryOverview{}, fmt.Errorf("get inventory: %w", err)
	}
	stats, err := s.ledger.Stats(ctx)
	if err != nil {
		return InventoryOverview{}, fmt.Errorf("get inventory stats: %w", err)
	}

	views := make([]domain.InventoryView, 0, len(items))
	for _, id := range domain.SortedProductIDs(items) {
		views = append(views, domain.NewInventoryView(id, items[id]))
	}
	return InventoryOverview{Inventory: views, Stats: stats}, nil
}

// Reset restores the default catalog and publishes inventory.reset.
func (s *InventoryService) Reset(ctx context.Context) (domain.InventoryStats, error) {
	if err := s.ledger.Reset(ctx); err != nil {
		return domain.InventoryStats{}, fmt.Errorf("reset inventory: %w", err)
	}
	stats, err := s.ledger.Stats(ctx)
	if err != nil {
		return domain.InventoryStats{}, fmt.Errorf("get inventory stats: %w", err)
	}
	if err := s.events.PublishInventoryReset(ctx, stats); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish inventory.reset event",
			slog.String("error", err.Error()),
		)
	}
	return stats, nil
}
