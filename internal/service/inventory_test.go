package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/ordersaga/pkg/errors"
)

func TestInventoryService_Overview(t *testing.T) {
	ledger, _ := newLoadedLedger(t)
	svc := NewInventoryService(ledger, &recordingPublisher{}, newTestLogger())
	ctx := context.Background()
	_, err := ledger.Reserve(ctx, "Pants", 5)
	require.NoError(t, err)

	overview, err := svc.Overview(ctx)
	require.NoError(t, err)

	require.Len(t, overview.Inventory, 10)
	assert.Equal(t, "Dresses", overview.Inventory[0].ProductID)
	assert.Equal(t, "Socks", overview.Inventory[9].ProductID)
	for _, v := range overview.Inventory {
		if v.ProductID == "Pants" {
			assert.Equal(t, 15, v.Available)
			assert.Equal(t, 5, v.Reserved)
		}
	}
	assert.Equal(t, 5, overview.Stats.TotalReserved)
}

func TestInventoryService_Item(t *testing.T) {
	ledger, _ := newLoadedLedger(t)
	svc := NewInventoryService(ledger, &recordingPublisher{}, newTestLogger())

	view, err := svc.Item(context.Background(), "Jackets")
	require.NoError(t, err)
	assert.Equal(t, "Jackets", view.ProductID)
	assert.Equal(t, 70, view.Available)
	assert.Equal(t, int64(700), view.Price)

	_, err = svc.Item(context.Background(), "Umbrellas")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestInventoryService_Reset(t *testing.T) {
	ledger, _ := newLoadedLedger(t)
	events := &recordingPublisher{}
	svc := NewInventoryService(ledger, events, newTestLogger())
	ctx := context.Background()
	_, _ = ledger.Reserve(ctx, "Pants", 5)
	_, _ = ledger.Confirm(ctx, "Pants", 5)

	stats, err := svc.Reset(ctx)

	require.NoError(t, err)
	assert.Equal(t, 550, stats.TotalStock)
	assert.Zero(t, stats.TotalReserved)
	assert.Equal(t, 1, events.resets)
}
