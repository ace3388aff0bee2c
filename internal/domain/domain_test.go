package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	items := DefaultCatalog(now)

	require.Len(t, items, 10)
	assert.Equal(t, InventoryItem{Stock: 10, Price: 100, LastUpdated: now}, items["Shirts"])
	assert.Equal(t, InventoryItem{Stock: 100, Price: 1000, LastUpdated: now}, items["Dresses"])
	for id, item := range items {
		assert.Zero(t, item.Reserved, id)
		assert.Equal(t, int64(item.Stock)*10, item.Price, id)
	}
}

func TestCloneInventory_IsIndependent(t *testing.T) {
	src := DefaultCatalog(time.Now())
	dst := CloneInventory(src)

	item := dst["Hats"]
	item.Reserved = 5
	dst["Hats"] = item
	delete(dst, "Socks")

	assert.Zero(t, src["Hats"].Reserved)
	assert.Contains(t, src, "Socks")
	assert.Nil(t, CloneInventory(nil))
}

func TestSortedProductIDs(t *testing.T) {
	ids := SortedProductIDs(DefaultCatalog(time.Now()))
	assert.Equal(t, "Dresses", ids[0])
	assert.Equal(t, "Sweaters", ids[len(ids)-1])
}

func TestOrderOutcome_JSON(t *testing.T) {
	tests := []struct {
		name    string
		outcome OrderOutcome
		want    string
	}{
		{
			name:    "out of stock",
			outcome: OutOfStock(),
			want:    `{"status":"Out of Stock"}`,
		},
		{
			name:    "payment failed keeps refunded false",
			outcome: PaymentFailed("TXN-FAILED-1", false),
			want:    `{"status":"Payment Failed","transactionId":"TXN-FAILED-1","refunded":false}`,
		},
		{
			name:    "confirmed",
			outcome: OrderConfirmed("TXN-1", ShippingQuote{ShippingCost: 20, EstimatedDelivery: "3 business days", FinalTotal: 220}, "res-1"),
			want:    `{"status":"Order Confirmed","transactionId":"TXN-1","shipping":{"shippingCost":20,"estimatedDelivery":"3 business days","finalTotal":220},"inventoryReservationId":"res-1"}`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b, err := json.Marshal(tc.outcome)
			require.NoError(t, err)
			assert.JSONEq(t, tc.want, string(b))
			assert.NoError(t, tc.outcome.Validate())
		})
	}
}

func TestOrderOutcome_ValidateRejectsMismatchedVariant(t *testing.T) {
	assert.Error(t, OrderOutcome{Status: OutcomePaymentFailed}.Validate())
	assert.Error(t, OrderOutcome{Status: OutcomeOrderConfirmed}.Validate())
	assert.Error(t, OrderOutcome{Status: "Shipped"}.Validate())
}

func TestOutcomeStatus_Label(t *testing.T) {
	assert.Equal(t, "out_of_stock", OutcomeOutOfStock.Label())
	assert.Equal(t, "payment_failed", OutcomePaymentFailed.Label())
	assert.Equal(t, "confirmed", OutcomeOrderConfirmed.Label())
	assert.False(t, OutcomeStatus("x").Valid())
}

func TestRun_Result(t *testing.T) {
	outcome := OutOfStock()

	assert.Equal(t, RunResult{Status: ResultRunning}, (&Run{Status: RunStatusRunning}).Result())
	assert.Equal(t, RunResult{Status: ResultCompleted, Outcome: &outcome},
		(&Run{Status: RunStatusCompleted, Outcome: &outcome}).Result())
	assert.Equal(t, RunResult{Status: ResultFailed, Error: "step checkInventory: boom"},
		(&Run{Status: RunStatusFailed, Error: "step checkInventory: boom"}).Result())
}

func TestActivityProgress_Settled(t *testing.T) {
	p := NewActivityProgress()
	assert.False(t, p.Settled())

	p.InventoryCheck = ProgressCompleted
	p.PaymentProcessing = ProgressFailed
	p.ShippingCalculation = ProgressCompleted
	assert.True(t, p.Settled())
}

func TestEventKind_Valid(t *testing.T) {
	assert.True(t, EventActivityScheduled.Valid())
	assert.True(t, EventWorkflowFailed.Valid())
	assert.False(t, EventKind("ActivityStarted").Valid())
}
