package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/ordersaga/internal/domain"
	"github.com/utafrali/ordersaga/internal/repository/memory"
)

// stubInventory delegates to a ledger unless a hook overrides the call.
type stubInventory struct {
	*InventoryLedger
	reserve func(ctx context.Context, productID string, quantity int) (domain.ReserveResult, error)
	release func(ctx context.Context, productID string, quantity int) (domain.ReleaseResult, error)
	confirm func(ctx context.Context, productID string, quantity int) (domain.ConfirmResult, error)

	releases int
}

func (s *stubInventory) Reserve(ctx context.Context, productID string, quantity int) (domain.ReserveResult, error) {
	if s.reserve != nil {
		return s.reserve(ctx, productID, quantity)
	}
	return s.InventoryLedger.Reserve(ctx, productID, quantity)
}

func (s *stubInventory) Release(ctx context.Context, productID string, quantity int) (domain.ReleaseResult, error) {
	s.releases++
	if s.release != nil {
		return s.release(ctx, productID, quantity)
	}
	return s.InventoryLedger.Release(ctx, productID, quantity)
}

func (s *stubInventory) Confirm(ctx context.Context, productID string, quantity int) (domain.ConfirmResult, error) {
	if s.confirm != nil {
		return s.confirm(ctx, productID, quantity)
	}
	return s.InventoryLedger.Confirm(ctx, productID, quantity)
}

type panickingShipping struct{}

func (panickingShipping) Quote(int, int64, string) domain.ShippingQuote {
	panic("carrier rate table missing")
}

func newSaga(inv Inventory, decider OutcomeDecider, opts ...PaymentOption) *OrderSaga {
	opts = append([]PaymentOption{WithDecider(decider)}, opts...)
	return NewOrderSaga(inv, NewPaymentSimulator(newTestLogger(), opts...), NewShippingEstimator(DefaultShippingRate, fixedDays(5)))
}

func TestOrderSaga_OrderConfirmed(t *testing.T) {
	ledger, _ := newLoadedLedger(t)
	h := newSagaHarness(t, time.Second)

	run, events := h.run(t, newSaga(ledger, alwaysApprove()), order("Pants", 3, "cust-1"))

	require.Equal(t, domain.RunStatusCompleted, run.Status)
	out := run.Outcome
	require.NotNil(t, out)
	assert.Equal(t, domain.OutcomeOrderConfirmed, out.Status)
	assert.Regexp(t, `^TXN-[0-9a-f-]{36}$`, out.TransactionID)
	assert.NotEmpty(t, out.InventoryReservationID)
	assert.Nil(t, out.Refunded)
	require.NotNil(t, out.Shipping)
	assert.Equal(t, int64(30), out.Shipping.ShippingCost)
	assert.Equal(t, int64(3*200+30), out.Shipping.FinalTotal)
	assert.Equal(t, "5 business days", out.Shipping.EstimatedDelivery)

	item, _ := ledger.Item(context.Background(), "Pants")
	assert.Equal(t, 17, item.Stock)
	assert.Zero(t, item.Reserved)

	assert.Equal(t, []string{
		domain.StepCheckInventory,
		domain.StepProcessPayment,
		domain.StepConfirmInventory,
		domain.StepCalculateShipping,
	}, stepsRun(events))
	assert.Equal(t, domain.ActivityProgress{
		InventoryCheck:      domain.ProgressCompleted,
		PaymentProcessing:   domain.ProgressCompleted,
		ShippingCalculation: domain.ProgressCompleted,
	}, ProjectProgress(events, run.Outcome))
}

func TestOrderSaga_OutOfStock(t *testing.T) {
	tests := []struct {
		name  string
		input domain.OrderInput
	}{
		{"insufficient stock", order("Shirts", 11, "cust-1")},
		{"unknown product", order("Umbrellas", 1, "cust-1")},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ledger, _ := newLoadedLedger(t)
			h := newSagaHarness(t, time.Second)
			before, _ := ledger.Snapshot(context.Background())

			run, events := h.run(t, newSaga(ledger, alwaysApprove()), tc.input)

			require.Equal(t, domain.RunStatusCompleted, run.Status)
			assert.Equal(t, domain.OutOfStock(), *run.Outcome)
			assert.Equal(t, []string{domain.StepCheckInventory}, stepsRun(events))

			after, _ := ledger.Snapshot(context.Background())
			assert.Equal(t, before, after)

			assert.Equal(t, domain.ActivityProgress{
				InventoryCheck:      domain.ProgressFailed,
				PaymentProcessing:   domain.ProgressPending,
				ShippingCalculation: domain.ProgressPending,
			}, ProjectProgress(events, run.Outcome))
		})
	}
}

func TestOrderSaga_InventoryTimeoutIsOutOfStock(t *testing.T) {
	ledger, _ := newLoadedLedger(t)
	inv := &stubInventory{
		InventoryLedger: ledger,
		reserve: func(ctx context.Context, _ string, _ int) (domain.ReserveResult, error) {
			<-ctx.Done()
			return domain.ReserveResult{}, ctx.Err()
		},
	}
	h := newSagaHarness(t, 20*time.Millisecond)

	run, events := h.run(t, newSaga(inv, alwaysApprove()), order("Shirts", 1, "cust-1"))

	require.Equal(t, domain.RunStatusCompleted, run.Status)
	assert.Equal(t, domain.OutcomeOutOfStock, run.Outcome.Status)
	assert.Equal(t, domain.ProgressFailed, ProjectProgress(events, run.Outcome).InventoryCheck)
}

func TestOrderSaga_InventoryFaultFailsRun(t *testing.T) {
	ledger := NewInventoryLedger(memory.NewInventoryStore(), newTestLogger())
	h := newSagaHarness(t, time.Second)

	run, events := h.run(t, newSaga(ledger, alwaysApprove()), order("Shirts", 1, "cust-1"))

	assert.Equal(t, domain.RunStatusFailed, run.Status)
	assert.Nil(t, run.Outcome)
	assert.Contains(t, run.Error, ErrLedgerNotInitialized.Error())
	assert.Equal(t, domain.RunResult{Status: domain.ResultFailed, Error: run.Error}, run.Result())
	assert.Equal(t, domain.EventWorkflowFailed, events[len(events)-1].Kind)
}

func TestOrderSaga_PaymentDeclinedReleasesReservation(t *testing.T) {
	tests := []struct {
		name       string
		customerID string
		decider    OutcomeDecider
		txnPrefix  string
	}{
		{"forced failure", "fail-customer", alwaysApprove(), "TXN-FAILED-"},
		{"decline", "cust-1", alwaysDecline(), "TXN-DECLINED-"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ledger, _ := newLoadedLedger(t)
			inv := &stubInventory{InventoryLedger: ledger}
			h := newSagaHarness(t, time.Second)

			run, events := h.run(t, newSaga(inv, tc.decider), order("Hats", 4, tc.customerID))

			require.Equal(t, domain.RunStatusCompleted, run.Status)
			out := run.Outcome
			assert.Equal(t, domain.OutcomePaymentFailed, out.Status)
			assert.Regexp(t, "^"+tc.txnPrefix, out.TransactionID)
			require.NotNil(t, out.Refunded)
			assert.True(t, *out.Refunded)
			assert.Equal(t, 1, inv.releases)

			item, _ := ledger.Item(context.Background(), "Hats")
			assert.Equal(t, 40, item.Stock)
			assert.Zero(t, item.Reserved)

			assert.Equal(t, []string{
				domain.StepCheckInventory,
				domain.StepProcessPayment,
				domain.StepReleaseInventory,
			}, stepsRun(events))
			assert.Equal(t, domain.ActivityProgress{
				InventoryCheck:      domain.ProgressCompleted,
				PaymentProcessing:   domain.ProgressFailed,
				ShippingCalculation: domain.ProgressPending,
			}, ProjectProgress(events, run.Outcome))
		})
	}
}

func TestOrderSaga_PaymentTimeoutCompensates(t *testing.T) {
	ledger, _ := newLoadedLedger(t)
	h := newSagaHarness(t, 30*time.Millisecond)

	run, _ := h.run(t, newSaga(ledger, alwaysApprove(), WithGatewayLatency(time.Hour)), order("Socks", 2, "cust-1"))

	require.Equal(t, domain.RunStatusCompleted, run.Status)
	assert.Equal(t, domain.OutcomePaymentFailed, run.Outcome.Status)
	assert.Empty(t, run.Outcome.TransactionID)
	require.NotNil(t, run.Outcome.Refunded)
	assert.True(t, *run.Outcome.Refunded)

	item, _ := ledger.Item(context.Background(), "Socks")
	assert.Zero(t, item.Reserved)
}

func TestOrderSaga_FailedReleaseIsNotRefunded(t *testing.T) {
	ledger, _ := newLoadedLedger(t)
	inv := &stubInventory{
		InventoryLedger: ledger,
		release: func(context.Context, string, int) (domain.ReleaseResult, error) {
			return domain.ReleaseResult{}, errors.New("ledger unavailable")
		},
	}
	h := newSagaHarness(t, time.Second)

	run, _ := h.run(t, newSaga(inv, alwaysDecline()), order("Hats", 4, "cust-1"))

	require.Equal(t, domain.RunStatusCompleted, run.Status)
	assert.Equal(t, domain.OutcomePaymentFailed, run.Outcome.Status)
	require.NotNil(t, run.Outcome.Refunded)
	assert.False(t, *run.Outcome.Refunded)
	assert.Equal(t, 1, inv.releases, "release is attempted exactly once")

	item, _ := ledger.Item(context.Background(), "Hats")
	assert.Equal(t, 4, item.Reserved)
}

// A failed confirmation does not undo the order. The reservation it would
// have consumed stays held.
func TestOrderSaga_ConfirmFailureLeavesReservation(t *testing.T) {
	ledger, _ := newLoadedLedger(t)
	inv := &stubInventory{
		InventoryLedger: ledger,
		confirm: func(context.Context, string, int) (domain.ConfirmResult, error) {
			return domain.ConfirmResult{}, errors.New("ledger unavailable")
		},
	}
	h := newSagaHarness(t, time.Second)

	run, events := h.run(t, newSaga(inv, alwaysApprove()), order("Gloves", 5, "cust-1"))

	require.Equal(t, domain.RunStatusCompleted, run.Status)
	assert.Equal(t, domain.OutcomeOrderConfirmed, run.Outcome.Status)
	assert.Equal(t, int64(5*600+50), run.Outcome.Shipping.FinalTotal)
	assert.Contains(t, stepsRun(events), domain.StepCalculateShipping)

	item, _ := ledger.Item(context.Background(), "Gloves")
	assert.Equal(t, 60, item.Stock)
	assert.Equal(t, 5, item.Reserved)
}

func TestOrderSaga_ShippingPanicFailsRun(t *testing.T) {
	ledger, _ := newLoadedLedger(t)
	saga := NewOrderSaga(ledger, NewPaymentSimulator(newTestLogger(), WithDecider(alwaysApprove())), panickingShipping{})
	h := newSagaHarness(t, time.Second)

	run, events := h.run(t, saga, order("Pants", 1, "cust-1"))

	assert.Equal(t, domain.RunStatusFailed, run.Status)
	assert.Contains(t, run.Error, "carrier rate table missing")
	assert.Equal(t, domain.ProgressFailed, ProjectProgress(events, run.Outcome).ShippingCalculation)
}

func TestOrderSaga_ConcurrentOrdersRespectStock(t *testing.T) {
	ledger, _ := newLoadedLedger(t)
	h := newSagaHarness(t, time.Second)
	saga := newSaga(ledger, alwaysApprove())

	ctx := context.Background()
	ids := make([]string, 8)
	for i := range ids {
		ids[i] = NewRunID(time.Now())
		_, err := h.engine.Start(ctx, ids[i], order("Shirts", 3, "cust"), saga.Run)
		require.NoError(t, err)
	}

	confirmed := 0
	for _, id := range ids {
		require.Eventually(t, func() bool {
			run, err := h.engine.Describe(ctx, id)
			return err == nil && run.Status.Closed()
		}, 5*time.Second, 5*time.Millisecond)
		run, _ := h.engine.Describe(ctx, id)
		if run.Outcome.Status == domain.OutcomeOrderConfirmed {
			confirmed++
		}
	}

	assert.Equal(t, 3, confirmed)
	item, _ := ledger.Item(ctx, "Shirts")
	assert.Equal(t, 1, item.Stock)
	assert.Zero(t, item.Reserved)
}
