package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/utafrali/ordersaga/internal/domain"
	"github.com/utafrali/ordersaga/internal/engine"
	"github.com/utafrali/ordersaga/internal/repository/memory"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newLoadedLedger(t *testing.T) (*InventoryLedger, *memory.InventoryStore) {
	t.Helper()
	store := memory.NewInventoryStore()
	ledger := NewInventoryLedger(store, newTestLogger())
	require.NoError(t, ledger.Load(context.Background()))
	return ledger, store
}

func alwaysApprove() OutcomeDecider {
	return DeciderFunc(func(context.Context, int64, string) bool { return true })
}

func alwaysDecline() OutcomeDecider {
	return DeciderFunc(func(context.Context, int64, string) bool { return false })
}

func fixedDays(n int) ShippingOption {
	return WithDeliveryDays(func() int { return n })
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu        sync.Mutex
	submitted []string
	closed    []domain.Run
	resets    int
	err       error
}

func (p *recordingPublisher) PublishOrderSubmitted(_ context.Context, runID string, _ domain.OrderInput) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.submitted = append(p.submitted, runID)
	return p.err
}

func (p *recordingPublisher) PublishOrderClosed(_ context.Context, run *domain.Run) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = append(p.closed, *run)
	return p.err
}

func (p *recordingPublisher) PublishInventoryReset(context.Context, domain.InventoryStats) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resets++
	return p.err
}

func (p *recordingPublisher) closedRuns() []domain.Run {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Run(nil), p.closed...)
}

type sagaHarness struct {
	engine  *engine.Engine
	history *memory.HistoryStore
}

func newSagaHarness(t *testing.T, stepTimeout time.Duration, opts ...engine.Option) *sagaHarness {
	t.Helper()
	history := memory.NewHistoryStore()
	eng := engine.New(memory.NewRunStore(), history,
		engine.Config{StepTimeout: stepTimeout, RunTimeout: 5 * time.Second},
		newTestLogger(), opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = eng.Shutdown(ctx)
	})
	return &sagaHarness{engine: eng, history: history}
}

// run starts saga for input and waits for the run to close.
func (h *sagaHarness) run(t *testing.T, saga *OrderSaga, input domain.OrderInput) (*domain.Run, []domain.HistoryEvent) {
	t.Helper()
	ctx := context.Background()
	runID := NewRunID(time.Now())

	_, err := h.engine.Start(ctx, runID, input, saga.Run)
	require.NoError(t, err)

	var run *domain.Run
	require.Eventually(t, func() bool {
		r, err := h.engine.Describe(ctx, runID)
		if err != nil || !r.Status.Closed() {
			return false
		}
		run = r
		return true
	}, 5*time.Second, 5*time.Millisecond)

	events, err := h.engine.History(ctx, runID)
	require.NoError(t, err)
	return run, events
}

func order(productID string, quantity int, customerID string) domain.OrderInput {
	return domain.OrderInput{
		ProductID:       productID,
		Quantity:        quantity,
		CustomerID:      customerID,
		CustomerAddress: "221B Baker Street",
	}
}

func stepsRun(events []domain.HistoryEvent) []string {
	var steps []string
	for _, ev := range events {
		if ev.Kind == domain.EventActivityScheduled {
			steps = append(steps, ev.StepName)
		}
	}
	return steps
}
