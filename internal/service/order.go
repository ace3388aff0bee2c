package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/ordersaga/internal/domain"
	"github.com/utafrali/ordersaga/internal/engine"
	apperrors "github.com/utafrali/ordersaga/pkg/errors"
	"github.com/utafrali/ordersaga/pkg/pagination"
	"github.com/utafrali/ordersaga/pkg/validator"
)

// ErrCouldNotStart wraps every failure to start a run.
var ErrCouldNotStart = errors.New("could not start order")

// RunEngine is the execution substrate used by OrderService.
type RunEngine interface {
	Start(ctx context.Context, runID string, input domain.OrderInput, wf engine.Workflow) (*domain.Run, error)
	Describe(ctx context.Context, runID string) (*domain.Run, error)
	History(ctx context.Context, runID string) ([]domain.HistoryEvent, error)
	List(ctx context.Context, offset, limit int) ([]domain.Run, int, error)
}

// EventPublisher publishes order and inventory lifecycle events.
type EventPublisher interface {
	PublishOrderSubmitted(ctx context.Context, runID string, input domain.OrderInput) error
	PublishOrderClosed(ctx context.Context, run *domain.Run) error
	PublishInventoryReset(ctx context.Context, stats domain.InventoryStats) error
}

// OrderService is the entry point for submitting and observing orders.
type OrderService struct {
	engine RunEngine
	saga   *OrderSaga
	events EventPublisher
	logger *slog.Logger
	now    func() time.Time
}

// NewOrderService creates a new order service.
func NewOrderService(eng RunEngine, saga *OrderSaga, events EventPublisher, logger *slog.Logger) *OrderService {
	return &OrderService{
		engine: eng,
		saga:   saga,
		events: events,
		logger: logger,
		now:    time.Now,
	}
}

// NewRunID returns an ID of the form order-<unixmillis>-<8 hex>.
func NewRunID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("order-%d-%s", now.UnixMilli(), suffix)
}

// Submit validates input and starts a saga run for it.
func (s *OrderService) Submit(ctx context.Context, input domain.OrderInput) (string, error) {
	runID := NewRunID(s.now())
	if err := s.StartWithID(ctx, runID, input); err != nil {
		return "", err
	}
	return runID, nil
}

// StartWithID starts a run under a caller-chosen ID. A taken ID fails with
// an error matching engine.ErrRunExists.
func (s *OrderService) StartWithID(ctx context.Context, runID string, input domain.OrderInput) error {
	if err := validator.Validate(input); err != nil {
		return err
	}
	if _, err := s.engine.Start(ctx, runID, input, s.saga.Run); err != nil {
		s.logger.ErrorContext(ctx, "failed to start order",
			slog.String("run_id", runID),
			slog.String("error", err.Error()),
		)
		return apperrors.ServiceUnavailable(ErrCouldNotStart.Error(), fmt.Errorf("%w: %w", ErrCouldNotStart, err))
	}

	s.logger.InfoContext(ctx, "order submitted",
		slog.String("run_id", runID),
		slog.String("product_id", input.ProductID),
		slog.Int("quantity", input.Quantity),
		slog.String("customer_id", input.CustomerID),
	)
	if err := s.events.PublishOrderSubmitted(ctx, runID, input); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish order.submitted event",
			slog.String("run_id", runID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// Result reports whether the run is still running, completed with an
// outcome, or failed.
func (s *OrderService) Result(ctx context.Context, runID string) (domain.RunResult, error) {
	run, err := s.engine.Describe(ctx, runID)
	if err != nil {
		return domain.RunResult{}, fmt.Errorf("get order result: %w", err)
	}
	return run.Result(), nil
}

// Progress projects the run's history onto the three tracked stages.
func (s *OrderService) Progress(ctx context.Context, runID string) (domain.ActivityProgress, error) {
	run, events, err := s.runWithHistory(ctx, runID)
	if err != nil {
		return domain.ActivityProgress{}, fmt.Errorf("get order progress: %w", err)
	}
	return ProjectProgress(events, run.Outcome), nil
}

// Snapshot returns progress together with the run result, read from one
// history snapshot.
func (s *OrderService) Snapshot(ctx context.Context, runID string) (domain.ActivityProgress, domain.RunResult, error) {
	run, events, err := s.runWithHistory(ctx, runID)
	if err != nil {
		return domain.ActivityProgress{}, domain.RunResult{}, fmt.Errorf("get order snapshot: %w", err)
	}
	return ProjectProgress(events, run.Outcome), run.Result(), nil
}

func (s *OrderService) runWithHistory(ctx context.Context, runID string) (*domain.Run, []domain.HistoryEvent, error) {
	events, err := s.engine.History(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	// Read the run after the history so a closed run's outcome always has
	// its events present.
	run, err := s.engine.Describe(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	return run, events, nil
}

// History returns a simplified, time-ordered view of the run's events.
func (s *OrderService) History(ctx context.Context, runID string) ([]domain.HistoryEntry, error) {
	events, err := s.engine.History(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("get order history: %w", err)
	}

	steps := make(map[int64]string)
	entries := make([]domain.HistoryEntry, 0, len(events))
	for _, ev := range events {
		entry := domain.HistoryEntry{Timestamp: ev.Timestamp}
		switch ev.Kind {
		case domain.EventWorkflowStarted:
			entry.Activity, entry.Status = "Workflow Started", "started"
		case domain.EventWorkflowCompleted:
			entry.Activity, entry.Status = "Workflow Completed", "completed"
		case domain.EventWorkflowFailed:
			entry.Activity, entry.Status = "Workflow Failed", "failed"
		case domain.EventActivityScheduled:
			steps[ev.EventID] = ev.StepName
			entry.Activity, entry.Status = ev.StepName, "scheduled"
		case domain.EventActivityCompleted:
			entry.Activity, entry.Status = stepName(steps, ev), "completed"
		case domain.EventActivityFailed:
			entry.Activity, entry.Status = stepName(steps, ev), "failed"
		default:
			continue
		}
		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}

func stepName(steps map[int64]string, ev domain.HistoryEvent) string {
	if name, ok := steps[ev.ScheduledEventID]; ok {
		return name
	}
	if ev.StepName != "" {
		return ev.StepName
	}
	return "unknown"
}

// List returns a page of runs, newest first.
func (s *OrderService) List(ctx context.Context, params pagination.Params) (pagination.Result[domain.RunSummary], error) {
	runs, total, err := s.engine.List(ctx, params.Offset, params.PerPage)
	if err != nil {
		return pagination.Result[domain.RunSummary]{}, fmt.Errorf("list orders: %w", err)
	}
	summaries := make([]domain.RunSummary, len(runs))
	for i := range runs {
		summaries[i] = runs[i].Summary()
	}
	return pagination.NewResult(summaries, total, params), nil
}

// HandleRunClosed is registered as the engine close hook. It counts the
// outcome and publishes it.
func (s *OrderService) HandleRunClosed(ctx context.Context, run *domain.Run) {
	label := "failed"
	if run.Status == domain.RunStatusCompleted && run.Outcome != nil {
		label = run.Outcome.Status.Label()
	}
	ordersTotal.WithLabelValues(label).Inc()

	if err := s.events.PublishOrderClosed(ctx, run); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish order outcome event",
			slog.String("run_id", run.ID),
			slog.String("outcome", label),
			slog.String("error", err.Error()),
		)
	}
}
