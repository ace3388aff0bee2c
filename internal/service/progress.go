package service

import (
	"github.com/utafrali/ordersaga/internal/domain"
)

// ProjectProgress reduces a run's history to the three tracked stages.
//
// Completion and failure events are matched to their schedule event by ID;
// events whose schedule event is missing are ignored. A stage is set by the
// first event that resolves it and never returns to pending. When the run
// has a terminal outcome it overrides the raw events: under OutOfStock a
// completed inventory check counts as failed, and under PaymentFailed a
// completed payment counts as failed.
func ProjectProgress(events []domain.HistoryEvent, outcome *domain.OrderOutcome) domain.ActivityProgress {
	scheduled := make(map[int64]string)
	for _, ev := range events {
		if ev.Kind == domain.EventActivityScheduled {
			scheduled[ev.EventID] = ev.StepName
		}
	}

	progress := domain.NewActivityProgress()
	for _, ev := range events {
		status, ok := stepResolution(ev.Kind)
		if !ok {
			continue
		}

		step, ok := scheduled[ev.ScheduledEventID]
		if !ok {
			continue
		}
		field := stageFor(&progress, step)
		if field == nil || field.Resolved() {
			continue
		}
		*field = status
	}

	if outcome != nil {
		switch outcome.Status {
		case domain.OutcomeOutOfStock:
			if progress.InventoryCheck == domain.ProgressCompleted {
				progress.InventoryCheck = domain.ProgressFailed
			}
		case domain.OutcomePaymentFailed:
			if progress.PaymentProcessing == domain.ProgressCompleted {
				progress.PaymentProcessing = domain.ProgressFailed
			}
		case domain.OutcomeOrderConfirmed:
		}
	}
	return progress
}

// stepResolution maps an event kind to the stage status it settles. Every
// kind in the closed set is listed; a value outside it resolves nothing.
func stepResolution(kind domain.EventKind) (domain.ProgressStatus, bool) {
	switch kind {
	case domain.EventActivityCompleted:
		return domain.ProgressCompleted, true
	case domain.EventActivityFailed:
		return domain.ProgressFailed, true
	case domain.EventActivityScheduled,
		domain.EventWorkflowStarted,
		domain.EventWorkflowCompleted,
		domain.EventWorkflowFailed:
		return "", false
	}
	return "", false
}

func stageFor(p *domain.ActivityProgress, step string) *domain.ProgressStatus {
	switch step {
	case domain.StepCheckInventory:
		return &p.InventoryCheck
	case domain.StepProcessPayment:
		return &p.PaymentProcessing
	case domain.StepCalculateShipping:
		return &p.ShippingCalculation
	default:
		return nil
	}
}
