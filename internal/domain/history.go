package domain

import (
	"encoding/json"
	"time"
)

// Step names recorded in run history.
const (
	StepCheckInventory    = "checkInventory"
	StepProcessPayment    = "processPayment"
	StepReleaseInventory  = "releaseInventory"
	StepConfirmInventory  = "confirmInventory"
	StepCalculateShipping = "calculateShipping"
)

// EventKind is the closed set of history event kinds.
type EventKind string

const (
	EventWorkflowStarted   EventKind = "WorkflowStarted"
	EventWorkflowCompleted EventKind = "WorkflowCompleted"
	EventWorkflowFailed    EventKind = "WorkflowFailed"
	EventActivityScheduled EventKind = "ActivityScheduled"
	EventActivityCompleted EventKind = "ActivityCompleted"
	EventActivityFailed    EventKind = "ActivityFailed"
)

// Valid reports whether k belongs to the closed set.
func (k EventKind) Valid() bool {
	switch k {
	case EventWorkflowStarted, EventWorkflowCompleted, EventWorkflowFailed,
		EventActivityScheduled, EventActivityCompleted, EventActivityFailed:
		return true
	}
	return false
}

// HistoryEvent is one entry of a run's append-only history. EventIDs start at
// 1 and increase by one per run. ScheduledEventID links a completion or
// failure to its ActivityScheduled event.
type HistoryEvent struct {
	EventID          int64           `json:"eventId"`
	Kind             EventKind       `json:"kind"`
	StepName         string          `json:"stepName,omitempty"`
	ScheduledEventID int64           `json:"scheduledEventId,omitempty"`
	Result           json.RawMessage `json:"result,omitempty"`
	Failure          string          `json:"failure,omitempty"`
	Timestamp        time.Time       `json:"timestamp"`
}

// HistoryEntry is the simplified history row returned to clients.
type HistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Activity  string    `json:"activity"`
	Status    string    `json:"status"`
}
