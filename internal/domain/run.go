package domain

import (
	"time"
)

// RunStatus is the substrate state of a saga run. FAILED means an
// infrastructure fault; business rejections complete normally.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusFailed    RunStatus = "FAILED"
)

// Closed reports whether the run has finished.
func (s RunStatus) Closed() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// Run is the substrate's record of one saga execution.
type Run struct {
	ID        string        `json:"id"`
	Input     OrderInput    `json:"input"`
	Status    RunStatus     `json:"status"`
	Outcome   *OrderOutcome `json:"outcome,omitempty"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"startedAt"`
	ClosedAt  *time.Time    `json:"closedAt,omitempty"`
}

// Result states reported to callers.
const (
	ResultRunning   = "running"
	ResultCompleted = "completed"
	ResultFailed    = "failed"
)

// RunResult is what callers see when asking for an order's result.
type RunResult struct {
	Status  string        `json:"status"`
	Outcome *OrderOutcome `json:"result,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// Result converts the run record into the caller view.
func (r *Run) Result() RunResult {
	switch r.Status {
	case RunStatusCompleted:
		return RunResult{Status: ResultCompleted, Outcome: r.Outcome}
	case RunStatusFailed:
		return RunResult{Status: ResultFailed, Error: r.Error}
	default:
		return RunResult{Status: ResultRunning}
	}
}

// RunSummary is a row of the run listing.
type RunSummary struct {
	ID        string        `json:"workflowId"`
	ProductID string        `json:"productId"`
	Quantity  int           `json:"quantity"`
	Status    RunStatus     `json:"status"`
	Outcome   OutcomeStatus `json:"outcome,omitempty"`
	StartedAt time.Time     `json:"startedAt"`
	ClosedAt  *time.Time    `json:"closedAt,omitempty"`
}

// Summary returns the listing row for r.
func (r *Run) Summary() RunSummary {
	s := RunSummary{
		ID:        r.ID,
		ProductID: r.Input.ProductID,
		Quantity:  r.Input.Quantity,
		Status:    r.Status,
		StartedAt: r.StartedAt,
		ClosedAt:  r.ClosedAt,
	}
	if r.Outcome != nil {
		s.Outcome = r.Outcome.Status
	}
	return s
}
