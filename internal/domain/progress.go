package domain

// ProgressStatus is the state of one tracked step.
type ProgressStatus string

const (
	ProgressPending   ProgressStatus = "pending"
	ProgressCompleted ProgressStatus = "completed"
	ProgressFailed    ProgressStatus = "failed"
)

// Resolved reports whether s is terminal. Resolved statuses never revert to
// pending.
func (s ProgressStatus) Resolved() bool {
	return s == ProgressCompleted || s == ProgressFailed
}

// ActivityProgress is the three-stage view of a run shown to observers.
type ActivityProgress struct {
	InventoryCheck      ProgressStatus `json:"inventoryCheck"`
	PaymentProcessing   ProgressStatus `json:"paymentProcessing"`
	ShippingCalculation ProgressStatus `json:"shippingCalculation"`
}

// NewActivityProgress returns progress with every stage pending.
func NewActivityProgress() ActivityProgress {
	return ActivityProgress{
		InventoryCheck:      ProgressPending,
		PaymentProcessing:   ProgressPending,
		ShippingCalculation: ProgressPending,
	}
}

// Settled reports whether every stage is resolved.
func (p ActivityProgress) Settled() bool {
	return p.InventoryCheck.Resolved() && p.PaymentProcessing.Resolved() && p.ShippingCalculation.Resolved()
}
