package domain

import (
	"fmt"
)

// OrderInput is the immutable request a saga run is started with.
type OrderInput struct {
	ProductID       string `json:"productId" validate:"required,max=64,printascii"`
	Quantity        int    `json:"quantity" validate:"required,gt=0,lte=10000"`
	CustomerID      string `json:"customerId" validate:"required,max=128"`
	CustomerAddress string `json:"customerAddress" validate:"required,max=512"`
}

// PaymentResult is the outcome of a charge attempt.
type PaymentResult struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transactionId"`
	Amount        int64  `json:"amount"`
}

// ShippingQuote is the shipping cost and ETA for a confirmed order.
type ShippingQuote struct {
	ShippingCost      int64  `json:"shippingCost"`
	EstimatedDelivery string `json:"estimatedDelivery"`
	FinalTotal        int64  `json:"finalTotal"`
}

// OutcomeStatus names the terminal state of an order.
type OutcomeStatus string

// Terminal order states.
const (
	OutcomeOutOfStock     OutcomeStatus = "Out of Stock"
	OutcomePaymentFailed  OutcomeStatus = "Payment Failed"
	OutcomeOrderConfirmed OutcomeStatus = "Order Confirmed"
)

// Valid reports whether s is one of the terminal states.
func (s OutcomeStatus) Valid() bool {
	switch s {
	case OutcomeOutOfStock, OutcomePaymentFailed, OutcomeOrderConfirmed:
		return true
	}
	return false
}

// Label returns a stable lowercase form for metrics and topics.
func (s OutcomeStatus) Label() string {
	switch s {
	case OutcomeOutOfStock:
		return "out_of_stock"
	case OutcomePaymentFailed:
		return "payment_failed"
	case OutcomeOrderConfirmed:
		return "confirmed"
	}
	return "unknown"
}

// OrderOutcome is the single terminal result of a saga run. Which fields are
// set depends on Status; use the constructors.
type OrderOutcome struct {
	Status                 OutcomeStatus  `json:"status"`
	TransactionID          string         `json:"transactionId,omitempty"`
	Refunded               *bool          `json:"refunded,omitempty"`
	Shipping               *ShippingQuote `json:"shipping,omitempty"`
	InventoryReservationID string         `json:"inventoryReservationId,omitempty"`
}

// OutOfStock is the outcome when inventory could not be reserved.
func OutOfStock() OrderOutcome {
	return OrderOutcome{Status: OutcomeOutOfStock}
}

// PaymentFailed is the outcome after a declined charge and compensation.
func PaymentFailed(transactionID string, refunded bool) OrderOutcome {
	return OrderOutcome{Status: OutcomePaymentFailed, TransactionID: transactionID, Refunded: &refunded}
}

// OrderConfirmed is the outcome of a fully processed order.
func OrderConfirmed(transactionID string, shipping ShippingQuote, reservationID string) OrderOutcome {
	return OrderOutcome{
		Status:                 OutcomeOrderConfirmed,
		TransactionID:          transactionID,
		Shipping:               &shipping,
		InventoryReservationID: reservationID,
	}
}

// Validate checks that the fields match the variant.
func (o OrderOutcome) Validate() error {
	switch o.Status {
	case OutcomeOutOfStock:
		return nil
	case OutcomePaymentFailed:
		if o.Refunded == nil {
			return fmt.Errorf("payment failed outcome without refunded flag")
		}
		return nil
	case OutcomeOrderConfirmed:
		if o.Shipping == nil {
			return fmt.Errorf("confirmed outcome without shipping quote")
		}
		return nil
	default:
		return fmt.Errorf("unknown outcome status %q", o.Status)
	}
}
