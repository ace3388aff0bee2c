package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/ordersaga/internal/domain"
	"github.com/utafrali/ordersaga/internal/engine"
)

// SagaState names a state of the order saga.
type SagaState string

const (
	StateCheckingInventory   SagaState = "CheckingInventory"
	StateProcessingPayment   SagaState = "ProcessingPayment"
	StateCompensating        SagaState = "Compensating"
	StateConfirmingInventory SagaState = "ConfirmingInventory"
	StateCalculatingShipping SagaState = "CalculatingShipping"
	StateCompleted           SagaState = "Completed"
)

// Inventory is the ledger surface the saga drives.
type Inventory interface {
	Reserve(ctx context.Context, productID string, quantity int) (domain.ReserveResult, error)
	Release(ctx context.Context, productID string, quantity int) (domain.ReleaseResult, error)
	Confirm(ctx context.Context, productID string, quantity int) (domain.ConfirmResult, error)
}

// PaymentGateway charges customers.
type PaymentGateway interface {
	Charge(ctx context.Context, amount int64, customerID string) (domain.PaymentResult, error)
}

// ShippingCalculator quotes shipping.
type ShippingCalculator interface {
	Quote(quantity int, baseAmount int64, address string) domain.ShippingQuote
}

type stockRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type chargeRequest struct {
	Amount     int64  `json:"amount"`
	CustomerID string `json:"customerId"`
}

type quoteRequest struct {
	Quantity   int    `json:"quantity"`
	BaseAmount int64  `json:"baseAmount"`
	Address    string `json:"address"`
}

// OrderSaga sequences reserve, charge, confirm and quote for one order and
// releases the reservation when payment fails.
type OrderSaga struct {
	inventory Inventory
	payments  PaymentGateway
	shipping  ShippingCalculator
}

// NewOrderSaga creates the saga.
func NewOrderSaga(inventory Inventory, payments PaymentGateway, shipping ShippingCalculator) *OrderSaga {
	return &OrderSaga{inventory: inventory, payments: payments, shipping: shipping}
}

// Run executes the saga for input. Business rejections are returned as
// outcomes; an error means a step could not be carried out.
func (s *OrderSaga) Run(wctx *engine.Context, input domain.OrderInput) (domain.OrderOutcome, error) {
	ctx := wctx.Context()
	l := wctx.Logger().With(slog.String("product_id", input.ProductID))
	transition := func(from, to SagaState) {
		l.InfoContext(ctx, "saga transition", slog.String("from", string(from)), slog.String("to", string(to)))
	}

	reservation, err := engine.ExecuteStep(wctx, domain.StepCheckInventory, s.reserve,
		stockRequest{ProductID: input.ProductID, Quantity: input.Quantity})
	switch {
	case err != nil && engine.IsTimeout(err):
		transition(StateCheckingInventory, StateCompleted)
		return domain.OutOfStock(), nil
	case err != nil:
		return domain.OrderOutcome{}, fmt.Errorf("check inventory: %w", err)
	case !reservation.Available:
		transition(StateCheckingInventory, StateCompleted)
		return domain.OutOfStock(), nil
	}
	transition(StateCheckingInventory, StateProcessingPayment)

	amount := int64(reservation.ReservedQuantity) * reservation.UnitPrice
	payment, err := engine.ExecuteStep(wctx, domain.StepProcessPayment, s.charge,
		chargeRequest{Amount: amount, CustomerID: input.CustomerID})
	if err != nil || !payment.Success {
		transition(StateProcessingPayment, StateCompensating)
		return s.compensate(wctx, input, reservation, payment, err)
	}
	transition(StateProcessingPayment, StateConfirmingInventory)

	confirmed, err := engine.ExecuteStep(wctx, domain.StepConfirmInventory, s.confirm,
		stockRequest{ProductID: input.ProductID, Quantity: reservation.ReservedQuantity})
	if err != nil || !confirmed.Confirmed {
		// The order stays committed; the reservation is left in place.
		attrs := []any{slog.String("reservation_id", reservation.ReservationID)}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		l.ErrorContext(ctx, "inventory confirmation failed, continuing with order", attrs...)
	}
	transition(StateConfirmingInventory, StateCalculatingShipping)

	quote, err := engine.ExecuteStep(wctx, domain.StepCalculateShipping, s.quote,
		quoteRequest{Quantity: reservation.ReservedQuantity, BaseAmount: payment.Amount, Address: input.CustomerAddress})
	if err != nil {
		return domain.OrderOutcome{}, fmt.Errorf("calculate shipping: %w", err)
	}
	transition(StateCalculatingShipping, StateCompleted)

	return domain.OrderConfirmed(payment.TransactionID, quote, reservation.ReservationID), nil
}

// compensate releases exactly the reserved quantity once. A failed release
// still yields PaymentFailed, with refunded=false.
func (s *OrderSaga) compensate(
	wctx *engine.Context,
	input domain.OrderInput,
	reservation domain.ReserveResult,
	payment domain.PaymentResult,
	chargeErr error,
) (domain.OrderOutcome, error) {
	ctx := wctx.Context()
	l := wctx.Logger()

	attrs := []any{
		slog.String("product_id", input.ProductID),
		slog.String("transaction_id", payment.TransactionID),
	}
	if chargeErr != nil {
		attrs = append(attrs, slog.String("error", chargeErr.Error()))
	}
	l.WarnContext(ctx, "payment failed, releasing reservation", attrs...)

	released, err := engine.ExecuteStep(wctx, domain.StepReleaseInventory, s.release,
		stockRequest{ProductID: input.ProductID, Quantity: reservation.ReservedQuantity})
	if err != nil {
		l.ErrorContext(ctx, "release after failed payment did not complete",
			slog.String("reservation_id", reservation.ReservationID),
			slog.String("error", err.Error()),
		)
	}
	l.InfoContext(ctx, "saga transition",
		slog.String("from", string(StateCompensating)),
		slog.String("to", string(StateCompleted)),
	)
	return domain.PaymentFailed(payment.TransactionID, err == nil && released.Released), nil
}

func (s *OrderSaga) reserve(ctx context.Context, in stockRequest) (domain.ReserveResult, error) {
	return s.inventory.Reserve(ctx, in.ProductID, in.Quantity)
}

func (s *OrderSaga) release(ctx context.Context, in stockRequest) (domain.ReleaseResult, error) {
	return s.inventory.Release(ctx, in.ProductID, in.Quantity)
}

func (s *OrderSaga) confirm(ctx context.Context, in stockRequest) (domain.ConfirmResult, error) {
	return s.inventory.Confirm(ctx, in.ProductID, in.Quantity)
}

func (s *OrderSaga) charge(ctx context.Context, in chargeRequest) (domain.PaymentResult, error) {
	return s.payments.Charge(ctx, in.Amount, in.CustomerID)
}

func (s *OrderSaga) quote(ctx context.Context, in quoteRequest) (domain.ShippingQuote, error) {
	if err := ctx.Err(); err != nil {
		return domain.ShippingQuote{}, err
	}
	return s.shipping.Quote(in.Quantity, in.BaseAmount, in.Address), nil
}
