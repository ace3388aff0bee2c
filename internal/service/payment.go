package service

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/ordersaga/internal/domain"
	apperrors "github.com/utafrali/ordersaga/pkg/errors"
)

// DefaultFailMarker marks customer IDs whose payments always fail.
const DefaultFailMarker = "fail"

// OutcomeDecider decides whether a charge that is not forced to fail
// succeeds.
type OutcomeDecider interface {
	Decide(ctx context.Context, amount int64, customerID string) bool
}

// DeciderFunc adapts a function to OutcomeDecider.
type DeciderFunc func(ctx context.Context, amount int64, customerID string) bool

// Decide calls f.
func (f DeciderFunc) Decide(ctx context.Context, amount int64, customerID string) bool {
	return f(ctx, amount, customerID)
}

// RandomDecider approves charges with probability SuccessRate.
type RandomDecider struct {
	SuccessRate float64
}

// Decide draws a uniform number in [0,1).
func (d RandomDecider) Decide(context.Context, int64, string) bool {
	return rand.Float64() < d.SuccessRate
}

// PaymentOption configures a PaymentSimulator.
type PaymentOption func(*PaymentSimulator)

// WithFailMarker changes the forced-failure marker. An empty marker disables
// forced failures.
func WithFailMarker(marker string) PaymentOption {
	return func(p *PaymentSimulator) { p.failMarker = marker }
}

// WithDecider replaces the random decider.
func WithDecider(d OutcomeDecider) PaymentOption {
	return func(p *PaymentSimulator) { p.decider = d }
}

// WithGatewayLatency delays every charge by d, or until the context is done.
func WithGatewayLatency(d time.Duration) PaymentOption {
	return func(p *PaymentSimulator) { p.latency = d }
}

// PaymentSimulator stands in for a payment gateway.
type PaymentSimulator struct {
	failMarker string
	decider    OutcomeDecider
	latency    time.Duration
	logger     *slog.Logger
}

// NewPaymentSimulator creates a simulator that approves half of all charges.
func NewPaymentSimulator(logger *slog.Logger, opts ...PaymentOption) *PaymentSimulator {
	p := &PaymentSimulator{
		failMarker: DefaultFailMarker,
		decider:    RandomDecider{SuccessRate: 0.5},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Charge simulates charging amount to customerID. Declines are results, not
// errors; an error means the charge could not be attempted.
func (p *PaymentSimulator) Charge(ctx context.Context, amount int64, customerID string) (domain.PaymentResult, error) {
	if amount <= 0 {
		return domain.PaymentResult{}, apperrors.InvalidInput("amount must be greater than 0")
	}

	if p.latency > 0 {
		timer := time.NewTimer(p.latency)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			paymentsTotal.WithLabelValues("interrupted").Inc()
			return domain.PaymentResult{}, ctx.Err()
		}
	}

	result := domain.PaymentResult{Amount: amount}
	switch {
	case p.failMarker != "" && strings.Contains(customerID, p.failMarker):
		result.TransactionID = "TXN-FAILED-" + uuid.NewString()
		paymentsTotal.WithLabelValues("forced_failure").Inc()
	case p.decider.Decide(ctx, amount, customerID):
		result.Success = true
		result.TransactionID = "TXN-" + uuid.NewString()
		paymentsTotal.WithLabelValues("success").Inc()
	default:
		result.TransactionID = "TXN-DECLINED-" + uuid.NewString()
		paymentsTotal.WithLabelValues("declined").Inc()
	}

	p.logger.InfoContext(ctx, "payment processed",
		slog.String("customer_id", customerID),
		slog.Int64("amount", amount),
		slog.Bool("success", result.Success),
		slog.String("transaction_id", result.TransactionID),
	)
	return result, nil
}
