package service

import (
	"fmt"
	"math/rand/v2"

	"github.com/utafrali/ordersaga/internal/domain"
)

// DefaultShippingRate is the per-unit shipping cost.
const DefaultShippingRate int64 = 10

const (
	minDeliveryDays = 3
	maxDeliveryDays = 7
)

// ShippingOption configures a ShippingEstimator.
type ShippingOption func(*ShippingEstimator)

// WithDeliveryDays replaces the random ETA source. The result is clamped to
// the supported range.
func WithDeliveryDays(days func() int) ShippingOption {
	return func(s *ShippingEstimator) { s.days = days }
}

// ShippingEstimator computes shipping cost and ETA.
type ShippingEstimator struct {
	rate int64
	days func() int
}

// NewShippingEstimator creates an estimator charging rate per unit. A
// non-positive rate falls back to DefaultShippingRate.
func NewShippingEstimator(rate int64, opts ...ShippingOption) *ShippingEstimator {
	if rate <= 0 {
		rate = DefaultShippingRate
	}
	s := &ShippingEstimator{
		rate: rate,
		days: func() int { return minDeliveryDays + rand.IntN(maxDeliveryDays-minDeliveryDays+1) },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Quote returns the cost, ETA and total for shipping quantity units.
func (s *ShippingEstimator) Quote(quantity int, baseAmount int64, _ string) domain.ShippingQuote {
	cost := int64(quantity) * s.rate
	days := min(max(s.days(), minDeliveryDays), maxDeliveryDays)
	return domain.ShippingQuote{
		ShippingCost:      cost,
		EstimatedDelivery: fmt.Sprintf("%d business days", days),
		FinalTotal:        baseAmount + cost,
	}
}
