package resilient

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"

	"github.com/utafrali/ordersaga/internal/domain"
	"github.com/utafrali/ordersaga/internal/repository"
)

// BreakerConfig holds configuration for the circuit breaker.
type BreakerConfig struct {
	// Name identifies this breaker in metrics and logs.
	Name string

	// MaxRequests is the number of calls let through while half-open.
	MaxRequests uint32

	// Interval is the cyclic period of the closed state for clearing counts.
	Interval time.Duration

	// Timeout is how long the breaker stays open before moving to half-open.
	Timeout time.Duration

	// FailureRatio trips the breaker once at least MinRequests have been seen.
	FailureRatio float64
	MinRequests  uint32
}

// DefaultBreakerConfig returns the breaker settings used for ledger stores.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:         name,
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      15 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

// ErrCircuitOpen is returned without calling the wrapped store while the
// breaker is open.
var ErrCircuitOpen = gobreaker.ErrOpenState

var (
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "circuit_breaker_state",
		Help: "Current state of the circuit breaker (0=closed, 1=half-open, 2=open)",
	}, []string{"name"})

	breakerRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "circuit_breaker_rejected_total",
		Help: "Calls rejected because the circuit breaker was open.",
	}, []string{"name", "op"})
)

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// InventoryStore wraps another store with a circuit breaker so a failing
// backend is not hammered by every ledger mutation.
type InventoryStore struct {
	inner   repository.InventoryStore
	breaker *gobreaker.CircuitBreaker[map[string]domain.InventoryItem]
	logger  *slog.Logger
	name    string
}

// NewInventoryStore wraps inner.
func NewInventoryStore(inner repository.InventoryStore, cfg BreakerConfig, logger *slog.Logger) *InventoryStore {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			breakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
	breakerState.WithLabelValues(cfg.Name).Set(0)

	return &InventoryStore{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker[map[string]domain.InventoryItem](settings),
		logger:  logger,
		name:    cfg.Name,
	}
}

// Load reads through the breaker.
func (s *InventoryStore) Load(ctx context.Context) (map[string]domain.InventoryItem, error) {
	items, err := s.breaker.Execute(func() (map[string]domain.InventoryItem, error) {
		return s.inner.Load(ctx)
	})
	if err != nil {
		s.rejected(ctx, "load", err)
		return nil, err
	}
	return items, nil
}

// Save writes through the breaker. While open it fails fast with
// ErrCircuitOpen.
func (s *InventoryStore) Save(ctx context.Context, items map[string]domain.InventoryItem) error {
	_, err := s.breaker.Execute(func() (map[string]domain.InventoryItem, error) {
		return nil, s.inner.Save(ctx, items)
	})
	if err != nil {
		s.rejected(ctx, "save", err)
	}
	return err
}

// State returns the current breaker state.
func (s *InventoryStore) State() gobreaker.State {
	return s.breaker.State()
}

func (s *InventoryStore) rejected(ctx context.Context, op string, err error) {
	if !errors.Is(err, gobreaker.ErrOpenState) && !errors.Is(err, gobreaker.ErrTooManyRequests) {
		return
	}
	breakerRejected.WithLabelValues(s.name, op).Inc()
	s.logger.WarnContext(ctx, "inventory store call rejected by circuit breaker",
		slog.String("breaker", s.name),
		slog.String("op", op),
	)
}
