package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/utafrali/ordersaga/internal/domain"
	"github.com/utafrali/ordersaga/internal/engine"
	pkgkafka "github.com/utafrali/ordersaga/pkg/kafka"
	"github.com/utafrali/ordersaga/pkg/logger"
	"github.com/utafrali/ordersaga/pkg/validator"
)

// TopicOrderRequested carries orders submitted through Kafka.
var TopicOrderRequested = pkgkafka.Topic("order", "requested")

// OrderStarter defines the interface required by the event consumer.
type OrderStarter interface {
	StartWithID(ctx context.Context, runID string, input domain.OrderInput) error
}

// Consumer processes incoming Kafka events for the order saga service.
type Consumer struct {
	logger *slog.Logger
	orders OrderStarter
}

// NewConsumer creates a new event consumer.
func NewConsumer(orders OrderStarter, logger *slog.Logger) *Consumer {
	return &Consumer{
		orders: orders,
		logger: logger,
	}
}

// HandleOrderRequested starts a saga run for an order.requested event. The
// event's aggregate ID becomes the run ID, so redelivery of an event whose
// run already started is acknowledged without starting a second run.
// Invalid orders are dropped: retrying them cannot succeed.
func (c *Consumer) HandleOrderRequested(ctx context.Context, event *pkgkafka.Event) error {
	if event.CorrelationID != "" {
		ctx = logger.WithCorrelationID(ctx, event.CorrelationID)
	}
	if event.AggregateID == "" {
		c.logger.WarnContext(ctx, "dropping order.requested event without aggregate id",
			slog.String("event_id", event.EventID),
		)
		return nil
	}

	var input domain.OrderInput
	if err := event.UnmarshalData(&input); err != nil {
		return fmt.Errorf("unmarshal order.requested data: %w", err)
	}

	c.logger.InfoContext(ctx, "processing order.requested event",
		slog.String("run_id", event.AggregateID),
		slog.String("product_id", input.ProductID),
	)

	err := c.orders.StartWithID(ctx, event.AggregateID, input)
	var verr *validator.ValidationError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, engine.ErrRunExists):
		c.logger.InfoContext(ctx, "order already started",
			slog.String("run_id", event.AggregateID),
		)
		return nil
	case errors.As(err, &verr):
		c.logger.WarnContext(ctx, "dropping invalid order.requested event",
			slog.String("run_id", event.AggregateID),
			slog.String("error", verr.Error()),
		)
		return nil
	default:
		return fmt.Errorf("start order %s: %w", event.AggregateID, err)
	}
}
