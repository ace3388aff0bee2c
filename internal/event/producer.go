package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/ordersaga/internal/domain"
	pkgkafka "github.com/utafrali/ordersaga/pkg/kafka"
	"github.com/utafrali/ordersaga/pkg/logger"
)

// Kafka topics produced by the order saga service.
var (
	TopicOrderSubmitted     = pkgkafka.Topic("order", "submitted")
	TopicOrderConfirmed     = pkgkafka.Topic("order", "confirmed")
	TopicOrderPaymentFailed = pkgkafka.Topic("order", "payment_failed")
	TopicOrderOutOfStock    = pkgkafka.Topic("order", "out_of_stock")
	TopicOrderFailed        = pkgkafka.Topic("order", "failed")
	TopicInventoryReset     = pkgkafka.Topic("inventory", "reset")
)

// Aggregate types.
const (
	AggregateTypeOrder     = "order"
	AggregateTypeInventory = "inventory"
)

// SourceOrderSaga identifies events originating from this service.
const SourceOrderSaga = "ordersaga"

// OrderSubmittedData is the payload for an order.submitted event.
type OrderSubmittedData struct {
	RunID string            `json:"run_id"`
	Order domain.OrderInput `json:"order"`
}

// OrderClosedData is the payload for every order outcome event.
type OrderClosedData struct {
	RunID     string               `json:"run_id"`
	Status    domain.RunStatus     `json:"status"`
	Order     domain.OrderInput    `json:"order"`
	Outcome   *domain.OrderOutcome `json:"outcome,omitempty"`
	Error     string               `json:"error,omitempty"`
	StartedAt time.Time            `json:"started_at"`
	ClosedAt  *time.Time           `json:"closed_at,omitempty"`
}

// Producer publishes order saga events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishOrderSubmitted publishes an order.submitted event.
func (p *Producer) PublishOrderSubmitted(ctx context.Context, runID string, input domain.OrderInput) error {
	data := OrderSubmittedData{RunID: runID, Order: input}
	return p.publish(ctx, TopicOrderSubmitted, runID, AggregateTypeOrder, data)
}

// PublishOrderClosed publishes the outcome of a closed run to the topic
// matching its outcome.
func (p *Producer) PublishOrderClosed(ctx context.Context, run *domain.Run) error {
	data := OrderClosedData{
		RunID:     run.ID,
		Status:    run.Status,
		Order:     run.Input,
		Outcome:   run.Outcome,
		Error:     run.Error,
		StartedAt: run.StartedAt,
		ClosedAt:  run.ClosedAt,
	}
	return p.publish(ctx, OutcomeTopic(run), run.ID, AggregateTypeOrder, data)
}

// PublishInventoryReset publishes an inventory.reset event carrying the new
// aggregates.
func (p *Producer) PublishInventoryReset(ctx context.Context, stats domain.InventoryStats) error {
	return p.publish(ctx, TopicInventoryReset, "catalog", AggregateTypeInventory, stats)
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID, aggregateType string, data any) error {
	event, err := pkgkafka.NewEvent(topic, aggregateID, aggregateType, SourceOrderSaga, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("aggregate_id", aggregateID),
		slog.String("event_id", event.EventID),
	)
	return nil
}

// OutcomeTopic returns the topic a closed run is published to.
func OutcomeTopic(run *domain.Run) string {
	if run.Status != domain.RunStatusCompleted || run.Outcome == nil {
		return TopicOrderFailed
	}
	switch run.Outcome.Status {
	case domain.OutcomeOrderConfirmed:
		return TopicOrderConfirmed
	case domain.OutcomePaymentFailed:
		return TopicOrderPaymentFailed
	case domain.OutcomeOutOfStock:
		return TopicOrderOutOfStock
	default:
		return TopicOrderFailed
	}
}

// NoopPublisher drops every event. It is used when Kafka is disabled.
type NoopPublisher struct{}

func (NoopPublisher) PublishOrderSubmitted(context.Context, string, domain.OrderInput) error {
	return nil
}

func (NoopPublisher) PublishOrderClosed(context.Context, *domain.Run) error { return nil }

func (NoopPublisher) PublishInventoryReset(context.Context, domain.InventoryStats) error {
	return nil
}
