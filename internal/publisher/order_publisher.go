package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prudhivi99/Distributed-Systems/stockflow/internal/messaging"
	"github.com/prudhivi99/Distributed-Systems/stockflow/internal/models"
	"github.com/prudhivi99/Distributed-Systems/stockflow/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Sender enqueues a message on a named queue. *messaging.RabbitMQ
// implements it.
type Sender interface {
	Publish(ctx context.Context, queue string, msg messaging.Message) error
}

type OrderPublisher struct {
	sender Sender
	queue  string
	logger *zap.Logger
	tracer trace.Tracer
}

func NewOrderPublisher(sender Sender, queue string, logger *zap.Logger) *OrderPublisher {
	return &OrderPublisher{
		sender: sender,
		queue:  queue,
		logger: logger.With(zap.String("component", "order_publisher")),
		tracer: otel.Tracer("stockflow/publisher"),
	}
}

// PublishOrderPlaced enqueues event exactly once with a fresh message id.
// It must only be called after the order has been committed. Broker errors
// are returned unchanged; there is no retry.
func (p *OrderPublisher) PublishOrderPlaced(ctx context.Context, event models.OrderPlacedEvent) error {
	ctx, span := p.tracer.Start(ctx, p.queue+" publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.destination.name", p.queue),
			attribute.Int("order.id", event.OrderID),
		))
	defer span.End()

	body, err := json.Marshal(event)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "marshal failed")
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := messaging.Message{
		MessageID:   uuid.NewString(),
		ContentType: models.JSONContentType,
		Subject:     models.OrderPlacedSubject,
		Body:        body,
		Headers:     observability.InjectHeaders(ctx, nil),
		Timestamp:   time.Now().UTC(),
	}
	span.SetAttributes(attribute.String("messaging.message.id", msg.MessageID))

	if err := p.sender.Publish(ctx, p.queue, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		return err
	}

	p.logger.Info("Published OrderPlaced event",
		zap.Int("order_id", event.OrderID),
		zap.String("message_id", msg.MessageID),
		zap.String("queue", p.queue))
	return nil
}
