package consumer

import (
	"context"
	"errors"
	"fmt"

	"github.com/prudhivi99/Distributed-Systems/stockflow/internal/messaging"
	"go.uber.org/zap"
)

var ErrDeliveriesClosed = errors.New("delivery stream closed unexpectedly")

// Prefetch is the number of unsettled deliveries the worker holds. Stock
// deductions are strictly sequential, so it is fixed at one.
const Prefetch = 1

// Source streams deliveries from a queue. *messaging.RabbitMQ implements it.
type Source interface {
	Consume(ctx context.Context, queue string, prefetch int) (<-chan messaging.Delivery, error)
}

// StockCache drops cached copies of products whose stock changed.
type StockCache interface {
	InvalidateProducts(ctx context.Context, ids []int) error
}

// InventoryConsumer drives the StockDeducer from the order-placed queue, one
// message at a time, and settles each message according to its verdict.
type InventoryConsumer struct {
	source        Source
	deducer       *StockDeducer
	cache         StockCache
	queue         string
	maxDeliveries int
	logger        *zap.Logger
}

// NewInventoryConsumer builds the worker. cache may be nil.
func NewInventoryConsumer(source Source, deducer *StockDeducer, cache StockCache, queue string, maxDeliveries int, logger *zap.Logger) *InventoryConsumer {
	return &InventoryConsumer{
		source:        source,
		deducer:       deducer,
		cache:         cache,
		queue:         queue,
		maxDeliveries: maxDeliveries,
		logger:        logger.With(zap.String("component", "inventory_consumer"), zap.String("queue", queue)),
	}
}

// Run processes deliveries until ctx is cancelled. A message already
// received when ctx is cancelled is processed to completion on a context
// that ignores the cancellation. Run returns nil on shutdown and an error if
// the delivery stream ends on its own.
func (c *InventoryConsumer) Run(ctx context.Context) error {
	deliveries, err := c.source.Consume(ctx, c.queue, Prefetch)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("Inventory consumer started", zap.Int("max_delivery_count", c.maxDeliveries))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Inventory consumer stopping")
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					c.logger.Info("Inventory consumer stopping")
					return nil
				}
				return ErrDeliveriesClosed
			}
			if ctx.Err() != nil {
				// Received after shutdown began; hand it back untouched.
				c.settle(context.WithoutCancel(ctx), delivery, delivery.Message(), abandoned("shutting down"))
				c.logger.Info("Inventory consumer stopping")
				return nil
			}
			c.handle(context.WithoutCancel(ctx), delivery)
		}
	}
}

func (c *InventoryConsumer) handle(ctx context.Context, delivery messaging.Delivery) {
	msg := delivery.Message()
	verdict := c.deducer.Decide(ctx, msg)
	c.settle(ctx, delivery, msg, verdict)

	if verdict.Outcome == Complete && len(verdict.TouchedProducts) > 0 && c.cache != nil {
		if err := c.cache.InvalidateProducts(ctx, verdict.TouchedProducts); err != nil {
			c.logger.Warn("Failed to invalidate stock cache",
				zap.Ints("product_ids", verdict.TouchedProducts),
				zap.Error(err))
		}
	}
}

// settle performs the broker call for verdict. Settlement errors are only
// logged; an unsettled message is redelivered once the channel closes.
func (c *InventoryConsumer) settle(ctx context.Context, delivery messaging.Delivery, msg messaging.Message, verdict Verdict) {
	logger := c.logger.With(
		zap.String("message_id", msg.MessageID),
		zap.Int("delivery_count", msg.DeliveryCount),
		zap.Stringer("outcome", verdict.Outcome))

	var err error
	switch verdict.Outcome {
	case Complete:
		err = delivery.Complete(ctx)
	case DeadLetter:
		err = delivery.DeadLetter(ctx, verdict.Reason, verdict.Description)
		logger.Warn("Message dead-lettered",
			zap.String("reason", verdict.Reason),
			zap.String("description", verdict.Description))
	default:
		err = delivery.Abandon(ctx)
		if msg.DeliveryCount >= c.maxDeliveries {
			logger.Error("Message abandoned on final attempt, broker will dead-letter it",
				zap.String("description", verdict.Description))
		} else {
			logger.Warn("Message abandoned for redelivery",
				zap.String("description", verdict.Description))
		}
	}

	if err != nil {
		logger.Error("Failed to settle message", zap.Error(err))
	}
}
