package consumer

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/prudhivi99/Distributed-Systems/stockflow/internal/messaging"
	"github.com/prudhivi99/Distributed-Systems/stockflow/internal/models"
	"github.com/prudhivi99/Distributed-Systems/stockflow/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// UnitOfWork stages stock changes for one message. Changes become visible
// only on Commit; Rollback discards them and is a no-op after Commit.
type UnitOfWork interface {
	// GetProduct returns nil, nil when the product does not exist.
	GetProduct(ctx context.Context, id int) (*models.Product, error)
	UpdateStock(ctx context.Context, id int, unitsInStock int) error
	Commit() error
	Rollback() error
}

// UnitOfWorkFactory opens a fresh unit of work. It is called once per
// message that carries items.
type UnitOfWorkFactory func(ctx context.Context) (UnitOfWork, error)

// StockDeducer decides what to do with an OrderPlaced message and applies
// its stock deduction. It never talks to the broker.
type StockDeducer struct {
	newUnitOfWork UnitOfWorkFactory
	logger        *zap.Logger
	tracer        trace.Tracer
}

func NewStockDeducer(newUnitOfWork UnitOfWorkFactory, logger *zap.Logger) *StockDeducer {
	return &StockDeducer{
		newUnitOfWork: newUnitOfWork,
		logger:        logger.With(zap.String("component", "stock_deducer")),
		tracer:        otel.Tracer("stockflow/consumer"),
	}
}

// Decide processes msg and returns its verdict. Malformed bodies are
// dead-lettered, store failures abandon after rolling back, and a panic
// anywhere in processing is recovered as Abandon.
func (d *StockDeducer) Decide(ctx context.Context, msg messaging.Message) (verdict Verdict) {
	ctx = observability.ExtractHeaders(ctx, msg.Headers)
	ctx, span := d.tracer.Start(ctx, "order-placed process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.message.id", msg.MessageID),
			attribute.Int("messaging.rabbitmq.delivery_count", msg.DeliveryCount),
		))
	defer span.End()

	logger := d.logger.With(
		zap.String("message_id", msg.MessageID),
		zap.Int("delivery_count", msg.DeliveryCount))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Recovered panic while processing message",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			verdict = abandoned(fmt.Sprintf("panic: %v", r))
		}
		span.SetAttributes(attribute.String("stockflow.outcome", verdict.Outcome.String()))
		if verdict.Outcome != Complete {
			span.SetStatus(codes.Error, verdict.Description)
		}
	}()

	event, err := models.DecodeOrderPlaced(msg.Body)
	if err != nil {
		logger.Warn("Dead-lettering malformed message", zap.Error(err))
		return deadLettered(ReasonDeserializationFailed, err.Error())
	}

	logger = logger.With(zap.Int("order_id", event.OrderID))
	span.SetAttributes(attribute.Int("order.id", event.OrderID))

	if len(event.Items) == 0 {
		logger.Info("Order has no items, nothing to deduct")
		return completed(nil)
	}

	return d.deduct(ctx, event, logger)
}

func (d *StockDeducer) deduct(ctx context.Context, event *models.OrderPlacedEvent, logger *zap.Logger) Verdict {
	uow, err := d.newUnitOfWork(ctx)
	if err != nil {
		logger.Error("Failed to open unit of work", zap.Error(err))
		return abandoned(err.Error())
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if err := uow.Rollback(); err != nil {
			logger.Warn("Rollback failed", zap.Error(err))
		}
	}()

	touched := make([]int, 0, len(event.Items))
	for _, item := range event.Items {
		product, err := uow.GetProduct(ctx, item.ProductID)
		if err != nil {
			logger.Error("Failed to load product, abandoning",
				zap.Int("product_id", item.ProductID),
				zap.Error(err))
			return abandoned(err.Error())
		}
		if product == nil {
			logger.Warn("Product not found, skipping item",
				zap.Int("product_id", item.ProductID),
				zap.Int("quantity", item.Quantity))
			continue
		}

		remaining := max(0, product.UnitsInStock-item.Quantity)
		if err := uow.UpdateStock(ctx, product.ID, remaining); err != nil {
			logger.Error("Failed to update stock, abandoning",
				zap.Int("product_id", product.ID),
				zap.Error(err))
			return abandoned(err.Error())
		}
		touched = append(touched, product.ID)

		logger.Debug("Stock deducted",
			zap.Int("product_id", product.ID),
			zap.Int("quantity", item.Quantity),
			zap.Int("previous_stock", product.UnitsInStock),
			zap.Int("units_in_stock", remaining))
	}

	if err := uow.Commit(); err != nil {
		logger.Error("Failed to commit stock changes, abandoning", zap.Error(err))
		return abandoned(err.Error())
	}
	committed = true

	logger.Info("Stock deducted for order",
		zap.Int("item_count", len(event.Items)),
		zap.Ints("product_ids", touched))
	return completed(touched)
}
