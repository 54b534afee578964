package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prudhivi99/Distributed-Systems/stockflow/internal/models"
	"go.uber.org/zap"
)

// RecentOrdersLimit caps the order listing.
const RecentOrdersLimit = 20

// publishTimeout bounds the broker confirm wait after a commit.
const publishTimeout = 10 * time.Second

var (
	ErrEmptyOrder    = errors.New("order must contain at least one item")
	ErrInvalidItem   = errors.New("order item is invalid")
	ErrPublishFailed = errors.New("order committed but OrderPlaced event was not published")
)

type Store interface {
	Create(ctx context.Context, order *models.Order) error
	RecentSummaries(ctx context.Context, limit int) ([]models.OrderSummary, error)
	GetByID(ctx context.Context, id int) (*models.Order, error)
}

type EventPublisher interface {
	PublishOrderPlaced(ctx context.Context, event models.OrderPlacedEvent) error
}

type Service struct {
	store     Store
	publisher EventPublisher
	logger    *zap.Logger
}

func NewService(store Store, publisher EventPublisher, logger *zap.Logger) *Service {
	return &Service{
		store:     store,
		publisher: publisher,
		logger:    logger.With(zap.String("component", "order_service")),
	}
}

// PlaceOrder persists the order and then publishes OrderPlaced. Nothing is
// published if the commit fails. The publish runs on a context detached from
// ctx's cancellation. If publishing fails the committed order is
// still returned together with an error wrapping ErrPublishFailed.
func (s *Service) PlaceOrder(ctx context.Context, req models.CreateOrderRequest) (*models.Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyOrder
	}

	order := &models.Order{
		CustomerID: req.CustomerID,
		Status:     models.OrderStatusPlaced,
		Items:      make([]models.OrderItem, 0, len(req.Items)),
	}
	for i, item := range req.Items {
		if item.Quantity <= 0 || item.UnitPrice < 0 {
			return nil, fmt.Errorf("%w: item %d (product %d)", ErrInvalidItem, i, item.ProductID)
		}
		order.Items = append(order.Items, models.OrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	if err := s.store.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to save order: %w", err)
	}

	// The order is committed; a caller going away must not drop its event.
	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := s.publisher.PublishOrderPlaced(publishCtx, models.NewOrderPlacedEvent(order)); err != nil {
		s.logger.Error("Order saved but event publish failed",
			zap.Int("order_id", order.ID),
			zap.Error(err))
		return order, fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	s.logger.Info("Order placed",
		zap.Int("order_id", order.ID),
		zap.String("customer_id", order.CustomerID),
		zap.Int("item_count", len(order.Items)))
	return order, nil
}

func (s *Service) RecentOrders(ctx context.Context) ([]models.OrderSummary, error) {
	return s.store.RecentSummaries(ctx, RecentOrdersLimit)
}

// GetOrder returns nil, nil when the order does not exist.
func (s *Service) GetOrder(ctx context.Context, id int) (*models.Order, error) {
	return s.store.GetByID(ctx, id)
}
