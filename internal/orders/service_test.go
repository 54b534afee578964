package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prudhivi99/Distributed-Systems/stockflow/internal/models"
	"go.uber.org/zap"
)

// callLog records the order of store and publisher calls.
type callLog struct {
	calls []string
}

type fakeStore struct {
	log       *callLog
	createErr error
	nextID    int
	saved     []*models.Order
	onCreate  func()
}

func (s *fakeStore) Create(ctx context.Context, order *models.Order) error {
	s.log.calls = append(s.log.calls, "commit")
	if s.onCreate != nil {
		s.onCreate()
	}
	if s.createErr != nil {
		return s.createErr
	}
	s.nextID++
	order.ID = s.nextID
	order.OrderDate = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s.saved = append(s.saved, order)
	return nil
}

func (s *fakeStore) RecentSummaries(ctx context.Context, limit int) ([]models.OrderSummary, error) {
	return nil, nil
}

func (s *fakeStore) GetByID(ctx context.Context, id int) (*models.Order, error) {
	return nil, nil
}

type fakePublisher struct {
	log    *callLog
	err    error
	events []models.OrderPlacedEvent
	ctxErr error
}

func (p *fakePublisher) PublishOrderPlaced(ctx context.Context, event models.OrderPlacedEvent) error {
	p.log.calls = append(p.log.calls, "publish")
	p.ctxErr = ctx.Err()
	p.events = append(p.events, event)
	return p.err
}

func newTestService(storeErr, publishErr error) (*Service, *fakeStore, *fakePublisher, *callLog) {
	log := &callLog{}
	store := &fakeStore{log: log, createErr: storeErr}
	pub := &fakePublisher{log: log, err: publishErr}
	return NewService(store, pub, zap.NewNop()), store, pub, log
}

func validRequest() models.CreateOrderRequest {
	return models.CreateOrderRequest{
		CustomerID: "ALFKI",
		Items: []models.CreateOrderItemRequest{
			{ProductID: 1, Quantity: 3, UnitPrice: 18},
			{ProductID: 2, Quantity: 1, UnitPrice: 19},
		},
	}
}

func TestPlaceOrderPublishesAfterCommit(t *testing.T) {
	svc, _, pub, log := newTestService(nil, nil)

	order, err := svc.PlaceOrder(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("place order failed: %v", err)
	}

	if len(log.calls) != 2 || log.calls[0] != "commit" || log.calls[1] != "publish" {
		t.Fatalf("expected commit then publish, got %v", log.calls)
	}
	event := pub.events[0]
	if event.OrderID != order.ID || event.CustomerID != "ALFKI" || len(event.Items) != 2 {
		t.Fatalf("event does not describe committed order: %+v", event)
	}
	if !event.PlacedAt.Equal(order.OrderDate) {
		t.Fatalf("expected placedAt %v, got %v", order.OrderDate, event.PlacedAt)
	}
	if order.Status != models.OrderStatusPlaced {
		t.Fatalf("unexpected status %s", order.Status)
	}
}

func TestPlaceOrderStoreFailureSkipsPublish(t *testing.T) {
	svc, _, pub, _ := newTestService(errors.New("db down"), nil)

	if _, err := svc.PlaceOrder(context.Background(), validRequest()); err == nil {
		t.Fatal("expected error")
	}
	if len(pub.events) != 0 {
		t.Fatalf("expected no publish, got %d", len(pub.events))
	}
}

func TestPlaceOrderPublishFailureReturnsCommittedOrder(t *testing.T) {
	brokerErr := errors.New("broker unreachable")
	svc, store, _, _ := newTestService(nil, brokerErr)

	order, err := svc.PlaceOrder(context.Background(), validRequest())
	if !errors.Is(err, ErrPublishFailed) || !errors.Is(err, brokerErr) {
		t.Fatalf("expected publish failure wrapping broker error, got %v", err)
	}
	if order == nil || order.ID == 0 {
		t.Fatal("expected committed order to be returned")
	}
	if len(store.saved) != 1 {
		t.Fatal("order must stay committed")
	}
}

func TestPlaceOrderValidation(t *testing.T) {
	tests := []struct {
		name    string
		req     models.CreateOrderRequest
		wantErr error
	}{
		{
			name:    "no items",
			req:     models.CreateOrderRequest{CustomerID: "ALFKI"},
			wantErr: ErrEmptyOrder,
		},
		{
			name: "zero quantity",
			req: models.CreateOrderRequest{CustomerID: "ALFKI", Items: []models.CreateOrderItemRequest{
				{ProductID: 1, Quantity: 0},
			}},
			wantErr: ErrInvalidItem,
		},
		{
			name: "negative price",
			req: models.CreateOrderRequest{CustomerID: "ALFKI", Items: []models.CreateOrderItemRequest{
				{ProductID: 1, Quantity: 1, UnitPrice: -1},
			}},
			wantErr: ErrInvalidItem,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, pub, log := newTestService(nil, nil)
			_, err := svc.PlaceOrder(context.Background(), tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if len(log.calls) != 0 || len(pub.events) != 0 {
				t.Fatalf("expected no side effects, got %v", log.calls)
			}
		})
	}
}

func TestPlaceOrderPublishesAfterCallerCancels(t *testing.T) {
	svc, store, pub, log := newTestService(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// The client disconnects once the row is committed.
	store.onCreate = cancel

	order, err := svc.PlaceOrder(ctx, validRequest())
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if order == nil || order.ID == 0 {
		t.Fatalf("expected committed order, got %+v", order)
	}
	if len(log.calls) != 2 || log.calls[1] != "publish" {
		t.Fatalf("expected publish after commit, got %v", log.calls)
	}
	if pub.ctxErr != nil {
		t.Fatalf("publish ran on a cancelled context: %v", pub.ctxErr)
	}
	if len(pub.events) != 1 || pub.events[0].OrderID != order.ID {
		t.Fatalf("expected one event for order %d, got %+v", order.ID, pub.events)
	}
}
