package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	OrderPlacedSubject = "OrderPlaced"
	JSONContentType    = "application/json"
)

// ErrMalformedEvent marks a message body that can never be processed.
var ErrMalformedEvent = errors.New("malformed order placed event")

// OrderPlacedEvent is published once per committed order.
type OrderPlacedEvent struct {
	OrderID    int              `json:"orderId"`
	CustomerID string           `json:"customerId"`
	PlacedAt   time.Time        `json:"placedAt"`
	Items      []OrderItemEvent `json:"items"`
}

type OrderItemEvent struct {
	ProductID int     `json:"productId"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
}

// NewOrderPlacedEvent maps a persisted order onto the wire event.
func NewOrderPlacedEvent(order *Order) OrderPlacedEvent {
	event := OrderPlacedEvent{
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		PlacedAt:   order.OrderDate.UTC(),
		Items:      make([]OrderItemEvent, 0, len(order.Items)),
	}
	for _, item := range order.Items {
		event.Items = append(event.Items, OrderItemEvent{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return event
}

// DecodeOrderPlaced parses a message body. Any error it returns wraps
// ErrMalformedEvent.
func DecodeOrderPlaced(body []byte) (*OrderPlacedEvent, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedEvent)
	}

	var event OrderPlacedEvent
	if err := json.Unmarshal(trimmed, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	for i, item := range event.Items {
		if item.Quantity < 0 {
			return nil, fmt.Errorf("%w: item %d has negative quantity %d", ErrMalformedEvent, i, item.Quantity)
		}
	}

	return &event, nil
}
