package models

import "time"

const OrderStatusPlaced = "Placed"

type Order struct {
	ID         int         `json:"orderId"`
	CustomerID string      `json:"customerId"`
	OrderDate  time.Time   `json:"orderDate"`
	Status     string      `json:"status"`
	Items      []OrderItem `json:"items"`
}

type OrderItem struct {
	ID        int     `json:"id"`
	OrderID   int     `json:"orderId"`
	ProductID int     `json:"productId"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
}

func (i OrderItem) LineTotal() float64 {
	return float64(i.Quantity) * i.UnitPrice
}

// OrderSummary is a row of the recent orders listing.
type OrderSummary struct {
	ID         int       `json:"orderId"`
	CustomerID string    `json:"customerId"`
	OrderDate  time.Time `json:"orderDate"`
	Status     string    `json:"status"`
	ItemCount  int       `json:"itemCount"`
	Total      float64   `json:"total"`
}

type CreateOrderRequest struct {
	CustomerID string                   `json:"customerId" binding:"required"`
	Items      []CreateOrderItemRequest `json:"items" binding:"required,min=1,dive"`
}

type CreateOrderItemRequest struct {
	ProductID int     `json:"productId" binding:"required"`
	Quantity  int     `json:"quantity" binding:"required,gt=0"`
	UnitPrice float64 `json:"unitPrice" binding:"gte=0"`
}

// OrderDetail is the single-order view with per-line and overall totals.
type OrderDetail struct {
	ID         int         `json:"orderId"`
	CustomerID string      `json:"customerId"`
	OrderDate  time.Time   `json:"orderDate"`
	Status     string      `json:"status"`
	Items      []OrderLine `json:"items"`
	Total      float64     `json:"total"`
}

type OrderLine struct {
	ProductID int     `json:"productId"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
	LineTotal float64 `json:"lineTotal"`
}

func NewOrderDetail(order *Order) OrderDetail {
	detail := OrderDetail{
		ID:         order.ID,
		CustomerID: order.CustomerID,
		OrderDate:  order.OrderDate,
		Status:     order.Status,
		Items:      make([]OrderLine, 0, len(order.Items)),
	}
	for _, item := range order.Items {
		line := OrderLine{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			LineTotal: item.LineTotal(),
		}
		detail.Total += line.LineTotal
		detail.Items = append(detail.Items, line)
	}
	return detail
}
