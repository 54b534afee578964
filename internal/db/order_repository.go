package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/prudhivi99/Distributed-Systems/stockflow/internal/models"
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(database *PostgresDB) *OrderRepository {
	return &OrderRepository{db: database.Conn}
}

// Create inserts a new order with items in one transaction. On success the
// order's ID, OrderDate and item IDs are populated from the store.
func (r *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	orderQuery := `
		INSERT INTO orders (customer_id, status)
		VALUES ($1, $2)
		RETURNING order_id, order_date
	`
	err = tx.QueryRowContext(ctx, orderQuery, order.CustomerID, order.Status).
		Scan(&order.ID, &order.OrderDate)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	itemQuery := `
		INSERT INTO order_items (order_id, product_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	for i := range order.Items {
		order.Items[i].OrderID = order.ID
		err = tx.QueryRowContext(ctx, itemQuery,
			order.ID,
			order.Items[i].ProductID,
			order.Items[i].Quantity,
			order.Items[i].UnitPrice,
		).Scan(&order.Items[i].ID)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// RecentSummaries returns the newest orders first with their item count and
// total.
func (r *OrderRepository) RecentSummaries(ctx context.Context, limit int) ([]models.OrderSummary, error) {
	query := `
		SELECT o.order_id, o.customer_id, o.order_date, o.status,
		       COUNT(i.id), COALESCE(SUM(i.quantity * i.unit_price), 0)
		FROM orders o
		LEFT JOIN order_items i ON i.order_id = o.order_id
		GROUP BY o.order_id
		ORDER BY o.order_date DESC, o.order_id DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	summaries := []models.OrderSummary{}
	for rows.Next() {
		var s models.OrderSummary
		if err := rows.Scan(&s.ID, &s.CustomerID, &s.OrderDate, &s.Status, &s.ItemCount, &s.Total); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate orders: %w", err)
	}

	return summaries, nil
}

// GetByID returns a single order with items, or nil if it does not exist.
func (r *OrderRepository) GetByID(ctx context.Context, id int) (*models.Order, error) {
	orderQuery := `SELECT order_id, customer_id, order_date, status FROM orders WHERE order_id = $1`

	var order models.Order
	err := r.db.QueryRowContext(ctx, orderQuery, id).
		Scan(&order.ID, &order.CustomerID, &order.OrderDate, &order.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	itemsQuery := `SELECT id, order_id, product_id, quantity, unit_price FROM order_items WHERE order_id = $1 ORDER BY id`

	rows, err := r.db.QueryContext(ctx, itemsQuery, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	order.Items = []models.OrderItem{}
	for rows.Next() {
		var item models.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate order items: %w", err)
	}

	return &order, nil
}
