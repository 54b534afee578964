package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/prudhivi99/Distributed-Systems/stockflow/internal/models"
)

type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(database *PostgresDB) *ProductRepository {
	return &ProductRepository{db: database.Conn}
}

// GetAll returns all products
func (r *ProductRepository) GetAll(ctx context.Context) ([]models.Product, error) {
	query := "SELECT product_id, product_name, units_in_stock FROM products ORDER BY product_id"

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.UnitsInStock); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate products: %w", err)
	}

	return products, nil
}

// GetByID returns a single product
func (r *ProductRepository) GetByID(ctx context.Context, id int) (*models.Product, error) {
	return getProduct(ctx, r.db, id)
}

// Upsert creates the product with the caller-assigned id or replaces its
// name and stock level.
func (r *ProductRepository) Upsert(ctx context.Context, id int, req models.UpsertProductRequest) (*models.Product, error) {
	query := `
		INSERT INTO products (product_id, product_name, units_in_stock)
		VALUES ($1, $2, $3)
		ON CONFLICT (product_id) DO UPDATE
		SET product_name = EXCLUDED.product_name, units_in_stock = EXCLUDED.units_in_stock
		RETURNING product_id, product_name, units_in_stock
	`

	var p models.Product
	err := r.db.QueryRowContext(ctx, query, id, req.Name, req.UnitsInStock).
		Scan(&p.ID, &p.Name, &p.UnitsInStock)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert product: %w", err)
	}

	return &p, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getProduct(ctx context.Context, q queryRower, id int) (*models.Product, error) {
	query := "SELECT product_id, product_name, units_in_stock FROM products WHERE product_id = $1"

	var p models.Product
	err := q.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.Name, &p.UnitsInStock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	return &p, nil
}
