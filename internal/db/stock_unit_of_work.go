package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/prudhivi99/Distributed-Systems/stockflow/internal/models"
)

// StockStore opens transactional units of work over the products table.
type StockStore struct {
	db *sql.DB
}

func NewStockStore(database *PostgresDB) *StockStore {
	return &StockStore{db: database.Conn}
}

// Begin starts a transaction. The caller must end it with Commit or Rollback.
func (s *StockStore) Begin(ctx context.Context) (*StockUnitOfWork, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &StockUnitOfWork{tx: tx}, nil
}

// StockUnitOfWork stages stock changes that become visible only on Commit.
type StockUnitOfWork struct {
	tx *sql.Tx
}

// GetProduct returns nil, nil when the product does not exist.
func (u *StockUnitOfWork) GetProduct(ctx context.Context, id int) (*models.Product, error) {
	return getProduct(ctx, u.tx, id)
}

func (u *StockUnitOfWork) UpdateStock(ctx context.Context, id int, unitsInStock int) error {
	result, err := u.tx.ExecContext(ctx,
		"UPDATE products SET units_in_stock = $1 WHERE product_id = $2",
		unitsInStock, id)
	if err != nil {
		return fmt.Errorf("failed to update stock for product %d: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result for product %d: %w", id, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("product %d disappeared during stock update", id)
	}

	return nil
}

func (u *StockUnitOfWork) Commit() error {
	if err := u.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit stock changes: %w", err)
	}
	return nil
}

// Rollback discards staged changes. It is a no-op after Commit.
func (u *StockUnitOfWork) Rollback() error {
	if err := u.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to roll back stock changes: %w", err)
	}
	return nil
}
