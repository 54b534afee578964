package db

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations
var migrationsFS embed.FS

// Schema names a service-owned set of migrations. Each schema tracks its
// version in its own table so both services can share one database.
type Schema string

const (
	OrdersSchema    Schema = "orders"
	InventorySchema Schema = "inventory"
)

func (s Schema) migrationsTable() string {
	return "schema_migrations_" + string(s)
}

// Migrate applies all pending up migrations for schema.
func (db *PostgresDB) Migrate(schema Schema, logger *zap.Logger) error {
	src, err := iofs.New(migrationsFS, "migrations/"+string(schema))
	if err != nil {
		return fmt.Errorf("failed to load %s migrations: %w", schema, err)
	}
	defer src.Close()

	driver, err := postgres.WithInstance(db.Conn, &postgres.Config{
		MigrationsTable: schema.migrationsTable(),
	})
	if err != nil {
		return fmt.Errorf("failed to create migrate driver: %w", err)
	}

	// m.Close is not called: it would close the shared *sql.DB.
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply %s migrations: %w", schema, err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read %s migration version: %w", schema, err)
	}
	logger.Info("Migrations applied",
		zap.String("schema", string(schema)),
		zap.Uint("version", version),
		zap.Bool("dirty", dirty))
	return nil
}
