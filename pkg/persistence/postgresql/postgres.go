// Package postgresql provides PostgreSQL persistence implementation for tasks, rules and logs.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/agencyops/taskflow/pkg/persistence/sqlbase"
	_ "github.com/lib/pq"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	*sqlbase.Store

	logger *slog.Logger
}

// NewPersistence creates a new PostgreSQL persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Run migrations on initialization
	migrationManager := sqlbase.NewMigrationManager(logger, database, sqlbase.Postgres, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		Store:  sqlbase.NewStore(database, sqlbase.Postgres, logger),
		logger: logger,
	}, nil
}
