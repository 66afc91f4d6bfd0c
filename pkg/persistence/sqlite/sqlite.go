// Package sqlite provides the embedded SQLite persistence backend.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/agencyops/taskflow/pkg/persistence/sqlbase"
	_ "modernc.org/sqlite"
)

// Persistence implements the persistence layer on a single SQLite file.
type Persistence struct {
	*sqlbase.Store
}

// NewPersistence opens (or creates) the database at databaseURL ("sqlite://path" or a bare path).
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	path := strings.TrimPrefix(databaseURL, "sqlite://")
	if path == "" {
		return nil, fmt.Errorf("sqlite database path is required")
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	database, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One writer at a time; conditional updates stay atomic and SQLITE_BUSY never surfaces.
	database.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode = WAL", "PRAGMA busy_timeout = 5000", "PRAGMA foreign_keys = ON"} {
		if _, err := database.ExecContext(ctx, pragma); err != nil {
			_ = database.Close()

			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, sqlbase.SQLite, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		Store: sqlbase.NewStore(database, sqlbase.SQLite, logger),
	}, nil
}
