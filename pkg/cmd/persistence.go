// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/agencyops/taskflow/pkg/persistence"
	"github.com/agencyops/taskflow/pkg/persistence/file"
	"github.com/agencyops/taskflow/pkg/persistence/postgresql"
	"github.com/agencyops/taskflow/pkg/persistence/sqlite"
)

var supportedPersistenceProviders = []string{"file", "postgres", "postgresql", "sqlite"}

// NewPersistence opens the store named by databaseURL's scheme.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	provider := parsePersistenceProvider(databaseURL)

	logger.InfoContext(ctx, "Initializing persistence", "provider", provider)

	switch provider {
	case "postgres", "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, err
		}

		return p, nil
	case "sqlite":
		p, err := sqlite.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, err
		}

		return p, nil
	case "file":
		return file.NewPersistence(strings.TrimPrefix(databaseURL, "file://")), nil
	default:
		return nil, fmt.Errorf("unsupported persistence provider %q, expected one of %v", provider, supportedPersistenceProviders)
	}
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	return provider
}
