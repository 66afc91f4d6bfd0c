package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/agencyops/taskflow/pkg/persistence"
	"github.com/agencyops/taskflow/pkg/persistence/persistencetest"
	"github.com/agencyops/taskflow/pkg/persistence/postgresql"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{"comments", "activity_log", "automation_rules", "timer_sessions", "tasks", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("taskflow_test"),
			postgres.WithUsername("taskflow"),
			postgres.WithPassword("taskflow"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		err = p.Close(ctx)
		require.NoError(t, err)

		dropDb(ctx, t, databaseURL)

		cancel()
	})

	return p, ctx, databaseURL
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	for _, table := range []string{"tasks", "timer_sessions", "automation_rules", "activity_log", "comments", "schema_migrations"} {
		var exists bool

		err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "%s table should exist", table)
	}

	var version int

	err = db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}

func TestNewPersistence_HealthCheck(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	err := p.HealthCheck(ctx)
	assert.NoError(t, err)
}

func TestNewPersistence_Contract(t *testing.T) {
	persistencetest.Run(t, func(t *testing.T) persistence.Persistence {
		p, _, _ := setupTestDB(t)

		return p
	})
}
