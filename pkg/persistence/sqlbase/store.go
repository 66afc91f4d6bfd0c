package sqlbase

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/agencyops/taskflow/pkg/persistence"
)

// Store implements the repositories shared by the SQL backends.
type Store struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger

	taskRepo     *TaskRepository
	timerRepo    *TimerRepository
	ruleRepo     *RuleRepository
	activityRepo *ActivityRepository
	commentRepo  *CommentRepository
}

// NewStore wires the repositories over an open database handle.
func NewStore(db *sql.DB, dialect Dialect, logger *slog.Logger) *Store {
	base := repo{db: db, dialect: dialect, logger: logger}

	return &Store{
		db:           db,
		dialect:      dialect,
		logger:       logger,
		taskRepo:     &TaskRepository{repo: base},
		timerRepo:    &TimerRepository{repo: base},
		ruleRepo:     &RuleRepository{repo: base},
		activityRepo: &ActivityRepository{repo: base},
		commentRepo:  &CommentRepository{repo: base},
	}
}

// DB exposes the underlying handle for tests and tooling.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) TaskRepository() persistence.TaskRepository {
	return s.taskRepo
}

func (s *Store) TimerRepository() persistence.TimerRepository {
	return s.timerRepo
}

func (s *Store) RuleRepository() persistence.RuleRepository {
	return s.ruleRepo
}

func (s *Store) ActivityRepository() persistence.ActivityRepository {
	return s.activityRepo
}

func (s *Store) CommentRepository() persistence.CommentRepository {
	return s.commentRepo
}

// HealthCheck verifies the database connection is healthy.
func (s *Store) HealthCheck(ctx context.Context) error {
	err := s.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *Store) Close(_ context.Context) error {
	if s.db != nil {
		err := s.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// repo carries what every repository needs.
type repo struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
}

func (r repo) closeRows(ctx context.Context, rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}
