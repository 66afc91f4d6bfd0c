package sqlbase

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/agencyops/taskflow/pkg/models"
	"github.com/agencyops/taskflow/pkg/persistence"
)

const ruleColumns = `
	id
  , workspace_id
  , name
  , trigger_event
  , filter_groups
  , action_chain
  , is_active
  , created_by
  , created_at
  , updated_at`

// RuleRepository handles automation rule database operations.
type RuleRepository struct {
	repo
}

// Save upserts a rule. An existing rule keeps its creation time and author.
func (r *RuleRepository) Save(ctx context.Context, rule *models.AutomationRule) error {
	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}

	rule.UpdatedAt = now

	filterGroups, err := marshalJSON(rule.FilterGroups)
	if err != nil {
		return fmt.Errorf("failed to marshal filter groups: %w", err)
	}

	actionChain, err := marshalJSON(rule.ActionChain)
	if err != nil {
		return fmt.Errorf("failed to marshal action chain: %w", err)
	}

	query := `
		INSERT INTO automation_rules (` + ruleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (workspace_id, id) DO UPDATE SET
			name = EXCLUDED.name
		  , trigger_event = EXCLUDED.trigger_event
		  , filter_groups = EXCLUDED.filter_groups
		  , action_chain = EXCLUDED.action_chain
		  , is_active = EXCLUDED.is_active
		  , updated_at = EXCLUDED.updated_at
		RETURNING created_at
	`

	var createdAt Timestamp

	err = r.db.QueryRowContext(ctx, r.dialect.Rebind(query),
		rule.ID,
		rule.WorkspaceID,
		rule.Name,
		string(rule.TriggerEvent),
		filterGroups,
		actionChain,
		rule.IsActive,
		rule.CreatedBy,
		r.dialect.Time(rule.CreatedAt),
		r.dialect.Time(rule.UpdatedAt),
	).Scan(&createdAt)
	if err != nil {
		return fmt.Errorf("failed to save rule: %w", err)
	}

	rule.CreatedAt = createdAt.Time

	return nil
}

// GetByID retrieves a rule scoped to its workspace.
func (r *RuleRepository) GetByID(ctx context.Context, workspaceID, id string) (*models.AutomationRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM automation_rules WHERE workspace_id = ? AND id = ?`

	rule, err := scanRule(r.db.QueryRowContext(ctx, r.dialect.Rebind(query), workspaceID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRuleError("GetByID", workspaceID, id, persistence.ErrRuleNotFound)
		}

		return nil, fmt.Errorf("failed to scan rule: %w", err)
	}

	return rule, nil
}

// List returns every rule of the workspace in creation order.
func (r *RuleRepository) List(ctx context.Context, workspaceID string) ([]*models.AutomationRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM automation_rules WHERE workspace_id = ? ORDER BY created_at, id`

	return r.query(ctx, query, workspaceID)
}

// ListActive returns active rules for trigger in creation order.
func (r *RuleRepository) ListActive(ctx context.Context, workspaceID string, trigger models.TriggerEventType) ([]*models.AutomationRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM automation_rules
		WHERE workspace_id = ? AND trigger_event = ? AND is_active = ?
		ORDER BY created_at, id`

	return r.query(ctx, query, workspaceID, string(trigger), true)
}

func (r *RuleRepository) query(ctx context.Context, query string, args ...any) ([]*models.AutomationRule, error) {
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}

	defer r.closeRows(ctx, rows)

	rules := make([]*models.AutomationRule, 0)

	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}

		rules = append(rules, rule)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}

	return rules, nil
}

func scanRule(row rowScanner) (*models.AutomationRule, error) {
	var (
		rule         models.AutomationRule
		trigger      string
		filterGroups sql.NullString
		actionChain  sql.NullString
		createdAt    Timestamp
		updatedAt    Timestamp
	)

	err := row.Scan(
		&rule.ID,
		&rule.WorkspaceID,
		&rule.Name,
		&trigger,
		&filterGroups,
		&actionChain,
		&rule.IsActive,
		&rule.CreatedBy,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rule.TriggerEvent = models.TriggerEventType(trigger)
	rule.CreatedAt = createdAt.Time
	rule.UpdatedAt = updatedAt.Time

	if filterGroups.Valid {
		if err := json.Unmarshal([]byte(filterGroups.String), &rule.FilterGroups); err != nil {
			return nil, fmt.Errorf("failed to unmarshal filter groups: %w", err)
		}
	}

	if actionChain.Valid {
		if err := json.Unmarshal([]byte(actionChain.String), &rule.ActionChain); err != nil {
			return nil, fmt.Errorf("failed to unmarshal action chain: %w", err)
		}
	}

	return &rule, nil
}
