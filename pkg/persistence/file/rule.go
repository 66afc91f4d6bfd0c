package file

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/agencyops/taskflow/pkg/models"
	"github.com/agencyops/taskflow/pkg/persistence"
)

const rulesDir = "rules"

// RuleRepository handles automation rule file operations.
type RuleRepository struct {
	store *store
}

// Save creates or replaces a rule, keeping the original creation time.
func (rr *RuleRepository) Save(_ context.Context, rule *models.AutomationRule) error {
	rr.store.mu.Lock()
	defer rr.store.mu.Unlock()

	filePath, err := rr.store.path(rule.WorkspaceID, rulesDir, rule.ID)
	if err != nil {
		return err
	}

	var existing models.AutomationRule

	found, err := rr.store.read(filePath, &existing)
	if err != nil {
		return err
	}

	now := time.Now().UTC()

	switch {
	case found:
		rule.CreatedAt = existing.CreatedAt
	case rule.CreatedAt.IsZero():
		rule.CreatedAt = now
	}

	rule.UpdatedAt = now

	return rr.store.write(filePath, rule)
}

// GetByID retrieves a rule from the workspace directory.
func (rr *RuleRepository) GetByID(_ context.Context, workspaceID, id string) (*models.AutomationRule, error) {
	rr.store.mu.Lock()
	defer rr.store.mu.Unlock()

	return rr.load("GetByID", workspaceID, id)
}

func (rr *RuleRepository) load(op, workspaceID, id string) (*models.AutomationRule, error) {
	filePath, err := rr.store.path(workspaceID, rulesDir, id)
	if err != nil {
		return nil, persistence.NewRuleError(op, workspaceID, id, err)
	}

	var rule models.AutomationRule

	found, err := rr.store.read(filePath, &rule)
	if err != nil {
		return nil, err
	}

	if !found || rule.WorkspaceID != workspaceID {
		return nil, persistence.NewRuleError(op, workspaceID, id, persistence.ErrRuleNotFound)
	}

	return &rule, nil
}

// List returns every rule of the workspace in creation order, active or not.
func (rr *RuleRepository) List(_ context.Context, workspaceID string) ([]*models.AutomationRule, error) {
	if err := validateID(workspaceID); err != nil {
		return nil, err
	}

	rr.store.mu.Lock()
	defer rr.store.mu.Unlock()

	files, err := rr.store.glob(path.Join("workspaces", workspaceID, rulesDir, "*.json"))
	if err != nil {
		return nil, err
	}

	rules := make([]*models.AutomationRule, 0, len(files))

	for _, file := range files {
		rule, err := rr.load("List", workspaceID, strings.TrimSuffix(path.Base(file), ".json"))
		if err != nil {
			return nil, err
		}

		rules = append(rules, rule)
	}

	models.SortRulesByCreation(rules)

	return rules, nil
}

// ListActive returns the active rules subscribed to trigger in creation order.
func (rr *RuleRepository) ListActive(ctx context.Context, workspaceID string, trigger models.TriggerEventType) ([]*models.AutomationRule, error) {
	rules, err := rr.List(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	active := make([]*models.AutomationRule, 0, len(rules))

	for _, rule := range rules {
		if rule.IsActive && rule.TriggerEvent == trigger {
			active = append(active, rule)
		}
	}

	return active, nil
}
