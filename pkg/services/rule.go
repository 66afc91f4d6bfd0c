package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/agencyops/taskflow/pkg/authz"
	"github.com/agencyops/taskflow/pkg/models"
	"github.com/agencyops/taskflow/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/jonboulle/clockwork"
)

// Rule manages automation rules. Every write is admin-only and strictly validated so the
// engine never evaluates a malformed rule.
type Rule struct {
	repo     persistence.RuleRepository
	validate *validator.Validate
	clock    clockwork.Clock
}

// NewRule creates a new rule service over repo, which may be a cache in front of persistence.
func NewRule(repo persistence.RuleRepository, clock clockwork.Clock) *Rule {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Rule{
		repo:     repo,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		clock:    clock,
	}
}

// Validate runs the save-time checks without storing anything.
func (r *Rule) Validate(rule *models.AutomationRule) error {
	if rule == nil {
		return ErrRuleNil
	}

	if strings.TrimSpace(rule.Name) == "" {
		return ErrRuleNameRequired
	}

	if !rule.TriggerEvent.Valid() {
		return NewValidationError("validate_rule", "invalid_trigger",
			fmt.Sprintf("unsupported trigger event %q", rule.TriggerEvent), ErrInvalidTrigger)
	}

	if err := r.validate.Struct(rule); err != nil {
		return NewValidationError("validate_rule", "invalid_rule", err.Error(), ErrInvalidRequest)
	}

	for i, action := range rule.ActionChain {
		if err := action.Validate(); err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}
	}

	for i, group := range rule.FilterGroups {
		for j, filter := range group.Filters {
			if !filter.Operator.Unary() && filter.Value == nil {
				return models.NewValidationError(
					fmt.Sprintf("filter_groups[%d].filters[%d].value", i, j),
					fmt.Sprintf("operator %s requires a value", filter.Operator))
			}
		}
	}

	return validateRuleDocument(rule)
}

// Create stores a new rule in the principal's workspace.
func (r *Rule) Create(ctx context.Context, principal models.Principal, workspaceID string, rule *models.AutomationRule) (*models.AutomationRule, error) {
	if err := authz.Authorize(principal, workspaceID, authz.ActionManageRules); err != nil {
		return nil, err
	}

	if rule == nil {
		return nil, ErrRuleNil
	}

	rule.WorkspaceID = workspaceID

	if rule.ID == "" {
		rule.ID = newRuleID()
	} else {
		_, err := r.repo.GetByID(ctx, workspaceID, rule.ID)
		if err == nil {
			return nil, ErrRuleAlreadyExists
		}

		if !persistence.IsRuleNotFound(err) {
			return nil, fmt.Errorf("failed to check rule: %w", err)
		}
	}

	now := r.clock.Now().UTC()
	rule.CreatedBy = principal.UserID
	rule.CreatedAt = now
	rule.UpdatedAt = now

	if err := r.Validate(rule); err != nil {
		return nil, err
	}

	if err := r.repo.Save(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to save rule: %w", err)
	}

	return rule, nil
}

// Update replaces a rule's definition, keeping its identity and creation metadata. A
// deactivated rule stays deactivated unless def.Active turns it back on.
func (r *Rule) Update(ctx context.Context, principal models.Principal, workspaceID, id string, def models.RuleDefinition) (*models.AutomationRule, error) {
	if err := authz.Authorize(principal, workspaceID, authz.ActionManageRules); err != nil {
		return nil, err
	}

	rule := def.Rule
	if rule == nil {
		return nil, ErrRuleNil
	}

	existing, err := r.repo.GetByID(ctx, workspaceID, id)
	if err != nil {
		return nil, err
	}

	rule.IsActive = activeState(def.Active, existing)
	rule.ID = existing.ID
	rule.WorkspaceID = existing.WorkspaceID
	rule.CreatedBy = existing.CreatedBy
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = r.clock.Now().UTC()

	if err := r.Validate(rule); err != nil {
		return nil, err
	}

	if err := r.repo.Save(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to save rule: %w", err)
	}

	return rule, nil
}

// Deactivate stops a rule from being evaluated. The record is kept.
func (r *Rule) Deactivate(ctx context.Context, principal models.Principal, workspaceID, id string) (*models.AutomationRule, error) {
	if err := authz.Authorize(principal, workspaceID, authz.ActionManageRules); err != nil {
		return nil, err
	}

	rule, err := r.repo.GetByID(ctx, workspaceID, id)
	if err != nil {
		return nil, err
	}

	if !rule.IsActive {
		return rule, nil
	}

	rule.IsActive = false
	rule.UpdatedAt = r.clock.Now().UTC()

	if err := r.repo.Save(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to save rule: %w", err)
	}

	return rule, nil
}

func (r *Rule) Get(ctx context.Context, principal models.Principal, workspaceID, id string) (*models.AutomationRule, error) {
	if err := authz.Authorize(principal, workspaceID, authz.ActionReadRules); err != nil {
		return nil, err
	}

	return r.repo.GetByID(ctx, workspaceID, id)
}

func (r *Rule) List(ctx context.Context, principal models.Principal, workspaceID string) ([]*models.AutomationRule, error) {
	if err := authz.Authorize(principal, workspaceID, authz.ActionReadRules); err != nil {
		return nil, err
	}

	return r.repo.List(ctx, workspaceID)
}

// ImportResult counts what an import changed.
type ImportResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
}

// Import upserts rules by ID. Nothing is written unless every rule validates. Existing
// rules keep their active state unless the definition sets it.
func (r *Rule) Import(ctx context.Context, principal models.Principal, workspaceID string, defs []models.RuleDefinition) (*ImportResult, error) {
	if err := authz.Authorize(principal, workspaceID, authz.ActionManageRules); err != nil {
		return nil, err
	}

	var errs *multierror.Error

	for i, def := range defs {
		rule := def.Rule
		if rule == nil {
			errs = multierror.Append(errs, fmt.Errorf("rule %d: %w", i, ErrRuleNil))

			continue
		}

		rule.WorkspaceID = workspaceID

		if err := r.Validate(rule); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("rule %d (%s): %w", i, rule.Name, err))
		}
	}

	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}

	result := &ImportResult{}

	for _, def := range defs {
		rule := def.Rule
		now := r.clock.Now().UTC()

		existing, err := r.lookup(ctx, workspaceID, rule.ID)
		if err != nil {
			return result, err
		}

		rule.IsActive = activeState(def.Active, existing)

		if existing == nil {
			if rule.ID == "" {
				rule.ID = newRuleID()
			}

			rule.CreatedBy = principal.UserID
			rule.CreatedAt = now
			result.Created++
		} else {
			rule.CreatedBy = existing.CreatedBy
			rule.CreatedAt = existing.CreatedAt
			result.Updated++
		}

		rule.UpdatedAt = now

		if err := r.repo.Save(ctx, rule); err != nil {
			return result, fmt.Errorf("failed to save rule %s: %w", rule.ID, err)
		}
	}

	return result, nil
}

// activeState resolves a submitted active flag: explicit wins, then the stored state, and
// new rules start active.
func activeState(active *bool, existing *models.AutomationRule) bool {
	switch {
	case active != nil:
		return *active
	case existing != nil:
		return existing.IsActive
	default:
		return true
	}
}

func (r *Rule) lookup(ctx context.Context, workspaceID, id string) (*models.AutomationRule, error) {
	if id == "" {
		return nil, nil
	}

	rule, err := r.repo.GetByID(ctx, workspaceID, id)
	if errors.Is(err, persistence.ErrRuleNotFound) {
		return nil, nil
	}

	return rule, err
}

func newRuleID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}

	return id.String()
}
