package services

import (
	"context"
	"testing"
	"time"

	"github.com/agencyops/taskflow/pkg/models"
	"github.com/agencyops/taskflow/pkg/persistence/file"
	"github.com/agencyops/taskflow/pkg/testutil"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	admin   = models.Principal{UserID: "admin-1", WorkspaceID: testutil.TestWorkspaceID, Role: models.RoleAdmin}
	manager = models.Principal{UserID: "manager-1", WorkspaceID: testutil.TestWorkspaceID, Role: models.RoleManager}
	member  = models.Principal{UserID: "user-1", WorkspaceID: testutil.TestWorkspaceID, Role: models.RoleMember}
	client  = models.Principal{UserID: "client-1", WorkspaceID: testutil.TestWorkspaceID, Role: models.RoleClient}
)

func newRuleService(t *testing.T) (*Rule, *file.Persistence, *clockwork.FakeClock) {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))

	return NewRule(store.RuleRepository(), clock), store, clock
}

func TestRule_Validate(t *testing.T) {
	t.Parallel()

	service, _, _ := newRuleService(t)

	tests := []struct {
		name    string
		mutate  func(*models.AutomationRule)
		wantErr error
	}{
		{
			name:   "valid_rule",
			mutate: func(*models.AutomationRule) {},
		},
		{
			name:    "missing_name",
			mutate:  func(r *models.AutomationRule) { r.Name = " " },
			wantErr: ErrRuleNameRequired,
		},
		{
			name:    "unknown_trigger",
			mutate:  func(r *models.AutomationRule) { r.TriggerEvent = "task_deleted" },
			wantErr: ErrInvalidTrigger,
		},
		{
			name:    "empty_action_chain",
			mutate:  func(r *models.AutomationRule) { r.ActionChain = nil },
			wantErr: ErrInvalidRequest,
		},
		{
			name: "unknown_operator",
			mutate: func(r *models.AutomationRule) {
				r.FilterGroups = []models.FilterGroup{{
					Logic:   models.LogicAnd,
					Filters: []models.Filter{{Field: "priority", Operator: "matches", Value: "high"}},
				}}
			},
			wantErr: ErrInvalidRequest,
		},
		{
			name: "unknown_logic",
			mutate: func(r *models.AutomationRule) {
				r.FilterGroups = []models.FilterGroup{{Logic: "XOR"}}
			},
			wantErr: ErrInvalidRequest,
		},
		{
			name: "binary_operator_without_value",
			mutate: func(r *models.AutomationRule) {
				r.FilterGroups = []models.FilterGroup{{
					Logic:   models.LogicOr,
					Filters: []models.Filter{{Field: "priority", Operator: models.OperatorEquals}},
				}}
			},
			wantErr: models.ErrValidation,
		},
		{
			name: "unary_operator_without_value",
			mutate: func(r *models.AutomationRule) {
				r.FilterGroups = []models.FilterGroup{{
					Logic:   models.LogicOr,
					Filters: []models.Filter{{Field: "assignee_id", Operator: models.OperatorIsEmpty}},
				}}
			},
		},
		{
			name: "change_status_to_unknown_status",
			mutate: func(r *models.AutomationRule) {
				r.ActionChain = []models.Action{models.NewChangeStatusAction("done")}
			},
			wantErr: models.ErrValidation,
		},
		{
			name: "mismatched_action_variant",
			mutate: func(r *models.AutomationRule) {
				r.ActionChain = []models.Action{{Type: models.ActionNotify}}
			},
			wantErr: models.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rule := testutil.CreateTestRule()
			tt.mutate(rule)

			err := service.Validate(rule)
			if tt.wantErr == nil {
				assert.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestValidateRuleDocument_RejectsBlankComment(t *testing.T) {
	t.Parallel()

	rule := testutil.CreateTestRule(testutil.WithActions(models.Action{
		Type:        models.ActionSendComment,
		SendComment: &models.SendCommentParams{Content: ""},
	}))

	err := validateRuleDocument(rule)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRuleSchema)
}

func TestRule_CreateRequiresAdmin(t *testing.T) {
	t.Parallel()

	service, _, _ := newRuleService(t)

	for _, principal := range []models.Principal{manager, member, client} {
		_, err := service.Create(t.Context(), principal, testutil.TestWorkspaceID, testutil.CreateTestRule())
		require.Error(t, err)
		assert.True(t, models.IsAuthorizationError(err), "role %s", principal.Role)
	}

	_, err := service.Create(t.Context(), admin, "ws-other", testutil.CreateTestRule())
	assert.True(t, models.IsAuthorizationError(err))
}

func TestRule_CreateUpdateDeactivate(t *testing.T) {
	t.Parallel()

	service, store, clock := newRuleService(t)
	ctx := context.Background()

	rule := testutil.CreateTestRule()
	rule.ID = ""

	created, err := service.Create(ctx, admin, testutil.TestWorkspaceID, rule)
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "admin-1", created.CreatedBy)
	assert.Equal(t, clock.Now().UTC(), created.CreatedAt)

	_, err = service.Create(ctx, admin, testutil.TestWorkspaceID, created)
	assert.ErrorIs(t, err, ErrRuleAlreadyExists)

	clock.Advance(time.Hour)

	replacement := testutil.CreateTestRule(testutil.WithTrigger(models.TriggerTaskCreated))
	replacement.Name = "Renamed"

	updated, err := service.Update(ctx, admin, testutil.TestWorkspaceID, created.ID, models.RuleDefinition{Rule: replacement})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.True(t, updated.UpdatedAt.After(updated.CreatedAt))

	deactivated, err := service.Deactivate(ctx, admin, testutil.TestWorkspaceID, created.ID)
	require.NoError(t, err)
	assert.False(t, deactivated.IsActive)

	stored, err := store.RuleRepository().GetByID(ctx, testutil.TestWorkspaceID, created.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)

	active, err := store.RuleRepository().ListActive(ctx, testutil.TestWorkspaceID, models.TriggerTaskCreated)
	require.NoError(t, err)
	assert.Empty(t, active)

	rules, err := service.List(ctx, manager, testutil.TestWorkspaceID)
	require.NoError(t, err)
	assert.Len(t, rules, 1)
}

func TestRule_UpdateMissingRule(t *testing.T) {
	t.Parallel()

	service, _, _ := newRuleService(t)

	_, err := service.Update(t.Context(), admin, testutil.TestWorkspaceID, "missing", models.RuleDefinition{Rule: testutil.CreateTestRule()})
	require.Error(t, err)
	assert.True(t, IsNotFoundError(err))
}

func TestRule_ImportIsAllOrNothing(t *testing.T) {
	t.Parallel()

	service, store, _ := newRuleService(t)
	ctx := context.Background()

	good := testutil.CreateTestRule()
	bad := testutil.CreateTestRule(testutil.WithActions())

	_, err := service.Import(ctx, admin, testutil.TestWorkspaceID, []models.RuleDefinition{{Rule: good}, {Rule: bad}})
	require.Error(t, err)

	rules, err := store.RuleRepository().List(ctx, testutil.TestWorkspaceID)
	require.NoError(t, err)
	assert.Empty(t, rules)

	result, err := service.Import(ctx, admin, testutil.TestWorkspaceID, []models.RuleDefinition{{Rule: good}})
	require.NoError(t, err)
	assert.Equal(t, &ImportResult{Created: 1}, result)

	good.Name = "Changed"

	result, err = service.Import(ctx, admin, testutil.TestWorkspaceID, []models.RuleDefinition{{Rule: good}})
	require.NoError(t, err)
	assert.Equal(t, &ImportResult{Updated: 1}, result)

	stored, err := store.RuleRepository().GetByID(ctx, testutil.TestWorkspaceID, good.ID)
	require.NoError(t, err)
	assert.Equal(t, "Changed", stored.Name)
}

func TestRule_UpdateKeepsActiveState(t *testing.T) {
	t.Parallel()

	service, store, _ := newRuleService(t)
	ctx := context.Background()

	created, err := service.Create(ctx, admin, testutil.TestWorkspaceID, testutil.CreateTestRule())
	require.NoError(t, err)

	_, err = service.Deactivate(ctx, admin, testutil.TestWorkspaceID, created.ID)
	require.NoError(t, err)

	renamed := testutil.CreateTestRule()
	renamed.Name = "Renamed"

	updated, err := service.Update(ctx, admin, testutil.TestWorkspaceID, created.ID, models.RuleDefinition{Rule: renamed})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.False(t, updated.IsActive)

	stored, err := store.RuleRepository().GetByID(ctx, testutil.TestWorkspaceID, created.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)

	active := true

	updated, err = service.Update(ctx, admin, testutil.TestWorkspaceID, created.ID, models.RuleDefinition{Rule: testutil.CreateTestRule(), Active: &active})
	require.NoError(t, err)
	assert.True(t, updated.IsActive)
}

func TestRule_ImportKeepsActiveState(t *testing.T) {
	t.Parallel()

	service, store, _ := newRuleService(t)
	ctx := context.Background()

	rule := testutil.CreateTestRule()

	_, err := service.Import(ctx, admin, testutil.TestWorkspaceID, []models.RuleDefinition{{Rule: rule}})
	require.NoError(t, err)

	_, err = service.Deactivate(ctx, admin, testutil.TestWorkspaceID, rule.ID)
	require.NoError(t, err)

	reimport := testutil.CreateTestRule()
	reimport.ID = rule.ID

	inactive := false
	fresh := testutil.CreateTestRule()
	fresh.ID = "rule-fresh"

	result, err := service.Import(ctx, admin, testutil.TestWorkspaceID, []models.RuleDefinition{
		{Rule: reimport},
		{Rule: fresh, Active: &inactive},
	})
	require.NoError(t, err)
	assert.Equal(t, &ImportResult{Created: 1, Updated: 1}, result)

	stored, err := store.RuleRepository().GetByID(ctx, testutil.TestWorkspaceID, rule.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)

	stored, err = store.RuleRepository().GetByID(ctx, testutil.TestWorkspaceID, "rule-fresh")
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
}
