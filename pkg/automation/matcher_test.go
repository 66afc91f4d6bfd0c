package automation

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/agencyops/taskflow/pkg/models"
	"github.com/agencyops/taskflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func statusChanged(task *models.Task, from, to models.TaskStatus) *models.TriggerEvent {
	return &models.TriggerEvent{
		ID:          "evt-" + task.ID + "-" + string(to),
		Type:        models.TriggerStatusChanged,
		WorkspaceID: task.WorkspaceID,
		Task:        task,
		OldStatus:   from,
		NewStatus:   to,
	}
}

func highPriorityGroup() models.FilterGroup {
	return models.FilterGroup{
		Logic: models.LogicAnd,
		Filters: []models.Filter{
			{Field: "priority", Operator: models.OperatorEquals, Value: "high"},
		},
	}
}

func TestMatcher_PriorityExample(t *testing.T) {
	t.Parallel()

	m := NewMatcher(discardLogger(), nil)
	rule := testutil.CreateTestRule(testutil.WithFilterGroups(highPriorityGroup()))

	tests := []struct {
		priority string
		want     int
	}{
		{"high", 1},
		{"low", 0},
	}

	for _, tt := range tests {
		t.Run(tt.priority, func(t *testing.T) {
			t.Parallel()

			task := testutil.CreateTestTask(
				testutil.WithStatus(models.TaskStatusInProgress),
				testutil.WithPriority(tt.priority),
			)

			got := m.Match(statusChanged(task, models.TaskStatusBacklog, models.TaskStatusInProgress), []*models.AutomationRule{rule})
			assert.Len(t, got, tt.want)
		})
	}
}

func TestMatcher_Filtering(t *testing.T) {
	t.Parallel()

	m := NewMatcher(discardLogger(), nil)
	task := testutil.CreateTestTask(testutil.WithPriority("high"))
	event := statusChanged(task, models.TaskStatusBacklog, models.TaskStatusInProgress)

	tests := []struct {
		name string
		rule *models.AutomationRule
		want bool
	}{
		{"no_groups_vacuously_true", testutil.CreateTestRule(), true},
		{"inactive", testutil.CreateTestRule(testutil.Inactive()), false},
		{"other_trigger", testutil.CreateTestRule(testutil.WithTrigger(models.TriggerFieldUpdated)), false},
		{"other_workspace", testutil.CreateTestRule(func(r *models.AutomationRule) { r.WorkspaceID = "ws-other" }), false},
		{
			"event_field",
			testutil.CreateTestRule(testutil.WithFilterGroups(models.FilterGroup{
				Logic:   models.LogicAnd,
				Filters: []models.Filter{{Field: "new_status", Operator: models.OperatorEquals, Value: "in_progress"}},
			})),
			true,
		},
		{
			"all_groups_must_pass",
			testutil.CreateTestRule(testutil.WithFilterGroups(
				highPriorityGroup(),
				models.FilterGroup{
					Logic:   models.LogicOr,
					Filters: []models.Filter{{Field: "old_status", Operator: models.OperatorEquals, Value: "approved"}},
				},
			)),
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := m.Match(event, []*models.AutomationRule{tt.rule})
			assert.Equal(t, tt.want, len(got) == 1)
		})
	}
}

func TestMatcher_CreationOrder(t *testing.T) {
	t.Parallel()

	m := NewMatcher(discardLogger(), nil)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	third := testutil.CreateTestRule(testutil.WithCreatedAt(base.Add(time.Hour)))
	first := testutil.CreateTestRule(testutil.WithCreatedAt(base), func(r *models.AutomationRule) { r.ID = "a" })
	second := testutil.CreateTestRule(testutil.WithCreatedAt(base), func(r *models.AutomationRule) { r.ID = "b" })

	rules := []*models.AutomationRule{third, second, first}
	task := testutil.CreateTestTask()

	got := m.Match(statusChanged(task, models.TaskStatusBacklog, models.TaskStatusInProgress), rules)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a", "b", third.ID}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, third, rules[0], "input slice is not reordered")
}

func TestMatcher_Idempotent(t *testing.T) {
	t.Parallel()

	m := NewMatcher(discardLogger(), nil)
	rule := testutil.CreateTestRule(testutil.WithFilterGroups(highPriorityGroup()))
	event := statusChanged(testutil.CreateTestTask(testutil.WithPriority("high")), models.TaskStatusBacklog, models.TaskStatusInProgress)

	assert.Equal(t, m.Match(event, []*models.AutomationRule{rule}), m.Match(event, []*models.AutomationRule{rule}))
}
