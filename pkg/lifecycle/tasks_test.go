package lifecycle_test

import (
	"context"
	"testing"

	"github.com/agencyops/taskflow/pkg/lifecycle"
	"github.com/agencyops/taskflow/pkg/models"
	"github.com/agencyops/taskflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T {
	return &v
}

func TestMachine_Create(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := setup(t)

	created, err := f.machine.Create(ctx, &models.Task{
		WorkspaceID: testutil.TestWorkspaceID,
		Title:       "  Homepage banner ",
		Status:      models.TaskStatusApproved,
		AssigneeID:  "user-1",
	}, "user-9")
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Homepage banner", created.Title)
	assert.Equal(t, models.TaskStatusBacklog, created.Status, "new tasks always enter at backlog")
	assert.Equal(t, lifecycle.DefaultPriority, created.Priority)

	emitted := f.emitter.OfType(models.TriggerTaskCreated)
	require.Len(t, emitted, 1)
	assert.Equal(t, created.ID, emitted[0].Task.ID)
	assert.Equal(t, "user-9", emitted[0].ActorID)

	entries, err := f.store.ActivityRepository().ListByRecord(ctx, created.WorkspaceID, created.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.ActivityTaskCreated, entries[0].ActionType)
}

func TestMachine_Create_Validation(t *testing.T) {
	t.Parallel()

	f := setup(t)

	_, err := f.machine.Create(context.Background(), &models.Task{WorkspaceID: "ws-1", Title: " "}, "")
	assert.True(t, models.IsValidationError(err))

	_, err = f.machine.Create(context.Background(), &models.Task{Title: "x"}, "")
	assert.True(t, models.IsValidationError(err))
}

func TestMachine_UpdateFields(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := setup(t)
	task := testutil.CreateTestTask(testutil.WithCustomField("channel", "email"), testutil.WithCustomField("budget", 10.0))
	require.NoError(t, f.store.TaskRepository().Create(ctx, task))

	updated, changed, err := f.machine.UpdateFields(ctx, task.WorkspaceID, task.ID, "user-1", lifecycle.FieldPatch{
		Priority:   ptr("high"),
		AssigneeID: ptr(task.AssigneeID),
		CustomFields: map[string]any{
			"channel": nil,
			"budget":  10.0,
			"client":  "acme",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"priority", "custom.channel", "custom.client"}, changed)
	assert.Equal(t, "high", updated.Priority)
	assert.NotContains(t, updated.CustomFields, "channel")
	assert.Equal(t, "acme", updated.CustomFields["client"])

	emitted := f.emitter.OfType(models.TriggerFieldUpdated)
	require.Len(t, emitted, 1)
	assert.Equal(t, changed, emitted[0].ChangedFields)
	assert.Equal(t, "high", emitted[0].Task.Priority)

	stored := f.reload(t, task)
	assert.Equal(t, "high", stored.Priority)
	assert.Equal(t, task.Status, stored.Status)
}

func TestMachine_UpdateFields_NoChange(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := setup(t)
	task := f.createTask(t, models.TaskStatusInProgress)

	_, changed, err := f.machine.UpdateFields(ctx, task.WorkspaceID, task.ID, "user-1", lifecycle.FieldPatch{
		Priority: ptr(task.Priority),
	})
	require.NoError(t, err)
	assert.Empty(t, changed)
	assert.Empty(t, f.emitter.Events())

	_, _, err = f.machine.UpdateFields(ctx, task.WorkspaceID, task.ID, "user-1", lifecycle.FieldPatch{Title: ptr("")})
	assert.True(t, models.IsValidationError(err))
}
