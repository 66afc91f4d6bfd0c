package services

import (
	"testing"
	"time"

	"github.com/agencyops/taskflow/pkg/models"
	"github.com/agencyops/taskflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimer_StartStop(t *testing.T) {
	t.Parallel()

	f := setup(t)
	task := f.createTask(t)

	_, err := f.timers.Start(t.Context(), client, testutil.TestWorkspaceID, task.ID)
	assert.True(t, models.IsAuthorizationError(err), "clients do not track time")

	_, err = f.timers.Start(t.Context(), member, testutil.TestWorkspaceID, task.ID)
	require.NoError(t, err)

	_, err = f.timers.Start(t.Context(), member, testutil.TestWorkspaceID, task.ID)
	require.Error(t, err)
	assert.True(t, IsConflictError(err))

	f.clock.Advance(90 * time.Second)

	status, err := f.timers.Status(t.Context(), client, testutil.TestWorkspaceID, task.ID)
	require.NoError(t, err)
	assert.True(t, status.Active)
	assert.Equal(t, int64(90), status.ElapsedSeconds)

	result, err := f.timers.Stop(t.Context(), member, testutil.TestWorkspaceID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Task.TimeSpentMinutes)

	_, err = f.timers.Stop(t.Context(), member, testutil.TestWorkspaceID, task.ID)
	assert.True(t, IsConflictError(err))

	sessions, err := f.timers.Sessions(t.Context(), member, testutil.TestWorkspaceID, task.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, 2, sessions[0].DurationMinutes)
}
