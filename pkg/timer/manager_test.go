package timer_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/agencyops/taskflow/pkg/models"
	"github.com/agencyops/taskflow/pkg/persistence/file"
	"github.com/agencyops/taskflow/pkg/testutil"
	"github.com/agencyops/taskflow/pkg/timer"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	manager *timer.Manager
	store   *file.Persistence
	emitter *testutil.RecordingEmitter
	clock   *clockwork.FakeClock
	task    *models.Task
}

func setup(t *testing.T) *fixture {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	emitter := &testutil.RecordingEmitter{}
	clock := clockwork.NewFakeClockAt(epoch)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	task := testutil.CreateTestTask(testutil.WithStatus(models.TaskStatusInProgress))
	require.NoError(t, store.TaskRepository().Create(context.Background(), task))

	return &fixture{
		manager: timer.NewManager(store, emitter, logger, timer.WithClock(clock)),
		store:   store,
		emitter: emitter,
		clock:   clock,
		task:    task,
	}
}

func TestDurationMinutes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		elapsed time.Duration
		want    int
	}{
		{0, 0},
		{-5 * time.Second, 0},
		{time.Nanosecond, 1},
		{59 * time.Second, 1},
		{60 * time.Second, 1},
		{61 * time.Second, 2},
		{90 * time.Second, 2},
		{2 * time.Hour, 120},
	}

	for _, tt := range tests {
		t.Run(tt.elapsed.String(), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, timer.DurationMinutes(tt.elapsed))
		})
	}
}

func TestManager_StartStop_RoundsUp(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := setup(t)

	started, err := f.manager.Start(ctx, f.task.WorkspaceID, f.task.ID, "user-1")
	require.NoError(t, err)
	require.NotNil(t, started.ActiveTimerStart)
	assert.True(t, started.ActiveTimerStart.Equal(epoch))

	f.clock.Advance(90 * time.Second)

	result, err := f.manager.Stop(ctx, f.task.WorkspaceID, f.task.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Session.DurationMinutes)
	assert.Equal(t, 2, result.Task.TimeSpentMinutes)
	assert.Nil(t, result.Task.ActiveTimerStart)

	sessions, err := f.manager.Sessions(ctx, f.task.WorkspaceID, f.task.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "user-1", sessions[0].UserID)
	assert.True(t, sessions[0].StartedAt.Equal(epoch))
	assert.True(t, sessions[0].StoppedAt.Equal(epoch.Add(90*time.Second)))

	assert.Len(t, f.emitter.OfType(models.TriggerTimerStarted), 1)
	assert.Len(t, f.emitter.OfType(models.TriggerTimerStopped), 1)

	entries, err := f.store.ActivityRepository().ListByRecord(ctx, f.task.WorkspaceID, f.task.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.ActivityTimerStarted, entries[0].ActionType)
	assert.Equal(t, models.ActivityTimerStopped, entries[1].ActionType)
}

func TestManager_TimeSpentAccumulates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := setup(t)

	for _, elapsed := range []time.Duration{30 * time.Second, 5 * time.Minute} {
		_, err := f.manager.Start(ctx, f.task.WorkspaceID, f.task.ID, "user-1")
		require.NoError(t, err)

		f.clock.Advance(elapsed)

		_, err = f.manager.Stop(ctx, f.task.WorkspaceID, f.task.ID, "user-1")
		require.NoError(t, err)
	}

	task, err := f.store.TaskRepository().GetByID(ctx, f.task.WorkspaceID, f.task.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, task.TimeSpentMinutes)
}

func TestManager_StopTwice(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := setup(t)

	_, err := f.manager.Start(ctx, f.task.WorkspaceID, f.task.ID, "user-1")
	require.NoError(t, err)

	f.clock.Advance(time.Minute)

	_, err = f.manager.Stop(ctx, f.task.WorkspaceID, f.task.ID, "user-1")
	require.NoError(t, err)

	_, err = f.manager.Stop(ctx, f.task.WorkspaceID, f.task.ID, "user-1")
	require.ErrorIs(t, err, models.ErrNoActiveSession)
}

func TestManager_StartTwice(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := setup(t)

	_, err := f.manager.Start(ctx, f.task.WorkspaceID, f.task.ID, "user-1")
	require.NoError(t, err)

	_, err = f.manager.Start(ctx, f.task.WorkspaceID, f.task.ID, "user-2")
	require.ErrorIs(t, err, models.ErrSessionAlreadyActive)
}

func TestManager_ConcurrentStart(t *testing.T) {
	t.Parallel()

	f := setup(t)

	const workers = 2

	var (
		wg      sync.WaitGroup
		start   = make(chan struct{})
		results = make(chan error, workers)
	)

	for i := range workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			<-start

			_, err := f.manager.Start(context.Background(), f.task.WorkspaceID, f.task.ID, "user-"+string(rune('a'+i)))
			results <- err
		}()
	}

	close(start)
	wg.Wait()
	close(results)

	var successes, alreadyActive int

	for err := range results {
		switch {
		case err == nil:
			successes++
		case models.IsTimerMisuse(err):
			alreadyActive++
		}
	}

	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, alreadyActive)
}

func TestManager_StopAttributesSessionToStarter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := setup(t)

	_, err := f.manager.Start(ctx, f.task.WorkspaceID, f.task.ID, "user-1")
	require.NoError(t, err)

	f.clock.Advance(10 * time.Minute)

	result, err := f.manager.Stop(ctx, f.task.WorkspaceID, f.task.ID, "manager-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", result.Session.UserID)
	assert.Equal(t, 10, result.Session.DurationMinutes)
}

func TestManager_Status(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := setup(t)

	status, err := f.manager.Status(ctx, f.task.WorkspaceID, f.task.ID)
	require.NoError(t, err)
	assert.False(t, status.Active)
	assert.Nil(t, status.StartedAt)
	assert.Zero(t, status.ElapsedSeconds)

	_, err = f.manager.Start(ctx, f.task.WorkspaceID, f.task.ID, "user-1")
	require.NoError(t, err)

	f.clock.Advance(75 * time.Second)

	status, err = f.manager.Status(ctx, f.task.WorkspaceID, f.task.ID)
	require.NoError(t, err)
	assert.True(t, status.Active)
	require.NotNil(t, status.StartedAt)
	assert.True(t, status.StartedAt.Equal(epoch))
	assert.Equal(t, "user-1", status.UserID)
	assert.Equal(t, int64(75), status.ElapsedSeconds)
	assert.True(t, status.ServerTime.Equal(epoch.Add(75*time.Second)))
}

func TestManager_TenantIsolation(t *testing.T) {
	t.Parallel()

	f := setup(t)

	_, err := f.manager.Start(context.Background(), "other-workspace", f.task.ID, "user-1")
	require.Error(t, err)
	assert.False(t, models.IsTimerMisuse(err))

	status, err := f.manager.Status(context.Background(), f.task.WorkspaceID, f.task.ID)
	require.NoError(t, err)
	assert.False(t, status.Active)
}
