// Package persistencetest holds the behavior every persistence backend must share.
package persistencetest

import (
	"sync"
	"testing"
	"time"

	"github.com/agencyops/taskflow/pkg/models"
	"github.com/agencyops/taskflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty backend for one test.
type Factory func(t *testing.T) persistence.Persistence

// Run executes the repository contract against backends produced by factory.
func Run(t *testing.T, factory Factory) {
	t.Helper()

	t.Run("tasks", func(t *testing.T) { testTasks(t, factory(t)) })
	t.Run("lifecycle compare-and-set", func(t *testing.T) { testLifecycleCAS(t, factory(t)) })
	t.Run("timer", func(t *testing.T) { testTimer(t, factory(t)) })
	t.Run("concurrent timer start", func(t *testing.T) { testConcurrentStart(t, factory(t)) })
	t.Run("rules", func(t *testing.T) { testRules(t, factory(t)) })
	t.Run("activity and comments", func(t *testing.T) { testLogs(t, factory(t)) })
}

func newTask(workspaceID, id string, created time.Time) *models.Task {
	return &models.Task{
		ID:           id,
		WorkspaceID:  workspaceID,
		Title:        "Task " + id,
		Status:       models.TaskStatusBacklog,
		Priority:     "medium",
		CustomFields: map[string]any{"channel": "instagram"},
		CreatedAt:    created,
	}
}

func testTasks(t *testing.T, p persistence.Persistence) {
	ctx := t.Context()
	repo := p.TaskRepository()
	base := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, newTask("ws-a", "t-2", base.Add(time.Minute))))
	require.NoError(t, repo.Create(ctx, newTask("ws-a", "t-1", base)))
	require.NoError(t, repo.Create(ctx, newTask("ws-b", "t-3", base)))

	err := repo.Create(ctx, newTask("ws-a", "t-1", base))
	require.ErrorIs(t, err, persistence.ErrTaskAlreadyExists)

	got, err := repo.GetByID(ctx, "ws-a", "t-1")
	require.NoError(t, err)
	assert.Equal(t, "Task t-1", got.Title)
	assert.Equal(t, models.TaskStatusBacklog, got.Status)
	assert.Equal(t, "instagram", got.CustomFields["channel"])

	_, err = repo.GetByID(ctx, "ws-b", "t-1")
	assert.True(t, persistence.IsTaskNotFound(err), "tasks must not leak across workspaces")

	_, err = repo.GetByID(ctx, "ws-a", "missing")
	assert.True(t, persistence.IsTaskNotFound(err))

	tasks, err := repo.List(ctx, "ws-a", persistence.ListTasksOptions{})
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "t-1", tasks[0].ID)
	assert.Equal(t, "t-2", tasks[1].ID)

	limited, err := repo.List(ctx, "ws-a", persistence.ListTasksOptions{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "t-2", limited[0].ID)

	got.Title = "Renamed"
	got.Priority = "high"
	got.AssigneeID = "user-1"
	got.Status = models.TaskStatusApproved
	require.NoError(t, repo.UpdateFields(ctx, got))

	reloaded, err := repo.GetByID(ctx, "ws-a", "t-1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", reloaded.Title)
	assert.Equal(t, "high", reloaded.Priority)
	assert.Equal(t, "user-1", reloaded.AssigneeID)
	assert.Equal(t, models.TaskStatusBacklog, reloaded.Status, "field updates must not change status")

	byAssignee, err := repo.List(ctx, "ws-a", persistence.ListTasksOptions{AssigneeID: "user-1"})
	require.NoError(t, err)
	require.Len(t, byAssignee, 1)

	foreign := newTask("ws-b", "t-1", base)
	err = repo.UpdateFields(ctx, foreign)
	assert.True(t, persistence.IsTaskNotFound(err))
}

func testLifecycleCAS(t *testing.T, p persistence.Persistence) {
	ctx := t.Context()
	repo := p.TaskRepository()

	require.NoError(t, repo.Create(ctx, newTask("ws-a", "t-1", time.Now().UTC())))

	task, err := repo.GetByID(ctx, "ws-a", "t-1")
	require.NoError(t, err)

	task.Status = models.TaskStatusInProgress
	require.NoError(t, repo.UpdateLifecycle(ctx, task, models.TaskStatusBacklog))

	stale := task.Clone()
	stale.Status = models.TaskStatusInternalReview
	err = repo.UpdateLifecycle(ctx, stale, models.TaskStatusBacklog)
	assert.True(t, persistence.IsStatusConflict(err))

	pending := models.ClientViewPending
	feedback := "too dark"
	task.Status = models.TaskStatusInternalReview
	task.ClientViewStatus = &pending
	task.LastClientFeedback = &feedback
	task.InternalRevisionCount = 3
	require.NoError(t, repo.UpdateLifecycle(ctx, task, models.TaskStatusInProgress))

	reloaded, err := repo.GetByID(ctx, "ws-a", "t-1")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusInternalReview, reloaded.Status)
	assert.Equal(t, 3, reloaded.InternalRevisionCount)
	require.NotNil(t, reloaded.ClientViewStatus)
	assert.Equal(t, models.ClientViewPending, *reloaded.ClientViewStatus)
	require.NotNil(t, reloaded.LastClientFeedback)
	assert.Equal(t, "too dark", *reloaded.LastClientFeedback)
}

func testTimer(t *testing.T, p persistence.Persistence) {
	ctx := t.Context()
	tasks := p.TaskRepository()
	timers := p.TimerRepository()

	require.NoError(t, tasks.Create(ctx, newTask("ws-a", "t-1", time.Now().UTC())))

	start := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	require.NoError(t, timers.StartTimer(ctx, "ws-a", "t-1", "user-1", start))

	err := timers.StartTimer(ctx, "ws-a", "t-1", "user-2", start.Add(time.Second))
	require.ErrorIs(t, err, persistence.ErrTimerAlreadyActive)

	err = timers.StartTimer(ctx, "ws-b", "t-1", "user-1", start)
	assert.True(t, persistence.IsTaskNotFound(err))

	running, err := tasks.GetByID(ctx, "ws-a", "t-1")
	require.NoError(t, err)
	require.NotNil(t, running.ActiveTimerStart)
	assert.True(t, running.ActiveTimerStart.Equal(start))
	assert.Equal(t, "user-1", running.ActiveTimerUserID)

	active, err := timers.ListActive(ctx, start.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "t-1", active[0].ID)

	active, err = timers.ListActive(ctx, start.Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, active)

	entry := &models.TimerLogEntry{
		ID:              "s-1",
		WorkspaceID:     "ws-a",
		TaskID:          "t-1",
		UserID:          "user-1",
		DurationMinutes: 2,
		StartedAt:       *running.ActiveTimerStart,
		StoppedAt:       start.Add(90 * time.Second),
	}
	require.NoError(t, timers.CompleteTimer(ctx, entry))

	err = timers.CompleteTimer(ctx, entry)
	require.ErrorIs(t, err, persistence.ErrTimerNotActive)

	stopped, err := tasks.GetByID(ctx, "ws-a", "t-1")
	require.NoError(t, err)
	assert.Nil(t, stopped.ActiveTimerStart)
	assert.Equal(t, 2, stopped.TimeSpentMinutes)

	sessions, err := timers.ListSessions(ctx, "ws-a", "t-1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, 2, sessions[0].DurationMinutes)
	assert.Equal(t, "user-1", sessions[0].UserID)

	other, err := timers.ListSessions(ctx, "ws-b", "t-1")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func testConcurrentStart(t *testing.T, p persistence.Persistence) {
	ctx := t.Context()

	require.NoError(t, p.TaskRepository().Create(ctx, newTask("ws-a", "t-1", time.Now().UTC())))

	const callers = 8

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)

	start := time.Now().UTC()

	for i := range callers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			err := p.TimerRepository().StartTimer(ctx, "ws-a", "t-1", "user", start.Add(time.Duration(i)*time.Millisecond))

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				successes++
			case persistence.IsNotFound(err):
				t.Errorf("unexpected not found: %v", err)
			default:
				assert.ErrorIs(t, err, persistence.ErrTimerAlreadyActive)
				conflicts++
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, callers-1, conflicts)
}

func testRules(t *testing.T, p persistence.Persistence) {
	ctx := t.Context()
	repo := p.RuleRepository()
	base := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

	rule := func(id string, created time.Time, trigger models.TriggerEventType, active bool) *models.AutomationRule {
		return &models.AutomationRule{
			ID:           id,
			WorkspaceID:  "ws-a",
			Name:         "rule " + id,
			TriggerEvent: trigger,
			FilterGroups: []models.FilterGroup{{
				Logic:   models.LogicAnd,
				Filters: []models.Filter{{Field: "priority", Operator: models.OperatorEquals, Value: "high"}},
			}},
			ActionChain: []models.Action{models.NewNotifyAction("{{task.title}} moved", "@assignee")},
			IsActive:    active,
			CreatedAt:   created,
		}
	}

	require.NoError(t, repo.Save(ctx, rule("r-b", base.Add(time.Minute), models.TriggerStatusChanged, true)))
	require.NoError(t, repo.Save(ctx, rule("r-a", base, models.TriggerStatusChanged, true)))
	require.NoError(t, repo.Save(ctx, rule("r-c", base.Add(2*time.Minute), models.TriggerStatusChanged, false)))
	require.NoError(t, repo.Save(ctx, rule("r-d", base.Add(3*time.Minute), models.TriggerTaskCreated, true)))

	got, err := repo.GetByID(ctx, "ws-a", "r-a")
	require.NoError(t, err)
	require.Len(t, got.ActionChain, 1)
	assert.Equal(t, models.ActionNotify, got.ActionChain[0].Type)
	require.NotNil(t, got.ActionChain[0].Notify)
	assert.Equal(t, []string{"@assignee"}, got.ActionChain[0].Notify.Mentions)
	require.Len(t, got.FilterGroups, 1)
	assert.Equal(t, "high", got.FilterGroups[0].Filters[0].Value)

	_, err = repo.GetByID(ctx, "ws-b", "r-a")
	assert.True(t, persistence.IsRuleNotFound(err))

	all, err := repo.List(ctx, "ws-a")
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "r-a", all[0].ID)
	assert.Equal(t, "r-b", all[1].ID)

	active, err := repo.ListActive(ctx, "ws-a", models.TriggerStatusChanged)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "r-a", active[0].ID)
	assert.Equal(t, "r-b", active[1].ID)

	got.IsActive = false
	got.CreatedAt = base.Add(time.Hour)
	require.NoError(t, repo.Save(ctx, got))

	reloaded, err := repo.GetByID(ctx, "ws-a", "r-a")
	require.NoError(t, err)
	assert.False(t, reloaded.IsActive)
	assert.True(t, reloaded.CreatedAt.Equal(base), "saving must keep the original creation time")
}

func testLogs(t *testing.T, p persistence.Persistence) {
	ctx := t.Context()
	now := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

	for i, status := range []string{"in_progress", "internal_review"} {
		require.NoError(t, p.ActivityRepository().Append(ctx, &models.ActivityLogEntry{
			ID:          "a-" + status,
			WorkspaceID: "ws-a",
			RecordID:    "t-1",
			ActionType:  models.ActivityStatusChanged,
			Metadata:    map[string]any{"new_status": status},
			CreatedAt:   now.Add(time.Duration(i) * time.Second),
		}))
	}

	entries, err := p.ActivityRepository().ListByRecord(ctx, "ws-a", "t-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "in_progress", entries[0].Metadata["new_status"])
	assert.Equal(t, "internal_review", entries[1].Metadata["new_status"])

	entries, err = p.ActivityRepository().ListByRecord(ctx, "ws-b", "t-1")
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, p.CommentRepository().Add(ctx, &models.Comment{
		ID:          "c-1",
		WorkspaceID: "ws-a",
		TaskID:      "t-1",
		AuthorID:    models.CommentAuthorAutomation,
		Content:     "Moved to review",
		CreatedAt:   now,
	}))

	comments, err := p.CommentRepository().ListByTask(ctx, "ws-a", "t-1")
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "Moved to review", comments[0].Content)
	assert.Equal(t, models.CommentAuthorAutomation, comments[0].AuthorID)
}
