package automation

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agencyops/taskflow/pkg/events"
	"github.com/agencyops/taskflow/pkg/lifecycle"
	"github.com/agencyops/taskflow/pkg/models"
	"github.com/agencyops/taskflow/pkg/persistence/file"
	"github.com/agencyops/taskflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticRules []*models.AutomationRule

func (s staticRules) ListActive(_ context.Context, workspaceID string, trigger models.TriggerEventType) ([]*models.AutomationRule, error) {
	var out []*models.AutomationRule

	for _, r := range s {
		if r.WorkspaceID == workspaceID && r.TriggerEvent == trigger && r.IsActive {
			out = append(out, r)
		}
	}

	return out, nil
}

// trackingRunner records the order events are run in and the peak concurrency per task.
type trackingRunner struct {
	mu      sync.Mutex
	order   map[string][]string
	running map[string]int
	peak    map[string]int
	total   atomic.Int32
}

func newTrackingRunner() *trackingRunner {
	return &trackingRunner{
		order:   map[string][]string{},
		running: map[string]int{},
		peak:    map[string]int{},
	}
}

func (r *trackingRunner) Run(_ context.Context, rule *models.AutomationRule, event *models.TriggerEvent) *RunReport {
	taskID := event.Task.ID

	r.mu.Lock()
	r.running[taskID]++
	r.peak[taskID] = max(r.peak[taskID], r.running[taskID])
	r.order[taskID] = append(r.order[taskID], event.ID)
	r.mu.Unlock()

	time.Sleep(time.Millisecond)

	r.mu.Lock()
	r.running[taskID]--
	r.mu.Unlock()

	r.total.Add(1)

	return &RunReport{RuleID: rule.ID, EventID: event.ID, TaskID: taskID}
}

func newTestDispatcher(t *testing.T, rules RuleSource, runner Runner) *Dispatcher {
	t.Helper()

	d, err := NewDispatcher(rules, NewMatcher(discardLogger(), nil), runner, discardLogger(), nil, DispatcherConfig{})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = d.Close(context.Background())
	})

	return d
}

func TestDispatcher_SerializesPerTask(t *testing.T) {
	t.Parallel()

	runner := newTrackingRunner()
	d := newTestDispatcher(t, staticRules{testutil.CreateTestRule()}, runner)

	taskA := testutil.CreateTestTask()
	taskB := testutil.CreateTestTask()

	var wantA, wantB []string

	for i := range 10 {
		a := statusChanged(taskA, models.TaskStatusBacklog, models.TaskStatusInProgress)
		a.ID = "a-" + string(rune('0'+i))
		b := statusChanged(taskB, models.TaskStatusBacklog, models.TaskStatusInProgress)
		b.ID = "b-" + string(rune('0'+i))

		require.NoError(t, d.Dispatch(a))
		require.NoError(t, d.Dispatch(b))

		wantA = append(wantA, a.ID)
		wantB = append(wantB, b.ID)
	}

	d.Wait()

	runner.mu.Lock()
	defer runner.mu.Unlock()

	assert.Equal(t, wantA, runner.order[taskA.ID])
	assert.Equal(t, wantB, runner.order[taskB.ID])
	assert.Equal(t, 1, runner.peak[taskA.ID])
	assert.Equal(t, 1, runner.peak[taskB.ID])
}

func TestDispatcher_IgnoresDuplicateEvents(t *testing.T) {
	t.Parallel()

	runner := newTrackingRunner()
	d := newTestDispatcher(t, staticRules{testutil.CreateTestRule()}, runner)

	event := statusChanged(testutil.CreateTestTask(), models.TaskStatusBacklog, models.TaskStatusInProgress)

	require.NoError(t, d.Dispatch(event))
	require.NoError(t, d.Dispatch(event))
	d.Wait()

	assert.Equal(t, int32(1), runner.total.Load())
}

func TestDispatcher_DropsEventsAtMaxDepth(t *testing.T) {
	t.Parallel()

	runner := newTrackingRunner()
	d := newTestDispatcher(t, staticRules{testutil.CreateTestRule()}, runner)

	event := statusChanged(testutil.CreateTestTask(), models.TaskStatusBacklog, models.TaskStatusInProgress)
	event.Depth = DefaultMaxDepth

	assert.Nil(t, d.Process(context.Background(), event))
	assert.Zero(t, runner.total.Load())
}

func TestDispatcher_Handle(t *testing.T) {
	t.Parallel()

	runner := newTrackingRunner()
	d := newTestDispatcher(t, staticRules{testutil.CreateTestRule()}, runner)

	err := d.Handle(context.Background(), "not an event")
	require.Error(t, err)

	err = d.Handle(context.Background(), &events.TaskTriggered{})
	require.NoError(t, err, "malformed events are dropped, not redelivered")

	task := testutil.CreateTestTask()
	err = d.Handle(context.Background(), events.NewTaskTriggered(statusChanged(task, models.TaskStatusBacklog, models.TaskStatusInProgress)))
	require.NoError(t, err)

	d.Wait()
	assert.Equal(t, int32(1), runner.total.Load())
}

func TestDispatcher_Close(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t, staticRules{}, newTrackingRunner())

	require.NoError(t, d.Close(context.Background()))

	err := d.Dispatch(statusChanged(testutil.CreateTestTask(), models.TaskStatusBacklog, models.TaskStatusInProgress))
	assert.ErrorIs(t, err, ErrDispatcherClosed)
}

// Two rules that undo each other must stop once propagation reaches the depth cap.
func TestDispatcher_RuleCycleIsCapped(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := file.NewPersistence(t.TempDir())

	var d *Dispatcher

	emitter := events.EmitterFunc(func(ctx context.Context, trigger *models.TriggerEvent) error {
		return d.Emit(ctx, trigger)
	})

	machine := lifecycle.NewMachine(store, emitter, discardLogger())
	executor := NewExecutor(machine, store, &recordingNotifier{}, discardLogger(), WithRetryPolicy(fastRetry))

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	sendBack := testutil.CreateTestRule(
		testutil.WithCreatedAt(base),
		testutil.WithFilterGroups(models.FilterGroup{
			Logic:   models.LogicAnd,
			Filters: []models.Filter{{Field: "new_status", Operator: models.OperatorEquals, Value: "internal_review"}},
		}),
		testutil.WithActions(models.NewChangeStatusAction(models.TaskStatusInProgress)),
	)
	resubmit := testutil.CreateTestRule(
		testutil.WithCreatedAt(base.Add(time.Second)),
		testutil.WithFilterGroups(models.FilterGroup{
			Logic:   models.LogicAnd,
			Filters: []models.Filter{{Field: "new_status", Operator: models.OperatorEquals, Value: "in_progress"}},
		}),
		testutil.WithActions(models.NewChangeStatusAction(models.TaskStatusInternalReview)),
	)

	for _, rule := range []*models.AutomationRule{sendBack, resubmit} {
		require.NoError(t, store.RuleRepository().Save(ctx, rule))
	}

	var err error

	d, err = NewDispatcher(store.RuleRepository(), NewMatcher(discardLogger(), nil), executor, discardLogger(), nil, DispatcherConfig{MaxDepth: 3})
	require.NoError(t, err)

	task := testutil.CreateTestTask(testutil.WithStatus(models.TaskStatusInProgress))
	require.NoError(t, store.TaskRepository().Create(ctx, task))

	_, err = machine.SubmitForInternalReview(ctx, task.WorkspaceID, task.ID, "user-1")
	require.NoError(t, err)

	d.Wait()
	require.NoError(t, d.Close(ctx))

	entries, err := store.ActivityRepository().ListByRecord(ctx, task.WorkspaceID, task.ID)
	require.NoError(t, err)

	var statuses []string

	for _, entry := range entries {
		if entry.ActionType == models.ActivityStatusChanged {
			statuses = append(statuses, entry.Metadata["new_status"].(string))
		}
	}

	// The user's submit plus three automation hops; the event of the third hop is dropped.
	assert.Equal(t, []string{"internal_review", "in_progress", "internal_review", "in_progress"}, statuses)

	stored, err := store.TaskRepository().GetByID(ctx, task.WorkspaceID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusInProgress, stored.Status)
}
