package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/agencyops/taskflow/pkg/events"
	"github.com/agencyops/taskflow/pkg/metrics"
	"github.com/agencyops/taskflow/pkg/models"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// DefaultMaxDepth caps rule-to-rule propagation: an event caused by the third
	// automation hop is not matched again.
	DefaultMaxDepth = 3

	DefaultSeenEvents = 4096
)

var ErrDispatcherClosed = errors.New("dispatcher is closed")

// Runner runs one rule's action chain.
type Runner interface {
	Run(ctx context.Context, rule *models.AutomationRule, event *models.TriggerEvent) *RunReport
}

type DispatcherConfig struct {
	MaxDepth   int
	SeenEvents int
}

// Dispatcher serializes rule matching and execution per task: events for one task are
// handled one at a time in arrival order, while different tasks proceed in parallel.
type Dispatcher struct {
	rules    RuleSource
	matcher  *Matcher
	runner   Runner
	logger   *slog.Logger
	metrics  *metrics.Metrics
	maxDepth int
	seen     *lru.Cache[string, struct{}]

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	queues map[string][]*models.TriggerEvent
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(
	rules RuleSource,
	matcher *Matcher,
	runner Runner,
	logger *slog.Logger,
	collectors *metrics.Metrics,
	config DispatcherConfig,
) (*Dispatcher, error) {
	if config.MaxDepth <= 0 {
		config.MaxDepth = DefaultMaxDepth
	}

	if config.SeenEvents <= 0 {
		config.SeenEvents = DefaultSeenEvents
	}

	seen, err := lru.New[string, struct{}](config.SeenEvents)
	if err != nil {
		return nil, fmt.Errorf("failed to create seen-event cache: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Dispatcher{
		rules:    rules,
		matcher:  matcher,
		runner:   runner,
		logger:   logger.With("module", "dispatcher"),
		metrics:  collectors,
		maxDepth: config.MaxDepth,
		seen:     seen,
		ctx:      ctx,
		cancel:   cancel,
		queues:   make(map[string][]*models.TriggerEvent),
	}, nil
}

// Emit lets the dispatcher stand in for the event bus when the engine runs in-process.
func (d *Dispatcher) Emit(ctx context.Context, trigger *models.TriggerEvent) error {
	trigger.Depth = events.DepthFrom(ctx)

	if trigger.RuleID == "" {
		trigger.RuleID = events.RuleFrom(ctx)
	}

	return d.Dispatch(trigger)
}

// Handle is the event bus handler for task.triggered events.
func (d *Dispatcher) Handle(ctx context.Context, event any) error {
	triggered, ok := event.(*events.TaskTriggered)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}

	if err := triggered.Validate(); err != nil {
		// Redelivery cannot fix a malformed event.
		d.logger.ErrorContext(ctx, "dropping invalid trigger event", "event_id", triggered.ID, "error", err)

		return nil
	}

	err := d.Dispatch(triggered.Trigger)
	if errors.Is(err, ErrDispatcherClosed) {
		return err
	}

	return nil
}

// Dispatch queues event behind any earlier events for the same task and returns
// without waiting for it to be processed.
func (d *Dispatcher) Dispatch(event *models.TriggerEvent) error {
	if event.Task == nil || event.Task.ID == "" {
		return models.NewValidationError("task", "trigger event carries no task")
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDispatcherClosed
	}

	if seen, _ := d.seen.ContainsOrAdd(event.ID, struct{}{}); seen {
		d.metrics.DuplicateEvent()
		d.logger.Debug("ignoring duplicate trigger event", "event_id", event.ID, "task_id", event.Task.ID)

		return nil
	}

	key := event.WorkspaceID + "/" + event.Task.ID
	queue, running := d.queues[key]
	d.queues[key] = append(queue, event)

	if !running {
		d.wg.Add(1)

		go d.drain(key)
	}

	d.metrics.ActiveTaskQueues(len(d.queues))

	return nil
}

// drain processes a task's queue until it is empty, then retires it.
func (d *Dispatcher) drain(key string) {
	defer d.wg.Done()

	for {
		d.mu.Lock()

		queue := d.queues[key]
		if len(queue) == 0 {
			delete(d.queues, key)
			d.metrics.ActiveTaskQueues(len(d.queues))
			d.mu.Unlock()

			return
		}

		event := queue[0]
		queue[0] = nil
		d.queues[key] = queue[1:]

		d.mu.Unlock()

		d.Process(d.ctx, event)
	}
}

// Process matches and runs the rules for one event synchronously.
func (d *Dispatcher) Process(ctx context.Context, event *models.TriggerEvent) []*RunReport {
	logger := d.logger.With(
		"event_id", event.ID,
		"event_type", event.Type,
		"task_id", event.Task.ID,
		"workspace_id", event.WorkspaceID,
		"depth", event.Depth,
	)

	if event.Depth >= d.maxDepth {
		d.metrics.CycleDetected()
		logger.WarnContext(ctx, "rule cycle detected, not propagating further",
			"error", models.ErrRuleCycleDetected,
			"max_depth", d.maxDepth,
			"caused_by_rule", event.RuleID)

		return nil
	}

	rules, err := d.rules.ListActive(ctx, event.WorkspaceID, event.Type)
	if err != nil {
		logger.ErrorContext(ctx, "failed to load rules", "error", err)

		return nil
	}

	matched := d.matcher.Match(event, rules)
	reports := make([]*RunReport, 0, len(matched))

	for _, rule := range matched {
		if ctx.Err() != nil {
			logger.WarnContext(ctx, "dispatcher stopping, skipping remaining rules", "rule_id", rule.ID)

			break
		}

		reports = append(reports, d.runner.Run(ctx, rule, event))
	}

	return reports
}

// Wait blocks until every queued event has been processed.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close stops accepting events and waits for queued work. If ctx expires first, running
// rules are cancelled.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})

	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()

		return nil
	case <-ctx.Done():
		d.cancel()
		<-done

		return ctx.Err()
	}
}
