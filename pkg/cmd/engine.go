package cmd

import (
	"context"
	"log/slog"

	"github.com/agencyops/taskflow/pkg/automation"
	"github.com/agencyops/taskflow/pkg/events"
	"github.com/agencyops/taskflow/pkg/lifecycle"
	"github.com/agencyops/taskflow/pkg/metrics"
	"github.com/agencyops/taskflow/pkg/models"
	"github.com/agencyops/taskflow/pkg/notify"
	"github.com/agencyops/taskflow/pkg/persistence"
	"github.com/agencyops/taskflow/pkg/timer"
	"go.opentelemetry.io/otel/trace"
)

// EngineConfig wires the lifecycle, timer and automation components together.
type EngineConfig struct {
	Persistence persistence.Persistence
	// Rules feeds the matcher; it may be a cache in front of Persistence.RuleRepository().
	Rules    persistence.RuleRepository
	Notifier notify.Notifier

	// Emitter receives committed trigger events. When nil, events go straight to the
	// engine's own dispatcher.
	Emitter events.Emitter

	MaxDepth      int
	ActionRetries uint64

	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Tracer  trace.Tracer
}

type Engine struct {
	Machine    *lifecycle.Machine
	Timers     *timer.Manager
	Executor   *automation.Executor
	Dispatcher *automation.Dispatcher
}

// NewEngine builds the engine. The dispatcher runs rules for events handed to it, either
// in-process (nil Emitter) or from an event bus subscription.
func NewEngine(config EngineConfig) (*Engine, error) {
	var dispatcher *automation.Dispatcher

	emitter := config.Emitter
	if emitter == nil {
		emitter = events.EmitterFunc(func(ctx context.Context, trigger *models.TriggerEvent) error {
			return dispatcher.Emit(ctx, trigger)
		})
	}

	rules := config.Rules
	if rules == nil {
		rules = config.Persistence.RuleRepository()
	}

	machine := lifecycle.NewMachine(config.Persistence, emitter, config.Logger,
		lifecycle.WithTracer(config.Tracer),
		lifecycle.WithMetrics(config.Metrics),
	)

	timers := timer.NewManager(config.Persistence, emitter, config.Logger,
		timer.WithTracer(config.Tracer),
		timer.WithMetrics(config.Metrics),
	)

	policy := automation.DefaultRetryPolicy
	policy.MaxRetries = config.ActionRetries

	executor := automation.NewExecutor(machine, config.Persistence, config.Notifier, config.Logger,
		automation.WithRetryPolicy(policy),
		automation.WithExecutorTracer(config.Tracer),
		automation.WithExecutorMetrics(config.Metrics),
	)

	dispatcher, err := automation.NewDispatcher(
		rules,
		automation.NewMatcher(config.Logger, config.Metrics),
		executor,
		config.Logger,
		config.Metrics,
		automation.DispatcherConfig{MaxDepth: config.MaxDepth},
	)
	if err != nil {
		return nil, err
	}

	return &Engine{
		Machine:    machine,
		Timers:     timers,
		Executor:   executor,
		Dispatcher: dispatcher,
	}, nil
}
