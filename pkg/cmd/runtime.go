package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/agencyops/taskflow/pkg/eventbus"
	"github.com/agencyops/taskflow/pkg/events"
	"github.com/agencyops/taskflow/pkg/metrics"
	"github.com/agencyops/taskflow/pkg/otelhelper"
	"github.com/agencyops/taskflow/pkg/persistence"
	"github.com/agencyops/taskflow/pkg/timer"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel/trace"
)

// Runtime holds everything a binary opened so it can be closed in reverse order.
type Runtime struct {
	Persistence persistence.Persistence
	Rules       persistence.RuleRepository
	EventBus    eventbus.EventBus
	Engine      *Engine
	Metrics     *metrics.Metrics
	Registry    *prometheus.Registry

	logger  *slog.Logger
	emitter events.Emitter
	closers []func(ctx context.Context) error
}

// NewRuntime opens persistence, the event bus, the notifier and the rule cache and builds
// the engine. Without an event bus, trigger events are dispatched in-process.
func NewRuntime(ctx context.Context, settings Settings, serviceName string, logger *slog.Logger) (*Runtime, error) {
	rt := &Runtime{logger: logger, Registry: prometheus.NewRegistry()}

	err := rt.open(ctx, settings, serviceName)
	if err != nil {
		closeErr := rt.Close(ctx)

		return nil, errors.Join(err, closeErr)
	}

	return rt, nil
}

func (rt *Runtime) open(ctx context.Context, settings Settings, serviceName string) error {
	rt.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	collected, err := metrics.New(rt.Registry)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	rt.Metrics = collected

	var tracer trace.Tracer

	if settings.Tracing {
		t, shutdown, err := otelhelper.NewTracer(ctx, serviceName)
		if err != nil {
			return fmt.Errorf("failed to create tracer: %w", err)
		}

		tracer = t
		rt.onClose(shutdown)
	}

	p, err := NewPersistence(ctx, rt.logger, settings.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open persistence: %w", err)
	}

	rt.Persistence = p
	rt.onClose(p.Close)

	rules, closeCache, err := NewRuleRepository(ctx, rt.logger, p.RuleRepository(), settings.RedisURL, settings.RuleCacheTTL)
	if err != nil {
		return fmt.Errorf("failed to open rule cache: %w", err)
	}

	rt.Rules = rules
	rt.onClose(func(context.Context) error { closeCache(); return nil })

	var emitter events.Emitter

	if settings.EventBus != "" {
		bus, err := NewEventBus(settings.EventBus, serviceName, rt.logger)
		if err != nil {
			return err
		}

		rt.EventBus = bus
		rt.onClose(func(context.Context) error { return bus.Close() })
		emitter = eventbus.NewTriggerEmitter(bus)
	}

	var publisher eventbus.EventPublisher
	if rt.EventBus != nil {
		publisher = rt.EventBus
	}

	notifier, closeNotifier, err := NewNotifier(settings.Notifier, publisher, serviceName, rt.logger)
	if err != nil {
		return fmt.Errorf("failed to create notifier: %w", err)
	}

	rt.onClose(func(context.Context) error { closeNotifier(); return nil })

	engine, err := NewEngine(EngineConfig{
		Persistence:   p,
		Rules:         rules,
		Notifier:      notifier,
		Emitter:       emitter,
		MaxDepth:      settings.MaxRuleDepth,
		ActionRetries: settings.ActionRetries,
		Logger:        rt.logger,
		Metrics:       collected,
		Tracer:        tracer,
	})
	if err != nil {
		return err
	}

	rt.Engine = engine
	rt.onClose(engine.Dispatcher.Close)

	rt.emitter = emitter
	if rt.emitter == nil {
		rt.emitter = engine.Dispatcher
	}

	return nil
}

// OverdueScheduler builds the timer_overdue sweep. Its events go onto the event bus when
// there is one and to the in-process dispatcher otherwise.
func (rt *Runtime) OverdueScheduler(settings Settings, clock clockwork.Clock) *timer.OverdueScheduler {
	return timer.NewOverdueScheduler(
		rt.Persistence.TimerRepository(),
		rt.emitter,
		rt.logger,
		settings.OverdueSchedule,
		settings.OverdueAfter,
		clock,
	)
}

func (rt *Runtime) onClose(fn func(ctx context.Context) error) {
	rt.closers = append(rt.closers, fn)
}

// Close releases resources in reverse order of opening.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error

	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}

	rt.closers = nil

	return errors.Join(errs...)
}
