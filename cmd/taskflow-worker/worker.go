// Package main provides the Taskflow automation worker.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/agencyops/taskflow/pkg/eventbus"
	"github.com/agencyops/taskflow/pkg/events"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

// Dispatcher runs automation rules for task.triggered events.
type Dispatcher interface {
	Handle(ctx context.Context, event any) error
	Close(ctx context.Context) error
}

// Scheduler runs periodic background jobs.
type Scheduler interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type Worker struct {
	id         string
	bus        eventbus.EventSubscriber
	dispatcher Dispatcher
	overdue    Scheduler
	logger     *slog.Logger
}

func NewWorker(id string, bus eventbus.EventSubscriber, dispatcher Dispatcher, overdue Scheduler, logger *slog.Logger) *Worker {
	return &Worker{
		id:         id,
		bus:        bus,
		dispatcher: dispatcher,
		overdue:    overdue,
		logger:     logger,
	}
}

// Start consumes trigger events and runs the overdue scheduler until ctx is cancelled,
// then drains queued automation work.
func (w *Worker) Start(ctx context.Context) error {
	err := w.bus.Handle(events.TaskTriggeredEvent, w.dispatcher.Handle)
	if err != nil {
		return fmt.Errorf("failed to register trigger handler: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := w.bus.Subscribe(gctx)
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", events.Topic, err)
		}

		w.logger.InfoContext(gctx, "Worker consuming trigger events", "topic", events.Topic)

		<-gctx.Done()

		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()

		return w.dispatcher.Close(stopCtx)
	})

	if w.overdue != nil {
		g.Go(func() error {
			err := w.overdue.Start(gctx)
			if err != nil {
				return err
			}

			<-gctx.Done()

			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer cancel()

			return w.overdue.Stop(stopCtx)
		})
	}

	err = g.Wait()

	w.logger.InfoContext(ctx, "Worker stopped", "worker_id", w.id)

	return err
}
