package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agencyops/taskflow/pkg/cmd"
	"github.com/agencyops/taskflow/pkg/log"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

const serviceName = "taskflow-worker"

func main() {
	command := &cli.Command{
		Name:                  serviceName,
		EnableShellCompletion: true,
		Usage:                 "Run automation rules for task events and report overdue timers",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Sources: cli.EnvVars("WORKER_ID"),
			},
		}, cmd.EngineFlags()...),
		Action: func(ctx context.Context, command *cli.Command) error {
			settings := cmd.SettingsFrom(command)

			log.Setup(settings.LogLevel)

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule(serviceName).With("worker_id", workerID)

			if settings.EventBus == "" {
				return errors.New("the worker needs an event bus, set --event-bus or EVENT_BUS_TYPE")
			}

			logger.InfoContext(ctx, "Initializing Taskflow Worker", "event_bus", settings.EventBus)

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			runtime, err := cmd.NewRuntime(ctx, settings, serviceName, logger)
			if err != nil {
				return err
			}

			defer func() {
				closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
				defer cancel()

				err := runtime.Close(closeCtx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close runtime", "error", err)
				}
			}()

			worker := NewWorker(workerID, runtime.EventBus, runtime.Engine.Dispatcher, runtime.OverdueScheduler(settings, nil), logger)

			err = worker.Start(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "Worker stopped with error", "error", err)

				return err
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		os.Exit(1)
	}
}
