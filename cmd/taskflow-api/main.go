package main

import (
	"context"
	"os"
	"time"

	"github.com/agencyops/taskflow/pkg/cmd"
	"github.com/agencyops/taskflow/pkg/log"
	cli "github.com/urfave/cli/v3"
)

const (
	serviceName = "taskflow-api"
	defaultPort = 9091
)

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  serviceName,
		Usage:                 "Serve the task lifecycle and automation API",
		EnableShellCompletion: true,
		Flags: append([]cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
		}, cmd.EngineFlags()...),
		Action: func(ctx context.Context, command *cli.Command) error {
			settings := cmd.SettingsFrom(command)

			log.Setup(settings.LogLevel)

			logger.InfoContext(ctx, "Initializing Taskflow API", "event_bus", settings.EventBus, "notifier", settings.Notifier)

			if settings.EventBus == "" {
				logger.InfoContext(ctx, "No event bus configured, automation rules run in-process")
			}

			runtime, err := cmd.NewRuntime(ctx, settings, serviceName, logger)
			if err != nil {
				return err
			}

			defer func() {
				err := runtime.Close(context.WithoutCancel(ctx))
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close runtime", "error", err)
				}
			}()

			if settings.EventBus == "" {
				overdue := runtime.OverdueScheduler(settings, nil)

				err = overdue.Start(ctx)
				if err != nil {
					return err
				}

				defer func() {
					stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
					defer cancel()

					err := overdue.Stop(stopCtx)
					if err != nil {
						logger.ErrorContext(ctx, "Failed to stop overdue scheduler", "error", err)
					}
				}()
			}

			api := NewAPI(logger, runtime.Persistence, runtime.Rules, runtime.Engine, runtime.Registry)

			err = api.Start(command.Int("port"))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)

				return err
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		logger.Error("Taskflow API exited", "error", err)
		os.Exit(1)
	}
}
