package main

import (
	"context"
	"os"

	"github.com/agencyops/taskflow/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func main() {
	err := newCommand().Run(context.Background(), os.Args)
	if err != nil {
		log.WithModule("taskflow-rules").Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:                  "taskflow-rules",
		Usage:                 "Validate and load automation rules from YAML files",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Before: func(ctx context.Context, command *cli.Command) (context.Context, error) {
			log.Setup(command.String("log-level"))

			return ctx, nil
		},
		Commands: []*cli.Command{
			NewValidateCommand(),
			NewImportCommand(),
			NewWatchCommand(),
		},
	}
}
