package main

import (
	"context"
	"io"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/agencyops/taskflow/pkg/log"
	"github.com/agencyops/taskflow/pkg/rulefile"
	"github.com/agencyops/taskflow/pkg/services"
	cli "github.com/urfave/cli/v3"
)

func NewWatchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Import a rule directory, then re-import files as they change",
		ArgsUsage: "<dir>",
		Flags: append(storeFlags(), workspaceFlag(),
			&cli.DurationFlag{
				Name:  "debounce",
				Usage: "Quiet period before changed files are imported",
				Value: rulefile.DefaultDebounce,
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.WithModule("taskflow-rules").With("action", "watch")

			dir := command.Args().First()
			if dir == "" {
				dir = "."
			}

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rules, closeRules, err := openRules(ctx, command, logger)
			if err != nil {
				return err
			}
			defer closeRules()

			service := services.NewRule(rules, nil)
			workspaceID := command.String("workspace")
			out := command.Root().Writer

			sets, err := loadRuleSets([]string{dir}, workspaceID)
			if err != nil {
				return err
			}

			err = importRuleSets(ctx, out, service, sets, logger)
			if err != nil {
				logger.ErrorContext(ctx, "Initial import incomplete", "error", err)
			}

			watcher, err := rulefile.NewWatcher(dir, command.Duration("debounce"),
				reimport(out, service, workspaceID, logger), logger)
			if err != nil {
				return err
			}

			logger.InfoContext(ctx, "Watching rule files", "dir", dir)

			return watcher.Run(ctx)
		},
	}
}

// reimport loads and imports changed files one by one so a broken file does not block
// the others.
func reimport(w io.Writer, service *services.Rule, workspaceID string, logger *slog.Logger) rulefile.ChangeFunc {
	return func(ctx context.Context, paths []string) {
		for _, path := range paths {
			set, err := loadRuleSet(path, workspaceID)
			if err != nil {
				logger.ErrorContext(ctx, "Skipping unreadable rule file", "file", path, "error", err)

				continue
			}

			err = importRuleSets(ctx, w, service, []ruleSet{set}, logger)
			if err != nil {
				logger.ErrorContext(ctx, "Rule file rejected", "file", path, "error", err)
			}
		}
	}
}
