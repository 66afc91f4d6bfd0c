package main

import (
	"context"
	"errors"

	"github.com/agencyops/taskflow/pkg/log"
	"github.com/agencyops/taskflow/pkg/services"
	cli "github.com/urfave/cli/v3"
)

func NewImportCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Aliases:   []string{"i"},
		Usage:     "Validate rule files and upsert them by id",
		ArgsUsage: "<file-or-dir>...",
		Flags:     append(storeFlags(), workspaceFlag()),
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.WithModule("taskflow-rules").With("action", "import")

			paths := command.Args().Slice()
			if len(paths) == 0 {
				return errors.New("at least one rule file or directory is required")
			}

			sets, err := loadRuleSets(paths, command.String("workspace"))
			if err != nil {
				return err
			}

			rules, closeRules, err := openRules(ctx, command, logger)
			if err != nil {
				return err
			}
			defer closeRules()

			return importRuleSets(ctx, command.Root().Writer, services.NewRule(rules, nil), sets, logger)
		},
	}
}
