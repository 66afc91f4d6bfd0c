package main

import (
	"context"
	"errors"

	"github.com/agencyops/taskflow/pkg/services"
	cli "github.com/urfave/cli/v3"
)

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Aliases:   []string{"v"},
		Usage:     "Check rule files without storing them",
		ArgsUsage: "<file-or-dir>...",
		Flags:     []cli.Flag{workspaceFlag()},
		Action: func(_ context.Context, command *cli.Command) error {
			paths := command.Args().Slice()
			if len(paths) == 0 {
				return errors.New("at least one rule file or directory is required")
			}

			sets, err := loadRuleSets(paths, command.String("workspace"))
			if err != nil {
				return err
			}

			return validateRuleSets(command.Root().Writer, services.NewRule(nil, nil), sets)
		},
	}
}
