// Package main provides rule-file tooling: offline validation, import and a directory watcher.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/agencyops/taskflow/pkg/cmd"
	"github.com/agencyops/taskflow/pkg/models"
	"github.com/agencyops/taskflow/pkg/persistence"
	"github.com/agencyops/taskflow/pkg/rulecache"
	"github.com/agencyops/taskflow/pkg/rulefile"
	"github.com/agencyops/taskflow/pkg/services"
	cli "github.com/urfave/cli/v3"
)

var ErrInvalidRules = errors.New("invalid rules found")

// ruleSet is the rules of one file, resolved to their workspace.
type ruleSet struct {
	path        string
	workspaceID string
	rules       []models.RuleDefinition
}

func workspaceFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "workspace",
		Aliases: []string{"w"},
		Usage:   "Workspace for the rules, overriding workspace_id in the files",
		Sources: cli.EnvVars("TASKFLOW_WORKSPACE"),
	}
}

func storeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "database-url",
			Usage:    "Database connection URL for persistence",
			Required: true,
			Sources:  cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "Redis URL of the API's rule cache, invalidated on import",
			Sources: cli.EnvVars("REDIS_URL"),
		},
		&cli.DurationFlag{
			Name:    "rule-cache-ttl",
			Usage:   "How long cached rule lists are kept",
			Value:   rulecache.DefaultTTL,
			Sources: cli.EnvVars("RULE_CACHE_TTL"),
		},
	}
}

// openRules opens the rule store named by the store flags.
func openRules(ctx context.Context, command *cli.Command, logger *slog.Logger) (persistence.RuleRepository, func(), error) {
	p, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return nil, nil, err
	}

	rules, closeCache, err := cmd.NewRuleRepository(ctx, logger, p.RuleRepository(),
		command.String("redis-url"), command.Duration("rule-cache-ttl"))
	if err != nil {
		_ = p.Close(ctx)

		return nil, nil, err
	}

	return rules, func() {
		closeCache()

		if err := p.Close(context.WithoutCancel(ctx)); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}, nil
}

// loadRuleSets reads every rule file under paths.
func loadRuleSets(paths []string, workspaceID string) ([]ruleSet, error) {
	var sets []ruleSet

	for _, path := range paths {
		files, err := rulefile.Files(path)
		if err != nil {
			return nil, fmt.Errorf("failed to list rule files in %s: %w", path, err)
		}

		for _, file := range files {
			set, err := loadRuleSet(file, workspaceID)
			if err != nil {
				return nil, err
			}

			sets = append(sets, set)
		}
	}

	return sets, nil
}

func loadRuleSet(path, workspaceID string) (ruleSet, error) {
	doc, err := rulefile.Load(path)
	if err != nil {
		return ruleSet{}, err
	}

	rules, err := doc.Definitions(workspaceID)
	if err != nil {
		return ruleSet{}, fmt.Errorf("%s: %w", path, err)
	}

	if workspaceID == "" {
		workspaceID = doc.WorkspaceID
	}

	return ruleSet{path: path, workspaceID: workspaceID, rules: rules}, nil
}

// validateRuleSets prints a line per rule and reports whether all of them are valid.
func validateRuleSets(w io.Writer, service *services.Rule, sets []ruleSet) error {
	invalid := 0
	total := 0

	for _, set := range sets {
		_, _ = fmt.Fprintf(w, "\n%s (workspace %s)\n", set.path, set.workspaceID)

		for i, def := range set.rules {
			rule := def.Rule
			total++

			err := service.Validate(rule)
			if err != nil {
				invalid++

				_, _ = fmt.Fprintf(w, "  ✗ [%d] %s: %v\n", i, ruleLabel(rule), err)

				continue
			}

			_, _ = fmt.Fprintf(w, "  ✓ [%d] %s (%s, %d actions)\n", i, ruleLabel(rule), rule.TriggerEvent, len(rule.ActionChain))
		}
	}

	_, _ = fmt.Fprintf(w, "\n%d rules checked, %d invalid\n", total, invalid)

	if invalid > 0 {
		return fmt.Errorf("%w: %d of %d", ErrInvalidRules, invalid, total)
	}

	return nil
}

// importRuleSets upserts each file's rules as the workspace's system principal. A file
// is imported whole or not at all.
func importRuleSets(ctx context.Context, w io.Writer, service *services.Rule, sets []ruleSet, logger *slog.Logger) error {
	var errs []error

	for _, set := range sets {
		for _, def := range set.rules {
			if def.Rule.ID == "" {
				logger.WarnContext(ctx, "Rule has no id, every import stores a new copy", "file", set.path, "rule", def.Rule.Name)
			}
		}

		started := time.Now()

		result, err := service.Import(ctx, models.SystemPrincipal(set.workspaceID), set.workspaceID, set.rules)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", set.path, err))
			_, _ = fmt.Fprintf(w, "✗ %s: %v\n", set.path, err)

			continue
		}

		logger.InfoContext(ctx, "Imported rule file",
			"file", set.path,
			"workspace_id", set.workspaceID,
			"created", result.Created,
			"updated", result.Updated,
			"duration", time.Since(started).String())

		_, _ = fmt.Fprintf(w, "✓ %s: %d created, %d updated\n", set.path, result.Created, result.Updated)
	}

	return errors.Join(errs...)
}

func ruleLabel(rule *models.AutomationRule) string {
	if rule.ID == "" {
		return rule.Name
	}

	return rule.Name + " (" + rule.ID + ")"
}
