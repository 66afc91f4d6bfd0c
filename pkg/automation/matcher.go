// Package automation matches trigger events against workspace rules and runs the
// matched rules' action chains.
package automation

import (
	"context"
	"log/slog"
	"slices"

	"github.com/agencyops/taskflow/pkg/conditions"
	"github.com/agencyops/taskflow/pkg/metrics"
	"github.com/agencyops/taskflow/pkg/models"
)

// RuleSource loads the active rules of a workspace for one trigger event type.
type RuleSource interface {
	ListActive(ctx context.Context, workspaceID string, trigger models.TriggerEventType) ([]*models.AutomationRule, error)
}

// Matcher decides which rules fire for a trigger event.
type Matcher struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewMatcher(logger *slog.Logger, collectors *metrics.Metrics) *Matcher {
	return &Matcher{
		logger:  logger.With("module", "rule_matcher"),
		metrics: collectors,
	}
}

// Match returns the rules that are active, subscribe to the event's type, belong to the
// event's workspace and whose filter groups all pass against the event. The result is in
// rule creation order, which is the order their action chains run in.
func (m *Matcher) Match(event *models.TriggerEvent, rules []*models.AutomationRule) []*models.AutomationRule {
	var matched []*models.AutomationRule

	for _, rule := range rules {
		if !rule.IsActive || rule.TriggerEvent != event.Type || rule.WorkspaceID != event.WorkspaceID {
			continue
		}

		if !conditions.EvaluateAll(rule.FilterGroups, event) {
			continue
		}

		matched = append(matched, rule)
	}

	matched = slices.Clone(matched)
	models.SortRulesByCreation(matched)

	m.metrics.RuleMatches(string(event.Type), len(matched))

	m.logger.Debug("completed rule matching",
		"event_id", event.ID,
		"event_type", event.Type,
		"workspace_id", event.WorkspaceID,
		"candidates", len(rules),
		"matches_found", len(matched))

	return matched
}
