// Package rulefile reads automation rules from YAML documents.
//
// A document looks like:
//
//	workspace_id: ws-1
//	rules:
//	  - id: escalate-high-priority
//	    name: Notify on high priority review
//	    trigger_event: status_changed
//	    filter_groups:
//	      - logic: AND
//	        filters:
//	          - {field: priority, operator: equals, value: high}
//	    actions:
//	      - type: notify
//	        template: "{{task.title}} moved to {{event.new_status}}"
//	        mentions: ["@assignee"]
package rulefile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/agencyops/taskflow/pkg/models"
	"gopkg.in/yaml.v3"
)

// Document is one rule file.
type Document struct {
	WorkspaceID string     `yaml:"workspace_id"`
	Rules       []RuleSpec `yaml:"rules"`
}

// RuleSpec is the YAML form of an automation rule.
type RuleSpec struct {
	ID           string                  `yaml:"id"`
	Name         string                  `yaml:"name"`
	TriggerEvent models.TriggerEventType `yaml:"trigger_event"`
	Active       *bool                   `yaml:"active"`
	FilterGroups []models.FilterGroup    `yaml:"filter_groups"`
	Actions      []models.Action         `yaml:"actions"`
}

// Rule converts the YAML entry to a model in workspaceID. Rules are active unless disabled.
func (s RuleSpec) Rule(workspaceID string) *models.AutomationRule {
	active := true
	if s.Active != nil {
		active = *s.Active
	}

	return &models.AutomationRule{
		ID:           s.ID,
		WorkspaceID:  workspaceID,
		Name:         s.Name,
		TriggerEvent: s.TriggerEvent,
		FilterGroups: s.FilterGroups,
		ActionChain:  s.Actions,
		IsActive:     active,
	}
}

// Parse decodes a document, rejecting unknown keys.
func Parse(r io.Reader) (*Document, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	var doc Document

	err := decoder.Decode(&doc)
	if errors.Is(err, io.EOF) {
		return &doc, nil
	}

	if err != nil {
		return nil, err
	}

	return &doc, nil
}

// Load reads and parses the rule file at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file: %w", err)
	}

	doc, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return doc, nil
}

// AutomationRules returns the document's rules, in file order. workspaceID overrides the
// document's own workspace when set.
func (d *Document) AutomationRules(workspaceID string) ([]*models.AutomationRule, error) {
	defs, err := d.Definitions(workspaceID)
	if err != nil {
		return nil, err
	}

	rules := make([]*models.AutomationRule, 0, len(defs))
	for _, def := range defs {
		rules = append(rules, def.Rule)
	}

	return rules, nil
}

// Definitions is Rules for saving: an entry without an active key leaves the stored
// state of an existing rule alone.
func (d *Document) Definitions(workspaceID string) ([]models.RuleDefinition, error) {
	if workspaceID == "" {
		workspaceID = d.WorkspaceID
	}

	if workspaceID == "" {
		return nil, models.NewValidationError("workspace_id", "rule file names no workspace")
	}

	seen := make(map[string]bool, len(d.Rules))
	defs := make([]models.RuleDefinition, 0, len(d.Rules))

	for i, spec := range d.Rules {
		if spec.ID != "" {
			if seen[spec.ID] {
				return nil, models.NewValidationError(fmt.Sprintf("rules[%d].id", i), "duplicate rule id "+spec.ID)
			}

			seen[spec.ID] = true
		}

		defs = append(defs, models.RuleDefinition{Rule: spec.Rule(workspaceID), Active: spec.Active})
	}

	return defs, nil
}

// IsRuleFile reports whether path has a YAML extension.
func IsRuleFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))

	return ext == ".yaml" || ext == ".yml"
}

// Files lists the rule files at path: the file itself, or the YAML files in a directory.
func Files(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}

	var files []string

	for _, entry := range entries {
		if !entry.IsDir() && IsRuleFile(entry.Name()) {
			files = append(files, filepath.Join(path, entry.Name()))
		}
	}

	slices.Sort(files)

	return files, nil
}
