package services

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/agencyops/taskflow/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

// ruleSchemaJSON is the stored shape of an automation rule. The action chain is a strict
// tagged union; unknown action parameters are rejected.
const ruleSchemaJSON = `{
  "type": "object",
  "required": ["workspace_id", "name", "trigger_event", "action_chain"],
  "properties": {
    "workspace_id": {"type": "string", "minLength": 1},
    "name": {"type": "string", "minLength": 1},
    "trigger_event": {
      "enum": ["status_changed", "task_created", "field_updated", "timer_started", "timer_stopped", "timer_overdue"]
    },
    "is_active": {"type": "boolean"},
    "filter_groups": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "required": ["logic"],
        "properties": {
          "logic": {"enum": ["AND", "OR"]},
          "filters": {
            "type": ["array", "null"],
            "items": {
              "type": "object",
              "required": ["field", "operator"],
              "properties": {
                "field": {"type": "string", "minLength": 1},
                "operator": {
                  "enum": ["equals", "not_equals", "contains", "greater_than", "less_than", "is_empty", "is_not_empty"]
                }
              }
            }
          }
        }
      }
    },
    "action_chain": {
      "type": "array",
      "minItems": 1,
      "items": {
        "oneOf": [
          {
            "type": "object",
            "required": ["type", "to"],
            "additionalProperties": false,
            "properties": {
              "type": {"enum": ["change_status"]},
              "to": {"enum": ["backlog", "in_progress", "internal_review", "client_review", "approved"]},
              "reason": {"type": "string"}
            }
          },
          {
            "type": "object",
            "required": ["type", "title"],
            "additionalProperties": false,
            "properties": {
              "type": {"enum": ["create_task"]},
              "title": {"type": "string", "minLength": 1},
              "assignee": {"type": "string"},
              "priority": {"type": "string"}
            }
          },
          {
            "type": "object",
            "required": ["type", "template"],
            "additionalProperties": false,
            "properties": {
              "type": {"enum": ["notify"]},
              "template": {"type": "string", "minLength": 1},
              "mentions": {"type": ["array", "null"], "items": {"type": "string"}}
            }
          },
          {
            "type": "object",
            "required": ["type", "content"],
            "additionalProperties": false,
            "properties": {
              "type": {"enum": ["send_comment"]},
              "content": {"type": "string", "minLength": 1}
            }
          }
        ]
      }
    }
  }
}`

var ruleSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(ruleSchemaJSON))
})

// validateRuleDocument checks the JSON form of rule against the rule schema.
func validateRuleDocument(rule *models.AutomationRule) error {
	schema, err := ruleSchema()
	if err != nil {
		return fmt.Errorf("failed to compile rule schema: %w", err)
	}

	document, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("failed to encode rule: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(document))
	if err != nil {
		return err
	}

	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}

		return fmt.Errorf("%w: %s", ErrInvalidRuleSchema, strings.Join(problems, "; "))
	}

	return nil
}
