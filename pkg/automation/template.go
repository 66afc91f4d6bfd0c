package automation

import (
	"regexp"
	"slices"
	"strings"

	"github.com/agencyops/taskflow/pkg/conditions"
	"github.com/agencyops/taskflow/pkg/models"
)

// MentionAssignee resolves to the triggering task's assignee.
const MentionAssignee = "@assignee"

var placeholder = regexp.MustCompile(`\{\{\s*(task|event)\.([A-Za-z0-9_.]+)\s*\}\}`)

// Render replaces {{task.<field>}} and {{event.<field>}} placeholders with values from the
// event. Unknown fields render as the empty string.
func Render(template string, event *models.TriggerEvent) string {
	return placeholder.ReplaceAllStringFunc(template, func(match string) string {
		parts := placeholder.FindStringSubmatch(match)

		var value any

		if parts[1] == "event" {
			value = event.Field(parts[2])
		} else if event.Task != nil {
			value = event.Task.Field(parts[2])
		}

		if values, ok := value.([]string); ok {
			return strings.Join(values, ", ")
		}

		s, _ := conditions.ToString(value)

		return s
	})
}

// ResolveMentions maps mention tokens to user IDs: "@assignee" becomes the task's
// assignee and "@user" becomes "user". Blank and duplicate recipients are dropped and
// the first-seen order is kept.
func ResolveMentions(mentions []string, task *models.Task) []string {
	recipients := make([]string, 0, len(mentions))

	for _, mention := range mentions {
		mention = strings.TrimSpace(mention)

		var id string

		switch {
		case mention == MentionAssignee:
			if task != nil {
				id = task.AssigneeID
			}
		default:
			id = strings.TrimPrefix(mention, "@")
		}

		if id == "" || slices.Contains(recipients, id) {
			continue
		}

		recipients = append(recipients, id)
	}

	return recipients
}
