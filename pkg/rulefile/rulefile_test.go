package rulefile

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/agencyops/taskflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDocument = `
workspace_id: ws-1
rules:
  - id: escalate-high-priority
    name: Notify on high priority review
    trigger_event: status_changed
    filter_groups:
      - logic: AND
        filters:
          - {field: priority, operator: equals, value: high}
          - {field: new_status, operator: equals, value: internal_review}
    actions:
      - type: notify
        template: "{{task.title}} needs review"
        mentions: ["@assignee", "lead-1"]
      - type: change_status
        to: client_review
  - name: Comment on overdue timers
    trigger_event: timer_overdue
    active: false
    actions:
      - type: send_comment
        content: Timer has been running for a long time
`

func TestParse(t *testing.T) {
	t.Parallel()

	doc, err := Parse(strings.NewReader(sampleDocument))
	require.NoError(t, err)

	rules, err := doc.AutomationRules("")
	require.NoError(t, err)
	require.Len(t, rules, 2)

	first := rules[0]
	assert.Equal(t, "escalate-high-priority", first.ID)
	assert.Equal(t, "ws-1", first.WorkspaceID)
	assert.Equal(t, models.TriggerStatusChanged, first.TriggerEvent)
	assert.True(t, first.IsActive)
	require.Len(t, first.FilterGroups, 1)
	assert.Equal(t, models.LogicAnd, first.FilterGroups[0].Logic)
	assert.Equal(t, models.Filter{Field: "priority", Operator: models.OperatorEquals, Value: "high"}, first.FilterGroups[0].Filters[0])

	require.Len(t, first.ActionChain, 2)
	assert.Equal(t, models.NewNotifyAction("{{task.title}} needs review", "@assignee", "lead-1"), first.ActionChain[0])
	assert.Equal(t, models.NewChangeStatusAction(models.TaskStatusClientReview), first.ActionChain[1])

	second := rules[1]
	assert.Empty(t, second.ID)
	assert.False(t, second.IsActive)
	assert.Equal(t, models.NewSendCommentAction("Timer has been running for a long time"), second.ActionChain[0])
}

func TestDocument_RulesWorkspaceOverride(t *testing.T) {
	t.Parallel()

	doc, err := Parse(strings.NewReader(sampleDocument))
	require.NoError(t, err)

	rules, err := doc.AutomationRules("ws-2")
	require.NoError(t, err)

	for _, rule := range rules {
		assert.Equal(t, "ws-2", rule.WorkspaceID)
	}
}

func TestDocument_DefinitionsCarryActiveKey(t *testing.T) {
	t.Parallel()

	doc, err := Parse(strings.NewReader(sampleDocument))
	require.NoError(t, err)

	defs, err := doc.Definitions("")
	require.NoError(t, err)
	require.Len(t, defs, 2)

	assert.Nil(t, defs[0].Active)
	assert.Equal(t, "escalate-high-priority", defs[0].Rule.ID)

	require.NotNil(t, defs[1].Active)
	assert.False(t, *defs[1].Active)
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		document string
		parseErr bool
	}{
		{
			name:     "unknown_key",
			document: "rules:\n  - name: x\n    triggers: status_changed\n",
			parseErr: true,
		},
		{
			name:     "unknown_action_type",
			document: "workspace_id: ws-1\nrules:\n  - name: x\n    actions:\n      - type: archive\n",
			parseErr: true,
		},
		{
			name:     "missing_workspace",
			document: "rules:\n  - name: x\n    trigger_event: task_created\n",
		},
		{
			name:     "duplicate_ids",
			document: "workspace_id: ws-1\nrules:\n  - id: a\n    name: x\n  - id: a\n    name: y\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			doc, err := Parse(strings.NewReader(tt.document))
			if tt.parseErr {
				assert.Error(t, err)

				return
			}

			require.NoError(t, err)

			_, err = doc.AutomationRules("")
			require.Error(t, err)
			assert.True(t, models.IsValidationError(err))
		})
	}
}

func TestParse_EmptyDocument(t *testing.T) {
	t.Parallel()

	doc, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, doc.Rules)
}

func TestFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{"b.yaml", "a.yml", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("rules: []\n"), 0o600))
	}

	files, err := Files(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.yml"), filepath.Join(dir, "b.yaml")}, files)

	files, err = Files(filepath.Join(dir, "notes.txt"))
	require.NoError(t, err)
	assert.Len(t, files, 1)

	_, err = Files(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleDocument), 0o600))

	doc, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, doc.Rules, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestWatcher_ReportsChangedRuleFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	changes := make(chan []string, 4)

	watcher, err := NewWatcher(dir, 20*time.Millisecond, func(_ context.Context, paths []string) {
		changes <- paths
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- watcher.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
	})

	rulePath := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(rulePath, []byte(sampleDocument), 0o600))

	select {
	case paths := <-changes:
		assert.Equal(t, []string{rulePath}, paths)
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}
}
