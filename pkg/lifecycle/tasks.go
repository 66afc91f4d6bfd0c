package lifecycle

import (
	"context"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"

	"github.com/agencyops/taskflow/pkg/models"
	"github.com/agencyops/taskflow/pkg/otelhelper"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

const DefaultPriority = "medium"

// FieldPatch is a partial edit of a task's editable fields. A nil pointer leaves the field
// unchanged; a nil value in CustomFields removes that key.
type FieldPatch struct {
	Title        *string
	Priority     *string
	AssigneeID   *string
	CustomFields map[string]any
}

// Create stores a new task at the entry of the lifecycle (backlog) and emits task_created.
func (m *Machine) Create(ctx context.Context, task *models.Task, actorID string) (*models.Task, error) {
	ctx, span := otelhelper.StartSpan(ctx, m.tracer, "lifecycle.create",
		attribute.String(otelhelper.WorkspaceIDKey, task.WorkspaceID),
	)
	defer span.End()

	if strings.TrimSpace(task.WorkspaceID) == "" {
		return nil, models.NewValidationError("workspace_id", "workspace is required")
	}

	if strings.TrimSpace(task.Title) == "" {
		return nil, models.NewValidationError("title", "title is required")
	}

	now := m.clock.Now().UTC()

	created := &models.Task{
		ID:           task.ID,
		WorkspaceID:  task.WorkspaceID,
		Title:        strings.TrimSpace(task.Title),
		Status:       models.TaskStatusBacklog,
		Priority:     task.Priority,
		AssigneeID:   task.AssigneeID,
		CustomFields: maps.Clone(task.CustomFields),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if created.ID == "" {
		created.ID = newTaskID()
	}

	if created.Priority == "" {
		created.Priority = DefaultPriority
	}

	if err := m.tasks.Create(ctx, created); err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("create task: %w", err)
	}

	span.SetAttributes(attribute.String(otelhelper.TaskIDKey, created.ID))

	logger := m.logger.With("task_id", created.ID, "workspace_id", created.WorkspaceID)
	logger.InfoContext(ctx, "task created", "actor_id", actorID)

	metadata := map[string]any{"title": created.Title, "status": string(created.Status)}
	if actorID != "" {
		metadata["actor_id"] = actorID
	}

	m.append(ctx, logger, created, models.ActivityTaskCreated, metadata)
	m.publish(ctx, logger, &models.TriggerEvent{
		Type:        models.TriggerTaskCreated,
		WorkspaceID: created.WorkspaceID,
		Task:        created.Clone(),
		NewStatus:   created.Status,
		ActorID:     actorID,
		OccurredAt:  now,
	})

	return created, nil
}

// UpdateFields applies patch and emits field_updated naming the fields that actually
// changed. A patch that changes nothing writes nothing and emits nothing.
func (m *Machine) UpdateFields(
	ctx context.Context,
	workspaceID, taskID, actorID string,
	patch FieldPatch,
) (*models.Task, []string, error) {
	ctx, span := otelhelper.StartSpan(ctx, m.tracer, "lifecycle.update_fields",
		attribute.String(otelhelper.WorkspaceIDKey, workspaceID),
		attribute.String(otelhelper.TaskIDKey, taskID),
	)
	defer span.End()

	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return nil, nil, models.NewValidationError("title", "title cannot be blank")
	}

	task, err := m.tasks.GetByID(ctx, workspaceID, taskID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, nil, fmt.Errorf("update task: %w", err)
	}

	next := task.Clone()
	changed := applyPatch(next, patch)

	if len(changed) == 0 {
		return task, nil, nil
	}

	next.UpdatedAt = m.clock.Now().UTC()

	if err := m.tasks.UpdateFields(ctx, next); err != nil {
		otelhelper.SetError(span, err)

		return nil, nil, fmt.Errorf("update task: %w", err)
	}

	logger := m.logger.With("task_id", taskID, "workspace_id", workspaceID)
	logger.InfoContext(ctx, "task fields updated", "changed_fields", changed, "actor_id", actorID)

	metadata := map[string]any{"changed_fields": changed}
	if actorID != "" {
		metadata["actor_id"] = actorID
	}

	m.append(ctx, logger, next, models.ActivityTaskUpdated, metadata)
	m.publish(ctx, logger, &models.TriggerEvent{
		Type:          models.TriggerFieldUpdated,
		WorkspaceID:   next.WorkspaceID,
		Task:          next.Clone(),
		ChangedFields: changed,
		ActorID:       actorID,
		OccurredAt:    next.UpdatedAt,
	})

	return next, changed, nil
}

func applyPatch(task *models.Task, patch FieldPatch) []string {
	var changed []string

	if patch.Title != nil && strings.TrimSpace(*patch.Title) != task.Title {
		task.Title = strings.TrimSpace(*patch.Title)
		changed = append(changed, "title")
	}

	if patch.Priority != nil && *patch.Priority != task.Priority {
		task.Priority = *patch.Priority
		changed = append(changed, "priority")
	}

	if patch.AssigneeID != nil && *patch.AssigneeID != task.AssigneeID {
		task.AssigneeID = *patch.AssigneeID
		changed = append(changed, "assignee_id")
	}

	for _, key := range slices.Sorted(maps.Keys(patch.CustomFields)) {
		value := patch.CustomFields[key]
		current, exists := task.CustomFields[key]

		switch {
		case value == nil && exists:
			delete(task.CustomFields, key)
		case value != nil && (!exists || !reflect.DeepEqual(current, value)):
			if task.CustomFields == nil {
				task.CustomFields = map[string]any{}
			}

			task.CustomFields[key] = value
		default:
			continue
		}

		changed = append(changed, "custom."+key)
	}

	return changed
}

func newTaskID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}

	return id.String()
}
