package services

import (
	"context"
	"fmt"

	"github.com/agencyops/taskflow/pkg/authz"
	"github.com/agencyops/taskflow/pkg/lifecycle"
	"github.com/agencyops/taskflow/pkg/models"
	"github.com/agencyops/taskflow/pkg/persistence"
	"github.com/go-playground/validator/v10"
)

// Task guards the task lifecycle. Tenant isolation and role checks run before the
// state machine sees the request.
type Task struct {
	persistence persistence.Persistence
	machine     *lifecycle.Machine
	validate    *validator.Validate
}

// NewTask creates a new task service.
func NewTask(persistence persistence.Persistence, machine *lifecycle.Machine) *Task {
	return &Task{
		persistence: persistence,
		machine:     machine,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

// HealthCheck checks the health of the persistence layer.
func (s *Task) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := s.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// ListTasksRequest contains options for listing tasks.
type ListTasksRequest struct {
	Limit  int `validate:"min=0,max=100"`
	Offset int `validate:"min=0"`

	Status     models.TaskStatus `validate:"omitempty,oneof=backlog in_progress internal_review client_review approved"`
	AssigneeID string
}

func (s *Task) Create(ctx context.Context, principal models.Principal, workspaceID string, task *models.Task) (*models.Task, error) {
	if err := authz.Authorize(principal, workspaceID, authz.ActionCreateTask); err != nil {
		return nil, err
	}

	if task == nil {
		return nil, ErrInvalidRequest
	}

	task.WorkspaceID = workspaceID

	return s.machine.Create(ctx, task, principal.UserID)
}

func (s *Task) Get(ctx context.Context, principal models.Principal, workspaceID, id string) (*models.Task, error) {
	if err := authz.Authorize(principal, workspaceID, authz.ActionReadTasks); err != nil {
		return nil, err
	}

	return s.persistence.TaskRepository().GetByID(ctx, workspaceID, id)
}

// List retrieves a page of the workspace's tasks.
func (s *Task) List(ctx context.Context, principal models.Principal, workspaceID string, req ListTasksRequest) ([]*models.Task, error) {
	if err := authz.Authorize(principal, workspaceID, authz.ActionReadTasks); err != nil {
		return nil, err
	}

	if req.Limit == 0 {
		req.Limit = 50
	}

	if err := s.validate.Struct(req); err != nil {
		return nil, NewValidationError("list_tasks", "invalid_request", err.Error(), ErrInvalidRequest)
	}

	tasks, err := s.persistence.TaskRepository().List(ctx, workspaceID, persistence.ListTasksOptions{
		Status:     req.Status,
		AssigneeID: req.AssigneeID,
		Limit:      req.Limit,
		Offset:     req.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	return tasks, nil
}

// Update edits title, priority, assignee and custom fields.
func (s *Task) Update(ctx context.Context, principal models.Principal, workspaceID, id string, patch lifecycle.FieldPatch) (*models.Task, error) {
	if err := authz.Authorize(principal, workspaceID, authz.ActionEditTask); err != nil {
		return nil, err
	}

	task, _, err := s.machine.UpdateFields(ctx, workspaceID, id, principal.UserID, patch)

	return task, err
}

func (s *Task) StartWork(ctx context.Context, principal models.Principal, workspaceID, id string) (*models.Task, error) {
	if err := authz.Authorize(principal, workspaceID, authz.ActionTransition); err != nil {
		return nil, err
	}

	return s.machine.StartWork(ctx, workspaceID, id, principal.UserID)
}

func (s *Task) SubmitForInternalReview(ctx context.Context, principal models.Principal, workspaceID, id string) (*models.Task, error) {
	if err := authz.Authorize(principal, workspaceID, authz.ActionTransition); err != nil {
		return nil, err
	}

	return s.machine.SubmitForInternalReview(ctx, workspaceID, id, principal.UserID)
}

func (s *Task) InternalReview(
	ctx context.Context,
	principal models.Principal,
	workspaceID, id string,
	decision lifecycle.Decision,
) (*models.Task, error) {
	if err := authz.Authorize(principal, workspaceID, authz.ActionInternalReview); err != nil {
		return nil, err
	}

	return s.machine.InternalReviewDecision(ctx, workspaceID, id, principal.UserID, decision)
}

func (s *Task) ClientReview(
	ctx context.Context,
	principal models.Principal,
	workspaceID, id string,
	decision lifecycle.Decision,
	reason string,
) (*models.Task, error) {
	if err := authz.Authorize(principal, workspaceID, authz.ActionClientReview); err != nil {
		return nil, err
	}

	return s.machine.ClientReviewDecision(ctx, workspaceID, id, principal.UserID, decision, reason)
}

// Transition forces a move along any legal edge.
func (s *Task) Transition(
	ctx context.Context,
	principal models.Principal,
	workspaceID, id string,
	to models.TaskStatus,
	reason string,
) (*models.Task, error) {
	if err := authz.Authorize(principal, workspaceID, authz.ActionForceTransition); err != nil {
		return nil, err
	}

	return s.machine.Transition(ctx, workspaceID, id, principal.UserID, to, reason)
}

// Activity lists the task's activity log, oldest first.
func (s *Task) Activity(ctx context.Context, principal models.Principal, workspaceID, id string) ([]*models.ActivityLogEntry, error) {
	if _, err := s.Get(ctx, principal, workspaceID, id); err != nil {
		return nil, err
	}

	return s.persistence.ActivityRepository().ListByRecord(ctx, workspaceID, id)
}

func (s *Task) Comments(ctx context.Context, principal models.Principal, workspaceID, id string) ([]*models.Comment, error) {
	if _, err := s.Get(ctx, principal, workspaceID, id); err != nil {
		return nil, err
	}

	return s.persistence.CommentRepository().ListByTask(ctx, workspaceID, id)
}
