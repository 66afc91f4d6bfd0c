package services

import (
	"context"

	"github.com/agencyops/taskflow/pkg/authz"
	"github.com/agencyops/taskflow/pkg/models"
	"github.com/agencyops/taskflow/pkg/timer"
)

type Timer struct {
	manager *timer.Manager
}

func NewTimer(manager *timer.Manager) *Timer {
	return &Timer{manager: manager}
}

func (s *Timer) Start(ctx context.Context, principal models.Principal, workspaceID, taskID string) (*models.Task, error) {
	if err := authz.Authorize(principal, workspaceID, authz.ActionUseTimer); err != nil {
		return nil, err
	}

	return s.manager.Start(ctx, workspaceID, taskID, principal.UserID)
}

func (s *Timer) Stop(ctx context.Context, principal models.Principal, workspaceID, taskID string) (*timer.StopResult, error) {
	if err := authz.Authorize(principal, workspaceID, authz.ActionUseTimer); err != nil {
		return nil, err
	}

	return s.manager.Stop(ctx, workspaceID, taskID, principal.UserID)
}

// Status returns the authoritative session start for client resynchronization.
func (s *Timer) Status(ctx context.Context, principal models.Principal, workspaceID, taskID string) (*timer.Status, error) {
	if err := authz.Authorize(principal, workspaceID, authz.ActionReadTasks); err != nil {
		return nil, err
	}

	return s.manager.Status(ctx, workspaceID, taskID)
}

func (s *Timer) Sessions(ctx context.Context, principal models.Principal, workspaceID, taskID string) ([]*models.TimerLogEntry, error) {
	if err := authz.Authorize(principal, workspaceID, authz.ActionReadTasks); err != nil {
		return nil, err
	}

	return s.manager.Sessions(ctx, workspaceID, taskID)
}
