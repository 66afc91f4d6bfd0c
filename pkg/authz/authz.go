// Package authz decides which workspace roles may perform which engine operations.
package authz

import (
	"github.com/agencyops/taskflow/pkg/models"
)

// Action is a guarded operation.
type Action string

const (
	ActionManageRules     Action = "rules.manage"
	ActionReadRules       Action = "rules.read"
	ActionReadTasks       Action = "task.read"
	ActionCreateTask      Action = "task.create"
	ActionEditTask        Action = "task.edit"
	ActionTransition      Action = "task.transition"
	ActionInternalReview  Action = "task.review.internal"
	ActionClientReview    Action = "task.review.client"
	ActionForceTransition Action = "task.force_transition"
	ActionUseTimer        Action = "timer.use"

	// ActionAccessWorkspace names the tenant check made before any request body is read.
	ActionAccessWorkspace Action = "workspace.access"
)

var permissions = map[models.Role]map[Action]bool{
	models.RoleAdmin: {
		ActionManageRules:     true,
		ActionReadRules:       true,
		ActionReadTasks:       true,
		ActionCreateTask:      true,
		ActionEditTask:        true,
		ActionTransition:      true,
		ActionInternalReview:  true,
		ActionClientReview:    true,
		ActionForceTransition: true,
		ActionUseTimer:        true,
	},
	models.RoleManager: {
		ActionReadRules:       true,
		ActionReadTasks:       true,
		ActionCreateTask:      true,
		ActionEditTask:        true,
		ActionTransition:      true,
		ActionInternalReview:  true,
		ActionForceTransition: true,
		ActionUseTimer:        true,
	},
	models.RoleMember: {
		ActionReadTasks:  true,
		ActionCreateTask: true,
		ActionEditTask:   true,
		ActionTransition: true,
		ActionUseTimer:   true,
	},
	models.RoleClient: {
		ActionReadTasks:    true,
		ActionClientReview: true,
	},
}

// Can reports whether principal's role allows action. Unknown roles may do nothing.
func Can(principal models.Principal, action Action) bool {
	return permissions[principal.Role][action]
}

// Authorize checks tenant isolation first, then the role permission.
func Authorize(principal models.Principal, workspaceID string, action Action) error {
	if err := authorizeWorkspace(principal, workspaceID, action); err != nil {
		return err
	}

	if !Can(principal, action) {
		return &models.AuthorizationError{
			UserID:      principal.UserID,
			WorkspaceID: workspaceID,
			Action:      string(action),
			Reason:      "role " + string(principal.Role) + " lacks permission",
		}
	}

	return nil
}

// AuthorizeWorkspace checks tenant isolation alone, before the action is known.
func AuthorizeWorkspace(principal models.Principal, workspaceID string) error {
	return authorizeWorkspace(principal, workspaceID, ActionAccessWorkspace)
}

func authorizeWorkspace(principal models.Principal, workspaceID string, action Action) error {
	if principal.UserID == "" {
		return &models.AuthorizationError{
			WorkspaceID: workspaceID,
			Action:      string(action),
			Reason:      "no authenticated user",
		}
	}

	if workspaceID == "" || principal.WorkspaceID != workspaceID {
		return &models.AuthorizationError{
			UserID:      principal.UserID,
			WorkspaceID: workspaceID,
			Action:      string(action),
			Reason:      "workspace mismatch",
		}
	}

	return nil
}

// ParseRole validates a role name supplied by the identity provider.
func ParseRole(s string) (models.Role, bool) {
	role := models.Role(s)
	_, ok := permissions[role]

	return role, ok
}
