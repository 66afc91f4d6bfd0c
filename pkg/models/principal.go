package models

// Role is a workspace role assigned by the external identity provider.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleMember  Role = "member"
	RoleClient  Role = "client"
)

// Principal identifies the caller of an engine operation.
type Principal struct {
	UserID      string `json:"user_id"`
	WorkspaceID string `json:"workspace_id"`
	Role        Role   `json:"role"`
}

// SystemPrincipal is used for mutations performed by automation rules.
func SystemPrincipal(workspaceID string) Principal {
	return Principal{UserID: CommentAuthorAutomation, WorkspaceID: workspaceID, Role: RoleAdmin}
}
