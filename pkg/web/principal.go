package web

import (
	"strings"

	"github.com/agencyops/taskflow/pkg/authz"
	"github.com/agencyops/taskflow/pkg/models"
	"github.com/gofiber/fiber/v3"
)

// Headers set by the authenticating proxy in front of the API.
const (
	HeaderUserID      = "X-User-ID"
	HeaderWorkspaceID = "X-Workspace-ID"
	HeaderRole        = "X-Role"
)

type principalKey struct{}

// RequirePrincipal reads the caller's identity from the proxy headers and rejects
// requests for any workspace but the caller's own.
func RequirePrincipal(c fiber.Ctx) error {
	userID := strings.TrimSpace(c.Get(HeaderUserID))
	workspaceID := strings.TrimSpace(c.Get(HeaderWorkspaceID))

	if userID == "" || workspaceID == "" {
		return unauthorized(c, "missing identity headers")
	}

	role, ok := authz.ParseRole(strings.ToLower(strings.TrimSpace(c.Get(HeaderRole))))
	if !ok {
		return unauthorized(c, "unknown role")
	}

	principal := models.Principal{UserID: userID, WorkspaceID: workspaceID, Role: role}
	if err := authz.AuthorizeWorkspace(principal, c.Params("workspaceId")); err != nil {
		return handleServiceError(c, err)
	}

	c.Locals(principalKey{}, principal)

	return c.Next()
}

func principalFrom(c fiber.Ctx) models.Principal {
	principal, _ := c.Locals(principalKey{}).(models.Principal)

	return principal
}
