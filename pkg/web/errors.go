package web

import (
	"github.com/agencyops/taskflow/pkg/models"
	"github.com/agencyops/taskflow/pkg/services"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func unauthorized(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(401).
		WithInstance(c.Path()).
		WithType("unauthenticated").
		WithDetail(detail)

	return c.Status(fiber.StatusUnauthorized).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError maps engine and service errors to RFC 7807 responses.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case models.IsAuthorizationError(err):
		problem := problems.NewStatusProblem(403).
			WithInstance(c.Path()).
			WithType("forbidden").
			WithDetail(err.Error())

		return c.Status(fiber.StatusForbidden).JSON(problem)

	case services.IsValidationError(err):
		return badRequest(c, err.Error())

	case services.IsNotFoundError(err):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType("not_found").
			WithDetail(err.Error())

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case models.IsInvalidTransition(err):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("invalid_transition").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	case models.IsTimerMisuse(err):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("timer_conflict").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	case services.IsConflictError(err):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("conflict").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	default:
		return internalError(c, err)
	}
}
