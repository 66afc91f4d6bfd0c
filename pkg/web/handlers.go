// Package web provides HTTP handlers for the task lifecycle, timer and automation rule API.
package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/agencyops/taskflow/pkg/lifecycle"
	"github.com/agencyops/taskflow/pkg/models"
	"github.com/agencyops/taskflow/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	taskService  *services.Task
	timerService *services.Timer
	ruleService  *services.Rule
	validator    *validator.Validate
}

func NewAPIHandlers(
	taskService *services.Task,
	timerService *services.Timer,
	ruleService *services.Rule,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		taskService:  taskService,
		timerService: timerService,
		ruleService:  ruleService,
		validator:    validator,
	}
}

// Register mounts the workspace-scoped routes on router.
func (h *APIHandlers) Register(router fiber.Router) {
	ws := router.Group("/workspaces/:workspaceId", RequirePrincipal)

	tasks := ws.Group("/tasks")
	tasks.Post("/", h.CreateTask)
	tasks.Get("/", h.GetTasks)
	tasks.Get("/:id", h.GetTask)
	tasks.Patch("/:id", h.UpdateTask)
	tasks.Post("/:id/start", h.StartWork)
	tasks.Post("/:id/submit-internal-review", h.SubmitForInternalReview)
	tasks.Post("/:id/internal-review", h.InternalReview)
	tasks.Post("/:id/client-review", h.ClientReview)
	tasks.Post("/:id/transition", h.Transition)
	tasks.Post("/:id/timer/start", h.StartTimer)
	tasks.Post("/:id/timer/stop", h.StopTimer)
	tasks.Get("/:id/timer", h.GetTimer)
	tasks.Get("/:id/sessions", h.GetSessions)
	tasks.Get("/:id/activity", h.GetActivity)
	tasks.Get("/:id/comments", h.GetComments)

	rules := ws.Group("/rules")
	rules.Get("/", h.GetRules)
	rules.Post("/", h.CreateRule)
	rules.Get("/:id", h.GetRule)
	rules.Put("/:id", h.UpdateRule)
	rules.Post("/:id/deactivate", h.DeactivateRule)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.taskService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Taskflow API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Taskflow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) CreateTask(c fiber.Ctx) error {
	var req CreateTaskRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	task := &models.Task{
		Title:        req.Title,
		Priority:     req.Priority,
		AssigneeID:   req.AssigneeID,
		CustomFields: req.CustomFields,
	}

	created, err := h.taskService.Create(c.Context(), principalFrom(c), c.Params("workspaceId"), task)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetTasks(c fiber.Ctx) error {
	req, err := parseListTasksRequest(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	tasks, err := h.taskService.List(c.Context(), principalFrom(c), c.Params("workspaceId"), *req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(TaskListResponse{Tasks: tasks, Limit: req.Limit, Offset: req.Offset})
}

// parseListTasksRequest parses query parameters for listing tasks.
func parseListTasksRequest(c fiber.Ctx) (*services.ListTasksRequest, error) {
	req := &services.ListTasksRequest{
		Status:     models.TaskStatus(c.Query("status")),
		AssigneeID: c.Query("assignee_id"),
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, err
		}

		req.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return nil, err
		}

		req.Offset = offset
	}

	return req, nil
}

func (h *APIHandlers) GetTask(c fiber.Ctx) error {
	task, err := h.taskService.Get(c.Context(), principalFrom(c), c.Params("workspaceId"), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(task)
}

func (h *APIHandlers) UpdateTask(c fiber.Ctx) error {
	var req UpdateTaskRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	patch := lifecycle.FieldPatch{
		Title:        req.Title,
		Priority:     req.Priority,
		AssigneeID:   req.AssigneeID,
		CustomFields: req.CustomFields,
	}

	task, err := h.taskService.Update(c.Context(), principalFrom(c), c.Params("workspaceId"), c.Params("id"), patch)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(task)
}

func (h *APIHandlers) StartWork(c fiber.Ctx) error {
	task, err := h.taskService.StartWork(c.Context(), principalFrom(c), c.Params("workspaceId"), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(task)
}

func (h *APIHandlers) SubmitForInternalReview(c fiber.Ctx) error {
	task, err := h.taskService.SubmitForInternalReview(c.Context(), principalFrom(c), c.Params("workspaceId"), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(task)
}

func (h *APIHandlers) bindDecision(c fiber.Ctx) (*ReviewDecisionRequest, error) {
	var req ReviewDecisionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return nil, badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return nil, badRequest(c, err.Error())
	}

	return &req, nil
}

func (h *APIHandlers) InternalReview(c fiber.Ctx) error {
	req, err := h.bindDecision(c)
	if req == nil {
		return err
	}

	task, err := h.taskService.InternalReview(c.Context(), principalFrom(c), c.Params("workspaceId"), c.Params("id"),
		lifecycle.Decision(req.Decision))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(task)
}

func (h *APIHandlers) ClientReview(c fiber.Ctx) error {
	req, err := h.bindDecision(c)
	if req == nil {
		return err
	}

	task, err := h.taskService.ClientReview(c.Context(), principalFrom(c), c.Params("workspaceId"), c.Params("id"),
		lifecycle.Decision(req.Decision), req.Reason)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(task)
}

func (h *APIHandlers) Transition(c fiber.Ctx) error {
	var req TransitionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	task, err := h.taskService.Transition(c.Context(), principalFrom(c), c.Params("workspaceId"), c.Params("id"),
		req.To, req.Reason)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(task)
}

func (h *APIHandlers) StartTimer(c fiber.Ctx) error {
	task, err := h.timerService.Start(c.Context(), principalFrom(c), c.Params("workspaceId"), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(task)
}

func (h *APIHandlers) StopTimer(c fiber.Ctx) error {
	result, err := h.timerService.Stop(c.Context(), principalFrom(c), c.Params("workspaceId"), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) GetTimer(c fiber.Ctx) error {
	status, err := h.timerService.Status(c.Context(), principalFrom(c), c.Params("workspaceId"), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(status)
}

func (h *APIHandlers) GetSessions(c fiber.Ctx) error {
	sessions, err := h.timerService.Sessions(c.Context(), principalFrom(c), c.Params("workspaceId"), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"sessions": nonNil(sessions)})
}

func (h *APIHandlers) GetActivity(c fiber.Ctx) error {
	entries, err := h.taskService.Activity(c.Context(), principalFrom(c), c.Params("workspaceId"), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"activity": nonNil(entries)})
}

func (h *APIHandlers) GetComments(c fiber.Ctx) error {
	comments, err := h.taskService.Comments(c.Context(), principalFrom(c), c.Params("workspaceId"), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"comments": nonNil(comments)})
}

func (h *APIHandlers) GetRules(c fiber.Ctx) error {
	rules, err := h.ruleService.List(c.Context(), principalFrom(c), c.Params("workspaceId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"rules": nonNil(rules)})
}

func (h *APIHandlers) bindRule(c fiber.Ctx) (*RuleRequest, error) {
	var req RuleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return nil, badRequest(c, "Invalid JSON format: "+err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return nil, badRequest(c, err.Error())
	}

	return &req, nil
}

func (h *APIHandlers) CreateRule(c fiber.Ctx) error {
	req, err := h.bindRule(c)
	if req == nil {
		return err
	}

	created, err := h.ruleService.Create(c.Context(), principalFrom(c), c.Params("workspaceId"), req.Rule())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetRule(c fiber.Ctx) error {
	rule, err := h.ruleService.Get(c.Context(), principalFrom(c), c.Params("workspaceId"), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(rule)
}

func (h *APIHandlers) UpdateRule(c fiber.Ctx) error {
	req, err := h.bindRule(c)
	if req == nil {
		return err
	}

	updated, err := h.ruleService.Update(c.Context(), principalFrom(c), c.Params("workspaceId"), c.Params("id"), req.Definition())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeactivateRule(c fiber.Ctx) error {
	rule, err := h.ruleService.Deactivate(c.Context(), principalFrom(c), c.Params("workspaceId"), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(rule)
}

// nonNil keeps empty lists rendering as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}

	return items
}
