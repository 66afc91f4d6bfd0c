package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agencyops/taskflow/pkg/lifecycle"
	"github.com/agencyops/taskflow/pkg/models"
	"github.com/agencyops/taskflow/pkg/persistence/file"
	"github.com/agencyops/taskflow/pkg/services"
	"github.com/agencyops/taskflow/pkg/testutil"
	"github.com/agencyops/taskflow/pkg/timer"
	"github.com/agencyops/taskflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const workspace = "ws-web"

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	persistence := file.NewPersistence(t.TempDir())
	emitter := &testutil.RecordingEmitter{}

	machine := lifecycle.NewMachine(persistence, emitter, logger)
	sessions := timer.NewManager(persistence, emitter, logger)

	handlers := web.NewAPIHandlers(
		services.NewTask(persistence, machine),
		services.NewTimer(sessions),
		services.NewRule(persistence.RuleRepository(), nil),
		validator.New(validator.WithRequiredStructEnabled()),
	)

	app := fiber.New()
	app.Get("/health", handlers.HealthCheck)
	handlers.Register(app)

	return app
}

func do(t *testing.T, app *fiber.App, method, path, role string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	if role != "" {
		req.Header.Set(web.HeaderUserID, "user-"+role)
		req.Header.Set(web.HeaderWorkspaceID, workspace)
		req.Header.Set(web.HeaderRole, role)
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, respBody
}

func createTask(t *testing.T, app *fiber.App) models.Task {
	t.Helper()

	status, body := do(t, app, http.MethodPost, "/workspaces/"+workspace+"/tasks", "member",
		web.CreateTaskRequest{Title: "Landing page", Priority: "high"})
	require.Equal(t, http.StatusCreated, status, string(body))

	var task models.Task
	require.NoError(t, json.Unmarshal(body, &task))

	return task
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	status, body := do(t, app, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"status":"healthy"`)
}

func TestAPIHandlers_Identity(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	status, _ := do(t, app, http.MethodGet, "/workspaces/"+workspace+"/tasks", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = do(t, app, http.MethodGet, "/workspaces/"+workspace+"/tasks", "owner", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body := do(t, app, http.MethodGet, "/workspaces/ws-other/tasks", "admin", nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Contains(t, string(body), "workspace mismatch")
}

func TestAPIHandlers_CrossWorkspaceRejectedBeforeBody(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body any
	}{
		{name: "not_an_object", body: "title"},
		{name: "fails_validation", body: web.CreateTaskRequest{Priority: "urgent"}},
		{name: "valid", body: web.CreateTaskRequest{Title: "Landing page"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			app := setupTestApp(t)

			status, body := do(t, app, http.MethodPost, "/workspaces/ws-other/tasks", "admin", tt.body)
			assert.Equal(t, http.StatusForbidden, status, string(body))
			assert.Contains(t, string(body), "workspace mismatch")
		})
	}
}

func TestAPIHandlers_CreateTask(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		role           string
		requestBody    any
		expectedStatus int
	}{
		{
			name:           "successful creation",
			role:           "member",
			requestBody:    web.CreateTaskRequest{Title: "Banner", Priority: "low"},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "missing title",
			role:           "member",
			requestBody:    web.CreateTaskRequest{Priority: "low"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "unknown priority",
			role:           "member",
			requestBody:    web.CreateTaskRequest{Title: "Banner", Priority: "whenever"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "client cannot create",
			role:           "client",
			requestBody:    web.CreateTaskRequest{Title: "Banner"},
			expectedStatus: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			app := setupTestApp(t)

			status, body := do(t, app, http.MethodPost, "/workspaces/"+workspace+"/tasks", tt.role, tt.requestBody)
			assert.Equal(t, tt.expectedStatus, status, string(body))

			if status == http.StatusCreated {
				var task models.Task
				require.NoError(t, json.Unmarshal(body, &task))
				assert.Equal(t, models.TaskStatusBacklog, task.Status)
				assert.Equal(t, workspace, task.WorkspaceID)
			}
		})
	}
}

func TestAPIHandlers_ReviewCycle(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)
	task := createTask(t, app)
	base := "/workspaces/" + workspace + "/tasks/" + task.ID

	status, _ := do(t, app, http.MethodPost, base+"/submit-internal-review", "member", nil)
	assert.Equal(t, http.StatusConflict, status, "backlog tasks cannot be submitted")

	status, _ = do(t, app, http.MethodPost, base+"/start", "member", nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = do(t, app, http.MethodPost, base+"/submit-internal-review", "member", nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = do(t, app, http.MethodPost, base+"/internal-review", "manager",
		web.ReviewDecisionRequest{Decision: "maybe"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, app, http.MethodPost, base+"/internal-review", "manager",
		web.ReviewDecisionRequest{Decision: "approve"})
	require.Equal(t, http.StatusOK, status)

	status, body := do(t, app, http.MethodPost, base+"/client-review", "client",
		web.ReviewDecisionRequest{Decision: "reject"})
	assert.Equal(t, http.StatusBadRequest, status, string(body))

	status, body = do(t, app, http.MethodPost, base+"/client-review", "client",
		web.ReviewDecisionRequest{Decision: "reject", Reason: "too dark"})
	require.Equal(t, http.StatusOK, status)

	var rejected models.Task
	require.NoError(t, json.Unmarshal(body, &rejected))
	assert.Equal(t, models.TaskStatusInProgress, rejected.Status)
	assert.Equal(t, 1, rejected.InternalRevisionCount)
	require.NotNil(t, rejected.LastClientFeedback)
	assert.Equal(t, "too dark", *rejected.LastClientFeedback)

	status, _ = do(t, app, http.MethodPost, base+"/transition", "manager",
		web.TransitionRequest{To: models.TaskStatusApproved})
	assert.Equal(t, http.StatusConflict, status)

	status, body = do(t, app, http.MethodGet, base+"/activity", "client", nil)
	require.Equal(t, http.StatusOK, status)

	var activity struct {
		Activity []models.ActivityLogEntry `json:"activity"`
	}
	require.NoError(t, json.Unmarshal(body, &activity))
	assert.NotEmpty(t, activity.Activity)
}

func TestAPIHandlers_Timer(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)
	task := createTask(t, app)
	base := "/workspaces/" + workspace + "/tasks/" + task.ID

	status, _ := do(t, app, http.MethodPost, base+"/timer/stop", "member", nil)
	assert.Equal(t, http.StatusConflict, status)

	status, _ = do(t, app, http.MethodPost, base+"/timer/start", "member", nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = do(t, app, http.MethodPost, base+"/timer/start", "member", nil)
	assert.Equal(t, http.StatusConflict, status)

	status, body := do(t, app, http.MethodGet, base+"/timer", "member", nil)
	require.Equal(t, http.StatusOK, status)

	var timerStatus timer.Status
	require.NoError(t, json.Unmarshal(body, &timerStatus))
	assert.True(t, timerStatus.Active)
	assert.NotNil(t, timerStatus.StartedAt)

	status, _ = do(t, app, http.MethodPost, base+"/timer/stop", "member", nil)
	require.Equal(t, http.StatusOK, status)

	status, body = do(t, app, http.MethodGet, base+"/sessions", "member", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"duration_minutes"`)
}

func TestAPIHandlers_GetTaskNotFound(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	status, body := do(t, app, http.MethodGet, "/workspaces/"+workspace+"/tasks/missing", "member", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, string(body), "not_found")
}

func TestAPIHandlers_Rules(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)
	base := "/workspaces/" + workspace + "/rules"

	request := map[string]any{
		"name":          "Escalate high priority",
		"trigger_event": "status_changed",
		"filter_groups": []map[string]any{{
			"logic":   "AND",
			"filters": []map[string]any{{"field": "priority", "operator": "equals", "value": "high"}},
		}},
		"action_chain": []map[string]any{{"type": "notify", "template": "{{task.title}} moved", "mentions": []string{"@assignee"}}},
	}

	status, _ := do(t, app, http.MethodPost, base, "manager", request)
	assert.Equal(t, http.StatusForbidden, status)

	status, body := do(t, app, http.MethodPost, base, "admin", request)
	require.Equal(t, http.StatusCreated, status, string(body))

	var created models.AutomationRule
	require.NoError(t, json.Unmarshal(body, &created))
	assert.True(t, created.IsActive)
	assert.Equal(t, workspace, created.WorkspaceID)

	request["action_chain"] = []map[string]any{{"type": "archive"}}
	status, _ = do(t, app, http.MethodPut, base+"/"+created.ID, "admin", request)
	assert.Equal(t, http.StatusBadRequest, status)

	request["action_chain"] = []map[string]any{{"type": "change_status", "to": "client_review"}}
	status, _ = do(t, app, http.MethodPut, base+"/"+created.ID, "admin", request)
	assert.Equal(t, http.StatusOK, status)

	status, body = do(t, app, http.MethodPost, base+"/"+created.ID+"/deactivate", "admin", nil)
	require.Equal(t, http.StatusOK, status)

	var deactivated models.AutomationRule
	require.NoError(t, json.Unmarshal(body, &deactivated))
	assert.False(t, deactivated.IsActive)

	status, body = do(t, app, http.MethodGet, base, "member", nil)
	assert.Equal(t, http.StatusForbidden, status, string(body))

	status, body = do(t, app, http.MethodGet, base+"/"+created.ID, "manager", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"to":"client_review"`)
}

func TestAPIHandlers_UpdateKeepsDeactivatedRule(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)
	base := "/workspaces/" + workspace + "/rules"

	request := map[string]any{
		"name":          "Notify on review",
		"trigger_event": "status_changed",
		"action_chain":  []map[string]any{{"type": "notify", "template": "{{task.title}} moved", "mentions": []string{"@assignee"}}},
	}

	status, body := do(t, app, http.MethodPost, base, "admin", request)
	require.Equal(t, http.StatusCreated, status, string(body))

	var created models.AutomationRule
	require.NoError(t, json.Unmarshal(body, &created))

	status, _ = do(t, app, http.MethodPost, base+"/"+created.ID+"/deactivate", "admin", nil)
	require.Equal(t, http.StatusOK, status)

	request["name"] = "Renamed"
	status, body = do(t, app, http.MethodPut, base+"/"+created.ID, "admin", request)
	require.Equal(t, http.StatusOK, status, string(body))

	status, body = do(t, app, http.MethodGet, base+"/"+created.ID, "admin", nil)
	require.Equal(t, http.StatusOK, status)

	var stored models.AutomationRule
	require.NoError(t, json.Unmarshal(body, &stored))
	assert.Equal(t, "Renamed", stored.Name)
	assert.False(t, stored.IsActive)

	request["is_active"] = true
	status, body = do(t, app, http.MethodPut, base+"/"+created.ID, "admin", request)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Contains(t, string(body), `"is_active":true`)
}
