package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/ourworldcn/powerlms-workflow/pkg/models"
	"github.com/ourworldcn/powerlms-workflow/pkg/persistence/file"
	"github.com/ourworldcn/powerlms-workflow/pkg/services"
	"github.com/ourworldcn/powerlms-workflow/pkg/web"
	"github.com/ourworldcn/powerlms-workflow/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T) (*fiber.App, *services.Template) {
	t.Helper()

	persistence := file.NewPersistence(t.TempDir())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := workflow.NewEngine(persistence, nil, logger)

	templateService := services.NewTemplate(persistence)
	approvalService := services.NewApproval(persistence, engine)
	validate := validator.New(validator.WithRequiredStructEnabled())

	handlers := web.NewAPIHandlers(templateService, approvalService, validate)

	app := fiber.New()

	tp := app.Group("/templates")
	tp.Get("/", handlers.GetTemplates)
	tp.Post("/", handlers.CreateTemplate)
	tp.Get("/:id", handlers.GetTemplate)
	tp.Patch("/:id", handlers.UpdateTemplate)
	tp.Delete("/:id", handlers.DeleteTemplate)

	w := app.Group("/workflows")
	w.Post("/send", handlers.SendWorkflow)
	w.Get("/by-document/:docId", handlers.GetInstancesByDocument)
	w.Get("/by-operator/:operatorId", handlers.GetInstancesByOperator)
	w.Get("/:id", handlers.GetInstance)

	app.Get("/health", handlers.HealthCheck)

	return app, templateService
}

func releaseTemplateRequest() web.CreateTemplateRequest {
	return web.CreateTemplateRequest{
		DisplayName: "Ocean export release",
		DocTypeCode: "ocean_export",
		OrgID:       "org-1",
		Nodes: []web.TemplateNodeRequest{
			{Items: []web.TemplateNodeItemRequest{{OperatorID: "u1", OperatorDisplayName: "Operator u1"}}},
			{Items: []web.TemplateNodeItemRequest{{OperatorID: "u2", OperatorDisplayName: "Operator u2"}}},
		},
	}
}

func createTemplate(t *testing.T, app *fiber.App) models.Template {
	t.Helper()

	body, err := json.Marshal(releaseTemplateRequest())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/templates", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(web.HeaderOperatorID, "admin-1")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var template models.Template

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &template))

	return template
}

func sendDecision(t *testing.T, app *fiber.App, actorID string, body web.SendRequest) *http.Response {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/workflows/send", bytes.NewBuffer(raw))
	req.Header.Set("Content-Type", "application/json")

	if actorID != "" {
		req.Header.Set(web.HeaderOperatorID, actorID)
		req.Header.Set(web.HeaderOperatorName, "Operator "+actorID)
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	return resp
}

func boolPtr(v bool) *bool {
	return &v
}

func TestAPIHandlers_CreateTemplate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		requestBody    interface{}
		expectedStatus int
		validateResult func(t *testing.T, body []byte)
	}{
		{
			name:           "successful creation",
			requestBody:    releaseTemplateRequest(),
			expectedStatus: http.StatusCreated,
			validateResult: func(t *testing.T, body []byte) {
				t.Helper()

				var template models.Template
				require.NoError(t, json.Unmarshal(body, &template))

				assert.NotEmpty(t, template.ID)
				assert.Equal(t, "Ocean export release", template.DisplayName)
				assert.Equal(t, "admin-1", template.CreatedBy)
				require.Len(t, template.Nodes, 2)

				// The server links the steps in submission order.
				require.NotNil(t, template.Nodes[0].NextID)
				assert.Equal(t, template.Nodes[1].ID, *template.Nodes[0].NextID)
				assert.Nil(t, template.Nodes[1].NextID)
			},
		},
		{
			name: "validation error - missing display name",
			requestBody: web.CreateTemplateRequest{
				DocTypeCode: "ocean_export",
				Nodes:       releaseTemplateRequest().Nodes,
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "validation error - node without operators",
			requestBody: web.CreateTemplateRequest{
				DisplayName: "Ocean export release",
				DocTypeCode: "ocean_export",
				Nodes:       []web.TemplateNodeRequest{{}},
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid JSON",
			requestBody:    "not-json",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			app, _ := setupTestApp(t)

			var (
				body []byte
				err  error
			)

			if str, ok := tt.requestBody.(string); ok {
				body = []byte(str)
			} else {
				body, err = json.Marshal(tt.requestBody)
				require.NoError(t, err)
			}

			req := httptest.NewRequest(http.MethodPost, "/templates", bytes.NewBuffer(body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set(web.HeaderOperatorID, "admin-1")

			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			if tt.validateResult != nil {
				raw, err := io.ReadAll(resp.Body)
				require.NoError(t, err)
				tt.validateResult(t, raw)
			}
		})
	}
}

func TestAPIHandlers_GetTemplate(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)
	created := createTemplate(t, app)

	req := httptest.NewRequest(http.MethodGet, "/templates/"+created.ID, nil)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/templates/tpl-missing", nil)

	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIHandlers_UpdateTemplate(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)
	created := createTemplate(t, app)

	name := "Ocean export release v2"
	body, err := json.Marshal(web.UpdateTemplateRequest{DisplayName: &name})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPatch, "/templates/"+created.ID, bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var updated models.Template

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &updated))

	assert.Equal(t, name, updated.DisplayName)
	require.Len(t, updated.Nodes, 2)
}

func TestAPIHandlers_DeleteTemplate(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)
	created := createTemplate(t, app)

	req := httptest.NewRequest(http.MethodDelete, "/templates/"+created.ID, nil)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/templates/"+created.ID, nil)

	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIHandlers_SendWorkflow(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)
	template := createTemplate(t, app)

	resp := sendDecision(t, app, "u1", web.SendRequest{
		TemplateID:     template.ID,
		DocID:          "doc-1",
		Approved:       boolPtr(true),
		NextOperatorID: "u2",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var result web.SendResponse

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &result))

	assert.NotEmpty(t, result.InstanceID)
	assert.Equal(t, models.InstanceStatusInProgress, result.Status)
}

func TestAPIHandlers_SendWorkflow_Errors(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)
	template := createTemplate(t, app)

	t.Run("missing identity header", func(t *testing.T) {
		resp := sendDecision(t, app, "", web.SendRequest{
			TemplateID: template.ID,
			DocID:      "doc-1",
			Approved:   boolPtr(true),
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("missing decision", func(t *testing.T) {
		resp := sendDecision(t, app, "u1", web.SendRequest{
			TemplateID: template.ID,
			DocID:      "doc-1",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown template", func(t *testing.T) {
		resp := sendDecision(t, app, "u1", web.SendRequest{
			TemplateID: "tpl-missing",
			DocID:      "doc-1",
			Approved:   boolPtr(true),
		})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("reject cannot nominate a next operator", func(t *testing.T) {
		resp := sendDecision(t, app, "u1", web.SendRequest{
			TemplateID:     template.ID,
			DocID:          "doc-2",
			Approved:       boolPtr(false),
			NextOperatorID: "u2",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("actor without a step", func(t *testing.T) {
		resp := sendDecision(t, app, "stranger", web.SendRequest{
			TemplateID: template.ID,
			DocID:      "doc-3",
			Approved:   boolPtr(true),
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestAPIHandlers_GetInstanceQueries(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)
	template := createTemplate(t, app)

	resp := sendDecision(t, app, "u1", web.SendRequest{
		TemplateID:     template.ID,
		DocID:          "doc-1",
		Approved:       boolPtr(true),
		NextOperatorID: "u2",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var sent web.SendResponse

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &sent))

	t.Run("by id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/workflows/"+sent.InstanceID, nil)

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("by id missing", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/workflows/inst-missing", nil)

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("by document", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/workflows/by-document/doc-1", nil)

		resp, err := app.Test(req)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var result struct {
			Instances  []services.InstanceSummary `json:"instances"`
			TotalCount int                        `json:"total_count"`
		}

		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &result))

		assert.Equal(t, 1, result.TotalCount)
		require.Len(t, result.Instances, 1)
		assert.Equal(t, models.InstanceStatusInProgress, result.Instances[0].Status)
	})

	t.Run("by operator", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/workflows/by-operator/u2", nil)

		resp, err := app.Test(req)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var result struct {
			TotalCount int `json:"total_count"`
		}

		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &result))
		assert.Equal(t, 1, result.TotalCount)
	})
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
