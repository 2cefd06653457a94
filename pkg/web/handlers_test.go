package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildforge/buildforge/pkg/cmd"
	"github.com/buildforge/buildforge/pkg/models"
	"github.com/buildforge/buildforge/pkg/persistence/file"
	"github.com/buildforge/buildforge/pkg/runner"
	"github.com/buildforge/buildforge/pkg/web"
)

type recordedSync struct {
	mu        sync.Mutex
	workflows []string
}

func (r *recordedSync) SyncWorkflow(_ context.Context, workflow *models.Workflow) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.workflows = append(r.workflows, workflow.ID)
}

func (r *recordedSync) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.workflows)
}

func setupTestApp(t *testing.T) (*fiber.App, *file.Store, *recordedSync) {
	t.Helper()

	store := file.NewStore(t.TempDir())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := cmd.NewRegistry(logger)
	deps := cmd.NewDependencies(logger, cmd.DepsConfig{Actions: store})
	run := runner.NewRunner(reg, deps, store, logger)
	syncer := &recordedSync{}

	handlers := web.NewAPIHandlers(store, reg, run, syncer)

	app := fiber.New()
	handlers.RegisterRoutes(app)

	return app, store, syncer
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) *http.Response {
	t.Helper()

	var reader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	defer resp.Body.Close()

	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))

	return out
}

func TestCreateWorkflow(t *testing.T) {
	app, _, syncer := setupTestApp(t)

	resp := doJSON(t, app, http.MethodPost, "/workflows", web.CreateWorkflowRequest{
		Name:        "Release widget",
		NextVersion: "1.0.0",
		Nodes: []*models.WorkflowNode{
			{ID: "build", Type: models.StepBuild, Name: "Build", Enabled: true},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	workflow := decode[models.Workflow](t, resp)
	assert.NotEmpty(t, workflow.ID)
	assert.Equal(t, "Release widget", workflow.Name)
	assert.Equal(t, 1, syncer.count())
}

func TestCreateWorkflowValidation(t *testing.T) {
	app, _, _ := setupTestApp(t)

	// Name below the minimum length.
	resp := doJSON(t, app, http.MethodPost, "/workflows", web.CreateWorkflowRequest{Name: "ab"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Edge referencing a node that does not exist.
	resp = doJSON(t, app, http.MethodPost, "/workflows", web.CreateWorkflowRequest{
		Name: "Broken graph",
		Nodes: []*models.WorkflowNode{
			{ID: "a", Type: models.StepBuild, Name: "Build", Enabled: true},
		},
		Connections: []*models.Connection{
			{ID: "c1", SourceID: "a", TargetID: "ghost"},
		},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetWorkflowNotFound(t *testing.T) {
	app, _, _ := setupTestApp(t)

	resp := doJSON(t, app, http.MethodGet, "/workflows/missing", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	problem := decode[map[string]any](t, resp)
	assert.Equal(t, "not_found", problem["type"])
}

func TestUpdateWorkflowPartial(t *testing.T) {
	app, store, syncer := setupTestApp(t)
	ctx := context.Background()

	require.NoError(t, store.SaveWorkflow(ctx, &models.Workflow{
		ID:          "wf-1",
		Name:        "Original name",
		NextVersion: "1.0.0",
	}))

	name := "Renamed pipeline"
	resp := doJSON(t, app, http.MethodPatch, "/workflows/wf-1", web.UpdateWorkflowRequest{Name: &name})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	updated := decode[models.Workflow](t, resp)
	assert.Equal(t, "Renamed pipeline", updated.Name)
	assert.Equal(t, "1.0.0", updated.NextVersion, "untouched fields survive")
	assert.Equal(t, 1, syncer.count())
}

func TestDeleteWorkflow(t *testing.T) {
	app, store, _ := setupTestApp(t)

	require.NoError(t, store.SaveWorkflow(context.Background(), &models.Workflow{ID: "wf-1", Name: "Doomed"}))

	resp := doJSON(t, app, http.MethodDelete, "/workflows/wf-1", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, app, http.MethodGet, "/workflows/wf-1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestActionCRUD(t *testing.T) {
	app, _, _ := setupTestApp(t)

	resp := doJSON(t, app, http.MethodPost, "/actions", web.CreateActionRequest{
		Name:   "deploy-staging",
		Script: "kubectl apply -f staging/",
		Inputs: []models.ActionInput{{Name: "CLUSTER", Required: true}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	action := decode[models.Action](t, resp)
	require.NotEmpty(t, action.ID)

	script := "kubectl apply -f production/"
	resp = doJSON(t, app, http.MethodPatch, "/actions/"+action.ID, web.UpdateActionRequest{Script: &script})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	updated := decode[models.Action](t, resp)
	assert.Equal(t, script, updated.Script)
	assert.Equal(t, "deploy-staging", updated.Name)

	resp = doJSON(t, app, http.MethodDelete, "/actions/"+action.ID, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, app, http.MethodGet, "/actions/"+action.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBindRepositoryDetectsBuildSystem(t *testing.T) {
	app, _, _ := setupTestApp(t)

	checkout := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(checkout, "go.mod"), []byte("module example.com/widget\n"), 0o644))

	resp := doJSON(t, app, http.MethodPost, "/repositories", web.BindRepositoryRequest{
		Path:  checkout,
		Owner: "acme",
		Name:  "widget",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	repo := decode[models.Repository](t, resp)
	assert.Equal(t, "go", repo.BuildSystem)
	assert.Equal(t, "main", repo.DefaultBranch)

	// Marker change picked up on re-detect.
	require.NoError(t, os.Remove(filepath.Join(checkout, "go.mod")))
	require.NoError(t, os.WriteFile(filepath.Join(checkout, "Cargo.toml"), []byte("[package]\n"), 0o644))

	resp = doJSON(t, app, http.MethodPost, "/repositories/"+repo.ID+"/detect", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	redetected := decode[models.Repository](t, resp)
	assert.Equal(t, "cargo", redetected.BuildSystem)
}

func TestStepCatalog(t *testing.T) {
	app, _, _ := setupTestApp(t)

	resp := doJSON(t, app, http.MethodGet, "/steps", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	catalog := decode[[]web.StepTypeResponse](t, resp)
	assert.Len(t, catalog, len(models.StepTypes()))

	byType := make(map[models.StepType]web.StepTypeResponse, len(catalog))
	for _, entry := range catalog {
		byType[entry.Type] = entry
	}

	require.Contains(t, byType, models.StepRunCommand)
	assert.NotEmpty(t, byType[models.StepRunCommand].Name)
	assert.NotNil(t, byType[models.StepRunCommand].Schema)
}

func TestStartRunAndHistory(t *testing.T) {
	app, store, _ := setupTestApp(t)

	require.NoError(t, store.SaveWorkflow(context.Background(), &models.Workflow{
		ID:   "wf-1",
		Name: "Timer only",
		Nodes: []*models.WorkflowNode{
			{
				ID:      "timer",
				Type:    models.StepTriggerTimer,
				Name:    "Timer",
				Enabled: true,
				Config:  map[string]any{"mode": "daily", "time": "09:00", "enabled": true},
			},
		},
	}))

	resp := doJSON(t, app, http.MethodPost, "/workflows/wf-1/runs", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	started := decode[models.RunView](t, resp)
	assert.Equal(t, "wf-1", started.WorkflowID)

	require.Eventually(t, func() bool {
		resp := doJSON(t, app, http.MethodGet, "/runs/current", nil)
		if resp.StatusCode != http.StatusOK {
			return false
		}

		view := decode[models.RunView](t, resp)

		return view.Status == models.RunStatusSuccess
	}, 5*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		resp := doJSON(t, app, http.MethodGet, "/workflows/wf-1/runs", nil)
		if resp.StatusCode != http.StatusOK {
			return false
		}

		return len(decode[[]models.RunRecord](t, resp)) == 1
	}, 5*time.Second, 20*time.Millisecond)
}

func TestStartRunMissingWorkflow(t *testing.T) {
	app, _, _ := setupTestApp(t)

	resp := doJSON(t, app, http.MethodPost, "/workflows/missing/runs", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCancelWithoutRun(t *testing.T) {
	app, _, _ := setupTestApp(t)

	resp := doJSON(t, app, http.MethodPost, "/runs/current/cancel", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHealthCheck(t *testing.T) {
	app, _, _ := setupTestApp(t)

	resp := doJSON(t, app, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[map[string]any](t, resp)
	assert.Equal(t, "healthy", body["status"])
}
