package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/buildforge/buildforge/pkg/buildsys"
	"github.com/buildforge/buildforge/pkg/models"
	"github.com/buildforge/buildforge/pkg/persistence"
	"github.com/buildforge/buildforge/pkg/registry"
	"github.com/buildforge/buildforge/pkg/runner"
)

// WorkflowSyncer reconciles trigger schedules after workflow writes.
// The API server wires the trigger scheduler here; a nil syncer is
// valid for deployments that run triggers in a separate process.
type WorkflowSyncer interface {
	SyncWorkflow(ctx context.Context, workflow *models.Workflow)
}

type APIHandlers struct {
	store     persistence.Persistence
	registry  *registry.Registry
	runner    *runner.Runner
	scheduler WorkflowSyncer
	detect    func(path string) buildsys.System
	validate  *validator.Validate
}

func NewAPIHandlers(
	store persistence.Persistence,
	reg *registry.Registry,
	run *runner.Runner,
	scheduler WorkflowSyncer,
) *APIHandlers {
	return &APIHandlers{
		store:     store,
		registry:  reg,
		runner:    run,
		scheduler: scheduler,
		detect:    buildsys.Detect,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

// RegisterRoutes mounts every endpoint on the app. Kept here so tests
// and the server command share one route table.
func (h *APIHandlers) RegisterRoutes(app *fiber.App) {
	w := app.Group("/workflows")
	w.Get("/", h.GetWorkflows)
	w.Post("/", h.CreateWorkflow)
	w.Get("/:id", h.GetWorkflow)
	w.Patch("/:id", h.UpdateWorkflow)
	w.Delete("/:id", h.DeleteWorkflow)
	w.Post("/:id/runs", h.StartRun)
	w.Get("/:id/runs", h.GetRunHistory)

	r := app.Group("/runs")
	r.Get("/current", h.GetCurrentRun)
	r.Post("/current/cancel", h.CancelCurrentRun)

	a := app.Group("/actions")
	a.Get("/", h.GetActions)
	a.Post("/", h.CreateAction)
	a.Get("/:id", h.GetAction)
	a.Patch("/:id", h.UpdateAction)
	a.Delete("/:id", h.DeleteAction)

	repos := app.Group("/repositories")
	repos.Get("/", h.GetRepositories)
	repos.Post("/", h.BindRepository)
	repos.Get("/:id", h.GetRepository)
	repos.Post("/:id/detect", h.DetectRepository)
	repos.Delete("/:id", h.DeleteRepository)

	app.Get("/steps", h.GetStepTypes)
	app.Get("/health", h.HealthCheck)
}

// Workflows

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows, err := h.store.Workflows(c.Context())
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(workflows)
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	workflow, err := h.store.WorkflowByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflow := &models.Workflow{
		ID:          uuid.NewString(),
		Name:        req.Name,
		RepoID:      req.RepoID,
		Nodes:       req.Nodes,
		Connections: req.Connections,
		NextVersion: req.NextVersion,
		Variables:   req.Variables,
	}

	if workflow.Nodes == nil {
		workflow.Nodes = []*models.WorkflowNode{}
	}

	if workflow.Connections == nil {
		workflow.Connections = []*models.Connection{}
	}

	if err := workflow.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.store.SaveWorkflow(c.Context(), workflow); err != nil {
		return handleStoreError(c, err)
	}

	h.syncTriggers(c.Context(), workflow)

	return c.Status(fiber.StatusCreated).JSON(workflow)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	var req UpdateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflow, err := h.store.WorkflowByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleStoreError(c, err)
	}

	if req.Name != nil {
		workflow.Name = *req.Name
	}

	if req.RepoID != nil {
		workflow.RepoID = *req.RepoID
	}

	if req.Nodes != nil {
		workflow.Nodes = req.Nodes
	}

	if req.Connections != nil {
		workflow.Connections = req.Connections
	}

	if req.NextVersion != nil {
		workflow.NextVersion = *req.NextVersion
	}

	if req.Variables != nil {
		workflow.Variables = req.Variables
	}

	if err := workflow.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.store.SaveWorkflow(c.Context(), workflow); err != nil {
		return handleStoreError(c, err)
	}

	h.syncTriggers(c.Context(), workflow)

	return c.JSON(workflow)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")

	if err := h.store.DeleteWorkflow(c.Context(), id); err != nil {
		return handleStoreError(c, err)
	}

	// An empty graph under the same id drops its schedules.
	h.syncTriggers(c.Context(), &models.Workflow{ID: id})

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) syncTriggers(ctx context.Context, workflow *models.Workflow) {
	if h.scheduler != nil {
		h.scheduler.SyncWorkflow(ctx, workflow)
	}
}

// Runs

func (h *APIHandlers) StartRun(c fiber.Ctx) error {
	var req StartRunRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	workflow, err := h.store.WorkflowByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleStoreError(c, err)
	}

	var repo *models.Repository
	if workflow.RepoID != "" {
		repo, err = h.store.RepositoryByID(c.Context(), workflow.RepoID)
		if err != nil {
			return handleStoreError(c, err)
		}
	}

	run, err := h.runner.Start(c.Context(), workflow, repo, req.Data)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(run.View())
}

func (h *APIHandlers) GetCurrentRun(c fiber.Ctx) error {
	run := h.runner.Current()
	if run == nil {
		return notFound(c, "no run has been started")
	}

	return c.JSON(run.View())
}

func (h *APIHandlers) CancelCurrentRun(c fiber.Ctx) error {
	if !h.runner.Cancel() {
		return conflict(c, "no run in progress")
	}

	return c.JSON(h.runner.Current().View())
}

func (h *APIHandlers) GetRunHistory(c fiber.Ctx) error {
	records, err := h.store.RunRecords(c.Context(), c.Params("id"))
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(records)
}

// Actions

func (h *APIHandlers) GetActions(c fiber.Ctx) error {
	actions, err := h.store.Actions(c.Context())
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(actions)
}

func (h *APIHandlers) GetAction(c fiber.Ctx) error {
	action, err := h.store.ActionByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(action)
}

func (h *APIHandlers) CreateAction(c fiber.Ctx) error {
	var req CreateActionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	action := &models.Action{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		Script:      req.Script,
		Inputs:      req.Inputs,
	}

	if err := h.store.SaveAction(c.Context(), action); err != nil {
		return handleStoreError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(action)
}

func (h *APIHandlers) UpdateAction(c fiber.Ctx) error {
	var req UpdateActionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	action, err := h.store.ActionByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleStoreError(c, err)
	}

	if req.Name != nil {
		action.Name = *req.Name
	}

	if req.Description != nil {
		action.Description = *req.Description
	}

	if req.Script != nil {
		action.Script = *req.Script
	}

	if req.Inputs != nil {
		action.Inputs = req.Inputs
	}

	if err := h.store.SaveAction(c.Context(), action); err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(action)
}

func (h *APIHandlers) DeleteAction(c fiber.Ctx) error {
	if err := h.store.DeleteAction(c.Context(), c.Params("id")); err != nil {
		return handleStoreError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// Repositories

func (h *APIHandlers) GetRepositories(c fiber.Ctx) error {
	repos, err := h.store.Repositories(c.Context())
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(repos)
}

func (h *APIHandlers) GetRepository(c fiber.Ctx) error {
	repo, err := h.store.RepositoryByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(repo)
}

func (h *APIHandlers) BindRepository(c fiber.Ctx) error {
	var req BindRepositoryRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	branch := req.DefaultBranch
	if branch == "" {
		branch = "main"
	}

	repo := &models.Repository{
		ID:            uuid.NewString(),
		Path:          req.Path,
		Owner:         req.Owner,
		Name:          req.Name,
		DefaultBranch: branch,
		BuildSystem:   string(h.detect(req.Path)),
	}

	if err := h.store.SaveRepository(c.Context(), repo); err != nil {
		return handleStoreError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(repo)
}

// DetectRepository reruns build-system detection against the bound
// path and stores the result.
func (h *APIHandlers) DetectRepository(c fiber.Ctx) error {
	repo, err := h.store.RepositoryByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleStoreError(c, err)
	}

	repo.BuildSystem = string(h.detect(repo.Path))

	if err := h.store.SaveRepository(c.Context(), repo); err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(repo)
}

func (h *APIHandlers) DeleteRepository(c fiber.Ctx) error {
	if err := h.store.DeleteRepository(c.Context(), c.Params("id")); err != nil {
		return handleStoreError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// Catalog and health

func (h *APIHandlers) GetStepTypes(c fiber.Ctx) error {
	types := h.registry.StepTypes()
	out := make([]StepTypeResponse, 0, len(types))

	for _, stepType := range types {
		factory, ok := h.registry.Factory(stepType)
		if !ok {
			continue
		}

		out = append(out, StepTypeResponse{
			Type:        stepType,
			Name:        factory.Name(),
			Description: factory.Description(),
			Schema:      factory.Schema(),
		})
	}

	return c.JSON(out)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	if err := h.store.HealthCheck(c.Context()); err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"status":    "unhealthy",
			"error":     err.Error(),
			"timestamp": time.Now().UTC(),
		})
	}

	return c.JSON(fiber.Map{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}
