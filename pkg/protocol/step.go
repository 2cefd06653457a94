// Package protocol defines the contracts for pluggable workflow steps
// and triggers.
package protocol

import (
	"context"
	"log/slog"

	"github.com/buildforge/buildforge/pkg/artifacts"
	"github.com/buildforge/buildforge/pkg/backend"
	"github.com/buildforge/buildforge/pkg/buildsys"
	"github.com/buildforge/buildforge/pkg/execx"
	"github.com/buildforge/buildforge/pkg/gitops"
	"github.com/buildforge/buildforge/pkg/hosting"
	"github.com/buildforge/buildforge/pkg/models"
	"github.com/buildforge/buildforge/pkg/release"
)

// StepHandler executes one workflow node. The handler reads what it
// needs from the run context and records its result as a step output.
type StepHandler interface {
	Execute(ctx context.Context, rc *models.RunContext, node *models.WorkflowNode) (*models.StepOutput, error)
}

// StepFactory creates step handlers and describes the step type.
type StepFactory interface {
	// Create builds a handler bound to the shared dependencies.
	Create(deps Dependencies) (StepHandler, error)

	// ID returns the step type this factory produces.
	ID() models.StepType

	// Name returns the human-readable name for this step type.
	Name() string

	// Description returns a description of what this step does.
	Description() string

	// Schema returns the JSON schema for this step's configuration.
	Schema() map[string]any
}

// ActionStore resolves stored actions for run-action steps.
type ActionStore interface {
	ActionByID(ctx context.Context, id string) (*models.Action, error)
	ActionByName(ctx context.Context, name string) (*models.Action, error)
}

// Dependencies carries the shared collaborators step handlers draw
// from. Factories pick the fields they need; nil fields are fine for
// handlers that never touch them.
type Dependencies struct {
	Logger    *slog.Logger
	Exec      execx.Runner
	Installer execx.Installer
	Git       *gitops.Client
	Locator   *artifacts.Locator
	Router    *backend.Router
	Publisher *release.Publisher
	Hosting   *hosting.Client
	Actions   ActionStore
	Detect    func(path string) buildsys.System

	// Confirm asks the user a yes/no question, e.g. whether a missing
	// tool should be installed. Nil means "no" to everything.
	Confirm func(ctx context.Context, question string) bool
}
