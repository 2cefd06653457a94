// Package web provides the REST API surface: request DTOs, fiber
// handlers and RFC 7807 error responses.
package web

import "github.com/buildforge/buildforge/pkg/models"

// CreateWorkflowRequest carries the full node graph; the canvas saves
// workflows as whole documents.
type CreateWorkflowRequest struct {
	Name        string                 `json:"name"         validate:"required,min=3"`
	RepoID      string                 `json:"repo_id"`
	Nodes       []*models.WorkflowNode `json:"nodes"`
	Connections []*models.Connection   `json:"connections"`
	NextVersion string                 `json:"next_version"`
	Variables   map[string]any         `json:"variables"`
}

// UpdateWorkflowRequest supports partial updates. A nil field leaves
// the stored value untouched.
type UpdateWorkflowRequest struct {
	Name        *string                `json:"name,omitempty"         validate:"omitempty,min=3"`
	RepoID      *string                `json:"repo_id,omitempty"`
	Nodes       []*models.WorkflowNode `json:"nodes,omitempty"`
	Connections []*models.Connection   `json:"connections,omitempty"`
	NextVersion *string                `json:"next_version,omitempty"`
	Variables   map[string]any         `json:"variables,omitempty"`
}

type CreateActionRequest struct {
	Name        string               `json:"name"        validate:"required,min=1"`
	Description string               `json:"description"`
	Script      string               `json:"script"      validate:"required"`
	Inputs      []models.ActionInput `json:"inputs"`
}

type UpdateActionRequest struct {
	Name        *string              `json:"name,omitempty"   validate:"omitempty,min=1"`
	Description *string              `json:"description,omitempty"`
	Script      *string              `json:"script,omitempty" validate:"omitempty,min=1"`
	Inputs      []models.ActionInput `json:"inputs,omitempty"`
}

// BindRepositoryRequest registers a local checkout. The build system
// is detected from the path on bind.
type BindRepositoryRequest struct {
	Path          string `json:"path"           validate:"required"`
	Owner         string `json:"owner"`
	Name          string `json:"name"`
	DefaultBranch string `json:"default_branch"`
}

// StartRunRequest optionally overrides trigger data for a manual run.
type StartRunRequest struct {
	Data map[string]any `json:"data,omitempty"`
}

// StepTypeResponse describes one catalog entry for the canvas palette.
type StepTypeResponse struct {
	Type        models.StepType `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      map[string]any  `json:"schema,omitempty"`
}
