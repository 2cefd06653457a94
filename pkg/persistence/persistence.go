// Package persistence provides the data storage abstraction for
// workflows, actions, repository bindings and run history.
package persistence

import (
	"context"

	"github.com/buildforge/buildforge/pkg/models"
)

type Persistence interface {
	Workflows(ctx context.Context) ([]*models.Workflow, error)
	SaveWorkflow(ctx context.Context, workflow *models.Workflow) error
	WorkflowByID(ctx context.Context, id string) (*models.Workflow, error)
	DeleteWorkflow(ctx context.Context, id string) error

	Actions(ctx context.Context) ([]*models.Action, error)
	SaveAction(ctx context.Context, action *models.Action) error
	ActionByID(ctx context.Context, id string) (*models.Action, error)
	ActionByName(ctx context.Context, name string) (*models.Action, error)
	DeleteAction(ctx context.Context, id string) error

	Repositories(ctx context.Context) ([]*models.Repository, error)
	SaveRepository(ctx context.Context, repo *models.Repository) error
	RepositoryByID(ctx context.Context, id string) (*models.Repository, error)
	DeleteRepository(ctx context.Context, id string) error

	RunRecords(ctx context.Context, workflowID string) ([]*models.RunRecord, error)
	SaveRunRecord(ctx context.Context, record *models.RunRecord) error

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
