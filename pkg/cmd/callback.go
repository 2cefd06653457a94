package cmd

import (
	"context"

	"github.com/buildforge/buildforge/pkg/models"
	"github.com/buildforge/buildforge/pkg/persistence"
	"github.com/buildforge/buildforge/pkg/protocol"
	"github.com/buildforge/buildforge/pkg/runner"
)

// NewRunCallback builds the trigger callback shared by the scheduler
// and the queue source: resolve the workflow and its repository
// binding, then start the run. A run already in progress surfaces as
// the engine's error.
func NewRunCallback(store persistence.Persistence, engine *runner.Runner) protocol.TriggerCallback {
	return func(ctx context.Context, workflowID string, data map[string]any) error {
		workflow, err := store.WorkflowByID(ctx, workflowID)
		if err != nil {
			return err
		}

		var repo *models.Repository
		if workflow.RepoID != "" {
			repo, err = store.RepositoryByID(ctx, workflow.RepoID)
			if err != nil {
				return err
			}
		}

		_, err = engine.Start(ctx, workflow, repo, data)

		return err
	}
}
