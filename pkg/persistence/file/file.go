// Package file implements persistence on top of plain JSON documents,
// one file per entity. It is the default store for single-user desktop
// installs and needs no external service.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/buildforge/buildforge/pkg/models"
	"github.com/buildforge/buildforge/pkg/persistence"
)

const (
	workflowsDir    = "workflows"
	actionsDir      = "actions"
	repositoriesDir = "repositories"
	runsDir         = "runs"
)

// Store keeps every entity as <root>/<kind>/<id>.json. Run records
// nest one level deeper under the workflow id.
type Store struct {
	root string
}

// NewStore creates a store rooted at the given directory. A file://
// scheme prefix is stripped so URLs from configuration work directly.
func NewStore(root string) *Store {
	return &Store{root: strings.TrimPrefix(root, "file://")}
}

func (s *Store) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(s.root); err != nil {
		return fmt.Errorf("storage root %s: %w", s.root, err)
	}

	return nil
}

func (s *Store) Close(_ context.Context) error {
	return nil
}

// Workflows

func (s *Store) Workflows(ctx context.Context) ([]*models.Workflow, error) {
	ids, err := s.listIDs(workflowsDir)
	if err != nil {
		return nil, persistence.NewStoreError("Workflows", "workflow", "", err)
	}

	workflows := make([]*models.Workflow, 0, len(ids))

	for _, id := range ids {
		workflow, err := s.WorkflowByID(ctx, id)
		if err != nil {
			return nil, err
		}

		workflows = append(workflows, workflow)
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.Before(workflows[j].CreatedAt)
	})

	return workflows, nil
}

func (s *Store) WorkflowByID(_ context.Context, id string) (*models.Workflow, error) {
	var workflow models.Workflow
	if err := s.read(workflowsDir, id, &workflow); err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewStoreError("WorkflowByID", "workflow", id, persistence.ErrWorkflowNotFound)
		}

		return nil, persistence.NewStoreError("WorkflowByID", "workflow", id, err)
	}

	return &workflow, nil
}

func (s *Store) SaveWorkflow(_ context.Context, workflow *models.Workflow) error {
	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	if err := s.write(workflowsDir, workflow.ID, workflow); err != nil {
		return persistence.NewStoreError("SaveWorkflow", "workflow", workflow.ID, err)
	}

	return nil
}

func (s *Store) DeleteWorkflow(_ context.Context, id string) error {
	if err := s.remove(workflowsDir, id); err != nil {
		return persistence.NewStoreError("DeleteWorkflow", "workflow", id, err)
	}

	// Run history for a deleted workflow goes with it.
	_ = os.RemoveAll(filepath.Join(s.root, runsDir, id))

	return nil
}

// Actions

func (s *Store) Actions(ctx context.Context) ([]*models.Action, error) {
	ids, err := s.listIDs(actionsDir)
	if err != nil {
		return nil, persistence.NewStoreError("Actions", "action", "", err)
	}

	actions := make([]*models.Action, 0, len(ids))

	for _, id := range ids {
		action, err := s.ActionByID(ctx, id)
		if err != nil {
			return nil, err
		}

		actions = append(actions, action)
	}

	sort.Slice(actions, func(i, j int) bool {
		return actions[i].Name < actions[j].Name
	})

	return actions, nil
}

func (s *Store) ActionByID(_ context.Context, id string) (*models.Action, error) {
	var action models.Action
	if err := s.read(actionsDir, id, &action); err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewStoreError("ActionByID", "action", id, persistence.ErrActionNotFound)
		}

		return nil, persistence.NewStoreError("ActionByID", "action", id, err)
	}

	return &action, nil
}

func (s *Store) ActionByName(ctx context.Context, name string) (*models.Action, error) {
	actions, err := s.Actions(ctx)
	if err != nil {
		return nil, err
	}

	for _, action := range actions {
		if action.Name == name {
			return action, nil
		}
	}

	return nil, persistence.NewStoreError("ActionByName", "action", name, persistence.ErrActionNotFound)
}

func (s *Store) SaveAction(_ context.Context, action *models.Action) error {
	now := time.Now().UTC()
	if action.CreatedAt.IsZero() {
		action.CreatedAt = now
	}

	action.UpdatedAt = now

	if err := s.write(actionsDir, action.ID, action); err != nil {
		return persistence.NewStoreError("SaveAction", "action", action.ID, err)
	}

	return nil
}

func (s *Store) DeleteAction(_ context.Context, id string) error {
	if err := s.remove(actionsDir, id); err != nil {
		return persistence.NewStoreError("DeleteAction", "action", id, err)
	}

	return nil
}

// Repositories

func (s *Store) Repositories(ctx context.Context) ([]*models.Repository, error) {
	ids, err := s.listIDs(repositoriesDir)
	if err != nil {
		return nil, persistence.NewStoreError("Repositories", "repository", "", err)
	}

	repos := make([]*models.Repository, 0, len(ids))

	for _, id := range ids {
		repo, err := s.RepositoryByID(ctx, id)
		if err != nil {
			return nil, err
		}

		repos = append(repos, repo)
	}

	sort.Slice(repos, func(i, j int) bool {
		return repos[i].Path < repos[j].Path
	})

	return repos, nil
}

func (s *Store) RepositoryByID(_ context.Context, id string) (*models.Repository, error) {
	var repo models.Repository
	if err := s.read(repositoriesDir, id, &repo); err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewStoreError("RepositoryByID", "repository", id, persistence.ErrRepositoryNotFound)
		}

		return nil, persistence.NewStoreError("RepositoryByID", "repository", id, err)
	}

	return &repo, nil
}

func (s *Store) SaveRepository(_ context.Context, repo *models.Repository) error {
	if err := s.write(repositoriesDir, repo.ID, repo); err != nil {
		return persistence.NewStoreError("SaveRepository", "repository", repo.ID, err)
	}

	return nil
}

func (s *Store) DeleteRepository(_ context.Context, id string) error {
	if err := s.remove(repositoriesDir, id); err != nil {
		return persistence.NewStoreError("DeleteRepository", "repository", id, err)
	}

	return nil
}

// Run records

func (s *Store) RunRecords(_ context.Context, workflowID string) ([]*models.RunRecord, error) {
	dir := filepath.Join(runsDir, workflowID)

	ids, err := s.listIDs(dir)
	if err != nil {
		return nil, persistence.NewStoreError("RunRecords", "run", workflowID, err)
	}

	records := make([]*models.RunRecord, 0, len(ids))

	for _, id := range ids {
		var record models.RunRecord
		if err := s.read(dir, id, &record); err != nil {
			return nil, persistence.NewStoreError("RunRecords", "run", id, err)
		}

		records = append(records, &record)
	}

	// Most recent first.
	sort.Slice(records, func(i, j int) bool {
		return records[i].StartedAt.After(records[j].StartedAt)
	})

	return records, nil
}

func (s *Store) SaveRunRecord(_ context.Context, record *models.RunRecord) error {
	dir := filepath.Join(runsDir, record.WorkflowID)
	if err := s.write(dir, record.ID, record); err != nil {
		return persistence.NewStoreError("SaveRunRecord", "run", record.ID, err)
	}

	return nil
}

// Document helpers

func (s *Store) listIDs(kind string) ([]string, error) {
	dir := filepath.Join(s.root, kind)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}

	files, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}

	ids := make([]string, 0, len(files))
	for _, file := range files {
		ids = append(ids, strings.TrimSuffix(file, ".json"))
	}

	return ids, nil
}

func (s *Store) read(kind, id string, out any) error {
	path := filepath.Clean(filepath.Join(s.root, kind, id+".json"))

	body, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	return nil
}

func (s *Store) write(kind, id string, doc any) error {
	dir := filepath.Join(s.root, kind)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", id, err)
	}

	return os.WriteFile(filepath.Join(dir, id+".json"), data, 0600)
}

func (s *Store) remove(kind, id string) error {
	err := os.Remove(filepath.Join(s.root, kind, id+".json"))
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	return nil
}
