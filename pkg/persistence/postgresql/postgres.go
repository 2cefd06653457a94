// Package postgresql implements persistence on PostgreSQL. Entity
// rows carry their node graphs and logs as JSONB so schema churn stays
// confined to the model structs.
package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/buildforge/buildforge/pkg/models"
	"github.com/buildforge/buildforge/pkg/persistence"
	"github.com/buildforge/buildforge/pkg/persistence/sqlbase"
)

// Store implements persistence.Persistence on a PostgreSQL database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore connects, runs pending migrations, and returns the store.
func NewStore(ctx context.Context, logger *slog.Logger, databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := sqlbase.NewMigrationManager(logger, db, migrations()).RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close(_ context.Context) error {
	if s.db == nil {
		return nil
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}

	return nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	return nil
}

func (s *Store) closeRows(ctx context.Context, rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to close rows", "error", err)
	}
}

// Workflows

const workflowColumns = `id, name, repo_id, nodes, connections, next_version, variables, created_at, updated_at`

func (s *Store) Workflows(ctx context.Context) ([]*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE deleted_at IS NULL ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, persistence.NewStoreError("Workflows", "workflow", "", err)
	}
	defer s.closeRows(ctx, rows)

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, persistence.NewStoreError("Workflows", "workflow", "", err)
		}

		workflows = append(workflows, workflow)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError("Workflows", "workflow", "", err)
	}

	return workflows, nil
}

func (s *Store) WorkflowByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE id = $1 AND deleted_at IS NULL`

	workflow, err := scanWorkflow(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("WorkflowByID", "workflow", id, persistence.ErrWorkflowNotFound)
		}

		return nil, persistence.NewStoreError("WorkflowByID", "workflow", id, err)
	}

	return workflow, nil
}

func (s *Store) SaveWorkflow(ctx context.Context, workflow *models.Workflow) error {
	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	if workflow.ID == "" {
		workflow.ID = uuid.NewString()
	}

	nodesJSON, err := json.Marshal(workflow.Nodes)
	if err != nil {
		return persistence.NewStoreError("SaveWorkflow", "workflow", workflow.ID, err)
	}

	connectionsJSON, err := json.Marshal(workflow.Connections)
	if err != nil {
		return persistence.NewStoreError("SaveWorkflow", "workflow", workflow.ID, err)
	}

	variablesJSON, err := json.Marshal(workflow.Variables)
	if err != nil {
		return persistence.NewStoreError("SaveWorkflow", "workflow", workflow.ID, err)
	}

	query := `
		INSERT INTO workflows (id, name, repo_id, nodes, connections, next_version, variables, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			repo_id = EXCLUDED.repo_id,
			nodes = EXCLUDED.nodes,
			connections = EXCLUDED.connections,
			next_version = EXCLUDED.next_version,
			variables = EXCLUDED.variables,
			updated_at = EXCLUDED.updated_at,
			deleted_at = NULL
	`

	_, err = s.db.ExecContext(ctx, query,
		workflow.ID, workflow.Name, workflow.RepoID,
		nodesJSON, connectionsJSON, workflow.NextVersion, variablesJSON,
		workflow.CreatedAt, workflow.UpdatedAt)
	if err != nil {
		return persistence.NewStoreError("SaveWorkflow", "workflow", workflow.ID, err)
	}

	return nil
}

// DeleteWorkflow soft deletes so run history keeps a valid parent.
func (s *Store) DeleteWorkflow(ctx context.Context, id string) error {
	query := `UPDATE workflows SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`

	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return persistence.NewStoreError("DeleteWorkflow", "workflow", id, err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*models.Workflow, error) {
	var (
		workflow        models.Workflow
		nodesJSON       []byte
		connectionsJSON []byte
		variablesJSON   []byte
	)

	err := row.Scan(&workflow.ID, &workflow.Name, &workflow.RepoID,
		&nodesJSON, &connectionsJSON, &workflow.NextVersion, &variablesJSON,
		&workflow.CreatedAt, &workflow.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(nodesJSON, &workflow.Nodes); err != nil {
		return nil, fmt.Errorf("decode nodes: %w", err)
	}

	if err := json.Unmarshal(connectionsJSON, &workflow.Connections); err != nil {
		return nil, fmt.Errorf("decode connections: %w", err)
	}

	if err := json.Unmarshal(variablesJSON, &workflow.Variables); err != nil {
		return nil, fmt.Errorf("decode variables: %w", err)
	}

	return &workflow, nil
}

// Actions

const actionColumns = `id, name, description, script, inputs, created_at, updated_at`

func (s *Store) Actions(ctx context.Context) ([]*models.Action, error) {
	query := `SELECT ` + actionColumns + ` FROM actions ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, persistence.NewStoreError("Actions", "action", "", err)
	}
	defer s.closeRows(ctx, rows)

	actions := make([]*models.Action, 0)

	for rows.Next() {
		action, err := scanAction(rows)
		if err != nil {
			return nil, persistence.NewStoreError("Actions", "action", "", err)
		}

		actions = append(actions, action)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError("Actions", "action", "", err)
	}

	return actions, nil
}

func (s *Store) ActionByID(ctx context.Context, id string) (*models.Action, error) {
	query := `SELECT ` + actionColumns + ` FROM actions WHERE id = $1`

	return s.actionBy(ctx, "ActionByID", query, id)
}

func (s *Store) ActionByName(ctx context.Context, name string) (*models.Action, error) {
	query := `SELECT ` + actionColumns + ` FROM actions WHERE name = $1`

	return s.actionBy(ctx, "ActionByName", query, name)
}

func (s *Store) actionBy(ctx context.Context, op, query, arg string) (*models.Action, error) {
	action, err := scanAction(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError(op, "action", arg, persistence.ErrActionNotFound)
		}

		return nil, persistence.NewStoreError(op, "action", arg, err)
	}

	return action, nil
}

func (s *Store) SaveAction(ctx context.Context, action *models.Action) error {
	now := time.Now().UTC()
	if action.CreatedAt.IsZero() {
		action.CreatedAt = now
	}

	action.UpdatedAt = now

	if action.ID == "" {
		action.ID = uuid.NewString()
	}

	inputsJSON, err := json.Marshal(action.Inputs)
	if err != nil {
		return persistence.NewStoreError("SaveAction", "action", action.ID, err)
	}

	query := `
		INSERT INTO actions (id, name, description, script, inputs, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			script = EXCLUDED.script,
			inputs = EXCLUDED.inputs,
			updated_at = EXCLUDED.updated_at
	`

	_, err = s.db.ExecContext(ctx, query,
		action.ID, action.Name, action.Description, action.Script,
		inputsJSON, action.CreatedAt, action.UpdatedAt)
	if err != nil {
		return persistence.NewStoreError("SaveAction", "action", action.ID, err)
	}

	return nil
}

func (s *Store) DeleteAction(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM actions WHERE id = $1`, id); err != nil {
		return persistence.NewStoreError("DeleteAction", "action", id, err)
	}

	return nil
}

func scanAction(row rowScanner) (*models.Action, error) {
	var (
		action     models.Action
		inputsJSON []byte
	)

	err := row.Scan(&action.ID, &action.Name, &action.Description, &action.Script,
		&inputsJSON, &action.CreatedAt, &action.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(inputsJSON, &action.Inputs); err != nil {
		return nil, fmt.Errorf("decode inputs: %w", err)
	}

	return &action, nil
}

// Repositories

const repositoryColumns = `id, path, owner, name, default_branch, build_system, latest_tag, cloned_at`

func (s *Store) Repositories(ctx context.Context) ([]*models.Repository, error) {
	query := `SELECT ` + repositoryColumns + ` FROM repositories ORDER BY path`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, persistence.NewStoreError("Repositories", "repository", "", err)
	}
	defer s.closeRows(ctx, rows)

	repos := make([]*models.Repository, 0)

	for rows.Next() {
		repo, err := scanRepository(rows)
		if err != nil {
			return nil, persistence.NewStoreError("Repositories", "repository", "", err)
		}

		repos = append(repos, repo)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError("Repositories", "repository", "", err)
	}

	return repos, nil
}

func (s *Store) RepositoryByID(ctx context.Context, id string) (*models.Repository, error) {
	query := `SELECT ` + repositoryColumns + ` FROM repositories WHERE id = $1`

	repo, err := scanRepository(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("RepositoryByID", "repository", id, persistence.ErrRepositoryNotFound)
		}

		return nil, persistence.NewStoreError("RepositoryByID", "repository", id, err)
	}

	return repo, nil
}

func (s *Store) SaveRepository(ctx context.Context, repo *models.Repository) error {
	if repo.ID == "" {
		repo.ID = uuid.NewString()
	}

	query := `
		INSERT INTO repositories (id, path, owner, name, default_branch, build_system, latest_tag, cloned_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			path = EXCLUDED.path,
			owner = EXCLUDED.owner,
			name = EXCLUDED.name,
			default_branch = EXCLUDED.default_branch,
			build_system = EXCLUDED.build_system,
			latest_tag = EXCLUDED.latest_tag,
			cloned_at = EXCLUDED.cloned_at
	`

	_, err := s.db.ExecContext(ctx, query,
		repo.ID, repo.Path, repo.Owner, repo.Name,
		repo.DefaultBranch, repo.BuildSystem, repo.LatestTag, repo.ClonedAt)
	if err != nil {
		return persistence.NewStoreError("SaveRepository", "repository", repo.ID, err)
	}

	return nil
}

func (s *Store) DeleteRepository(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM repositories WHERE id = $1`, id); err != nil {
		return persistence.NewStoreError("DeleteRepository", "repository", id, err)
	}

	return nil
}

func scanRepository(row rowScanner) (*models.Repository, error) {
	var repo models.Repository

	err := row.Scan(&repo.ID, &repo.Path, &repo.Owner, &repo.Name,
		&repo.DefaultBranch, &repo.BuildSystem, &repo.LatestTag, &repo.ClonedAt)
	if err != nil {
		return nil, err
	}

	return &repo, nil
}

// Run records

func (s *Store) RunRecords(ctx context.Context, workflowID string) ([]*models.RunRecord, error) {
	query := `
		SELECT id, workflow_id, status, started_at, finished_at, duration_ms, log
		FROM run_records
		WHERE workflow_id = $1
		ORDER BY started_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, persistence.NewStoreError("RunRecords", "run", workflowID, err)
	}
	defer s.closeRows(ctx, rows)

	records := make([]*models.RunRecord, 0)

	for rows.Next() {
		var (
			record  models.RunRecord
			logJSON []byte
		)

		err := rows.Scan(&record.ID, &record.WorkflowID, &record.Status,
			&record.StartedAt, &record.FinishedAt, &record.DurationMS, &logJSON)
		if err != nil {
			return nil, persistence.NewStoreError("RunRecords", "run", workflowID, err)
		}

		if err := json.Unmarshal(logJSON, &record.Log); err != nil {
			return nil, persistence.NewStoreError("RunRecords", "run", record.ID, err)
		}

		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError("RunRecords", "run", workflowID, err)
	}

	return records, nil
}

func (s *Store) SaveRunRecord(ctx context.Context, record *models.RunRecord) error {
	logJSON, err := json.Marshal(record.Log)
	if err != nil {
		return persistence.NewStoreError("SaveRunRecord", "run", record.ID, err)
	}

	query := `
		INSERT INTO run_records (id, workflow_id, status, started_at, finished_at, duration_ms, log)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			finished_at = EXCLUDED.finished_at,
			duration_ms = EXCLUDED.duration_ms,
			log = EXCLUDED.log
	`

	_, err = s.db.ExecContext(ctx, query,
		record.ID, record.WorkflowID, record.Status,
		record.StartedAt, record.FinishedAt, record.DurationMS, logJSON)
	if err != nil {
		return persistence.NewStoreError("SaveRunRecord", "run", record.ID, err)
	}

	return nil
}
