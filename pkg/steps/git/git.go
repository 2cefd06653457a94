// Package git provides the source-control step handlers: clone, pull,
// sync-and-push, push, checkout and commit.
package git

import (
	"context"
	"errors"
	"fmt"

	"github.com/buildforge/buildforge/pkg/gitops"
	"github.com/buildforge/buildforge/pkg/models"
	"github.com/buildforge/buildforge/pkg/protocol"
)

// ErrNoRemoteURL indicates a clone step had neither a configured URL
// nor a repository with remote coordinates.
var ErrNoRemoteURL = errors.New("no remote URL to clone")

// branchFor resolves the branch a step operates on: explicit config
// first, then the bound repository's default, then "main".
func branchFor(node *models.WorkflowNode, rc *models.RunContext) string {
	if branch := node.ConfigString("branch"); branch != "" {
		return branch
	}

	if rc.Repo != nil && rc.Repo.DefaultBranch != "" {
		return rc.Repo.DefaultBranch
	}

	return "main"
}

// CloneHandler clones the repository into a fresh temporary directory
// and points the rest of the run at it.
type CloneHandler struct {
	git *gitops.Client
}

func (h *CloneHandler) Execute(ctx context.Context, rc *models.RunContext, node *models.WorkflowNode) (*models.StepOutput, error) {
	url := node.ConfigString("url")
	if url == "" && rc.Repo != nil && rc.Repo.RemoteSlug() != "" {
		url = "https://github.com/" + rc.Repo.RemoteSlug() + ".git"
	}

	if url == "" {
		return nil, ErrNoRemoteURL
	}

	rc.AppendLog(models.LogLevelInfo, node.ID, "Cloning "+url)

	dir, err := h.git.Clone(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("clone failed: %w", err)
	}

	rc.AppendLog(models.LogLevelSuccess, node.ID, "Cloned into "+dir)

	return &models.StepOutput{StepID: node.ID, Type: node.Type, WorkDir: dir}, nil
}

// PullHandler discards local drift and resets the working tree to the
// remote branch head.
type PullHandler struct {
	git *gitops.Client
}

func (h *PullHandler) Execute(ctx context.Context, rc *models.RunContext, node *models.WorkflowNode) (*models.StepOutput, error) {
	branch := branchFor(node, rc)

	rc.AppendLog(models.LogLevelInfo, node.ID, "Pulling origin/"+branch)

	if err := h.git.Pull(ctx, rc.WorkDir, branch); err != nil {
		return nil, err
	}

	return &models.StepOutput{StepID: node.ID, Type: node.Type, WorkDir: rc.WorkDir}, nil
}

// SyncAndPushHandler rebases local commits onto the remote branch and
// pushes, falling back to a force-with-lease when the push is still
// rejected.
type SyncAndPushHandler struct {
	git *gitops.Client
}

func (h *SyncAndPushHandler) Execute(ctx context.Context, rc *models.RunContext, node *models.WorkflowNode) (*models.StepOutput, error) {
	branch := branchFor(node, rc)

	rc.AppendLog(models.LogLevelInfo, node.ID, "Syncing with origin/"+branch)

	if err := h.git.SyncAndPush(ctx, rc.WorkDir, branch); err != nil {
		return nil, err
	}

	rc.AppendLog(models.LogLevelSuccess, node.ID, "Branch "+branch+" synced and pushed")

	return &models.StepOutput{StepID: node.ID, Type: node.Type}, nil
}

// PushHandler pushes the branch, recovering from a rejected push with
// one rebase-and-retry round.
type PushHandler struct {
	git *gitops.Client
}

func (h *PushHandler) Execute(ctx context.Context, rc *models.RunContext, node *models.WorkflowNode) (*models.StepOutput, error) {
	branch := branchFor(node, rc)

	rc.AppendLog(models.LogLevelCommand, node.ID, "git push origin "+branch)

	if err := h.git.PushWithRebaseRetry(ctx, rc.WorkDir, branch); err != nil {
		return nil, err
	}

	return &models.StepOutput{StepID: node.ID, Type: node.Type}, nil
}

// CheckoutHandler switches branch, creating the tracking branch when
// it only exists on the remote.
type CheckoutHandler struct {
	git *gitops.Client
}

func (h *CheckoutHandler) Execute(ctx context.Context, rc *models.RunContext, node *models.WorkflowNode) (*models.StepOutput, error) {
	branch := node.ConfigString("branch")
	if branch == "" {
		return nil, errors.New("checkout requires a branch")
	}

	rc.AppendLog(models.LogLevelInfo, node.ID, "Checking out "+branch)

	if err := h.git.Checkout(ctx, rc.WorkDir, branch); err != nil {
		return nil, err
	}

	return &models.StepOutput{StepID: node.ID, Type: node.Type, Data: map[string]any{"branch": branch}}, nil
}

// CommitHandler stages everything and commits. A clean working tree
// is not a failure: the step records a warning and succeeds, so
// workflows re-run safely when nothing changed.
type CommitHandler struct {
	git *gitops.Client
}

func (h *CommitHandler) Execute(ctx context.Context, rc *models.RunContext, node *models.WorkflowNode) (*models.StepOutput, error) {
	message := node.ConfigString("message")
	if message == "" {
		message = "Automated commit"
	}

	err := h.git.CommitAll(ctx, rc.WorkDir, message)

	switch {
	case errors.Is(err, gitops.ErrNothingToCommit):
		rc.AppendLog(models.LogLevelWarn, node.ID, "Nothing to commit, working tree clean")

		return &models.StepOutput{StepID: node.ID, Type: node.Type, Data: map[string]any{"committed": false}}, nil
	case err != nil:
		return nil, err
	}

	rc.AppendLog(models.LogLevelSuccess, node.ID, "Committed: "+message)

	return &models.StepOutput{StepID: node.ID, Type: node.Type, Data: map[string]any{"committed": true}}, nil
}

type factory struct {
	id          models.StepType
	name        string
	description string
	schema      map[string]any
	build       func(deps protocol.Dependencies) protocol.StepHandler
}

func (f *factory) Create(deps protocol.Dependencies) (protocol.StepHandler, error) {
	if deps.Git == nil {
		return nil, errors.New("git step requires a git client")
	}

	return f.build(deps), nil
}

func (f *factory) ID() models.StepType    { return f.id }
func (f *factory) Name() string           { return f.name }
func (f *factory) Description() string    { return f.description }
func (f *factory) Schema() map[string]any { return f.schema }

func branchSchema(required bool) map[string]any {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"branch": map[string]any{
				"type":        "string",
				"description": "Branch to operate on. Defaults to the repository's default branch.",
			},
		},
	}

	if required {
		schema["required"] = []string{"branch"}
	}

	return schema
}

func NewCloneFactory() protocol.StepFactory {
	return &factory{
		id:          models.StepClone,
		name:        "Clone",
		description: "Clones the repository into a fresh temporary directory; later steps run there",
		schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{
					"type":        "string",
					"description": "Remote URL. Defaults to the bound repository's remote.",
				},
			},
		},
		build: func(deps protocol.Dependencies) protocol.StepHandler { return &CloneHandler{git: deps.Git} },
	}
}

func NewPullFactory() protocol.StepFactory {
	return &factory{
		id:          models.StepPull,
		name:        "Pull",
		description: "Fetches and hard-resets the working tree to the remote branch head",
		schema:      branchSchema(false),
		build:       func(deps protocol.Dependencies) protocol.StepHandler { return &PullHandler{git: deps.Git} },
	}
}

func NewSyncAndPushFactory() protocol.StepFactory {
	return &factory{
		id:          models.StepSyncAndPush,
		name:        "Sync and Push",
		description: "Rebases local commits onto the remote branch and pushes",
		schema:      branchSchema(false),
		build:       func(deps protocol.Dependencies) protocol.StepHandler { return &SyncAndPushHandler{git: deps.Git} },
	}
}

func NewPushFactory() protocol.StepFactory {
	return &factory{
		id:          models.StepPush,
		name:        "Push",
		description: "Pushes the branch, recovering from rejected pushes with a rebase and retry",
		schema:      branchSchema(false),
		build:       func(deps protocol.Dependencies) protocol.StepHandler { return &PushHandler{git: deps.Git} },
	}
}

func NewCheckoutFactory() protocol.StepFactory {
	return &factory{
		id:          models.StepCheckout,
		name:        "Checkout",
		description: "Switches to a branch, creating a tracking branch for remote-only branches",
		schema:      branchSchema(true),
		build:       func(deps protocol.Dependencies) protocol.StepHandler { return &CheckoutHandler{git: deps.Git} },
	}
}

func NewCommitFactory() protocol.StepFactory {
	return &factory{
		id:          models.StepCommit,
		name:        "Commit",
		description: "Stages all changes and commits; a clean tree is a warning, not a failure",
		schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message": map[string]any{
					"type":        "string",
					"description": "Commit message",
					"default":     "Automated commit",
				},
			},
		},
		build: func(deps protocol.Dependencies) protocol.StepHandler { return &CommitHandler{git: deps.Git} },
	}
}
