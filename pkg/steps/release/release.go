// Package release provides the create-release step handler.
package release

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/buildforge/buildforge/pkg/buildsys"
	"github.com/buildforge/buildforge/pkg/models"
	"github.com/buildforge/buildforge/pkg/protocol"
	"github.com/buildforge/buildforge/pkg/release"
)

// ErrNoRemote indicates the run has no repository with remote
// coordinates to publish a release to.
var ErrNoRemote = errors.New("repository has no remote coordinates")

// Handler publishes a release for the run's version: tag, remote
// release, asset uploads. Artifacts recorded by a preceding build step
// are preferred over fresh discovery.
type Handler struct {
	publisher *release.Publisher
	detect    func(path string) buildsys.System
}

func (h *Handler) Execute(ctx context.Context, rc *models.RunContext, node *models.WorkflowNode) (*models.StepOutput, error) {
	if rc.Repo == nil || rc.Repo.RemoteSlug() == "" {
		return nil, ErrNoRemote
	}

	version := node.ConfigString("version")
	if version == "" {
		version = rc.Version
	}

	if version == "" {
		return nil, errors.New("create-release requires a version")
	}

	var assets []string
	if built := rc.LastOutputOfType(models.StepBuild); built != nil {
		assets = built.Artifacts
	}

	rc.AppendLog(models.LogLevelInfo, node.ID, "Publishing release for version "+version)

	result, err := h.publisher.Publish(ctx, release.Request{
		Owner:   rc.Repo.Owner,
		Repo:    rc.Repo.Name,
		Dir:     rc.WorkDir,
		Version: version,
		Notes:   node.ConfigString("notes"),
		System:  h.detect(rc.WorkDir),
		Assets:  assets,
	})
	if err != nil {
		return nil, err
	}

	rc.AppendLog(models.LogLevelSuccess, node.ID,
		fmt.Sprintf("Release %s published, %d asset(s) uploaded", result.Tag, len(result.Uploaded)))

	for _, failed := range result.Failed {
		rc.AppendLog(models.LogLevelWarn, node.ID, "Upload failed for "+failed)
	}

	h.cleanupClone(rc, node)

	return &models.StepOutput{
		StepID:     node.ID,
		Type:       node.Type,
		ReleaseURL: result.URL,
		Artifacts:  result.Uploaded,
		Data:       map[string]any{"tag": result.Tag},
	}, nil
}

// cleanupClone removes the temporary checkout left by a preceding
// clone step. The release is already published, so failures only warn.
func (h *Handler) cleanupClone(rc *models.RunContext, node *models.WorkflowNode) {
	cloned := rc.LastOutputOfType(models.StepClone)
	if cloned == nil || cloned.WorkDir == "" {
		return
	}

	if err := os.RemoveAll(cloned.WorkDir); err != nil {
		rc.AppendLog(models.LogLevelWarn, node.ID, "Could not remove clone directory "+cloned.WorkDir)

		return
	}

	rc.AppendLog(models.LogLevelInfo, node.ID, "Removed clone directory "+cloned.WorkDir)
}

type factory struct{}

func (factory) Create(deps protocol.Dependencies) (protocol.StepHandler, error) {
	if deps.Publisher == nil {
		return nil, errors.New("create-release step requires a release publisher")
	}

	detect := deps.Detect
	if detect == nil {
		detect = buildsys.Detect
	}

	return &Handler{publisher: deps.Publisher, detect: detect}, nil
}

func (factory) ID() models.StepType { return models.StepCreateRelease }
func (factory) Name() string        { return "Create Release" }

func (factory) Description() string {
	return "Tags the repository, creates or reuses a remote release and uploads the build's artifacts"
}

func (factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"version": map[string]any{
				"type":        "string",
				"description": "Version to release. Defaults to the workflow's next version.",
			},
			"notes": map[string]any{
				"type":        "string",
				"description": "Release notes body",
			},
		},
	}
}

func NewFactory() protocol.StepFactory { return factory{} }
