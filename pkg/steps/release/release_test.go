package release

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildforge/buildforge/pkg/artifacts"
	"github.com/buildforge/buildforge/pkg/execx"
	"github.com/buildforge/buildforge/pkg/gitops"
	"github.com/buildforge/buildforge/pkg/hosting"
	"github.com/buildforge/buildforge/pkg/models"
	"github.com/buildforge/buildforge/pkg/protocol"
	"github.com/buildforge/buildforge/pkg/release"
)

type nullRunner struct{}

func (nullRunner) Run(_ context.Context, _ execx.Command) (string, error) { return "", nil }

type fakeHosting struct {
	uploaded []string
}

func (f *fakeHosting) ReleaseByTag(_ context.Context, _, _, _ string) (*hosting.Release, error) {
	return nil, hosting.ErrReleaseNotFound
}

func (f *fakeHosting) CreateRelease(_ context.Context, _, _, tag, _, _ string) (*hosting.Release, error) {
	return &hosting.Release{ID: 1, TagName: tag, HTMLURL: "https://example.com/r/" + tag}, nil
}

func (f *fakeHosting) UploadAsset(_ context.Context, _ *hosting.Release, path string) error {
	f.uploaded = append(f.uploaded, path)

	return nil
}

func testHandler(t *testing.T, host release.Hosting) protocol.StepHandler {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	publisher := release.NewPublisher(
		gitops.NewClient(nullRunner{}, logger),
		host,
		artifacts.NewLocator(logger),
		logger,
	)

	handler, err := NewFactory().Create(protocol.Dependencies{Publisher: publisher})
	require.NoError(t, err)

	return handler
}

func testRunContext(t *testing.T) *models.RunContext {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	workflow := &models.Workflow{ID: "wf", NextVersion: "1.2.0"}
	run := &models.Run{ID: "run", WorkflowID: "wf", Status: models.RunStatusRunning}
	repo := &models.Repository{ID: "repo", Path: "/tmp/repo", Owner: "acme", Name: "widget"}

	return models.NewRunContext(run, workflow, repo, t.TempDir(), logger)
}

func TestReleaseUsesBuildArtifacts(t *testing.T) {
	host := &fakeHosting{}
	handler := testHandler(t, host)

	rc := testRunContext(t)
	asset := filepath.Join(rc.WorkDir, "app.zip")
	require.NoError(t, os.WriteFile(asset, []byte("zip"), 0o644))

	rc.Workflow.Nodes = []*models.WorkflowNode{
		{ID: "build-1", Type: models.StepBuild, Enabled: true},
		{ID: "rel-1", Type: models.StepCreateRelease, Enabled: true},
	}
	rc.SetOutput(&models.StepOutput{StepID: "build-1", Type: models.StepBuild, Artifacts: []string{asset}})

	node := &models.WorkflowNode{ID: "rel-1", Type: models.StepCreateRelease}

	out, err := handler.Execute(context.Background(), rc, node)
	require.NoError(t, err)

	assert.Equal(t, "v1.2.0", out.Data["tag"])
	assert.Equal(t, "https://example.com/r/v1.2.0", out.ReleaseURL)
	assert.Equal(t, []string{asset}, host.uploaded)
}

func TestReleaseRemovesCloneDirectory(t *testing.T) {
	handler := testHandler(t, &fakeHosting{})

	rc := testRunContext(t)
	cloneDir := filepath.Join(t.TempDir(), "checkout")
	require.NoError(t, os.MkdirAll(filepath.Join(cloneDir, ".git"), 0o755))

	rc.Workflow.Nodes = []*models.WorkflowNode{
		{ID: "clone-1", Type: models.StepClone, Enabled: true},
		{ID: "rel-1", Type: models.StepCreateRelease, Enabled: true},
	}
	rc.SetOutput(&models.StepOutput{StepID: "clone-1", Type: models.StepClone, WorkDir: cloneDir})

	_, err := handler.Execute(context.Background(), rc, &models.WorkflowNode{ID: "rel-1", Type: models.StepCreateRelease})
	require.NoError(t, err)

	_, err = os.Stat(cloneDir)
	assert.True(t, os.IsNotExist(err))
}

func TestReleaseKeepsWorkDirWithoutClone(t *testing.T) {
	handler := testHandler(t, &fakeHosting{})

	rc := testRunContext(t)

	_, err := handler.Execute(context.Background(), rc, &models.WorkflowNode{ID: "rel-1", Type: models.StepCreateRelease})
	require.NoError(t, err)

	_, err = os.Stat(rc.WorkDir)
	assert.NoError(t, err)
}

func TestReleaseVersionOverride(t *testing.T) {
	handler := testHandler(t, &fakeHosting{})

	rc := testRunContext(t)
	node := &models.WorkflowNode{ID: "rel-1", Type: models.StepCreateRelease}
	node.SetConfig("version", "2.0 rc 1")

	out, err := handler.Execute(context.Background(), rc, node)
	require.NoError(t, err)
	assert.Equal(t, "v2.0-rc-1", out.Data["tag"])
}

func TestReleaseRequiresRemote(t *testing.T) {
	handler := testHandler(t, &fakeHosting{})

	rc := testRunContext(t)
	rc.Repo = &models.Repository{ID: "local", Path: "/tmp/x"}

	_, err := handler.Execute(context.Background(), rc, &models.WorkflowNode{ID: "rel-1", Type: models.StepCreateRelease})
	require.ErrorIs(t, err, ErrNoRemote)
}

func TestReleaseRequiresVersion(t *testing.T) {
	handler := testHandler(t, &fakeHosting{})

	rc := testRunContext(t)
	rc.Version = ""

	_, err := handler.Execute(context.Background(), rc, &models.WorkflowNode{ID: "rel-1", Type: models.StepCreateRelease})
	require.Error(t, err)
}
