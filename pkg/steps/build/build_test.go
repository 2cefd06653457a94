package build

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildforge/buildforge/pkg/artifacts"
	"github.com/buildforge/buildforge/pkg/backend"
	"github.com/buildforge/buildforge/pkg/buildsys"
	"github.com/buildforge/buildforge/pkg/execx"
	"github.com/buildforge/buildforge/pkg/models"
	"github.com/buildforge/buildforge/pkg/protocol"
)

type scriptedRunner struct {
	mu      sync.Mutex
	calls   []string
	handler func(cmd execx.Command, call string) (string, error)
}

func (f *scriptedRunner) Run(_ context.Context, cmd execx.Command) (string, error) {
	call := cmd.Name + " " + strings.Join(cmd.Args, " ")

	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()

	if f.handler != nil {
		return f.handler(cmd, call)
	}

	return "", nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDeps(runner *scriptedRunner, system buildsys.System) protocol.Dependencies {
	logger := testLogger()

	return protocol.Dependencies{
		Logger:  logger,
		Exec:    runner,
		Locator: artifacts.NewLocator(logger),
		Router: backend.NewRouter(
			backend.NewLocal(runner),
			backend.NewContainer(runner, "", logger),
			backend.NewCross(runner, logger),
			logger,
		),
		Detect: func(string) buildsys.System { return system },
	}
}

func testRunContext(t *testing.T) *models.RunContext {
	t.Helper()

	workflow := &models.Workflow{ID: "wf"}
	run := &models.Run{ID: "run", WorkflowID: "wf", Status: models.RunStatusRunning}

	return models.NewRunContext(run, workflow, nil, t.TempDir(), testLogger())
}

func TestBuildLocalTarget(t *testing.T) {
	runner := &scriptedRunner{}

	handler, err := NewBuildFactory().Create(testDeps(runner, buildsys.SystemGo))
	require.NoError(t, err)

	rc := testRunContext(t)
	node := &models.WorkflowNode{ID: "build-1", Type: models.StepBuild, Enabled: true}

	out, err := handler.Execute(context.Background(), rc, node)
	require.NoError(t, err)

	assert.Equal(t, "go build ./...", out.Data["command"])
	assert.Contains(t, runner.calls, "sh -c go build ./...")

	local, ok := out.Data["local"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, local["ok"])
}

func TestBuildCommandOverride(t *testing.T) {
	runner := &scriptedRunner{}

	handler, err := NewBuildFactory().Create(testDeps(runner, buildsys.SystemUnknown))
	require.NoError(t, err)

	node := &models.WorkflowNode{ID: "build-1", Type: models.StepBuild}
	node.SetConfig("command", "make dist")

	_, err = handler.Execute(context.Background(), testRunContext(t), node)
	require.NoError(t, err)
	assert.Contains(t, runner.calls, "sh -c make dist")
}

func TestBuildUnresolvedCommand(t *testing.T) {
	handler, err := NewBuildFactory().Create(testDeps(&scriptedRunner{}, buildsys.SystemUnknown))
	require.NoError(t, err)

	_, err = handler.Execute(context.Background(), testRunContext(t), &models.WorkflowNode{ID: "b", Type: models.StepBuild})
	require.ErrorIs(t, err, ErrCommandUnresolved)
}

func TestBuildAllTargetsToleratesPartialFailure(t *testing.T) {
	// No docker on this host, so the fan-out lands on the cross
	// backend, which sets GOOS per target. Only the windows build
	// fails; the step still succeeds with a per-target slot each.
	runner := &scriptedRunner{handler: func(cmd execx.Command, call string) (string, error) {
		if strings.Contains(call, "docker info") {
			return "", errors.New("docker not found")
		}

		for _, env := range cmd.Env {
			if env == "GOOS=windows" {
				return "", &execx.ExecError{Name: "sh", ExitCode: 1, Stderr: "link error"}
			}
		}

		return "", nil
	}}

	handler, err := NewBuildFactory().Create(testDeps(runner, buildsys.SystemGo))
	require.NoError(t, err)

	rc := testRunContext(t)
	node := &models.WorkflowNode{ID: "build-1", Type: models.StepBuild}
	node.SetConfig("target", "all")

	out, err := handler.Execute(context.Background(), rc, node)
	require.NoError(t, err)

	for _, target := range backend.SupportedTargets() {
		slot, ok := out.Data[string(target)].(map[string]any)
		require.True(t, ok, "missing slot for %s", target)

		if target == backend.TargetWindowsAmd64 {
			assert.Equal(t, false, slot["ok"])
		} else {
			assert.Equal(t, true, slot["ok"])
		}
	}

	entries := rc.Run.Entries()

	var warned bool

	for _, entry := range entries {
		if entry.Level == models.LogLevelWarn && strings.Contains(entry.Message, "windows/amd64") {
			warned = true
		}
	}

	assert.True(t, warned)
}

func TestBuildInvalidTarget(t *testing.T) {
	handler, err := NewBuildFactory().Create(testDeps(&scriptedRunner{}, buildsys.SystemGo))
	require.NoError(t, err)

	node := &models.WorkflowNode{ID: "b", Type: models.StepBuild}
	node.SetConfig("target", "plan9/386")

	_, err = handler.Execute(context.Background(), testRunContext(t), node)
	require.Error(t, err)
}

func TestTestStepFailsOnNonZeroExit(t *testing.T) {
	runner := &scriptedRunner{handler: func(execx.Command, string) (string, error) {
		return "", &execx.ExecError{Name: "sh", ExitCode: 1, Stderr: "FAIL"}
	}}

	handler, err := NewTestFactory().Create(testDeps(runner, buildsys.SystemGo))
	require.NoError(t, err)

	_, err = handler.Execute(context.Background(), testRunContext(t), &models.WorkflowNode{ID: "t", Type: models.StepTest})
	require.Error(t, err)
}

func TestTestStepRunsDetectedCommand(t *testing.T) {
	runner := &scriptedRunner{}

	handler, err := NewTestFactory().Create(testDeps(runner, buildsys.SystemGo))
	require.NoError(t, err)

	out, err := handler.Execute(context.Background(), testRunContext(t), &models.WorkflowNode{ID: "t", Type: models.StepTest})
	require.NoError(t, err)
	assert.Equal(t, "go test ./...", out.Data["command"])
	assert.Contains(t, runner.calls, "sh -c go test ./...")
}
