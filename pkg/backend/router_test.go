package backend

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildforge/buildforge/pkg/buildsys"
	"github.com/buildforge/buildforge/pkg/execx"
)

type scriptedRunner struct {
	calls   []string
	handler func(call string) (string, error)
}

func (s *scriptedRunner) Run(_ context.Context, cmd execx.Command) (string, error) {
	call := cmd.Name + " " + strings.Join(cmd.Args, " ")
	s.calls = append(s.calls, call)

	if s.handler == nil {
		return "", nil
	}

	return s.handler(call)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRouter(runner execx.Runner, shareRoot string) *Router {
	return NewRouter(
		NewLocal(runner),
		NewContainer(runner, shareRoot, discard()),
		NewCross(runner, discard()),
		discard(),
	)
}

func TestRoute_LocalTargetRunsLocally(t *testing.T) {
	runner := &scriptedRunner{}
	router := newRouter(runner, t.TempDir())

	_, name, err := router.Route(context.Background(), Request{
		Command: "make",
		Target:  TargetLocal,
		System:  buildsys.SystemMake,
	})
	require.NoError(t, err)
	assert.Equal(t, "local", name)
	assert.Equal(t, []string{"sh -c make"}, runner.calls)
}

func TestRoute_ContainerPreferredForCrossTarget(t *testing.T) {
	runner := &scriptedRunner{handler: func(call string) (string, error) {
		if call == "docker ps -q -f name="+containerName {
			return "abc123\n", nil
		}

		return "", nil
	}}
	router := newRouter(runner, t.TempDir())

	_, name, err := router.Route(context.Background(), Request{
		Command: "npm run build",
		Dir:     t.TempDir(),
		Target:  TargetLinuxAmd64,
		System:  buildsys.SystemNpm,
	})
	require.NoError(t, err)
	assert.Equal(t, "container", name)
}

func TestRoute_FallsThroughToCrossWhenNoDocker(t *testing.T) {
	runner := &scriptedRunner{handler: func(call string) (string, error) {
		if strings.HasPrefix(call, "docker") {
			return "", execx.ErrToolNotFound
		}

		return "", nil
	}}
	router := newRouter(runner, t.TempDir())

	_, name, err := router.Route(context.Background(), Request{
		Command: "cargo build --release",
		Target:  TargetLinuxAmd64,
		System:  buildsys.SystemCargo,
	})
	require.NoError(t, err)
	assert.Equal(t, "cross", name)
	assert.Contains(t, runner.calls, "cargo build --release --target x86_64-unknown-linux-gnu")
}

func TestCross_InstallsMissingTripleAndRetries(t *testing.T) {
	attempts := 0
	runner := &scriptedRunner{handler: func(call string) (string, error) {
		if strings.HasPrefix(call, "cargo build") {
			attempts++
			if attempts == 1 {
				return "", &execx.ExecError{Name: "cargo", ExitCode: 1, Stderr: "the target may not be installed"}
			}

			return "ok", nil
		}

		return "", nil
	}}
	cross := NewCross(runner, discard())

	out, err := cross.Run(context.Background(), Request{
		Command: "cargo build --release",
		Target:  TargetDarwinArm64,
		System:  buildsys.SystemCargo,
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Contains(t, runner.calls, "rustup target add aarch64-apple-darwin")
	assert.Equal(t, 2, attempts)
}

func TestRoute_UltimateLocalFallback(t *testing.T) {
	runner := &scriptedRunner{handler: func(call string) (string, error) {
		if strings.HasPrefix(call, "docker") {
			return "", execx.ErrToolNotFound
		}

		return "", nil
	}}
	router := newRouter(runner, t.TempDir())

	// maven has no cross toolchain, docker is missing: lands on local.
	_, name, err := router.Route(context.Background(), Request{
		Command: "mvn package",
		Target:  TargetLinuxAmd64,
		System:  buildsys.SystemMaven,
	})
	require.NoError(t, err)
	assert.Equal(t, "local", name)
}

func TestContainer_SymlinkShareAndAutoInstall(t *testing.T) {
	shareRoot := t.TempDir()
	workdir := t.TempDir()

	runner := &scriptedRunner{handler: func(call string) (string, error) {
		if call == "docker ps -q -f name="+containerName {
			return "abc123\n", nil
		}

		return "", nil
	}}
	container := NewContainer(runner, shareRoot, discard())

	_, err := container.Run(context.Background(), Request{
		Command: "npm run build",
		Dir:     workdir,
		Target:  TargetLinuxAmd64,
		System:  buildsys.SystemNpm,
	})
	require.NoError(t, err)

	joined := strings.Join(runner.calls, "\n")
	assert.Contains(t, joined, "npm install")
	assert.NotContains(t, joined, "docker cp") // symlink succeeded, no copy-in

	// Second run skips preparation.
	before := len(runner.calls)
	_, err = container.Run(context.Background(), Request{
		Command: "npm run build",
		Dir:     workdir,
		Target:  TargetLinuxAmd64,
		System:  buildsys.SystemNpm,
	})
	require.NoError(t, err)
	assert.Equal(t, before+1, len(runner.calls))
}

func TestValidTarget(t *testing.T) {
	assert.True(t, ValidTarget(TargetLocal))
	assert.True(t, ValidTarget(TargetAll))
	assert.True(t, ValidTarget(TargetLinuxAmd64))
	assert.False(t, ValidTarget("plan9/386"))
}
