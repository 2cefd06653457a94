package backend

import (
	"context"

	"github.com/buildforge/buildforge/pkg/buildsys"
	"github.com/buildforge/buildforge/pkg/execx"
)

// Local runs builds directly on the host. For Go checkouts it can
// cross-compile natively by setting the target environment; everything
// else builds for the host platform.
type Local struct {
	runner execx.Runner
}

// NewLocal returns the host-machine backend.
func NewLocal(runner execx.Runner) *Local {
	return &Local{runner: runner}
}

func (l *Local) Name() string { return "local" }

func (l *Local) Available(_ context.Context) bool { return true }

func (l *Local) Run(ctx context.Context, req Request) (string, error) {
	cmd := execx.Command{
		Name: "sh",
		Args: []string{"-c", req.Command},
		Dir:  req.Dir,
	}

	if req.System == buildsys.SystemGo && req.Target != TargetLocal && req.Target != TargetAll {
		if goos, goarch, ok := splitTarget(req.Target); ok {
			cmd.Env = []string{"GOOS=" + goos, "GOARCH=" + goarch, "CGO_ENABLED=0"}
		}
	}

	return l.runner.Run(ctx, cmd)
}
