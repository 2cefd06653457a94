package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/buildforge/buildforge/pkg/buildsys"
	"github.com/buildforge/buildforge/pkg/execx"
)

// rust target triples per logical platform.
var rustTriples = map[Target]string{
	TargetLinuxAmd64:   "x86_64-unknown-linux-gnu",
	TargetDarwinArm64:  "aarch64-apple-darwin",
	TargetWindowsAmd64: "x86_64-pc-windows-gnu",
}

// Cross builds for a foreign platform with the host toolchain: cargo
// with an explicit target triple (installing a missing triple once and
// retrying), or the Go toolchain's native cross support.
type Cross struct {
	runner execx.Runner
	logger *slog.Logger
}

// NewCross returns the cross-compilation backend.
func NewCross(runner execx.Runner, logger *slog.Logger) *Cross {
	return &Cross{
		runner: runner,
		logger: logger.With("module", "backend", "backend", "cross"),
	}
}

func (c *Cross) Name() string { return "cross" }

func (c *Cross) Available(_ context.Context) bool { return true }

// Supports reports whether this backend can produce the target for the
// given build system at all.
func (c *Cross) Supports(system buildsys.System, target Target) bool {
	switch system {
	case buildsys.SystemCargo:
		_, ok := rustTriples[target]

		return ok
	case buildsys.SystemGo:
		_, _, ok := splitTarget(target)

		return ok
	default:
		return false
	}
}

func (c *Cross) Run(ctx context.Context, req Request) (string, error) {
	switch req.System {
	case buildsys.SystemCargo:
		return c.runCargo(ctx, req)
	case buildsys.SystemGo:
		return c.runGo(ctx, req)
	default:
		return "", fmt.Errorf("%w: no %s toolchain for %s", ErrCrossToolchainMissing, req.System, req.Target)
	}
}

func (c *Cross) runCargo(ctx context.Context, req Request) (string, error) {
	triple, ok := rustTriples[req.Target]
	if !ok {
		return "", fmt.Errorf("%w: no rust triple for %s", ErrCrossToolchainMissing, req.Target)
	}

	build := execx.Command{
		Name: "cargo",
		Args: []string{"build", "--release", "--target", triple},
		Dir:  req.Dir,
	}

	out, err := c.runner.Run(ctx, build)
	if err == nil {
		return out, nil
	}

	if !missingTriple(err) {
		return out, err
	}

	c.logger.Info("installing missing rust target", "triple", triple)

	if _, installErr := c.runner.Run(ctx, execx.Command{
		Name: "rustup",
		Args: []string{"target", "add", triple},
	}); installErr != nil {
		return "", fmt.Errorf("%w: rustup target add %s: %v", ErrCrossToolchainMissing, triple, installErr)
	}

	return c.runner.Run(ctx, build)
}

func (c *Cross) runGo(ctx context.Context, req Request) (string, error) {
	goos, goarch, ok := splitTarget(req.Target)
	if !ok {
		return "", fmt.Errorf("%w: cannot map %s to GOOS/GOARCH", ErrCrossToolchainMissing, req.Target)
	}

	return c.runner.Run(ctx, execx.Command{
		Name: "sh",
		Args: []string{"-c", req.Command},
		Dir:  req.Dir,
		Env:  []string{"GOOS=" + goos, "GOARCH=" + goarch, "CGO_ENABLED=0"},
	})
}

// missingTriple detects cargo's complaint about an uninstalled target
// standard library.
func missingTriple(err error) bool {
	var execErr *execx.ExecError
	if !errors.As(err, &execErr) {
		return false
	}

	stderr := strings.ToLower(execErr.Stderr)

	return strings.Contains(stderr, "target may not be installed") ||
		strings.Contains(stderr, "can't find crate for `std`")
}

// splitTarget maps "os/arch" onto GOOS/GOARCH values.
func splitTarget(target Target) (goos, goarch string, ok bool) {
	parts := strings.SplitN(string(target), "/", 2)
	if len(parts) != 2 {
		return "", "", false
	}

	goos = parts[0]
	goarch = parts[1]

	// darwin/arm64 style targets map directly.
	return goos, goarch, true
}
