package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/buildforge/buildforge/pkg/buildsys"
	"github.com/buildforge/buildforge/pkg/execx"
)

const (
	containerName  = "buildforge-builder"
	containerImage = "buildforge/builder:latest"
	workspaceMount = "/workspace"
)

// Container runs builds inside a single shared builder container. On
// first use per working directory it auto-installs dependencies from
// the ecosystem's marker files. The working tree is shared into the
// container via a symlink inside the mounted workspace; only when the
// symlink cannot be created does it fall back to copying the tree in.
type Container struct {
	runner    execx.Runner
	logger    *slog.Logger
	shareRoot string // host directory mounted at workspaceMount

	prepared map[string]string // host dir -> path inside container
}

// NewContainer returns the shared-container backend. shareRoot is the
// host directory mounted into the container as the workspace.
func NewContainer(runner execx.Runner, shareRoot string, logger *slog.Logger) *Container {
	return &Container{
		runner:    runner,
		logger:    logger.With("module", "backend", "backend", "container"),
		shareRoot: shareRoot,
		prepared:  make(map[string]string),
	}
}

func (c *Container) Name() string { return "container" }

// Available reports whether a container runtime answers on this host.
func (c *Container) Available(ctx context.Context) bool {
	_, err := c.runner.Run(ctx, execx.Command{Name: "docker", Args: []string{"info"}})

	return err == nil
}

func (c *Container) Run(ctx context.Context, req Request) (string, error) {
	inside, err := c.prepare(ctx, req.Dir, req.System)
	if err != nil {
		return "", err
	}

	return c.runner.Run(ctx, execx.Command{
		Name: "docker",
		Args: []string{"exec", "-w", inside, containerName, "sh", "-c", req.Command},
	})
}

// prepare ensures the container is running, the working tree is
// visible inside it, and dependencies are installed. Idempotent per
// working directory.
func (c *Container) prepare(ctx context.Context, dir string, system buildsys.System) (string, error) {
	if inside, ok := c.prepared[dir]; ok {
		return inside, nil
	}

	if err := c.ensureRunning(ctx); err != nil {
		return "", err
	}

	name := filepath.Base(dir)
	inside := workspaceMount + "/" + name

	if err := c.share(ctx, dir, name); err != nil {
		return "", err
	}

	if install := system.InstallCommand(); install != "" {
		c.logger.Info("installing dependencies in container", "dir", dir, "command", install)

		if _, err := c.runner.Run(ctx, execx.Command{
			Name: "docker",
			Args: []string{"exec", "-w", inside, containerName, "sh", "-c", install},
		}); err != nil {
			// Best effort: the build itself may still succeed.
			c.logger.Warn("dependency auto-install failed", "error", err)
		}
	}

	c.prepared[dir] = inside

	return inside, nil
}

func (c *Container) ensureRunning(ctx context.Context) error {
	out, err := c.runner.Run(ctx, execx.Command{
		Name: "docker",
		Args: []string{"ps", "-q", "-f", "name=" + containerName},
	})
	if err == nil && strings.TrimSpace(out) != "" {
		return nil
	}

	_, err = c.runner.Run(ctx, execx.Command{
		Name: "docker",
		Args: []string{
			"run", "-d", "--name", containerName,
			"-v", c.shareRoot + ":" + workspaceMount,
			containerImage, "sleep", "infinity",
		},
	})
	if err != nil {
		return fmt.Errorf("%w: start builder container: %v", ErrBackendUnavailable, err)
	}

	return nil
}

// share makes the working tree visible inside the container: symlink
// into the mounted workspace, with docker cp as the copy-in fallback.
func (c *Container) share(ctx context.Context, dir, name string) error {
	link := filepath.Join(c.shareRoot, name)

	if err := os.Symlink(dir, link); err == nil || errors.Is(err, os.ErrExist) {
		return nil
	}

	c.logger.Warn("workspace symlink failed, copying tree into container", "dir", dir)

	if _, err := c.runner.Run(ctx, execx.Command{
		Name: "docker",
		Args: []string{"cp", dir, containerName + ":" + workspaceMount + "/" + name},
	}); err != nil {
		return fmt.Errorf("copy workspace into container: %w", err)
	}

	return nil
}
