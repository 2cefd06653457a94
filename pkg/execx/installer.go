package execx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrNoPackageManager indicates no supported host package manager was
// found.
var ErrNoPackageManager = errors.New("no supported package manager found")

// Installer attempts to install a missing tool via the host's package
// manager. The run-command step offers this as its install-and-retry
// path.
type Installer interface {
	Install(ctx context.Context, pkg string) error
}

// managers in probe order; the first whose binary exists wins.
var managers = []struct {
	name string
	args func(pkg string) []string
}{
	{"apt-get", func(pkg string) []string { return []string{"install", "-y", pkg} }},
	{"dnf", func(pkg string) []string { return []string{"install", "-y", pkg} }},
	{"brew", func(pkg string) []string { return []string{"install", pkg} }},
	{"pacman", func(pkg string) []string { return []string{"-S", "--noconfirm", pkg} }},
}

// HostInstaller installs packages with whatever package manager the
// host provides.
type HostInstaller struct {
	runner Runner
	logger *slog.Logger
}

// NewHostInstaller returns an installer backed by the given runner.
func NewHostInstaller(runner Runner, logger *slog.Logger) *HostInstaller {
	return &HostInstaller{
		runner: runner,
		logger: logger.With("module", "installer"),
	}
}

// Install implements Installer.
func (i *HostInstaller) Install(ctx context.Context, pkg string) error {
	for _, manager := range managers {
		_, err := i.runner.Run(ctx, Command{Name: manager.name, Args: manager.args(pkg)})
		if errors.Is(err, ErrToolNotFound) {
			continue
		}

		if err != nil {
			return fmt.Errorf("install %s via %s: %w", pkg, manager.name, err)
		}

		i.logger.Info("installed package", "package", pkg, "manager", manager.name)

		return nil
	}

	return ErrNoPackageManager
}
