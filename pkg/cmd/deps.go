package cmd

import (
	"context"
	"log/slog"

	"github.com/buildforge/buildforge/pkg/artifacts"
	"github.com/buildforge/buildforge/pkg/backend"
	"github.com/buildforge/buildforge/pkg/buildsys"
	"github.com/buildforge/buildforge/pkg/execx"
	"github.com/buildforge/buildforge/pkg/gitops"
	"github.com/buildforge/buildforge/pkg/hosting"
	"github.com/buildforge/buildforge/pkg/protocol"
	"github.com/buildforge/buildforge/pkg/release"
)

// DepsConfig collects what NewDependencies needs beyond the logger.
type DepsConfig struct {
	// HostingToken authenticates release publishing. Empty disables
	// the create-release step.
	HostingToken string

	// ShareRoot is the host directory mounted into the shared build
	// container.
	ShareRoot string

	// Actions resolves stored actions for run-action steps.
	Actions protocol.ActionStore

	// Confirm answers interactive questions; nil declines everything.
	Confirm func(ctx context.Context, question string) bool
}

// NewDependencies wires the shared step handler collaborators around
// one local command runner.
func NewDependencies(logger *slog.Logger, cfg DepsConfig) protocol.Dependencies {
	runner := execx.NewLocalRunner()
	git := gitops.NewClient(runner, logger)
	locator := artifacts.NewLocator(logger)

	router := backend.NewRouter(
		backend.NewLocal(runner),
		backend.NewContainer(runner, cfg.ShareRoot, logger),
		backend.NewCross(runner, logger),
		logger,
	)

	deps := protocol.Dependencies{
		Logger:    logger,
		Exec:      runner,
		Installer: execx.NewHostInstaller(runner, logger),
		Git:       git,
		Locator:   locator,
		Router:    router,
		Actions:   cfg.Actions,
		Detect:    buildsys.Detect,
		Confirm:   cfg.Confirm,
	}

	if cfg.HostingToken != "" {
		host := hosting.NewClient(cfg.HostingToken)
		deps.Hosting = host
		deps.Publisher = release.NewPublisher(git, host, locator, logger)
	}

	return deps
}
