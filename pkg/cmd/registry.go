// Package cmd provides the shared wiring used by the command-line
// entrypoints: step registry, persistence, event bus and step handler
// dependencies.
package cmd

import (
	"log/slog"

	"github.com/buildforge/buildforge/pkg/registry"
	buildstep "github.com/buildforge/buildforge/pkg/steps/build"
	gitstep "github.com/buildforge/buildforge/pkg/steps/git"
	linkstep "github.com/buildforge/buildforge/pkg/steps/link"
	releasestep "github.com/buildforge/buildforge/pkg/steps/release"
	scriptstep "github.com/buildforge/buildforge/pkg/steps/script"
	triggerstep "github.com/buildforge/buildforge/pkg/steps/trigger"
)

// NewRegistry builds a registry with the full step catalog.
func NewRegistry(logger *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(logger)

	reg.RegisterStep(triggerstep.NewFactory())
	reg.RegisterStep(gitstep.NewCloneFactory())
	reg.RegisterStep(gitstep.NewPullFactory())
	reg.RegisterStep(gitstep.NewSyncAndPushFactory())
	reg.RegisterStep(gitstep.NewPushFactory())
	reg.RegisterStep(gitstep.NewCheckoutFactory())
	reg.RegisterStep(gitstep.NewCommitFactory())
	reg.RegisterStep(buildstep.NewBuildFactory())
	reg.RegisterStep(buildstep.NewTestFactory())
	reg.RegisterStep(scriptstep.NewRunCommandFactory())
	reg.RegisterStep(scriptstep.NewRunActionFactory())
	reg.RegisterStep(releasestep.NewFactory())
	reg.RegisterStep(linkstep.NewEmitFactory())
	reg.RegisterStep(linkstep.NewDownloadFactory())

	return reg
}
