// Package backend routes build commands to an execution environment:
// the local machine, a shared managed container, or a cross-compiling
// toolchain, with staged fallback between them.
package backend

import (
	"context"
	"errors"

	"github.com/buildforge/buildforge/pkg/buildsys"
)

// Target is the logical platform a build is requested for.
type Target string

const (
	TargetLocal        Target = "local"
	TargetLinuxAmd64   Target = "linux/amd64"
	TargetDarwinArm64  Target = "darwin/arm64"
	TargetWindowsAmd64 Target = "windows/amd64"
	TargetAll          Target = "all"
)

// SupportedTargets lists the concrete platforms "all" fans out to.
func SupportedTargets() []Target {
	return []Target{TargetLinuxAmd64, TargetDarwinArm64, TargetWindowsAmd64}
}

// ValidTarget reports whether t is a routable target.
func ValidTarget(t Target) bool {
	if t == TargetLocal || t == TargetAll {
		return true
	}

	for _, known := range SupportedTargets() {
		if t == known {
			return true
		}
	}

	return false
}

var (
	// ErrCrossToolchainMissing indicates no toolchain can produce the
	// requested target on this host.
	ErrCrossToolchainMissing = errors.New("cross-compilation toolchain missing")

	// ErrBackendUnavailable indicates a backend cannot serve requests
	// right now (e.g. no container runtime on the host).
	ErrBackendUnavailable = errors.New("backend unavailable")
)

// Request is one build execution request.
type Request struct {
	Command string
	Dir     string
	Target  Target
	System  buildsys.System
}

// Backend executes a build request in one environment.
type Backend interface {
	Name() string
	Available(ctx context.Context) bool
	Run(ctx context.Context, req Request) (string, error)
}
