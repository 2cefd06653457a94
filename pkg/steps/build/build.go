// Package build provides the build and test step handlers. A build
// resolves its command from an explicit override or the detected
// build system, routes through the execution backends, and records
// located artifacts for a later release step.
package build

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/buildforge/buildforge/pkg/artifacts"
	"github.com/buildforge/buildforge/pkg/backend"
	"github.com/buildforge/buildforge/pkg/buildsys"
	"github.com/buildforge/buildforge/pkg/execx"
	"github.com/buildforge/buildforge/pkg/models"
	"github.com/buildforge/buildforge/pkg/protocol"
)

// ErrCommandUnresolved indicates neither an explicit command nor a
// detected build system supplied one.
var ErrCommandUnresolved = errors.New("build command could not be resolved")

type targetResult struct {
	target backend.Target
	name   string
	err    error
}

// BuildHandler runs the build command for one target, or fans out
// across every supported target concurrently when "all" is requested.
// Per-target failures are logged and tolerated; only an unresolved
// command fails the step.
type BuildHandler struct {
	router  *backend.Router
	locator *artifacts.Locator
	detect  func(path string) buildsys.System
}

func (h *BuildHandler) Execute(ctx context.Context, rc *models.RunContext, node *models.WorkflowNode) (*models.StepOutput, error) {
	system := h.detect(rc.WorkDir)

	command := node.ConfigString("command")
	if command == "" {
		command = system.BuildCommand()
	}

	if command == "" {
		return nil, fmt.Errorf("%w: system %s has no default", ErrCommandUnresolved, system)
	}

	target := backend.Target(node.ConfigString("target"))
	if target == "" {
		target = backend.TargetLocal
	}

	if !backend.ValidTarget(target) {
		return nil, fmt.Errorf("unknown build target %q", target)
	}

	rc.AppendLog(models.LogLevelCommand, node.ID, command)

	results := h.runTargets(ctx, command, rc.WorkDir, system, target)

	data := map[string]any{"command": command}

	for _, result := range results {
		if result.err != nil {
			rc.AppendLog(models.LogLevelWarn, node.ID,
				fmt.Sprintf("Build for %s failed: %v", result.target, result.err))
			data[string(result.target)] = map[string]any{"ok": false, "error": result.err.Error()}

			continue
		}

		rc.AppendLog(models.LogLevelSuccess, node.ID,
			fmt.Sprintf("Build for %s succeeded via %s", result.target, result.name))
		data[string(result.target)] = map[string]any{"ok": true, "backend": result.name}
	}

	found := h.locator.Locate(rc.WorkDir, system, node.ConfigString("artifact_pattern"))
	if len(found) > 0 {
		rc.AppendLog(models.LogLevelInfo, node.ID, fmt.Sprintf("Located %d artifact(s)", len(found)))
	}

	return &models.StepOutput{
		StepID:    node.ID,
		Type:      node.Type,
		WorkDir:   rc.WorkDir,
		Artifacts: found,
		Data:      data,
	}, nil
}

// runTargets executes the command for each concrete target. The "all"
// fan-out runs targets concurrently; results land in per-target slots
// so no shared state is written across goroutines.
func (h *BuildHandler) runTargets(ctx context.Context, command, dir string, system buildsys.System, target backend.Target) []targetResult {
	targets := []backend.Target{target}
	if target == backend.TargetAll {
		targets = backend.SupportedTargets()
	}

	results := make([]targetResult, len(targets))

	var wg sync.WaitGroup

	for i, tgt := range targets {
		wg.Add(1)

		go func(slot int, tgt backend.Target) {
			defer wg.Done()

			_, name, err := h.router.Route(ctx, backend.Request{
				Command: command,
				Dir:     dir,
				Target:  tgt,
				System:  system,
			})
			results[slot] = targetResult{target: tgt, name: name, err: err}
		}(i, tgt)
	}

	wg.Wait()

	return results
}

// TestHandler runs the detected or overridden test command locally. A
// non-zero exit fails the step.
type TestHandler struct {
	runner execx.Runner
	detect func(path string) buildsys.System
}

func (h *TestHandler) Execute(ctx context.Context, rc *models.RunContext, node *models.WorkflowNode) (*models.StepOutput, error) {
	system := h.detect(rc.WorkDir)

	command := node.ConfigString("command")
	if command == "" {
		command = system.TestCommand()
	}

	if command == "" {
		return nil, fmt.Errorf("%w: no test command for system %s", ErrCommandUnresolved, system)
	}

	rc.AppendLog(models.LogLevelCommand, node.ID, command)

	out, err := execx.Shell(ctx, h.runner, rc.WorkDir, command)
	if err != nil {
		return nil, fmt.Errorf("tests failed: %w", err)
	}

	rc.AppendLog(models.LogLevelSuccess, node.ID, "Tests passed")

	return &models.StepOutput{
		StepID: node.ID,
		Type:   node.Type,
		Data:   map[string]any{"command": command, "output": out},
	}, nil
}

type buildFactory struct{}

func (buildFactory) Create(deps protocol.Dependencies) (protocol.StepHandler, error) {
	if deps.Router == nil || deps.Locator == nil {
		return nil, errors.New("build step requires a backend router and artifact locator")
	}

	detect := deps.Detect
	if detect == nil {
		detect = buildsys.Detect
	}

	return &BuildHandler{router: deps.Router, locator: deps.Locator, detect: detect}, nil
}

func (buildFactory) ID() models.StepType { return models.StepBuild }
func (buildFactory) Name() string        { return "Build" }

func (buildFactory) Description() string {
	return "Builds the project for a target platform, or all platforms concurrently, and locates the produced artifacts"
}

func (buildFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "Build command override. Defaults to the detected build system's command.",
			},
			"target": map[string]any{
				"type":        "string",
				"description": "Target platform",
				"enum":        []string{"local", "linux/amd64", "darwin/arm64", "windows/amd64", "all"},
				"default":     "local",
			},
			"artifact_pattern": map[string]any{
				"type":        "string",
				"description": "Glob for locating artifacts after the build",
			},
		},
	}
}

func NewBuildFactory() protocol.StepFactory { return buildFactory{} }

type testFactory struct{}

func (testFactory) Create(deps protocol.Dependencies) (protocol.StepHandler, error) {
	if deps.Exec == nil {
		return nil, errors.New("test step requires a command runner")
	}

	detect := deps.Detect
	if detect == nil {
		detect = buildsys.Detect
	}

	return &TestHandler{runner: deps.Exec, detect: detect}, nil
}

func (testFactory) ID() models.StepType { return models.StepTest }
func (testFactory) Name() string        { return "Test" }

func (testFactory) Description() string {
	return "Runs the project's test command; a non-zero exit fails the step"
}

func (testFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "Test command override. Defaults to the detected build system's command.",
			},
		},
	}
}

func NewTestFactory() protocol.StepFactory { return testFactory{} }
