// Package script provides the run-command and run-action step
// handlers: arbitrary user commands with a missing-tool install offer,
// and stored reusable actions with declared inputs injected as
// environment assignments.
package script

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/buildforge/buildforge/pkg/execx"
	"github.com/buildforge/buildforge/pkg/models"
	"github.com/buildforge/buildforge/pkg/protocol"
)

var (
	// ErrActionNotFound indicates a run-action step referenced an
	// action the store does not have.
	ErrActionNotFound = errors.New("action not found")

	// ErrMissingRequiredInput indicates a required action input had
	// neither a configured value nor a default.
	ErrMissingRequiredInput = errors.New("missing required action input")
)

// RunCommandHandler executes an arbitrary shell command. When the
// executable is missing, the user is offered an install-and-retry;
// declining ends the step in failure.
type RunCommandHandler struct {
	runner    execx.Runner
	installer execx.Installer
	confirm   func(ctx context.Context, question string) bool
}

func (h *RunCommandHandler) Execute(ctx context.Context, rc *models.RunContext, node *models.WorkflowNode) (*models.StepOutput, error) {
	command := node.ConfigString("command")
	if command == "" {
		return nil, errors.New("run-command requires a command")
	}

	rc.AppendLog(models.LogLevelCommand, node.ID, command)

	out, err := execx.Shell(ctx, h.runner, rc.WorkDir, command)
	if errors.Is(err, execx.ErrToolNotFound) {
		out, err = h.installAndRetry(ctx, rc, node, command, err)
	}

	if err != nil {
		return nil, err
	}

	rc.AppendLog(models.LogLevelSuccess, node.ID, "Command finished")

	return &models.StepOutput{
		StepID: node.ID,
		Type:   node.Type,
		Data:   map[string]any{"command": command, "output": out},
	}, nil
}

func (h *RunCommandHandler) installAndRetry(ctx context.Context, rc *models.RunContext, node *models.WorkflowNode, command string, origErr error) (string, error) {
	tool := firstWord(command)

	if h.installer == nil || h.confirm == nil {
		return "", origErr
	}

	if !h.confirm(ctx, fmt.Sprintf("%q is not installed. Install it and retry?", tool)) {
		rc.AppendLog(models.LogLevelWarn, node.ID, "Install of "+tool+" declined")

		return "", origErr
	}

	rc.AppendLog(models.LogLevelInfo, node.ID, "Installing "+tool)

	if err := h.installer.Install(ctx, tool); err != nil {
		return "", fmt.Errorf("install of %s failed: %w", tool, err)
	}

	return execx.Shell(ctx, h.runner, rc.WorkDir, command)
}

func firstWord(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return command
	}

	return fields[0]
}

// RunActionHandler looks up a stored action and executes its script
// with the declared inputs prepended as environment assignments.
type RunActionHandler struct {
	runner  execx.Runner
	actions protocol.ActionStore
}

func (h *RunActionHandler) Execute(ctx context.Context, rc *models.RunContext, node *models.WorkflowNode) (*models.StepOutput, error) {
	action, err := h.resolve(ctx, node)
	if err != nil {
		return nil, err
	}

	script, err := composeScript(action, node)
	if err != nil {
		return nil, err
	}

	rc.AppendLog(models.LogLevelInfo, node.ID, "Running action "+action.Name)

	out, err := execx.Shell(ctx, h.runner, rc.WorkDir, script)
	if err != nil {
		return nil, fmt.Errorf("action %s failed: %w", action.Name, err)
	}

	rc.AppendLog(models.LogLevelSuccess, node.ID, "Action "+action.Name+" finished")

	return &models.StepOutput{
		StepID: node.ID,
		Type:   node.Type,
		Data:   map[string]any{"action": action.Name, "output": out},
	}, nil
}

func (h *RunActionHandler) resolve(ctx context.Context, node *models.WorkflowNode) (*models.Action, error) {
	if id := node.ConfigString("action_id"); id != "" {
		action, err := h.actions.ActionByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrActionNotFound, id)
		}

		return action, nil
	}

	name := node.ConfigString("action")
	if name == "" {
		return nil, errors.New("run-action requires an action name or id")
	}

	action, err := h.actions.ActionByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrActionNotFound, name)
	}

	return action, nil
}

// composeScript prepends input assignments to the action's script.
// Values come from the node's "inputs" config object, then the
// declared default. Assignments are sorted for a stable script.
func composeScript(action *models.Action, node *models.WorkflowNode) (string, error) {
	configured := map[string]string{}
	if raw, ok := node.Config["inputs"].(map[string]any); ok {
		for key, value := range raw {
			configured[key] = fmt.Sprintf("%v", value)
		}
	}

	assignments := make([]string, 0, len(action.Inputs))

	for _, input := range action.Inputs {
		value, ok := configured[input.Name]
		if !ok {
			if input.Required && input.Default == "" {
				return "", fmt.Errorf("%w: %s", ErrMissingRequiredInput, input.Name)
			}

			value = input.Default
		}

		assignments = append(assignments, fmt.Sprintf("%s=%s", input.Name, shellQuote(value)))
	}

	sort.Strings(assignments)

	if len(assignments) == 0 {
		return action.Script, nil
	}

	return strings.Join(assignments, "\n") + "\n" + action.Script, nil
}

func shellQuote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
}

type runCommandFactory struct{}

func (runCommandFactory) Create(deps protocol.Dependencies) (protocol.StepHandler, error) {
	if deps.Exec == nil {
		return nil, errors.New("run-command step requires a command runner")
	}

	return &RunCommandHandler{runner: deps.Exec, installer: deps.Installer, confirm: deps.Confirm}, nil
}

func (runCommandFactory) ID() models.StepType { return models.StepRunCommand }
func (runCommandFactory) Name() string        { return "Run Command" }

func (runCommandFactory) Description() string {
	return "Runs an arbitrary shell command, offering to install a missing executable and retry"
}

func (runCommandFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "Shell command to run in the working directory",
			},
		},
		"required": []string{"command"},
	}
}

func NewRunCommandFactory() protocol.StepFactory { return runCommandFactory{} }

type runActionFactory struct{}

func (runActionFactory) Create(deps protocol.Dependencies) (protocol.StepHandler, error) {
	if deps.Exec == nil || deps.Actions == nil {
		return nil, errors.New("run-action step requires a command runner and an action store")
	}

	return &RunActionHandler{runner: deps.Exec, actions: deps.Actions}, nil
}

func (runActionFactory) ID() models.StepType { return models.StepRunAction }
func (runActionFactory) Name() string        { return "Run Action" }

func (runActionFactory) Description() string {
	return "Runs a stored reusable action script with its declared inputs injected as environment assignments"
}

func (runActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type":        "string",
				"description": "Name of the stored action",
			},
			"action_id": map[string]any{
				"type":        "string",
				"description": "ID of the stored action; takes precedence over the name",
			},
			"inputs": map[string]any{
				"type":        "object",
				"description": "Values for the action's declared inputs",
			},
		},
	}
}

func NewRunActionFactory() protocol.StepFactory { return runActionFactory{} }
