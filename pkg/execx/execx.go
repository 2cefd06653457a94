// Package execx is the process-execution boundary of the engine. All
// external tools (git, build commands, docker, package managers) run
// through the Runner interface so recovery logic upstream can test
// against structured errors instead of raw tool output.
package execx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// ErrToolNotFound indicates the executable does not exist on the host.
var ErrToolNotFound = errors.New("tool not found")

// ExecError is the structured failure of one command invocation. The
// captured stderr is classification material for the caller, never a
// branch condition by itself.
type ExecError struct {
	Name     string
	Args     []string
	ExitCode int
	Stderr   string
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("%s %s: exit %d: %s", e.Name, strings.Join(e.Args, " "), e.ExitCode, strings.TrimSpace(e.Stderr))
}

// Command is one invocation request.
type Command struct {
	Name string
	Args []string
	Dir  string
	Env  []string // appended to the parent environment
}

// Runner executes external commands.
type Runner interface {
	// Run executes the command and returns its standard output. A
	// non-zero exit returns *ExecError; a missing executable returns
	// ErrToolNotFound.
	Run(ctx context.Context, cmd Command) (string, error)
}

// LocalRunner runs commands on the host machine.
type LocalRunner struct{}

// NewLocalRunner returns the host-machine runner.
func NewLocalRunner() *LocalRunner {
	return &LocalRunner{}
}

// Run implements Runner.
func (r *LocalRunner) Run(ctx context.Context, cmd Command) (string, error) {
	if _, err := exec.LookPath(cmd.Name); err != nil {
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, cmd.Name)
	}

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir

	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}

	var stdout, stderr bytes.Buffer

	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	if err != nil {
		exitCode := -1

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}

		return stdout.String(), &ExecError{
			Name:     cmd.Name,
			Args:     cmd.Args,
			ExitCode: exitCode,
			// Some tools write their diagnostics to stdout.
			Stderr: stderr.String() + stdout.String(),
		}
	}

	return stdout.String(), nil
}

// Shell runs a command line through the system shell.
func Shell(ctx context.Context, runner Runner, dir, commandLine string) (string, error) {
	return runner.Run(ctx, Command{
		Name: "sh",
		Args: []string{"-c", commandLine},
		Dir:  dir,
	})
}
