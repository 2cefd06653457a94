// Package log configures the process-wide slog default used by every
// buildforge component.
package log

import (
	"log/slog"
	"os"
)

// Setup installs a text handler on stderr at the requested level.
func Setup(logLevel string) {
	var level slog.Level

	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

// WithModule returns a logger tagged with the component name.
func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}

// WithRun returns a logger scoped to a single workflow run.
func WithRun(module, workflowID, runID string) *slog.Logger {
	return slog.With("module", module, "workflow_id", workflowID, "run_id", runID)
}
