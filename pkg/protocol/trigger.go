package protocol

import (
	"context"
	"log/slog"
)

// TriggerCallback fires when a trigger decides a workflow should run.
// data carries trigger-specific detail for the run's log.
type TriggerCallback func(ctx context.Context, workflowID string, data map[string]any) error

// RunSource is a long-running process that requests workflow runs:
// the timer scheduler, or an external queue.
type RunSource interface {
	Start(ctx context.Context, callback TriggerCallback) error
	Stop(ctx context.Context) error
}

// RunSourceFactory creates run sources from configuration.
type RunSourceFactory interface {
	Create(config map[string]any, logger *slog.Logger) (RunSource, error)
	ID() string
}
