// Package trigger provides the trigger-timer step handler. The step
// has no run-time action; its configuration feeds the recurring
// trigger scheduler, and during a run it only marks where the graph
// starts.
package trigger

import (
	"context"

	"github.com/buildforge/buildforge/pkg/models"
	"github.com/buildforge/buildforge/pkg/protocol"
)

type Handler struct{}

func (Handler) Execute(_ context.Context, _ *models.RunContext, node *models.WorkflowNode) (*models.StepOutput, error) {
	return &models.StepOutput{StepID: node.ID, Type: node.Type}, nil
}

type factory struct{}

func (factory) Create(_ protocol.Dependencies) (protocol.StepHandler, error) {
	return Handler{}, nil
}

func (factory) ID() models.StepType { return models.StepTriggerTimer }
func (factory) Name() string        { return "Timer Trigger" }

func (factory) Description() string {
	return "Starts the workflow on a recurring schedule; no action during a run"
}

func (factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"mode": map[string]any{
				"type":    "string",
				"enum":    []string{"interval", "daily", "weekly", "day-and-time", "cron"},
				"default": "interval",
			},
			"interval_hours": map[string]any{
				"type":        "number",
				"description": "Interval period in hours (interval mode)",
			},
			"time": map[string]any{
				"type":        "string",
				"description": "Clock time HH:MM (daily, weekly, day-and-time modes)",
			},
			"weekday": map[string]any{
				"type":        "string",
				"description": "Day of week (weekly and day-and-time modes)",
			},
			"cron": map[string]any{
				"type":        "string",
				"description": "Standard cron expression (cron mode)",
			},
			"enabled": map[string]any{
				"type":    "boolean",
				"default": true,
			},
		},
	}
}

func NewFactory() protocol.StepFactory { return factory{} }
