// Package events defines the event types published at run and step
// boundaries.
package events

import (
	"time"
)

type EventType string

// Topic is the single stream all engine events publish to.
const Topic = "buildforge.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	RunStartedEvent   EventType = "run.started"
	RunFinishedEvent  EventType = "run.finished"
	RunFailedEvent    EventType = "run.failed"
	RunCancelledEvent EventType = "run.cancelled"

	StepStartedEvent  EventType = "step.started"
	StepFinishedEvent EventType = "step.finished"
	StepFailedEvent   EventType = "step.failed"

	TriggerFiredEvent   EventType = "trigger.fired"
	TriggerDroppedEvent EventType = "trigger.dropped"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id"`
	RunID      string         `json:"run_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type RunStarted struct {
	BaseEvent

	TriggerStepID string `json:"trigger_step_id,omitempty"`
	StepCount     int    `json:"step_count"`
}

func (RunStarted) GetType() EventType { return RunStartedEvent }

type RunFinished struct {
	BaseEvent

	Duration time.Duration `json:"duration"`
}

func (RunFinished) GetType() EventType { return RunFinishedEvent }

type RunFailed struct {
	BaseEvent

	FailedStepID string        `json:"failed_step_id,omitempty"`
	Error        string        `json:"error"`
	Duration     time.Duration `json:"duration"`
}

func (RunFailed) GetType() EventType { return RunFailedEvent }

type RunCancelled struct {
	BaseEvent

	Duration time.Duration `json:"duration"`
}

func (RunCancelled) GetType() EventType { return RunCancelledEvent }

type StepStarted struct {
	BaseEvent

	StepID   string `json:"step_id"`
	StepType string `json:"step_type"`
	Position int    `json:"position"`
}

func (StepStarted) GetType() EventType { return StepStartedEvent }

type StepFinished struct {
	BaseEvent

	StepID     string        `json:"step_id"`
	StepType   string        `json:"step_type"`
	DurationMs int64         `json:"duration_ms"`
	Duration   time.Duration `json:"-"`
}

func (StepFinished) GetType() EventType { return StepFinishedEvent }

type StepFailed struct {
	BaseEvent

	StepID   string `json:"step_id"`
	StepType string `json:"step_type"`
	Error    string `json:"error"`
}

func (StepFailed) GetType() EventType { return StepFailedEvent }

// TriggerFired is published when a schedule or queue source requests a
// run.
type TriggerFired struct {
	BaseEvent

	StepID string         `json:"step_id"`
	Source string         `json:"source"`
	Data   map[string]any `json:"data,omitempty"`
}

func (TriggerFired) GetType() EventType { return TriggerFiredEvent }

// TriggerDropped is published when a trigger fired while a run was
// already active and the request was discarded.
type TriggerDropped struct {
	BaseEvent

	StepID      string `json:"step_id"`
	ActiveRunID string `json:"active_run_id"`
	DropReason  string `json:"drop_reason"`
}

func (TriggerDropped) GetType() EventType { return TriggerDroppedEvent }
