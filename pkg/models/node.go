// Package models defines the core domain models for graph-based build
// and release workflows.
package models

// StepType identifies one entry of the closed step catalog. Step
// behavior is fixed per type; the only user-programmable step is
// run-command.
type StepType string

const (
	StepTriggerTimer  StepType = "trigger-timer"
	StepClone         StepType = "clone"
	StepPull          StepType = "pull"
	StepSyncAndPush   StepType = "sync-and-push"
	StepPush          StepType = "push"
	StepCheckout      StepType = "checkout"
	StepBuild         StepType = "build"
	StepTest          StepType = "test"
	StepRunAction     StepType = "run-action"
	StepRunCommand    StepType = "run-command"
	StepCommit        StepType = "commit"
	StepCreateRelease StepType = "create-release"
	StepEmitLink      StepType = "emit-link"
	StepDownload      StepType = "download"
)

// StepTypes lists every member of the catalog in a stable order.
func StepTypes() []StepType {
	return []StepType{
		StepTriggerTimer,
		StepClone,
		StepPull,
		StepSyncAndPush,
		StepPush,
		StepCheckout,
		StepBuild,
		StepTest,
		StepRunAction,
		StepRunCommand,
		StepCommit,
		StepCreateRelease,
		StepEmitLink,
		StepDownload,
	}
}

// ValidStepType reports whether t is part of the catalog.
func ValidStepType(t StepType) bool {
	for _, known := range StepTypes() {
		if t == known {
			return true
		}
	}

	return false
}

// WorkflowNode is one step instance on the canvas. Position is
// presentation-only and never consulted during execution.
type WorkflowNode struct {
	ID        string         `json:"id"         validate:"required"`
	Type      StepType       `json:"type"       validate:"required"`
	Name      string         `json:"name"       validate:"required,min=1"`
	Config    map[string]any `json:"config"`
	PositionX int            `json:"position_x"`
	PositionY int            `json:"position_y"`
	Enabled   bool           `json:"enabled"`
}

// ConfigString returns a string config value, or the empty string when
// absent or not a string.
func (n *WorkflowNode) ConfigString(key string) string {
	v, _ := n.Config[key].(string)

	return v
}

// ConfigBool returns a bool config value, false when absent.
func (n *WorkflowNode) ConfigBool(key string) bool {
	v, _ := n.Config[key].(bool)

	return v
}

// SetConfig writes a config value, allocating the map on first use.
func (n *WorkflowNode) SetConfig(key string, value any) {
	if n.Config == nil {
		n.Config = make(map[string]any)
	}

	n.Config[key] = value
}

// IsTrigger reports whether this node is a graph-construction trigger
// with no run-time action of its own.
func (n *WorkflowNode) IsTrigger() bool {
	return n.Type == StepTriggerTimer
}

// Connection is a directed edge between two steps of the same
// workflow.
type Connection struct {
	ID       string `json:"id"`
	SourceID string `json:"source_id" validate:"required"`
	TargetID string `json:"target_id" validate:"required"`
}

// StepStatus tracks the per-step execution state inside a run.
type StepStatus string

const (
	StepStatusPending StepStatus = "pending"
	StepStatusRunning StepStatus = "running"
	StepStatusSuccess StepStatus = "success"
	StepStatusFailed  StepStatus = "failed"
)
