package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDuplicateConnection indicates a second edge between the same
	// ordered pair of steps.
	ErrDuplicateConnection = errors.New("duplicate connection")

	// ErrDanglingConnection indicates an edge endpoint that references
	// no step in the workflow.
	ErrDanglingConnection = errors.New("connection references unknown step")

	// ErrUnknownStepType indicates a node whose type is outside the
	// step catalog.
	ErrUnknownStepType = errors.New("unknown step type")
)

// Workflow is a directed graph of typed steps plus the release
// bookkeeping that survives between runs.
type Workflow struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"         validate:"required,min=3"`
	RepoID      string          `json:"repo_id,omitempty"`
	Nodes       []*WorkflowNode `json:"nodes"`
	Connections []*Connection   `json:"connections"`
	NextVersion string          `json:"next_version"`
	Variables   map[string]any  `json:"variables,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NodeByID returns the node with the given id, or nil.
func (w *Workflow) NodeByID(id string) *WorkflowNode {
	for _, node := range w.Nodes {
		if node.ID == id {
			return node
		}
	}

	return nil
}

// Validate checks the graph invariants: every step type is part of the
// catalog, every edge endpoint exists, and no ordered pair of steps is
// connected twice.
func (w *Workflow) Validate() error {
	byID := make(map[string]*WorkflowNode, len(w.Nodes))

	for _, node := range w.Nodes {
		if !ValidStepType(node.Type) {
			return fmt.Errorf("node %s: %w: %s", node.ID, ErrUnknownStepType, node.Type)
		}

		byID[node.ID] = node
	}

	seen := make(map[string]struct{}, len(w.Connections))

	for _, conn := range w.Connections {
		if _, ok := byID[conn.SourceID]; !ok {
			return fmt.Errorf("connection %s: %w: %s", conn.ID, ErrDanglingConnection, conn.SourceID)
		}

		if _, ok := byID[conn.TargetID]; !ok {
			return fmt.Errorf("connection %s: %w: %s", conn.ID, ErrDanglingConnection, conn.TargetID)
		}

		pair := conn.SourceID + "->" + conn.TargetID
		if _, dup := seen[pair]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateConnection, pair)
		}

		seen[pair] = struct{}{}
	}

	return nil
}

// TriggerNodes returns every enabled trigger-timer node.
func (w *Workflow) TriggerNodes() []*WorkflowNode {
	var triggers []*WorkflowNode

	for _, node := range w.Nodes {
		if node.IsTrigger() && node.Enabled {
			triggers = append(triggers, node)
		}
	}

	return triggers
}
