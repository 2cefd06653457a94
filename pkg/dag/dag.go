// Package dag orders workflow nodes for execution. Connections form a
// directed acyclic graph; ordering uses Kahn's algorithm with the
// workflow's node list order breaking ties, so the same graph always
// yields the same plan.
package dag

import (
	"errors"
	"fmt"
	"strings"

	"github.com/buildforge/buildforge/pkg/models"
)

// ErrCycleDetected indicates the connections form a cycle; the error
// message names the nodes that never became schedulable.
var ErrCycleDetected = errors.New("workflow graph contains a cycle")

// Order returns every node of the workflow in dependency order.
// Disabled nodes keep their place in the order; skipping them is the
// runner's concern. A node with no incoming connections is a root and
// sorts by its position in the workflow's node list.
func Order(workflow *models.Workflow) ([]*models.WorkflowNode, error) {
	indegree := make(map[string]int, len(workflow.Nodes))
	successors := make(map[string][]string, len(workflow.Nodes))

	for i := range workflow.Nodes {
		indegree[workflow.Nodes[i].ID] = 0
	}

	for _, conn := range workflow.Connections {
		successors[conn.SourceID] = append(successors[conn.SourceID], conn.TargetID)
		indegree[conn.TargetID]++
	}

	ordered := make([]*models.WorkflowNode, 0, len(workflow.Nodes))
	scheduled := make(map[string]bool, len(workflow.Nodes))

	for len(ordered) < len(workflow.Nodes) {
		next := pickReady(workflow, indegree, scheduled)
		if next == nil {
			return nil, fmt.Errorf("%w: stuck on %s", ErrCycleDetected, strings.Join(stuckNodes(workflow, scheduled), ", "))
		}

		ordered = append(ordered, next)
		scheduled[next.ID] = true

		for _, target := range successors[next.ID] {
			indegree[target]--
		}
	}

	return ordered, nil
}

// pickReady returns the first unscheduled node, in node list order,
// whose dependencies are all scheduled.
func pickReady(workflow *models.Workflow, indegree map[string]int, scheduled map[string]bool) *models.WorkflowNode {
	for _, node := range workflow.Nodes {
		if !scheduled[node.ID] && indegree[node.ID] == 0 {
			return node
		}
	}

	return nil
}

func stuckNodes(workflow *models.Workflow, scheduled map[string]bool) []string {
	var stuck []string

	for i := range workflow.Nodes {
		if !scheduled[workflow.Nodes[i].ID] {
			stuck = append(stuck, workflow.Nodes[i].ID)
		}
	}

	return stuck
}

// Dependencies returns the IDs of the nodes feeding into the given
// node.
func Dependencies(workflow *models.Workflow, nodeID string) []string {
	var deps []string

	for _, conn := range workflow.Connections {
		if conn.TargetID == nodeID {
			deps = append(deps, conn.SourceID)
		}
	}

	return deps
}
