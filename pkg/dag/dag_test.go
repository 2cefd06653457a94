package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildforge/buildforge/pkg/models"
)

func node(id string) *models.WorkflowNode {
	return &models.WorkflowNode{ID: id, Type: models.StepRunCommand, Name: id, Enabled: true}
}

func conn(source, target string) *models.Connection {
	return &models.Connection{ID: source + "->" + target, SourceID: source, TargetID: target}
}

func ids(nodes []*models.WorkflowNode) []string {
	result := make([]string, len(nodes))
	for i, n := range nodes {
		result[i] = n.ID
	}

	return result
}

func TestOrderRespectsDependencies(t *testing.T) {
	workflow := &models.Workflow{
		ID:    "wf",
		Nodes: []*models.WorkflowNode{node("clone"), node("build"), node("test"), node("release")},
		Connections: []*models.Connection{
			conn("clone", "build"),
			conn("build", "test"),
			conn("test", "release"),
		},
	}

	ordered, err := Order(workflow)
	require.NoError(t, err)
	assert.Equal(t, []string{"clone", "build", "test", "release"}, ids(ordered))
}

func TestOrderIsDeterministicForIndependentNodes(t *testing.T) {
	// b and c both depend only on a; node list order breaks the tie.
	workflow := &models.Workflow{
		ID:    "wf",
		Nodes: []*models.WorkflowNode{node("a"), node("b"), node("c"), node("d")},
		Connections: []*models.Connection{
			conn("a", "b"),
			conn("a", "c"),
			conn("b", "d"),
			conn("c", "d"),
		},
	}

	first, err := Order(workflow)
	require.NoError(t, err)

	for range 10 {
		again, err := Order(workflow)
		require.NoError(t, err)
		assert.Equal(t, ids(first), ids(again))
	}

	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(first))
}

func TestOrderDetectsCycle(t *testing.T) {
	workflow := &models.Workflow{
		ID:    "wf",
		Nodes: []*models.WorkflowNode{node("a"), node("b"), node("c")},
		Connections: []*models.Connection{
			conn("a", "b"),
			conn("b", "c"),
			conn("c", "b"),
		},
	}

	_, err := Order(workflow)
	require.ErrorIs(t, err, ErrCycleDetected)
	assert.Contains(t, err.Error(), "b")
	assert.Contains(t, err.Error(), "c")
	assert.NotContains(t, err.Error(), "stuck on a")
}

func TestOrderSelfLoop(t *testing.T) {
	workflow := &models.Workflow{
		ID:          "wf",
		Nodes:       []*models.WorkflowNode{node("a")},
		Connections: []*models.Connection{conn("a", "a")},
	}

	_, err := Order(workflow)
	require.ErrorIs(t, err, ErrCycleDetected)
}

func TestOrderKeepsDisabledNodes(t *testing.T) {
	disabled := node("b")
	disabled.Enabled = false

	workflow := &models.Workflow{
		ID:          "wf",
		Nodes:       []*models.WorkflowNode{node("a"), disabled, node("c")},
		Connections: []*models.Connection{conn("a", "b"), conn("b", "c")},
	}

	ordered, err := Order(workflow)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(ordered))
}

func TestDependencies(t *testing.T) {
	workflow := &models.Workflow{
		ID:    "wf",
		Nodes: []*models.WorkflowNode{node("a"), node("b"), node("c")},
		Connections: []*models.Connection{
			conn("a", "c"),
			conn("b", "c"),
		},
	}

	assert.ElementsMatch(t, []string{"a", "b"}, Dependencies(workflow, "c"))
	assert.Empty(t, Dependencies(workflow, "a"))
}
