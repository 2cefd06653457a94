package registry

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildforge/buildforge/pkg/models"
	"github.com/buildforge/buildforge/pkg/protocol"
)

type stubHandler struct{}

func (stubHandler) Execute(_ context.Context, _ *models.RunContext, node *models.WorkflowNode) (*models.StepOutput, error) {
	return &models.StepOutput{StepID: node.ID, Type: node.Type}, nil
}

type stubFactory struct {
	id     models.StepType
	schema map[string]any
}

func (f stubFactory) Create(_ protocol.Dependencies) (protocol.StepHandler, error) {
	return stubHandler{}, nil
}

func (f stubFactory) ID() models.StepType    { return f.id }
func (f stubFactory) Name() string           { return string(f.id) }
func (f stubFactory) Description() string    { return "stub" }
func (f stubFactory) Schema() map[string]any { return f.schema }

func testRegistry(factories ...protocol.StepFactory) *Registry {
	r := NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
	for _, f := range factories {
		r.RegisterStep(f)
	}

	return r
}

func TestCreateHandler(t *testing.T) {
	r := testRegistry(stubFactory{id: models.StepBuild})

	handler, err := r.CreateHandler(models.StepBuild, protocol.Dependencies{})
	require.NoError(t, err)
	require.NotNil(t, handler)
}

func TestCreateHandlerUnknownType(t *testing.T) {
	r := testRegistry()

	_, err := r.CreateHandler(models.StepBuild, protocol.Dependencies{})
	require.ErrorIs(t, err, ErrStepNotRegistered)
}

func TestValidateConfig(t *testing.T) {
	schema := map[string]any{
		"type":     "object",
		"required": []any{"command"},
		"properties": map[string]any{
			"command": map[string]any{"type": "string"},
		},
	}
	r := testRegistry(stubFactory{id: models.StepRunCommand, schema: schema})

	require.NoError(t, r.ValidateConfig(models.StepRunCommand, map[string]any{"command": "make"}))

	err := r.ValidateConfig(models.StepRunCommand, map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "command")
}

func TestValidateConfigNilSchemaAccepts(t *testing.T) {
	r := testRegistry(stubFactory{id: models.StepPull})

	require.NoError(t, r.ValidateConfig(models.StepPull, nil))
}

func TestStepTypes(t *testing.T) {
	r := testRegistry(stubFactory{id: models.StepBuild}, stubFactory{id: models.StepTest})

	assert.ElementsMatch(t, []models.StepType{models.StepBuild, models.StepTest}, r.StepTypes())
}
