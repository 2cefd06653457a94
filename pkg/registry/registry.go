// Package registry holds the step factory catalog. Handlers are
// created per run through the factories; node configuration is
// validated against each factory's JSON schema before a handler ever
// sees it.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/buildforge/buildforge/pkg/models"
	"github.com/buildforge/buildforge/pkg/protocol"
)

var ErrStepNotRegistered = errors.New("step type not registered")

type Registry struct {
	logger        *slog.Logger
	stepFactories map[models.StepType]protocol.StepFactory
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:        logger.With("module", "registry"),
		stepFactories: make(map[models.StepType]protocol.StepFactory),
	}
}

func (r *Registry) RegisterStep(factory protocol.StepFactory) {
	r.stepFactories[factory.ID()] = factory
}

// CreateHandler builds the handler for a step type, bound to the
// shared dependencies.
func (r *Registry) CreateHandler(stepType models.StepType, deps protocol.Dependencies) (protocol.StepHandler, error) {
	factory, ok := r.stepFactories[stepType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStepNotRegistered, stepType)
	}

	return factory.Create(deps)
}

// ValidateConfig checks a node's configuration against its step
// type's schema.
func (r *Registry) ValidateConfig(stepType models.StepType, config map[string]any) error {
	factory, ok := r.stepFactories[stepType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrStepNotRegistered, stepType)
	}

	schema := factory.Schema()
	if schema == nil {
		return nil
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)

	if config == nil {
		config = map[string]any{}
	}

	dataLoader := gojsonschema.NewGoLoader(config)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("schema validation for %s: %w", stepType, err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, resultError := range result.Errors() {
			details = append(details, resultError.String())
		}

		return fmt.Errorf("invalid %s configuration: %s", stepType, strings.Join(details, "; "))
	}

	return nil
}

// StepTypes returns the registered step types in no particular order.
func (r *Registry) StepTypes() []models.StepType {
	types := make([]models.StepType, 0, len(r.stepFactories))
	for stepType := range r.stepFactories {
		types = append(types, stepType)
	}

	return types
}

// Factory exposes one factory's metadata, for the API's step catalog
// endpoint.
func (r *Registry) Factory(stepType models.StepType) (protocol.StepFactory, bool) {
	factory, ok := r.stepFactories[stepType]

	return factory, ok
}
