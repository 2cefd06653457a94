package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations use.
var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrActionNotFound indicates an action was not found by id or name.
	ErrActionNotFound = errors.New("action not found")

	// ErrRepositoryNotFound indicates a repository binding was not found.
	ErrRepositoryNotFound = errors.New("repository not found")

	// ErrWorkflowAlreadyExists indicates a workflow with the same identifier already exists.
	ErrWorkflowAlreadyExists = errors.New("workflow already exists")
)

// StoreError wraps persistence errors with operation context.
type StoreError struct {
	Op     string // operation being performed (e.g. "WorkflowByID", "SaveAction")
	Entity string // entity kind ("workflow", "action", "repository", "run")
	ID     string // entity identifier if applicable
	Err    error
}

func (e *StoreError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s failed for %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
	}

	return fmt.Sprintf("%s failed for %s: %v", e.Op, e.Entity, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return errors.Is(e.Err, target) }

// NewStoreError creates a store error with context.
func NewStoreError(op, entity, id string, err error) *StoreError {
	return &StoreError{Op: op, Entity: entity, ID: id, Err: err}
}

// IsNotFound reports whether err is any of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound) ||
		errors.Is(err, ErrActionNotFound) ||
		errors.Is(err, ErrRepositoryNotFound)
}
