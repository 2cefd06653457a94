package models

import "time"

// ActionInput declares one typed input of a reusable action script.
type ActionInput struct {
	Name        string `json:"name"        validate:"required"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Default     string `json:"default,omitempty"`
}

// Action is a named reusable shell script with declared inputs,
// consumed by the run-action step. Inputs are injected as environment
// assignments prepended to the script.
type Action struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"        validate:"required,min=1"`
	Description string        `json:"description"`
	Script      string        `json:"script"      validate:"required"`
	Inputs      []ActionInput `json:"inputs,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}
