package config

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigDirRequired is returned when no configuration directory was supplied.
	ErrConfigDirRequired = errors.New("config directory is required")
	// ErrConfigFileNotFound is returned when the base config.yaml is missing.
	ErrConfigFileNotFound = errors.New("config file not found")
	// ErrInvalidYAML is returned when a config file fails to parse.
	ErrInvalidYAML = errors.New("invalid YAML")
	// ErrMissingRequiredField is returned by validation when a required key has no value.
	ErrMissingRequiredField = errors.New("missing required field")
	// ErrInvalidValue is returned by validation when a value is out of its allowed range or set.
	ErrInvalidValue = errors.New("invalid value")
)

// ValidationError wraps a configuration validation failure with the component
// and field it was raised against, matching the teacher's errors.go shape.
type ValidationError struct {
	Component string
	Field     string
	Err       error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %v", e.Component, e.Err)
	}
	return fmt.Sprintf("%s.%s: %v", e.Component, e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func newValidationError(component, field string, err error) *ValidationError {
	return &ValidationError{Component: component, Field: field, Err: err}
}
