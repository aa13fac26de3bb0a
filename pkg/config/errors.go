package config

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigNotFound indicates a configuration file was not found.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrInvalidYAML indicates YAML parsing failed.
	ErrInvalidYAML = errors.New("invalid YAML syntax")

	// ErrValidationFailed indicates configuration validation failed.
	ErrValidationFailed = errors.New("configuration validation failed")

	// ErrProviderNotFound indicates a provider was not found in settings.
	ErrProviderNotFound = errors.New("provider not found")
)

// ValidationError wraps configuration validation errors with context.
type ValidationError struct {
	Section string // Section being validated (pipeline, router, provider, ...)
	ID      string // ID of the component (optional)
	Field   string // Field name (optional)
	Err     error
}

// Error returns a formatted error message.
func (e *ValidationError) Error() string {
	switch {
	case e.ID != "" && e.Field != "":
		return fmt.Sprintf("%s '%s': field '%s': %v", e.Section, e.ID, e.Field, e.Err)
	case e.Field != "":
		return fmt.Sprintf("%s: field '%s': %v", e.Section, e.Field, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Section, e.Err)
	}
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new validation error.
func NewValidationError(section, id, field string, err error) *ValidationError {
	return &ValidationError{Section: section, ID: id, Field: field, Err: err}
}

// NewLoadError wraps a file load failure with the file name.
func NewLoadError(file string, err error) error {
	return fmt.Errorf("loading %s: %w", file, err)
}
