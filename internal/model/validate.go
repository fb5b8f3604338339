package model

import (
	"fmt"
	"strings"
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// ValidateEvent checks an Event for constraint violations.
// It returns a *ValidationError if any rules fail, or nil if the event is valid.
func ValidateEvent(e *Event) error {
	var ve ValidationError

	for _, f := range []struct {
		name  string
		value string
	}{
		{"id", e.ID},
		{"agent_id", e.AgentID},
		{"task_id", e.TaskID},
		{"title", e.Title},
	} {
		if f.value == "" {
			ve.Errors = append(ve.Errors, FieldError{Field: f.name, Message: "is required"})
		}
	}

	// Status: closed set.
	if !e.Status.IsValid() {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "status",
			Message: fmt.Sprintf("invalid value %q", e.Status),
		})
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}
