// Package schema compiles desired indexes into idempotent SQL scripts. It never
// talks to a database.
package schema

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration      = errors.New("configuration error")
	ErrInvariantViolation = errors.New("generation invariant violation")
)

// ConfigurationError is raised before any text is produced. Position is the
// zero-based index of the offending spec, or -1 when the problem is not tied to
// a spec.
type ConfigurationError struct {
	Position int
	Field    string
	Message  string
}

func (e *ConfigurationError) Error() string {
	if e.Position < 0 {
		return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("configuration error: index #%d: %s: %s", e.Position+1, e.Field, e.Message)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// InvariantViolation means the rendered column text would not normalize back
// to the signature computed from the spec. It is a defect, not a user error.
type InvariantViolation struct {
	Position   int
	Rendered   string
	Expected   string
	Normalized string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("generation invariant violation: index #%d: rendered columns %q normalize to %q, expected %q",
		e.Position+1, e.Rendered, e.Normalized, e.Expected)
}

func (e *InvariantViolation) Is(target error) bool {
	return target == ErrInvariantViolation
}

func specError(position int, field string, format string, args ...any) error {
	return &ConfigurationError{
		Position: position,
		Field:    field,
		Message:  fmt.Sprintf(format, args...),
	}
}
