package engine

import (
	"errors"
	"fmt"
)

// SchemaError reports a bad field declaration. It is raised while a model
// is defined, or when a reference names a model that was never defined.
type SchemaError struct {
	Model  string
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("schema error in %s: %s", e.Model, e.Reason)
	}
	return fmt.Sprintf("schema error in %s.%s: %s", e.Model, e.Field, e.Reason)
}

// ValidationError is the first constraint violation found by Validate.
type ValidationError struct {
	Collection string
	Field      string
	Value      interface{}
	Message    string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NotOverriddenError is returned when an operation that needs an
// independent identity is called on an embedded model.
type NotOverriddenError struct {
	Model  string
	Method string
}

func (e *NotOverriddenError) Error() string {
	return fmt.Sprintf("%s must be overridden: %s is an embedded model without identity", e.Method, e.Model)
}

var (
	ErrNoBackend      = errors.New("model registry has no storage backend")
	ErrUnknownModel   = errors.New("unknown model")
	ErrModelExists    = errors.New("model already defined")
	ErrBadFillPayload = errors.New("fill expects a record or a native id")
)

const errUnsupportedType = "unsupported type or bad variable"

func newValidationError(collection, field string, value interface{}, format string, args ...interface{}) *ValidationError {
	return &ValidationError{
		Collection: collection,
		Field:      field,
		Value:      value,
		Message:    fmt.Sprintf(format, args...),
	}
}
