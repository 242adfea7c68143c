package models

import (
	"errors"
	"fmt"
)

// Record is a single stored document as the backend sees it: a flat mapping
// of field name to backend-native value. Embedded documents are nested maps,
// references are bare ids.
type Record map[string]interface{}

// Query is passed through to the backend untouched.
type Query map[string]interface{}

// FindOptions controls loadMany/loadOne style lookups.
type FindOptions struct {
	// Sort lists field names, a leading "-" sorts descending.
	Sort []string

	Skip  int
	Limit int

	// Populate restricts which reference fields get resolved after the load.
	// Empty means every reference field.
	Populate []string

	// SkipPopulate disables reference resolution entirely.
	SkipPopulate bool
}

// UpdateOptions controls findOneAndUpdate.
type UpdateOptions struct {
	Upsert bool
}

// BackendError wraps every failure reported by a storage backend. The
// document layer hands it to callers unchanged.
type BackendError struct {
	Op         string
	Collection string
	Err        error
}

func (e *BackendError) Error() string {
	if e.Collection == "" {
		return fmt.Sprintf("backend %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("backend %s on %s: %v", e.Op, e.Collection, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// NewBackendError builds a BackendError, returning nil for a nil err.
func NewBackendError(op, collection string, err error) error {
	if err == nil {
		return nil
	}
	var be *BackendError
	if errors.As(err, &be) {
		return err
	}
	return &BackendError{Op: op, Collection: collection, Err: err}
}

var (
	ErrClosed         = errors.New("backend is closed")
	ErrInvalidID      = errors.New("invalid document id")
	ErrUnsupportedURL = errors.New("unsupported connection url")
)
