package models

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")

	// ErrWriteFailure means the atomic write did not commit. Nothing was applied; retrying is safe.
	ErrWriteFailure = errors.New("write failed")

	// ErrConflict means the customer changed between read and write (version check lost).
	ErrConflict = errors.New("concurrent modification")

	ErrUndoExpired     = errors.New("undo window expired")
	ErrUndoUnavailable = errors.New("nothing to undo")
)

// ValidationError reports a rejected input before any write happened.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFound wraps ErrNotFound with the kind and id of the missing record.
func NotFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}

// WriteFailure wraps a storage error so callers can detect it with errors.Is(err, ErrWriteFailure).
func WriteFailure(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrWriteFailure, err)
}
