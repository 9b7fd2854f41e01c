package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a conversation, message or quick response does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when an external message was already recorded.
	ErrDuplicate = errors.New("duplicate message")
)

// ValidationError rejects malformed input before anything is applied.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Invalid builds a ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
