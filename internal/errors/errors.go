// Package errors provides the sentinel domain errors repositories return to
// express business intent (not found, conflict) independent of the
// database driver underneath them.
package errors

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates the requested lead, sequence step, or template row
// does not exist in the external catalog.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a write lost a race against another instance of the
// same component, e.g. an outbox idemKey collision.
var ErrConflict = errors.New("conflict")

// Wrap wraps an error with additional context while preserving the error
// chain, or returns nil unchanged.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}
