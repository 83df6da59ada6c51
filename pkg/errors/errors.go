// Package errors provides common, reusable error values and helpers.
package errors

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrPurchaseNotFound = errors.New("purchase not found")
	ErrDeviceNotFound   = errors.New("device not found")
	ErrMovieNotFound    = errors.New("movie not found")
	ErrDuplicateRequest = errors.New("duplicate request in progress")

	// Registration races lost to a concurrent writer of the same row.
	ErrConcurrentUpdate = errors.New("concurrent update")
)

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}
