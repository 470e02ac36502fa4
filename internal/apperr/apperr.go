// Package apperr defines the error kinds shared across Daffodil services.
// Components wrap one of the sentinels with %w so callers (REST, gRPC, workers)
// can classify failures with errors.Is without depending on storage details.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks input that violates a business rule (e.g. variant weights != 100).
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks operations against an unknown user, segment or experiment.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a uniqueness violation (duplicate segment or experiment name).
	ErrConflict = errors.New("conflict")

	// ErrUnavailable marks a transient failure of the store, cache, broker or scheduler.
	// Callers may retry.
	ErrUnavailable = errors.New("upstream unavailable")
)

// Validation returns an ErrValidation carrying a formatted message.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFound returns an ErrNotFound naming the missing entity.
func NotFound(entity, id string) error {
	return fmt.Errorf("%w: %s %q", ErrNotFound, entity, id)
}

// Unavailable wraps err as ErrUnavailable, keeping the original error in the chain.
func Unavailable(component string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, component, err)
}

// Kind returns the sentinel that err wraps, or nil if err is unclassified.
func Kind(err error) error {
	for _, kind := range []error{ErrValidation, ErrNotFound, ErrConflict, ErrUnavailable} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
