// Package apperr holds the error taxonomy shared by the dispatch core.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrUnknownAmbulance    = fmt.Errorf("unknown ambulance: %w", ErrNotFound)
	ErrInvalidLocationData = errors.New("invalid location data for ETA calculation")
	ErrResolverUnavailable = errors.New("facility resolver unavailable")
	ErrNoFacility          = errors.New("no facility found within radius")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrStorage             = errors.New("storage error")
)

// ValidationError reports malformed input that was rejected before any write.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// Validation builds a *ValidationError.
func Validation(field, format string, args ...any) error {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err carries a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Storage wraps a persistence failure so callers can match ErrStorage.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

// Retry runs fn up to attempts times while it keeps failing with ErrStorage.
// Any other error is returned immediately.
func Retry(attempts int, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil || !errors.Is(err, ErrStorage) {
			return err
		}
	}
	return err
}
