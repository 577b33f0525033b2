package notification

import (
	"errors"
	"strings"

	apperrors "smartspray.io/notifier/internal/pkg/errors"
)

var (
	// ErrValidation marks a malformed creation request or record.
	ErrValidation = errors.New("notification: validation failed")
	// ErrNotFound marks an operation on an unknown notification id.
	ErrNotFound = errors.New("notification: not found")
	// ErrForbidden marks a non-owner, non-admin access.
	ErrForbidden = errors.New("notification: forbidden")
	// ErrProviderFailure marks a failed or timed-out channel send. It never
	// reaches callers of Dispatcher.Create.
	ErrProviderFailure = errors.New("notification: provider failure")
	// ErrInvalidUser marks a missing or unknown recipient.
	ErrInvalidUser = errors.New("notification: invalid user")
	// ErrStoreUnavailable marks a persistence outage.
	ErrStoreUnavailable = errors.New("notification: store unavailable")
)

// ValidationError carries field-level details and matches ErrValidation.
type ValidationError struct {
	Fields []apperrors.FieldError
}

func (e *ValidationError) Error() string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Field
	}
	return ErrValidation.Error() + ": " + strings.Join(names, ", ")
}

// Is lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// FieldErrors extracts field errors from err, if it is a *ValidationError.
func FieldErrors(err error) []apperrors.FieldError {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Fields
	}
	return nil
}
