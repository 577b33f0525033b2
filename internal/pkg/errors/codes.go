package errors

import "net/http"

// Error codes. Messages are English for logs; the dashboard translates codes.

// Notification error codes.
const (
	CodeNotificationNotFound = "NOTIFICATION_NOT_FOUND"
	CodeInvalidUser          = "INVALID_USER"
	CodeStoreUnavailable     = "STORE_UNAVAILABLE"
	CodeBroadcastFailed      = "BROADCAST_FAILED"
)

// Generic error codes.
const (
	CodeInternal = "INTERNAL_ERROR"
)

// Auth error codes.
const (
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeTokenExpired = "TOKEN_EXPIRED"
)

// Validation error codes.
const (
	CodeValidationFailed    = "VALIDATION_FAILED"
	CodeInvalidRequestField = "INVALID_REQUEST_FIELD"
)

// Field-level codes used inside FieldError.Code.
const (
	FieldRequired = "REQUIRED"
	FieldInvalid  = "INVALID"
	FieldTooLong  = "TOO_LONG"
)

// ErrNotificationNotFound creates the 404 returned for unknown notification ids.
func ErrNotificationNotFound(id string) *AppError {
	return (&AppError{
		Code:       CodeNotificationNotFound,
		Message:    "notification not found",
		HTTPStatus: http.StatusNotFound,
	}).WithParams(map[string]interface{}{"id": id})
}

// ErrValidation creates a 400 carrying field-level errors.
func ErrValidation(fieldErrors []FieldError) *AppError {
	return (&AppError{
		Code:       CodeValidationFailed,
		Message:    "request validation failed",
		HTTPStatus: http.StatusBadRequest,
	}).WithFieldErrors(fieldErrors)
}

// ErrInvalidRequestField creates a bad request error for unknown or malformed fields.
func ErrInvalidRequestField(detail string) *AppError {
	return &AppError{
		Code:       CodeInvalidRequestField,
		Message:    "malformed request body: " + detail,
		HTTPStatus: http.StatusBadRequest,
	}
}

// ErrForbidden creates the 403 returned when the caller may not touch a
// notification or address another user.
func ErrForbidden(err error) *AppError {
	return Wrap(err, CodeForbidden, "not allowed to access this notification", http.StatusForbidden)
}

// ErrInvalidUser creates the 400 returned when the recipient does not exist.
func ErrInvalidUser(err error) *AppError {
	return Wrap(err, CodeInvalidUser, "recipient does not exist", http.StatusBadRequest)
}

// ErrStoreUnavailable creates the 503 returned when persistence fails.
func ErrStoreUnavailable(err error) *AppError {
	return Wrap(err, CodeStoreUnavailable, "notification store unavailable", http.StatusServiceUnavailable)
}

// ErrBroadcastFailed creates the 503 returned when a broadcast cannot be queued.
func ErrBroadcastFailed(err error) *AppError {
	return Wrap(err, CodeBroadcastFailed, "failed to enqueue broadcast", http.StatusServiceUnavailable)
}

// ErrInternal creates the generic 500.
func ErrInternal(err error) *AppError {
	return Wrap(err, CodeInternal, "An internal error occurred", http.StatusInternalServerError)
}
