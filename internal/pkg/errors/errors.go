// Package errors defines AppError, the error type the HTTP layer renders.
// Domain packages return plain sentinel errors; handlers translate them
// with the constructors in codes.go.
package errors

import (
	"errors"
	"fmt"
)

// AppError carries a machine-readable code, an HTTP status and optional
// structured details for the dashboard.
type AppError struct {
	Code        string                 `json:"code"`
	Message     string                 `json:"message"`
	HTTPStatus  int                    `json:"-"`
	Params      map[string]interface{} `json:"params,omitempty"`
	FieldErrors []FieldError           `json:"field_errors,omitempty"`

	// Err is logged but never rendered.
	Err error `json:"-"`
}

// FieldError describes one invalid request field.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Code + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

// New creates an AppError.
func New(code, message string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus}
}

// Wrap creates an AppError around err.
func Wrap(err error, code, message string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus, Err: err}
}

// WithParams sets Params unless params is empty.
func (e *AppError) WithParams(params map[string]interface{}) *AppError {
	if e != nil && len(params) > 0 {
		e.Params = params
	}
	return e
}

// WithFieldErrors sets FieldErrors unless fieldErrors is empty.
func (e *AppError) WithFieldErrors(fieldErrors []FieldError) *AppError {
	if e != nil && len(fieldErrors) > 0 {
		e.FieldErrors = fieldErrors
	}
	return e
}

// IsAppError returns the first AppError in err's chain.
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
