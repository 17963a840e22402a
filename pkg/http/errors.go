package http

import (
	"fmt"
	"net/http"
)

// AppError is an API error with its HTTP status. Validation failures carry one
// FieldError per rejected field in Details.
type AppError struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
	Status  int          `json:"-"`
	Err     error        `json:"-"`
}

// FieldError describes one rejected request field.
type FieldError struct {
	Code    string                 `json:"code"`
	Field   string                 `json:"field,omitempty"`
	Message string                 `json:"message"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// WithError attaches the cause. It is logged, never serialized.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// Errorf builds an AppError with an explicit status and code.
func Errorf(status int, code, format string, a ...interface{}) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, a...), Status: status}
}

func BadRequestErrorf(format string, a ...interface{}) *AppError {
	return Errorf(http.StatusBadRequest, "ERR_BAD_REQUEST", format, a...)
}

func NotFoundErrorf(format string, a ...interface{}) *AppError {
	return Errorf(http.StatusNotFound, "ERR_NOT_FOUND", format, a...)
}

// UnprocessableErrorf is for well-formed requests the engine cannot act on.
func UnprocessableErrorf(code, format string, a ...interface{}) *AppError {
	return Errorf(http.StatusUnprocessableEntity, code, format, a...)
}

func TooManyRequestsError(message string) *AppError {
	return Errorf(http.StatusTooManyRequests, "ERR_RATE_LIMITED", "%s", message)
}

func InternalErrorf(format string, a ...interface{}) *AppError {
	return Errorf(http.StatusInternalServerError, "ERR_INTERNAL", format, a...)
}

// ValidationFailed wraps field errors into a 400.
func ValidationFailed(details []FieldError) *AppError {
	e := Errorf(http.StatusBadRequest, "ERR_VALIDATION", "request validation failed")
	e.Details = details
	return e
}
