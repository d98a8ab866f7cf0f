package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation        = NewError("VALIDATION_ERROR", "validation failed", http.StatusBadRequest)
	ErrInternal          = NewError("INTERNAL_ERROR", "internal server error", http.StatusInternalServerError)
	ErrInvalidAPIKey     = NewError("INVALID_API_KEY", "invalid api key", http.StatusUnauthorized)
	ErrSourceDisabled    = NewError("SOURCE_DISABLED", "source is not accepting leads", http.StatusForbidden)
	ErrIntakeUnavailable = NewError("INTAKE_UNAVAILABLE", "intake is temporarily unavailable", http.StatusServiceUnavailable)
)

type FatalError interface {
	error
	IsFatal() bool
}

// Error is a coded error that carries the HTTP status to surface it with.
type Error struct {
	Code    string
	Message string
	Status  int
	Details map[string]interface{}
	Cause   error
	fatal   bool
}

func NewError(code, message string, status int) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Status:  status,
	}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsFatal reports whether the error must not be retried. Client errors
// never succeed on retry; server-side codes inherit from their cause.
func (e *Error) IsFatal() bool {
	if e.fatal {
		return true
	}
	if e.Status >= http.StatusBadRequest && e.Status < http.StatusInternalServerError {
		return true
	}
	var fatalErr FatalError
	if e.Cause != nil && errors.As(e.Cause, &fatalErr) {
		return fatalErr.IsFatal()
	}
	return false
}

func (e *Error) WithCause(cause error) *Error {
	err := *e
	err.Cause = cause
	return &err
}

func (e *Error) WithDetail(key string, value interface{}) *Error {
	err := *e
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	err.Details = details
	return &err
}

func (e *Error) AsFatal() *Error {
	err := *e
	err.fatal = true
	return &err
}

func ToHTTPStatus(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

func ToErrorResponse(err error) map[string]interface{} {
	var appErr *Error
	if !errors.As(err, &appErr) {
		appErr = ErrInternal.WithCause(err)
	}

	response := map[string]interface{}{
		"error":      appErr.Message,
		"error_code": appErr.Code,
	}
	if len(appErr.Details) > 0 {
		response["details"] = appErr.Details
	}
	return response
}
