// Package errors defines the error taxonomy shared by every fleet service.
//
// Configuration errors are fatal and only raised while an instance is
// initializing. Transport and unavailable errors are per request and carry the
// HTTP status they are answered with.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Code identifies the class of a ServiceError.
type Code string

const (
	CodeConfiguration     Code = "CONFIGURATION_ERROR"
	CodeBadRequest        Code = "BAD_REQUEST"
	CodeNotFound          Code = "NOT_FOUND"
	CodeMethodNotAllowed  Code = "METHOD_NOT_ALLOWED"
	CodeRateLimitExceeded Code = "RATE_LIMIT_EXCEEDED"
	CodeUnavailable       Code = "SERVICE_UNAVAILABLE"
	CodeInternal          Code = "INTERNAL_ERROR"
)

// ServiceError is the structured error used across the fleet.
type ServiceError struct {
	Code       Code           `json:"code"`
	Message    string         `json:"message"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Err        error          `json:"-"`
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetail returns the error with an extra detail attached.
func (e *ServiceError) WithDetail(key string, value any) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Configuration reports a startup misconfiguration. Instances never reach
// Ready when construction returns one of these.
func Configuration(format string, args ...any) *ServiceError {
	return &ServiceError{
		Code:       CodeConfiguration,
		Message:    fmt.Sprintf(format, args...),
		HTTPStatus: http.StatusInternalServerError,
	}
}

// WrapConfiguration wraps err as a configuration error.
func WrapConfiguration(err error, message string) *ServiceError {
	return &ServiceError{
		Code:       CodeConfiguration,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// BadRequest reports a malformed request.
func BadRequest(message string) *ServiceError {
	return &ServiceError{Code: CodeBadRequest, Message: message, HTTPStatus: http.StatusBadRequest}
}

// NotFound reports a request for a path the instance does not serve.
func NotFound(path string) *ServiceError {
	return (&ServiceError{
		Code:       CodeNotFound,
		Message:    "no operation registered for path",
		HTTPStatus: http.StatusNotFound,
	}).WithDetail("path", path)
}

// MethodNotAllowed reports a known path called with the wrong method.
func MethodNotAllowed(method, path string) *ServiceError {
	return (&ServiceError{
		Code:       CodeMethodNotAllowed,
		Message:    "method not allowed for path",
		HTTPStatus: http.StatusMethodNotAllowed,
	}).WithDetail("method", method).WithDetail("path", path)
}

// RateLimitExceeded reports a client over its request budget.
func RateLimitExceeded(limit int, window string) *ServiceError {
	return (&ServiceError{
		Code:       CodeRateLimitExceeded,
		Message:    "rate limit exceeded",
		HTTPStatus: http.StatusTooManyRequests,
	}).WithDetail("limit", limit).WithDetail("window", window)
}

// Unavailable reports an instance that is not accepting new requests.
func Unavailable(state string) *ServiceError {
	return (&ServiceError{
		Code:       CodeUnavailable,
		Message:    "instance is not accepting requests",
		HTTPStatus: http.StatusServiceUnavailable,
	}).WithDetail("state", state)
}

// Internal reports an unexpected failure while handling one request.
func Internal(err error) *ServiceError {
	return &ServiceError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// IsConfiguration reports whether err is, or wraps, a configuration error.
func IsConfiguration(err error) bool {
	return HasCode(err, CodeConfiguration)
}

// HasCode reports whether err is, or wraps, a ServiceError with the given code.
func HasCode(err error, code Code) bool {
	var se *ServiceError
	if stderrors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// As is errors.As restricted to ServiceError.
func As(err error) (*ServiceError, bool) {
	var se *ServiceError
	if stderrors.As(err, &se) {
		return se, true
	}
	return nil, false
}
