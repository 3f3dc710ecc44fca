// Package errors defines the service error type shared by handlers and middleware.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Code is a stable machine-readable error code.
type Code string

const (
	CodeBadRequest           Code = "BAD_REQUEST"
	CodeValidation           Code = "VALIDATION_FAILED"
	CodeUnauthorized         Code = "UNAUTHORIZED"
	CodeInvalidToken         Code = "INVALID_TOKEN"
	CodeForbidden            Code = "FORBIDDEN"
	CodeNotFound             Code = "NOT_FOUND"
	CodeConflict             Code = "CONFLICT"
	CodePayloadTooLarge      Code = "PAYLOAD_TOO_LARGE"
	CodeUnsupportedMediaType Code = "UNSUPPORTED_MEDIA_TYPE"
	CodeRateLimitExceeded    Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal             Code = "INTERNAL_ERROR"
	CodeUnavailable          Code = "SERVICE_UNAVAILABLE"
)

// ServiceError is an error with an HTTP mapping and optional details.
type ServiceError struct {
	Code       Code
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	Err        error
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

// WithDetails returns the error with an extra detail entry.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func newError(code Code, status int, message string, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

func BadRequest(message string) *ServiceError {
	return newError(CodeBadRequest, http.StatusBadRequest, message, nil)
}

// Validation reports a rejected field value.
func Validation(field, message string) *ServiceError {
	return newError(CodeValidation, http.StatusBadRequest, message, nil).WithDetails("field", field)
}

func Unauthorized(message string) *ServiceError {
	if message == "" {
		message = "authentication required"
	}
	return newError(CodeUnauthorized, http.StatusUnauthorized, message, nil)
}

func InvalidToken(err error) *ServiceError {
	return newError(CodeInvalidToken, http.StatusUnauthorized, "invalid or expired token", err)
}

func Forbidden(message string) *ServiceError {
	return newError(CodeForbidden, http.StatusForbidden, message, nil)
}

func NotFound(resource, id string) *ServiceError {
	return newError(CodeNotFound, http.StatusNotFound, fmt.Sprintf("%s not found", resource), nil).WithDetails("id", id)
}

func Conflict(message string) *ServiceError {
	return newError(CodeConflict, http.StatusConflict, message, nil)
}

// PayloadTooLarge reports a body over limit bytes.
func PayloadTooLarge(limit int64) *ServiceError {
	return newError(CodePayloadTooLarge, http.StatusRequestEntityTooLarge,
		fmt.Sprintf("file exceeds the %d MB limit", limit/(1024*1024)), nil).WithDetails("limit_bytes", limit)
}

func UnsupportedMediaType(contentType string) *ServiceError {
	return newError(CodeUnsupportedMediaType, http.StatusUnsupportedMediaType, "unsupported file type", nil).
		WithDetails("content_type", contentType)
}

func RateLimitExceeded(limit int, window string) *ServiceError {
	return newError(CodeRateLimitExceeded, http.StatusTooManyRequests, "rate limit exceeded", nil).
		WithDetails("limit", limit).WithDetails("window", window)
}

func Internal(message string, err error) *ServiceError {
	return newError(CodeInternal, http.StatusInternalServerError, message, err)
}

func Unavailable(message string, err error) *ServiceError {
	return newError(CodeUnavailable, http.StatusServiceUnavailable, message, err)
}

// GetServiceError extracts a *ServiceError from err's chain, or nil.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if stderrors.As(err, &se) {
		return se
	}
	return nil
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	se := GetServiceError(err)
	return se != nil && se.Code == code
}
