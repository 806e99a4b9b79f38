// Package domain defines core types, interfaces, and errors for the dataset ingestion BFF.
package domain

import (
	"fmt"
	"net/http"
)

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// AccessDeniedError indicates insufficient permissions.
type AccessDeniedError struct {
	Message string
}

func (e *AccessDeniedError) Error() string { return e.Message }

// ValidationError indicates invalid input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError indicates a conflict (e.g., duplicate resource).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrAccessDenied creates an AccessDeniedError with a formatted message.
func ErrAccessDenied(format string, args ...interface{}) *AccessDeniedError {
	return &AccessDeniedError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// Downstream service names used in ExternalServiceError.
const (
	ServiceObjectStore = "object-store"
	ServiceCatalog     = "catalog"
)

// ExternalServiceError is the single error kind surfaced to callers when a
// downstream object-store or catalog call fails. StatusCode is the HTTP status
// reported by the downstream service, or a gateway status (502/504) when no
// response was received.
type ExternalServiceError struct {
	Service    string
	Operation  string
	StatusCode int
	Message    string
	Err        error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("external service error: %s %s failed (status %d): %s",
		e.Service, e.Operation, e.StatusCode, e.Message)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// Timeout reports whether the downstream call timed out.
func (e *ExternalServiceError) Timeout() bool {
	return e.StatusCode == http.StatusGatewayTimeout
}

// ErrExternal creates an ExternalServiceError wrapping cause.
func ErrExternal(service, operation string, status int, cause error) *ExternalServiceError {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &ExternalServiceError{
		Service:    service,
		Operation:  operation,
		StatusCode: status,
		Message:    msg,
		Err:        cause,
	}
}

// SecurityViolationError indicates a filesystem path escaped its permitted root.
type SecurityViolationError struct {
	Path string
	Root string
}

func (e *SecurityViolationError) Error() string {
	return fmt.Sprintf("security violation: path %q is outside %q", e.Path, e.Root)
}
