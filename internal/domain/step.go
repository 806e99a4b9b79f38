package domain

import (
	"context"
	"errors"
)

// Step error codes reported in StepError.ErrorCode.
const (
	ErrCodeExternalService   = "EXTERNAL_SERVICE_ERROR"
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeSecurityViolation = "SECURITY_VIOLATION"
	ErrCodeTimeout           = "TIMEOUT"
	ErrCodeStepFailed        = "STEP_FAILED"
)

// StepResult is the immutable outcome of one pipeline stage. Result is set iff
// Success; Error is set iff !Success and always carries a non-empty ErrorCode.
type StepResult struct {
	Success    bool           `json:"success"`
	Message    string         `json:"message"`
	Result     map[string]any `json:"result,omitempty"`
	Error      *StepError     `json:"error,omitempty"`
	DurationMs int64          `json:"durationMs"`
}

// StepError is the failure payload of a StepResult.
type StepError struct {
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
	StatusCode   int    `json:"statusCode,omitempty"`
}

// ErrorCoder lets an error choose its own step error code.
type ErrorCoder interface {
	StepErrorCode() string
}

// NewStepError classifies err into a StepError.
func NewStepError(err error) *StepError {
	se := &StepError{ErrorCode: ErrCodeStepFailed}
	if err == nil {
		se.ErrorMessage = "unknown error"
		return se
	}
	se.ErrorMessage = err.Error()

	var (
		coder    ErrorCoder
		external *ExternalServiceError
		valErr   *ValidationError
		notFound *NotFoundError
		security *SecurityViolationError
	)
	switch {
	case errors.As(err, &coder) && coder.StepErrorCode() != "":
		se.ErrorCode = coder.StepErrorCode()
	case errors.As(err, &external):
		se.ErrorCode = ErrCodeExternalService
		se.StatusCode = external.StatusCode
	case errors.As(err, &valErr):
		se.ErrorCode = ErrCodeValidation
	case errors.As(err, &notFound):
		se.ErrorCode = ErrCodeNotFound
	case errors.As(err, &security):
		se.ErrorCode = ErrCodeSecurityViolation
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		se.ErrorCode = ErrCodeTimeout
	}
	return se
}
