package errors

import (
	"errors"
	"fmt"
)

// AppError represents a structured application error
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Code:    appErr.Code,
			Message: message,
			Cause:   appErr,
		}
	}
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WithCode adds an error code to an existing error
func WithCode(code string, err error) error {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Code:    code,
			Message: appErr.Message,
			Cause:   appErr.Cause,
		}
	}
	return &AppError{
		Code:    code,
		Message: err.Error(),
		Cause:   err,
	}
}

// GetCode returns the error code if the chain contains an AppError, otherwise "UNKNOWN"
func GetCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

// HasCode reports whether the error chain carries the given code
func HasCode(err error, code string) bool {
	return GetCode(err) == code
}

// Predefined error codes
const (
	CodeConfigInvalid  = "CONFIG_INVALID"
	CodeInvalidInput   = "INVALID_INPUT"
	CodeInternalError  = "INTERNAL_ERROR"
	CodeEngineFailure  = "ENGINE_FAILURE"
	CodeNonConvergence = "NON_CONVERGENCE"
	CodeShapeMismatch  = "SHAPE_MISMATCH"
)

// Common error constructors
func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func InvalidInput(message string) *AppError {
	return New(CodeInvalidInput, message)
}

func InternalError(message string) *AppError {
	return New(CodeInternalError, message)
}

// EngineFailure marks a failure invoking the external inference engine
func EngineFailure(stage string, cause error) *AppError {
	return &AppError{
		Code:    CodeEngineFailure,
		Message: fmt.Sprintf("inference engine failed during %s", stage),
		Cause:   cause,
	}
}

// NonConvergence marks a per-run diagnostic failure reported by the engine.
// The run's rank statistic is invalid and must be excluded from the
// aggregate, with the exclusion surfaced in the final report.
func NonConvergence(message string) *AppError {
	return New(CodeNonConvergence, message)
}

// ShapeMismatch marks engine output that violates the declared data contract
// (empty draw set, wrong dimensionality). Fatal for the run: abort with a
// diagnostic, never coerce.
func ShapeMismatch(message string) *AppError {
	return New(CodeShapeMismatch, message)
}

// IsNonConvergence reports whether the error is a per-run convergence failure
func IsNonConvergence(err error) bool {
	return HasCode(err, CodeNonConvergence)
}

// IsShapeMismatch reports whether the error is a data-contract violation
func IsShapeMismatch(err error) bool {
	return HasCode(err, CodeShapeMismatch)
}
