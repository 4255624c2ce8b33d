// Package errors provides error code definitions for the fieldsync agent.
package errors

import "fmt"

// ErrorCode represents a unique error code surfaced to the UI layer.
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrInvalid    ErrorCode = "INVALID_INPUT"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrValidation ErrorCode = "VALIDATION_ERROR"

	// Database errors
	ErrDatabase  ErrorCode = "DATABASE_ERROR"
	ErrMigration ErrorCode = "MIGRATION_FAILED"

	// Scheduling validation errors. These are synchronous and blocking:
	// rejection happens before any local write or queue enqueue.
	ErrSlotCapacity          ErrorCode = "SLOT_CAPACITY_EXCEEDED"
	ErrPastImmutable         ErrorCode = "PAST_IMMUTABLE"
	ErrJustificationRequired ErrorCode = "JUSTIFICATION_REQUIRED"

	// Sync errors
	ErrNetworkTransient ErrorCode = "NETWORK_TRANSIENT"
	ErrSyncFailed       ErrorCode = "SYNC_FAILED"

	// Local state errors. Corrupt local state is recoverable: the owning
	// store discards and reseeds, so this code is logged, never surfaced.
	ErrCorruptState ErrorCode = "CORRUPT_STATE"
)

// AppError represents an application error with code and message.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is checks if an error is of a specific code.
func Is(err error, code ErrorCode) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == code
	}
	return false
}

// CodeOf returns the error code of err, or ErrInternal if err carries none.
func CodeOf(err error) ErrorCode {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return ErrInternal
}

// IsValidation reports whether err is one of the synchronous scheduling
// validation rejections.
func IsValidation(err error) bool {
	switch CodeOf(err) {
	case ErrValidation, ErrSlotCapacity, ErrPastImmutable, ErrJustificationRequired, ErrInvalid:
		return true
	}
	return false
}
