// Package errors provides error code definitions for the POS core.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a unique error code surfaced to the operator layer.
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrInvalid    ErrorCode = "INVALID_INPUT"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrDuplicate  ErrorCode = "DUPLICATE"
	ErrValidation ErrorCode = "VALIDATION_ERROR"

	// Storage errors. ErrStorage is fatal: the local ledger may be
	// inconsistent and callers must not swallow it.
	ErrStorage    ErrorCode = "STORAGE_ERROR"
	ErrMigration  ErrorCode = "MIGRATION_FAILED"
	ErrConstraint ErrorCode = "CONSTRAINT_VIOLATION"

	// Sync errors
	ErrSyncTransient ErrorCode = "SYNC_TRANSIENT"
	ErrSyncTerminal  ErrorCode = "SYNC_TERMINAL"
	ErrSyncTimeout   ErrorCode = "SYNC_TIMEOUT"

	// Print errors
	ErrPrintTransient ErrorCode = "PRINT_TRANSIENT"
	ErrPrintTerminal  ErrorCode = "PRINT_TERMINAL"

	// Crash recovery errors
	ErrSnapshotCorrupt ErrorCode = "SNAPSHOT_CORRUPT"
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

// Is checks if an error carries a specific code, unwrapping as needed.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsRetryable reports whether an error is worth retrying with backoff.
// Timeouts count as transient per the queue-processing contract.
func IsRetryable(err error) bool {
	return Is(err, ErrSyncTransient) || Is(err, ErrSyncTimeout) || Is(err, ErrPrintTransient)
}

// IsTerminal reports whether an error must stop retries immediately.
func IsTerminal(err error) bool {
	return Is(err, ErrSyncTerminal) || Is(err, ErrPrintTerminal)
}
