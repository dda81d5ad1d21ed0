// Package errors provides error code definitions shared by the sync core and its host.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a unique, stable error code surfaced to the UI layer.
type ErrorCode string

const (
	// General errors
	ErrInternal ErrorCode = "INTERNAL_ERROR"
	ErrInvalid  ErrorCode = "INVALID_INPUT"
	ErrNotFound ErrorCode = "NOT_FOUND"

	// Session errors
	ErrNotAuthenticated   ErrorCode = "NOT_AUTHENTICATED"
	ErrInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"

	// Sync errors
	ErrOffline         ErrorCode = "OFFLINE"
	ErrUnknownEndpoint ErrorCode = "UNKNOWN_ENDPOINT"
	ErrRetryExhausted  ErrorCode = "RETRY_EXHAUSTED"
	ErrQueueFull       ErrorCode = "QUEUE_FULL"
	ErrSyncFailed      ErrorCode = "SYNC_FAILED"
	ErrSyncInProgress  ErrorCode = "SYNC_IN_PROGRESS"

	// Storage errors
	ErrPersistence ErrorCode = "PERSISTENCE_FAILURE"

	// Backup errors
	ErrCorruptedBackup ErrorCode = "CORRUPTED_BACKUP"
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

// Is reports whether any error in err's chain is an AppError with code.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// CodeOf returns the code of the first AppError in err's chain, or ErrInternal.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}
