// Package errors provides error code definitions for the possync core.
package errors

import "fmt"

// ErrorCode represents a unique, stable error code.
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrInvalid    ErrorCode = "INVALID_INPUT"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrValidation ErrorCode = "VALIDATION_ERROR"

	// Storage errors
	ErrStorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE"
	ErrDatabase           ErrorCode = "DATABASE_ERROR"
	ErrMigration          ErrorCode = "MIGRATION_FAILED"

	// Queue errors
	ErrQueueWrite     ErrorCode = "QUEUE_WRITE_FAILED"
	ErrQueueRead      ErrorCode = "QUEUE_READ_FAILED"
	ErrUnknownOpType  ErrorCode = "UNKNOWN_OPERATION_TYPE"
	ErrBadPayload     ErrorCode = "MALFORMED_PAYLOAD"
	ErrSaleAbandoned  ErrorCode = "SALE_ABANDONED"
	ErrOpAbandoned    ErrorCode = "OPERATION_ABANDONED"

	// Remote store errors
	ErrRemoteUnavailable ErrorCode = "REMOTE_UNAVAILABLE"
	ErrRemoteCreate      ErrorCode = "REMOTE_CREATE_FAILED"
	ErrRemoteUpdate      ErrorCode = "REMOTE_UPDATE_FAILED"
	ErrRemoteQuery       ErrorCode = "REMOTE_QUERY_FAILED"

	// Sync errors
	ErrSyncFailed ErrorCode = "SYNC_FAILED"
	ErrSyncBusy   ErrorCode = "SYNC_IN_PROGRESS"
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
