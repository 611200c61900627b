package errors

import (
	"fmt"
	"time"
)

// StorageError represents a storage-specific error with additional context
type StorageError struct {
	*AppError
	StorageType string        `json:"storage_type,omitempty"` // "postgres", "redis", "s3", etc.
	Operation   string        `json:"operation,omitempty"`    // "put", "get", "update", ...
	Duration    time.Duration `json:"duration,omitempty"`
}

// Unwrap exposes the embedded AppError so errors.As finds it
func (e *StorageError) Unwrap() error {
	return e.AppError
}

// NewStorageError creates a new storage error
func NewStorageError(code, message string) *AppError {
	return NewAppError(ErrorTypeStorage, code, message)
}

// WrapStorageError wraps a backend error with the operation and storage type.
// Context deadline errors become storage timeouts.
func WrapStorageError(err error, operation, storageType string) error {
	if err == nil {
		return nil
	}
	if IsStorage(err) || IsNotFound(err) {
		return err
	}

	appErr := FromContext(err, ErrorTypeStorage, fmt.Sprintf("%s %s", storageType, operation))
	if appErr == nil {
		appErr = WrapError(err, ErrorTypeStorage, CodeStorageError,
			fmt.Sprintf("%s %s failed", storageType, operation))
	}

	return &StorageError{
		AppError:    appErr,
		StorageType: storageType,
		Operation:   operation,
	}
}

// NewStorageConnectionError creates a storage connection error
func NewStorageConnectionError(storageType, target string, err error) *StorageError {
	return &StorageError{
		AppError: WrapError(err, ErrorTypeStorage, CodeConnectionFailed,
			fmt.Sprintf("failed to connect to %s at %s", storageType, target)),
		StorageType: storageType,
		Operation:   "connect",
	}
}
