package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory represents different types of errors that can occur
type ErrorCategory string

const (
	// Fatal at load time, never silently coerced
	ErrorCategoryConfiguration ErrorCategory = "CONFIG"

	// Isolated to a single run record, retried per policy
	ErrorCategoryTask ErrorCategory = "TASK"

	// Storage / run-log I/O failures, propagated unmodified
	ErrorCategoryStorage ErrorCategory = "STORAGE"

	// Optional search backend missing or unusable; callers degrade, never fail
	ErrorCategoryBackend ErrorCategory = "BACKEND"

	// Transient failures worth retrying
	ErrorCategoryTemporary ErrorCategory = "TEMPORARY"
)

// EngineError represents a categorized error with context
type EngineError struct {
	Category   ErrorCategory
	Component  string
	Operation  string
	Message    string
	Underlying error
	Retryable  bool
}

// Error implements the error interface
func (e *EngineError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("[%s:%s] %s: %s: %v", e.Category, e.Component, e.Operation, e.Message, e.Underlying)
	}
	return fmt.Sprintf("[%s:%s] %s: %s", e.Category, e.Component, e.Operation, e.Message)
}

// Unwrap returns the underlying error for error unwrapping
func (e *EngineError) Unwrap() error {
	return e.Underlying
}

// IsRetryable returns whether this error can be retried
func (e *EngineError) IsRetryable() bool {
	return e.Retryable
}

// IsFatal returns whether this error should abort the caller outright
func (e *EngineError) IsFatal() bool {
	return e.Category == ErrorCategoryConfiguration
}

// New creates a new categorized engine error
func New(category ErrorCategory, component, operation, message string) *EngineError {
	return &EngineError{
		Category:  category,
		Component: component,
		Operation: operation,
		Message:   message,
		Retryable: isRetryableCategory(category),
	}
}

// Wrap wraps an existing error with engine error context
func Wrap(err error, category ErrorCategory, component, operation string) *EngineError {
	if err == nil {
		return nil
	}
	return &EngineError{
		Category:   category,
		Component:  component,
		Operation:  operation,
		Message:    "operation failed",
		Underlying: err,
		Retryable:  isRetryableCategory(category),
	}
}

// WithRetryable sets the retryable flag
func (e *EngineError) WithRetryable(retryable bool) *EngineError {
	e.Retryable = retryable
	return e
}

func isRetryableCategory(category ErrorCategory) bool {
	switch category {
	case ErrorCategoryTask, ErrorCategoryTemporary:
		return true
	default:
		return false
	}
}

// NewConfigurationError reports an invalid configuration; never retryable.
func NewConfigurationError(component, operation, message string) *EngineError {
	return New(ErrorCategoryConfiguration, component, operation, message)
}

// NewTaskError wraps a backtest-collaborator failure for a single task.
func NewTaskError(component, operation string, err error) *EngineError {
	return Wrap(err, ErrorCategoryTask, component, operation)
}

// NewStorageError wraps a persistence failure.
func NewStorageError(component, operation string, err error) *EngineError {
	return Wrap(err, ErrorCategoryStorage, component, operation)
}

// NewBackendError reports an unavailable optional search backend.
func NewBackendError(component, operation, message string) *EngineError {
	return New(ErrorCategoryBackend, component, operation, message)
}

// IsCategory reports whether err carries the given category anywhere in its chain.
func IsCategory(err error, category ErrorCategory) bool {
	var ee *EngineError
	for errors.As(err, &ee) {
		if ee.Category == category {
			return true
		}
		err = ee.Underlying
		if err == nil {
			return false
		}
	}
	return false
}
