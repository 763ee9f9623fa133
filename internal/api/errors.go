package api

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced to the host.
type ErrorKind string

const (
	// KindResourceUnavailable means the project file could not be read or copied.
	KindResourceUnavailable ErrorKind = "ResourceUnavailable"
	// KindInitializationFailure means the engine rejected the project or parameters.
	KindInitializationFailure ErrorKind = "InitializationFailure"
	// KindExecutionFailure means the engine aborted the run.
	KindExecutionFailure ErrorKind = "ExecutionFailure"
	// KindAssertionFailure is a normal outcome: the run finished with failing checks.
	KindAssertionFailure ErrorKind = "AssertionFailure"
	// KindCancelled means the host cancelled the task.
	KindCancelled ErrorKind = "Cancelled"
	// KindConfigurationError means driver settings could not be loaded or decrypted.
	KindConfigurationError ErrorKind = "ConfigurationError"
	// KindInvalidState means an operation was issued in a state that does not allow it.
	KindInvalidState ErrorKind = "InvalidState"
)

// TaskError is the error type returned by the task controller, the execution
// adapter and the result collector. It carries a kind for classification,
// an optional raw engine report and the wrapped cause.
type TaskError struct {
	Kind      ErrorKind
	Message   string
	RawReport string
	Err       error
}

// Error implements the error interface for TaskError.
func (e *TaskError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *TaskError) Unwrap() error {
	return e.Err
}

// NewTaskError creates a TaskError of the given kind wrapping err.
func NewTaskError(kind ErrorKind, err error, format string, args ...interface{}) *TaskError {
	return &TaskError{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// KindOf returns the kind of the first TaskError in err's chain, or the
// empty kind if there is none.
func KindOf(err error) ErrorKind {
	var taskErr *TaskError
	if errors.As(err, &taskErr) {
		return taskErr.Kind
	}
	return ""
}

// IsKind reports whether err is or wraps a TaskError of the given kind.
//
// Example:
//
//	if api.IsKind(err, api.KindCancelled) {
//	    // partial results are still available
//	}
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// NotFoundError represents a resource not found error with contextual information.
//
// The error includes resource type and name for precise error reporting and
// supports custom error messages for specific use cases.
type NotFoundError struct {
	// ResourceType categorizes the type of resource that was not found
	// (e.g., "descriptor", "task", "object")
	ResourceType string

	// ResourceName is the specific identifier of the resource that was not found
	ResourceName string

	// Message provides a custom error message if the default format is insufficient
	Message string
}

// Error implements the error interface for NotFoundError.
func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s %s not found", e.ResourceType, e.ResourceName)
}

// IsNotFound checks if an error is a NotFoundError using error unwrapping.
//
// Example:
//
//	desc, err := drv.Descriptor(id)
//	if api.IsNotFound(err) {
//	    return nil, fmt.Errorf("unknown test suite %s", id)
//	}
func IsNotFound(err error) bool {
	var notFoundErr *NotFoundError
	return errors.As(err, &notFoundErr)
}

// NewNotFoundError creates a new NotFoundError with the specified resource type and name.
func NewNotFoundError(resourceType, resourceName string) *NotFoundError {
	return &NotFoundError{
		ResourceType: resourceType,
		ResourceName: resourceName,
	}
}

var (
	// NewDescriptorNotFoundError creates a descriptor not found error.
	NewDescriptorNotFoundError = func(id string) *NotFoundError {
		return NewNotFoundError("descriptor", id)
	}

	// NewTaskNotFoundError creates a task not found error.
	NewTaskNotFoundError = func(id string) *NotFoundError {
		return NewNotFoundError("task", id)
	}

	// NewObjectNotFoundError creates a stored object not found error.
	NewObjectNotFoundError = func(key string) *NotFoundError {
		return NewNotFoundError("object", key)
	}
)
