package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrTaskNotFound is returned when a retry task id is unknown
	ErrTaskNotFound = errors.New("retry task not found")
)

// UnknownOperationError is returned when no handler is registered for a
// task's operation type
type UnknownOperationError struct {
	OperationType string
}

func (e *UnknownOperationError) Error() string {
	return fmt.Sprintf("no handler registered for operation type %q", e.OperationType)
}
