package tasks

import (
	"errors"
	"fmt"
)

// ErrNoExecutor is returned when a task has no assigned executor
var ErrNoExecutor = errors.New("task has no assigned executor")

// ValidationFailure is a recoverable failure of the output contract:
// a guardrail rejection or a schema mismatch. Its feedback is appended to
// the next attempt's prompt.
type ValidationFailure struct {
	TaskID    string
	Guardrail string
	Feedback  string
}

// Error implements the error interface
func (e *ValidationFailure) Error() string {
	if e.Guardrail != "" {
		return fmt.Sprintf("task %s: guardrail %q rejected output: %s", e.TaskID, e.Guardrail, e.Feedback)
	}
	return fmt.Sprintf("task %s: output validation failed: %s", e.TaskID, e.Feedback)
}

// ExecutionFailure is a recoverable failure of the agent invocation
// itself
type ExecutionFailure struct {
	TaskID string
	Err    error
}

// Error implements the error interface
func (e *ExecutionFailure) Error() string {
	return fmt.Sprintf("task %s: agent invocation failed: %v", e.TaskID, e.Err)
}

// Unwrap returns the underlying error
func (e *ExecutionFailure) Unwrap() error {
	return e.Err
}

// RetryBudgetExhausted marks a task terminally failed after its last
// retry. Cause holds the final validation or execution failure.
type RetryBudgetExhausted struct {
	TaskID   string
	Attempts int
	Cause    error
}

// Error implements the error interface
func (e *RetryBudgetExhausted) Error() string {
	return fmt.Sprintf("task %s failed after %d attempts: %v", e.TaskID, e.Attempts, e.Cause)
}

// Unwrap returns the final failure
func (e *RetryBudgetExhausted) Unwrap() error {
	return e.Cause
}
