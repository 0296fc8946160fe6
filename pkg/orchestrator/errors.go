package orchestrator

import (
	"fmt"

	"github.com/morezero/agent-coordinator/pkg/fault"
)

// WorkflowExecutionError is returned when a step exhausts its attempts or
// fails with a non-retryable error. It wraps the last underlying error.
type WorkflowExecutionError struct {
	WorkflowID string
	Step       string
	Attempts   int
	Err        error
}

func (e *WorkflowExecutionError) Error() string {
	return fmt.Sprintf("%s: workflow %s step %q failed after %d attempt(s): %v",
		fault.CodeWorkflowExecution, e.WorkflowID, e.Step, e.Attempts, e.Err)
}

// Unwrap returns the last underlying error.
func (e *WorkflowExecutionError) Unwrap() error {
	return e.Err
}

// Is matches fault.ErrWorkflowExecution.
func (e *WorkflowExecutionError) Is(target error) bool {
	return target == fault.ErrWorkflowExecution
}
