// Package fault defines the typed errors shared by the coordinator components.
package fault

import (
	"errors"
	"fmt"
)

// Error codes.
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeMalformedMessage  = "MALFORMED_MESSAGE"
	CodeTransport         = "TRANSPORT_ERROR"
	CodeNotConnected      = "NOT_CONNECTED"
	CodeRequestTimeout    = "REQUEST_TIMEOUT"
	CodeAgentNotFound     = "AGENT_NOT_FOUND"
	CodeWorkflowExecution = "WORKFLOW_EXECUTION_ERROR"
	CodeRegistryInvariant = "REGISTRY_INVARIANT"
	CodeToolNotFound      = "TOOL_NOT_FOUND"
)

// Sentinels for errors.Is. Matching compares codes, so any *Error built with
// the same code matches, along with the codes grouped under it (see family).
var (
	ErrValidation        = &Error{Code: CodeValidation, Message: "validation failed"}
	ErrMalformedMessage  = &Error{Code: CodeMalformedMessage, Message: "malformed message"}
	ErrTransport         = &Error{Code: CodeTransport, Message: "transport failure"}
	ErrNotConnected      = &Error{Code: CodeNotConnected, Message: "endpoint not connected"}
	ErrRequestTimeout    = &Error{Code: CodeRequestTimeout, Message: "request timed out"}
	ErrAgentNotFound     = &Error{Code: CodeAgentNotFound, Message: "agent not found"}
	ErrWorkflowExecution = &Error{Code: CodeWorkflowExecution, Message: "workflow execution failed"}
	ErrRegistryInvariant = &Error{Code: CodeRegistryInvariant, Message: "registry invariant violated"}
	ErrToolNotFound      = &Error{Code: CodeToolNotFound, Message: "tool not found"}
)

// family maps a code to the broader code it also satisfies.
var family = map[string]string{
	CodeMalformedMessage: CodeValidation,
	CodeNotConnected:     CodeTransport,
}

// Error is a structured coordinator error.
type Error struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code, or with the
// code this error's code belongs to.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code == e.Code {
		return true
	}
	return family[e.Code] == t.Code
}

// Retryable reports whether the orchestrator may retry after this error.
func (e *Error) Retryable() bool {
	switch e.Code {
	case CodeValidation, CodeMalformedMessage, CodeRegistryInvariant, CodeWorkflowExecution:
		return false
	}
	return true
}

// New creates an Error with the given code and message.
func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an Error with the given code wrapping err.
func Wrap(code string, err error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// Validation creates a ValidationError.
func Validation(format string, args ...interface{}) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// Malformed creates a MalformedMessage validation error.
func Malformed(format string, args ...interface{}) *Error {
	return &Error{Code: CodeMalformedMessage, Message: fmt.Sprintf(format, args...)}
}

// AgentNotFound creates an AgentNotFoundError naming the agent.
func AgentNotFound(name string) *Error {
	return &Error{
		Code:    CodeAgentNotFound,
		Message: fmt.Sprintf("agent %q not found", name),
		Details: map[string]interface{}{"agent_name": name},
	}
}

// IsRetryable reports whether err may be retried. Errors that are not *Error
// (agent-defined failures) are retryable.
func IsRetryable(err error) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Retryable()
	}
	return err != nil
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}
