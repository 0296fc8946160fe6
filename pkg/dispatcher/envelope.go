// Package dispatcher routes coordinator method calls, received on the protocol
// endpoint or a COMMS request subject, to the registry and orchestrator.
package dispatcher

import (
	"encoding/json"
	"time"
)

// CoordinatorRequest is the JSON envelope for incoming coordinator requests.
type CoordinatorRequest struct {
	ID     string             `json:"id"`
	Method string             `json:"method"`
	Params json.RawMessage    `json:"params"`
	Ctx    *InvocationContext `json:"ctx,omitempty"`
}

// CoordinatorResponse is the JSON envelope for coordinator responses.
type CoordinatorResponse struct {
	ID     string       `json:"id"`
	Ok     bool         `json:"ok"`
	Result interface{}  `json:"result,omitempty"`
	Error  *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail holds structured error information.
type ErrorDetail struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	Retryable bool        `json:"retryable"`
}

// InvocationContext holds context from the caller.
type InvocationContext struct {
	Sender        string `json:"sender,omitempty"`
	RequestID     string `json:"requestId,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
	DeadlineMs    int    `json:"deadlineMs,omitempty"`
	TimeoutMs     int    `json:"timeoutMs,omitempty"`
}

// Timeout returns the caller's requested timeout when it is shorter than max.
func (c *InvocationContext) Timeout(max time.Duration) time.Duration {
	if c == nil {
		return max
	}
	ms := c.DeadlineMs
	if ms <= 0 {
		ms = c.TimeoutMs
	}
	if ms > 0 && time.Duration(ms)*time.Millisecond < max {
		return time.Duration(ms) * time.Millisecond
	}
	return max
}
