// Package message defines the wire envelope exchanged between agent endpoints
// and the constructors and parser for its four payload kinds.
package message

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/morezero/agent-coordinator/pkg/fault"
)

// Kind discriminates the envelope payload.
type Kind string

const (
	KindRequest      Kind = "request"
	KindResponse     Kind = "response"
	KindNotification Kind = "notification"
	KindError        Kind = "error"
)

// Priority is the delivery priority hint carried by every envelope.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// DefaultRequestTimeout applies when a request is created without a timeout.
const DefaultRequestTimeout = 30 * time.Second

// Payload is one of *Request, *Response, *Notification or *ErrorPayload.
type Payload interface {
	Kind() Kind
}

// Envelope is the canonical wire message.
type Envelope struct {
	ID            string                 `json:"id"`
	Kind          Kind                   `json:"kind"`
	CreatedAt     time.Time              `json:"createdAt"`
	Sender        string                 `json:"sender"`
	Recipient     string                 `json:"recipient,omitempty"`
	Priority      Priority               `json:"priority"`
	CorrelationID string                 `json:"correlationId,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	Payload       Payload                `json:"payload"`
}

// Request asks the recipient to run a method.
type Request struct {
	Method          string                 `json:"method"`
	Params          map[string]interface{} `json:"params"`
	ExpectsResponse bool                   `json:"expectsResponse"`
	TimeoutMs       int64                  `json:"timeoutMs"`
}

// Kind implements Payload.
func (*Request) Kind() Kind { return KindRequest }

// Timeout returns the request timeout, or DefaultRequestTimeout when unset.
func (r *Request) Timeout() time.Duration {
	if r.TimeoutMs <= 0 {
		return DefaultRequestTimeout
	}
	return time.Duration(r.TimeoutMs) * time.Millisecond
}

// Response answers a Request. Result and Error are mutually exclusive. Code
// is the error code of a failed response when the handler reported one.
type Response struct {
	RequestID string                 `json:"requestId"`
	Success   bool                   `json:"success"`
	Result    map[string]interface{} `json:"result,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Code      string                 `json:"code,omitempty"`
}

// Kind implements Payload.
func (*Response) Kind() Kind { return KindResponse }

// Notification is a fire-and-forget event.
type Notification struct {
	Event string                 `json:"event"`
	Data  map[string]interface{} `json:"data"`
}

// Kind implements Payload.
func (*Notification) Kind() Kind { return KindNotification }

// ErrorPayload reports a failure that is not tied to a pending request.
type ErrorPayload struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Kind implements Payload.
func (*ErrorPayload) Kind() Kind { return KindError }

func newEnvelope(sender, recipient string, p Payload) *Envelope {
	return &Envelope{
		ID:        uuid.NewString(),
		Kind:      p.Kind(),
		CreatedAt: time.Now().UTC(),
		Sender:    sender,
		Recipient: recipient,
		Priority:  PriorityNormal,
		Payload:   p,
	}
}

// NewRequest builds a request envelope that expects a response.
func NewRequest(sender, recipient, method string, params map[string]interface{}, timeout time.Duration) *Envelope {
	if params == nil {
		params = map[string]interface{}{}
	}
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return newEnvelope(sender, recipient, &Request{
		Method:          method,
		Params:          params,
		ExpectsResponse: true,
		TimeoutMs:       timeout.Milliseconds(),
	})
}

// NewResponse builds the response to req. The correlation id is req.ID and the
// recipient is req.Sender. A failed response never carries a result and a
// successful one never carries an error.
func NewResponse(req *Envelope, success bool, result map[string]interface{}, errMsg string) (*Envelope, error) {
	if req == nil || req.Kind != KindRequest {
		return nil, fault.Validation("response requires a request envelope")
	}
	sender := req.Recipient
	if sender == "" {
		sender = "unknown"
	}
	resp := &Response{RequestID: req.ID, Success: success}
	if success {
		resp.Result = result
	} else {
		if errMsg == "" {
			errMsg = "request failed"
		}
		resp.Error = errMsg
	}
	env := newEnvelope(sender, req.Sender, resp)
	env.CorrelationID = req.ID
	env.Priority = req.Priority
	return env, nil
}

// NewErrorResponse builds a failed response to req carrying an error code.
func NewErrorResponse(req *Envelope, code, errMsg string) (*Envelope, error) {
	env, err := NewResponse(req, false, nil, errMsg)
	if err != nil {
		return nil, err
	}
	env.Payload.(*Response).Code = code
	return env, nil
}

// NewNotification builds a notification envelope with no recipient.
func NewNotification(sender, event string, data map[string]interface{}) *Envelope {
	if data == nil {
		data = map[string]interface{}{}
	}
	return newEnvelope(sender, "", &Notification{Event: event, Data: data})
}

// NewError builds an error envelope.
func NewError(sender, recipient, code, msg string, details map[string]interface{}) *Envelope {
	return newEnvelope(sender, recipient, &ErrorPayload{Code: code, Message: msg, Details: details})
}

// AsRequest returns the request payload.
func (e *Envelope) AsRequest() (*Request, bool) {
	p, ok := e.Payload.(*Request)
	return p, ok
}

// AsResponse returns the response payload.
func (e *Envelope) AsResponse() (*Response, bool) {
	p, ok := e.Payload.(*Response)
	return p, ok
}

// AsNotification returns the notification payload.
func (e *Envelope) AsNotification() (*Notification, bool) {
	p, ok := e.Payload.(*Notification)
	return p, ok
}

// AsError returns the error payload.
func (e *Envelope) AsError() (*ErrorPayload, bool) {
	p, ok := e.Payload.(*ErrorPayload)
	return p, ok
}

// Validate checks the header and the payload against the envelope kind.
func (e *Envelope) Validate() error {
	if e.ID == "" {
		return fault.Malformed("envelope id is required")
	}
	if e.Sender == "" {
		return fault.Malformed("envelope %s has no sender", e.ID)
	}
	switch e.Priority {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
	default:
		return fault.Malformed("envelope %s has unknown priority %q", e.ID, e.Priority)
	}
	if e.Payload == nil {
		return fault.Malformed("envelope %s has no payload", e.ID)
	}
	if e.Payload.Kind() != e.Kind {
		return fault.Malformed("envelope %s kind %q does not match payload %q", e.ID, e.Kind, e.Payload.Kind())
	}

	switch p := e.Payload.(type) {
	case *Request:
		if p.Method == "" {
			return fault.Malformed("request %s has no method", e.ID)
		}
	case *Response:
		if e.CorrelationID == "" {
			return fault.Malformed("response %s has no correlation id", e.ID)
		}
		if p.RequestID != "" && p.RequestID != e.CorrelationID {
			return fault.Malformed("response %s request id %q differs from correlation id %q", e.ID, p.RequestID, e.CorrelationID)
		}
		if p.Success && (p.Error != "" || p.Code != "") {
			return fault.Malformed("response %s is successful but carries an error", e.ID)
		}
		if !p.Success && p.Result != nil {
			return fault.Malformed("response %s failed but carries a result", e.ID)
		}
	case *Notification:
		if p.Event == "" {
			return fault.Malformed("notification %s has no event", e.ID)
		}
	case *ErrorPayload:
		if p.Code == "" {
			return fault.Malformed("error %s has no code", e.ID)
		}
	}
	return nil
}

// wireEnvelope is the envelope with the payload left undecoded.
type wireEnvelope struct {
	ID            string                 `json:"id"`
	Kind          Kind                   `json:"kind"`
	CreatedAt     time.Time              `json:"createdAt"`
	Sender        string                 `json:"sender"`
	Recipient     string                 `json:"recipient,omitempty"`
	Priority      Priority               `json:"priority"`
	CorrelationID string                 `json:"correlationId,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	Payload       json.RawMessage        `json:"payload"`
}

// UnmarshalJSON decodes the payload according to the kind discriminator and
// validates the result.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return fault.Wrap(fault.CodeMalformedMessage, err, "decode envelope")
	}

	var p Payload
	switch w.Kind {
	case KindRequest:
		p = &Request{}
	case KindResponse:
		p = &Response{}
	case KindNotification:
		p = &Notification{}
	case KindError:
		p = &ErrorPayload{}
	case "":
		return fault.Malformed("envelope kind is missing")
	default:
		return fault.Malformed("unknown envelope kind %q", w.Kind)
	}
	if len(w.Payload) == 0 || string(w.Payload) == "null" {
		return fault.Malformed("envelope %s has no payload", w.ID)
	}
	if err := json.Unmarshal(w.Payload, p); err != nil {
		return fault.Wrap(fault.CodeMalformedMessage, err, "decode %s payload", w.Kind)
	}

	priority := w.Priority
	if priority == "" {
		priority = PriorityNormal
	}
	out := Envelope{
		ID:            w.ID,
		Kind:          w.Kind,
		CreatedAt:     w.CreatedAt,
		Sender:        w.Sender,
		Recipient:     w.Recipient,
		Priority:      priority,
		CorrelationID: w.CorrelationID,
		Metadata:      w.Metadata,
		Payload:       p,
	}
	if err := out.Validate(); err != nil {
		return err
	}
	*e = out
	return nil
}

// Parse decodes a raw inbound envelope. Any failure is a MalformedMessage
// validation error; a partially typed envelope is never returned.
func Parse(raw []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		if errors.Is(err, fault.ErrValidation) {
			return nil, err
		}
		return nil, fault.Wrap(fault.CodeMalformedMessage, err, "decode envelope")
	}
	return &e, nil
}

// Encode serializes a validated envelope.
func Encode(e *Envelope) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(e)
}
