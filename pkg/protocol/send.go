package protocol

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/morezero/agent-coordinator/pkg/fault"
	"github.com/morezero/agent-coordinator/pkg/message"
)

const sendLogPrefix = "protocol:send"

// RemoteError is a failed response returned by a remote handler. When the
// handler failed with a coded error, Code carries it and the error unwraps to
// a *fault.Error with that code, so errors.Is and fault.IsRetryable see the
// remote failure as they would a local one.
type RemoteError struct {
	Recipient string
	Method    string
	Message   string
	Code      string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s.%s failed: %s", e.Recipient, e.Method, e.Message)
}

// Unwrap returns the remote fault, or nil when the response had no code.
func (e *RemoteError) Unwrap() error {
	if e.Code == "" {
		return nil
	}
	return &fault.Error{
		Code:    e.Code,
		Message: e.Message,
		Details: map[string]interface{}{"agent_name": e.Recipient, "method": e.Method},
	}
}

// Pending returns the number of requests awaiting a response.
func (e *Endpoint) Pending() int {
	return e.pending.len()
}

// SendMessage posts env to target (env.Recipient when target is empty). It
// performs one HTTP call and reports success; it never returns an error.
func (e *Endpoint) SendMessage(ctx context.Context, env *message.Envelope, target string) bool {
	client, _, ok := e.session()
	if !ok {
		slog.Error(fmt.Sprintf("%s - cannot send %s: endpoint %s not connected", sendLogPrefix, env.ID, e.opts.Name))
		return false
	}
	if target == "" {
		target = env.Recipient
	}
	if e.opts.Resolver == nil {
		slog.Error(fmt.Sprintf("%s - cannot send %s: no resolver configured", sendLogPrefix, env.ID))
		return false
	}
	baseURL, ok := e.opts.Resolver.ResolveEndpoint(target)
	if !ok {
		slog.Error(fmt.Sprintf("%s - cannot send %s: no endpoint for agent %q", sendLogPrefix, env.ID, target))
		return false
	}

	body, err := message.Encode(env)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - cannot encode %s: %v", sendLogPrefix, env.ID, err))
		return false
	}

	url := strings.TrimRight(baseURL, "/") + MessagePath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		slog.Error(fmt.Sprintf("%s - cannot build request to %s: %v", sendLogPrefix, url, err))
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - error sending %s to %s: %v", sendLogPrefix, env.Kind, target, err))
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		slog.Error(fmt.Sprintf("%s - failed to send %s to %s: HTTP %d", sendLogPrefix, env.Kind, target, resp.StatusCode))
		return false
	}
	slog.Debug(fmt.Sprintf("%s - %s %s sent to %s", sendLogPrefix, env.Kind, env.ID, target))
	return true
}

// SendRequest sends a request and waits up to timeout for the correlated
// response. On timeout or send failure the pending entry is removed and a
// RequestTimeout or Transport error is returned; a response arriving later is
// dropped. A non-positive timeout uses the default request timeout.
func (e *Endpoint) SendRequest(ctx context.Context, recipient, method string, params map[string]interface{}, timeout time.Duration) (*message.Envelope, error) {
	if !e.Connected() {
		return nil, fault.New(fault.CodeNotConnected, fmt.Sprintf("endpoint %s is not connected", e.opts.Name))
	}
	if timeout <= 0 {
		timeout = message.DefaultRequestTimeout
	}

	req := message.NewRequest(e.opts.Name, recipient, method, params, timeout)
	reply := e.pending.add(req.ID)

	if !e.SendMessage(ctx, req, recipient) {
		e.pending.remove(req.ID)
		return nil, fault.New(fault.CodeTransport, fmt.Sprintf("failed to send %s request %s to %s", method, req.ID, recipient))
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-reply:
		return resp, nil
	case <-timer.C:
		e.pending.remove(req.ID)
		slog.Warn(fmt.Sprintf("%s - request %s (%s to %s) timed out after %s", sendLogPrefix, req.ID, method, recipient, timeout))
		return nil, &fault.Error{
			Code:    fault.CodeRequestTimeout,
			Message: fmt.Sprintf("request %s to %s timed out after %s", method, recipient, timeout),
			Details: map[string]interface{}{"request_id": req.ID, "recipient": recipient},
		}
	case <-ctx.Done():
		e.pending.remove(req.ID)
		return nil, fmt.Errorf("%s - request %s to %s: %w", sendLogPrefix, method, recipient, ctx.Err())
	}
}

// Call sends a request and returns the result of a successful response. A
// failed response is returned as a *RemoteError.
func (e *Endpoint) Call(ctx context.Context, recipient, method string, params map[string]interface{}, timeout time.Duration) (map[string]interface{}, error) {
	env, err := e.SendRequest(ctx, recipient, method, params, timeout)
	if err != nil {
		return nil, err
	}
	resp, ok := env.AsResponse()
	if !ok {
		return nil, fault.Malformed("reply %s to %s is not a response", env.ID, method)
	}
	if !resp.Success {
		return nil, &RemoteError{Recipient: recipient, Method: method, Message: resp.Error, Code: resp.Code}
	}
	if resp.Result == nil {
		return map[string]interface{}{}, nil
	}
	return resp.Result, nil
}

// BroadcastNotification sends one notification per recipient and returns how
// many were delivered.
func (e *Endpoint) BroadcastNotification(ctx context.Context, event string, data map[string]interface{}, recipients []string) int {
	if len(recipients) == 0 {
		slog.Debug(fmt.Sprintf("%s - notification %s has no recipients", sendLogPrefix, event))
		return 0
	}
	delivered := 0
	for _, r := range recipients {
		env := message.NewNotification(e.opts.Name, event, data)
		env.Recipient = r
		if e.SendMessage(ctx, env, r) {
			delivered++
		}
	}
	return delivered
}
