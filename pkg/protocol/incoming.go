package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/morezero/agent-coordinator/pkg/fault"
	"github.com/morezero/agent-coordinator/pkg/message"
)

const (
	incomingLogPrefix = "protocol:incoming"
	maxMessageBytes   = 4 << 20
)

// HandleIncoming parses raw and dispatches it by kind. Requests and
// notifications are served on their own goroutines so the caller is never
// blocked by a handler or subscriber. Only a malformed envelope returns an
// error.
func (e *Endpoint) HandleIncoming(ctx context.Context, raw []byte) error {
	env, err := message.Parse(raw)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - rejected inbound message: %v", incomingLogPrefix, err))
		return err
	}

	switch p := env.Payload.(type) {
	case *message.Request:
		go e.serveRequest(env, p)
	case *message.Response:
		e.resolve(env)
	case *message.Notification:
		go e.fanOut(env, p)
	case *message.ErrorPayload:
		slog.Error(fmt.Sprintf("%s - received error from %s: %s - %s", incomingLogPrefix, env.Sender, p.Code, p.Message))
	}
	return nil
}

// resolve hands a response to its pending request. A response whose request
// already timed out is dropped.
func (e *Endpoint) resolve(env *message.Envelope) {
	reply, ok := e.pending.take(env.CorrelationID)
	if !ok {
		slog.Debug(fmt.Sprintf("%s - dropping response %s for unknown or expired request %s", incomingLogPrefix, env.ID, env.CorrelationID))
		return
	}
	reply <- env
}

func (e *Endpoint) serveRequest(env *message.Envelope, req *message.Request) {
	_, base, ok := e.session()
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(WithSender(base, env.Sender), req.Timeout())
	defer cancel()

	var (
		result map[string]interface{}
		err    error
	)
	fn, found := e.handler(req.Method)
	if !found {
		err = fmt.Errorf("no handler for method: %s", req.Method)
	} else {
		result, err = invokeHandler(ctx, req.Method, fn, req.Params)
	}
	if err != nil {
		slog.Error(fmt.Sprintf("%s - request %s from %s failed: %v", incomingLogPrefix, req.Method, env.Sender, err))
	}
	if !req.ExpectsResponse {
		return
	}

	var resp *message.Envelope
	if err != nil {
		resp, _ = message.NewErrorResponse(env, fault.CodeOf(err), err.Error())
	} else {
		resp, _ = message.NewResponse(env, true, result, "")
	}
	if resp.Sender == "unknown" {
		resp.Sender = e.opts.Name
	}

	sendCtx, sendCancel := context.WithTimeout(base, e.opts.RequestTimeout)
	defer sendCancel()
	if !e.SendMessage(sendCtx, resp, env.Sender) {
		slog.Warn(fmt.Sprintf("%s - could not deliver response for %s to %s", incomingLogPrefix, env.ID, env.Sender))
	}
}

func (e *Endpoint) fanOut(env *message.Envelope, n *message.Notification) {
	_, base, ok := e.session()
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(WithSender(base, env.Sender), e.opts.RequestTimeout)
	defer cancel()
	e.notify(ctx, n.Event, n.Data)
}

func (e *Endpoint) handleMessage(w http.ResponseWriter, r *http.Request) {
	if !e.Connected() {
		http.Error(w, "endpoint not connected", http.StatusServiceUnavailable)
		return
	}
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMessageBytes))
	if err != nil {
		http.Error(w, "Invalid message format", http.StatusBadRequest)
		return
	}
	if err := e.HandleIncoming(r.Context(), raw); err != nil {
		if errors.Is(err, fault.ErrValidation) {
			http.Error(w, "Invalid message format", http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// HealthOutput is the body of GET /mcp/health.
type HealthOutput struct {
	Agent     string `json:"agent"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

func (e *Endpoint) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(HealthOutput{
		Agent:     e.opts.Name,
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
