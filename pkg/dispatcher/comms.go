package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/agent-coordinator/pkg/commsutil"
)

// Subscribe serves coordinator requests published on subject. Each request
// runs under requestTimeout, or the caller's shorter deadline.
func (d *Dispatcher) Subscribe(ctx context.Context, nc *comms.Conn, subject string, requestTimeout time.Duration) (*comms.Subscription, error) {
	if subject == "" {
		subject = commsutil.SubjectCoordinator
	}
	sub, err := nc.Subscribe(subject, func(msg *comms.Msg) {
		var req CoordinatorRequest
		if err := commsutil.DecodePayload(msg.Data, &req); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to decode request: %v", logPrefix, err))
			respond(msg, &CoordinatorResponse{
				Ok: false,
				Error: &ErrorDetail{
					Code:    "INVALID_REQUEST",
					Message: "Failed to decode request",
				},
			})
			return
		}

		reqCtx, cancel := context.WithTimeout(ctx, req.Ctx.Timeout(requestTimeout))
		defer cancel()
		respond(msg, d.Dispatch(reqCtx, &req))
	})
	if err != nil {
		return nil, fmt.Errorf("%s - failed to subscribe to %s: %w", logPrefix, subject, err)
	}
	slog.Info(fmt.Sprintf("%s - Subscribed to %s", logPrefix, subject))
	return sub, nil
}

func respond(msg *comms.Msg, resp *CoordinatorResponse) {
	data, err := commsutil.EncodePayload(resp)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to encode response: %v", logPrefix, err))
		return
	}
	if err := msg.Respond(data); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to respond: %v", logPrefix, err))
	}
}
