package dispatcher

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/morezero/agent-coordinator/pkg/commsutil"
	"github.com/morezero/agent-coordinator/pkg/fault"
	"github.com/morezero/agent-coordinator/pkg/protocol"
)

// HandlerRegistrar is the subset of *protocol.Endpoint Bind needs.
type HandlerRegistrar interface {
	RegisterHandler(method string, fn protocol.HandlerFunc)
}

// Bind registers every coordinator method on endpoint. A failed dispatch
// becomes a failed response whose error text starts with the error code.
func (d *Dispatcher) Bind(endpoint HandlerRegistrar) {
	for _, method := range d.Methods() {
		endpoint.RegisterHandler(method, d.endpointHandler(method))
	}
}

func (d *Dispatcher) endpointHandler(method string) protocol.HandlerFunc {
	return func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
		raw, err := commsutil.EncodePayload(params)
		if err != nil {
			return nil, fault.Wrap(fault.CodeValidation, err, "encode %s params", method)
		}
		req := &CoordinatorRequest{
			ID:     uuid.NewString(),
			Method: method,
			Params: raw,
			Ctx:    &InvocationContext{Sender: protocol.SenderFromContext(ctx)},
		}
		resp := d.Dispatch(ctx, req)
		if !resp.Ok {
			return nil, &fault.Error{Code: resp.Error.Code, Message: resp.Error.Message}
		}
		out, err := commsutil.ToMap(resp.Result)
		if err != nil {
			return nil, fmt.Errorf("%s - encode %s result: %w", logPrefix, method, err)
		}
		return out, nil
	}
}
