package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/morezero/agent-coordinator/pkg/commsutil"
	"github.com/morezero/agent-coordinator/pkg/fault"
	"github.com/morezero/agent-coordinator/pkg/protocol"
)

const bindLogPrefix = "agent:bind"

// HandlerRegistrar is the part of *protocol.Endpoint Bind needs.
type HandlerRegistrar interface {
	RegisterHandler(method string, fn protocol.HandlerFunc)
}

// Bind exposes a local agent on its endpoint: execute_task, consensus_vote
// and has_capability, plus process_message when the agent implements
// Lifecycle.
func Bind(endpoint HandlerRegistrar, a Agent) {
	endpoint.RegisterHandler(MethodExecuteTask, func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
		var task Task
		if err := commsutil.Convert(params, &task); err != nil {
			return nil, fault.Wrap(fault.CodeValidation, err, "decode task")
		}
		if task.Method == "" {
			return nil, fault.Validation("task has no method")
		}
		if !a.IsRunning() {
			return nil, fmt.Errorf("agent is not running")
		}
		slog.Debug(fmt.Sprintf("%s - execute_task %s from %s", bindLogPrefix, task.Method, protocol.SenderFromContext(ctx)))
		return a.ExecuteTask(ctx, task)
	})

	endpoint.RegisterHandler(MethodConsensusVote, func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
		question, _ := params["question"].(string)
		if v, ok := a.(Voter); ok {
			return v.Vote(ctx, question, params)
		}
		return a.ExecuteTask(ctx, Task{Method: MethodConsensusVote, Params: params})
	})

	endpoint.RegisterHandler(MethodHasCapability, func(_ context.Context, params map[string]interface{}) (map[string]interface{}, error) {
		name, _ := params["capability"].(string)
		return map[string]interface{}{"has_capability": a.HasCapability(name)}, nil
	})

	if lc, ok := a.(Lifecycle); ok {
		endpoint.RegisterHandler(MethodProcessMsg, lc.ProcessMessage)
	}
}
