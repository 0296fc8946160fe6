package agent

import (
	"context"

	"github.com/morezero/agent-coordinator/pkg/tool"
)

// NewToolAgent creates an agent that exposes each tool in tools as a
// capability of the same name. A task runs the tool named by its method with
// the task params. Tools registered after construction are not advertised.
func NewToolAgent(name string, tools *tool.Registry) *FuncAgent {
	return NewFuncAgent(name, tools.Names(), func(ctx context.Context, task Task) (map[string]interface{}, error) {
		return tools.Execute(ctx, task.Method, task.Params)
	})
}
