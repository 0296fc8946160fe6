// Package tool is the name to callable lookup agents use to invoke tools.
package tool

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/morezero/agent-coordinator/pkg/fault"
)

const logPrefix = "tool:tool"

// Tool is a named callable.
type Tool interface {
	Name() string
	Execute(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error)
}

// Func adapts a function to Tool.
type Func struct {
	name string
	fn   func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error)
}

// NewFunc creates a Tool from fn.
func NewFunc(name string, fn func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error)) *Func {
	return &Func{name: name, fn: fn}
}

// Name implements Tool.
func (f *Func) Name() string { return f.name }

// Execute implements Tool.
func (f *Func) Execute(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	return f.fn(ctx, params)
}

// Registry maps tool names to tools. Instances are passed explicitly to the
// agents that use them.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds t, replacing any tool with the same name.
func (r *Registry) Register(t Tool) error {
	if t == nil || t.Name() == "" {
		return fault.Validation("tool name is required")
	}
	r.mu.Lock()
	r.tools[t.Name()] = t
	r.mu.Unlock()
	slog.Debug(fmt.Sprintf("%s - Registered tool %s", logPrefix, t.Name()))
	return nil
}

// Get returns the named tool or an error matching fault.ErrToolNotFound.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return nil, &fault.Error{
			Code:    fault.CodeToolNotFound,
			Message: fmt.Sprintf("tool %q not found", name),
			Details: map[string]interface{}{"tool": name},
		}
	}
	return t, nil
}

// Execute looks up and runs the named tool.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]interface{}) (map[string]interface{}, error) {
	t, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return t.Execute(ctx, params)
}

// Names lists the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
