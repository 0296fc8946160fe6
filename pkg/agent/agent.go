// Package agent defines the capability contract the coordinator consumes and
// the in-process and remote implementations of it.
package agent

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
)

// Methods served by agents on their protocol endpoint.
const (
	MethodExecuteTask   = "execute_task"
	MethodConsensusVote = "consensus_vote"
	MethodHasCapability = "has_capability"
	MethodProcessMsg    = "process_message"
)

// Task is one unit of work handed to an agent. Context holds the results of
// the workflow steps completed so far, keyed by step key.
type Task struct {
	Method  string                            `json:"method"`
	Params  map[string]interface{}            `json:"params"`
	Context map[string]map[string]interface{} `json:"context"`
}

// Agent is the contract the orchestrator and registry depend on.
type Agent interface {
	ExecuteTask(ctx context.Context, task Task) (map[string]interface{}, error)
	HasCapability(name string) bool
	IsRunning() bool
}

// Lifecycle is implemented by agents with explicit initialization and a
// free-form message entry point.
type Lifecycle interface {
	Initialize(ctx context.Context) error
	ProcessMessage(ctx context.Context, msg map[string]interface{}) (map[string]interface{}, error)
}

// Voter is implemented by agents that answer consensus questions directly
// instead of through ExecuteTask.
type Voter interface {
	Vote(ctx context.Context, question string, params map[string]interface{}) (map[string]interface{}, error)
}

// Factory resolves agent names to agents.
type Factory interface {
	Agent(name string) (Agent, bool)
}

// TaskFunc executes a task for a FuncAgent.
type TaskFunc func(ctx context.Context, task Task) (map[string]interface{}, error)

// FuncAgent is an in-process Agent backed by a function.
type FuncAgent struct {
	name         string
	capabilities map[string]struct{}
	fn           TaskFunc
	running      atomic.Bool
	init         func(ctx context.Context) error
}

// NewFuncAgent creates a stopped agent declaring capabilities.
func NewFuncAgent(name string, capabilities []string, fn TaskFunc) *FuncAgent {
	caps := make(map[string]struct{}, len(capabilities))
	for _, c := range capabilities {
		caps[c] = struct{}{}
	}
	return &FuncAgent{name: name, capabilities: caps, fn: fn}
}

// WithInit sets a hook run by Initialize.
func (a *FuncAgent) WithInit(fn func(ctx context.Context) error) *FuncAgent {
	a.init = fn
	return a
}

// Name returns the agent name.
func (a *FuncAgent) Name() string { return a.name }

// Capabilities returns the declared capability names, sorted.
func (a *FuncAgent) Capabilities() []string {
	out := make([]string, 0, len(a.capabilities))
	for c := range a.capabilities {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Initialize runs the init hook and marks the agent running.
func (a *FuncAgent) Initialize(ctx context.Context) error {
	if a.running.Load() {
		return nil
	}
	if a.init != nil {
		if err := a.init(ctx); err != nil {
			return err
		}
	}
	a.running.Store(true)
	return nil
}

// Stop marks the agent as not running.
func (a *FuncAgent) Stop() { a.running.Store(false) }

// ProcessMessage runs msg["method"] with msg["params"] as a task.
func (a *FuncAgent) ProcessMessage(ctx context.Context, msg map[string]interface{}) (map[string]interface{}, error) {
	method, _ := msg["method"].(string)
	params, _ := msg["params"].(map[string]interface{})
	return a.ExecuteTask(ctx, Task{Method: method, Params: params})
}

// ExecuteTask implements Agent.
func (a *FuncAgent) ExecuteTask(ctx context.Context, task Task) (map[string]interface{}, error) {
	return a.fn(ctx, task)
}

// HasCapability implements Agent.
func (a *FuncAgent) HasCapability(name string) bool {
	_, ok := a.capabilities[name]
	return ok
}

// IsRunning implements Agent.
func (a *FuncAgent) IsRunning() bool { return a.running.Load() }

// Directory is an explicit in-process agent table.
type Directory struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

// NewDirectory creates an empty Directory.
func NewDirectory() *Directory {
	return &Directory{agents: make(map[string]Agent)}
}

// Register adds or replaces the agent under name.
func (d *Directory) Register(name string, a Agent) {
	d.mu.Lock()
	d.agents[name] = a
	d.mu.Unlock()
}

// Remove deletes the named agent. It returns false if unknown.
func (d *Directory) Remove(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.agents[name]; !ok {
		return false
	}
	delete(d.agents, name)
	return true
}

// Agent implements Factory.
func (d *Directory) Agent(name string) (Agent, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.agents[name]
	return a, ok
}

// FindByCapability returns the names of agents declaring capability, sorted.
func (d *Directory) FindByCapability(capability string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := []string{}
	for name, a := range d.agents {
		if a.HasCapability(capability) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Names lists registered agent names, sorted.
func (d *Directory) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.agents))
	for name := range d.agents {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
