package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/morezero/agent-coordinator/pkg/commsutil"
	"github.com/morezero/agent-coordinator/pkg/registry"
)

const remoteLogPrefix = "agent:remote"

// Caller sends requests to named agents. *protocol.Endpoint implements it.
type Caller interface {
	Call(ctx context.Context, recipient, method string, params map[string]interface{}, timeout time.Duration) (map[string]interface{}, error)
	Connected() bool
}

// Directory view of the registry used by RemoteFactory.
type registryView interface {
	Agent(name string) (registry.AgentRecord, bool)
	IsAvailable(name string, maxAge time.Duration) bool
	FindByCapability(capability string) []string
}

// Remote is an Agent reached over the protocol endpoint. ExecuteTask becomes
// an execute_task request.
type Remote struct {
	name         string
	caller       Caller
	capabilities map[string]struct{}
	timeout      time.Duration
	available    func() bool
}

// NewRemote creates a Remote for name declaring capabilities.
func NewRemote(name string, caller Caller, capabilities []string, timeout time.Duration) *Remote {
	caps := make(map[string]struct{}, len(capabilities))
	for _, c := range capabilities {
		caps[c] = struct{}{}
	}
	return &Remote{name: name, caller: caller, capabilities: caps, timeout: timeout}
}

// Name returns the remote agent name.
func (r *Remote) Name() string { return r.name }

// ExecuteTask implements Agent.
func (r *Remote) ExecuteTask(ctx context.Context, task Task) (map[string]interface{}, error) {
	params, err := commsutil.ToMap(task)
	if err != nil {
		return nil, fmt.Errorf("%s - encode task for %s: %w", remoteLogPrefix, r.name, err)
	}
	return r.caller.Call(ctx, r.name, MethodExecuteTask, params, r.timeout)
}

// Vote implements Voter.
func (r *Remote) Vote(ctx context.Context, question string, params map[string]interface{}) (map[string]interface{}, error) {
	p := map[string]interface{}{}
	for k, v := range params {
		p[k] = v
	}
	p["question"] = question
	return r.caller.Call(ctx, r.name, MethodConsensusVote, p, r.timeout)
}

// HasCapability implements Agent.
func (r *Remote) HasCapability(name string) bool {
	_, ok := r.capabilities[name]
	return ok
}

// IsRunning implements Agent. A remote is running while the local endpoint
// is connected and the registry still considers the agent available.
func (r *Remote) IsRunning() bool {
	if !r.caller.Connected() {
		return false
	}
	return r.available == nil || r.available()
}

// RemoteFactory builds Remotes for agents known to the registry.
type RemoteFactory struct {
	registry registryView
	caller   Caller
	maxAge   time.Duration
	timeout  time.Duration
}

// NewRemoteFactory creates a RemoteFactory. Agents not seen within maxAge are
// treated as absent.
func NewRemoteFactory(reg registryView, caller Caller, maxAge, timeout time.Duration) *RemoteFactory {
	return &RemoteFactory{registry: reg, caller: caller, maxAge: maxAge, timeout: timeout}
}

// Agent implements Factory.
func (f *RemoteFactory) Agent(name string) (Agent, bool) {
	rec, ok := f.registry.Agent(name)
	if !ok || !f.registry.IsAvailable(name, f.maxAge) {
		return nil, false
	}
	caps := make([]string, 0, len(rec.Capabilities))
	for _, c := range rec.Capabilities {
		caps = append(caps, c.Name)
	}
	remote := NewRemote(name, f.caller, caps, f.timeout)
	remote.available = func() bool { return f.registry.IsAvailable(name, f.maxAge) }
	return remote, true
}

// FindByCapability returns the registry's bucket for capability.
func (f *RemoteFactory) FindByCapability(capability string) []string {
	return f.registry.FindByCapability(capability)
}

// Chain resolves names through each factory in order.
type Chain []Factory

// Agent implements Factory.
func (c Chain) Agent(name string) (Agent, bool) {
	for _, f := range c {
		if a, ok := f.Agent(name); ok {
			return a, true
		}
	}
	return nil, false
}
