// Package orchestrator executes dependent workflow steps against agents with
// retry, backoff and capability-based delegation, and resolves consensus
// questions across agents.
package orchestrator

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/morezero/agent-coordinator/pkg/agent"
)

const (
	logPrefix  = "orchestrator:orchestrator"
	tracerName = "github.com/morezero/agent-coordinator/pkg/orchestrator"

	// DefaultPollInterval is the dependency wait polling period.
	DefaultPollInterval = 100 * time.Millisecond
	// DefaultConsensusTimeout bounds vote collection when a request sets none.
	DefaultConsensusTimeout = 10 * time.Second
)

// CapabilityFinder lists agent names advertising a capability.
// *registry.Registry, *agent.Directory and *agent.RemoteFactory implement it.
type CapabilityFinder interface {
	FindByCapability(capability string) []string
}

// Orchestrator runs workflows and consensus rounds. It holds no per-workflow
// state; result maps live for one Execute call.
type Orchestrator struct {
	factory          agent.Factory
	finder           CapabilityFinder
	pollInterval     time.Duration
	consensusTimeout time.Duration
	state            *StateStore
	tracer           trace.Tracer
	sleep            func(ctx context.Context, d time.Duration) error
}

// NewOrchestratorParams holds parameters for NewOrchestrator.
type NewOrchestratorParams struct {
	Factory agent.Factory
	// Finder is consulted for delegation. When nil and Factory implements
	// CapabilityFinder, the factory is used.
	Finder           CapabilityFinder
	PollInterval     time.Duration
	ConsensusTimeout time.Duration
	State            *StateStore
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(params NewOrchestratorParams) *Orchestrator {
	finder := params.Finder
	if finder == nil {
		if f, ok := params.Factory.(CapabilityFinder); ok {
			finder = f
		}
	}
	poll := params.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	consensusTimeout := params.ConsensusTimeout
	if consensusTimeout <= 0 {
		consensusTimeout = DefaultConsensusTimeout
	}
	state := params.State
	if state == nil {
		state = NewStateStore()
	}
	return &Orchestrator{
		factory:          params.Factory,
		finder:           finder,
		pollInterval:     poll,
		consensusTimeout: consensusTimeout,
		state:            state,
		tracer:           otel.Tracer(tracerName),
		sleep:            sleepContext,
	}
}

// State returns the shared state store.
func (o *Orchestrator) State() *StateStore {
	return o.state
}

// SyncState writes every entry of values under agentName.
func (o *Orchestrator) SyncState(agentName string, values map[string]interface{}) {
	for k, v := range values {
		o.state.Set(agentName, k, v)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
