package dispatcher

import (
	"time"

	"github.com/morezero/agent-coordinator/pkg/orchestrator"
	"github.com/morezero/agent-coordinator/pkg/registry"
)

// RegisterAgentInput is the register_agent payload.
type RegisterAgentInput struct {
	Agent    registry.AgentInfo       `json:"agent"`
	Endpoint registry.ServiceEndpoint `json:"endpoint"`
}

// AgentNameInput names one agent.
type AgentNameInput struct {
	Name string `json:"name"`
}

// IsAvailableInput is the is_available payload. MaxAgeMs of zero uses the
// configured availability window.
type IsAvailableInput struct {
	Name     string `json:"name"`
	MaxAgeMs int64  `json:"max_age_ms,omitempty"`
}

// FindByCapabilityInput is the find_by_capability payload.
type FindByCapabilityInput struct {
	Capability string `json:"capability"`
}

// StepInput is one workflow step on the wire. A nil MaxRetries uses the
// default retry policy.
type StepInput struct {
	Key          string                 `json:"key,omitempty"`
	AgentName    string                 `json:"agent_name"`
	Method       string                 `json:"method"`
	Params       map[string]interface{} `json:"params,omitempty"`
	DependsOn    []string               `json:"depends_on,omitempty"`
	MaxRetries   *int                   `json:"max_retries,omitempty"`
	BackoffMs    int64                  `json:"backoff_ms,omitempty"`
	MaxBackoffMs int64                  `json:"max_backoff_ms,omitempty"`
	CanDelegate  bool                   `json:"can_delegate,omitempty"`
}

func (s StepInput) toStep() orchestrator.Step {
	policy := orchestrator.DefaultRetryPolicy()
	if s.MaxRetries != nil {
		policy.MaxRetries = *s.MaxRetries
	}
	if s.BackoffMs > 0 {
		policy.Backoff = time.Duration(s.BackoffMs) * time.Millisecond
	}
	if s.MaxBackoffMs > 0 {
		policy.MaxBackoff = time.Duration(s.MaxBackoffMs) * time.Millisecond
	}
	return orchestrator.Step{
		Key:         s.Key,
		AgentName:   s.AgentName,
		Method:      s.Method,
		Params:      s.Params,
		DependsOn:   s.DependsOn,
		Retry:       policy,
		CanDelegate: s.CanDelegate,
	}
}

// ExecuteWorkflowInput is the execute_workflow payload.
type ExecuteWorkflowInput struct {
	WorkflowID string      `json:"workflow_id,omitempty"`
	Steps      []StepInput `json:"steps"`
}

// ExecuteWorkflowOutput is the execute_workflow result.
type ExecuteWorkflowOutput struct {
	WorkflowID string                            `json:"workflow_id"`
	Results    map[string]map[string]interface{} `json:"results"`
}

// ResolveConsensusInput is the resolve_consensus payload.
type ResolveConsensusInput struct {
	Question     string                 `json:"question"`
	Participants []string               `json:"participants"`
	Rule         string                 `json:"rule,omitempty"`
	TimeoutMs    int64                  `json:"timeout_ms,omitempty"`
	Weights      map[string]float64     `json:"weights,omitempty"`
	Params       map[string]interface{} `json:"params,omitempty"`
}

func (in ResolveConsensusInput) toRequest() orchestrator.ConsensusRequest {
	rule := orchestrator.Rule(in.Rule)
	if rule == "" {
		rule = orchestrator.RuleMajority
	}
	return orchestrator.ConsensusRequest{
		Question:     in.Question,
		Participants: in.Participants,
		Rule:         rule,
		Timeout:      time.Duration(in.TimeoutMs) * time.Millisecond,
		Weights:      in.Weights,
		Params:       in.Params,
	}
}

// SyncStateInput is the sync_state payload.
type SyncStateInput struct {
	Agent string                 `json:"agent"`
	State map[string]interface{} `json:"state"`
}

// GetStateInput is the get_state payload.
type GetStateInput struct {
	Agent string `json:"agent"`
}
