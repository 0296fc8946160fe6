package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/morezero/agent-coordinator/pkg/commsutil"
	"github.com/morezero/agent-coordinator/pkg/fault"
	"github.com/morezero/agent-coordinator/pkg/orchestrator"
	"github.com/morezero/agent-coordinator/pkg/registry"
	"github.com/morezero/agent-coordinator/pkg/semver"
)

const logPrefix = "dispatcher:dispatch"

// Coordinator methods.
const (
	MethodRegisterAgent    = "register_agent"
	MethodUnregisterAgent  = "unregister_agent"
	MethodHeartbeat        = "heartbeat"
	MethodListAgents       = "list_agents"
	MethodFindByCapability = "find_by_capability"
	MethodIsAvailable      = "is_available"
	MethodExecuteWorkflow  = "execute_workflow"
	MethodResolveConsensus = "resolve_consensus"
	MethodSyncState        = "sync_state"
	MethodGetState         = "get_state"
	MethodHealth           = "health"
)

// Dispatcher routes coordinator requests to registry and orchestrator methods.
type Dispatcher struct {
	registry     *registry.Registry
	orchestrator *orchestrator.Orchestrator
	maxAge       time.Duration
}

// NewDispatcherParams holds parameters for NewDispatcher.
type NewDispatcherParams struct {
	Registry     *registry.Registry
	Orchestrator *orchestrator.Orchestrator
	// AvailabilityMaxAge is the is_available window when a request sets none.
	AvailabilityMaxAge time.Duration
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(params NewDispatcherParams) *Dispatcher {
	maxAge := params.AvailabilityMaxAge
	if maxAge <= 0 {
		maxAge = 2 * time.Minute
	}
	return &Dispatcher{registry: params.Registry, orchestrator: params.Orchestrator, maxAge: maxAge}
}

// Methods lists the methods Dispatch serves, sorted.
func (d *Dispatcher) Methods() []string {
	out := []string{
		MethodRegisterAgent, MethodUnregisterAgent, MethodHeartbeat, MethodListAgents,
		MethodFindByCapability, MethodIsAvailable, MethodExecuteWorkflow,
		MethodResolveConsensus, MethodSyncState, MethodGetState, MethodHealth,
	}
	sort.Strings(out)
	return out
}

// Dispatch routes a request to the appropriate method and returns a response.
func (d *Dispatcher) Dispatch(ctx context.Context, req *CoordinatorRequest) *CoordinatorResponse {
	slog.Debug(fmt.Sprintf("%s - method=%s id=%s", logPrefix, req.Method, req.ID))

	switch req.Method {
	case MethodRegisterAgent:
		return d.handleRegisterAgent(ctx, req)
	case MethodUnregisterAgent:
		return d.handleUnregisterAgent(ctx, req)
	case MethodHeartbeat:
		return d.handleHeartbeat(req)
	case MethodListAgents:
		return d.handleListAgents(req)
	case MethodFindByCapability:
		return d.handleFindByCapability(req)
	case MethodIsAvailable:
		return d.handleIsAvailable(req)
	case MethodExecuteWorkflow:
		return d.handleExecuteWorkflow(ctx, req)
	case MethodResolveConsensus:
		return d.handleResolveConsensus(ctx, req)
	case MethodSyncState:
		return d.handleSyncState(req)
	case MethodGetState:
		return d.handleGetState(req)
	case MethodHealth:
		return d.handleHealth(ctx, req)
	default:
		return &CoordinatorResponse{
			ID: req.ID,
			Ok: false,
			Error: &ErrorDetail{
				Code:      "METHOD_NOT_FOUND",
				Message:   fmt.Sprintf("Unknown method: %s", req.Method),
				Retryable: false,
			},
		}
	}
}

func (d *Dispatcher) handleRegisterAgent(ctx context.Context, req *CoordinatorRequest) *CoordinatorResponse {
	var input RegisterAgentInput
	if err := decode(req.Params, &input); err != nil {
		return errorResponse(req.ID, "INVALID_ARGUMENT", "Failed to parse register_agent params", false)
	}
	if err := d.registry.RegisterAgent(ctx, input.Agent, input.Endpoint); err != nil {
		return faultToResponse(req.ID, err)
	}
	return &CoordinatorResponse{ID: req.ID, Ok: true, Result: map[string]interface{}{"registered": true, "name": input.Agent.Name}}
}

func (d *Dispatcher) handleUnregisterAgent(ctx context.Context, req *CoordinatorRequest) *CoordinatorResponse {
	var input AgentNameInput
	if err := decode(req.Params, &input); err != nil || input.Name == "" {
		return errorResponse(req.ID, "INVALID_ARGUMENT", "Failed to parse unregister_agent params", false)
	}
	removed := d.registry.UnregisterAgent(ctx, input.Name)
	return &CoordinatorResponse{ID: req.ID, Ok: true, Result: map[string]interface{}{"unregistered": removed}}
}

func (d *Dispatcher) handleHeartbeat(req *CoordinatorRequest) *CoordinatorResponse {
	var input AgentNameInput
	if err := decode(req.Params, &input); err != nil || input.Name == "" {
		return errorResponse(req.ID, "INVALID_ARGUMENT", "Failed to parse heartbeat params", false)
	}
	known := d.registry.Heartbeat(input.Name)
	return &CoordinatorResponse{ID: req.ID, Ok: true, Result: map[string]interface{}{"known": known}}
}

func (d *Dispatcher) handleListAgents(req *CoordinatorRequest) *CoordinatorResponse {
	var filter registry.ListFilter
	if err := decode(req.Params, &filter); err != nil {
		return errorResponse(req.ID, "INVALID_ARGUMENT", "Failed to parse list_agents params", false)
	}
	if filter.Version != "" {
		if err := semver.ValidateConstraint(filter.Version); err != nil {
			return errorResponse(req.ID, "INVALID_ARGUMENT", err.Error(), false)
		}
	}
	agents := d.registry.ListAgents(filter)
	return &CoordinatorResponse{ID: req.ID, Ok: true, Result: map[string]interface{}{"agents": agents, "total": len(agents)}}
}

func (d *Dispatcher) handleFindByCapability(req *CoordinatorRequest) *CoordinatorResponse {
	var input FindByCapabilityInput
	if err := decode(req.Params, &input); err != nil || input.Capability == "" {
		return errorResponse(req.ID, "INVALID_ARGUMENT", "Failed to parse find_by_capability params", false)
	}
	return &CoordinatorResponse{ID: req.ID, Ok: true, Result: map[string]interface{}{"agents": d.registry.FindByCapability(input.Capability)}}
}

func (d *Dispatcher) handleIsAvailable(req *CoordinatorRequest) *CoordinatorResponse {
	var input IsAvailableInput
	if err := decode(req.Params, &input); err != nil || input.Name == "" {
		return errorResponse(req.ID, "INVALID_ARGUMENT", "Failed to parse is_available params", false)
	}
	maxAge := d.maxAge
	if input.MaxAgeMs > 0 {
		maxAge = time.Duration(input.MaxAgeMs) * time.Millisecond
	}
	return &CoordinatorResponse{ID: req.ID, Ok: true, Result: map[string]interface{}{"available": d.registry.IsAvailable(input.Name, maxAge)}}
}

func (d *Dispatcher) handleExecuteWorkflow(ctx context.Context, req *CoordinatorRequest) *CoordinatorResponse {
	var input ExecuteWorkflowInput
	if err := decode(req.Params, &input); err != nil {
		return errorResponse(req.ID, "INVALID_ARGUMENT", "Failed to parse execute_workflow params", false)
	}
	workflowID := input.WorkflowID
	if workflowID == "" {
		workflowID = uuid.NewString()
	}
	steps := make([]orchestrator.Step, 0, len(input.Steps))
	for _, s := range input.Steps {
		steps = append(steps, s.toStep())
	}

	results, err := d.orchestrator.Execute(ctx, workflowID, steps)
	if err != nil {
		return faultToResponse(req.ID, err)
	}
	return &CoordinatorResponse{ID: req.ID, Ok: true, Result: ExecuteWorkflowOutput{WorkflowID: workflowID, Results: results}}
}

func (d *Dispatcher) handleResolveConsensus(ctx context.Context, req *CoordinatorRequest) *CoordinatorResponse {
	var input ResolveConsensusInput
	if err := decode(req.Params, &input); err != nil {
		return errorResponse(req.ID, "INVALID_ARGUMENT", "Failed to parse resolve_consensus params", false)
	}
	result, err := d.orchestrator.ResolveConsensus(ctx, input.toRequest())
	if err != nil {
		return faultToResponse(req.ID, err)
	}
	return &CoordinatorResponse{ID: req.ID, Ok: true, Result: result}
}

func (d *Dispatcher) handleSyncState(req *CoordinatorRequest) *CoordinatorResponse {
	var input SyncStateInput
	if err := decode(req.Params, &input); err != nil || input.Agent == "" {
		return errorResponse(req.ID, "INVALID_ARGUMENT", "Failed to parse sync_state params", false)
	}
	d.orchestrator.SyncState(input.Agent, input.State)
	return &CoordinatorResponse{ID: req.ID, Ok: true, Result: map[string]interface{}{"synced": len(input.State)}}
}

func (d *Dispatcher) handleGetState(req *CoordinatorRequest) *CoordinatorResponse {
	var input GetStateInput
	if err := decode(req.Params, &input); err != nil || input.Agent == "" {
		return errorResponse(req.ID, "INVALID_ARGUMENT", "Failed to parse get_state params", false)
	}
	return &CoordinatorResponse{ID: req.ID, Ok: true, Result: map[string]interface{}{"state": d.orchestrator.State().Snapshot(input.Agent)}}
}

func (d *Dispatcher) handleHealth(ctx context.Context, req *CoordinatorRequest) *CoordinatorResponse {
	result := d.registry.Health(ctx)
	return &CoordinatorResponse{ID: req.ID, Ok: true, Result: result}
}

// --- helpers ---

// decode accepts empty params as an empty object.
func decode(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return commsutil.DecodePayload(raw, v)
}

func errorResponse(id, code, message string, retryable bool) *CoordinatorResponse {
	return &CoordinatorResponse{
		ID: id,
		Ok: false,
		Error: &ErrorDetail{
			Code:      code,
			Message:   message,
			Retryable: retryable,
		},
	}
}

func faultToResponse(id string, err error) *CoordinatorResponse {
	var wfErr *orchestrator.WorkflowExecutionError
	if errors.As(err, &wfErr) {
		return &CoordinatorResponse{
			ID: id,
			Ok: false,
			Error: &ErrorDetail{
				Code:    fault.CodeWorkflowExecution,
				Message: wfErr.Error(),
				Details: map[string]interface{}{
					"workflow_id": wfErr.WorkflowID,
					"step":        wfErr.Step,
					"attempts":    wfErr.Attempts,
					"cause":       fault.CodeOf(wfErr.Err),
				},
				Retryable: false,
			},
		}
	}
	var fe *fault.Error
	if errors.As(err, &fe) {
		return &CoordinatorResponse{
			ID: id,
			Ok: false,
			Error: &ErrorDetail{
				Code:      fe.Code,
				Message:   fe.Message,
				Details:   fe.Details,
				Retryable: fe.Retryable(),
			},
		}
	}
	return errorResponse(id, "INTERNAL_ERROR", err.Error(), true)
}
