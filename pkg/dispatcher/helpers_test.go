package dispatcher

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/morezero/agent-coordinator/pkg/agent"
	"github.com/morezero/agent-coordinator/pkg/orchestrator"
	"github.com/morezero/agent-coordinator/pkg/registry"
)

const testPrefix = "dispatcher:dispatcher_test"

type fixture struct {
	disp *Dispatcher
	reg  *registry.Registry
	dir  *agent.Directory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg, err := registry.NewRegistry(registry.NewRegistryParams{Config: registry.Config{StrictInvariants: true}})
	if err != nil {
		t.Fatalf("%s - NewRegistry: %v", testPrefix, err)
	}
	dir := agent.NewDirectory()
	orch := orchestrator.NewOrchestrator(orchestrator.NewOrchestratorParams{
		Factory:          dir,
		PollInterval:     5 * time.Millisecond,
		ConsensusTimeout: time.Second,
	})
	return &fixture{
		disp: NewDispatcher(NewDispatcherParams{Registry: reg, Orchestrator: orch, AvailabilityMaxAge: time.Minute}),
		reg:  reg,
		dir:  dir,
	}
}

func (f *fixture) addAgent(t *testing.T, name string, caps []string, fn agent.TaskFunc) {
	t.Helper()
	a := agent.NewFuncAgent(name, caps, fn)
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("%s - Initialize: %v", testPrefix, err)
	}
	f.dir.Register(name, a)
}

func (f *fixture) call(t *testing.T, method string, params interface{}) *CoordinatorResponse {
	t.Helper()
	raw, err := json.Marshal(params)
	if err != nil {
		t.Fatalf("%s - marshal params: %v", testPrefix, err)
	}
	return f.disp.Dispatch(context.Background(), &CoordinatorRequest{ID: "req-1", Method: method, Params: raw})
}

// resultMap round-trips a result through JSON the way a client sees it.
func resultMap(t *testing.T, resp *CoordinatorResponse) map[string]interface{} {
	t.Helper()
	if !resp.Ok {
		t.Fatalf("%s - expected ok response, got %+v", testPrefix, resp.Error)
	}
	raw, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatalf("%s - marshal result: %v", testPrefix, err)
	}
	out := map[string]interface{}{}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("%s - unmarshal result: %v", testPrefix, err)
	}
	return out
}

func registerParams(name string, caps ...string) RegisterAgentInput {
	descs := make([]registry.CapabilityDescriptor, 0, len(caps))
	for _, c := range caps {
		descs = append(descs, registry.CapabilityDescriptor{Name: c})
	}
	return RegisterAgentInput{
		Agent:    registry.AgentInfo{Name: name, Type: "worker", Version: "1.2.0", Capabilities: descs},
		Endpoint: registry.ServiceEndpoint{Host: "127.0.0.1", Port: 9001},
	}
}
