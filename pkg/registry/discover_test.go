package registry

import (
	"context"
	"reflect"
	"testing"
	"time"
)

const discoverTestPrefix = "registry:discover_test"

func seedRegistry(t *testing.T, reg *Registry) {
	t.Helper()
	ctx := context.Background()
	agents := []struct {
		info AgentInfo
		ver  string
		port int
	}{
		{agentInfo("research_agent", "research", "web_search", "summarize"), "1.4.0", 8001},
		{agentInfo("planner", "planning", "create_itinerary"), "2.0.1", 8002},
		{agentInfo("writer", "research", "summarize"), "1.0.0", 8003},
	}
	for _, a := range agents {
		a.info.Version = a.ver
		if err := reg.RegisterAgent(ctx, a.info, localEndpoint(a.port)); err != nil {
			t.Fatalf("%s - RegisterAgent(%s): %v", discoverTestPrefix, a.info.Name, err)
		}
	}
}

func names(recs []AgentRecord) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Name)
	}
	return out
}

func TestListAgents_Filters(t *testing.T) {
	reg := newTestRegistry(t, newFakeClock(), nil)
	seedRegistry(t, reg)

	tests := []struct {
		name   string
		filter ListFilter
		want   []string
	}{
		{"no filter", ListFilter{}, []string{"planner", "research_agent", "writer"}},
		{"type", ListFilter{Type: "research"}, []string{"research_agent", "writer"}},
		{"capability", ListFilter{Capability: "summarize"}, []string{"research_agent", "writer"}},
		{"type and capability", ListFilter{Type: "research", Capability: "web_search"}, []string{"research_agent"}},
		{"type and capability disjoint", ListFilter{Type: "planning", Capability: "summarize"}, []string{}},
		{"unknown capability", ListFilter{Capability: "teleport"}, []string{}},
		{"version caret", ListFilter{Version: "^1.2.0"}, []string{"research_agent"}},
		{"version major", ListFilter{Version: "1"}, []string{"research_agent", "writer"}},
		{"version and capability", ListFilter{Version: "2", Capability: "create_itinerary"}, []string{"planner"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := names(reg.ListAgents(tt.filter))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("%s - ListAgents(%+v) = %v, want %v", discoverTestPrefix, tt.filter, got, tt.want)
			}
		})
	}
}

func TestListAgents_ReturnsCopies(t *testing.T) {
	reg := newTestRegistry(t, newFakeClock(), nil)
	seedRegistry(t, reg)

	recs := reg.ListAgents(ListFilter{Type: "planning"})
	recs[0].Capabilities[0].Name = "mutated"

	if got := reg.FindByCapability("create_itinerary"); !reflect.DeepEqual(got, []string{"planner"}) {
		t.Errorf("%s - index affected by caller mutation: %v", discoverTestPrefix, got)
	}
	if err := reg.Verify(); err != nil {
		t.Errorf("%s - Verify: %v", discoverTestPrefix, err)
	}
}

func TestFindByCapability(t *testing.T) {
	reg := newTestRegistry(t, newFakeClock(), nil)
	seedRegistry(t, reg)

	if got := reg.FindByCapability("summarize"); !reflect.DeepEqual(got, []string{"research_agent", "writer"}) {
		t.Errorf("%s - summarize = %v", discoverTestPrefix, got)
	}
	got := reg.FindByCapability("missing")
	if got == nil || len(got) != 0 {
		t.Errorf("%s - missing capability = %#v, want empty slice", discoverTestPrefix, got)
	}
	want := []string{"create_itinerary", "summarize", "web_search"}
	if caps := reg.Capabilities(); !reflect.DeepEqual(caps, want) {
		t.Errorf("%s - Capabilities() = %v, want %v", discoverTestPrefix, caps, want)
	}
}

func TestResolveEndpoint(t *testing.T) {
	reg := newTestRegistry(t, newFakeClock(), nil)
	seedRegistry(t, reg)

	url, ok := reg.ResolveEndpoint("planner")
	if !ok || url != "http://127.0.0.1:8002" {
		t.Errorf("%s - ResolveEndpoint(planner) = %q, %v", discoverTestPrefix, url, ok)
	}
	if _, ok := reg.ResolveEndpoint("ghost"); ok {
		t.Errorf("%s - ResolveEndpoint(ghost) ok", discoverTestPrefix)
	}
	if _, ok := reg.Endpoint("ghost"); ok {
		t.Errorf("%s - Endpoint(ghost) ok", discoverTestPrefix)
	}
}

func TestIsAvailable_BoundaryInclusive(t *testing.T) {
	clock := newFakeClock()
	reg := newTestRegistry(t, clock, nil)
	_ = reg.RegisterAgent(context.Background(), agentInfo("a", "t", "x"), localEndpoint(1))
	maxAge := 120 * time.Second

	tests := []struct {
		name    string
		advance time.Duration
		want    bool
	}{
		{"fresh", 0, true},
		{"just under", maxAge - time.Nanosecond, true},
		{"exactly max age", time.Nanosecond, true},
		{"just over", time.Nanosecond, false},
	}
	for _, tt := range tests {
		clock.Advance(tt.advance)
		if got := reg.IsAvailable("a", maxAge); got != tt.want {
			t.Errorf("%s - %s: IsAvailable = %v, want %v", discoverTestPrefix, tt.name, got, tt.want)
		}
	}

	if reg.IsAvailable("ghost", maxAge) {
		t.Errorf("%s - unknown agent reported available", discoverTestPrefix)
	}
}
