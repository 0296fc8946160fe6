package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/morezero/agent-coordinator/pkg/registry"
)

const adminTestPrefix = "server:admin_test"

func newAdminRouter(t *testing.T) (http.Handler, *registry.Registry) {
	t.Helper()
	reg, err := registry.NewRegistry(registry.NewRegistryParams{})
	if err != nil {
		t.Fatalf("%s - NewRegistry: %v", adminTestPrefix, err)
	}
	ctx := context.Background()
	agents := []registry.AgentInfo{
		{Name: "research", Type: "research", Version: "1.4.0", Capabilities: []registry.CapabilityDescriptor{{Name: "search"}, {Name: "summarize"}}},
		{Name: "planner", Type: "planning", Version: "2.0.0", Capabilities: []registry.CapabilityDescriptor{{Name: "plan"}}},
	}
	for _, info := range agents {
		if err := reg.RegisterAgent(ctx, info, registry.ServiceEndpoint{Host: "127.0.0.1", Port: 9000}); err != nil {
			t.Fatalf("%s - RegisterAgent: %v", adminTestPrefix, err)
		}
	}
	r := chi.NewRouter()
	newAdmin(reg, "coordinator").routes(r)
	return r, reg
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestAdmin_Agents(t *testing.T) {
	h, _ := newAdminRouter(t)

	tests := []struct {
		name   string
		path   string
		status int
		total  float64
	}{
		{"all", "/agents", http.StatusOK, 2},
		{"by capability", "/agents?capability=search", http.StatusOK, 1},
		{"by type", "/agents?type=planning", http.StatusOK, 1},
		{"by version", "/agents?version=%5E1.0.0", http.StatusOK, 1},
		{"no match", "/agents?capability=fly", http.StatusOK, 0},
		{"bad constraint", "/agents?version=!!bad", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, h, tt.path)
			if rec.Code != tt.status {
				t.Fatalf("%s - status = %d, want %d (%s)", adminTestPrefix, rec.Code, tt.status, rec.Body.String())
			}
			if tt.status != http.StatusOK {
				return
			}
			var body map[string]interface{}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("%s - decode: %v", adminTestPrefix, err)
			}
			if body["total"] != tt.total {
				t.Errorf("%s - total = %v, want %v", adminTestPrefix, body["total"], tt.total)
			}
		})
	}
}

func TestAdmin_AgentDetail(t *testing.T) {
	h, _ := newAdminRouter(t)

	rec := get(t, h, "/agents/research")
	if rec.Code != http.StatusOK {
		t.Fatalf("%s - status = %d", adminTestPrefix, rec.Code)
	}
	var agent registry.AgentRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &agent); err != nil {
		t.Fatalf("%s - decode: %v", adminTestPrefix, err)
	}
	if agent.Name != "research" || len(agent.Capabilities) != 2 {
		t.Errorf("%s - unexpected agent %+v", adminTestPrefix, agent)
	}

	if rec := get(t, h, "/agents/ghost"); rec.Code != http.StatusNotFound {
		t.Errorf("%s - unknown agent status = %d, want 404", adminTestPrefix, rec.Code)
	}
}

func TestAdmin_Capabilities(t *testing.T) {
	h, _ := newAdminRouter(t)

	rec := get(t, h, "/capabilities")
	var body struct {
		Capabilities map[string][]string `json:"capabilities"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("%s - decode: %v", adminTestPrefix, err)
	}
	if len(body.Capabilities) != 3 {
		t.Errorf("%s - capabilities = %v, want 3 entries", adminTestPrefix, body.Capabilities)
	}
	if got := body.Capabilities["plan"]; len(got) != 1 || got[0] != "planner" {
		t.Errorf("%s - plan agents = %v", adminTestPrefix, got)
	}
}

func TestAdmin_HealthReadyAndHome(t *testing.T) {
	h, _ := newAdminRouter(t)

	rec := get(t, h, "/health")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"healthy"`) {
		t.Errorf("%s - health = %d %s", adminTestPrefix, rec.Code, rec.Body.String())
	}
	if rec := get(t, h, "/ready"); rec.Code != http.StatusOK {
		t.Errorf("%s - ready status = %d", adminTestPrefix, rec.Code)
	}

	rec = get(t, h, "/")
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("%s - home content type = %q", adminTestPrefix, ct)
	}
	for _, want := range []string{"coordinator", "research", "planner", "summarize"} {
		if !strings.Contains(rec.Body.String(), want) {
			t.Errorf("%s - home page missing %q", adminTestPrefix, want)
		}
	}
}

func TestAdmin_ReadyReflectsComms(t *testing.T) {
	reg, err := registry.NewRegistry(registry.NewRegistryParams{})
	if err != nil {
		t.Fatalf("%s - NewRegistry: %v", adminTestPrefix, err)
	}
	tests := []struct {
		name       string
		commsReady func() bool
		want       int
	}{
		{"comms disabled", nil, http.StatusOK},
		{"comms connected", func() bool { return true }, http.StatusOK},
		{"comms disconnected", func() bool { return false }, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAdmin(reg, "coordinator")
			a.commsReady = tt.commsReady
			r := chi.NewRouter()
			a.routes(r)
			if rec := get(t, r, "/ready"); rec.Code != tt.want {
				t.Errorf("%s - ready status = %d, want %d", adminTestPrefix, rec.Code, tt.want)
			}
		})
	}
}
