package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/morezero/agent-coordinator/pkg/events"
)

// fakeClock is a settable clock for boundary tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// recorder collects published events.
type recorder struct {
	mu     sync.Mutex
	events []*events.AgentEvent
}

func (r *recorder) PublishAgentEvent(_ context.Context, e *events.AgentEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) all() []*events.AgentEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*events.AgentEvent(nil), r.events...)
}

func newTestRegistry(t *testing.T, clock *fakeClock, pub events.EventPublisher) *Registry {
	t.Helper()
	reg, err := NewRegistry(NewRegistryParams{
		Publisher: pub,
		Config:    Config{StrictInvariants: true},
		Now:       clock.Now,
	})
	if err != nil {
		t.Fatalf("registry:helpers_test - NewRegistry: %v", err)
	}
	return reg
}

func agentInfo(name, typ string, caps ...string) AgentInfo {
	info := AgentInfo{Name: name, Type: typ}
	for _, c := range caps {
		info.Capabilities = append(info.Capabilities, CapabilityDescriptor{Name: c, Description: c + " capability"})
	}
	return info
}

func localEndpoint(port int) ServiceEndpoint {
	return ServiceEndpoint{Host: "127.0.0.1", Port: port, Protocol: "http"}
}
