package registry

import (
	"context"
	"testing"
	"time"
)

const heartbeaterTestPrefix = "registry:heartbeater_test"

func TestHeartbeater_KeepsRegistrationFresh(t *testing.T) {
	reg, err := NewRegistry(NewRegistryParams{})
	if err != nil {
		t.Fatalf("%s - NewRegistry: %v", heartbeaterTestPrefix, err)
	}
	hb := NewHeartbeater(reg, "research_agent", 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	if err := hb.Register(ctx, agentInfo("research_agent", "research", "web_search"), localEndpoint(8001)); err != nil {
		t.Fatalf("%s - Register: %v", heartbeaterTestPrefix, err)
	}
	// The loop outlives the registration context.
	cancel()

	first, _ := reg.Agent("research_agent")
	deadline := time.Now().Add(2 * time.Second)
	for {
		rec, _ := reg.Agent("research_agent")
		if rec.LastSeen.After(first.LastSeen) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("%s - lastSeen never refreshed", heartbeaterTestPrefix)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if !hb.Unregister(context.Background()) {
		t.Errorf("%s - Unregister returned false", heartbeaterTestPrefix)
	}
	if hb.Unregister(context.Background()) {
		t.Errorf("%s - second Unregister returned true", heartbeaterTestPrefix)
	}
}

func TestHeartbeater_NameMismatch(t *testing.T) {
	reg, _ := NewRegistry(NewRegistryParams{})
	hb := NewHeartbeater(reg, "a", 0)
	if hb.interval != reg.Config().HeartbeatInterval {
		t.Errorf("%s - interval = %s, want registry default", heartbeaterTestPrefix, hb.interval)
	}
	if err := hb.Register(context.Background(), agentInfo("b", "t"), localEndpoint(1)); err == nil {
		t.Errorf("%s - expected error for mismatched name", heartbeaterTestPrefix)
	}
}
