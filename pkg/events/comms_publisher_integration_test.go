package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	commsserver "github.com/nats-io/nats-server/v2/server"
	comms "github.com/nats-io/nats.go"
)

const commsTestPrefix = "events:comms_publisher_integration_test"

// startTestServer starts an in-process NATS server for testing.
func startTestServer(t *testing.T, port int) (*comms.Conn, func()) {
	t.Helper()

	opts := &commsserver.Options{
		Host:   "127.0.0.1",
		Port:   port,
		NoLog:  true,
		NoSigs: true,
	}

	ns, err := commsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("%s - failed to create server: %v", commsTestPrefix, err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatalf("%s - server failed to start", commsTestPrefix)
	}

	nc, err := comms.Connect(ns.ClientURL(), comms.Timeout(5*time.Second))
	if err != nil {
		ns.Shutdown()
		t.Fatalf("%s - failed to connect: %v", commsTestPrefix, err)
	}

	cleanup := func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	}

	return nc, cleanup
}

func subscribeEvents(t *testing.T, nc *comms.Conn, subject string) chan *AgentEvent {
	t.Helper()
	ch := make(chan *AgentEvent, 4)
	sub, err := nc.Subscribe(subject, func(msg *comms.Msg) {
		var event AgentEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			t.Errorf("%s - failed to unmarshal: %v", commsTestPrefix, err)
			return
		}
		ch <- &event
	})
	if err != nil {
		t.Fatalf("%s - failed to subscribe %s: %v", commsTestPrefix, subject, err)
	}
	t.Cleanup(func() { _ = sub.Unsubscribe() })
	return ch
}

func waitEvent(t *testing.T, ch chan *AgentEvent, what string) *AgentEvent {
	t.Helper()
	select {
	case got := <-ch:
		return got
	case <-time.After(5 * time.Second):
		t.Fatalf("%s - timeout waiting for %s", commsTestPrefix, what)
		return nil
	}
}

func TestCommsPublisher_GranularAndGlobalSubjects(t *testing.T) {
	nc, cleanup := startTestServer(t, 14230)
	defer cleanup()

	publisher := NewCommsPublisher(nc, nil)
	granular := subscribeEvents(t, nc, "agents.agent_registered.research_agent")
	global := subscribeEvents(t, nc, "agents.changed")

	event := &AgentEvent{
		Event:        AgentRegistered,
		AgentName:    "research_agent",
		AgentType:    "research",
		Capabilities: []string{"web_search", "summarize"},
		Timestamp:    "2025-01-01T00:00:00Z",
	}
	if err := publisher.PublishAgentEvent(context.Background(), event); err != nil {
		t.Fatalf("%s - PublishAgentEvent failed: %v", commsTestPrefix, err)
	}
	nc.Flush()

	got := waitEvent(t, granular, "granular event")
	if got.AgentName != "research_agent" || got.AgentType != "research" {
		t.Errorf("%s - unexpected granular event %+v", commsTestPrefix, got)
	}
	if len(got.Capabilities) != 2 {
		t.Errorf("%s - Capabilities len = %d, want 2", commsTestPrefix, len(got.Capabilities))
	}

	got = waitEvent(t, global, "global event")
	if got.Event != AgentRegistered {
		t.Errorf("%s - Event = %q, want %q", commsTestPrefix, got.Event, AgentRegistered)
	}
}

func TestCommsPublisher_StaleReasonPreserved(t *testing.T) {
	nc, cleanup := startTestServer(t, 14231)
	defer cleanup()

	publisher := NewCommsPublisher(nc, nil)
	ch := subscribeEvents(t, nc, "agents.agent_unregistered.*")

	event := &AgentEvent{
		Event:     AgentUnregistered,
		AgentName: "planner",
		Reason:    ReasonStale,
		Timestamp: "2025-02-01T00:00:00Z",
	}
	if err := publisher.PublishAgentEvent(context.Background(), event); err != nil {
		t.Fatalf("%s - PublishAgentEvent failed: %v", commsTestPrefix, err)
	}
	nc.Flush()

	got := waitEvent(t, ch, "unregistered event")
	if got.Reason != ReasonStale {
		t.Errorf("%s - Reason = %q, want %q", commsTestPrefix, got.Reason, ReasonStale)
	}
}

func TestCommsPublisher_CustomGlobalSubject(t *testing.T) {
	nc, cleanup := startTestServer(t, 14232)
	defer cleanup()

	customSubject := "custom.agents.changed"
	publisher := NewCommsPublisher(nc, &CommsPublisherOpts{GlobalSubject: customSubject})
	ch := subscribeEvents(t, nc, customSubject)

	event := &AgentEvent{Event: AgentRegistered, AgentName: "writer", Timestamp: "2025-01-01T00:00:00Z"}
	if err := publisher.PublishAgentEvent(context.Background(), event); err != nil {
		t.Fatalf("%s - PublishAgentEvent failed: %v", commsTestPrefix, err)
	}
	nc.Flush()

	if got := waitEvent(t, ch, "custom subject event"); got.AgentName != "writer" {
		t.Errorf("%s - AgentName = %q, want writer", commsTestPrefix, got.AgentName)
	}
}

func TestCommsPublisher_CapabilitySubjects(t *testing.T) {
	nc, cleanup := startTestServer(t, 14233)
	defer cleanup()

	publisher := NewCommsPublisher(nc, &CommsPublisherOpts{CapabilitySubjects: true})
	ch := subscribeEvents(t, nc, "capabilities.web_search")

	event := &AgentEvent{
		Event:        AgentRegistered,
		AgentName:    "research_agent",
		Capabilities: []string{"web_search"},
		Timestamp:    "2025-01-01T00:00:00Z",
	}
	if err := publisher.PublishAgentEvent(context.Background(), event); err != nil {
		t.Fatalf("%s - PublishAgentEvent failed: %v", commsTestPrefix, err)
	}
	nc.Flush()

	if got := waitEvent(t, ch, "capability event"); got.AgentName != "research_agent" {
		t.Errorf("%s - AgentName = %q, want research_agent", commsTestPrefix, got.AgentName)
	}
}

func TestNewCommsPublisher_Defaults(t *testing.T) {
	nc, cleanup := startTestServer(t, 14234)
	defer cleanup()

	for _, opts := range []*CommsPublisherOpts{nil, {GlobalSubject: ""}} {
		publisher := NewCommsPublisher(nc, opts)
		if publisher.globalSubject != "agents.changed" {
			t.Errorf("%s - globalSubject = %q, want agents.changed", commsTestPrefix, publisher.globalSubject)
		}
		if publisher.capabilitySubjects {
			t.Errorf("%s - capability subjects must be off by default", commsTestPrefix)
		}
	}
}
