package registry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/morezero/agent-coordinator/pkg/events"
	"github.com/morezero/agent-coordinator/pkg/fault"
	"github.com/morezero/agent-coordinator/pkg/semver"
)

const registerLogPrefix = "registry:register"

// RegisterAgent registers or re-registers an agent. Re-registration replaces
// the capability set, endpoint and lastSeen; the agent's index entries are
// rebuilt to exactly match info.Capabilities.
func (r *Registry) RegisterAgent(ctx context.Context, info AgentInfo, endpoint ServiceEndpoint) error {
	if err := validateAgentInfo(info); err != nil {
		return err
	}

	caps := make([]CapabilityDescriptor, 0, len(info.Capabilities))
	seen := make(map[string]bool, len(info.Capabilities))
	for _, c := range info.Capabilities {
		if seen[c.Name] {
			continue
		}
		seen[c.Name] = true
		caps = append(caps, cloneDescriptor(c))
	}
	status := info.Status
	if status == "" {
		status = StatusActive
	}

	r.mu.Lock()
	now := r.now().UTC()
	rec, existed := r.agents[info.Name]
	registeredAt := now
	if existed {
		registeredAt = rec.RegisteredAt
		r.dropFromIndexLocked(rec)
	}
	rec = &AgentRecord{
		Name:         info.Name,
		Type:         info.Type,
		Status:       status,
		Version:      info.Version,
		Capabilities: caps,
		LastSeen:     now,
		RegisteredAt: registeredAt,
		Endpoint:     endpoint,
	}
	r.agents[info.Name] = rec
	for _, c := range caps {
		bucket, ok := r.index[c.Name]
		if !ok {
			bucket = make(map[string]struct{})
			r.index[c.Name] = bucket
		}
		bucket[info.Name] = struct{}{}
	}
	invErr := r.strictCheckLocked()
	r.mu.Unlock()
	if invErr != nil {
		panic(invErr)
	}

	action := "registered"
	if existed {
		action = "re-registered"
	}
	slog.Info(fmt.Sprintf("%s - Agent %s %s with %d capabilities at %s", registerLogPrefix, info.Name, action, len(caps), endpoint.URL()))

	r.publish(ctx, &events.AgentEvent{
		Event:        events.AgentRegistered,
		AgentName:    info.Name,
		AgentType:    info.Type,
		Capabilities: rec.capabilityNames(),
		Timestamp:    now.Format(time.RFC3339),
	})
	return nil
}

// UnregisterAgent removes an agent and purges it from every capability bucket.
// It returns false if the agent is unknown.
func (r *Registry) UnregisterAgent(ctx context.Context, name string) bool {
	return r.unregister(ctx, name, events.ReasonRequested, time.Time{})
}

// unregister drops the named record. A non-zero staleBefore only drops it if
// its lastSeen is still before that instant when the lock is taken.
func (r *Registry) unregister(ctx context.Context, name, reason string, staleBefore time.Time) bool {
	r.mu.Lock()
	rec, ok := r.agents[name]
	if !ok || (!staleBefore.IsZero() && !rec.LastSeen.Before(staleBefore)) {
		r.mu.Unlock()
		return false
	}
	r.dropFromIndexLocked(rec)
	delete(r.agents, name)
	invErr := r.strictCheckLocked()
	now := r.now().UTC()
	r.mu.Unlock()
	if invErr != nil {
		panic(invErr)
	}

	slog.Info(fmt.Sprintf("%s - Agent %s unregistered (%s)", registerLogPrefix, name, reason))

	r.publish(ctx, &events.AgentEvent{
		Event:     events.AgentUnregistered,
		AgentName: name,
		AgentType: rec.Type,
		Reason:    reason,
		Timestamp: now.Format(time.RFC3339),
	})
	return true
}

// Heartbeat refreshes the agent's lastSeen. It returns false if unknown.
func (r *Registry) Heartbeat(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.agents[name]
	if !ok {
		return false
	}
	rec.LastSeen = r.now().UTC()
	return true
}

// dropFromIndexLocked removes rec's name from each bucket it declared and
// deletes buckets left empty. Caller holds r.mu.
func (r *Registry) dropFromIndexLocked(rec *AgentRecord) {
	for _, c := range rec.Capabilities {
		bucket, ok := r.index[c.Name]
		if !ok {
			continue
		}
		delete(bucket, rec.Name)
		if len(bucket) == 0 {
			delete(r.index, c.Name)
		}
	}
}

// publish emits an event outside the registry lock. Failures are logged and
// never fail the mutation that produced the event.
func (r *Registry) publish(ctx context.Context, event *events.AgentEvent) {
	if err := r.publisher.PublishAgentEvent(ctx, event); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to publish %s for %s: %v", registerLogPrefix, event.Event, event.AgentName, err))
	}
}

func validateAgentInfo(info AgentInfo) error {
	if strings.TrimSpace(info.Name) == "" {
		return fault.Validation("agent name is required")
	}
	if info.Version != "" {
		if err := semver.ValidateVersion(info.Version); err != nil {
			return fault.Wrap(fault.CodeValidation, err, "agent %s has an invalid version", info.Name)
		}
	}
	for i, c := range info.Capabilities {
		if strings.TrimSpace(c.Name) == "" {
			return fault.Validation("agent %s capability %d has no name", info.Name, i)
		}
	}
	return nil
}
