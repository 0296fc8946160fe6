// Package events defines agent lifecycle event types and publisher interfaces.
package events

// Event names emitted by the registry.
const (
	AgentRegistered   = "agent_registered"
	AgentUnregistered = "agent_unregistered"
)

// Reasons attached to agent_unregistered events.
const (
	ReasonRequested = "requested"
	ReasonStale     = "stale"
)

// AgentEvent is emitted when an agent joins or leaves the registry.
type AgentEvent struct {
	Event        string   `json:"event"`
	AgentName    string   `json:"agent_name"`
	AgentType    string   `json:"agent_type,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
	Reason       string   `json:"reason,omitempty"`
	Timestamp    string   `json:"timestamp"`
}

// Data returns the event as a notification data map.
func (e *AgentEvent) Data() map[string]interface{} {
	data := map[string]interface{}{
		"agent_name": e.AgentName,
		"timestamp":  e.Timestamp,
	}
	if e.AgentType != "" {
		data["agent_type"] = e.AgentType
	}
	if e.Capabilities != nil {
		caps := make([]interface{}, len(e.Capabilities))
		for i, c := range e.Capabilities {
			caps[i] = c
		}
		data["capabilities"] = caps
	}
	if e.Reason != "" {
		data["reason"] = e.Reason
	}
	return data
}
