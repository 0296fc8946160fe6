package commsutil

import (
	"fmt"
	"strings"
)

// Default COMMS subjects.
const (
	SubjectAgentChanged = "agents.changed"
	SubjectCoordinator  = "coordinator.requests"
)

// BuildAgentEventSubject builds a granular agent event subject, e.g.
// "agents.agent_registered.research_agent". Dots and spaces in the agent name
// are replaced so the name stays a single subject token.
func BuildAgentEventSubject(event, agentName string) string {
	return fmt.Sprintf("agents.%s.%s", event, subjectToken(agentName))
}

// BuildCapabilitySubject builds a COMMS subject announcing agents for a capability.
func BuildCapabilitySubject(capability string) string {
	return "capabilities." + subjectToken(capability)
}

func subjectToken(s string) string {
	s = strings.ReplaceAll(s, ".", "_")
	s = strings.ReplaceAll(s, " ", "_")
	if s == "" {
		return "_"
	}
	return s
}
