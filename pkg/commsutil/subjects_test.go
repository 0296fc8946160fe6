package commsutil

import "testing"

func TestBuildAgentEventSubject(t *testing.T) {
	tests := []struct {
		name  string
		event string
		agent string
		want  string
	}{
		{"basic", "agent_registered", "research_agent", "agents.agent_registered.research_agent"},
		{"dotted name", "agent_unregistered", "team.planner", "agents.agent_unregistered.team_planner"},
		{"spaced name", "agent_registered", "my agent", "agents.agent_registered.my_agent"},
		{"empty name", "agent_registered", "", "agents.agent_registered._"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildAgentEventSubject(tt.event, tt.agent)
			if got != tt.want {
				t.Errorf("BuildAgentEventSubject(%q, %q) = %q, want %q", tt.event, tt.agent, got, tt.want)
			}
		})
	}
}

func TestBuildCapabilitySubject(t *testing.T) {
	tests := []struct {
		name string
		capN string
		want string
	}{
		{"simple", "consensus_vote", "capabilities.consensus_vote"},
		{"dotted", "doc.ingest", "capabilities.doc_ingest"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildCapabilitySubject(tt.capN)
			if got != tt.want {
				t.Errorf("BuildCapabilitySubject(%q) = %q, want %q", tt.capN, got, tt.want)
			}
		})
	}
}
