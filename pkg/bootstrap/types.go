// Package bootstrap loads the static agent manifest the coordinator seeds into
// its registry at startup.
package bootstrap

import (
	"github.com/morezero/agent-coordinator/pkg/fault"
	"github.com/morezero/agent-coordinator/pkg/registry"
)

// ManifestAgent is one statically known agent and where it listens.
type ManifestAgent struct {
	registry.AgentInfo
	Endpoint registry.ServiceEndpoint `json:"endpoint"`
}

// Manifest is the root of an agents file.
// Name and Version identify the manifest in logs only.
type Manifest struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Description string          `json:"description,omitempty"`
	Agents      []ManifestAgent `json:"agents"`
}

// Validate checks that every entry names a distinct agent with a reachable
// endpoint. Capability and version checks are left to the registry.
func (m *Manifest) Validate() error {
	seen := make(map[string]bool, len(m.Agents))
	for i, a := range m.Agents {
		if a.Name == "" {
			return fault.Validation("manifest agent %d has no name", i)
		}
		if seen[a.Name] {
			return fault.Validation("manifest lists agent %q twice", a.Name)
		}
		seen[a.Name] = true
		if a.Endpoint.Host == "" {
			return fault.Validation("manifest agent %q has no endpoint host", a.Name)
		}
		if a.Endpoint.Port <= 0 || a.Endpoint.Port > 65535 {
			return fault.Validation("manifest agent %q has endpoint port %d out of range", a.Name, a.Endpoint.Port)
		}
	}
	return nil
}

// Names returns the agent names in manifest order.
func (m *Manifest) Names() []string {
	out := make([]string, 0, len(m.Agents))
	for _, a := range m.Agents {
		out = append(out, a.Name)
	}
	return out
}

// MergeManifests returns base with override's agents applied on top. An
// override entry replaces the base entry of the same name in place; new
// names are appended.
func MergeManifests(base, override *Manifest) *Manifest {
	merged := *base
	merged.Agents = append([]ManifestAgent(nil), base.Agents...)

	pos := make(map[string]int, len(merged.Agents))
	for i, a := range merged.Agents {
		pos[a.Name] = i
	}
	for _, a := range override.Agents {
		if i, ok := pos[a.Name]; ok {
			merged.Agents[i] = a
			continue
		}
		pos[a.Name] = len(merged.Agents)
		merged.Agents = append(merged.Agents, a)
	}

	if override.Name != "" {
		merged.Name = override.Name
	}
	if override.Version != "" {
		merged.Version = override.Version
	}
	return &merged
}
