// Package registry implements the capability-indexed agent directory: registration,
// heartbeat liveness, stale eviction and lifecycle events.
package registry

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Agent status values.
const (
	StatusActive = "active"
	StatusBusy   = "busy"
)

// CapabilityDescriptor describes a named operation an agent supports.
type CapabilityDescriptor struct {
	Name          string                 `json:"name"`
	Description   string                 `json:"description,omitempty"`
	Parameters    map[string]interface{} `json:"parameters,omitempty"`
	ToolsRequired []string               `json:"tools_required,omitempty"`
}

// AgentInfo is the registration input an agent declares about itself.
type AgentInfo struct {
	Name         string                 `json:"name"`
	Type         string                 `json:"agent_type"`
	Status       string                 `json:"status,omitempty"`
	Version      string                 `json:"version,omitempty"`
	Capabilities []CapabilityDescriptor `json:"capabilities"`
}

// CapabilityNames returns the declared capability names in order.
func (i AgentInfo) CapabilityNames() []string {
	names := make([]string, 0, len(i.Capabilities))
	for _, c := range i.Capabilities {
		names = append(names, c.Name)
	}
	return names
}

// ServiceEndpoint is where an agent's protocol endpoint listens.
type ServiceEndpoint struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Protocol string `json:"protocol,omitempty"`
}

// URL returns the endpoint base URL, e.g. "http://127.0.0.1:8001".
func (e ServiceEndpoint) URL() string {
	scheme := e.Protocol
	if scheme == "" {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(e.Host, strconv.Itoa(e.Port)))
}

// AgentRecord is the registry-owned view of a registered agent.
type AgentRecord struct {
	Name         string                 `json:"name"`
	Type         string                 `json:"agent_type"`
	Status       string                 `json:"status"`
	Version      string                 `json:"version,omitempty"`
	Capabilities []CapabilityDescriptor `json:"capabilities"`
	LastSeen     time.Time              `json:"last_seen"`
	RegisteredAt time.Time              `json:"registered_at"`
	Endpoint     ServiceEndpoint        `json:"endpoint"`
}

// HasCapability reports whether the record declares the named capability.
func (r *AgentRecord) HasCapability(name string) bool {
	for _, c := range r.Capabilities {
		if c.Name == name {
			return true
		}
	}
	return false
}

func (r *AgentRecord) capabilityNames() []string {
	names := make([]string, 0, len(r.Capabilities))
	for _, c := range r.Capabilities {
		names = append(names, c.Name)
	}
	return names
}

func (r *AgentRecord) clone() AgentRecord {
	out := *r
	out.Capabilities = make([]CapabilityDescriptor, len(r.Capabilities))
	for i, c := range r.Capabilities {
		out.Capabilities[i] = cloneDescriptor(c)
	}
	return out
}

func cloneDescriptor(c CapabilityDescriptor) CapabilityDescriptor {
	out := c
	if c.Parameters != nil {
		out.Parameters = make(map[string]interface{}, len(c.Parameters))
		for k, v := range c.Parameters {
			out.Parameters[k] = v
		}
	}
	if c.ToolsRequired != nil {
		out.ToolsRequired = append([]string(nil), c.ToolsRequired...)
	}
	return out
}

// ListFilter narrows ListAgents. Empty fields match everything; set fields
// combine with AND.
type ListFilter struct {
	Type       string `json:"agent_type,omitempty"`
	Capability string `json:"capability,omitempty"`
	// Version is a SemVer constraint such as "^1.2.0" or "2".
	Version string `json:"version,omitempty"`
}

// HealthOutput holds the result of the health method.
type HealthOutput struct {
	Status    string       `json:"status"`
	Checks    HealthChecks `json:"checks"`
	Timestamp string       `json:"timestamp"`
}

// HealthChecks holds individual health check results.
type HealthChecks struct {
	Agents       int  `json:"agents"`
	Capabilities int  `json:"capabilities"`
	Stale        int  `json:"stale"`
	Index        bool `json:"index"`
	Sweeping     bool `json:"sweeping"`
}
