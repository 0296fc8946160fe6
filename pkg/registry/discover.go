package registry

import (
	"sort"
	"time"

	"github.com/morezero/agent-coordinator/pkg/semver"
)

// ListAgents returns copies of the records matching every set filter field,
// ordered by name.
func (r *Registry) ListAgents(filter ListFilter) []AgentRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var candidates map[string]struct{}
	if filter.Capability != "" {
		candidates = r.index[filter.Capability]
		if len(candidates) == 0 {
			return []AgentRecord{}
		}
	}

	out := make([]AgentRecord, 0, len(r.agents))
	for name, rec := range r.agents {
		if candidates != nil {
			if _, ok := candidates[name]; !ok {
				continue
			}
		}
		if filter.Type != "" && rec.Type != filter.Type {
			continue
		}
		if filter.Version != "" && !semver.Satisfies(rec.Version, filter.Version) {
			continue
		}
		out = append(out, rec.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// FindByCapability returns the names of agents declaring the capability,
// sorted. The result is empty, never nil, when none do.
func (r *Registry) FindByCapability(capability string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.index[capability])
}

// Capabilities returns every capability currently declared by some agent.
func (r *Registry) Capabilities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.index))
	for name := range r.index {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Agent returns a copy of the named record.
func (r *Registry) Agent(name string) (AgentRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.agents[name]
	if !ok {
		return AgentRecord{}, false
	}
	return rec.clone(), true
}

// Endpoint returns the endpoint captured when the agent registered.
func (r *Registry) Endpoint(name string) (ServiceEndpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.agents[name]
	if !ok {
		return ServiceEndpoint{}, false
	}
	return rec.Endpoint, true
}

// ResolveEndpoint returns the base URL for the named agent.
func (r *Registry) ResolveEndpoint(name string) (string, bool) {
	ep, ok := r.Endpoint(name)
	if !ok {
		return "", false
	}
	return ep.URL(), true
}

// IsAvailable reports whether the agent exists and was seen within maxAge.
// An age exactly equal to maxAge is still available.
func (r *Registry) IsAvailable(name string, maxAge time.Duration) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.agents[name]
	if !ok {
		return false
	}
	return r.now().Sub(rec.LastSeen) <= maxAge
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
