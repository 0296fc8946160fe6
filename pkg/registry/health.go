package registry

import (
	"context"
	"time"
)

// Health reports registry size and whether the capability index is consistent.
func (r *Registry) Health(_ context.Context) *HealthOutput {
	r.mu.RLock()
	agents := len(r.agents)
	capabilities := len(r.index)
	cutoff := r.now().Add(-r.config.StaleAfter)
	stale := 0
	for _, rec := range r.agents {
		if rec.LastSeen.Before(cutoff) {
			stale++
		}
	}
	indexOk := r.verifyLocked() == nil
	r.mu.RUnlock()

	status := "healthy"
	if !indexOk {
		status = "unhealthy"
	}

	return &HealthOutput{
		Status: status,
		Checks: HealthChecks{
			Agents:       agents,
			Capabilities: capabilities,
			Stale:        stale,
			Index:        indexOk,
			Sweeping:     r.Sweeping(),
		},
		Timestamp: r.now().UTC().Format(time.RFC3339),
	}
}
