package registry

import (
	"fmt"

	"github.com/morezero/agent-coordinator/pkg/fault"
)

// Verify checks that the capability index is exactly the union of the
// records' capability lists with no empty buckets. A non-nil result is a
// RegistryInvariant error and indicates a bug.
func (r *Registry) Verify() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.verifyLocked()
}

func (r *Registry) verifyLocked() error {
	for capability, bucket := range r.index {
		if len(bucket) == 0 {
			return invariantError("capability %q has an empty bucket", capability)
		}
		for name := range bucket {
			rec, ok := r.agents[name]
			if !ok {
				return invariantError("capability %q references unknown agent %q", capability, name)
			}
			if !rec.HasCapability(capability) {
				return invariantError("capability %q lists agent %q which does not declare it", capability, name)
			}
		}
	}
	for name, rec := range r.agents {
		for _, c := range rec.Capabilities {
			if _, ok := r.index[c.Name][name]; !ok {
				return invariantError("agent %q declares %q but is missing from its bucket", name, c.Name)
			}
		}
	}
	return nil
}

// strictCheckLocked returns the divergence found after a mutation when
// StrictInvariants is set. Callers panic with it once the lock is released.
func (r *Registry) strictCheckLocked() error {
	if !r.config.StrictInvariants {
		return nil
	}
	return r.verifyLocked()
}

func invariantError(format string, args ...interface{}) error {
	return &fault.Error{Code: fault.CodeRegistryInvariant, Message: fmt.Sprintf(format, args...)}
}
