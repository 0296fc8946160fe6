package registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/morezero/agent-coordinator/pkg/events"
)

const sweepLogPrefix = "registry:sweep"

// Start launches the periodic stale-eviction sweep. Calling Start while the
// sweep is already running is a no-op.
func (r *Registry) Start(ctx context.Context) {
	r.sweepMu.Lock()
	defer r.sweepMu.Unlock()
	if r.sweepStop != nil {
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	r.sweepStop, r.sweepDone = stop, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(r.config.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				r.Sweep(ctx)
			}
		}
	}()
	slog.Info(fmt.Sprintf("%s - Sweep started (interval=%s staleAfter=%s)", sweepLogPrefix, r.config.SweepInterval, r.config.StaleAfter))
}

// Stop halts the sweep and waits for it to exit. Stop is idempotent.
func (r *Registry) Stop() {
	r.sweepMu.Lock()
	stop, done := r.sweepStop, r.sweepDone
	r.sweepStop, r.sweepDone = nil, nil
	r.sweepMu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
	slog.Info(fmt.Sprintf("%s - Sweep stopped", sweepLogPrefix))
}

// Sweeping reports whether the periodic sweep is running.
func (r *Registry) Sweeping() bool {
	r.sweepMu.Lock()
	defer r.sweepMu.Unlock()
	return r.sweepStop != nil
}

// Sweep evicts every record older than StaleAfter through the unregister path
// and returns the evicted names. Age is checked again at eviction, so an agent
// that heartbeats while the sweep runs is kept.
func (r *Registry) Sweep(ctx context.Context) []string {
	cutoff := r.now().Add(-r.config.StaleAfter)
	stale := r.staleAgents(cutoff)
	evicted := make([]string, 0, len(stale))
	for _, name := range stale {
		if r.unregister(ctx, name, events.ReasonStale, cutoff) {
			slog.Warn(fmt.Sprintf("%s - Removed stale agent: %s", sweepLogPrefix, name))
			evicted = append(evicted, name)
		}
	}
	return evicted
}

func (r *Registry) staleAgents(cutoff time.Time) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := make(map[string]struct{})
	for name, rec := range r.agents {
		if rec.LastSeen.Before(cutoff) {
			set[name] = struct{}{}
		}
	}
	return sortedKeys(set)
}
