package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const heartbeaterLogPrefix = "registry:heartbeater"

// Heartbeater keeps one agent's registration alive by heartbeating at a
// fixed interval until it is unregistered.
type Heartbeater struct {
	registry *Registry
	name     string
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHeartbeater creates a Heartbeater for the named agent. A non-positive
// interval uses the registry's HeartbeatInterval.
func NewHeartbeater(reg *Registry, name string, interval time.Duration) *Heartbeater {
	if interval <= 0 {
		interval = reg.config.HeartbeatInterval
	}
	return &Heartbeater{registry: reg, name: name, interval: interval}
}

// Register registers the agent and starts the heartbeat loop. The loop
// outlives ctx and runs until Unregister.
func (h *Heartbeater) Register(ctx context.Context, info AgentInfo, endpoint ServiceEndpoint) error {
	if info.Name != h.name {
		return fmt.Errorf("%s - heartbeater for %s cannot register %s", heartbeaterLogPrefix, h.name, info.Name)
	}
	if err := h.registry.RegisterAgent(ctx, info, endpoint); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		return nil
	}
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h.cancel = cancel
	h.done = make(chan struct{})
	go h.run(loopCtx, h.done)
	return nil
}

// Unregister stops the heartbeat loop and removes the agent. It returns false
// if the agent was no longer registered.
func (h *Heartbeater) Unregister(ctx context.Context) bool {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.cancel, h.done = nil, nil
	h.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
	return h.registry.UnregisterAgent(ctx, h.name)
}

func (h *Heartbeater) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !h.registry.Heartbeat(h.name) {
				slog.Warn(fmt.Sprintf("%s - heartbeat for %s ignored, agent is not registered", heartbeaterLogPrefix, h.name))
			}
		}
	}
}
