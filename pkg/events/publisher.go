package events

import (
	"context"
	"errors"
)

// EventPublisher is the interface for publishing agent lifecycle events.
type EventPublisher interface {
	PublishAgentEvent(ctx context.Context, event *AgentEvent) error
}

// NoOpPublisher is an EventPublisher that does nothing (for in-process usage without events).
type NoOpPublisher struct{}

// PublishAgentEvent is a no-op.
func (p *NoOpPublisher) PublishAgentEvent(_ context.Context, _ *AgentEvent) error {
	return nil
}

// CallbackPublisher is an EventPublisher that calls a callback function.
type CallbackPublisher struct {
	callback func(ctx context.Context, event *AgentEvent) error
}

// NewCallbackPublisher creates a new CallbackPublisher.
func NewCallbackPublisher(cb func(ctx context.Context, event *AgentEvent) error) *CallbackPublisher {
	return &CallbackPublisher{callback: cb}
}

// PublishAgentEvent calls the callback.
func (p *CallbackPublisher) PublishAgentEvent(ctx context.Context, event *AgentEvent) error {
	return p.callback(ctx, event)
}

// MultiPublisher fans an event out to several publishers. Every publisher is
// called even if an earlier one fails; the failures are joined.
type MultiPublisher []EventPublisher

// PublishAgentEvent publishes to every publisher in order.
func (m MultiPublisher) PublishAgentEvent(ctx context.Context, event *AgentEvent) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.PublishAgentEvent(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
