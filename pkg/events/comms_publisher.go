package events

import (
	"context"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/agent-coordinator/pkg/commsutil"
)

const commsPublisherLogPrefix = "events:comms_publisher"

// CommsPublisherOpts configures CommsPublisher. Nil or zero values use defaults.
type CommsPublisherOpts struct {
	// GlobalSubject overrides the global agent event subject (AGENT_EVENT_SUBJECT).
	GlobalSubject string
	// CapabilitySubjects also publishes registrations to capabilities.<name>.
	CapabilitySubjects bool
}

// CommsPublisher publishes agent lifecycle events to COMMS subjects.
type CommsPublisher struct {
	nc                 *comms.Conn
	globalSubject      string
	capabilitySubjects bool
}

// NewCommsPublisher creates a new CommsPublisher. Pass nil for opts to use defaults.
func NewCommsPublisher(nc *comms.Conn, opts *CommsPublisherOpts) *CommsPublisher {
	p := &CommsPublisher{nc: nc, globalSubject: commsutil.SubjectAgentChanged}
	if opts != nil {
		if opts.GlobalSubject != "" {
			p.globalSubject = opts.GlobalSubject
		}
		p.capabilitySubjects = opts.CapabilitySubjects
	}
	return p
}

// PublishAgentEvent publishes the event to its granular subject
// (agents.<event>.<agent>) and to the global subject.
func (p *CommsPublisher) PublishAgentEvent(_ context.Context, event *AgentEvent) error {
	data, err := commsutil.EncodePayload(event)
	if err != nil {
		return fmt.Errorf("%s - failed to encode event: %w", commsPublisherLogPrefix, err)
	}

	subjects := []string{commsutil.BuildAgentEventSubject(event.Event, event.AgentName), p.globalSubject}
	if p.capabilitySubjects && event.Event == AgentRegistered {
		for _, c := range event.Capabilities {
			subjects = append(subjects, commsutil.BuildCapabilitySubject(c))
		}
	}

	for _, subject := range subjects {
		if err := p.nc.Publish(subject, data); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, subject, err))
			return fmt.Errorf("%s - publish %s: %w", commsPublisherLogPrefix, subject, err)
		}
	}

	slog.Debug(fmt.Sprintf("%s - Published %s for %s", commsPublisherLogPrefix, event.Event, event.AgentName))
	return nil
}
