// Package config provides coordinator configuration loaded from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const logPrefix = "config:LoadConfig"

// Config holds agent-coordinator configuration.
type Config struct {
	// Protocol endpoint; admin routes share the same listener.
	Name   string `envconfig:"COORDINATOR_NAME" default:"coordinator"`
	Host   string `envconfig:"COORDINATOR_HOST" default:"0.0.0.0"`
	Port   int    `envconfig:"COORDINATOR_PORT" default:"8888"`
	Scheme string `envconfig:"COORDINATOR_SCHEME" default:"http"`

	// COMMS: optional NATS fan-out of agent events and request subject.
	// An empty COMMSURL disables COMMS.
	COMMSURL           string `envconfig:"COMMS_URL"`
	COMMSName          string `envconfig:"SERVICE_NAME" default:"agent-coordinator"`
	AgentEventSubject  string `envconfig:"AGENT_EVENT_SUBJECT"`
	CoordinatorSubject string `envconfig:"COORDINATOR_SUBJECT" default:"coordinator.requests"`

	// Timeouts
	RequestTimeout     time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	HealthCheckTimeout time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"5s"`
	ShutdownTimeout    time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	// Registry liveness
	HeartbeatInterval  time.Duration `envconfig:"HEARTBEAT_INTERVAL" default:"30s"`
	StaleAfter         time.Duration `envconfig:"STALE_AFTER" default:"300s"`
	SweepInterval      time.Duration `envconfig:"SWEEP_INTERVAL" default:"60s"`
	AvailabilityMaxAge time.Duration `envconfig:"AVAILABILITY_MAX_AGE" default:"120s"`

	// Static agents seeded into the registry at startup
	AgentsFile string `envconfig:"COORDINATOR_AGENTS_FILE"`

	// Orchestration
	WorkflowPollInterval time.Duration `envconfig:"WORKFLOW_POLL_INTERVAL" default:"100ms"`
	ConsensusTimeout     time.Duration `envconfig:"CONSENSUS_TIMEOUT" default:"10s"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ValidateForServe checks required config when running the coordinator server.
func (c *Config) ValidateForServe() error {
	if c.Name == "" {
		return fmt.Errorf("%s - COORDINATOR_NAME is required for serve", logPrefix)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%s - COORDINATOR_PORT %d is out of range", logPrefix, c.Port)
	}
	durations := []struct {
		name  string
		value time.Duration
	}{
		{"REQUEST_TIMEOUT", c.RequestTimeout},
		{"HEALTH_CHECK_TIMEOUT", c.HealthCheckTimeout},
		{"SHUTDOWN_TIMEOUT", c.ShutdownTimeout},
		{"HEARTBEAT_INTERVAL", c.HeartbeatInterval},
		{"STALE_AFTER", c.StaleAfter},
		{"SWEEP_INTERVAL", c.SweepInterval},
		{"AVAILABILITY_MAX_AGE", c.AvailabilityMaxAge},
		{"WORKFLOW_POLL_INTERVAL", c.WorkflowPollInterval},
		{"CONSENSUS_TIMEOUT", c.ConsensusTimeout},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("%s - %s must be positive", logPrefix, d.name)
		}
	}
	if c.StaleAfter <= c.HeartbeatInterval {
		return fmt.Errorf("%s - STALE_AFTER (%s) must exceed HEARTBEAT_INTERVAL (%s)", logPrefix, c.StaleAfter, c.HeartbeatInterval)
	}
	return nil
}

// CommsEnabled reports whether a COMMS URL is configured.
func (c *Config) CommsEnabled() bool {
	return c.COMMSURL != ""
}
