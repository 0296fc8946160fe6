package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

var allEnvVars = []string{
	"COORDINATOR_NAME", "COORDINATOR_HOST", "COORDINATOR_PORT", "COORDINATOR_SCHEME",
	"COMMS_URL", "SERVICE_NAME", "AGENT_EVENT_SUBJECT", "COORDINATOR_SUBJECT",
	"REQUEST_TIMEOUT", "HEALTH_CHECK_TIMEOUT", "SHUTDOWN_TIMEOUT",
	"HEARTBEAT_INTERVAL", "STALE_AFTER", "SWEEP_INTERVAL", "AVAILABILITY_MAX_AGE",
	"WORKFLOW_POLL_INTERVAL", "CONSENSUS_TIMEOUT", "LOG_LEVEL", "COORDINATOR_AGENTS_FILE",
}

// clearEnv unsets every variable for the duration of the test. t.Setenv
// registers the restore before the variable is removed.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range allEnvVars {
		t.Setenv(env, "")
		os.Unsetenv(env)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("config:config_test - unexpected error: %v", err)
	}

	if cfg.Name != "coordinator" || cfg.Host != "0.0.0.0" || cfg.Port != 8888 || cfg.Scheme != "http" {
		t.Errorf("config:config_test - endpoint defaults = %q %q %d %q", cfg.Name, cfg.Host, cfg.Port, cfg.Scheme)
	}
	if cfg.COMMSURL != "" || cfg.CommsEnabled() {
		t.Errorf("config:config_test - COMMS should be disabled by default, got %q", cfg.COMMSURL)
	}
	if cfg.COMMSName != "agent-coordinator" {
		t.Errorf("config:config_test - COMMSName = %q, want agent-coordinator", cfg.COMMSName)
	}
	if cfg.CoordinatorSubject != "coordinator.requests" {
		t.Errorf("config:config_test - CoordinatorSubject = %q", cfg.CoordinatorSubject)
	}

	durations := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"RequestTimeout", cfg.RequestTimeout, 30 * time.Second},
		{"HealthCheckTimeout", cfg.HealthCheckTimeout, 5 * time.Second},
		{"ShutdownTimeout", cfg.ShutdownTimeout, 10 * time.Second},
		{"HeartbeatInterval", cfg.HeartbeatInterval, 30 * time.Second},
		{"StaleAfter", cfg.StaleAfter, 300 * time.Second},
		{"SweepInterval", cfg.SweepInterval, 60 * time.Second},
		{"AvailabilityMaxAge", cfg.AvailabilityMaxAge, 120 * time.Second},
		{"WorkflowPollInterval", cfg.WorkflowPollInterval, 100 * time.Millisecond},
		{"ConsensusTimeout", cfg.ConsensusTimeout, 10 * time.Second},
	}
	for _, d := range durations {
		if d.got != d.want {
			t.Errorf("config:config_test - %s = %v, want %v", d.name, d.got, d.want)
		}
	}
	if cfg.LogLevel != "info" {
		t.Errorf("config:config_test - LogLevel = %q, want info", cfg.LogLevel)
	}
	if err := cfg.ValidateForServe(); err != nil {
		t.Errorf("config:config_test - defaults should validate: %v", err)
	}
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	overrides := map[string]string{
		"COORDINATOR_NAME":        "hub",
		"COORDINATOR_PORT":        "9100",
		"COMMS_URL":               "nats://custom:4222",
		"AGENT_EVENT_SUBJECT":     "custom.agents",
		"REQUEST_TIMEOUT":         "5s",
		"STALE_AFTER":             "90s",
		"WORKFLOW_POLL_INTERVAL":  "250ms",
		"LOG_LEVEL":               "debug",
		"COORDINATOR_AGENTS_FILE": "/etc/coordinator/agents.json",
	}
	for k, v := range overrides {
		t.Setenv(k, v)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("config:config_test - unexpected error: %v", err)
	}
	if cfg.Name != "hub" || cfg.Port != 9100 {
		t.Errorf("config:config_test - endpoint = %q:%d", cfg.Name, cfg.Port)
	}
	if !cfg.CommsEnabled() || cfg.AgentEventSubject != "custom.agents" {
		t.Errorf("config:config_test - COMMS overrides not applied: %+v", cfg)
	}
	if cfg.RequestTimeout != 5*time.Second || cfg.StaleAfter != 90*time.Second || cfg.WorkflowPollInterval != 250*time.Millisecond {
		t.Errorf("config:config_test - duration overrides not applied: %+v", cfg)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("config:config_test - LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.AgentsFile != "/etc/coordinator/agents.json" {
		t.Errorf("config:config_test - AgentsFile = %q", cfg.AgentsFile)
	}
}

func TestLoadConfig_InvalidDuration(t *testing.T) {
	clearEnv(t)
	t.Setenv("REQUEST_TIMEOUT", "soon")

	if _, err := LoadConfig(); err == nil {
		t.Error("config:config_test - expected error for invalid duration")
	}
}

func TestValidateForServe(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Name:                 "coordinator",
			Port:                 8888,
			RequestTimeout:       30 * time.Second,
			HealthCheckTimeout:   5 * time.Second,
			ShutdownTimeout:      10 * time.Second,
			HeartbeatInterval:    30 * time.Second,
			StaleAfter:           300 * time.Second,
			SweepInterval:        time.Minute,
			AvailabilityMaxAge:   2 * time.Minute,
			WorkflowPollInterval: 100 * time.Millisecond,
			ConsensusTimeout:     10 * time.Second,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing name", func(c *Config) { c.Name = "" }, "COORDINATOR_NAME"},
		{"bad port", func(c *Config) { c.Port = 70000 }, "COORDINATOR_PORT"},
		{"zero request timeout", func(c *Config) { c.RequestTimeout = 0 }, "REQUEST_TIMEOUT"},
		{"negative sweep", func(c *Config) { c.SweepInterval = -time.Second }, "SWEEP_INTERVAL"},
		{"stale not after heartbeat", func(c *Config) { c.StaleAfter = c.HeartbeatInterval }, "STALE_AFTER"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.ValidateForServe()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("config:config_test - unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("config:config_test - error %v does not mention %s", err, tt.wantErr)
			}
		})
	}
}
