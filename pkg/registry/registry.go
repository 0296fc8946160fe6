package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/morezero/agent-coordinator/pkg/events"
)

const (
	defaultHeartbeatInterval = 30 * time.Second
	defaultStaleAfter        = 300 * time.Second
	defaultSweepInterval     = 60 * time.Second
)

// Config holds registry configuration.
type Config struct {
	// HeartbeatInterval is how often agents are expected to heartbeat.
	HeartbeatInterval time.Duration
	// StaleAfter is the age past which the sweep evicts a record. Must exceed
	// HeartbeatInterval.
	StaleAfter time.Duration
	// SweepInterval is the period of the stale-eviction sweep.
	SweepInterval time.Duration
	// StrictInvariants panics when a mutation leaves the capability index and
	// the records out of step.
	StrictInvariants bool
}

// DefaultConfig returns the default registry configuration.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: defaultHeartbeatInterval,
		StaleAfter:        defaultStaleAfter,
		SweepInterval:     defaultSweepInterval,
	}
}

// Validate checks the timing relationships the sweep depends on.
func (c Config) Validate() error {
	if c.HeartbeatInterval <= 0 || c.StaleAfter <= 0 || c.SweepInterval <= 0 {
		return fmt.Errorf("registry:registry - heartbeat, stale and sweep intervals must be positive")
	}
	if c.StaleAfter <= c.HeartbeatInterval {
		return fmt.Errorf("registry:registry - stale threshold %s must exceed heartbeat interval %s", c.StaleAfter, c.HeartbeatInterval)
	}
	return nil
}

// Registry is the in-memory agent directory. It exclusively owns the agent
// records and the capability index derived from them.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*AgentRecord
	// index maps capability name to the set of agent names declaring it.
	index map[string]map[string]struct{}

	publisher events.EventPublisher
	config    Config
	now       func() time.Time

	sweepMu   sync.Mutex
	sweepStop chan struct{}
	sweepDone chan struct{}
}

// NewRegistryParams holds parameters for NewRegistry.
type NewRegistryParams struct {
	Publisher events.EventPublisher
	Config    Config
	// Now overrides the clock; nil uses time.Now.
	Now func() time.Time
}

// NewRegistry creates a new Registry instance. Zero config fields take their
// defaults; an inconsistent config is rejected.
func NewRegistry(params NewRegistryParams) (*Registry, error) {
	cfg := params.Config
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	if cfg.StaleAfter == 0 {
		cfg.StaleAfter = defaultStaleAfter
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	pub := params.Publisher
	if pub == nil {
		pub = &events.NoOpPublisher{}
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}

	return &Registry{
		agents:    make(map[string]*AgentRecord),
		index:     make(map[string]map[string]struct{}),
		publisher: pub,
		config:    cfg,
		now:       now,
	}, nil
}

// Config returns the effective registry configuration.
func (r *Registry) Config() Config {
	return r.config
}
