// Package server wires the coordinator: protocol endpoint, agent registry,
// orchestrator, dispatcher, optional COMMS and the admin HTTP routes.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/agent-coordinator/internal/config"
	"github.com/morezero/agent-coordinator/pkg/agent"
	"github.com/morezero/agent-coordinator/pkg/bootstrap"
	"github.com/morezero/agent-coordinator/pkg/commsutil"
	"github.com/morezero/agent-coordinator/pkg/dispatcher"
	"github.com/morezero/agent-coordinator/pkg/events"
	"github.com/morezero/agent-coordinator/pkg/orchestrator"
	"github.com/morezero/agent-coordinator/pkg/protocol"
	"github.com/morezero/agent-coordinator/pkg/registry"
)

const logPrefix = "server:server"

// EventAgentHeartbeat is the notification agents send to refresh liveness.
const EventAgentHeartbeat = "agent_heartbeat"

// Server is the running coordinator.
type Server struct {
	cfg          *config.Config
	nc           *comms.Conn
	commsSub     *comms.Subscription
	reg          *registry.Registry
	endpoint     *protocol.Endpoint
	local        *agent.Directory
	orchestrator *orchestrator.Orchestrator
	dispatcher   *dispatcher.Dispatcher

	mu           sync.Mutex
	heartbeaters []*registry.Heartbeater
}

// Run starts the server, blocks until shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	if err := cfg.ValidateForServe(); err != nil {
		return err
	}
	setupLogging(cfg.LogLevel)

	slog.Info(fmt.Sprintf("%s - Starting agent-coordinator", logPrefix))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := Start(ctx, cfg)
	if err != nil {
		return err
	}
	slog.Info(fmt.Sprintf("%s - Agent-coordinator is ready at %s", logPrefix, s.URL()))

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	return s.Shutdown(shutdownCtx)
}

func setupLogging(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

// Start builds every component and starts the endpoint, the registry sweep and,
// when configured, the COMMS subscription. Components started before a
// failure are stopped again.
func Start(ctx context.Context, cfg *config.Config) (*Server, error) {
	s := &Server{cfg: cfg, local: agent.NewDirectory()}

	// Step 1: optional COMMS connection
	publishers := events.MultiPublisher{events.NewCallbackPublisher(s.broadcastEvent)}
	if cfg.CommsEnabled() {
		nc, err := commsutil.Connect(commsutil.ConnectOptions{URL: cfg.COMMSURL, Name: cfg.COMMSName})
		if err != nil {
			return nil, fmt.Errorf("%s - failed to connect to COMMS: %w", logPrefix, err)
		}
		s.nc = nc
		publishers = append(publishers, events.NewCommsPublisher(nc, &events.CommsPublisherOpts{
			GlobalSubject:      cfg.AgentEventSubject,
			CapabilitySubjects: true,
		}))
	}

	// Step 2: registry
	reg, err := registry.NewRegistry(registry.NewRegistryParams{
		Publisher: publishers,
		Config: registry.Config{
			HeartbeatInterval: cfg.HeartbeatInterval,
			StaleAfter:        cfg.StaleAfter,
			SweepInterval:     cfg.SweepInterval,
		},
	})
	if err != nil {
		s.closeComms()
		return nil, fmt.Errorf("%s - failed to create registry: %w", logPrefix, err)
	}
	s.reg = reg

	// Step 2b: static agents from the manifest
	manifest, err := bootstrap.LoadManifest(cfg.AgentsFile)
	if err != nil {
		s.closeComms()
		return nil, fmt.Errorf("%s - failed to load agent manifest: %w", logPrefix, err)
	}
	if _, err := bootstrap.Seed(ctx, reg, manifest); err != nil {
		slog.Warn(fmt.Sprintf("%s - agent manifest seeded with errors: %v", logPrefix, err))
	}

	// Step 3: protocol endpoint resolving peers through the registry
	s.endpoint = protocol.NewEndpoint(protocol.Options{
		Name:           cfg.Name,
		Host:           cfg.Host,
		Port:           cfg.Port,
		Resolver:       reg,
		RequestTimeout: cfg.RequestTimeout,
	})

	// Step 4: orchestrator over local agents first, then registered remotes
	remotes := agent.NewRemoteFactory(reg, s.endpoint, cfg.AvailabilityMaxAge, cfg.RequestTimeout)
	s.orchestrator = orchestrator.NewOrchestrator(orchestrator.NewOrchestratorParams{
		Factory:          agent.Chain{s.local, remotes},
		Finder:           reg,
		PollInterval:     cfg.WorkflowPollInterval,
		ConsensusTimeout: cfg.ConsensusTimeout,
	})

	// Step 5: dispatcher, heartbeat notifications and admin routes
	s.dispatcher = dispatcher.NewDispatcher(dispatcher.NewDispatcherParams{
		Registry:           reg,
		Orchestrator:       s.orchestrator,
		AvailabilityMaxAge: cfg.AvailabilityMaxAge,
	})
	s.dispatcher.Bind(s.endpoint)
	s.endpoint.Subscribe(EventAgentHeartbeat, s.handleHeartbeat)
	s.mountAdmin()

	// Step 6: start
	reg.Start(ctx)
	if err := s.endpoint.Start(ctx); err != nil {
		reg.Stop()
		s.closeComms()
		return nil, fmt.Errorf("%s - failed to start endpoint: %w", logPrefix, err)
	}
	if s.nc != nil {
		sub, err := s.dispatcher.Subscribe(ctx, s.nc, cfg.CoordinatorSubject, cfg.RequestTimeout)
		if err != nil {
			_ = s.endpoint.Stop(context.WithoutCancel(ctx))
			reg.Stop()
			s.closeComms()
			return nil, err
		}
		s.commsSub = sub
	}
	return s, nil
}

// Shutdown stops accepting work and releases every component.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	hbs := s.heartbeaters
	s.heartbeaters = nil
	s.mu.Unlock()
	for _, hb := range hbs {
		hb.Unregister(ctx)
	}
	if s.commsSub != nil {
		if err := s.commsSub.Unsubscribe(); err != nil {
			slog.Warn(fmt.Sprintf("%s - unsubscribe: %v", logPrefix, err))
		}
	}
	err := s.endpoint.Stop(ctx)
	s.reg.Stop()
	s.closeComms()
	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return err
}

func (s *Server) closeComms() {
	if s.nc == nil {
		return
	}
	if err := s.nc.Drain(); err != nil {
		slog.Warn(fmt.Sprintf("%s - COMMS drain: %v", logPrefix, err))
		s.nc.Close()
	}
}

// URL returns the coordinator endpoint base URL.
func (s *Server) URL() string {
	return s.endpoint.URL()
}

// Registry returns the agent registry.
func (s *Server) Registry() *registry.Registry {
	return s.reg
}

// Orchestrator returns the workflow orchestrator.
func (s *Server) Orchestrator() *orchestrator.Orchestrator {
	return s.orchestrator
}

// RegisterLocal runs a in-process agent inside the coordinator. It is
// initialized, resolved ahead of remote agents and registered under the
// coordinator's own endpoint so capability lookups find it. The coordinator
// heartbeats it until Shutdown.
func (s *Server) RegisterLocal(ctx context.Context, a *agent.FuncAgent, info registry.AgentInfo) error {
	if info.Name == "" {
		info.Name = a.Name()
	}
	if err := a.Initialize(ctx); err != nil {
		return fmt.Errorf("%s - initialize %s: %w", logPrefix, info.Name, err)
	}
	s.local.Register(info.Name, a)

	host, port, err := splitHostPort(s.endpoint.Addr())
	if err != nil {
		return err
	}
	hb := registry.NewHeartbeater(s.reg, info.Name, 0)
	if err := hb.Register(ctx, info, registry.ServiceEndpoint{Host: host, Port: port, Protocol: s.cfg.Scheme}); err != nil {
		return err
	}
	s.mu.Lock()
	s.heartbeaters = append(s.heartbeaters, hb)
	s.mu.Unlock()
	return nil
}

// broadcastEvent forwards registry events to every other registered agent as
// endpoint notifications. Delivery runs in the background.
func (s *Server) broadcastEvent(ctx context.Context, event *events.AgentEvent) error {
	if s.endpoint == nil || !s.endpoint.Connected() {
		return nil
	}
	var recipients []string
	for _, rec := range s.reg.ListAgents(registry.ListFilter{}) {
		if rec.Name == event.AgentName {
			continue
		}
		if _, isLocal := s.local.Agent(rec.Name); isLocal {
			continue
		}
		recipients = append(recipients, rec.Name)
	}
	if len(recipients) == 0 {
		return nil
	}
	go func() {
		n := s.endpoint.BroadcastNotification(context.WithoutCancel(ctx), event.Event, event.Data(), recipients)
		slog.Debug(fmt.Sprintf("%s - %s delivered to %d/%d agents", logPrefix, event.Event, n, len(recipients)))
	}()
	return nil
}

func (s *Server) handleHeartbeat(_ context.Context, data map[string]interface{}) error {
	name, _ := data["agent_name"].(string)
	if name == "" {
		return errors.New("heartbeat notification has no agent_name")
	}
	if !s.reg.Heartbeat(name) {
		slog.Warn(fmt.Sprintf("%s - heartbeat from unregistered agent %s", logPrefix, name))
	}
	return nil
}

func splitHostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("%s - bad endpoint address %q: %w", logPrefix, addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("%s - bad endpoint port %q: %w", logPrefix, addr, err)
	}
	return host, port, nil
}
