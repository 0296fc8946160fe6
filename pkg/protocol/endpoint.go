// Package protocol implements the per-agent message endpoint: an HTTP listener
// accepting envelopes on /mcp/message, an outbound client, a pending-request
// table correlating responses with requests, method handlers and notification
// subscribers.
package protocol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/morezero/agent-coordinator/pkg/fault"
	"github.com/morezero/agent-coordinator/pkg/message"
)

const logPrefix = "protocol:endpoint"

// Paths served by every endpoint.
const (
	MessagePath = "/mcp/message"
	HealthPath  = "/mcp/health"
)

// State is the endpoint lifecycle state.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateConnected:
		return "connected"
	default:
		return "stopped"
	}
}

// Resolver maps an agent name to the base URL of its endpoint.
type Resolver interface {
	ResolveEndpoint(agentName string) (string, bool)
}

// StaticResolver is a fixed name to base URL table.
type StaticResolver map[string]string

// ResolveEndpoint implements Resolver.
func (s StaticResolver) ResolveEndpoint(agentName string) (string, bool) {
	url, ok := s[agentName]
	return url, ok
}

// Options configures an Endpoint.
type Options struct {
	// Name is the agent name used as the sender of outbound envelopes.
	Name string
	Host string
	// Port 0 binds an ephemeral port; see Addr.
	Port     int
	Resolver Resolver
	// RequestTimeout bounds handler execution and outbound HTTP calls.
	RequestTimeout time.Duration
	// Transport overrides the outbound round tripper before tracing is added.
	Transport http.RoundTripper
}

// Endpoint is one agent's protocol endpoint.
type Endpoint struct {
	opts   Options
	router chi.Router

	stateMu    sync.Mutex
	state      State
	addr       string
	client     *http.Client
	httpServer *http.Server
	baseCtx    context.Context
	cancelBase context.CancelFunc

	handlersMu  sync.RWMutex
	handlers    map[string]HandlerFunc
	subscribers map[string][]SubscriberFunc

	pending *pendingTable
}

// NewEndpoint creates a stopped endpoint. Routes may be mounted before Start.
func NewEndpoint(opts Options) *Endpoint {
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = message.DefaultRequestTimeout
	}
	e := &Endpoint{
		opts:        opts,
		handlers:    make(map[string]HandlerFunc),
		subscribers: make(map[string][]SubscriberFunc),
		pending:     newPendingTable(),
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Post(MessagePath, e.handleMessage)
	r.Get(HealthPath, e.handleHealth)
	e.router = r
	return e
}

// Name returns the agent name of this endpoint.
func (e *Endpoint) Name() string {
	return e.opts.Name
}

// Mount adds a route to the inbound listener.
func (e *Endpoint) Mount(pattern string, h http.Handler) {
	e.router.Handle(pattern, h)
}

// Handler returns the inbound HTTP handler, for tests and embedding.
func (e *Endpoint) Handler() http.Handler {
	return e.router
}

// State returns the current lifecycle state.
func (e *Endpoint) State() State {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.state
}

// Connected reports whether the endpoint can send and receive.
func (e *Endpoint) Connected() bool {
	return e.State() == StateConnected
}

// Addr returns the bound listener address, or "" when stopped.
func (e *Endpoint) Addr() string {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.addr
}

// URL returns the base URL of the bound listener, or "" when stopped.
func (e *Endpoint) URL() string {
	if addr := e.Addr(); addr != "" {
		return "http://" + addr
	}
	return ""
}

// Start opens the outbound client and binds the inbound listener. Start is a
// no-op once connected.
func (e *Endpoint) Start(ctx context.Context) error {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	if e.state == StateConnected {
		return nil
	}
	e.state = StateStarting

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(e.opts.Host, strconv.Itoa(e.opts.Port)))
	if err != nil {
		e.state = StateStopped
		return fault.Wrap(fault.CodeTransport, err, "listen on %s:%d", e.opts.Host, e.opts.Port)
	}

	base := e.opts.Transport
	if base == nil {
		base = http.DefaultTransport.(*http.Transport).Clone()
	}
	e.client = &http.Client{
		Transport: otelhttp.NewTransport(base),
		Timeout:   e.opts.RequestTimeout,
	}
	e.baseCtx, e.cancelBase = context.WithCancel(context.WithoutCancel(ctx))
	e.httpServer = &http.Server{
		Handler:           otelhttp.NewHandler(e.router, "agent-endpoint."+e.opts.Name),
		ReadHeaderTimeout: 10 * time.Second,
	}
	e.addr = ln.Addr().String()

	srv := e.httpServer
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error(fmt.Sprintf("%s - listener for %s failed: %v", logPrefix, e.opts.Name, err))
		}
	}()

	e.state = StateConnected
	slog.Info(fmt.Sprintf("%s - Endpoint %s listening on %s", logPrefix, e.opts.Name, e.addr))
	return nil
}

// Stop closes the outbound client and shuts the listener down. Pending
// requests are left to expire by their own timeouts. Stop is a no-op once
// stopped. The endpoint reports stopped before in-flight handlers drain, and
// stateMu is not held while they do.
func (e *Endpoint) Stop(ctx context.Context) error {
	e.stateMu.Lock()
	if e.state == StateStopped {
		e.stateMu.Unlock()
		return nil
	}
	srv, client, cancel := e.httpServer, e.client, e.cancelBase
	e.httpServer, e.client, e.cancelBase, e.addr = nil, nil, nil, ""
	e.state = StateStopped
	e.stateMu.Unlock()

	var err error
	if srv != nil {
		if shutdownErr := srv.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("%s - shutdown %s: %w", logPrefix, e.opts.Name, shutdownErr)
		}
	}
	if client != nil {
		client.CloseIdleConnections()
	}
	if cancel != nil {
		cancel()
	}
	slog.Info(fmt.Sprintf("%s - Endpoint %s stopped (%d pending)", logPrefix, e.opts.Name, e.pending.len()))
	return err
}

// session returns the client and handler context when connected.
func (e *Endpoint) session() (*http.Client, context.Context, bool) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	if e.state != StateConnected {
		return nil, nil, false
	}
	return e.client, e.baseCtx, true
}
