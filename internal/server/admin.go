package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/morezero/agent-coordinator/pkg/commsutil"
	"github.com/morezero/agent-coordinator/pkg/registry"
	"github.com/morezero/agent-coordinator/pkg/semver"
)

const adminLogPrefix = "server:admin"

// registryForAdmin is the registry surface the admin routes read.
type registryForAdmin interface {
	Health(ctx context.Context) *registry.HealthOutput
	ListAgents(filter registry.ListFilter) []registry.AgentRecord
	Agent(name string) (registry.AgentRecord, bool)
	Capabilities() []string
	FindByCapability(capability string) []string
}

// admin serves the read-only HTTP views next to the protocol routes.
type admin struct {
	reg  registryForAdmin
	name string
	// commsReady is nil when COMMS is not configured.
	commsReady func() bool
}

func (s *Server) mountAdmin() {
	a := newAdmin(s.reg, s.cfg.Name)
	if s.nc != nil {
		nc := s.nc
		a.commsReady = func() bool { return commsutil.Healthy(nc) }
	}
	r := chi.NewRouter()
	a.routes(r)
	s.endpoint.Mount("/", r)
	s.endpoint.Mount("/*", r)
}

func newAdmin(reg registryForAdmin, name string) *admin {
	return &admin{reg: reg, name: name}
}

func (a *admin) routes(r chi.Router) {
	r.Get("/", a.handleHome())
	r.Get("/agents", a.handleAgents)
	r.Get("/agents/{name}", a.handleAgent)
	r.Get("/capabilities", a.handleCapabilities)
	r.Get("/health", a.handleHealth)
	r.Get("/ready", a.handleReady)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error(fmt.Sprintf("%s - json encode: %v", adminLogPrefix, err))
	}
}

func (a *admin) handleAgents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := registry.ListFilter{
		Type:       q.Get("type"),
		Capability: q.Get("capability"),
		Version:    q.Get("version"),
	}
	if filter.Version != "" {
		if err := semver.ValidateConstraint(filter.Version); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
	}
	agents := a.reg.ListAgents(filter)
	writeJSON(w, http.StatusOK, map[string]interface{}{"agents": agents, "total": len(agents)})
}

func (a *admin) handleAgent(w http.ResponseWriter, r *http.Request) {
	rec, ok := a.reg.Agent(chi.URLParam(r, "name"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "agent not found"})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *admin) handleCapabilities(w http.ResponseWriter, _ *http.Request) {
	out := make(map[string][]string)
	for _, c := range a.reg.Capabilities() {
		out[c] = a.reg.FindByCapability(c)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"capabilities": out})
}

func (a *admin) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := a.reg.Health(r.Context())
	status := http.StatusOK
	if h.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}

func (a *admin) handleReady(w http.ResponseWriter, _ *http.Request) {
	if a.commsReady != nil && !a.commsReady() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready", "comms": "disconnected"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// homePageTemplate is the HTML for the coordinator home page.
const homePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Name}} · Agent Coordinator</title>
  <style>
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    a { color: #0066cc; }
    h1, h2 { color: #0066cc; }
    .status-healthy { color: #0066cc; font-weight: bold; }
    .status-unhealthy { color: #cc0000; font-weight: bold; }
    table { border-collapse: collapse; width: 100%; max-width: 900px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; }
    th { background: #f0f4f8; color: #0066cc; }
    .stat { font-weight: bold; color: #0066cc; }
    section { margin-bottom: 2rem; }
  </style>
</head>
<body>
  <h1>{{.Name}}</h1>

  <section>
    <h2>Health</h2>
    <p>Status: <span class="status-{{.Health.Status}}">{{.Health.Status}}</span></p>
    <p>Agents: <span class="stat">{{.Health.Checks.Agents}}</span>, capabilities: <span class="stat">{{.Health.Checks.Capabilities}}</span>, stale: <span class="stat">{{.Health.Checks.Stale}}</span></p>
    <p>Timestamp: {{.Health.Timestamp}}</p>
  </section>

  <section>
    <h2>Agents</h2>
    {{if not .Agents}}
    <p>No agents registered.</p>
    {{else}}
    <table>
      <thead>
        <tr><th>Agent</th><th>Type</th><th>Version</th><th>Status</th><th>Capabilities</th><th>Endpoint</th><th>Last seen</th></tr>
      </thead>
      <tbody>
        {{range .Agents}}
        <tr>
          <td><a href="/agents/{{.Name}}">{{.Name}}</a></td>
          <td>{{.Type}}</td>
          <td>{{.Version}}</td>
          <td>{{.Status}}</td>
          <td>{{range .Capabilities}}{{.Name}} {{end}}</td>
          <td>{{.Endpoint.URL}}</td>
          <td>{{.LastSeen.Format "2006-01-02T15:04:05Z07:00"}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
  </section>
</body>
</html>
`

// homeData is the data passed to the home page template.
type homeData struct {
	Name   string
	Health *registry.HealthOutput
	Agents []registry.AgentRecord
}

// handleHome returns an HTTP handler for the coordinator home page.
func (a *admin) handleHome() http.HandlerFunc {
	tmpl := template.Must(template.New("home").Parse(homePageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		data := homeData{
			Name:   a.name,
			Health: a.reg.Health(r.Context()),
			Agents: a.reg.ListAgents(registry.ListFilter{}),
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			slog.Error(fmt.Sprintf("%s - home template execute: %v", adminLogPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}
