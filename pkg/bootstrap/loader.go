package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/morezero/agent-coordinator/pkg/registry"
)

const logPrefix = "bootstrap:loader"

// EnvAgentsFile names the manifest file when no explicit path is given.
const EnvAgentsFile = "COORDINATOR_AGENTS_FILE"

// DefaultPaths are tried after explicit paths and EnvAgentsFile.
var DefaultPaths = []string{"config/agents.json", "agents.json"}

// Registrar is the registry surface Seed needs.
type Registrar interface {
	RegisterAgent(ctx context.Context, info registry.AgentInfo, endpoint registry.ServiceEndpoint) error
}

// LoadManifest loads the agent manifest. It tries paths in order: first any
// paths passed in, then COORDINATOR_AGENTS_FILE, then DefaultPaths. Missing
// files are skipped; a file that exists but does not parse or validate is an
// error. With no file found it returns an empty manifest.
func LoadManifest(paths ...string) (*Manifest, error) {
	all := make([]string, 0, len(paths)+len(DefaultPaths)+1)
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	if envPath := os.Getenv(EnvAgentsFile); envPath != "" {
		all = append(all, envPath)
	}
	all = append(all, DefaultPaths...)

	for _, p := range all {
		data, err := os.ReadFile(p)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s - read %s: %w", logPrefix, p, err)
		}

		var m Manifest
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%s - parse %s: %w", logPrefix, p, err)
		}
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("%s - %s: %w", logPrefix, p, err)
		}

		slog.Info(fmt.Sprintf("%s - Loaded agent manifest %s from %s (%d agents)", logPrefix, m.Name, p, len(m.Agents)))
		return &m, nil
	}

	slog.Debug(fmt.Sprintf("%s - No agent manifest found", logPrefix))
	return &Manifest{}, nil
}

// Seed registers every manifest agent. Agents that fail registration are
// logged and skipped; the joined errors are returned along with the number
// of agents registered.
func Seed(ctx context.Context, reg Registrar, m *Manifest) (int, error) {
	var errs []error
	n := 0
	for _, a := range m.Agents {
		if err := reg.RegisterAgent(ctx, a.AgentInfo, a.Endpoint); err != nil {
			slog.Warn(fmt.Sprintf("%s - Failed to seed agent %s: %v", logPrefix, a.Name, err))
			errs = append(errs, fmt.Errorf("seed %s: %w", a.Name, err))
			continue
		}
		n++
	}
	if n > 0 {
		slog.Info(fmt.Sprintf("%s - Seeded %d/%d agents from manifest", logPrefix, n, len(m.Agents)))
	}
	return n, errors.Join(errs...)
}
