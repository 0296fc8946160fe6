// Package main is the entrypoint for the agent coordinator (binary name "coordinator" in Docker).
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"

	"github.com/morezero/agent-coordinator/internal/config"
	"github.com/morezero/agent-coordinator/internal/server"
	"github.com/morezero/agent-coordinator/pkg/bootstrap"
)

const usage = `Usage: coordinator [command]
       coordinator serve            Start the coordinator (protocol endpoint, registry, orchestrator, COMMS).
       coordinator config           Print the effective configuration as JSON and validate it.
       coordinator health [url]     Check GET <url>/health of a running coordinator (default http://127.0.0.1:COORDINATOR_PORT).
       coordinator agents [file]    Validate the static agent manifest and print it (default COORDINATOR_AGENTS_FILE).

Commands:
  serve           (default) Start the agent coordinator.
  config          Print configuration loaded from the environment.
  health [url]    Exit non-zero unless the coordinator reports healthy.
  agents [file]   Load the agent manifest seeded at startup.

Environment: COORDINATOR_NAME, COORDINATOR_HOST, COORDINATOR_PORT, COMMS_URL (optional),
COORDINATOR_AGENTS_FILE (optional), HEARTBEAT_INTERVAL, STALE_AFTER, SWEEP_INTERVAL,
REQUEST_TIMEOUT, LOG_LEVEL.
`

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "config":
		if err := runConfig(os.Stdout); err != nil {
			log.Fatalf("coordinator config: %v", err)
		}
		return
	case "health":
		target := ""
		if len(args) > 1 {
			target = args[1]
		}
		if err := runHealth(os.Stdout, target); err != nil {
			log.Fatalf("coordinator health: %v", err)
		}
		return
	case "agents":
		path := ""
		if len(args) > 1 {
			path = args[1]
		}
		if err := runAgents(os.Stdout, path); err != nil {
			log.Fatalf("coordinator agents: %v", err)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
		// serve (explicit or default)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	if err := server.Run(); err != nil {
		log.Fatalf("coordinator: %v", err)
	}
}

func runConfig(w io.Writer) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return cfg.ValidateForServe()
}

func runHealth(w io.Writer, target string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if target == "" {
		target = fmt.Sprintf("http://127.0.0.1:%d", cfg.Port)
	}
	client := &http.Client{Timeout: cfg.HealthCheckTimeout}
	resp, err := client.Get(target + "/health")
	if err != nil {
		return fmt.Errorf("check %s: %w", target, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read health response: %w", err)
	}
	fmt.Fprintln(w, string(body))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("coordinator at %s is unhealthy (status %d)", target, resp.StatusCode)
	}
	return nil
}

func runAgents(w io.Writer, path string) error {
	m, err := bootstrap.LoadManifest(path)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}
