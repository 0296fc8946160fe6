package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/morezero/agent-coordinator/pkg/agent"
)

// sleepRecorder replaces the backoff sleep so retry tests run instantly.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

func newTestOrchestrator(t *testing.T, dir *agent.Directory) (*Orchestrator, *sleepRecorder) {
	t.Helper()
	o := NewOrchestrator(NewOrchestratorParams{Factory: dir, PollInterval: 5 * time.Millisecond, ConsensusTimeout: time.Second})
	rec := &sleepRecorder{}
	o.sleep = rec.sleep
	return o, rec
}

func runningAgent(t *testing.T, name string, caps []string, fn agent.TaskFunc) *agent.FuncAgent {
	t.Helper()
	a := agent.NewFuncAgent(name, caps, fn)
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("orchestrator:helpers_test - Initialize %s: %v", name, err)
	}
	return a
}

func voteAgent(t *testing.T, name, vote string) *agent.FuncAgent {
	return runningAgent(t, name, []string{agent.MethodConsensusVote}, func(_ context.Context, task agent.Task) (map[string]interface{}, error) {
		if task.Method != agent.MethodConsensusVote {
			t.Errorf("orchestrator:helpers_test - %s got method %q", name, task.Method)
		}
		return map[string]interface{}{"vote": vote, "confidence": 0.8}, nil
	})
}
