package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/morezero/agent-coordinator/pkg/agent"
	"github.com/morezero/agent-coordinator/pkg/fault"
)

const consensusLogPrefix = "orchestrator:consensus"

// Rule selects how votes are tallied.
type Rule string

const (
	RuleMajority  Rule = "majority"
	RuleUnanimous Rule = "unanimous"
	RuleWeighted  Rule = "weighted"
)

// ConsensusRequest asks participants to vote on a question.
type ConsensusRequest struct {
	Question     string
	Participants []string
	Rule         Rule
	// Timeout bounds the whole collection. Zero uses the orchestrator default.
	Timeout time.Duration
	// Weights applies to RuleWeighted. Missing participants weigh 1.0.
	Weights map[string]float64
	// Params are sent alongside the question.
	Params map[string]interface{}
}

// Validate checks the request.
func (r ConsensusRequest) Validate() error {
	if r.Question == "" {
		return fault.Validation("consensus question is required")
	}
	if len(r.Participants) == 0 {
		return fault.Validation("consensus requires at least one participant")
	}
	switch r.Rule {
	case RuleMajority, RuleUnanimous, RuleWeighted:
	default:
		return fault.Validation("unknown consensus rule %q", r.Rule)
	}
	if r.Timeout < 0 {
		return fault.Validation("consensus timeout must not be negative")
	}
	for name, w := range r.Weights {
		if w < 0 {
			return fault.Validation("weight for %q must not be negative", name)
		}
	}
	return nil
}

// ConsensusResult is the outcome of one round.
type ConsensusResult struct {
	Consensus    bool              `json:"consensus"`
	Result       *string           `json:"result"`
	Rule         Rule              `json:"rule"`
	Votes        map[string]string `json:"votes"`
	Responded    int               `json:"responded"`
	Participants int               `json:"participants"`
}

// ResolveConsensus collects votes from every participant concurrently under
// one deadline and tallies them by the request rule. Participants that fail,
// time out or return no vote are left out of the tally. The error is non-nil
// only for an invalid request.
func (o *Orchestrator) ResolveConsensus(ctx context.Context, req ConsensusRequest) (ConsensusResult, error) {
	if err := req.Validate(); err != nil {
		return ConsensusResult{}, err
	}
	participants := dedupe(req.Participants)
	timeout := req.Timeout
	if timeout == 0 {
		timeout = o.consensusTimeout
	}

	ctx, span := o.tracer.Start(ctx, "orchestrator.consensus", trace.WithAttributes(
		attribute.String("consensus.rule", string(req.Rule)),
		attribute.Int("consensus.participants", len(participants)),
	))
	defer span.End()

	votes := o.collectVotes(ctx, req, participants, timeout)
	result := tally(req.Rule, votes, req.Weights)
	result.Participants = len(participants)
	span.SetAttributes(
		attribute.Int("consensus.responded", result.Responded),
		attribute.Bool("consensus.reached", result.Consensus),
	)
	slog.Info(fmt.Sprintf("%s - ResolveConsensus: rule=%s responded=%d/%d consensus=%t",
		consensusLogPrefix, req.Rule, result.Responded, result.Participants, result.Consensus))
	return result, nil
}

// collectVotes returns the votes received before the deadline. Votes that
// arrive after it are discarded.
func (o *Orchestrator) collectVotes(ctx context.Context, req ConsensusRequest, participants []string, timeout time.Duration) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		mu     sync.Mutex
		closed bool
		votes  = make(map[string]string, len(participants))
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range participants {
		g.Go(func() error {
			vote, err := o.requestVote(gctx, name, req)
			if err != nil {
				slog.Warn(fmt.Sprintf("%s - collectVotes: %s did not vote: %v", consensusLogPrefix, name, err))
				return nil
			}
			mu.Lock()
			if !closed {
				votes[name] = vote
			}
			mu.Unlock()
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	mu.Lock()
	closed = true
	out := make(map[string]string, len(votes))
	for k, v := range votes {
		out[k] = v
	}
	mu.Unlock()
	return out
}

func (o *Orchestrator) requestVote(ctx context.Context, name string, req ConsensusRequest) (string, error) {
	if o.factory == nil {
		return "", fault.AgentNotFound(name)
	}
	a, ok := o.factory.Agent(name)
	if !ok {
		return "", fault.AgentNotFound(name)
	}

	var (
		out map[string]interface{}
		err error
	)
	if v, isVoter := a.(agent.Voter); isVoter {
		out, err = v.Vote(ctx, req.Question, req.Params)
	} else {
		params := make(map[string]interface{}, len(req.Params)+1)
		for k, v := range req.Params {
			params[k] = v
		}
		params["question"] = req.Question
		out, err = a.ExecuteTask(ctx, agent.Task{Method: agent.MethodConsensusVote, Params: params})
	}
	if err != nil {
		return "", err
	}
	vote, _ := out["vote"].(string)
	if vote == "" {
		return "", fault.Validation("response from %s has no vote", name)
	}
	return vote, nil
}

// tally applies rule to votes. Weighted tallies use weights, defaulting to 1.
func tally(rule Rule, votes map[string]string, weights map[string]float64) ConsensusResult {
	res := ConsensusResult{Rule: rule, Votes: votes, Responded: len(votes)}
	if len(votes) == 0 {
		return res
	}

	sums := make(map[string]float64)
	var total float64
	for name, v := range votes {
		w := 1.0
		if rule == RuleWeighted {
			if explicit, ok := weights[name]; ok {
				w = explicit
			}
		}
		sums[v] += w
		total += w
	}

	values := make([]string, 0, len(sums))
	for v := range sums {
		values = append(values, v)
	}
	sort.Slice(values, func(i, j int) bool {
		if sums[values[i]] != sums[values[j]] {
			return sums[values[i]] > sums[values[j]]
		}
		return values[i] < values[j]
	})
	top := values[0]

	switch rule {
	case RuleUnanimous:
		res.Consensus = len(sums) == 1
	default:
		res.Consensus = total > 0 && sums[top] > total/2
	}
	if res.Consensus {
		res.Result = &top
	}
	return res
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok || n == "" {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
