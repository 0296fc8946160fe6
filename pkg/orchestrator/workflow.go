package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/morezero/agent-coordinator/pkg/agent"
	"github.com/morezero/agent-coordinator/pkg/fault"
)

const (
	workflowLogPrefix = "orchestrator:workflow"

	// DefaultBackoff is the first retry delay when a policy sets none.
	DefaultBackoff = time.Second
	// DefaultMaxBackoff caps retry delays when a policy sets none.
	DefaultMaxBackoff = 30 * time.Second
)

// RetryPolicy controls step attempts. The zero value runs a step once.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// DefaultRetryPolicy allows three retries after the first attempt.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, Backoff: DefaultBackoff, MaxBackoff: DefaultMaxBackoff}
}

func (p RetryPolicy) schedule() *backoff.ExponentialBackOff {
	initial := p.Backoff
	if initial <= 0 {
		initial = DefaultBackoff
	}
	maxInterval := p.MaxBackoff
	if maxInterval <= 0 {
		maxInterval = DefaultMaxBackoff
	}
	if maxInterval < initial {
		maxInterval = initial
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     initial,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         maxInterval,
	}
	b.Reset()
	return b
}

// Step is one unit of a workflow.
type Step struct {
	// Key names the step result. Defaults to AgentName.
	Key         string
	AgentName   string
	Method      string
	Params      map[string]interface{}
	DependsOn   []string
	Retry       RetryPolicy
	CanDelegate bool
}

// ResultKey returns the key the step result is stored under.
func (s Step) ResultKey() string {
	if s.Key != "" {
		return s.Key
	}
	return s.AgentName
}

// results is the per-workflow result map.
type results struct {
	mu   sync.RWMutex
	data map[string]map[string]interface{}
}

func (r *results) set(key string, v map[string]interface{}) {
	r.mu.Lock()
	r.data[key] = v
	r.mu.Unlock()
}

func (r *results) has(keys []string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, k := range keys {
		if _, ok := r.data[k]; !ok {
			return false
		}
	}
	return true
}

func (r *results) snapshot() map[string]map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]map[string]interface{}, len(r.data))
	for k, v := range r.data {
		out[k] = v
	}
	return out
}

// ValidateSteps checks step fields and that every dependency names an
// earlier step.
func ValidateSteps(steps []Step) error {
	if len(steps) == 0 {
		return fault.Validation("workflow has no steps")
	}
	seen := make(map[string]struct{}, len(steps))
	for i, s := range steps {
		if s.AgentName == "" {
			return fault.Validation("step %d has no agent name", i)
		}
		if s.Method == "" {
			return fault.Validation("step %d has no method", i)
		}
		if s.Retry.MaxRetries < 0 {
			return fault.Validation("step %q has negative max retries", s.ResultKey())
		}
		for _, dep := range s.DependsOn {
			if _, ok := seen[dep]; !ok {
				return fault.Validation("step %q depends on %q which is not an earlier step", s.ResultKey(), dep)
			}
		}
		key := s.ResultKey()
		if _, dup := seen[key]; dup {
			return fault.Validation("duplicate step key %q", key)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// Execute runs steps in list order and returns the results keyed by step key.
// A step waits until every dependency result is present. The first step that
// cannot complete aborts the workflow with a *WorkflowExecutionError.
func (o *Orchestrator) Execute(ctx context.Context, workflowID string, steps []Step) (map[string]map[string]interface{}, error) {
	if workflowID == "" {
		workflowID = uuid.NewString()
	}
	ctx, span := o.tracer.Start(ctx, "orchestrator.workflow", trace.WithAttributes(
		attribute.String("workflow.id", workflowID),
		attribute.Int("workflow.steps", len(steps)),
	))
	defer span.End()

	if err := ValidateSteps(steps); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid workflow")
		return nil, err
	}

	slog.Info(fmt.Sprintf("%s - Execute: workflow %s started with %d steps", workflowLogPrefix, workflowID, len(steps)))
	res := &results{data: make(map[string]map[string]interface{}, len(steps))}
	for _, step := range steps {
		if err := o.waitForDependencies(ctx, step.DependsOn, res); err != nil {
			wrapped := &WorkflowExecutionError{WorkflowID: workflowID, Step: step.ResultKey(), Err: err}
			span.RecordError(wrapped)
			span.SetStatus(codes.Error, "dependency wait aborted")
			return nil, wrapped
		}
		out, err := o.executeStep(ctx, workflowID, step, res.snapshot())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "step failed")
			slog.Error(fmt.Sprintf("%s - Execute: workflow %s aborted: %v", workflowLogPrefix, workflowID, err))
			return nil, err
		}
		res.set(step.ResultKey(), out)
	}
	slog.Info(fmt.Sprintf("%s - Execute: workflow %s completed", workflowLogPrefix, workflowID))
	return res.snapshot(), nil
}

func (o *Orchestrator) waitForDependencies(ctx context.Context, deps []string, res *results) error {
	if len(deps) == 0 {
		return nil
	}
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()
	for !res.has(deps) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func (o *Orchestrator) executeStep(ctx context.Context, workflowID string, step Step, current map[string]map[string]interface{}) (map[string]interface{}, error) {
	key := step.ResultKey()
	attempts := step.Retry.MaxRetries + 1
	schedule := step.Retry.schedule()

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		out, err := o.attemptStep(ctx, step, attempt, current)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, &WorkflowExecutionError{WorkflowID: workflowID, Step: key, Attempts: attempt + 1, Err: err}
		}
		if !fault.IsRetryable(err) {
			return nil, &WorkflowExecutionError{WorkflowID: workflowID, Step: key, Attempts: attempt + 1, Err: err}
		}
		if attempt == attempts-1 {
			break
		}
		delay := schedule.NextBackOff()
		slog.Warn(fmt.Sprintf("%s - executeStep: step %q attempt %d/%d failed, retrying in %s: %v",
			workflowLogPrefix, key, attempt+1, attempts, delay, err))
		if err := o.sleep(ctx, delay); err != nil {
			return nil, &WorkflowExecutionError{WorkflowID: workflowID, Step: key, Attempts: attempt + 1, Err: err}
		}
	}
	return nil, &WorkflowExecutionError{WorkflowID: workflowID, Step: key, Attempts: attempts, Err: lastErr}
}

func (o *Orchestrator) attemptStep(ctx context.Context, step Step, attempt int, current map[string]map[string]interface{}) (map[string]interface{}, error) {
	a, name, delegated := o.resolve(step)

	ctx, span := o.tracer.Start(ctx, "orchestrator.step", trace.WithAttributes(
		attribute.String("step.key", step.ResultKey()),
		attribute.String("step.method", step.Method),
		attribute.String("step.agent", name),
		attribute.Int("step.attempt", attempt),
		attribute.Bool("step.delegated", delegated),
	))
	defer span.End()

	if a == nil {
		err := fault.AgentNotFound(step.AgentName)
		span.RecordError(err)
		span.SetStatus(codes.Error, "agent not found")
		return nil, err
	}
	if delegated {
		slog.Info(fmt.Sprintf("%s - attemptStep: step %q delegated from %s to %s", workflowLogPrefix, step.ResultKey(), step.AgentName, name))
	}

	out, err := a.ExecuteTask(ctx, agent.Task{Method: step.Method, Params: step.Params, Context: current})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "task failed")
		return nil, err
	}
	if out == nil {
		out = map[string]interface{}{}
	}
	return out, nil
}

// resolve returns the agent for this attempt. A named agent that is unknown
// or not running is absent; a delegate is used only when the step allows it.
func (o *Orchestrator) resolve(step Step) (agent.Agent, string, bool) {
	if o.factory != nil {
		if a, ok := o.factory.Agent(step.AgentName); ok && a.IsRunning() {
			return a, step.AgentName, false
		}
	}
	if !step.CanDelegate || o.finder == nil || o.factory == nil {
		return nil, step.AgentName, false
	}
	for _, candidate := range o.finder.FindByCapability(step.Method) {
		if candidate == step.AgentName {
			continue
		}
		a, ok := o.factory.Agent(candidate)
		if !ok || !a.IsRunning() || !a.HasCapability(step.Method) {
			continue
		}
		return a, candidate, true
	}
	return nil, step.AgentName, false
}
