package domain

import (
	"context"
	"sort"
	"sync"
	"time"
)

// WorkflowStep is one unit of pre/post-processing run around an agent
// invocation. Steps execute in ascending Order; registration order breaks
// ties. CanHandle must be pure and fast — it is called once per execution.
type WorkflowStep interface {
	Name() string
	Order() int
	CanHandle(req *Request) bool
	Execute(ctx context.Context, req *Request, wc *WorkflowContext) (*StepResult, error)
}

// WorkflowContext is the mutable key/value state threaded through all steps
// of one workflow execution, so later steps can observe earlier steps'
// outputs. It exists only for the lifetime of one run.
type WorkflowContext struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewWorkflowContext creates an empty workflow context.
func NewWorkflowContext() *WorkflowContext {
	return &WorkflowContext{values: make(map[string]string)}
}

// Set stores a value under key, overwriting any previous value.
func (wc *WorkflowContext) Set(key, value string) {
	wc.mu.Lock()
	defer wc.mu.Unlock()
	wc.values[key] = value
}

// Get returns the value for key and whether it was present.
func (wc *WorkflowContext) Get(key string) (string, bool) {
	wc.mu.RLock()
	defer wc.mu.RUnlock()
	v, ok := wc.values[key]
	return v, ok
}

// Keys returns all stored keys, sorted.
func (wc *WorkflowContext) Keys() []string {
	wc.mu.RLock()
	defer wc.mu.RUnlock()
	keys := make([]string, 0, len(wc.values))
	for k := range wc.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns a copy of the current key/value state.
func (wc *WorkflowContext) Snapshot() map[string]string {
	wc.mu.RLock()
	defer wc.mu.RUnlock()
	out := make(map[string]string, len(wc.values))
	for k, v := range wc.values {
		out[k] = v
	}
	return out
}

// StepResult records one executed step's outcome. Fatal marks a failure that
// must halt the remaining steps; ordinary failures do not.
type StepResult struct {
	StepName string
	Success  bool
	Fatal    bool
	Message  string
	Output   map[string]string
	Err      string
	Duration time.Duration
}

// WorkflowResult aggregates the per-step results of one execution.
// Success is true iff at least one step executed and every executed step
// succeeded. Cancelled marks early termination by the caller's context,
// distinct from failure by error. Halted marks a fatal step failure that
// stopped the remaining steps; the request must not proceed to an agent.
type WorkflowResult struct {
	Success   bool
	Cancelled bool
	Halted    bool
	Steps     []StepResult
	Message   string
	Duration  time.Duration
}
