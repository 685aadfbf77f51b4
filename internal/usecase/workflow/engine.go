// Package workflow executes ordered pre/post-processing steps around an
// agent invocation and aggregates their results into one outcome.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"switchboard/internal/domain"
)

// Engine holds the registered workflow steps and runs the applicable subset
// for each request. The step set is a shared registry safe for concurrent
// registration and execution.
type Engine struct {
	mu     sync.RWMutex
	steps  []domain.WorkflowStep // registration order; sorted per execution
	names  map[string]bool
	bus    domain.EventBus
	logger *slog.Logger
}

// NewEngine creates a workflow engine. The bus may be nil when no observer
// cares about lifecycle events.
func NewEngine(bus domain.EventBus, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{
		names:  make(map[string]bool),
		bus:    bus,
		logger: logger,
	}
}

// RegisterStep adds a step to the registry. Steps with an empty name are
// rejected, and duplicate names are an error rather than an overwrite —
// silently replacing a step would make execution order ambiguous.
func (e *Engine) RegisterStep(step domain.WorkflowStep) error {
	if step == nil {
		return domain.NewSubSystemError("workflow", "Engine.RegisterStep", domain.ErrInvalidInput, "nil step")
	}
	name := step.Name()
	if name == "" {
		return domain.NewSubSystemError("workflow", "Engine.RegisterStep", domain.ErrInvalidInput, "empty step name")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.names[name] {
		return domain.NewDomainError("Engine.RegisterStep", domain.ErrDuplicateStep, name)
	}
	e.names[name] = true
	e.steps = append(e.steps, step)
	e.logger.Debug("workflow step registered", "step", name, "order", step.Order())
	return nil
}

// Steps returns the registered steps sorted by ascending order, registration
// order breaking ties.
func (e *Engine) Steps() []domain.WorkflowStep {
	e.mu.RLock()
	steps := make([]domain.WorkflowStep, len(e.steps))
	copy(steps, e.steps)
	e.mu.RUnlock()

	sort.SliceStable(steps, func(i, j int) bool {
		return steps[i].Order() < steps[j].Order()
	})
	return steps
}

// Execute runs every applicable step for the request, strictly in ascending
// order, threading a shared WorkflowContext through them. A step's failure is
// recorded but does not halt later steps unless the step marks it fatal;
// cancellation always halts before the next unexecuted step. Zero applicable
// steps is an explicit failure, not a silent success.
//
// The only error Execute returns is the nil-request precondition; every other
// outcome is expressed in the WorkflowResult.
func (e *Engine) Execute(ctx context.Context, req *domain.Request) (*domain.WorkflowResult, error) {
	if req == nil {
		return nil, domain.NewDomainError("Engine.Execute", domain.ErrNilRequest, "")
	}

	start := time.Now()
	applicable := make([]domain.WorkflowStep, 0)
	for _, step := range e.Steps() {
		if step.CanHandle(req) {
			applicable = append(applicable, step)
		}
	}

	e.publish(ctx, domain.EventWorkflowStarted, req.ID, map[string]any{
		"request_id": req.ID,
		"prompt_len": len(req.Prompt),
		"steps":      len(applicable),
	})

	result := &domain.WorkflowResult{}

	if len(applicable) == 0 {
		result.Success = false
		result.Message = "No applicable workflow steps found"
		result.Duration = time.Since(start)
		e.publishCompleted(ctx, req, result)
		return result, nil
	}

	wc := domain.NewWorkflowContext()
	wc.Set("request_id", req.ID)

	for _, step := range applicable {
		select {
		case <-ctx.Done():
			result.Cancelled = true
			result.Success = false
			result.Message = fmt.Sprintf("workflow cancelled before step %q: %v", step.Name(), ctx.Err())
			result.Duration = time.Since(start)
			e.publishCompleted(ctx, req, result)
			return result, nil
		default:
		}

		sr := e.runStep(ctx, step, req, wc)
		result.Steps = append(result.Steps, *sr)

		if sr.Fatal {
			result.Halted = true
			result.Message = fmt.Sprintf("workflow halted: step %q failed fatally", step.Name())
			break
		}
	}

	result.Success = true
	for _, sr := range result.Steps {
		if !sr.Success {
			result.Success = false
			break
		}
	}
	if result.Message == "" {
		if result.Success {
			result.Message = fmt.Sprintf("%d steps completed", len(result.Steps))
		} else {
			result.Message = "one or more workflow steps failed"
		}
	}
	result.Duration = time.Since(start)

	e.publishCompleted(ctx, req, result)
	return result, nil
}

// runStep executes one step, converting an execution error into a failed
// StepResult so a misbehaving step cannot abort the pipeline on its own.
func (e *Engine) runStep(ctx context.Context, step domain.WorkflowStep, req *domain.Request, wc *domain.WorkflowContext) *domain.StepResult {
	start := time.Now()
	sr, err := step.Execute(ctx, req, wc)
	if err != nil {
		e.logger.Warn("workflow step errored", "step", step.Name(), "error", err)
		return &domain.StepResult{
			StepName: step.Name(),
			Success:  false,
			Message:  "step execution error",
			Err:      err.Error(),
			Duration: time.Since(start),
		}
	}
	if sr == nil {
		sr = &domain.StepResult{Success: true}
	}
	if sr.StepName == "" {
		sr.StepName = step.Name()
	}
	if sr.Duration == 0 {
		sr.Duration = time.Since(start)
	}
	return sr
}

func (e *Engine) publishCompleted(ctx context.Context, req *domain.Request, result *domain.WorkflowResult) {
	e.publish(ctx, domain.EventWorkflowCompleted, req.ID, map[string]any{
		"request_id": req.ID,
		"success":    result.Success,
		"cancelled":  result.Cancelled,
		"halted":     result.Halted,
		"steps":      len(result.Steps),
		"message":    result.Message,
	})
}

func (e *Engine) publish(ctx context.Context, eventType domain.EventType, requestID string, payload any) {
	if e.bus == nil {
		return
	}
	data, _ := json.Marshal(payload)
	e.bus.Publish(ctx, domain.Event{
		Type:      eventType,
		Timestamp: time.Now(),
		RequestID: requestID,
		Payload:   data,
	})
}
