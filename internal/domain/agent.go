package domain

import (
	"context"
	"time"
)

// Agent is an external capability unit. The engine never owns an agent's
// lifecycle; it only probes CanHandle and invokes Handle.
type Agent interface {
	Name() string
	Kind() AgentKind
	CanHandle(req *Request) bool
	Handle(ctx context.Context, req *Request) (*AgentResult, error)
}

// AgentResult is what an agent produced for one request.
type AgentResult struct {
	Success bool
	Output  string
	Data    map[string]string
	Err     string
}

// ResultStatus is the terminal state of one dispatched request. Cancelled is
// a distinct state, never conflated with failure by error.
type ResultStatus string

const (
	StatusSucceeded ResultStatus = "succeeded"
	StatusFailed    ResultStatus = "failed"
	StatusCancelled ResultStatus = "cancelled"
)

// Result is the orchestrator's unified answer for one request: the agent's
// output wrapped together with the routing metadata that led to it.
type Result struct {
	RequestID       string
	Status          ResultStatus
	Success         bool
	Message         string
	AgentName       string
	AgentKind       AgentKind
	Intent          string
	Confidence      float64
	IsFallback      bool
	RoutingMetadata map[string]string
	Workflow        *WorkflowResult
	Agent           *AgentResult
	Duration        time.Duration
	CompletedAt     time.Time
}
