// Package dispatch ties classification, routing, workflow execution, and
// agent invocation together behind the single ProcessRequest entry point.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"

	"switchboard/internal/domain"
	"switchboard/internal/infra/tracer"
	"switchboard/internal/usecase/registry"
	"switchboard/internal/usecase/routing"
	"switchboard/internal/usecase/workflow"
)

// Config holds orchestrator tuning knobs.
type Config struct {
	// AgentRetries is how many times a retryable agent failure is retried.
	AgentRetries int
	// RetryBackoff is the base of the exponential backoff between retries.
	RetryBackoff time.Duration
	// RatePerSecond throttles dispatches; 0 disables throttling.
	RatePerSecond float64
	// Burst is the limiter burst size when throttling is enabled.
	Burst int
}

const (
	defaultAgentRetries = 2
	defaultRetryBackoff = 200 * time.Millisecond
)

// Orchestrator is the engine's sole public surface. Concurrent callers may
// invoke ProcessRequest simultaneously; all shared state lives in the
// injected registries, which synchronize internally.
type Orchestrator struct {
	classifier domain.Classifier
	rules      *routing.Engine
	flow       *workflow.Engine
	agents     *registry.Registry
	bus        domain.EventBus
	journal    domain.DispatchJournal // optional
	limiter    *rate.Limiter          // optional
	logger     *slog.Logger

	retries int
	backoff time.Duration
}

// New creates an orchestrator. The bus and journal may be nil; every other
// collaborator is required.
func New(
	classifier domain.Classifier,
	rules *routing.Engine,
	flow *workflow.Engine,
	agents *registry.Registry,
	bus domain.EventBus,
	journal domain.DispatchJournal,
	cfg Config,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	retries := cfg.AgentRetries
	if retries <= 0 {
		retries = defaultAgentRetries
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	return &Orchestrator{
		classifier: classifier,
		rules:      rules,
		flow:       flow,
		agents:     agents,
		bus:        bus,
		journal:    journal,
		limiter:    limiter,
		logger:     logger,
		retries:    retries,
		backoff:    backoff,
	}
}

// ProcessRequest classifies the request, obtains a routing decision, runs the
// applicable workflow steps, invokes the chosen agent, and wraps everything
// into one Result.
//
// Only three errors can escape: the nil-request precondition, the no-agents
// precondition, and classifier unavailability. Every other failure — agent
// errors, step failures, cancellation — comes back inside the Result so
// callers can branch on succeeded/failed/cancelled.
func (o *Orchestrator) ProcessRequest(ctx context.Context, req *domain.Request) (*domain.Result, error) {
	if req == nil {
		return nil, domain.NewDomainError("Orchestrator.ProcessRequest", domain.ErrNilRequest, "")
	}

	start := time.Now()
	if req.ID == "" {
		req.ID = newRequestID(start)
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = start
	}
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	ctx, span := tracer.StartSpan(ctx, "dispatch.process")
	defer span.End()
	span.SetAttributes(
		tracer.StringAttr("request.id", req.ID),
		tracer.StringAttr("request.priority", req.Priority.String()),
	)

	o.publish(ctx, domain.EventRequestReceived, req.ID, map[string]any{
		"request_id": req.ID,
		"prompt_len": len(req.Prompt),
	})

	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			// Only context cancellation interrupts Wait.
			return o.finish(ctx, req, o.cancelledResult(req, nil, err), nil, start), nil
		}
	}

	cls, err := o.classify(ctx, req)
	if err != nil {
		if isCancellation(err) {
			// The caller walked away mid-classification; that is a cancelled
			// dispatch, not a broken classifier.
			return o.finish(ctx, req, o.cancelledResult(req, nil, err), nil, start), nil
		}
		tracer.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(tracer.StringAttr("intent", cls.Intent))

	decision, err := o.route(ctx, req, cls)
	if err != nil {
		// Empty registry: the one routing error that is a hard stop.
		tracer.RecordError(span, err)
		return nil, err
	}

	agent := o.resolveAgent(req, decision)
	span.SetAttributes(
		tracer.StringAttr("agent", decision.AgentName),
		tracer.StringAttr("routing.tier", decision.Metadata[domain.MetaTier]),
	)

	wfResult, err := o.flow.Execute(ctx, req)
	if err != nil {
		// Only reachable with a nil request, which was checked above.
		return nil, err
	}
	if wfResult.Cancelled {
		return o.finish(ctx, req, o.cancelledResult(req, decision, ctx.Err()), decision, start), nil
	}
	if wfResult.Halted {
		// A fatal step rejected the request; the agent never sees it.
		result := o.buildResult(req, decision, wfResult, nil, nil, nil)
		return o.finish(ctx, req, result, decision, start), nil
	}

	agentResult, agentErr := o.invokeAgent(ctx, agent, req)

	result := o.buildResult(req, decision, wfResult, agentResult, agentErr, ctx.Err())
	return o.finish(ctx, req, result, decision, start), nil
}

// classify runs the intent classifier. Classifier failures surface as a
// distinct "classification unavailable" error and routing is never
// attempted — there is no agent kind to route by. Context cancellation passes
// through untouched so the caller is never told a healthy classifier broke.
func (o *Orchestrator) classify(ctx context.Context, req *domain.Request) (*domain.IntentClassification, error) {
	ctx, span := tracer.StartSpan(ctx, "dispatch.classify")
	defer span.End()

	cls, err := o.classifier.Classify(ctx, req.Prompt)
	if err != nil {
		if isCancellation(err) {
			return nil, err
		}
		if errors.Is(err, domain.ErrClassifierUnavailable) {
			return nil, domain.WrapOp("Orchestrator.ProcessRequest", err)
		}
		return nil, domain.NewDomainError("Orchestrator.ProcessRequest", domain.ErrClassifierUnavailable, err.Error())
	}
	tracer.SetOK(span)
	return cls, nil
}

// isCancellation reports whether err is the caller's context giving up rather
// than a component failing.
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// route honors the caller's preferred-agent hint when it resolves to a
// capable agent, then defers to the rule engine.
func (o *Orchestrator) route(ctx context.Context, req *domain.Request, cls *domain.IntentClassification) (*domain.RoutingDecision, error) {
	ctx, span := tracer.StartSpan(ctx, "dispatch.route")
	defer span.End()

	if req.PreferredAgent != "" {
		if agent, err := o.agents.Get(req.PreferredAgent); err == nil && agent.CanHandle(req) {
			return &domain.RoutingDecision{
				AgentName:  agent.Name(),
				AgentKind:  agent.Kind(),
				Intent:     cls.Intent,
				Confidence: cls.Confidence,
				Reason:     fmt.Sprintf("preferred agent %q", req.PreferredAgent),
				IsFallback: false,
				Metadata:   map[string]string{domain.MetaTier: domain.TierPreferred},
			}, nil
		}
		o.logger.Debug("preferred agent not usable, falling through to rules",
			"request_id", req.ID, "preferred", req.PreferredAgent)
	}

	decision, err := o.rules.Evaluate(ctx, cls, o.agents.Snapshot())
	if err != nil {
		return nil, err
	}
	if decision.Metadata[domain.MetaTier] == domain.TierRule {
		o.publish(ctx, domain.EventRuleMatched, req.ID, map[string]any{
			"request_id": req.ID,
			"rule_id":    decision.Metadata[domain.MetaRuleID],
			"rule_name":  decision.Metadata[domain.MetaRuleName],
		})
	}
	tracer.SetOK(span)
	return decision, nil
}

// resolveAgent turns the decision into a live agent. The decision's target
// may have been removed between evaluation and resolution, or may decline the
// request; in either case substitute within the registry rather than fail —
// routing is designed to always produce some agent.
func (o *Orchestrator) resolveAgent(req *domain.Request, decision *domain.RoutingDecision) domain.Agent {
	if agent, err := o.agents.Get(decision.AgentName); err == nil && agent.CanHandle(req) {
		return agent
	}

	o.logger.Warn("decision target unavailable, substituting",
		"request_id", req.ID, "target", decision.AgentName)
	decision.Metadata["resolution"] = "substituted"

	if agent, ok := o.agents.FindByKind(decision.AgentKind); ok && agent.CanHandle(req) {
		decision.AgentName = agent.Name()
		return agent
	}
	for _, agent := range o.agents.Snapshot() {
		if agent.CanHandle(req) {
			decision.AgentName = agent.Name()
			decision.AgentKind = agent.Kind()
			decision.IsFallback = true
			return agent
		}
	}
	// Nothing is willing; keep the decision's target and let Handle report.
	agent, _ := o.agents.Get(decision.AgentName)
	return agent
}

// invokeAgent calls the agent's handler, retrying transient failures with
// exponential backoff. Cancellation aborts between attempts.
func (o *Orchestrator) invokeAgent(ctx context.Context, agent domain.Agent, req *domain.Request) (*domain.AgentResult, error) {
	if agent == nil {
		return nil, domain.NewDomainError("Orchestrator.invokeAgent", domain.ErrAgentFailure, "no agent willing to handle request")
	}

	ctx, span := tracer.StartSpan(ctx, "dispatch.agent")
	defer span.End()
	span.SetAttributes(tracer.StringAttr("agent", agent.Name()))

	backoff := retry.WithMaxRetries(uint64(o.retries), retry.NewExponential(o.backoff))

	var result *domain.AgentResult
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var callErr error
		result, callErr = agent.Handle(ctx, req)
		if callErr != nil {
			if domain.IsRetryableError(callErr) && ctx.Err() == nil {
				return retry.RetryableError(callErr)
			}
			return callErr
		}
		return nil
	})
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	tracer.SetOK(span)
	return result, nil
}

// buildResult folds the routing decision, workflow outcome, and agent outcome
// into the final Result.
func (o *Orchestrator) buildResult(
	req *domain.Request,
	decision *domain.RoutingDecision,
	wfResult *domain.WorkflowResult,
	agentResult *domain.AgentResult,
	agentErr error,
	ctxErr error,
) *domain.Result {
	result := &domain.Result{
		RequestID:       req.ID,
		AgentName:       decision.AgentName,
		AgentKind:       decision.AgentKind,
		Intent:          decision.Intent,
		Confidence:      decision.Confidence,
		IsFallback:      decision.IsFallback,
		RoutingMetadata: decision.Metadata,
		Workflow:        wfResult,
		Agent:           agentResult,
	}

	switch {
	case agentErr != nil && ctxErr != nil:
		result.Status = domain.StatusCancelled
		result.Message = fmt.Sprintf("dispatch cancelled: %v", ctxErr)
	case agentErr != nil:
		result.Status = domain.StatusFailed
		result.Message = agentErr.Error()
	case wfResult.Halted:
		result.Status = domain.StatusFailed
		result.Message = wfResult.Message
	case agentResult != nil && !agentResult.Success:
		result.Status = domain.StatusFailed
		result.Message = agentResult.Err
		if result.Message == "" {
			result.Message = "agent reported failure"
		}
	case !wfResult.Success:
		result.Status = domain.StatusFailed
		result.Message = wfResult.Message
	default:
		result.Status = domain.StatusSucceeded
		result.Success = true
		if agentResult != nil {
			result.Message = agentResult.Output
		}
	}
	return result
}

func (o *Orchestrator) cancelledResult(req *domain.Request, decision *domain.RoutingDecision, cause error) *domain.Result {
	result := &domain.Result{
		RequestID: req.ID,
		Status:    domain.StatusCancelled,
		Message:   fmt.Sprintf("dispatch cancelled: %v", cause),
	}
	if decision != nil {
		result.AgentName = decision.AgentName
		result.AgentKind = decision.AgentKind
		result.Intent = decision.Intent
		result.Confidence = decision.Confidence
		result.IsFallback = decision.IsFallback
		result.RoutingMetadata = decision.Metadata
	}
	return result
}

// finish stamps the result, feeds the rule stats, journals the outcome, and
// publishes the completion event.
func (o *Orchestrator) finish(ctx context.Context, req *domain.Request, result *domain.Result, decision *domain.RoutingDecision, start time.Time) *domain.Result {
	result.Duration = time.Since(start)
	result.CompletedAt = time.Now()

	if decision != nil {
		if ruleID := decision.Metadata[domain.MetaRuleID]; ruleID != "" && result.Status != domain.StatusCancelled {
			o.rules.RecordOutcome(ruleID, result.Success)
		}
	}

	if o.journal != nil {
		rec := domain.DispatchRecord{
			RequestID:  req.ID,
			Prompt:     req.Prompt,
			Intent:     result.Intent,
			AgentName:  result.AgentName,
			AgentKind:  result.AgentKind,
			Confidence: result.Confidence,
			IsFallback: result.IsFallback,
			Status:     result.Status,
			Message:    result.Message,
			Duration:   result.Duration,
			CreatedAt:  result.CompletedAt,
		}
		// Journal with a fresh context: the request's context may already be
		// cancelled, and the record of that cancellation still matters.
		jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := o.journal.Record(jctx, rec); err != nil {
			o.logger.Warn("journal write failed", "request_id", req.ID, "error", err)
		}
	}

	o.publish(ctx, domain.EventRequestCompleted, req.ID, map[string]any{
		"request_id": req.ID,
		"status":     string(result.Status),
		"agent":      result.AgentName,
		"intent":     result.Intent,
		"fallback":   result.IsFallback,
	})

	o.logger.Info("request processed",
		"request_id", req.ID,
		"status", string(result.Status),
		"agent", result.AgentName,
		"intent", result.Intent,
		"confidence", result.Confidence,
		"duration", result.Duration,
	)
	return result
}

func (o *Orchestrator) publish(ctx context.Context, eventType domain.EventType, requestID string, payload any) {
	if o.bus == nil {
		return
	}
	data, _ := json.Marshal(payload)
	o.bus.Publish(ctx, domain.Event{
		Type:      eventType,
		Timestamp: time.Now(),
		RequestID: requestID,
		Payload:   data,
	})
}

// Request IDs share one monotonic entropy source so IDs minted within the
// same timestamp still differ and sort in creation order.
var (
	idEntropyMu sync.Mutex
	idEntropy   = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

func newRequestID(t time.Time) string {
	idEntropyMu.Lock()
	defer idEntropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), idEntropy).String()
}
