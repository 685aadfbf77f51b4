// Package routing selects a target agent for a classified request using an
// ordered set of declarative rules with a three-tier fallback, so that a
// decision is always produced whenever at least one agent exists.
package routing

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"switchboard/internal/domain"
)

// Fallback confidence constants. The suggested-kind default keeps most of the
// classifier's confidence; last-resort decisions use fixed low values.
const (
	defaultRoutingFactor = 0.9
	fallbackConfidence   = 0.5
	emergencyConfidence  = 0.3
)

// ruleEntry pairs an immutable rule with its shared running statistics.
// Entries are shared across rule-set snapshots so counter increments survive
// snapshot swaps.
type ruleEntry struct {
	rule     *domain.RoutingRule
	usage    atomic.Int64
	outcomes atomic.Int64
	success  atomic.Int64
}

func (e *ruleEntry) successRate() float64 {
	total := e.outcomes.Load()
	if total == 0 {
		return 0
	}
	return float64(e.success.Load()) / float64(total)
}

func (e *ruleEntry) stats() domain.RuleStats {
	return domain.RuleStats{
		UsageCount:  e.usage.Load(),
		Outcomes:    e.outcomes.Load(),
		SuccessRate: e.successRate(),
	}
}

// Engine evaluates routing rules against classifications. Readers work on an
// immutable copy-on-write snapshot; AddRule/RemoveRule/ReplaceRules swap the
// snapshot atomically so in-flight evaluations see either the old or the new
// rule set, never a partial one.
type Engine struct {
	mu      sync.Mutex   // serializes writers
	entries atomic.Value // []*ruleEntry
	logger  *slog.Logger
}

// NewEngine creates an engine with an empty rule set.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	e := &Engine{logger: logger}
	e.entries.Store([]*ruleEntry{})
	return e
}

func (e *Engine) snapshot() []*ruleEntry {
	return e.entries.Load().([]*ruleEntry)
}

// AddRule upserts a rule, assigning a UUID when the rule carries no ID.
// Upserting an existing ID keeps that rule's running statistics.
func (e *Engine) AddRule(rule *domain.RoutingRule) error {
	if rule == nil {
		return domain.NewSubSystemError("routing", "Engine.AddRule", domain.ErrInvalidInput, "nil rule")
	}
	if rule.TargetAgent == "" && rule.TargetKind == "" {
		return domain.NewSubSystemError("routing", "Engine.AddRule", domain.ErrInvalidInput,
			fmt.Sprintf("rule %q has no target agent or kind", rule.Name))
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	old := e.snapshot()
	next := make([]*ruleEntry, 0, len(old)+1)
	replaced := false
	for _, entry := range old {
		if entry.rule.ID == rule.ID {
			// Keep the stats counters, swap the rule.
			fresh := &ruleEntry{rule: rule}
			fresh.usage.Store(entry.usage.Load())
			fresh.outcomes.Store(entry.outcomes.Load())
			fresh.success.Store(entry.success.Load())
			next = append(next, fresh)
			replaced = true
			continue
		}
		next = append(next, entry)
	}
	if !replaced {
		next = append(next, &ruleEntry{rule: rule})
	}
	e.entries.Store(next)
	e.logger.Debug("routing rule stored", "rule_id", rule.ID, "name", rule.Name, "priority", rule.Priority)
	return nil
}

// RemoveRule deletes the rule with the given ID. Returns ErrNotFound when absent.
func (e *Engine) RemoveRule(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	old := e.snapshot()
	next := make([]*ruleEntry, 0, len(old))
	found := false
	for _, entry := range old {
		if entry.rule.ID == id {
			found = true
			continue
		}
		next = append(next, entry)
	}
	if !found {
		return domain.NewSubSystemError("routing", "Engine.RemoveRule", domain.ErrNotFound, id)
	}
	e.entries.Store(next)
	e.logger.Debug("routing rule removed", "rule_id", id)
	return nil
}

// ReplaceRules swaps the whole rule set in one step, used by config hot
// reload. Statistics carry over for rules whose IDs survive the swap.
func (e *Engine) ReplaceRules(rules []*domain.RoutingRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	old := make(map[string]*ruleEntry, len(e.snapshot()))
	for _, entry := range e.snapshot() {
		old[entry.rule.ID] = entry
	}

	next := make([]*ruleEntry, 0, len(rules))
	for _, rule := range rules {
		if rule == nil {
			return domain.NewSubSystemError("routing", "Engine.ReplaceRules", domain.ErrInvalidInput, "nil rule")
		}
		if rule.TargetAgent == "" && rule.TargetKind == "" {
			return domain.NewSubSystemError("routing", "Engine.ReplaceRules", domain.ErrInvalidInput,
				fmt.Sprintf("rule %q has no target agent or kind", rule.Name))
		}
		if rule.ID == "" {
			rule.ID = uuid.NewString()
		}
		entry := &ruleEntry{rule: rule}
		if prev, ok := old[rule.ID]; ok {
			entry.usage.Store(prev.usage.Load())
			entry.outcomes.Store(prev.outcomes.Load())
			entry.success.Store(prev.success.Load())
		}
		next = append(next, entry)
	}
	e.entries.Store(next)
	e.logger.Info("routing rules replaced", "count", len(next))
	return nil
}

// Rules returns the current rule set snapshot.
func (e *Engine) Rules() []*domain.RoutingRule {
	entries := e.snapshot()
	rules := make([]*domain.RoutingRule, 0, len(entries))
	for _, entry := range entries {
		rules = append(rules, entry.rule)
	}
	return rules
}

// Stats returns the running statistics for one rule.
func (e *Engine) Stats(ruleID string) (domain.RuleStats, bool) {
	for _, entry := range e.snapshot() {
		if entry.rule.ID == ruleID {
			return entry.stats(), true
		}
	}
	return domain.RuleStats{}, false
}

// RecordOutcome feeds a dispatch outcome back into the matched rule's success
// rate. Unknown rule IDs are ignored; the rule may have been removed since
// the decision was made.
func (e *Engine) RecordOutcome(ruleID string, success bool) {
	for _, entry := range e.snapshot() {
		if entry.rule.ID == ruleID {
			entry.outcomes.Add(1)
			if success {
				entry.success.Add(1)
			}
			return
		}
	}
}

// DecayStats halves every rule's outcome counters so success rates track
// recent behavior instead of all-time history. Run periodically by the
// maintenance scheduler.
func (e *Engine) DecayStats() {
	for _, entry := range e.snapshot() {
		entry.outcomes.Store(entry.outcomes.Load() / 2)
		entry.success.Store(entry.success.Load() / 2)
	}
}

// Evaluate produces a routing decision for the classification, drawing the
// target from agents. With a non-empty agent set Evaluate never fails:
//
//	tier 1: highest-priority enabled rule whose conditions match and whose
//	        target resolves (success rate, then rule ID, break ties)
//	tier 2: first agent matching the classification's suggested kind
//	tier 3: first available agent, marked as fallback
//
// An empty agent set is the one hard stop (ErrNoAgents). Rule-level faults
// are logged and skipped; an unexpected panic yields an emergency decision.
func (e *Engine) Evaluate(ctx context.Context, cls *domain.IntentClassification, agents []domain.Agent) (decision *domain.RoutingDecision, err error) {
	if len(agents) == 0 {
		return nil, domain.NewDomainError("Engine.Evaluate", domain.ErrNoAgents, "")
	}
	if cls == nil {
		return nil, domain.NewSubSystemError("routing", "Engine.Evaluate", domain.ErrInvalidInput, "nil classification")
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("rule evaluation panicked, using emergency fallback", "panic", r)
			decision = e.emergencyDecision(cls, agents[0])
			err = nil
		}
	}()

	if d := e.evaluateRules(ctx, cls, agents); d != nil {
		return d, nil
	}

	// Tier 2: default routing by the classifier's suggested kind.
	if cls.SuggestedKind != "" {
		if agent := findByKind(agents, cls.SuggestedKind); agent != nil {
			return &domain.RoutingDecision{
				AgentName:  agent.Name(),
				AgentKind:  agent.Kind(),
				Intent:     cls.Intent,
				Confidence: clamp(cls.Confidence * defaultRoutingFactor),
				Reason:     fmt.Sprintf("default routing: suggested kind %q", cls.SuggestedKind),
				IsFallback: false,
				Metadata:   map[string]string{domain.MetaTier: domain.TierDefault},
			}, nil
		}
	}

	// Tier 3: nothing matched, nothing suggested — take the first agent.
	agent := agents[0]
	e.logger.Debug("fallback routing", "agent", agent.Name(), "intent", cls.Intent)
	return &domain.RoutingDecision{
		AgentName:  agent.Name(),
		AgentKind:  agent.Kind(),
		Intent:     cls.Intent,
		Confidence: fallbackConfidence,
		Reason:     "fallback routing: no rule matched and no suggested kind resolved",
		IsFallback: true,
		Metadata:   map[string]string{domain.MetaTier: domain.TierFallback},
	}, nil
}

// evaluateRules walks the sorted matching rules and returns the first
// resolvable decision, or nil when tier 1 produces nothing.
func (e *Engine) evaluateRules(_ context.Context, cls *domain.IntentClassification, agents []domain.Agent) *domain.RoutingDecision {
	matched := make([]*ruleEntry, 0)
	for _, entry := range e.snapshot() {
		if !entry.rule.Enabled {
			continue
		}
		ok, err := ruleMatches(entry.rule, cls)
		if err != nil {
			e.logger.Warn("skipping rule with faulty condition",
				"rule_id", entry.rule.ID, "rule", entry.rule.Name, "error", err)
			continue
		}
		if ok {
			matched = append(matched, entry)
		}
	}
	if len(matched) == 0 {
		return nil
	}

	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.rule.Priority != b.rule.Priority {
			return a.rule.Priority > b.rule.Priority
		}
		ra, rb := a.successRate(), b.successRate()
		if ra != rb {
			return ra > rb
		}
		return a.rule.ID < b.rule.ID
	})

	for _, entry := range matched {
		agent := resolveTarget(entry.rule, agents)
		if agent == nil {
			e.logger.Debug("rule target not resolvable, trying next",
				"rule", entry.rule.Name, "target_agent", entry.rule.TargetAgent,
				"target_kind", string(entry.rule.TargetKind))
			continue
		}
		entry.usage.Add(1)
		return &domain.RoutingDecision{
			AgentName:  agent.Name(),
			AgentKind:  agent.Kind(),
			Intent:     cls.Intent,
			Confidence: clamp(cls.Confidence + entry.rule.ConfidenceBoost),
			Reason:     fmt.Sprintf("matched rule %q", entry.rule.Name),
			IsFallback: false,
			Metadata: map[string]string{
				domain.MetaRuleID:   entry.rule.ID,
				domain.MetaRuleName: entry.rule.Name,
				domain.MetaTier:     domain.TierRule,
			},
		}
	}
	return nil
}

func (e *Engine) emergencyDecision(cls *domain.IntentClassification, agent domain.Agent) *domain.RoutingDecision {
	return &domain.RoutingDecision{
		AgentName:  agent.Name(),
		AgentKind:  agent.Kind(),
		Intent:     cls.Intent,
		Confidence: emergencyConfidence,
		Reason:     "emergency fallback: rule evaluation failed",
		IsFallback: true,
		Metadata:   map[string]string{domain.MetaTier: domain.TierEmergency},
	}
}

// resolveTarget finds the rule's target among the supplied agents: by exact
// name first, then by kind.
func resolveTarget(rule *domain.RoutingRule, agents []domain.Agent) domain.Agent {
	if rule.TargetAgent != "" {
		for _, a := range agents {
			if a.Name() == rule.TargetAgent {
				return a
			}
		}
		return nil
	}
	return findByKind(agents, rule.TargetKind)
}

func findByKind(agents []domain.Agent, kind domain.AgentKind) domain.Agent {
	for _, a := range agents {
		if a.Kind() == kind {
			return a
		}
	}
	return nil
}

func clamp(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}
	if v < 0 {
		return 0
	}
	return v
}
