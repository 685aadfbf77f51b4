package domain

// ConditionField names the classification field a condition matches against.
// Known fields are typed constants; free-form context keys use the
// "context.<key>" escape hatch.
type ConditionField string

const (
	FieldIntent        ConditionField = "intent"
	FieldConfidence    ConditionField = "confidence"
	FieldLanguage      ConditionField = "language"
	FieldSuggestedKind ConditionField = "suggested_kind"

	// ContextFieldPrefix marks a lookup in the classification context map,
	// e.g. "context.keywords".
	ContextFieldPrefix = "context."
)

// ConditionOperator is the comparison applied by a condition.
type ConditionOperator string

const (
	OpEquals      ConditionOperator = "equals"
	OpContains    ConditionOperator = "contains"
	OpStartsWith  ConditionOperator = "startsWith"
	OpEndsWith    ConditionOperator = "endsWith"
	OpRegex       ConditionOperator = "regex"
	OpIn          ConditionOperator = "in"
	OpNotIn       ConditionOperator = "notIn"
	OpGreaterThan ConditionOperator = "greaterThan"
	OpLessThan    ConditionOperator = "lessThan"
)

// Condition is one predicate of a routing rule. A rule applies only when all
// of its conditions hold.
type Condition struct {
	Field         ConditionField    `yaml:"field"`
	Operator      ConditionOperator `yaml:"operator"`
	Value         string            `yaml:"value"` // "in"/"notIn" take a comma-separated list
	CaseSensitive bool              `yaml:"case_sensitive"`
}

// RoutingRule declares how classified requests map to an agent. Rules are
// long-lived and mutated only through the engine's add/remove operations;
// the engine treats a stored rule as immutable.
type RoutingRule struct {
	ID              string      `yaml:"id"` // UUID, assigned by AddRule if empty
	Name            string      `yaml:"name"`
	Enabled         bool        `yaml:"enabled"`
	Priority        int         `yaml:"priority"` // higher evaluates first
	Conditions      []Condition `yaml:"conditions"`
	TargetAgent     string      `yaml:"target_agent"` // exact agent name, or
	TargetKind      AgentKind   `yaml:"target_kind"`  // any agent of this kind
	ConfidenceBoost float64     `yaml:"confidence_boost"`
}

// RuleStats is a point-in-time snapshot of a rule's running statistics.
// UsageCount counts evaluations the rule won; SuccessRate is the fraction of
// recorded outcomes that succeeded (0 when no outcome has been recorded).
type RuleStats struct {
	UsageCount  int64
	Outcomes    int64
	SuccessRate float64
}

// Decision metadata keys and tier values recorded for observability.
const (
	MetaRuleID   = "rule_id"
	MetaRuleName = "rule_name"
	MetaTier     = "tier"

	TierRule      = "rule"      // an explicit rule matched
	TierPreferred = "preferred" // caller's preferred-agent hint honored
	TierDefault   = "default"   // suggested-kind default routing
	TierFallback  = "fallback"  // first available agent
	TierEmergency = "emergency" // evaluation fault, last-resort decision
)

// RoutingDecision is the rule engine's answer for one classification:
// which agent to use, how confident the engine is, and why.
type RoutingDecision struct {
	AgentName  string
	AgentKind  AgentKind
	Intent     string
	Confidence float64 // always in [0,1]
	Reason     string
	IsFallback bool
	Metadata   map[string]string
}
