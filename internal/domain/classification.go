package domain

import "context"

// AgentKind groups agents by the class of work they handle.
type AgentKind string

const (
	KindAnalyzer  AgentKind = "analyzer"
	KindRefactor  AgentKind = "refactor"
	KindFormatter AgentKind = "formatter"
	KindChat      AgentKind = "chat"
)

// IntentClassification is the classifier's verdict on one prompt.
// Created fresh per request and never mutated afterwards.
type IntentClassification struct {
	Intent        string            // short label, e.g. "refactor", "analyze"
	Confidence    float64           // calibrated certainty in [0,1]
	Language      string            // detected language hint, "" if unknown
	SuggestedKind AgentKind         // default routing target when no rule matches
	Context       map[string]string // matchable fields, e.g. detected keywords
}

// ContextValue returns the named context field, or "" when absent.
func (c *IntentClassification) ContextValue(key string) string {
	if c.Context == nil {
		return ""
	}
	return c.Context[key]
}

// Classifier maps free-text input to an IntentClassification.
//
// Implementations must be deterministic for identical input given a fixed
// model version, and must fail with ErrClassifierUnavailable when the model
// cannot run at all. A genuine low-confidence classification is not an error;
// callers rely on the distinction to tell "uncertain" apart from "broken".
type Classifier interface {
	Classify(ctx context.Context, text string) (*IntentClassification, error)
}
