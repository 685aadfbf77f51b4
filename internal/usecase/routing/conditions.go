package routing

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"switchboard/internal/domain"
)

// fieldValue resolves a condition field against a classification. The typed
// fields (intent, confidence, language, suggested_kind) are first-class;
// "context.<key>" reaches into the classification's context map.
func fieldValue(cls *domain.IntentClassification, field domain.ConditionField) (string, bool) {
	switch field {
	case domain.FieldIntent:
		return cls.Intent, true
	case domain.FieldConfidence:
		return strconv.FormatFloat(cls.Confidence, 'f', -1, 64), true
	case domain.FieldLanguage:
		return cls.Language, true
	case domain.FieldSuggestedKind:
		return string(cls.SuggestedKind), true
	}
	if key, ok := strings.CutPrefix(string(field), domain.ContextFieldPrefix); ok {
		if cls.Context == nil {
			return "", false
		}
		v, ok := cls.Context[key]
		return v, ok
	}
	return "", false
}

// matchCondition evaluates one condition against the classification.
// An absent field never matches. A malformed condition (bad regex, non-numeric
// operand for a numeric operator) returns an error so the engine can log and
// skip the owning rule.
func matchCondition(cond domain.Condition, cls *domain.IntentClassification) (bool, error) {
	value, ok := fieldValue(cls, cond.Field)
	if !ok {
		return false, nil
	}

	switch cond.Operator {
	case domain.OpGreaterThan, domain.OpLessThan:
		return matchNumeric(cond, value)
	case domain.OpRegex:
		pattern := cond.Value
		if !cond.CaseSensitive {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, fmt.Errorf("compile regex %q: %w", cond.Value, err)
		}
		return re.MatchString(value), nil
	}

	want := cond.Value
	if !cond.CaseSensitive {
		value = strings.ToLower(value)
		want = strings.ToLower(want)
	}

	switch cond.Operator {
	case domain.OpEquals:
		return value == want, nil
	case domain.OpContains:
		return strings.Contains(value, want), nil
	case domain.OpStartsWith:
		return strings.HasPrefix(value, want), nil
	case domain.OpEndsWith:
		return strings.HasSuffix(value, want), nil
	case domain.OpIn:
		return inList(value, want), nil
	case domain.OpNotIn:
		return !inList(value, want), nil
	default:
		return false, fmt.Errorf("unknown operator %q", cond.Operator)
	}
}

func matchNumeric(cond domain.Condition, value string) (bool, error) {
	have, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return false, fmt.Errorf("field %q is not numeric: %w", cond.Field, err)
	}
	want, err := strconv.ParseFloat(strings.TrimSpace(cond.Value), 64)
	if err != nil {
		return false, fmt.Errorf("operand %q is not numeric: %w", cond.Value, err)
	}
	if cond.Operator == domain.OpGreaterThan {
		return have > want, nil
	}
	return have < want, nil
}

func inList(value, list string) bool {
	for _, item := range strings.Split(list, ",") {
		if strings.TrimSpace(item) == value {
			return true
		}
	}
	return false
}

// ruleMatches reports whether every condition of the rule holds. Condition
// evaluation is pure; the first error aborts the rule.
func ruleMatches(rule *domain.RoutingRule, cls *domain.IntentClassification) (bool, error) {
	for _, cond := range rule.Conditions {
		ok, err := matchCondition(cond, cls)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
