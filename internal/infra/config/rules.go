package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"switchboard/internal/domain"
)

// ruleFile is the on-disk shape of a routing rule set.
type ruleFile struct {
	Rules []*domain.RoutingRule `yaml:"rules"`
}

// LoadRules reads routing rules from the YAML file at path. Rules missing an
// ID keep it empty; the engine assigns one on registration. A rule with no
// target is rejected here so a bad file is caught at load time, not at
// evaluation time.
func LoadRules(path string) ([]*domain.RoutingRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}

	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}

	ve := &ValidationError{}
	seen := make(map[string]bool)
	for i, rule := range rf.Rules {
		if rule == nil {
			ve.Add("rules[%d] is empty", i)
			continue
		}
		if rule.Name == "" {
			ve.Add("rules[%d].name must not be empty", i)
		}
		if rule.TargetAgent == "" && rule.TargetKind == "" {
			ve.Add("rules[%d] (%s) needs target_agent or target_kind", i, rule.Name)
		}
		if rule.ID != "" {
			if seen[rule.ID] {
				ve.Add("rules[%d] duplicates id %q", i, rule.ID)
			}
			seen[rule.ID] = true
		}
		for j, cond := range rule.Conditions {
			if cond.Field == "" {
				ve.Add("rules[%d].conditions[%d].field must not be empty", i, j)
			}
			if cond.Operator == "" {
				ve.Add("rules[%d].conditions[%d].operator must not be empty", i, j)
			}
		}
	}
	if ve.HasErrors() {
		return nil, ve
	}
	return rf.Rules, nil
}
