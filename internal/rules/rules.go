// Package rules implements the declarative rules engine (spec §4.9):
// named, priority-ordered rules whose conditions are evaluated against a
// field projection of a duplicate group's member, yielding a keep/delete
// action.
package rules

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/ohtostado/duperscooper/internal/errs"
)

// Action is the verdict a rule or the default action assigns to an item.
type Action string

const (
	ActionKeep   Action = "keep"
	ActionDelete Action = "delete"
)

// Logic combines a rule's conditions.
type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

// Operator is one of the ten comparison/membership operators spec §4.9
// names.
type Operator string

const (
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
	OpLess         Operator = "<"
	OpGreater      Operator = ">"
	OpLessEqual    Operator = "<="
	OpGreaterEqual Operator = ">="
	OpIn           Operator = "in"
	OpNotIn        Operator = "not-in"
	OpContains     Operator = "contains"
	OpMatchesRegex Operator = "matches-regex"
)

// Condition is one (field, operator, value) triple.
type Condition struct {
	Field    string   `yaml:"field"`
	Operator Operator `yaml:"operator"`
	Value    string   `yaml:"value"`
	Values   []string `yaml:"values,omitempty"` // for in/not-in
}

// Rule is named, priority-ordered, and assigns Action when its Conditions
// evaluate true under Logic.
type Rule struct {
	Name       string      `yaml:"name"`
	Priority   int         `yaml:"priority"`
	Action     Action      `yaml:"action"`
	Logic      Logic       `yaml:"logic"`
	Conditions []Condition `yaml:"conditions"`
}

// Config is a user-provided declarative rule file: an ordered list of
// rules plus the fallback action when none match.
type Config struct {
	DefaultAction Action `yaml:"default_action"`
	Rules         []Rule `yaml:"rules"`
}

// LoadConfig reads and validates a YAML rule file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Rules(fmt.Errorf("failed to read rule config %s: %w", path, err))
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errs.Rules(fmt.Errorf("failed to parse rule config %s: %w", path, err))
	}

	if cfg.DefaultAction == "" {
		cfg.DefaultAction = ActionKeep
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every rule's fields, operators, and regex patterns
// compile, per spec §7's "rules" category: fatal before execution with a
// precise diagnostic.
func Validate(cfg *Config) error {
	if cfg.DefaultAction != ActionKeep && cfg.DefaultAction != ActionDelete {
		return errs.Rules(fmt.Errorf("default_action must be keep or delete, got %q", cfg.DefaultAction))
	}

	for _, rule := range cfg.Rules {
		if rule.Action != ActionKeep && rule.Action != ActionDelete {
			return errs.Rules(fmt.Errorf("rule %q: action must be keep or delete, got %q", rule.Name, rule.Action))
		}
		if rule.Logic != LogicAnd && rule.Logic != LogicOr {
			return errs.Rules(fmt.Errorf("rule %q: logic must be AND or OR, got %q", rule.Name, rule.Logic))
		}
		for _, cond := range rule.Conditions {
			if !isKnownField(cond.Field) {
				return errs.Rules(fmt.Errorf("rule %q: unknown field %q", rule.Name, cond.Field))
			}
			if !isKnownOperator(cond.Operator) {
				return errs.Rules(fmt.Errorf("rule %q: unknown operator %q", rule.Name, cond.Operator))
			}
			if cond.Operator == OpMatchesRegex {
				if _, err := compileRegex(cond.Value); err != nil {
					return errs.Rules(fmt.Errorf("rule %q: invalid regex %q: %w", rule.Name, cond.Value, err))
				}
			}
		}
	}
	return nil
}

// SortedRules returns cfg.Rules sorted by priority descending, the order
// ResolveAction consults them in.
func (cfg *Config) SortedRules() []Rule {
	out := make([]Rule, len(cfg.Rules))
	copy(out, cfg.Rules)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}

// BuiltinStrategy returns the rule set for one of the named built-in
// strategies (spec §4.9). format is only used by "keep-format".
func BuiltinStrategy(strategy, format string) (*Config, error) {
	switch strategy {
	case "eliminate-duplicates":
		return &Config{
			DefaultAction: ActionDelete,
			Rules: []Rule{{
				Name: "eliminate-duplicates", Priority: 100, Action: ActionKeep, Logic: LogicAnd,
				Conditions: []Condition{{Field: FieldIsBest, Operator: OpEqual, Value: "true"}},
			}},
		}, nil
	case "keep-lossless":
		return &Config{
			DefaultAction: ActionDelete,
			Rules: []Rule{{
				Name: "keep-lossless", Priority: 100, Action: ActionKeep, Logic: LogicAnd,
				Conditions: []Condition{{Field: FieldIsLossless, Operator: OpEqual, Value: "true"}},
			}},
		}, nil
	case "keep-format":
		if format == "" {
			return nil, errs.Rules(fmt.Errorf("keep-format strategy requires a format"))
		}
		return &Config{
			DefaultAction: ActionDelete,
			Rules: []Rule{{
				Name: "keep-format", Priority: 100, Action: ActionKeep, Logic: LogicAnd,
				Conditions: []Condition{{Field: FieldFormat, Operator: OpEqual, Value: format}},
			}},
		}, nil
	default:
		return nil, errs.Rules(fmt.Errorf("unknown built-in rule strategy %q", strategy))
	}
}

// ResolveAction evaluates proj against cfg's rules in priority order,
// returning the first matching rule's action or the configuration's
// default action if none match.
func ResolveAction(cfg *Config, proj Projection) Action {
	for _, rule := range cfg.SortedRules() {
		if evaluateRule(rule, proj) {
			return rule.Action
		}
	}
	return cfg.DefaultAction
}
