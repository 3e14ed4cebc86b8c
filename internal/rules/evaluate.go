package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var knownOperators = map[Operator]bool{
	OpEqual: true, OpNotEqual: true, OpLess: true, OpGreater: true,
	OpLessEqual: true, OpGreaterEqual: true, OpIn: true, OpNotIn: true,
	OpContains: true, OpMatchesRegex: true,
}

func isKnownOperator(op Operator) bool { return knownOperators[op] }

// compileRegex compiles pattern using the POSIX-extended flavor spec §6
// names, the simplest stdlib match for "a fixed flavor" with no
// corpus-grounded third-party regex engine to reach for instead.
func compileRegex(pattern string) (*regexp.Regexp, error) {
	return regexp.CompilePOSIX(pattern)
}

func evaluateRule(rule Rule, proj Projection) bool {
	if len(rule.Conditions) == 0 {
		return false
	}
	if rule.Logic == LogicOr {
		for _, cond := range rule.Conditions {
			if evaluateCondition(cond, proj) {
				return true
			}
		}
		return false
	}
	for _, cond := range rule.Conditions {
		if !evaluateCondition(cond, proj) {
			return false
		}
	}
	return true
}

// evaluateCondition implements spec §4.9's absent-field semantics: a
// field missing from proj evaluates equality/membership/comparison as
// false and "!=" against a non-null value as true.
func evaluateCondition(cond Condition, proj Projection) bool {
	value, present := proj.Get(cond.Field)
	if !present {
		return cond.Operator == OpNotEqual
	}

	switch cond.Operator {
	case OpEqual:
		return compareEqual(value, cond.Value)
	case OpNotEqual:
		return !compareEqual(value, cond.Value)
	case OpLess, OpGreater, OpLessEqual, OpGreaterEqual:
		return compareOrdered(value, cond.Value, cond.Operator)
	case OpIn:
		return containsAny(cond.Values, cond.Value, value)
	case OpNotIn:
		return !containsAny(cond.Values, cond.Value, value)
	case OpContains:
		s, ok := value.(string)
		return ok && strings.Contains(s, cond.Value)
	case OpMatchesRegex:
		s, ok := value.(string)
		if !ok {
			return false
		}
		re, err := compileRegex(cond.Value)
		if err != nil {
			return false // unreachable once Validate has run
		}
		return re.MatchString(s)
	default:
		return false
	}
}

func compareEqual(value interface{}, raw string) bool {
	switch v := value.(type) {
	case bool:
		b, err := strconv.ParseBool(raw)
		return err == nil && v == b
	case float64:
		f, err := strconv.ParseFloat(raw, 64)
		return err == nil && v == f
	case string:
		return v == raw
	default:
		return fmt.Sprintf("%v", v) == raw
	}
}

func compareOrdered(value interface{}, raw string, op Operator) bool {
	f, ok := value.(float64)
	if !ok {
		return false
	}
	target, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return false
	}
	switch op {
	case OpLess:
		return f < target
	case OpGreater:
		return f > target
	case OpLessEqual:
		return f <= target
	case OpGreaterEqual:
		return f >= target
	default:
		return false
	}
}

func containsAny(list []string, single string, value interface{}) bool {
	candidates := list
	if len(candidates) == 0 && single != "" {
		candidates = []string{single}
	}
	s := fmt.Sprintf("%v", value)
	for _, c := range candidates {
		if c == s {
			return true
		}
	}
	return false
}
