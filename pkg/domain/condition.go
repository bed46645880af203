package domain

import (
	"fmt"
	"reflect"
	"strings"
)

// Operator identifies a condition comparison.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpExists      Operator = "exists"
	OpNotExists   Operator = "not_exists"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
)

// KnownOperator reports whether op is one of the supported operators.
func KnownOperator(op Operator) bool {
	switch op {
	case OpEquals, OpNotEquals, OpContains, OpNotContains, OpGreaterThan,
		OpLessThan, OpExists, OpNotExists, OpIn, OpNotIn:
		return true
	}
	return false
}

// Condition is a (field, operator, value) predicate evaluated against a
// journey context map.
type Condition struct {
	Field    string   `json:"field" yaml:"field" mapstructure:"field"`
	Operator Operator `json:"operator" yaml:"operator" mapstructure:"operator"`
	Value    any      `json:"value,omitempty" yaml:"value,omitempty" mapstructure:"value"`
}

// ConditionError reports the first condition that rejected entry into a step.
type ConditionError struct {
	StepID    string
	Condition Condition
}

func (e *ConditionError) Error() string {
	return fmt.Sprintf("step %s: condition not met: %s %s %v",
		e.StepID, e.Condition.Field, e.Condition.Operator, e.Condition.Value)
}

// Evaluate checks the condition against the given context.
func (c Condition) Evaluate(ctx map[string]any) bool {
	val, ok := ctx[c.Field]

	switch c.Operator {
	case OpExists:
		return ok
	case OpNotExists:
		return !ok
	}

	if !ok {
		return false
	}

	switch c.Operator {
	case OpEquals:
		return looseEqual(val, c.Value)
	case OpNotEquals:
		return !looseEqual(val, c.Value)
	case OpContains:
		return containsValue(val, c.Value)
	case OpNotContains:
		return !containsValue(val, c.Value)
	case OpGreaterThan:
		a, aok := toFloat(val)
		b, bok := toFloat(c.Value)
		return aok && bok && a > b
	case OpLessThan:
		a, aok := toFloat(val)
		b, bok := toFloat(c.Value)
		return aok && bok && a < b
	case OpIn:
		return memberOf(c.Value, val)
	case OpNotIn:
		return !memberOf(c.Value, val)
	}
	return false
}

// EvaluateAll checks every condition of a step against the context.
// Conditions combine with logical AND; the first failure is returned as a
// *ConditionError naming the offending predicate.
func EvaluateAll(stepID string, conds []Condition, ctx map[string]any) error {
	for _, c := range conds {
		if !c.Evaluate(ctx) {
			return &ConditionError{StepID: stepID, Condition: c}
		}
	}
	return nil
}

// looseEqual compares values with numeric coercion, so 5 == 5.0 holds
// regardless of how the context value was decoded.
func looseEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return reflect.DeepEqual(a, b)
}

// containsValue covers substring matching for strings and membership for slices.
func containsValue(haystack, needle any) bool {
	switch h := haystack.(type) {
	case string:
		return strings.Contains(h, fmt.Sprintf("%v", needle))
	}
	rv := reflect.ValueOf(haystack)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		for i := 0; i < rv.Len(); i++ {
			if looseEqual(rv.Index(i).Interface(), needle) {
				return true
			}
		}
	}
	return false
}

// memberOf reports whether needle is an element of the set value, which may
// be a slice or a comma-separated string.
func memberOf(set, needle any) bool {
	switch s := set.(type) {
	case string:
		for _, part := range strings.Split(s, ",") {
			if strings.TrimSpace(part) == fmt.Sprintf("%v", needle) {
				return true
			}
		}
		return false
	}
	rv := reflect.ValueOf(set)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		for i := 0; i < rv.Len(); i++ {
			if looseEqual(rv.Index(i).Interface(), needle) {
				return true
			}
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
