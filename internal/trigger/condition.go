package trigger

import (
	"fmt"
)

// Operator is a condition comparison operator.
type Operator string

const (
	OpEq  Operator = "eq"
	OpNe  Operator = "ne"
	OpGt  Operator = "gt"
	OpGte Operator = "gte"
	OpLt  Operator = "lt"
	OpLte Operator = "lte"
	OpIn  Operator = "in"
	OpNin Operator = "nin"
)

// Condition is one field comparison on an event. A rule matches only if all
// its conditions evaluate true; an empty condition list matches
// unconditionally.
type Condition struct {
	Field    string      `json:"field"`
	Operator Operator    `json:"operator"`
	Value    interface{} `json:"value"`
}

// Validate checks a condition against the event schema for the given event
// type. Called at rule registration time so bad rules never reach the
// evaluation path.
func (c Condition) Validate(eventType EventType) error {
	if c.Field == "" {
		return fmt.Errorf("condition field is required")
	}
	if !ValidField(eventType, c.Field) {
		return fmt.Errorf("field %q is not defined for event type %q", c.Field, eventType)
	}
	switch c.Operator {
	case OpEq, OpNe:
		if c.Value == nil {
			return fmt.Errorf("condition on %q requires a value", c.Field)
		}
	case OpGt, OpGte, OpLt, OpLte:
		if _, ok := toFloat(c.Value); !ok {
			return fmt.Errorf("operator %q on %q requires a numeric value", c.Operator, c.Field)
		}
	case OpIn, OpNin:
		if _, ok := toSlice(c.Value); !ok {
			return fmt.Errorf("operator %q on %q requires a list value", c.Operator, c.Field)
		}
	default:
		return fmt.Errorf("unknown operator %q", c.Operator)
	}
	return nil
}

// Evaluate applies the condition to an event. Pure: no state is read or
// written besides the event itself. A field the event cannot resolve fails
// the condition.
func (c Condition) Evaluate(e Event) bool {
	actual, ok := resolveField(e, c.Field)
	if !ok {
		return false
	}

	switch c.Operator {
	case OpEq:
		return valuesEqual(actual, c.Value)
	case OpNe:
		return !valuesEqual(actual, c.Value)
	case OpGt, OpGte, OpLt, OpLte:
		a, aok := toFloat(actual)
		b, bok := toFloat(c.Value)
		if !aok || !bok {
			return false
		}
		switch c.Operator {
		case OpGt:
			return a > b
		case OpGte:
			return a >= b
		case OpLt:
			return a < b
		default:
			return a <= b
		}
	case OpIn:
		list, ok := toSlice(c.Value)
		if !ok {
			return false
		}
		for _, v := range list {
			if valuesEqual(actual, v) {
				return true
			}
		}
		return false
	case OpNin:
		list, ok := toSlice(c.Value)
		if !ok {
			return false
		}
		for _, v := range list {
			if valuesEqual(actual, v) {
				return false
			}
		}
		return true
	}
	return false
}

// matchesAll reports whether the event satisfies every condition.
func matchesAll(conditions []Condition, e Event) bool {
	for _, c := range conditions {
		if !c.Evaluate(e) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b interface{}) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return as == bs
	}
	return a == b
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func toSlice(v interface{}) ([]interface{}, bool) {
	switch s := v.(type) {
	case []interface{}:
		return s, true
	case []string:
		out := make([]interface{}, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out, true
	case []float64:
		out := make([]interface{}, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out, true
	case []int:
		out := make([]interface{}, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out, true
	}
	return nil, false
}
