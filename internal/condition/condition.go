package condition

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Operator is a comparison operator for a single condition.
type Operator string

const (
	OpEquals             Operator = "equals"
	OpNotEquals          Operator = "not_equals"
	OpGreaterThan        Operator = "greater_than"
	OpLessThan           Operator = "less_than"
	OpGreaterThanOrEqual Operator = "greater_than_or_equal"
	OpLessThanOrEqual    Operator = "less_than_or_equal"
	OpIn                 Operator = "in"
	OpNotIn              Operator = "not_in"
	OpContains           Operator = "contains"
	OpIsEmpty            Operator = "is_empty"
	OpIsChecked          Operator = "is_checked"
	OpBetween            Operator = "between"
)

var validOperators = map[Operator]bool{
	OpEquals:             true,
	OpNotEquals:          true,
	OpGreaterThan:        true,
	OpLessThan:           true,
	OpGreaterThanOrEqual: true,
	OpLessThanOrEqual:    true,
	OpIn:                 true,
	OpNotIn:              true,
	OpContains:           true,
	OpIsEmpty:            true,
	OpIsChecked:          true,
	OpBetween:            true,
}

// ParseOperator validates an operator string. Unknown operators are rejected
// here, at construction time, so a bad rule can never silently no-op during
// evaluation.
func ParseOperator(s string) (Operator, error) {
	op := Operator(s)
	if !validOperators[op] {
		return "", fmt.Errorf("invalid operator '%s'", s)
	}
	return op, nil
}

// Condition is a single field/operator/value predicate evaluated against a
// record. When FieldValue is set, the comparison target is another field of
// the same record instead of Value.
type Condition struct {
	Field      string   `json:"field"`
	Operator   Operator `json:"operator"`
	Value      any      `json:"value,omitempty"`
	FieldValue string   `json:"field_value,omitempty"`
}

// New creates a condition with a literal comparison value.
func New(field string, operator string, value any) (Condition, error) {
	op, err := ParseOperator(operator)
	if err != nil {
		return Condition{}, err
	}
	return Condition{Field: field, Operator: op, Value: value}, nil
}

// NewFieldComparison creates a condition that compares Field against the
// current value of another record field.
func NewFieldComparison(field string, operator string, otherField string) (Condition, error) {
	op, err := ParseOperator(operator)
	if err != nil {
		return Condition{}, err
	}
	return Condition{Field: field, Operator: op, FieldValue: otherField}, nil
}

// UnmarshalJSON enforces the operator guard on conditions built from
// persisted JSON.
func (c *Condition) UnmarshalJSON(data []byte) error {
	type raw Condition
	var r raw
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	if _, err := ParseOperator(string(r.Operator)); err != nil {
		return err
	}
	*c = Condition(r)
	return nil
}

// Evaluate returns whether the record satisfies the condition. It never
// fails: missing fields and type mismatches resolve to a boolean outcome
// per the operator semantics.
func (c Condition) Evaluate(record map[string]any) bool {
	actual := record[c.Field]

	comparand := c.Value
	if c.FieldValue != "" {
		comparand = record[c.FieldValue]
	}

	switch c.Operator {
	case OpEquals:
		return looseEquals(actual, comparand)
	case OpNotEquals:
		return !looseEquals(actual, comparand)
	case OpGreaterThan:
		a, b, ok := numericPair(actual, comparand)
		return ok && a > b
	case OpLessThan:
		a, b, ok := numericPair(actual, comparand)
		return ok && a < b
	case OpGreaterThanOrEqual:
		a, b, ok := numericPair(actual, comparand)
		return ok && a >= b
	case OpLessThanOrEqual:
		a, b, ok := numericPair(actual, comparand)
		return ok && a <= b
	case OpIn:
		return listContains(comparand, actual)
	case OpNotIn:
		list, ok := toList(comparand)
		return ok && !listMember(list, actual)
	case OpContains:
		return strings.Contains(toString(actual), toString(comparand))
	case OpIsEmpty:
		return actual == nil || toString(actual) == ""
	case OpIsChecked:
		return isChecked(actual)
	case OpBetween:
		return betweenInclusive(actual, comparand)
	}
	return false
}

// looseEquals compares per the value's semantic type: numerically when both
// operands coerce to numbers (so 100 == "100" and true == 1), as strings
// otherwise. An absent value equals nil, "", false and numeric zero, but
// not the string "0".
func looseEquals(a, b any) bool {
	if a == nil {
		return nilLooseEquals(b)
	}
	if b == nil {
		return nilLooseEquals(a)
	}
	if fa, ok := toNumber(a); ok {
		if fb, ok2 := toNumber(b); ok2 {
			return fa == fb
		}
	}
	return toString(a) == toString(b)
}

func nilLooseEquals(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case bool:
		return !val
	default:
		n, ok := toFloat64(v)
		return ok && n == 0
	}
}

func listContains(comparand, actual any) bool {
	list, ok := toList(comparand)
	return ok && listMember(list, actual)
}

func listMember(list []any, actual any) bool {
	for _, item := range list {
		if looseEquals(actual, item) {
			return true
		}
	}
	return false
}

func toList(v any) ([]any, bool) {
	switch list := v.(type) {
	case []any:
		return list, true
	case []string:
		out := make([]any, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

func isChecked(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val == "1"
	default:
		n, ok := toFloat64(v)
		return ok && n == 1
	}
}

func betweenInclusive(actual, comparand any) bool {
	bounds, ok := comparand.(map[string]any)
	if !ok {
		return false
	}
	val, ok := toNumber(actual)
	if !ok {
		return false
	}
	min, okMin := toNumber(bounds["min"])
	max, okMax := toNumber(bounds["max"])
	return okMin && okMax && val >= min && val <= max
}

func numericPair(a, b any) (float64, float64, bool) {
	fa, ok := toNumber(a)
	if !ok {
		return 0, 0, false
	}
	fb, ok := toNumber(b)
	if !ok {
		return 0, 0, false
	}
	return fa, fb, true
}

// toNumber coerces numbers, numeric strings, and booleans to float64.
func toNumber(v any) (float64, bool) {
	if n, ok := toFloat64(v); ok {
		return n, true
	}
	switch val := v.(type) {
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		return n, true
	case json.Number:
		n, err := val.Float64()
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// toFloat64 converts numeric types to float64.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}

func toString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		if val {
			return "1"
		}
		return ""
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	default:
		return fmt.Sprintf("%v", v)
	}
}
