package lookup

import (
	"encoding/json"
	"fmt"
)

// Dependency filter operators. This is the narrower query-building set:
// is_empty, is_checked, and between are visibility-only and are not valid
// here.
const (
	FilterEquals             = "equals"
	FilterNotEquals          = "not_equals"
	FilterGreaterThan        = "greater_than"
	FilterLessThan           = "less_than"
	FilterGreaterThanOrEqual = "greater_than_or_equal"
	FilterLessThanOrEqual    = "less_than_or_equal"
	FilterIn                 = "in"
	FilterNotIn              = "not_in"
	FilterContains           = "contains"
)

var filterSymbols = map[string]string{
	FilterEquals:             "=",
	FilterNotEquals:          "!=",
	FilterGreaterThan:        ">",
	FilterLessThan:           "<",
	FilterGreaterThanOrEqual: ">=",
	FilterLessThanOrEqual:    "<=",
	FilterIn:                 "in",
	FilterNotIn:              "not_in",
	FilterContains:           "like",
}

// DependencyFilter narrows a lookup field's candidate set based on the
// current value of another field on the same form (the "target" field).
// When StaticValue is set it overrides the dependency value.
type DependencyFilter struct {
	Field       string `json:"field"`
	Operator    string `json:"operator"`
	TargetField string `json:"target_field"`
	StaticValue any    `json:"static_value,omitempty"`
}

// NewDependencyFilter rejects operators outside the query-building set at
// construction time.
func NewDependencyFilter(field, operator, targetField string) (DependencyFilter, error) {
	if _, ok := filterSymbols[operator]; !ok {
		return DependencyFilter{}, fmt.Errorf("invalid operator '%s'", operator)
	}
	return DependencyFilter{Field: field, Operator: operator, TargetField: targetField}, nil
}

func (f *DependencyFilter) UnmarshalJSON(data []byte) error {
	type raw DependencyFilter
	var r raw
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	if _, ok := filterSymbols[r.Operator]; !ok {
		return fmt.Errorf("invalid operator '%s'", r.Operator)
	}
	*f = DependencyFilter(r)
	return nil
}

// OperatorSymbol returns the storage-layer symbol for the logical operator.
func (f DependencyFilter) OperatorSymbol() string {
	return filterSymbols[f.Operator]
}

// Constraint is one (field, operator, value) triple for an external query
// executor to apply.
type Constraint struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// BuildConstraint resolves the comparison value (static override wins) and
// returns the query constraint.
func (f DependencyFilter) BuildConstraint(dependencyValue any) Constraint {
	value := dependencyValue
	if f.StaticValue != nil {
		value = f.StaticValue
	}
	return Constraint{Field: f.Field, Operator: f.OperatorSymbol(), Value: value}
}

// WhereClause mirrors a query-builder verb and its positional parameters.
type WhereClause struct {
	Method string `json:"method"`
	Params []any  `json:"params"`
}

// BuildWhereClause maps the filter to a query-builder call: in/not_in use
// the whereIn/whereNotIn verbs with a list value, contains becomes a like
// match wrapped in wildcards, and everything else is a plain where.
func (f DependencyFilter) BuildWhereClause(dependencyValue any) WhereClause {
	value := dependencyValue
	if f.StaticValue != nil {
		value = f.StaticValue
	}

	switch f.Operator {
	case FilterIn:
		return WhereClause{Method: "whereIn", Params: []any{f.Field, value}}
	case FilterNotIn:
		return WhereClause{Method: "whereNotIn", Params: []any{f.Field, value}}
	case FilterContains:
		return WhereClause{Method: "where", Params: []any{f.Field, "like", fmt.Sprintf("%%%v%%", value)}}
	default:
		return WhereClause{Method: "where", Params: []any{f.Field, f.OperatorSymbol(), value}}
	}
}
