package condition

import (
	"encoding/json"
	"fmt"
)

// GroupOperator combines the results of a group's conditions.
type GroupOperator string

const (
	GroupAnd GroupOperator = "and"
	GroupOr  GroupOperator = "or"
)

// Group is an AND/OR combination of conditions with an enable flag.
// A disabled group always evaluates to true (always visible / always
// matches) and is re-evaluated on every event, never mutated.
type Group struct {
	Enabled    bool
	Operator   GroupOperator
	Conditions []Condition
}

// Disabled returns an inactive group that evaluates to true for any record.
func Disabled() Group {
	return Group{Enabled: false, Operator: GroupAnd}
}

// NewGroup creates an enabled group, rejecting unknown combinators.
func NewGroup(operator string, conditions []Condition) (Group, error) {
	op := GroupOperator(operator)
	if op != GroupAnd && op != GroupOr {
		return Group{}, fmt.Errorf("invalid operator '%s'", operator)
	}
	return Group{Enabled: true, Operator: op, Conditions: conditions}, nil
}

// Evaluate walks the condition list, short-circuiting per AND/OR semantics.
// An empty AND group is true, an empty OR group is false.
func (g Group) Evaluate(record map[string]any) bool {
	if !g.Enabled {
		return true
	}
	if g.Operator == GroupOr {
		for _, c := range g.Conditions {
			if c.Evaluate(record) {
				return true
			}
		}
		return false
	}
	for _, c := range g.Conditions {
		if !c.Evaluate(record) {
			return false
		}
	}
	return true
}

// Dependencies returns the de-duplicated field names referenced by the
// group's conditions, in first-seen order. Callers use this to know which
// record fields to watch before evaluation is meaningful.
func (g Group) Dependencies() []string {
	seen := make(map[string]bool)
	var fields []string
	for _, c := range g.Conditions {
		if !seen[c.Field] {
			seen[c.Field] = true
			fields = append(fields, c.Field)
		}
	}
	return fields
}

type groupJSON struct {
	Enabled    bool        `json:"enabled"`
	Operator   string      `json:"operator,omitempty"`
	Conditions []Condition `json:"conditions,omitempty"`
}

// UnmarshalJSON builds a group from its persisted shape. An empty object
// (or enabled=false) yields a disabled group; an enabled group with an
// out-of-enum operator is rejected.
func (g *Group) UnmarshalJSON(data []byte) error {
	var raw groupJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if !raw.Enabled {
		*g = Disabled()
		return nil
	}
	if raw.Operator == "" {
		raw.Operator = string(GroupAnd)
	}
	group, err := NewGroup(raw.Operator, raw.Conditions)
	if err != nil {
		return err
	}
	*g = group
	return nil
}

// MarshalJSON preserves the stored shape: a disabled group serializes as
// {"enabled": false} with no conditions.
func (g Group) MarshalJSON() ([]byte, error) {
	if !g.Enabled {
		return json.Marshal(groupJSON{Enabled: false})
	}
	return json.Marshal(groupJSON{
		Enabled:    true,
		Operator:   string(g.Operator),
		Conditions: g.Conditions,
	})
}
