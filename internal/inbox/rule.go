package inbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"inbox-backend/internal/condition"
)

// MatchAll requires every condition to pass; MatchAny requires at least one.
const (
	MatchAll = "all"
	MatchAny = "any"
)

// Action is a single automation step executed when a rule matches.
type Action struct {
	Type   string         `json:"type"`
	Config map[string]any `json:"config,omitempty"`
}

// Rule is an inbox automation rule: a set of conditions plus the actions
// to run when an incoming conversation or message matches.
type Rule struct {
	ID             string                `json:"id"`
	InboxID        string                `json:"inbox_id"`
	Name           string                `json:"name"`
	Description    string                `json:"description,omitempty"`
	Priority       int                   `json:"priority"`
	Conditions     []condition.Condition `json:"conditions"`
	ConditionMatch string                `json:"condition_match"`
	Expression     string                `json:"expression,omitempty"`
	Actions        []Action              `json:"actions"`
	IsActive       bool                  `json:"is_active"`
	StopProcessing bool                  `json:"stop_processing"`
	CreatedBy      string                `json:"created_by,omitempty"`
	ExecutionCount int64                 `json:"execution_count"`
	LastExecutedAt *time.Time            `json:"last_executed_at,omitempty"`

	compiled *vm.Program // lazily compiled guard expression
}

// Validate checks the rule at save time so bad operators or a broken guard
// expression are rejected before the rule ever runs.
func (r *Rule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	if r.ConditionMatch != MatchAll && r.ConditionMatch != MatchAny {
		return fmt.Errorf("invalid condition_match '%s'", r.ConditionMatch)
	}
	for _, a := range r.Actions {
		if a.Type == "" {
			return fmt.Errorf("action type is required")
		}
	}
	if r.Expression != "" {
		prog, err := expr.Compile(r.Expression, expr.AsBool())
		if err != nil {
			return fmt.Errorf("compile rule expression: %w", err)
		}
		r.compiled = prog
	}
	return nil
}

// Group builds the condition group implied by the rule's match mode.
func (r *Rule) Group() condition.Group {
	op := condition.GroupAnd
	if r.ConditionMatch == MatchAny {
		op = condition.GroupOr
	}
	return condition.Group{Enabled: true, Operator: op, Conditions: r.Conditions}
}

// Matches evaluates the rule's conditions against the record, then the
// optional guard expression against env. Both must pass.
func (r *Rule) Matches(record map[string]any, env map[string]any) (bool, error) {
	if !r.Group().Evaluate(record) {
		return false, nil
	}
	if r.Expression == "" {
		return true, nil
	}

	if r.compiled == nil {
		prog, err := expr.Compile(r.Expression, expr.AsBool())
		if err != nil {
			return false, fmt.Errorf("compile rule expression: %w", err)
		}
		r.compiled = prog
	}
	result, err := expr.Run(r.compiled, env)
	if err != nil {
		return false, fmt.Errorf("evaluate rule expression: %w", err)
	}
	matched, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("rule expression did not return bool")
	}
	return matched, nil
}

// RuleFromRow builds a Rule from a database row, parsing the JSON-encoded
// conditions and actions columns.
func RuleFromRow(row map[string]any) (*Rule, error) {
	r := &Rule{
		ID:             asString(row["id"]),
		InboxID:        asString(row["inbox_id"]),
		Name:           asString(row["name"]),
		Description:    asString(row["description"]),
		Priority:       asInt(row["priority"]),
		ConditionMatch: asString(row["condition_match"]),
		Expression:     asString(row["expression"]),
		IsActive:       asBool(row["is_active"]),
		StopProcessing: asBool(row["stop_processing"]),
		CreatedBy:      asString(row["created_by"]),
		ExecutionCount: int64(asInt(row["execution_count"])),
	}
	if r.ConditionMatch == "" {
		r.ConditionMatch = MatchAll
	}
	if t, ok := row["last_executed_at"].(time.Time); ok {
		r.LastExecutedAt = &t
	}

	if raw := asJSONText(row["conditions"]); raw != "" {
		if err := json.Unmarshal([]byte(raw), &r.Conditions); err != nil {
			return nil, fmt.Errorf("parse rule %s conditions: %w", r.ID, err)
		}
	}
	if raw := asJSONText(row["actions"]); raw != "" {
		if err := json.Unmarshal([]byte(raw), &r.Actions); err != nil {
			return nil, fmt.Errorf("parse rule %s actions: %w", r.ID, err)
		}
	}
	return r, nil
}

// --- row helpers ---

func asString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func asInt(v any) int {
	switch val := v.(type) {
	case int:
		return val
	case int64:
		return int(val)
	case float64:
		return int(val)
	case json.Number:
		n, _ := val.Int64()
		return int(n)
	default:
		return 0
	}
}

func asBool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case int64:
		return val != 0
	case float64:
		return val != 0
	default:
		return false
	}
}

// asJSONText normalizes a JSON column value to its text form.
func asJSONText(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
