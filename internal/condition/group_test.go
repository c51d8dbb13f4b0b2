package condition

import (
	"encoding/json"
	"testing"
)

func mustCondition(t *testing.T, field, operator string, value any) Condition {
	t.Helper()
	c, err := New(field, operator, value)
	if err != nil {
		t.Fatalf("build condition %s %s: %v", field, operator, err)
	}
	return c
}

func TestDisabledGroup_AlwaysTrue(t *testing.T) {
	g := Disabled()

	if !g.Evaluate(map[string]any{"payment_terms": "installments"}) {
		t.Fatal("expected disabled group to evaluate true")
	}
	if !g.Evaluate(map[string]any{}) {
		t.Fatal("expected disabled group to evaluate true for empty record")
	}
}

func TestGroup_RejectsUnknownCombinator(t *testing.T) {
	_, err := NewGroup("xor", nil)
	if err == nil {
		t.Fatal("expected error for unknown group operator")
	}
}

func TestGroup_EmptyConditionLists(t *testing.T) {
	and, _ := NewGroup("and", nil)
	if !and.Evaluate(map[string]any{}) {
		t.Fatal("expected empty AND group to evaluate true")
	}

	or, _ := NewGroup("or", nil)
	if or.Evaluate(map[string]any{}) {
		t.Fatal("expected empty OR group to evaluate false")
	}
}

func TestGroup_AndSemantics(t *testing.T) {
	g, _ := NewGroup("and", []Condition{
		mustCondition(t, "stage", "equals", "negotiation"),
		mustCondition(t, "amount", "greater_than", 10000),
	})

	if !g.Evaluate(map[string]any{"stage": "negotiation", "amount": 15000}) {
		t.Fatal("expected match when both conditions hold")
	}
	if g.Evaluate(map[string]any{"stage": "prospecting", "amount": 15000}) {
		t.Fatal("expected no match when first condition fails")
	}
	if g.Evaluate(map[string]any{"stage": "negotiation", "amount": 5000}) {
		t.Fatal("expected no match when second condition fails")
	}
}

func TestGroup_OrSemantics(t *testing.T) {
	g, _ := NewGroup("or", []Condition{
		mustCondition(t, "stage", "equals", "proposal"),
		mustCondition(t, "amount", "greater_than", 50000),
	})

	if !g.Evaluate(map[string]any{"stage": "proposal", "amount": 10000}) {
		t.Fatal("expected match when first condition holds")
	}
	if !g.Evaluate(map[string]any{"stage": "negotiation", "amount": 60000}) {
		t.Fatal("expected match when second condition holds")
	}
	if g.Evaluate(map[string]any{"stage": "prospecting", "amount": 10000}) {
		t.Fatal("expected no match when both conditions fail")
	}
}

func TestGroup_Dependencies(t *testing.T) {
	g, _ := NewGroup("and", []Condition{
		mustCondition(t, "stage", "equals", "negotiation"),
		mustCondition(t, "amount", "greater_than", 10000),
		mustCondition(t, "stage", "not_equals", "lost"),
	})

	deps := g.Dependencies()
	if len(deps) != 2 {
		t.Fatalf("expected 2 unique dependencies, got %d: %v", len(deps), deps)
	}
	if deps[0] != "stage" || deps[1] != "amount" {
		t.Fatalf("unexpected dependency order: %v", deps)
	}
}

func TestGroup_JSONRoundTrip(t *testing.T) {
	raw := `{
		"enabled": true,
		"operator": "and",
		"conditions": [
			{"field": "payment_terms", "operator": "equals", "value": "installments"}
		]
	}`

	var g Group
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		t.Fatalf("parse group: %v", err)
	}
	if !g.Enabled {
		t.Fatal("expected enabled group")
	}
	if g.Operator != GroupAnd {
		t.Fatalf("expected and operator, got %s", g.Operator)
	}
	if len(g.Conditions) != 1 {
		t.Fatalf("expected 1 condition, got %d", len(g.Conditions))
	}

	if !g.Evaluate(map[string]any{"payment_terms": "installments"}) {
		t.Fatal("expected match after JSON round-trip")
	}
	if g.Evaluate(map[string]any{"payment_terms": "upfront"}) {
		t.Fatal("expected no match for different value")
	}
}

func TestGroup_EmptyJSONYieldsDisabled(t *testing.T) {
	var g Group
	if err := json.Unmarshal([]byte(`{}`), &g); err != nil {
		t.Fatalf("parse empty group: %v", err)
	}
	if g.Enabled {
		t.Fatal("expected empty JSON to yield a disabled group")
	}
}

func TestGroup_InvalidOperatorInJSONFailsAtParse(t *testing.T) {
	raw := `{
		"enabled": true,
		"operator": "and",
		"conditions": [{"field": "status", "operator": "bogus", "value": 1}]
	}`

	var g Group
	if err := json.Unmarshal([]byte(raw), &g); err == nil {
		t.Fatal("expected parse failure for bogus condition operator")
	}
}

func TestGroup_DisabledSerializesMinimalShape(t *testing.T) {
	out, err := json.Marshal(Disabled())
	if err != nil {
		t.Fatalf("marshal disabled group: %v", err)
	}
	if string(out) != `{"enabled":false}` {
		t.Fatalf("unexpected disabled shape: %s", out)
	}
}
