package condition

import "testing"

func TestNew_RejectsUnknownOperator(t *testing.T) {
	_, err := New("status", "invalid", "active")
	if err == nil {
		t.Fatal("expected error for unknown operator")
	}

	_, err = New("status", "equals", "active")
	if err != nil {
		t.Fatalf("expected equals to be accepted, got %v", err)
	}
}

func TestEvaluate_Equals(t *testing.T) {
	c, _ := New("status", "equals", "active")

	if !c.Evaluate(map[string]any{"status": "active"}) {
		t.Fatal("expected match for status=active")
	}
	if c.Evaluate(map[string]any{"status": "inactive"}) {
		t.Fatal("expected no match for status=inactive")
	}
	if c.Evaluate(map[string]any{}) {
		t.Fatal("expected no match for absent field")
	}
}

func TestEvaluate_EqualsNumericCoercion(t *testing.T) {
	c, _ := New("amount", "equals", float64(100))

	// Integer value in record (common from DB)
	if !c.Evaluate(map[string]any{"amount": 100}) {
		t.Fatal("expected 100 (int) to equal 100.0")
	}
	if !c.Evaluate(map[string]any{"amount": "100"}) {
		t.Fatal("expected \"100\" to equal 100.0")
	}
	if c.Evaluate(map[string]any{"amount": 101}) {
		t.Fatal("expected 101 to differ from 100")
	}
}

func TestEvaluate_EqualsAbsentField(t *testing.T) {
	record := map[string]any{}

	zero, _ := New("discount", "equals", 0)
	if !zero.Evaluate(record) {
		t.Fatal("expected absent field to equal 0")
	}

	empty, _ := New("discount", "equals", "")
	if !empty.Evaluate(record) {
		t.Fatal("expected absent field to equal empty string")
	}

	unchecked, _ := New("discount", "equals", false)
	if !unchecked.Evaluate(record) {
		t.Fatal("expected absent field to equal false")
	}

	// The string "0" is not the number 0
	zeroText, _ := New("discount", "equals", "0")
	if zeroText.Evaluate(record) {
		t.Fatal("expected absent field to differ from \"0\"")
	}

	notZero, _ := New("discount", "not_equals", 0)
	if notZero.Evaluate(record) {
		t.Fatal("expected not_equals 0 to fail for absent field")
	}
}

func TestEvaluate_NotEquals(t *testing.T) {
	c, _ := New("stage", "not_equals", "lost")

	if !c.Evaluate(map[string]any{"stage": "won"}) {
		t.Fatal("expected match for stage=won")
	}
	if c.Evaluate(map[string]any{"stage": "lost"}) {
		t.Fatal("expected no match for stage=lost")
	}
}

func TestEvaluate_NumericOrdering(t *testing.T) {
	gt, _ := New("amount", "greater_than", 10000)
	if !gt.Evaluate(map[string]any{"amount": 15000}) {
		t.Fatal("expected 15000 > 10000")
	}
	if gt.Evaluate(map[string]any{"amount": 5000}) {
		t.Fatal("expected 5000 not > 10000")
	}
	if gt.Evaluate(map[string]any{"amount": "not a number"}) {
		t.Fatal("expected non-numeric value to fail ordering comparison")
	}

	gte, _ := New("amount", "greater_than_or_equal", 100)
	if !gte.Evaluate(map[string]any{"amount": 100}) {
		t.Fatal("expected 100 >= 100")
	}

	lt, _ := New("amount", "less_than", 100)
	if !lt.Evaluate(map[string]any{"amount": 99}) {
		t.Fatal("expected 99 < 100")
	}

	lte, _ := New("amount", "less_than_or_equal", 100)
	if lte.Evaluate(map[string]any{"amount": 101}) {
		t.Fatal("expected 101 not <= 100")
	}
}

func TestEvaluate_In(t *testing.T) {
	c, _ := New("stage", "in", []any{"proposal", "negotiation"})

	if !c.Evaluate(map[string]any{"stage": "proposal"}) {
		t.Fatal("expected proposal to be in list")
	}
	if !c.Evaluate(map[string]any{"stage": "negotiation"}) {
		t.Fatal("expected negotiation to be in list")
	}
	if c.Evaluate(map[string]any{"stage": "prospecting"}) {
		t.Fatal("expected prospecting not in list")
	}
}

func TestEvaluate_NotIn(t *testing.T) {
	c, _ := New("priority", "not_in", []string{"high", "urgent"})

	if !c.Evaluate(map[string]any{"priority": "low"}) {
		t.Fatal("expected low not in list")
	}
	if c.Evaluate(map[string]any{"priority": "urgent"}) {
		t.Fatal("expected urgent in list")
	}
}

func TestEvaluate_Contains(t *testing.T) {
	c, _ := New("description", "contains", "urgent")

	if !c.Evaluate(map[string]any{"description": "This is an urgent matter"}) {
		t.Fatal("expected substring match")
	}
	if c.Evaluate(map[string]any{"description": "Regular issue"}) {
		t.Fatal("expected no substring match")
	}
}

func TestEvaluate_IsEmpty(t *testing.T) {
	c, _ := New("notes", "is_empty", nil)

	if !c.Evaluate(map[string]any{"notes": ""}) {
		t.Fatal("expected empty string to be empty")
	}
	if !c.Evaluate(map[string]any{"notes": nil}) {
		t.Fatal("expected nil to be empty")
	}
	if !c.Evaluate(map[string]any{}) {
		t.Fatal("expected absent field to be empty")
	}
	if c.Evaluate(map[string]any{"notes": "Some text"}) {
		t.Fatal("expected non-empty string not to be empty")
	}
}

func TestEvaluate_IsChecked(t *testing.T) {
	c, _ := New("agreed_to_terms", "is_checked", nil)

	for _, v := range []any{true, 1, "1", float64(1)} {
		if !c.Evaluate(map[string]any{"agreed_to_terms": v}) {
			t.Fatalf("expected %v (%T) to be checked", v, v)
		}
	}
	for _, v := range []any{false, 0, "0", nil, "true"} {
		if c.Evaluate(map[string]any{"agreed_to_terms": v}) {
			t.Fatalf("expected %v (%T) not to be checked", v, v)
		}
	}
	if c.Evaluate(map[string]any{}) {
		t.Fatal("expected absent field not to be checked")
	}
}

func TestEvaluate_BetweenInclusive(t *testing.T) {
	c, _ := New("amount", "between", map[string]any{"min": 1000, "max": 5000})

	if !c.Evaluate(map[string]any{"amount": 3000}) {
		t.Fatal("expected 3000 in [1000,5000]")
	}
	if !c.Evaluate(map[string]any{"amount": 1000}) {
		t.Fatal("expected lower bound to be inclusive")
	}
	if !c.Evaluate(map[string]any{"amount": 5000}) {
		t.Fatal("expected upper bound to be inclusive")
	}
	if c.Evaluate(map[string]any{"amount": 999}) {
		t.Fatal("expected 999 outside range")
	}
	if c.Evaluate(map[string]any{"amount": 5001}) {
		t.Fatal("expected 5001 outside range")
	}
}

func TestEvaluate_FieldToFieldComparison(t *testing.T) {
	c, err := NewFieldComparison("end_value", "greater_than", "start_value")
	if err != nil {
		t.Fatalf("build condition: %v", err)
	}

	if !c.Evaluate(map[string]any{"start_value": 100, "end_value": 200}) {
		t.Fatal("expected end_value > start_value")
	}
	if c.Evaluate(map[string]any{"start_value": 200, "end_value": 100}) {
		t.Fatal("expected reversed values not to match")
	}
}
