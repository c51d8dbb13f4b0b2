package validation

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestNone_HasNoRules(t *testing.T) {
	r := None()
	if r.HasRules() {
		t.Fatal("expected empty rule set")
	}
	if r.IsRequired() {
		t.Fatal("expected not required")
	}
}

func TestAddRules_DedupsAndReturnsNewValue(t *testing.T) {
	original := NewRuleSet([]string{"string", "max:255"}, nil, nil)

	updated := original.AddRules("required", "max:255")

	if !reflect.DeepEqual(updated.Rules(), []string{"string", "max:255", "required"}) {
		t.Fatalf("unexpected rules: %v", updated.Rules())
	}
	// Original is never altered.
	if !reflect.DeepEqual(original.Rules(), []string{"string", "max:255"}) {
		t.Fatalf("original mutated: %v", original.Rules())
	}
}

func TestHasRule_MatchesParameterizedRules(t *testing.T) {
	r := NewRuleSet([]string{"string", "max:255"}, nil, nil)

	if !r.HasRule("max") {
		t.Fatal("expected max to match max:255")
	}
	if !r.HasRule("string") {
		t.Fatal("expected exact match")
	}
	if r.HasRule("min") {
		t.Fatal("expected min to be absent")
	}
}

func TestRemoveRule_DropsParameterizedForms(t *testing.T) {
	r := NewRuleSet([]string{"required", "string", "max:255"}, nil, nil)

	updated := r.RemoveRule("max")

	if !reflect.DeepEqual(updated.Rules(), []string{"required", "string"}) {
		t.Fatalf("unexpected rules: %v", updated.Rules())
	}
	if len(r.Rules()) != 3 {
		t.Fatal("original mutated")
	}
}

func TestMerge_LaterTakesPrecedence(t *testing.T) {
	base := NewRuleSet([]string{"string"}, map[string]string{"string": "must be text"}, nil)
	extra := NewRuleSet([]string{"string", "max:100"}, map[string]string{"string": "text only"}, nil)

	merged := base.Merge(extra)

	if !reflect.DeepEqual(merged.Rules(), []string{"string", "max:100"}) {
		t.Fatalf("unexpected rules: %v", merged.Rules())
	}
	if merged.Messages()["string"] != "text only" {
		t.Fatalf("expected later message to win, got %v", merged.Messages())
	}
}

func TestRequiredAndUnique(t *testing.T) {
	r := NewRuleSet([]string{"required", "unique:contacts,email", "email"}, nil, nil)

	if !r.IsRequired() {
		t.Fatal("expected required")
	}
	if !r.IsUnique() {
		t.Fatal("expected unique")
	}
	if got := r.RequiredRules(); len(got) != 1 || got[0] != "required" {
		t.Fatalf("unexpected required rules: %v", got)
	}
}

func TestForFieldType_Percent(t *testing.T) {
	r := ForFieldType("percent", nil)
	if !reflect.DeepEqual(r.Rules(), []string{"numeric", "min:0", "max:100"}) {
		t.Fatalf("unexpected percent rules: %v", r.Rules())
	}
}

func TestForFieldType_TextWithSettings(t *testing.T) {
	r := ForFieldType("text", map[string]any{
		"min_length": float64(3),
		"max_length": float64(50),
	})
	if !reflect.DeepEqual(r.Rules(), []string{"string", "min:3", "max:50"}) {
		t.Fatalf("unexpected text rules: %v", r.Rules())
	}
}

func TestForFieldType_File(t *testing.T) {
	r := ForFieldType("file", map[string]any{
		"max_file_size":      float64(2048),
		"allowed_file_types": []any{"pdf", "docx"},
	})
	if !reflect.DeepEqual(r.Rules(), []string{"file", "max:2048", "mimes:pdf,docx"}) {
		t.Fatalf("unexpected file rules: %v", r.Rules())
	}
}

func TestForFieldType_Misc(t *testing.T) {
	cases := map[string][]string{
		"email":       {"email"},
		"url":         {"url"},
		"checkbox":    {"boolean"},
		"toggle":      {"boolean"},
		"lookup":      {"integer"},
		"time":        {"date_format:H:i:s"},
		"multiselect": {"array"},
	}
	for fieldType, want := range cases {
		if got := ForFieldType(fieldType, nil).Rules(); !reflect.DeepEqual(got, want) {
			t.Fatalf("field type %s: expected %v, got %v", fieldType, want, got)
		}
	}

	if ForFieldType("unknown", nil).HasRules() {
		t.Fatal("expected no rules for unknown field type")
	}
}

func TestRuleSetJSONRoundTrip(t *testing.T) {
	r := NewRuleSet(
		[]string{"numeric", "min:0"},
		map[string]string{"min": "must be non-negative"},
		map[string]any{"scale": float64(2)},
	)

	out, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("inspect: %v", err)
	}
	for _, key := range []string{"rules", "messages", "custom_validation"} {
		if _, ok := decoded[key]; !ok {
			t.Fatalf("expected %s key in JSON, got %s", key, out)
		}
	}

	var back RuleSet
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(back.Rules(), r.Rules()) {
		t.Fatalf("rules changed in round-trip: %v", back.Rules())
	}
	if back.Messages()["min"] != "must be non-negative" {
		t.Fatalf("messages lost in round-trip: %v", back.Messages())
	}
}
