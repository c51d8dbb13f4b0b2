package validation

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RuleSet is declarative validation metadata for a single field: an ordered
// list of rule strings (e.g. "numeric", "max:255"), custom error messages
// keyed by rule name, and free-form custom validation config. It is not an
// evaluator; an external validation layer consumes it.
//
// RuleSet is an immutable value object: every transform returns a new value
// and never alters the original.
type RuleSet struct {
	rules    []string
	messages map[string]string
	custom   map[string]any
}

// None returns an empty rule set.
func None() RuleSet {
	return RuleSet{}
}

// NewRuleSet builds a rule set from its parts.
func NewRuleSet(rules []string, messages map[string]string, custom map[string]any) RuleSet {
	return RuleSet{
		rules:    dedup(nil, rules),
		messages: copyStringMap(messages),
		custom:   copyAnyMap(custom),
	}
}

// Rules returns the ordered rule strings.
func (r RuleSet) Rules() []string {
	out := make([]string, len(r.rules))
	copy(out, r.rules)
	return out
}

// Messages returns the custom error messages keyed by rule name.
func (r RuleSet) Messages() map[string]string {
	return copyStringMap(r.messages)
}

// CustomValidation returns the custom validation configuration.
func (r RuleSet) CustomValidation() map[string]any {
	return copyAnyMap(r.custom)
}

// HasRules reports whether any rules are defined.
func (r RuleSet) HasRules() bool {
	return len(r.rules) > 0
}

// HasRule reports whether a rule is present, matching parameterized rules
// by the name before the colon (HasRule("max") matches "max:255").
func (r RuleSet) HasRule(name string) bool {
	for _, rule := range r.rules {
		if rule == name || strings.HasPrefix(rule, name+":") {
			return true
		}
	}
	return false
}

// AddRules returns a new rule set with the given rules appended,
// de-duplicated against the existing list.
func (r RuleSet) AddRules(rules ...string) RuleSet {
	return RuleSet{
		rules:    dedup(r.rules, rules),
		messages: r.messages,
		custom:   r.custom,
	}
}

// RemoveRule returns a new rule set without the named rule, including its
// parameterized forms.
func (r RuleSet) RemoveRule(name string) RuleSet {
	var kept []string
	for _, rule := range r.rules {
		if rule == name || strings.HasPrefix(rule, name+":") {
			continue
		}
		kept = append(kept, rule)
	}
	return RuleSet{rules: kept, messages: r.messages, custom: r.custom}
}

// Merge combines two rule sets; the other set's messages and custom config
// take precedence on key collisions.
func (r RuleSet) Merge(other RuleSet) RuleSet {
	messages := copyStringMap(r.messages)
	for k, v := range other.messages {
		if messages == nil {
			messages = map[string]string{}
		}
		messages[k] = v
	}
	custom := copyAnyMap(r.custom)
	for k, v := range other.custom {
		if custom == nil {
			custom = map[string]any{}
		}
		custom[k] = v
	}
	return RuleSet{
		rules:    dedup(r.rules, other.rules),
		messages: messages,
		custom:   custom,
	}
}

// RequiredRules returns the required-family rules.
func (r RuleSet) RequiredRules() []string {
	var out []string
	for _, rule := range r.rules {
		if rule == "required" || strings.HasPrefix(rule, "required_") {
			out = append(out, rule)
		}
	}
	return out
}

// IsRequired reports whether the field carries the plain required rule.
func (r RuleSet) IsRequired() bool {
	return r.HasRule("required")
}

// IsUnique reports whether the field has unique validation.
func (r RuleSet) IsUnique() bool {
	return r.HasRule("unique")
}

type ruleSetJSON struct {
	Rules            []string          `json:"rules"`
	Messages         map[string]string `json:"messages"`
	CustomValidation map[string]any    `json:"custom_validation"`
}

func (r RuleSet) MarshalJSON() ([]byte, error) {
	out := ruleSetJSON{
		Rules:            r.rules,
		Messages:         r.messages,
		CustomValidation: r.custom,
	}
	if out.Rules == nil {
		out.Rules = []string{}
	}
	if out.Messages == nil {
		out.Messages = map[string]string{}
	}
	if out.CustomValidation == nil {
		out.CustomValidation = map[string]any{}
	}
	return json.Marshal(out)
}

func (r *RuleSet) UnmarshalJSON(data []byte) error {
	var raw ruleSetJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = NewRuleSet(raw.Rules, raw.Messages, raw.CustomValidation)
	return nil
}

// ForFieldType produces the canonical rule set for a field type, driven by
// the field's settings (min_length, max_value, allowed_file_types, ...).
func ForFieldType(fieldType string, settings map[string]any) RuleSet {
	var rules []string
	switch fieldType {
	case "text":
		rules = append(rules, "string")
		if v, ok := settingInt(settings, "min_length"); ok {
			rules = append(rules, fmt.Sprintf("min:%d", v))
		}
		if v, ok := settingInt(settings, "max_length"); ok {
			rules = append(rules, fmt.Sprintf("max:%d", v))
		}
		if v, ok := settings["pattern"].(string); ok {
			rules = append(rules, "regex:"+v)
		}
	case "textarea":
		rules = append(rules, "string")
		if v, ok := settingInt(settings, "max_length"); ok {
			rules = append(rules, fmt.Sprintf("max:%d", v))
		}
	case "email":
		if b, _ := settings["allow_multiple"].(bool); b {
			// Multiple emails arrive as one comma-separated string.
			rules = append(rules, "string")
		} else {
			rules = append(rules, "email")
		}
	case "phone", "select", "radio":
		rules = append(rules, "string")
	case "url":
		rules = append(rules, "url")
	case "number":
		rules = append(rules, "integer")
		rules = appendRange(rules, settings)
	case "decimal", "currency":
		rules = append(rules, "numeric")
		rules = appendRange(rules, settings)
		rules = appendPrecision(rules, settings)
	case "percent":
		rules = append(rules, "numeric", "min:0", "max:100")
		rules = appendPrecision(rules, settings)
	case "date":
		rules = append(rules, "date")
		if v, ok := settings["min_date"].(string); ok {
			rules = append(rules, "after_or_equal:"+v)
		}
		if v, ok := settings["max_date"].(string); ok {
			rules = append(rules, "before_or_equal:"+v)
		}
	case "datetime":
		rules = append(rules, "date")
	case "time":
		rules = append(rules, "date_format:H:i:s")
	case "multiselect":
		rules = append(rules, "array")
		if v, ok := settingInt(settings, "max_selections"); ok {
			rules = append(rules, fmt.Sprintf("max:%d", v))
		}
	case "checkbox", "toggle":
		rules = append(rules, "boolean")
	case "file":
		rules = append(rules, "file")
		rules = appendFileRules(rules, settings)
	case "image":
		rules = append(rules, "image")
		if v, ok := settingInt(settings, "max_file_size"); ok {
			rules = append(rules, fmt.Sprintf("max:%d", v))
		}
		rules = appendDimensions(rules, settings)
	case "lookup":
		rules = append(rules, "integer")
	}
	return NewRuleSet(rules, nil, nil)
}

func appendRange(rules []string, settings map[string]any) []string {
	if v, ok := settingInt(settings, "min_value"); ok {
		rules = append(rules, fmt.Sprintf("min:%d", v))
	}
	if v, ok := settingInt(settings, "max_value"); ok {
		rules = append(rules, fmt.Sprintf("max:%d", v))
	}
	return rules
}

func appendPrecision(rules []string, settings map[string]any) []string {
	if v, ok := settingInt(settings, "precision"); ok {
		rules = append(rules, fmt.Sprintf("decimal:0,%d", v))
	}
	return rules
}

func appendFileRules(rules []string, settings map[string]any) []string {
	if v, ok := settingInt(settings, "max_file_size"); ok {
		rules = append(rules, fmt.Sprintf("max:%d", v)) // in KB
	}
	if types := settingStrings(settings, "allowed_file_types"); len(types) > 0 {
		rules = append(rules, "mimes:"+strings.Join(types, ","))
	}
	return rules
}

func appendDimensions(rules []string, settings map[string]any) []string {
	var parts []string
	if v, ok := settingInt(settings, "max_width"); ok {
		parts = append(parts, fmt.Sprintf("max_width=%d", v))
	}
	if v, ok := settingInt(settings, "max_height"); ok {
		parts = append(parts, fmt.Sprintf("max_height=%d", v))
	}
	if len(parts) > 0 {
		rules = append(rules, "dimensions:"+strings.Join(parts, ","))
	}
	return rules
}

func settingInt(settings map[string]any, key string) (int, bool) {
	switch v := settings[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

func settingStrings(settings map[string]any, key string) []string {
	switch v := settings[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func dedup(existing, extra []string) []string {
	seen := make(map[string]bool, len(existing)+len(extra))
	var out []string
	for _, list := range [][]string{existing, extra} {
		for _, rule := range list {
			if !seen[rule] {
				seen[rule] = true
				out = append(out, rule)
			}
		}
	}
	return out
}

func copyStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
