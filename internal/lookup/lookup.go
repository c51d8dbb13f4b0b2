package lookup

import (
	"encoding/json"
	"fmt"
)

// Relationship types for lookup fields.
const (
	OneToOne   = "one_to_one"
	ManyToOne  = "many_to_one"
	ManyToMany = "many_to_many"
)

var validRelationshipTypes = map[string]bool{
	OneToOne:   true,
	ManyToOne:  true,
	ManyToMany: true,
}

// Configuration describes a relational lookup field: which module it points
// at, how candidates are displayed and searched, and an optional dependency
// on another field that narrows the candidate set.
type Configuration struct {
	RelatedModuleID    int               `json:"related_module_id"`
	RelatedModuleName  string            `json:"related_module_name"`
	DisplayField       string            `json:"display_field"`
	SearchFields       []string          `json:"search_fields"`
	AllowCreate        bool              `json:"allow_create"`
	CascadeDelete      bool              `json:"cascade_delete"`
	RelationshipType   string            `json:"relationship_type"`
	DependsOn          string            `json:"depends_on,omitempty"`
	DependencyFilter   *DependencyFilter `json:"dependency_filter,omitempty"`
	AdditionalSettings map[string]any    `json:"additional_settings,omitempty"`
}

// NewConfiguration applies defaults and rejects unknown relationship types
// at construction time.
func NewConfiguration(cfg Configuration) (Configuration, error) {
	if cfg.DisplayField == "" {
		cfg.DisplayField = "name"
	}
	if cfg.RelationshipType == "" {
		cfg.RelationshipType = ManyToOne
	}
	if !validRelationshipTypes[cfg.RelationshipType] {
		return Configuration{}, fmt.Errorf("invalid relationship type '%s'", cfg.RelationshipType)
	}
	return cfg, nil
}

func (c *Configuration) UnmarshalJSON(data []byte) error {
	type raw Configuration
	var r raw
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	cfg, err := NewConfiguration(Configuration(r))
	if err != nil {
		return err
	}
	*c = cfg
	return nil
}

// HasDependency reports whether the lookup is parameterized by another field.
func (c Configuration) HasDependency() bool {
	return c.DependsOn != "" && c.DependencyFilter != nil
}

// QuickCreateFields returns the fields shown in the inline create form.
func (c Configuration) QuickCreateFields() []string {
	return c.settingStrings("quick_create_fields")
}

// ShouldShowRecent reports whether recently used records are offered.
func (c Configuration) ShouldShowRecent() bool {
	v, _ := c.AdditionalSettings["show_recent"].(bool)
	return v
}

// RecentLimit returns the configured recent-items cap, defaulting to 10.
func (c Configuration) RecentLimit() int {
	switch v := c.AdditionalSettings["recent_limit"].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 10
}

// StaticFilters returns the always-applied filters from configuration,
// verbatim.
func (c Configuration) StaticFilters() []Constraint {
	raw, ok := c.AdditionalSettings["filters"]
	if !ok {
		return nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	var filters []Constraint
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		field, _ := m["field"].(string)
		operator, _ := m["operator"].(string)
		filters = append(filters, Constraint{Field: field, Operator: operator, Value: m["value"]})
	}
	return filters
}

// BuildQueryConstraints returns the static filters plus at most one
// dependency-derived constraint. The dependency contributes only when it is
// configured and the depends_on key is present in the context; a missing key
// is a silent no-op, not an error and not a blocking filter.
func (c Configuration) BuildQueryConstraints(context map[string]any) []Constraint {
	constraints := c.StaticFilters()

	if c.HasDependency() {
		if depValue, ok := context[c.DependsOn]; ok {
			constraints = append(constraints, c.DependencyFilter.BuildConstraint(depValue))
		}
	}

	return constraints
}

func (c Configuration) settingStrings(key string) []string {
	raw, ok := c.AdditionalSettings[key]
	if !ok {
		return nil
	}
	switch list := raw.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, v := range list {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
