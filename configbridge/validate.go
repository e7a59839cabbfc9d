package configbridge

import (
	"fmt"
	"maps"
	"slices"
)

// Validation is the outcome of a structural check.
type Validation struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Validate checks that data is a mapping carrying the top-level keys required
// for name, and warns about empty string values. It does not validate values.
func (b *Bridge) Validate(name string, data any) Validation {
	v := Validation{Valid: true}
	m, ok := data.(map[string]any)
	if !ok {
		v.Valid = false
		v.Errors = append(v.Errors, fmt.Sprintf("configuration must be a mapping, got %T", data))
		return v
	}
	for _, key := range b.required[name] {
		if _, present := m[key]; !present {
			v.Valid = false
			v.Errors = append(v.Errors, "missing required key: "+key)
		}
	}
	for _, key := range slices.Sorted(maps.Keys(m)) {
		if s, isStr := m[key].(string); isStr && s == "" {
			v.Warnings = append(v.Warnings, "empty value for key: "+key)
		}
	}
	return v
}
