// SPDX-License-Identifier: MPL-2.0

package core

import (
	"encoding/json"
	"strings"
)

type canonicalFilter struct {
	Member   string `json:"member"`
	Operator string `json:"operator"`
	Values   string `json:"values"`
}

type canonicalDashboard struct {
	Name            string            `json:"name"`
	Description     string            `json:"description"`
	RefreshMode     RefreshMode       `json:"refreshMode"`
	SemanticModelID string            `json:"semanticModelId"`
	GlobalFilters   []canonicalFilter `json:"globalFilters"`
	Widgets         []PersistedWidget `json:"widgets"`
}

// CanonicalSnapshot serializes everything that defines a dashboard. Two
// dashboards with the same snapshot are equal. Execution state and filter
// ids are not part of it.
func CanonicalSnapshot(d Dashboard) string {
	c := canonicalDashboard{
		Name:            d.Name,
		Description:     d.Description,
		RefreshMode:     d.RefreshMode,
		SemanticModelID: d.SemanticModelID,
		GlobalFilters:   make([]canonicalFilter, 0, len(d.GlobalFilters)),
		Widgets:         make([]PersistedWidget, 0, len(d.Widgets)),
	}
	for _, f := range d.GlobalFilters {
		c.GlobalFilters = append(c.GlobalFilters, canonicalFilter{Member: f.Member, Operator: f.Operator, Values: f.Values})
	}
	for _, w := range d.Widgets {
		c.Widgets = append(c.Widgets, w.Persisted())
	}
	// Struct fields marshal in declaration order and map keys sorted, so
	// the output is stable.
	b, err := json.Marshal(c)
	if err != nil {
		// Visual config holding values json cannot encode.
		return ""
	}
	return string(b)
}

// IsDirty compares a saved dashboard against its baseline snapshot. A draft
// without identity is dirty as soon as it holds anything non-default.
func IsDirty(d Dashboard, baseline *string) bool {
	if d.ID == nil {
		return d.Name != DEFAULT_DASHBOARD_NAME ||
			strings.TrimSpace(d.Description) != "" ||
			len(d.GlobalFilters) > 0 ||
			len(d.Widgets) > 0
	}
	if baseline == nil {
		return true
	}
	return CanonicalSnapshot(d) != *baseline
}
