// SPDX-License-Identifier: MPL-2.0

package core

import (
	"bytes"
	"encoding/json"
)

type CopilotRequest struct {
	Instruction     string             `json:"instruction"`
	OrganizationID  string             `json:"organizationId"`
	ProjectID       *string            `json:"projectId"`
	SemanticModelID string             `json:"semanticModelId"`
	Dashboard       PersistedDashboard `json:"dashboard"`
}

// CopilotResult is a validated but not yet normalized copilot answer.
type CopilotResult struct {
	Widgets       []map[string]any
	GlobalFilters []map[string]any
}

// ParseCopilotResult extracts widgets and globalFilters from a copilot job's
// final response. Both must be arrays of objects.
func ParseCopilotResult(raw json.RawMessage) (CopilotResult, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return CopilotResult{}, ErrValidation("copilot job finished without a result")
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return CopilotResult{}, ErrValidation("copilot result is malformed: %v", err)
	}
	if inner, ok := envelope["result"]; ok {
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(inner, &nested); err == nil && nested != nil {
			envelope = nested
		}
	}
	var result CopilotResult
	fields := []struct {
		key string
		dst *[]map[string]any
	}{{"widgets", &result.Widgets}, {"globalFilters", &result.GlobalFilters}}
	for _, field := range fields {
		key := field.key
		value, ok := envelope[key]
		if !ok {
			return CopilotResult{}, ErrValidation("copilot result is missing %s", key)
		}
		var items []any
		if err := json.Unmarshal(value, &items); err != nil || items == nil {
			return CopilotResult{}, ErrValidation("copilot result %s must be an array", key)
		}
		list := make([]map[string]any, 0, len(items))
		for _, item := range items {
			m, ok := item.(map[string]any)
			if !ok {
				return CopilotResult{}, ErrValidation("copilot result %s must only contain objects", key)
			}
			list = append(list, m)
		}
		*field.dst = list
	}
	return result, nil
}
