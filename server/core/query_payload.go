// SPDX-License-Identifier: MPL-2.0

package core

import (
	"bytes"
	"encoding/json"
	"strings"
)

const DEFAULT_FILTER_OPERATOR = "equals"

type QueryRequest struct {
	OrganizationID  string  `json:"organizationId"`
	ProjectID       *string `json:"projectId"`
	SemanticModelID string  `json:"semanticModelId"`
	Query           Query   `json:"query"`
}

type Query struct {
	Measures       []string             `json:"measures"`
	Dimensions     []string             `json:"dimensions"`
	TimeDimensions []TimeDimensionQuery `json:"timeDimensions,omitempty"`
	Filters        []FilterQuery        `json:"filters,omitempty"`
	Order          []OrderEntry         `json:"order,omitempty"`
	Limit          int                  `json:"limit"`
}

// TimeDimensionQuery carries DateRange as either a preset name or a
// two element [from, to] list.
type TimeDimensionQuery struct {
	Dimension   string `json:"dimension"`
	Granularity string `json:"granularity,omitempty"`
	DateRange   any    `json:"dateRange,omitempty"`
}

type FilterQuery struct {
	Member   string   `json:"member"`
	Operator string   `json:"operator"`
	Values   []string `json:"values,omitempty"`
}

// OrderEntry encodes as a single key object {"member": "asc"}.
type OrderEntry struct {
	Member    string
	Direction OrderDirection
}

func (o OrderEntry) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	k, err := json.Marshal(o.Member)
	if err != nil {
		return nil, err
	}
	v, err := json.Marshal(o.Direction)
	if err != nil {
		return nil, err
	}
	buf.WriteByte('{')
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(v)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (o *OrderEntry) UnmarshalJSON(data []byte) error {
	var m map[string]OrderDirection
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if len(m) != 1 {
		return ErrValidation("order entry must have exactly one member, got %d", len(m))
	}
	for k, v := range m {
		o.Member, o.Direction = k, v
	}
	return nil
}

func operatorTakesNoValues(op string) bool {
	return op == "set" || op == "notset"
}

// ParseFilterValues splits the raw comma separated input, dropping blanks.
func ParseFilterValues(raw string) []string {
	values := []string{}
	for _, v := range strings.Split(raw, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}

// BuildFilter converts a draft into a query filter. ok is false when the
// draft has no member or no usable values.
func BuildFilter(f FilterDraft) (FilterQuery, bool) {
	member := strings.TrimSpace(f.Member)
	if member == "" {
		return FilterQuery{}, false
	}
	op := strings.TrimSpace(f.Operator)
	if op == "" {
		op = DEFAULT_FILTER_OPERATOR
	}
	if operatorTakesNoValues(op) {
		return FilterQuery{Member: member, Operator: op}, true
	}
	values := ParseFilterValues(f.Values)
	if len(values) == 0 {
		return FilterQuery{}, false
	}
	return FilterQuery{Member: member, Operator: op, Values: values}, true
}

// BuildQueryRequest turns a widget and the dashboard's global filters into
// the request submitted to the semantic service. Global filters come first.
func BuildQueryRequest(w Widget, globalFilters []FilterDraft, organizationID string, projectID *string, semanticModelID string) QueryRequest {
	q := Query{
		Measures:   append([]string{}, w.Measures...),
		Dimensions: append([]string{}, w.Dimensions...),
		Limit:      w.Limit,
	}
	if q.Limit <= 0 {
		q.Limit = DEFAULT_LIMIT
	}

	if w.TimeDimension != "" {
		td := TimeDimensionQuery{Dimension: w.TimeDimension, Granularity: w.TimeGrain}
		if w.TimeRangePreset != "" {
			td.DateRange = w.TimeRangePreset
		} else if w.TimeRangeFrom != "" && w.TimeRangeTo != "" {
			td.DateRange = []string{w.TimeRangeFrom, w.TimeRangeTo}
		}
		q.TimeDimensions = []TimeDimensionQuery{td}
	}

	for _, drafts := range [][]FilterDraft{globalFilters, w.Filters} {
		for _, f := range drafts {
			if built, ok := BuildFilter(f); ok {
				q.Filters = append(q.Filters, built)
			}
		}
	}

	for _, o := range w.OrderBys {
		q.Order = append(q.Order, OrderEntry{Member: o.Member, Direction: o.Direction})
	}

	return QueryRequest{
		OrganizationID:  organizationID,
		ProjectID:       projectID,
		SemanticModelID: semanticModelID,
		Query:           q,
	}
}
