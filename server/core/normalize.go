// SPDX-License-Identifier: MPL-2.0

package core

import (
	"encoding/json"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/nrednav/cuid2"
)

const DEFAULT_WIDGET_TITLE = "Untitled widget"

var (
	CHART_TYPES  = []string{"table", "bar", "line", "area", "pie", "number", "scatter"}
	WIDGET_SIZES = []string{"small", "medium", "large", "full"}
)

var defaultLayout = WidgetLayout{X: 0, Y: 0, W: 6, H: 4}

// NormalizeWidget builds a widget from untrusted input, whether it was read
// from a store or produced by copilot. Execution state always starts idle;
// a valid embedded queryResult is kept.
func NormalizeWidget(raw map[string]any) Widget {
	w := Widget{Execution: IdleExecution()}

	if id, ok := raw["id"].(string); ok && strings.TrimSpace(id) != "" {
		w.ID = id
	} else {
		w.ID = cuid2.Generate()
	}
	w.Title = stringOr(raw["title"], DEFAULT_WIDGET_TITLE)
	w.Type = oneOf(raw["type"], CHART_TYPES, DEFAULT_CHART_TYPE)
	w.Size = oneOf(raw["size"], WIDGET_SIZES, DEFAULT_WIDGET_SIZE)

	layout, _ := raw["layout"].(map[string]any)
	w.Layout = WidgetLayout{
		X: intOr(layout["x"], defaultLayout.X),
		Y: intOr(layout["y"], defaultLayout.Y),
		W: intOr(layout["w"], defaultLayout.W),
		H: intOr(layout["h"], defaultLayout.H),
	}

	w.Measures = stringList(raw["measures"])
	w.Dimensions = stringList(raw["dimensions"])

	w.Filters = []FilterDraft{}
	for _, f := range objectList(raw["filters"]) {
		w.Filters = append(w.Filters, NormalizeFilter(f))
	}
	w.OrderBys = []OrderByDraft{}
	for _, o := range objectList(raw["orderBys"]) {
		w.OrderBys = append(w.OrderBys, NormalizeOrderBy(o))
	}

	w.Limit = intOr(raw["limit"], DEFAULT_LIMIT)
	if w.Limit <= 0 {
		w.Limit = DEFAULT_LIMIT
	}
	w.TimeDimension = stringOr(raw["timeDimension"], "")
	w.TimeGrain = stringOr(raw["timeGrain"], "")
	w.TimeRangePreset = stringOr(raw["timeRangePreset"], "")
	w.TimeRangeFrom = stringOr(raw["timeRangeFrom"], "")
	w.TimeRangeTo = stringOr(raw["timeRangeTo"], "")

	if visual, ok := raw["visual"].(map[string]any); ok {
		w.Visual = visual
	}

	if qr, ok := raw["queryResult"]; ok && qr != nil {
		if b, err := json.Marshal(qr); err == nil {
			if result, err := ParseQueryResult(b); err == nil {
				w.QueryResult = result
				w.JobStatus = JobStatusSucceeded
				w.Progress = 100
			}
		}
	}
	return w
}

func NormalizeFilter(raw map[string]any) FilterDraft {
	f := FilterDraft{
		ID:       stringOr(raw["id"], ""),
		Member:   stringOr(raw["member"], ""),
		Operator: stringOr(raw["operator"], DEFAULT_FILTER_OPERATOR),
	}
	if f.ID == "" {
		f.ID = cuid2.Generate()
	}
	switch v := raw["values"].(type) {
	case string:
		f.Values = v
	case []any:
		f.Values = strings.Join(stringList(v), ", ")
	}
	return f
}

func NormalizeOrderBy(raw map[string]any) OrderByDraft {
	o := OrderByDraft{
		ID:        stringOr(raw["id"], ""),
		Member:    stringOr(raw["member"], ""),
		Direction: OrderAsc,
	}
	if o.ID == "" {
		o.ID = cuid2.Generate()
	}
	if d, ok := raw["direction"].(string); ok && strings.EqualFold(d, string(OrderDesc)) {
		o.Direction = OrderDesc
	}
	return o
}

// NormalizeDashboard turns a stored dashboard into session state with every
// widget idle.
func NormalizeDashboard(s StoredDashboard) Dashboard {
	id := s.ID
	d := Dashboard{
		ID:              &id,
		ProjectID:       s.ProjectID,
		Name:            s.Name,
		Description:     s.Description,
		RefreshMode:     s.RefreshMode,
		SemanticModelID: s.SemanticModelID,
		GlobalFilters:   make([]FilterDraft, 0, len(s.GlobalFilters)),
		Widgets:         make([]Widget, 0, len(s.Widgets)),
	}
	if d.RefreshMode != RefreshLive {
		d.RefreshMode = RefreshManual
	}
	if strings.TrimSpace(d.Name) == "" {
		d.Name = DEFAULT_DASHBOARD_NAME
	}
	for _, f := range s.GlobalFilters {
		d.GlobalFilters = append(d.GlobalFilters, NormalizeFilter(f))
	}
	for _, w := range s.Widgets {
		nw := NormalizeWidget(w)
		nw.Execution = IdleExecution()
		d.Widgets = append(d.Widgets, nw)
	}
	return d
}

// ToRawMap round trips v through json so it can be normalized like any
// other untrusted input.
func ToRawMap(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func stringOr(v any, fallback string) string {
	if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
		return s
	}
	return fallback
}

func oneOf(v any, allowed []string, fallback string) string {
	if s, ok := v.(string); ok && slices.Contains(allowed, s) {
		return s
	}
	return fallback
}

func intOr(v any, fallback int) int {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		return n
	case int64:
		return int(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return fallback
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return fallback
		}
		f = parsed
	default:
		return fallback
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fallback
	}
	return int(math.Round(f))
}

func stringList(v any) []string {
	out := []string{}
	var items []any
	switch list := v.(type) {
	case []any:
		items = list
	case []string:
		for _, item := range list {
			items = append(items, item)
		}
	}
	for _, item := range items {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

func objectList(v any) []map[string]any {
	out := []map[string]any{}
	items, _ := v.([]any)
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
