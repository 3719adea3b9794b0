// SPDX-License-Identifier: MPL-2.0

package core

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawJSON(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &m))
	return m
}

func TestNormalizeWidgetDefaults(t *testing.T) {
	w := NormalizeWidget(map[string]any{})

	assert.NotEmpty(t, w.ID)
	assert.Equal(t, DEFAULT_WIDGET_TITLE, w.Title)
	assert.Equal(t, "table", w.Type)
	assert.Equal(t, "medium", w.Size)
	assert.Equal(t, WidgetLayout{X: 0, Y: 0, W: 6, H: 4}, w.Layout)
	assert.Equal(t, 100, w.Limit)
	assert.Empty(t, w.Measures)
	assert.NotNil(t, w.Measures)
	assert.Empty(t, w.Filters)
	assert.Equal(t, IdleExecution(), w.Execution)
}

func TestNormalizeWidgetCoercion(t *testing.T) {
	w := NormalizeWidget(rawJSON(t, `{
		"id": "w1",
		"title": "Revenue",
		"type": "pie",
		"size": "gigantic",
		"layout": {"x": 2.4, "y": "3", "w": "wide", "h": null},
		"measures": ["orders.revenue", "", 4, null],
		"dimensions": "orders.status",
		"filters": [{"member": "orders.status", "values": ["paid", "shipped"]}, "junk"],
		"orderBys": [{"member": "orders.revenue", "direction": "DESC"}, {"member": "x", "direction": "sideways"}],
		"limit": "25",
		"timeDimension": "orders.created_at",
		"timeGrain": "day",
		"isLoading": true,
		"jobId": "stale"
	}`))

	assert.Equal(t, "w1", w.ID)
	assert.Equal(t, "Revenue", w.Title)
	assert.Equal(t, "pie", w.Type)
	assert.Equal(t, "medium", w.Size)
	assert.Equal(t, WidgetLayout{X: 2, Y: 3, W: 6, H: 4}, w.Layout)
	assert.Equal(t, []string{"orders.revenue"}, w.Measures)
	assert.Equal(t, []string{}, w.Dimensions)
	require.Len(t, w.Filters, 1)
	assert.Equal(t, "orders.status", w.Filters[0].Member)
	assert.Equal(t, "equals", w.Filters[0].Operator)
	assert.Equal(t, "paid, shipped", w.Filters[0].Values)
	assert.NotEmpty(t, w.Filters[0].ID)
	require.Len(t, w.OrderBys, 2)
	assert.Equal(t, OrderDesc, w.OrderBys[0].Direction)
	assert.Equal(t, OrderAsc, w.OrderBys[1].Direction)
	assert.Equal(t, 25, w.Limit)
	assert.Equal(t, "orders.created_at", w.TimeDimension)
	assert.False(t, w.IsLoading)
	assert.Nil(t, w.JobID)
}

func TestNormalizeWidgetIDs(t *testing.T) {
	a := NormalizeWidget(map[string]any{"id": 42})
	b := NormalizeWidget(map[string]any{"id": "  "})
	assert.NotEmpty(t, a.ID)
	assert.NotEmpty(t, b.ID)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestNormalizeWidgetKeepsValidResult(t *testing.T) {
	w := NormalizeWidget(rawJSON(t, `{
		"id": "w1",
		"queryResult": {"id": "r1", "organizationId": "o1", "semanticModelId": "sm1", "data": [{"a": 1}]}
	}`))
	require.NotNil(t, w.QueryResult)
	assert.Equal(t, "r1", w.QueryResult.ID)
	assert.Equal(t, JobStatusSucceeded, w.JobStatus)

	invalid := NormalizeWidget(rawJSON(t, `{"id": "w2", "queryResult": {"data": []}}`))
	assert.Nil(t, invalid.QueryResult)
}

func TestNormalizeDashboard(t *testing.T) {
	stored := StoredDashboard{
		ID:              "d1",
		SemanticModelID: "sm1",
		Name:            "",
		RefreshMode:     "hourly",
		GlobalFilters:   []map[string]any{{"id": "g1", "member": "orders.region", "operator": "equals", "values": "EU"}},
		Widgets: []map[string]any{
			rawJSON(t, `{"id": "w1", "measures": ["orders.count"], "queryResult": {"id": "r1", "organizationId": "o1", "semanticModelId": "sm1"}}`),
		},
		UpdatedAt: time.Now(),
	}
	d := NormalizeDashboard(stored)

	require.NotNil(t, d.ID)
	assert.Equal(t, "d1", *d.ID)
	assert.Equal(t, DEFAULT_DASHBOARD_NAME, d.Name)
	assert.Equal(t, RefreshManual, d.RefreshMode)
	assert.Equal(t, []FilterDraft{{ID: "g1", Member: "orders.region", Operator: "equals", Values: "EU"}}, d.GlobalFilters)
	require.Len(t, d.Widgets, 1)
	assert.Nil(t, d.Widgets[0].QueryResult, "loaded widgets start without results")
	assert.Equal(t, JobStatusIdle, d.Widgets[0].JobStatus)
}
