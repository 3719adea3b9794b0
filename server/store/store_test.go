// SPDX-License-Identifier: MPL-2.0

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vizboard/server/core"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func ptr[T any](v T) *T {
	return &v
}

func samplePayload() core.PersistedDashboard {
	d := core.NewDraftDashboard(ptr("p1"), "sm1")
	d.Name = "Revenue"
	d.RefreshMode = core.RefreshLive
	d.GlobalFilters = []core.FilterDraft{{ID: "g1", Member: "orders.region", Operator: "equals", Values: "EU"}}
	d.Widgets = []core.Widget{core.NormalizeWidget(map[string]any{
		"id":       "w1",
		"title":    "By status",
		"type":     "bar",
		"measures": []any{"orders.revenue"},
	})}
	return d.Persisted()
}

func TestDashboardRoundTrip(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	created, err := s.CreateDashboard(ctx, samplePayload())
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "Revenue", created.Name)
	assert.Equal(t, core.RefreshLive, created.RefreshMode)
	require.NotNil(t, created.ProjectID)
	assert.Equal(t, "p1", *created.ProjectID)
	assert.WithinDuration(t, time.Now(), created.UpdatedAt, time.Minute)

	loaded := core.NormalizeDashboard(created)
	require.Len(t, loaded.Widgets, 1)
	assert.Equal(t, "w1", loaded.Widgets[0].ID)
	assert.Equal(t, "bar", loaded.Widgets[0].Type)
	assert.Equal(t, []string{"orders.revenue"}, loaded.Widgets[0].Measures)
	assert.Equal(t, samplePayload().GlobalFilters, loaded.GlobalFilters)

	update := samplePayload()
	update.Name = "Renamed"
	update.ProjectID = nil
	updated, err := s.UpdateDashboard(ctx, created.ID, update)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Nil(t, updated.ProjectID)
	assert.Equal(t, created.ID, updated.ID)
}

func TestDashboardNotFound(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	var nf *core.NotFoundError

	_, err := s.GetDashboard(ctx, "missing")
	assert.ErrorAs(t, err, &nf)

	_, err = s.UpdateDashboard(ctx, "missing", samplePayload())
	assert.ErrorAs(t, err, &nf)

	assert.ErrorAs(t, s.DeleteDashboard(ctx, "missing"), &nf)
}

func TestListDashboards(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	first, err := s.CreateDashboard(ctx, samplePayload())
	require.NoError(t, err)
	other := samplePayload()
	other.ProjectID = ptr("p2")
	other.Name = "Other"
	_, err = s.CreateDashboard(ctx, other)
	require.NoError(t, err)

	all, err := s.ListDashboards(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	p1, err := s.ListDashboards(ctx, ptr("p1"))
	require.NoError(t, err)
	require.Len(t, p1, 1)
	assert.Equal(t, first.ID, p1[0].ID)
	assert.Equal(t, "live", p1[0].RefreshMode)

	none, err := s.ListDashboards(ctx, ptr("p3"))
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestResultsSnapshotRoundTrip(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	d, err := s.CreateDashboard(ctx, samplePayload())
	require.NoError(t, err)

	none, err := s.GetResultsSnapshot(ctx, d.ID)
	require.NoError(t, err)
	assert.Nil(t, none)

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	result := &core.QueryResult{ID: "r1", OrganizationID: "o1", SemanticModelID: "sm1", Data: []core.Row{core.NewRow("b", "x", "a", 1)}}
	snapshot, ok := core.BuildResultsSnapshot([]core.Widget{{
		WidgetConfig: core.WidgetConfig{ID: "w1"},
		Execution:    core.Execution{QueryResult: result},
	}}, now)
	require.True(t, ok)
	require.NoError(t, s.PutResultsSnapshot(ctx, d.ID, snapshot))

	snapshot.Version = 2
	require.NoError(t, s.PutResultsSnapshot(ctx, d.ID, snapshot), "second write replaces the first")

	got, err := s.GetResultsSnapshot(ctx, d.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2, got.Version)
	assert.True(t, now.Equal(got.CapturedAt))
	require.Contains(t, got.Widgets, "w1")
	assert.Equal(t, []string{"b", "a"}, got.Widgets["w1"].Result.Keys())

	require.NoError(t, s.DeleteDashboard(ctx, d.ID))
	gone, err := s.GetResultsSnapshot(ctx, d.ID)
	require.NoError(t, err)
	assert.Nil(t, gone, "snapshot is removed with its dashboard")
}
