// SPDX-License-Identifier: MPL-2.0

package semantic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"vizboard/server/core"
)

func (c *Client) ListDashboards(ctx context.Context, projectID *string) ([]core.DashboardSummary, error) {
	path := "/api/dashboards"
	if projectID != nil && *projectID != "" {
		path += "?projectId=" + url.QueryEscape(*projectID)
	}
	var result struct {
		Dashboards []core.DashboardSummary `json:"dashboards"`
	}
	if err := c.call(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, fmt.Errorf("failed to list dashboards: %w", err)
	}
	if result.Dashboards == nil {
		result.Dashboards = []core.DashboardSummary{}
	}
	return result.Dashboards, nil
}

func (c *Client) GetDashboard(ctx context.Context, id string) (core.StoredDashboard, error) {
	var d core.StoredDashboard
	if err := c.call(ctx, http.MethodGet, "/api/dashboards/"+url.PathEscape(id), nil, &d); err != nil {
		return core.StoredDashboard{}, notFound(err, "dashboard %s not found", id)
	}
	return d, nil
}

func (c *Client) CreateDashboard(ctx context.Context, p core.PersistedDashboard) (core.StoredDashboard, error) {
	var d core.StoredDashboard
	if err := c.call(ctx, http.MethodPost, "/api/dashboards", p, &d, http.StatusOK, http.StatusCreated); err != nil {
		return core.StoredDashboard{}, fmt.Errorf("failed to create dashboard: %w", err)
	}
	if d.ID == "" {
		return core.StoredDashboard{}, fmt.Errorf("dashboard response missing id")
	}
	return d, nil
}

func (c *Client) UpdateDashboard(ctx context.Context, id string, p core.PersistedDashboard) (core.StoredDashboard, error) {
	var d core.StoredDashboard
	if err := c.call(ctx, http.MethodPut, "/api/dashboards/"+url.PathEscape(id), p, &d); err != nil {
		return core.StoredDashboard{}, notFound(err, "dashboard %s not found", id)
	}
	if d.ID == "" {
		d.ID = id
	}
	return d, nil
}

func (c *Client) DeleteDashboard(ctx context.Context, id string) error {
	if err := c.call(ctx, http.MethodDelete, "/api/dashboards/"+url.PathEscape(id), nil, nil); err != nil {
		return notFound(err, "dashboard %s not found", id)
	}
	return nil
}

// GetResultsSnapshot returns nil without error when the dashboard has no
// cached results yet.
func (c *Client) GetResultsSnapshot(ctx context.Context, dashboardID string) (*core.ResultsSnapshot, error) {
	var payload core.ResultsSnapshotPayload
	err := c.call(ctx, http.MethodGet, "/api/dashboards/"+url.PathEscape(dashboardID)+"/results-snapshot", nil, &payload)
	if err != nil {
		var nf *core.NotFoundError
		if errors.As(notFound(err, "no results snapshot"), &nf) {
			return nil, nil
		}
		return nil, err
	}
	if payload.Data.Widgets == nil {
		return nil, nil
	}
	return &payload.Data, nil
}

func (c *Client) PutResultsSnapshot(ctx context.Context, dashboardID string, snapshot core.ResultsSnapshot) error {
	payload := core.ResultsSnapshotPayload{Data: snapshot, CapturedAt: snapshot.CapturedAt}
	if payload.CapturedAt.IsZero() {
		payload.CapturedAt = time.Now().UTC()
	}
	path := "/api/dashboards/" + url.PathEscape(dashboardID) + "/results-snapshot"
	if err := c.call(ctx, http.MethodPut, path, payload, nil); err != nil {
		return fmt.Errorf("failed to store results snapshot: %w", err)
	}
	return nil
}
