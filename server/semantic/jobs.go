// SPDX-License-Identifier: MPL-2.0

package semantic

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"vizboard/server/core"
)

func (c *Client) SubmitQuery(ctx context.Context, req core.QueryRequest) (core.JobAccepted, error) {
	return c.submitJob(ctx, "/api/semantic/query-jobs", req)
}

func (c *Client) GetQueryJob(ctx context.Context, jobID string) (core.QueryJobState, error) {
	return c.getJob(ctx, "/api/semantic/query-jobs/", jobID)
}

func (c *Client) SubmitCopilot(ctx context.Context, req core.CopilotRequest) (core.JobAccepted, error) {
	return c.submitJob(ctx, "/api/copilot/dashboard-jobs", req)
}

func (c *Client) GetCopilotJob(ctx context.Context, jobID string) (core.QueryJobState, error) {
	return c.getJob(ctx, "/api/copilot/dashboard-jobs/", jobID)
}

func (c *Client) submitJob(ctx context.Context, path string, body any) (core.JobAccepted, error) {
	var accepted core.JobAccepted
	if err := c.call(ctx, http.MethodPost, path, body, &accepted, http.StatusOK, http.StatusCreated, http.StatusAccepted); err != nil {
		return core.JobAccepted{}, err
	}
	if accepted.JobID == "" {
		return core.JobAccepted{}, fmt.Errorf("job response missing jobId")
	}
	if accepted.JobStatus == "" {
		accepted.JobStatus = core.JobStatusQueued
	}
	return accepted, nil
}

func (c *Client) getJob(ctx context.Context, prefix, jobID string) (core.QueryJobState, error) {
	var state core.QueryJobState
	if err := c.call(ctx, http.MethodGet, prefix+url.PathEscape(jobID), nil, &state); err != nil {
		return core.QueryJobState{}, notFound(err, "job %s not found", jobID)
	}
	if state.Status == "" {
		return core.QueryJobState{}, fmt.Errorf("job %s response missing status", jobID)
	}
	return state, nil
}
