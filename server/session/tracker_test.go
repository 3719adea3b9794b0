// SPDX-License-Identifier: MPL-2.0

package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vizboard/server/core"
)

func TestSubmitAndComplete(t *testing.T) {
	h := newHarness(t)
	h.jobs.script("job-1", runningState(40), succeededState(validResult))

	w, err := h.session.AddWidget(measureWidget("Revenue"))
	require.NoError(t, err)
	assert.Equal(t, core.JobStatusIdle, w.JobStatus)

	require.NoError(t, h.session.RunWidget(w.ID))
	done := h.waitFor(t, w.ID, settled)

	assert.Equal(t, core.JobStatusSucceeded, done.JobStatus)
	assert.Equal(t, 100, done.Progress)
	assert.Nil(t, done.Error)
	require.NotNil(t, done.QueryResult)
	assert.Equal(t, "r1", done.QueryResult.ID)
	assert.NotNil(t, done.RefreshedAt)

	assert.Equal(t, []widgetStep{
		{Status: core.JobStatusIdle},
		{Status: core.JobStatusQueued, Progress: 0, Loading: true},
		{Status: core.JobStatusQueued, Progress: 5, Loading: true, JobID: "job-1"},
		{Status: core.JobStatusRunning, Progress: 40, Loading: true, JobID: "job-1"},
		{Status: core.JobStatusSucceeded, Progress: 100, JobID: "job-1"},
	}, h.events.widgetSteps(t, w.ID))

	state, err := h.session.State()
	require.NoError(t, err)
	assert.NotNil(t, state.Dashboard.LastRefreshedAt)
}

func TestSubmittedRequestCarriesGlobalFilters(t *testing.T) {
	h := newHarness(t)
	filters := []core.FilterDraft{{Member: "orders.country", Operator: "equals", Values: "DE"}}
	_, err := h.session.UpdateDashboard(DashboardPatch{GlobalFilters: &filters})
	require.NoError(t, err)
	w, err := h.session.AddWidget(measureWidget("Revenue"))
	require.NoError(t, err)

	require.NoError(t, h.session.RunWidget(w.ID))
	require.Eventually(t, func() bool { return h.jobs.submittedCount() == 1 }, time.Second, 5*time.Millisecond)

	h.jobs.mu.Lock()
	req := h.jobs.submitted[0]
	h.jobs.mu.Unlock()
	assert.Equal(t, "org-1", req.OrganizationID)
	assert.Equal(t, "sm-1", req.SemanticModelID)
	assert.Equal(t, []string{"orders.revenue"}, req.Query.Measures)
	require.Len(t, req.Query.Filters, 1)
	assert.Equal(t, "orders.country", req.Query.Filters[0].Member)
}

func TestMalformedResultFailsWidget(t *testing.T) {
	h := newHarness(t)
	h.jobs.script("job-1", succeededState(`{"result":{"organizationId":"org-1","semanticModelId":"sm-1","data":[]}}`))
	w, err := h.session.AddWidget(measureWidget("Revenue"))
	require.NoError(t, err)

	require.NoError(t, h.session.RunWidget(w.ID))
	done := h.waitFor(t, w.ID, settled)

	assert.Equal(t, core.JobStatusFailed, done.JobStatus)
	assert.Equal(t, 100, done.Progress)
	require.NotNil(t, done.Error)
	assert.Contains(t, *done.Error, "id")
	assert.Nil(t, done.QueryResult)
}

func TestSubmitRejected(t *testing.T) {
	h := newHarness(t)
	h.jobs.submitErr = errors.New("semantic service unavailable")
	w, err := h.session.AddWidget(measureWidget("Revenue"))
	require.NoError(t, err)

	require.NoError(t, h.session.RunWidget(w.ID))
	done := h.waitFor(t, w.ID, settled)

	assert.Equal(t, core.JobStatusFailed, done.JobStatus)
	assert.Equal(t, 0, done.Progress)
	assert.Nil(t, done.JobID)
	require.NotNil(t, done.Error)
	assert.Equal(t, "semantic service unavailable", *done.Error)
}

func TestTerminalJobFailure(t *testing.T) {
	h := newHarness(t)
	h.jobs.script("job-1", core.QueryJobState{
		Status:   core.JobStatusFailed,
		Progress: 60,
		Events:   []core.JobEvent{{Message: "Planning"}, {Message: "Execution failed"}},
		Error:    core.JobError{Kind: core.JobErrorObject, Fields: map[string]any{"message": "unknown member orders.revenue"}},
	})
	w, err := h.session.AddWidget(measureWidget("Revenue"))
	require.NoError(t, err)

	require.NoError(t, h.session.RunWidget(w.ID))
	done := h.waitFor(t, w.ID, settled)

	assert.Equal(t, core.JobStatusFailed, done.JobStatus)
	assert.Equal(t, 60, done.Progress)
	assert.Equal(t, "Execution failed", done.StatusMessage)
	require.NotNil(t, done.Error)
	assert.Equal(t, "unknown member orders.revenue", *done.Error)
}

func TestCancelledJobUsesFallbackMessage(t *testing.T) {
	h := newHarness(t)
	h.jobs.script("job-1", core.QueryJobState{Status: core.JobStatusCancelled, Progress: 30})
	w, err := h.session.AddWidget(measureWidget("Revenue"))
	require.NoError(t, err)

	require.NoError(t, h.session.RunWidget(w.ID))
	done := h.waitFor(t, w.ID, settled)

	assert.Equal(t, core.JobStatusCancelled, done.JobStatus)
	require.NotNil(t, done.Error)
	assert.Equal(t, "Query job cancelled", *done.Error)
}

func TestRunAllSkipsEmptyWidgets(t *testing.T) {
	h := newHarness(t)
	h.jobs.script("job-1", succeededState(validResult))
	runnable, err := h.session.AddWidget(measureWidget("Revenue"))
	require.NoError(t, err)
	empty, err := h.session.AddWidget(map[string]any{"title": "Nothing selected"})
	require.NoError(t, err)

	n, err := h.session.RunAll()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	h.waitFor(t, runnable.ID, settled)
	assert.Equal(t, 1, h.jobs.submittedCount())

	idle := h.widget(t, empty.ID)
	assert.Equal(t, core.JobStatusIdle, idle.JobStatus)
	assert.False(t, idle.IsLoading)
	assert.Equal(t, []widgetStep{{Status: core.JobStatusIdle}}, h.events.widgetSteps(t, empty.ID))

	err = h.session.RunWidget(empty.ID)
	var validation *core.ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestRunUnknownWidget(t *testing.T) {
	h := newHarness(t)
	err := h.session.RunWidget("missing")
	var notFound *core.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestPollErrorsAreRetried(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.MaxPollFailures = 3 })
	h.jobs.failReads = 2
	h.jobs.script("job-1", succeededState(validResult))
	w, err := h.session.AddWidget(measureWidget("Revenue"))
	require.NoError(t, err)

	require.NoError(t, h.session.RunWidget(w.ID))
	done := h.waitFor(t, w.ID, settled)

	assert.Equal(t, core.JobStatusSucceeded, done.JobStatus)
	assert.Equal(t, 3, h.jobs.readCount("job-1"))
}

func TestPollGivesUpAfterMaxFailures(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.MaxPollFailures = 3 })
	h.jobs.failReads = 1000
	w, err := h.session.AddWidget(measureWidget("Revenue"))
	require.NoError(t, err)

	require.NoError(t, h.session.RunWidget(w.ID))
	done := h.waitFor(t, w.ID, settled)

	assert.Equal(t, core.JobStatusFailed, done.JobStatus)
	require.NotNil(t, done.Error)
	assert.Equal(t, LOST_CONTACT_ERROR, *done.Error)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 3, h.jobs.readCount("job-1"))
}

func TestPollFailureDoesNotAffectOtherWidgets(t *testing.T) {
	h := newHarness(t)
	h.jobs.failJobs["job-1"] = true
	first, err := h.session.AddWidget(measureWidget("First"))
	require.NoError(t, err)
	second, err := h.session.AddWidget(measureWidget("Second"))
	require.NoError(t, err)
	h.jobs.script("job-2", succeededState(validResult))

	require.NoError(t, h.session.RunWidget(first.ID))
	require.Eventually(t, func() bool { return h.jobs.submittedCount() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, h.session.RunWidget(second.ID))

	done := h.waitFor(t, second.ID, settled)
	assert.Equal(t, core.JobStatusSucceeded, done.JobStatus)
	require.Eventually(t, func() bool { return h.jobs.readCount("job-1") > 1 }, time.Second, 5*time.Millisecond)
	stuck := h.widget(t, first.ID)
	assert.True(t, stuck.IsLoading)
	assert.Nil(t, stuck.Error)
}

func TestRemovedWidgetIsNoLongerPolled(t *testing.T) {
	h := newHarness(t)
	w, err := h.session.AddWidget(measureWidget("Revenue"))
	require.NoError(t, err)
	require.NoError(t, h.session.RunWidget(w.ID))
	require.Eventually(t, func() bool { return h.jobs.readCount("job-1") > 0 }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.session.RemoveWidget(w.ID))
	before := h.jobs.readCount("job-1")
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, h.jobs.readCount("job-1"), before+1)
}

func TestRerunSupersedesEarlierJob(t *testing.T) {
	h := newHarness(t)
	h.jobs.script("job-2", succeededState(validResult))
	w, err := h.session.AddWidget(measureWidget("Revenue"))
	require.NoError(t, err)

	require.NoError(t, h.session.RunWidget(w.ID))
	require.Eventually(t, func() bool { return h.jobs.readCount("job-1") > 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, h.session.RunWidget(w.ID))

	done := h.waitFor(t, w.ID, settled)
	require.NotNil(t, done.JobID)
	assert.Equal(t, "job-2", *done.JobID)
	assert.Equal(t, core.JobStatusSucceeded, done.JobStatus)
}

func TestHungPollDoesNotHoldBackOtherWidgets(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.RequestTimeout = 3 * time.Second })
	h.jobs.hangJobs["job-1"] = true
	h.jobs.script("job-2", succeededState(validResult))
	first, err := h.session.AddWidget(measureWidget("First"))
	require.NoError(t, err)
	second, err := h.session.AddWidget(measureWidget("Second"))
	require.NoError(t, err)

	require.NoError(t, h.session.RunWidget(first.ID))
	require.Eventually(t, func() bool { return h.jobs.readCount("job-1") == 1 }, time.Second, 5*time.Millisecond)
	start := time.Now()
	require.NoError(t, h.session.RunWidget(second.ID))

	done := h.waitFor(t, second.ID, settled)
	assert.Equal(t, core.JobStatusSucceeded, done.JobStatus)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, h.jobs.readCount("job-1"), "a job is never read twice at once")
	assert.True(t, h.widget(t, first.ID).IsLoading)
}

func TestCopilotPollsDoNotResetWidgetFailures(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.MaxPollFailures = 3 })
	h.jobs.prefix = "copilot"
	h.jobs.failJobs["copilot-1"] = true
	w, err := h.session.AddWidget(measureWidget("Revenue"))
	require.NoError(t, err)

	require.NoError(t, h.session.RunWidget(w.ID))
	require.NoError(t, h.session.Copilot("Add a chart"))

	done := h.waitFor(t, w.ID, settled)
	assert.Equal(t, core.JobStatusFailed, done.JobStatus)
	require.NotNil(t, done.Error)
	assert.Equal(t, LOST_CONTACT_ERROR, *done.Error)
	state, err := h.session.State()
	require.NoError(t, err)
	assert.True(t, state.CopilotPending)
}

func TestPollBackoffIsCapped(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.MaxPollFailures = 100 })
	key := pollKey{jobID: "job-1"}
	waits := []int{}
	require.NoError(t, h.session.do(func() {
		for range 80 {
			h.session.pollFailed(key, errors.New("connection reset"))
			waits = append(waits, h.session.pollWait[key])
		}
	}))

	assert.Equal(t, []int{0, 1, 3, 7, 15}, waits[:5])
	for i, wait := range waits[5:] {
		assert.Equal(t, MAX_POLL_WAIT_TICKS-1, wait, "failure %d", i+6)
	}
}
