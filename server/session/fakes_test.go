// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vizboard/server/core"
)

const validResult = `{"result":{"id":"r1","organizationId":"org-1","semanticModelId":"sm-1","data":[{"revenue":10}]}}`

func runningState(progress int) core.QueryJobState {
	return core.QueryJobState{Status: core.JobStatusRunning, Progress: progress, Events: []core.JobEvent{{Message: "Executing"}}}
}

func succeededState(finalResponse string) core.QueryJobState {
	return core.QueryJobState{
		Status:        core.JobStatusSucceeded,
		Progress:      100,
		Events:        []core.JobEvent{{Message: "Done"}},
		FinalResponse: json.RawMessage(finalResponse),
	}
}

// fakeJobs serves scripted job states. Reads past the end of a script keep
// returning its last state; unscripted jobs stay running.
type fakeJobs struct {
	mu        sync.Mutex
	prefix    string
	seq       int
	submitted []core.QueryRequest
	submitErr error
	scripts   map[string][]core.QueryJobState
	reads     map[string]int
	failReads int
	failJobs  map[string]bool
	hangJobs  map[string]bool
}

func newFakeJobs(prefix string) *fakeJobs {
	return &fakeJobs{
		prefix:   prefix,
		scripts:  map[string][]core.QueryJobState{},
		reads:    map[string]int{},
		failJobs: map[string]bool{},
		hangJobs: map[string]bool{},
	}
}

func (f *fakeJobs) script(jobID string, states ...core.QueryJobState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[jobID] = states
}

func (f *fakeJobs) submit(req core.QueryRequest) (core.JobAccepted, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return core.JobAccepted{}, f.submitErr
	}
	f.seq++
	f.submitted = append(f.submitted, req)
	return core.JobAccepted{JobID: fmt.Sprintf("%s-%d", f.prefix, f.seq), JobStatus: core.JobStatusQueued}, nil
}

func (f *fakeJobs) read(jobID string) (core.QueryJobState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads[jobID]++
	n := f.reads[jobID]
	if n <= f.failReads || f.failJobs[jobID] {
		return core.QueryJobState{}, errors.New("connection reset")
	}
	states := f.scripts[jobID]
	if len(states) == 0 {
		return runningState(10), nil
	}
	return states[min(n-f.failReads, len(states))-1], nil
}

func (f *fakeJobs) SubmitQuery(_ context.Context, req core.QueryRequest) (core.JobAccepted, error) {
	return f.submit(req)
}

// GetQueryJob blocks on hung jobs until the request context ends.
func (f *fakeJobs) GetQueryJob(ctx context.Context, jobID string) (core.QueryJobState, error) {
	f.mu.Lock()
	hung := f.hangJobs[jobID]
	if hung {
		f.reads[jobID]++
	}
	f.mu.Unlock()
	if hung {
		<-ctx.Done()
		return core.QueryJobState{}, ctx.Err()
	}
	return f.read(jobID)
}

func (f *fakeJobs) readCount(jobID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads[jobID]
}

func (f *fakeJobs) submittedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitted)
}

type fakeCopilot struct {
	mu        sync.Mutex
	requests  []core.CopilotRequest
	submitErr error
	states    []core.QueryJobState
	reads     int
}

func (f *fakeCopilot) SubmitCopilot(_ context.Context, req core.CopilotRequest) (core.JobAccepted, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return core.JobAccepted{}, f.submitErr
	}
	f.requests = append(f.requests, req)
	return core.JobAccepted{JobID: fmt.Sprintf("copilot-%d", len(f.requests)), JobStatus: core.JobStatusQueued}, nil
}

func (f *fakeCopilot) GetCopilotJob(_ context.Context, _ string) (core.QueryJobState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if len(f.states) == 0 {
		return runningState(20), nil
	}
	return f.states[min(f.reads, len(f.states))-1], nil
}

type fakeStore struct {
	mu         sync.Mutex
	seq        int
	dashboards map[string]core.StoredDashboard
	snapshots  map[string]core.ResultsSnapshot
	updates    int
	puts       int
	reads      int
	readErr    error
	readGate   chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{dashboards: map[string]core.StoredDashboard{}, snapshots: map[string]core.ResultsSnapshot{}}
}

func (f *fakeStore) ListDashboards(_ context.Context, _ *string) ([]core.DashboardSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []core.DashboardSummary{}
	for _, d := range f.dashboards {
		out = append(out, core.DashboardSummary{ID: d.ID, Name: d.Name, RefreshMode: string(d.RefreshMode), UpdatedAt: d.UpdatedAt})
	}
	return out, nil
}

func (f *fakeStore) GetDashboard(_ context.Context, id string) (core.StoredDashboard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.dashboards[id]
	if !ok {
		return core.StoredDashboard{}, core.ErrNotFound("dashboard %s not found", id)
	}
	return d, nil
}

func (f *fakeStore) stored(id string, p core.PersistedDashboard) core.StoredDashboard {
	d := core.StoredDashboard{
		ID:              id,
		ProjectID:       p.ProjectID,
		SemanticModelID: p.SemanticModelID,
		Name:            p.Name,
		Description:     p.Description,
		RefreshMode:     p.RefreshMode,
		UpdatedAt:       time.Now(),
	}
	for _, fl := range p.GlobalFilters {
		m, _ := core.ToRawMap(fl)
		d.GlobalFilters = append(d.GlobalFilters, m)
	}
	for _, w := range p.Widgets {
		m, _ := core.ToRawMap(w)
		d.Widgets = append(d.Widgets, m)
	}
	return d
}

func (f *fakeStore) CreateDashboard(_ context.Context, p core.PersistedDashboard) (core.StoredDashboard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	d := f.stored(fmt.Sprintf("d-%d", f.seq), p)
	f.dashboards[d.ID] = d
	return d, nil
}

func (f *fakeStore) UpdateDashboard(_ context.Context, id string, p core.PersistedDashboard) (core.StoredDashboard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.dashboards[id]; !ok {
		return core.StoredDashboard{}, core.ErrNotFound("dashboard %s not found", id)
	}
	f.updates++
	d := f.stored(id, p)
	f.dashboards[id] = d
	return d, nil
}

func (f *fakeStore) DeleteDashboard(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.dashboards[id]; !ok {
		return core.ErrNotFound("dashboard %s not found", id)
	}
	delete(f.dashboards, id)
	return nil
}

func (f *fakeStore) GetResultsSnapshot(_ context.Context, id string) (*core.ResultsSnapshot, error) {
	if f.readGate != nil {
		<-f.readGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.readErr != nil {
		return nil, f.readErr
	}
	s, ok := f.snapshots[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (f *fakeStore) PutResultsSnapshot(_ context.Context, id string, s core.ResultsSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	f.snapshots[id] = s
	return nil
}

func (f *fakeStore) counts() (reads, puts, updates int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads, f.puts, f.updates
}

type recordedEvent struct {
	Type    string
	Payload []byte
}

type recorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recorder) Publish(_ string, eventType string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Type: eventType, Payload: append([]byte{}, payload...)})
	return nil
}

type widgetStep struct {
	Status   core.JobStatus
	Progress int
	Loading  bool
	JobID    string
}

func (r *recorder) widgetSteps(t *testing.T, widgetID string) []widgetStep {
	r.mu.Lock()
	defer r.mu.Unlock()
	steps := []widgetStep{}
	for _, e := range r.events {
		if e.Type != EVENT_WIDGET {
			continue
		}
		var w struct {
			ID        string         `json:"id"`
			JobStatus core.JobStatus `json:"jobStatus"`
			Progress  int            `json:"progress"`
			IsLoading bool           `json:"isLoading"`
			JobID     *string        `json:"jobId"`
		}
		require.NoError(t, json.Unmarshal(e.Payload, &w))
		if w.ID != widgetID {
			continue
		}
		step := widgetStep{Status: w.JobStatus, Progress: w.Progress, Loading: w.IsLoading}
		if w.JobID != nil {
			step.JobID = *w.JobID
		}
		steps = append(steps, step)
	}
	return steps
}

func (r *recorder) notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Notification{}
	for _, e := range r.events {
		if e.Type != EVENT_NOTIFICATION {
			continue
		}
		var n Notification
		if err := json.Unmarshal(e.Payload, &n); err == nil {
			out = append(out, n)
		}
	}
	return out
}

type harness struct {
	manager *Manager
	session *Session
	jobs    *fakeJobs
	copilot *fakeCopilot
	store   *fakeStore
	events  *recorder
}

func newHarness(t *testing.T, tweak ...func(*Config)) *harness {
	h := &harness{
		jobs:    newFakeJobs("job"),
		copilot: &fakeCopilot{},
		store:   newFakeStore(),
		events:  &recorder{},
	}
	projectID := "project-1"
	config := Config{
		Jobs:            h.jobs,
		Copilot:         h.copilot,
		Dashboards:      h.store,
		Snapshots:       h.store,
		Events:          h.events,
		OrganizationID:  "org-1",
		ProjectID:       &projectID,
		SemanticModelID: "sm-1",
		PollInterval:    5 * time.Millisecond,
		MaxPollFailures: 40,
		RequestTimeout:  time.Second,
	}
	for _, fn := range tweak {
		fn(&config)
	}
	h.manager = NewManager(config)
	h.session = h.manager.Open()
	t.Cleanup(h.manager.CloseAll)
	return h
}

func (h *harness) find(id string) (core.Widget, bool) {
	state, err := h.session.State()
	if err != nil {
		return core.Widget{}, false
	}
	for _, w := range state.Dashboard.Widgets {
		if w.ID == id {
			return w, true
		}
	}
	return core.Widget{}, false
}

func (h *harness) widget(t *testing.T, id string) core.Widget {
	w, ok := h.find(id)
	require.True(t, ok, "widget %s not in session", id)
	return w
}

func (h *harness) waitFor(t *testing.T, id string, cond func(core.Widget) bool) core.Widget {
	require.Eventually(t, func() bool {
		w, ok := h.find(id)
		return ok && cond(w)
	}, 2*time.Second, 5*time.Millisecond)
	return h.widget(t, id)
}

func settled(w core.Widget) bool {
	return !w.IsLoading && w.JobStatus.Terminal()
}

func measureWidget(title string) map[string]any {
	return map[string]any{"title": title, "measures": []any{"orders.revenue"}}
}
