// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"vizboard/server/core"
)

const (
	DEFAULT_POLL_INTERVAL     = 1250 * time.Millisecond
	DEFAULT_MAX_POLL_FAILURES = 40
	DEFAULT_POLL_PARALLELISM  = 8
	DEFAULT_REQUEST_TIMEOUT   = 30 * time.Second
)

var ErrClosed = core.ErrNotFound("session is closed")

type JobClient interface {
	SubmitQuery(ctx context.Context, req core.QueryRequest) (core.JobAccepted, error)
	GetQueryJob(ctx context.Context, jobID string) (core.QueryJobState, error)
}

type CopilotClient interface {
	SubmitCopilot(ctx context.Context, req core.CopilotRequest) (core.JobAccepted, error)
	GetCopilotJob(ctx context.Context, jobID string) (core.QueryJobState, error)
}

type DashboardStore interface {
	ListDashboards(ctx context.Context, projectID *string) ([]core.DashboardSummary, error)
	GetDashboard(ctx context.Context, id string) (core.StoredDashboard, error)
	CreateDashboard(ctx context.Context, p core.PersistedDashboard) (core.StoredDashboard, error)
	UpdateDashboard(ctx context.Context, id string, p core.PersistedDashboard) (core.StoredDashboard, error)
	DeleteDashboard(ctx context.Context, id string) error
}

type SnapshotStore interface {
	GetResultsSnapshot(ctx context.Context, dashboardID string) (*core.ResultsSnapshot, error)
	PutResultsSnapshot(ctx context.Context, dashboardID string, snapshot core.ResultsSnapshot) error
}

// Publisher receives session events already encoded as JSON.
type Publisher interface {
	Publish(sessionID, eventType string, payload []byte) error
}

type Config struct {
	Logger          *slog.Logger
	Jobs            JobClient
	Copilot         CopilotClient
	Dashboards      DashboardStore
	Snapshots       SnapshotStore
	Events          Publisher
	OrganizationID  string
	ProjectID       *string
	SemanticModelID string
	PollInterval    time.Duration
	MaxPollFailures int
	PollParallelism int
	RequestTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DEFAULT_POLL_INTERVAL
	}
	if c.MaxPollFailures <= 0 {
		c.MaxPollFailures = DEFAULT_MAX_POLL_FAILURES
	}
	if c.PollParallelism <= 0 {
		c.PollParallelism = DEFAULT_POLL_PARALLELISM
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DEFAULT_REQUEST_TIMEOUT
	}
	return c
}

// Session owns one open dashboard. All state below the marker is only
// touched by the loop goroutine.
type Session struct {
	ID      string
	config  Config
	logger  *slog.Logger
	actions chan func()
	done    chan struct{}
	once    sync.Once

	dashboard       core.Dashboard
	widgets         map[string]*core.Widget
	order           []string
	activeWidgetID  string
	baseline        *string
	dirty           bool
	snapshotDirty   bool
	loadGen         uint64
	resultsGen      uint64
	pendingLiveRun  string
	lastRefreshedAt *time.Time
	saving          bool

	submissions  map[string]uint64
	submitSeq    uint64
	pollFailures map[pollKey]int
	pollWait     map[pollKey]int
	inFlight     map[pollKey]bool

	copilotPending bool
	copilotJobID   *string
	copilotToken   uint64
}

// State is a deep copy of the session handed out to callers.
type State struct {
	ID             string         `json:"id"`
	Dashboard      core.Dashboard `json:"dashboard"`
	ActiveWidgetID string         `json:"activeWidgetId"`
	CopilotPending bool           `json:"copilotPending"`
	SnapshotDirty  bool           `json:"snapshotDirty"`
}

func newSession(id string, config Config) *Session {
	config = config.withDefaults()
	s := &Session{
		ID:           id,
		config:       config,
		logger:       config.Logger.With(slog.String("session", id)),
		actions:      make(chan func()),
		done:         make(chan struct{}),
		submissions:  map[string]uint64{},
		pollFailures: map[pollKey]int{},
		pollWait:     map[pollKey]int{},
		inFlight:     map[pollKey]bool{},
	}
	s.resetDraft()
	go s.run()
	return s
}

func (s *Session) run() {
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case fn := <-s.actions:
			fn()
			s.settle()
		case <-ticker.C:
			s.tick()
		}
	}
}

// do runs fn on the loop and waits for it.
func (s *Session) do(fn func()) error {
	finished := make(chan struct{})
	select {
	case s.actions <- func() { defer close(finished); fn() }:
	case <-s.done:
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-s.done:
		return ErrClosed
	}
}

// post hands the outcome of background work to the loop. Outcomes arriving
// after Close are dropped.
func (s *Session) post(fn func()) {
	select {
	case s.actions <- fn:
	case <-s.done:
	}
}

func (s *Session) requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.config.RequestTimeout)
}

// Close stops polling and the loop. Requests already in flight finish on
// their own.
func (s *Session) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) State() (State, error) {
	var state State
	err := s.do(func() { state = s.state() })
	return state, err
}

func (s *Session) state() State {
	return State{
		ID:             s.ID,
		Dashboard:      s.view(),
		ActiveWidgetID: s.activeWidgetID,
		CopilotPending: s.copilotPending,
		SnapshotDirty:  s.snapshotDirty,
	}
}

// view assembles the dashboard from the widget arena.
func (s *Session) view() core.Dashboard {
	d := s.dashboard
	d.GlobalFilters = append([]core.FilterDraft{}, s.dashboard.GlobalFilters...)
	d.Widgets = make([]core.Widget, 0, len(s.order))
	for _, id := range s.order {
		d.Widgets = append(d.Widgets, s.widgets[id].Clone())
	}
	if s.lastRefreshedAt != nil {
		t := *s.lastRefreshedAt
		d.LastRefreshedAt = &t
	}
	d.Dirty = core.IsDirty(d, s.baseline)
	return d
}

func (s *Session) loadingCount() int {
	n := 0
	for _, w := range s.widgets {
		if w.IsLoading {
			n++
		}
	}
	return n
}

func (s *Session) LoadingWidgets() (int, error) {
	var n int
	err := s.do(func() { n = s.loadingCount() })
	return n, err
}

func (s *Session) markRefreshed(t time.Time) {
	if s.lastRefreshedAt == nil || t.After(*s.lastRefreshedAt) {
		s.lastRefreshedAt = &t
	}
}
