// SPDX-License-Identifier: MPL-2.0

package core

import (
	"encoding/json"
	"time"
)

const (
	DEFAULT_DASHBOARD_NAME = "Untitled dashboard"
	DEFAULT_LIMIT          = 100
	DEFAULT_CHART_TYPE     = "table"
	DEFAULT_WIDGET_SIZE    = "medium"
)

type FieldKind string

const (
	FieldKindDimension FieldKind = "dimension"
	FieldKindMeasure   FieldKind = "measure"
	FieldKindMetric    FieldKind = "metric"
	FieldKindSegment   FieldKind = "segment"
)

// FieldOption is a catalog entry of a semantic model. Identity is ID.
type FieldOption struct {
	ID          string    `json:"id"`
	Label       string    `json:"label"`
	TableKey    string    `json:"tableKey,omitempty"`
	Type        string    `json:"type,omitempty"`
	Description string    `json:"description,omitempty"`
	Aggregation string    `json:"aggregation,omitempty"`
	Kind        FieldKind `json:"kind"`
}

// FilterDraft keeps Values as the raw comma separated user input.
type FilterDraft struct {
	ID       string `json:"id"`
	Member   string `json:"member"`
	Operator string `json:"operator"`
	Values   string `json:"values"`
}

type OrderDirection string

const (
	OrderAsc  OrderDirection = "asc"
	OrderDesc OrderDirection = "desc"
)

type OrderByDraft struct {
	ID        string         `json:"id"`
	Member    string         `json:"member"`
	Direction OrderDirection `json:"direction"`
}

type WidgetLayout struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

type RefreshMode string

const (
	RefreshManual RefreshMode = "manual"
	RefreshLive   RefreshMode = "live"
)

type JobStatus string

const (
	JobStatusIdle      JobStatus = "idle"
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

func (s JobStatus) Terminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed || s == JobStatusCancelled
}

// WidgetConfig is everything about a widget that gets persisted.
type WidgetConfig struct {
	ID              string         `json:"id"`
	Title           string         `json:"title"`
	Type            string         `json:"type"`
	Size            string         `json:"size"`
	Layout          WidgetLayout   `json:"layout"`
	Measures        []string       `json:"measures"`
	Dimensions      []string       `json:"dimensions"`
	Filters         []FilterDraft  `json:"filters"`
	OrderBys        []OrderByDraft `json:"orderBys"`
	Limit           int            `json:"limit"`
	TimeDimension   string         `json:"timeDimension"`
	TimeGrain       string         `json:"timeGrain"`
	TimeRangePreset string         `json:"timeRangePreset"`
	TimeRangeFrom   string         `json:"timeRangeFrom"`
	TimeRangeTo     string         `json:"timeRangeTo"`
	Visual          map[string]any `json:"visual,omitempty"`
}

// PersistedWidget is the stored view of a widget without execution state.
type PersistedWidget = WidgetConfig

// Execution holds the transient query state of a widget.
type Execution struct {
	QueryResult   *QueryResult `json:"queryResult"`
	IsLoading     bool         `json:"isLoading"`
	JobID         *string      `json:"jobId"`
	JobStatus     JobStatus    `json:"jobStatus"`
	Progress      int          `json:"progress"`
	StatusMessage string       `json:"statusMessage"`
	Error         *string      `json:"error"`
	RefreshedAt   *time.Time   `json:"refreshedAt,omitempty"`
}

type Widget struct {
	WidgetConfig
	Execution
}

func IdleExecution() Execution {
	return Execution{JobStatus: JobStatusIdle}
}

// Runnable reports whether the widget selects anything to query.
func (w Widget) Runnable() bool {
	return len(w.Measures) > 0 || len(w.Dimensions) > 0
}

func (w Widget) Persisted() PersistedWidget {
	return w.WidgetConfig.Clone()
}

func (w Widget) Clone() Widget {
	c := Widget{WidgetConfig: w.WidgetConfig.Clone(), Execution: w.Execution}
	if w.JobID != nil {
		c.JobID = new(string)
		*c.JobID = *w.JobID
	}
	if w.Error != nil {
		c.Error = new(string)
		*c.Error = *w.Error
	}
	if w.RefreshedAt != nil {
		t := *w.RefreshedAt
		c.RefreshedAt = &t
	}
	// Query results are treated as immutable once parsed.
	return c
}

func (c WidgetConfig) Clone() WidgetConfig {
	out := c
	out.Measures = append([]string{}, c.Measures...)
	out.Dimensions = append([]string{}, c.Dimensions...)
	out.Filters = append([]FilterDraft{}, c.Filters...)
	out.OrderBys = append([]OrderByDraft{}, c.OrderBys...)
	if c.Visual != nil {
		out.Visual = make(map[string]any, len(c.Visual))
		for k, v := range c.Visual {
			out.Visual[k] = v
		}
	}
	return out
}

type Dashboard struct {
	ID              *string       `json:"id"`
	ProjectID       *string       `json:"projectId"`
	Name            string        `json:"name"`
	Description     string        `json:"description"`
	RefreshMode     RefreshMode   `json:"refreshMode"`
	SemanticModelID string        `json:"semanticModelId"`
	GlobalFilters   []FilterDraft `json:"globalFilters"`
	Widgets         []Widget      `json:"widgets"`
	LastRefreshedAt *time.Time    `json:"lastRefreshedAt"`
	Dirty           bool          `json:"dirty"`
}

func NewDraftDashboard(projectID *string, semanticModelID string) Dashboard {
	return Dashboard{
		ProjectID:       projectID,
		Name:            DEFAULT_DASHBOARD_NAME,
		RefreshMode:     RefreshManual,
		SemanticModelID: semanticModelID,
		GlobalFilters:   []FilterDraft{},
		Widgets:         []Widget{},
	}
}

// PersistedDashboard is the create/update payload of the dashboard store.
type PersistedDashboard struct {
	ProjectID       *string           `json:"projectId"`
	SemanticModelID string            `json:"semanticModelId"`
	Name            string            `json:"name"`
	Description     string            `json:"description"`
	RefreshMode     RefreshMode       `json:"refreshMode"`
	GlobalFilters   []FilterDraft     `json:"globalFilters"`
	Widgets         []PersistedWidget `json:"widgets"`
}

func (d Dashboard) Persisted() PersistedDashboard {
	p := PersistedDashboard{
		ProjectID:       d.ProjectID,
		SemanticModelID: d.SemanticModelID,
		Name:            d.Name,
		Description:     d.Description,
		RefreshMode:     d.RefreshMode,
		GlobalFilters:   append([]FilterDraft{}, d.GlobalFilters...),
		Widgets:         make([]PersistedWidget, 0, len(d.Widgets)),
	}
	for _, w := range d.Widgets {
		p.Widgets = append(p.Widgets, w.Persisted())
	}
	return p
}

// StoredDashboard is what a store returns on read. Widgets are kept raw so
// they run through NormalizeWidget like any other untrusted widget input.
type StoredDashboard struct {
	ID              string           `json:"id"`
	ProjectID       *string          `json:"projectId"`
	SemanticModelID string           `json:"semanticModelId"`
	Name            string           `json:"name"`
	Description     string           `json:"description"`
	RefreshMode     RefreshMode      `json:"refreshMode"`
	GlobalFilters   []map[string]any `json:"globalFilters"`
	Widgets         []map[string]any `json:"widgets"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

type DashboardSummary struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	RefreshMode string    `json:"refreshMode" db:"refresh_mode"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}

type JobEvent struct {
	Message   string          `json:"message"`
	Type      string          `json:"type,omitempty"`
	Timestamp *time.Time      `json:"timestamp,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// JobAccepted is the response to a job submission.
type JobAccepted struct {
	JobID     string    `json:"jobId"`
	JobStatus JobStatus `json:"jobStatus"`
}

// QueryJobState is a read of an asynchronous job. Query and copilot jobs
// share the shape.
type QueryJobState struct {
	Status        JobStatus       `json:"status"`
	Progress      int             `json:"progress"`
	Events        []JobEvent      `json:"events"`
	FinalResponse json.RawMessage `json:"finalResponse,omitempty"`
	Error         JobError        `json:"error"`
}

func (s QueryJobState) LastEventMessage() string {
	if len(s.Events) == 0 {
		return ""
	}
	return s.Events[len(s.Events)-1].Message
}
