// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"vizboard/server/core"
)

type DashboardPatch struct {
	Name            *string             `json:"name"`
	Description     *string             `json:"description"`
	RefreshMode     *core.RefreshMode   `json:"refreshMode"`
	SemanticModelID *string             `json:"semanticModelId"`
	GlobalFilters   *[]core.FilterDraft `json:"globalFilters"`
}

// replaceDashboard swaps the whole dashboard. Outstanding jobs, snapshot
// reads and copilot requests of the previous one are abandoned.
func (s *Session) replaceDashboard(d core.Dashboard, baseline *string) {
	s.loadGen++
	s.resultsGen++
	s.copilotToken++
	s.copilotPending = false
	s.copilotJobID = nil
	s.dashboard = d
	s.widgets = make(map[string]*core.Widget, len(d.Widgets))
	s.order = make([]string, 0, len(d.Widgets))
	for _, w := range d.Widgets {
		s.insertWidget(w, len(s.order))
	}
	s.dashboard.Widgets = nil
	s.activeWidgetID = ""
	if len(s.order) > 0 {
		s.activeWidgetID = s.order[0]
	}
	s.baseline = baseline
	s.snapshotDirty = false
	s.pendingLiveRun = ""
	s.lastRefreshedAt = nil
	s.submissions = map[string]uint64{}
	s.dirty = core.IsDirty(s.view(), s.baseline)
}

func (s *Session) resetDraft() {
	s.replaceDashboard(core.NewDraftDashboard(s.config.ProjectID, s.config.SemanticModelID), nil)
}

// insertWidget adds w at position i, assigning a fresh id on collision.
func (s *Session) insertWidget(w core.Widget, i int) *core.Widget {
	if _, taken := s.widgets[w.ID]; taken || strings.TrimSpace(w.ID) == "" {
		w.ID = newID()
	}
	stored := w
	s.widgets[w.ID] = &stored
	s.order = slices.Insert(s.order, i, w.ID)
	return &stored
}

func (s *Session) NewDraft() (State, error) {
	var state State
	err := s.do(func() {
		s.resetDraft()
		s.publishAll()
		state = s.state()
	})
	return state, err
}

// Load replaces the session's dashboard with a stored one. Cached results
// arrive asynchronously; live dashboards run all widgets once.
func (s *Session) Load(ctx context.Context, id string) (State, error) {
	stored, err := s.config.Dashboards.GetDashboard(ctx, id)
	if err != nil {
		return State{}, err
	}
	d := core.NormalizeDashboard(stored)
	baseline := core.CanonicalSnapshot(d)
	var state State
	err = s.do(func() {
		s.replaceDashboard(d, &baseline)
		if d.RefreshMode == core.RefreshLive {
			s.pendingLiveRun = stored.ID
		}
		s.readResultsSnapshot(stored.ID)
		s.publishAll()
		state = s.state()
	})
	return state, err
}

// Save creates a draft or updates a saved dashboard. The saved content
// becomes the new baseline.
func (s *Session) Save(ctx context.Context) (State, error) {
	var (
		id       *string
		payload  core.PersistedDashboard
		baseline string
		gen      uint64
		busy     bool
	)
	if err := s.do(func() {
		if s.saving {
			busy = true
			return
		}
		s.saving = true
		view := s.view()
		id = view.ID
		payload = view.Persisted()
		baseline = core.CanonicalSnapshot(view)
		gen = s.loadGen
	}); err != nil {
		return State{}, err
	}
	if busy {
		return State{}, core.ErrConflict("dashboard is already being saved")
	}

	var (
		stored core.StoredDashboard
		err    error
	)
	if id == nil {
		stored, err = s.config.Dashboards.CreateDashboard(ctx, payload)
	} else {
		stored, err = s.config.Dashboards.UpdateDashboard(ctx, *id, payload)
	}

	var state State
	doErr := s.do(func() {
		s.saving = false
		if err != nil {
			s.notify(NotificationError, fmt.Sprintf("Failed to save dashboard: %s", err))
			return
		}
		if gen == s.loadGen {
			savedID := stored.ID
			s.dashboard.ID = &savedID
			s.baseline = &baseline
			for _, w := range s.widgets {
				if w.QueryResult != nil {
					s.snapshotDirty = true
					break
				}
			}
			s.publishDashboard()
		}
		state = s.state()
	})
	if err != nil {
		return State{}, fmt.Errorf("failed to save dashboard: %w", err)
	}
	return state, doErr
}

// Delete removes the saved dashboard and leaves the session on a new draft.
func (s *Session) Delete(ctx context.Context) (State, error) {
	var id *string
	var gen uint64
	if err := s.do(func() {
		id = s.dashboard.ID
		gen = s.loadGen
	}); err != nil {
		return State{}, err
	}
	if id == nil {
		return State{}, core.ErrValidation("dashboard has not been saved")
	}
	err := s.config.Dashboards.DeleteDashboard(ctx, *id)
	var state State
	doErr := s.do(func() {
		if err != nil {
			s.notify(NotificationError, fmt.Sprintf("Failed to delete dashboard: %s", err))
			return
		}
		if gen == s.loadGen {
			s.resetDraft()
			s.publishAll()
		}
		state = s.state()
	})
	if err != nil {
		return State{}, fmt.Errorf("failed to delete dashboard: %w", err)
	}
	return state, doErr
}

func (s *Session) UpdateDashboard(patch DashboardPatch) (State, error) {
	if patch.RefreshMode != nil && *patch.RefreshMode != core.RefreshManual && *patch.RefreshMode != core.RefreshLive {
		return State{}, core.ErrValidation("invalid refresh mode %q", *patch.RefreshMode)
	}
	var state State
	err := s.do(func() {
		if patch.Name != nil {
			s.dashboard.Name = *patch.Name
		}
		if patch.Description != nil {
			s.dashboard.Description = *patch.Description
		}
		if patch.RefreshMode != nil {
			s.dashboard.RefreshMode = *patch.RefreshMode
		}
		if patch.SemanticModelID != nil {
			s.dashboard.SemanticModelID = *patch.SemanticModelID
		}
		if patch.GlobalFilters != nil {
			filters := make([]core.FilterDraft, 0, len(*patch.GlobalFilters))
			for _, f := range *patch.GlobalFilters {
				if f.ID == "" {
					f.ID = newID()
				}
				if f.Operator == "" {
					f.Operator = core.DEFAULT_FILTER_OPERATOR
				}
				filters = append(filters, f)
			}
			s.dashboard.GlobalFilters = filters
		}
		s.publishDashboard()
		state = s.state()
	})
	return state, err
}

// AddWidget normalizes raw widget input and appends it as the active widget.
func (s *Session) AddWidget(raw map[string]any) (core.Widget, error) {
	var out core.Widget
	err := s.do(func() {
		w := core.NormalizeWidget(raw)
		w.Execution = core.IdleExecution()
		stored := s.insertWidget(w, len(s.order))
		s.activeWidgetID = stored.ID
		s.publishWidget(stored)
		s.publishDashboard()
		out = stored.Clone()
	})
	return out, err
}

// UpdateWidget merges patch into the widget config. Execution state and the
// id are kept.
func (s *Session) UpdateWidget(id string, patch map[string]any) (core.Widget, error) {
	var out core.Widget
	var err error
	if doErr := s.do(func() {
		w, ok := s.widgets[id]
		if !ok {
			err = core.ErrNotFound("widget %s not found", id)
			return
		}
		raw, mapErr := core.ToRawMap(w.Persisted())
		if mapErr != nil {
			err = fmt.Errorf("failed to read widget %s: %w", id, mapErr)
			return
		}
		for k, v := range patch {
			if k == "id" {
				continue
			}
			raw[k] = v
		}
		updated := core.NormalizeWidget(raw)
		w.WidgetConfig = updated.WidgetConfig
		w.ID = id
		s.publishWidget(w)
		out = w.Clone()
	}); doErr != nil {
		return core.Widget{}, doErr
	}
	return out, err
}

func (s *Session) RemoveWidget(id string) error {
	var err error
	if doErr := s.do(func() {
		i := slices.Index(s.order, id)
		if i < 0 {
			err = core.ErrNotFound("widget %s not found", id)
			return
		}
		s.order = slices.Delete(s.order, i, i+1)
		delete(s.widgets, id)
		delete(s.submissions, id)
		if s.activeWidgetID == id {
			s.activeWidgetID = ""
			if len(s.order) > 0 {
				s.activeWidgetID = s.order[min(i, len(s.order)-1)]
			}
		}
		s.publish(EVENT_WIDGET_REMOVE, widgetRemoved{ID: id})
		s.publishDashboard()
	}); doErr != nil {
		return doErr
	}
	return err
}

// DuplicateWidget copies a widget's config next to it with a new id and an
// idle execution state.
func (s *Session) DuplicateWidget(id string) (core.Widget, error) {
	var out core.Widget
	var err error
	if doErr := s.do(func() {
		i := slices.Index(s.order, id)
		if i < 0 {
			err = core.ErrNotFound("widget %s not found", id)
			return
		}
		src := s.widgets[id]
		copied := core.Widget{WidgetConfig: src.WidgetConfig.Clone(), Execution: core.IdleExecution()}
		copied.ID = newID()
		copied.Title = src.Title + " (copy)"
		stored := s.insertWidget(copied, i+1)
		s.activeWidgetID = stored.ID
		s.publishWidget(stored)
		s.publishDashboard()
		out = stored.Clone()
	}); doErr != nil {
		return core.Widget{}, doErr
	}
	return out, err
}

func (s *Session) SetActiveWidget(id string) error {
	var err error
	if doErr := s.do(func() {
		if _, ok := s.widgets[id]; !ok {
			err = core.ErrNotFound("widget %s not found", id)
			return
		}
		s.activeWidgetID = id
		s.publishDashboard()
	}); doErr != nil {
		return doErr
	}
	return err
}
