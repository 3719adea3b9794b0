// SPDX-License-Identifier: MPL-2.0

package session

import (
	"log/slog"
	"time"

	"vizboard/server/core"
)

// settle runs after every loop step, so poll results of a tick are all
// applied before dirtiness and the results snapshot are looked at.
func (s *Session) settle() {
	if s.pendingLiveRun != "" && s.dashboard.ID != nil && *s.dashboard.ID == s.pendingLiveRun {
		s.pendingLiveRun = ""
		n := s.runAll()
		s.logger.Debug("Auto-running live dashboard", slog.Int("widgets", n))
	}

	dirty := s.view().Dirty
	if dirty != s.dirty {
		s.dirty = dirty
		s.publishDashboard()
	}

	s.pushResultsSnapshot()
}

// pushResultsSnapshot persists cached results once nothing is loading. The
// flag stays raised on drafts until they are saved.
func (s *Session) pushResultsSnapshot() {
	if !s.snapshotDirty || s.loadingCount() > 0 || s.dashboard.ID == nil || s.config.Snapshots == nil {
		return
	}
	s.snapshotDirty = false
	widgets := make([]core.Widget, 0, len(s.order))
	for _, id := range s.order {
		widgets = append(widgets, *s.widgets[id])
	}
	snapshot, ok := core.BuildResultsSnapshot(widgets, time.Now())
	if !ok {
		return
	}
	dashboardID := *s.dashboard.ID
	go func() {
		ctx, cancel := s.requestContext()
		defer cancel()
		if err := s.config.Snapshots.PutResultsSnapshot(ctx, dashboardID, snapshot); err != nil {
			metricSnapshotPushes.WithLabelValues("failed").Inc()
			s.logger.Warn("Failed to persist results snapshot", slog.String("dashboard", dashboardID), slog.Any("error", err))
			return
		}
		metricSnapshotPushes.WithLabelValues("success").Inc()
	}()
}

// readResultsSnapshot fetches cached results for a freshly loaded
// dashboard. Read failures leave the widgets empty. The read is dropped when
// the widgets are replaced before it returns.
func (s *Session) readResultsSnapshot(dashboardID string) {
	if s.config.Snapshots == nil {
		return
	}
	gen := s.resultsGen
	go func() {
		ctx, cancel := s.requestContext()
		defer cancel()
		snapshot, err := s.config.Snapshots.GetResultsSnapshot(ctx, dashboardID)
		s.post(func() {
			if gen != s.resultsGen {
				return
			}
			if err != nil {
				s.logger.Debug("Failed to read results snapshot", slog.String("dashboard", dashboardID), slog.Any("error", err))
				return
			}
			if snapshot != nil {
				s.applyResultsSnapshot(*snapshot)
			}
		})
	}()
}

func (s *Session) applyResultsSnapshot(snapshot core.ResultsSnapshot) {
	for _, id := range s.order {
		cached, ok := snapshot.Widgets[id]
		w := s.widgets[id]
		if !ok || cached.Result == nil || w.IsLoading {
			continue
		}
		refreshed := cached.RefreshedAt
		if refreshed.IsZero() {
			refreshed = snapshot.CapturedAt
		}
		w.Execution = core.Execution{
			QueryResult:   cached.Result,
			JobStatus:     core.JobStatusSucceeded,
			Progress:      100,
			StatusMessage: core.CachedStatusMessage(refreshed),
			RefreshedAt:   &refreshed,
		}
		s.markRefreshed(refreshed)
		s.publishWidget(w)
	}
}
