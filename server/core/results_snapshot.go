// SPDX-License-Identifier: MPL-2.0

package core

import (
	"fmt"
	"time"
)

const RESULTS_SNAPSHOT_VERSION = 1

type CachedWidgetResult struct {
	RefreshedAt time.Time    `json:"refreshed_at"`
	Result      *QueryResult `json:"result"`
}

// ResultsSnapshot caches the last successful result of every widget so a
// dashboard can be shown before its queries ran again.
type ResultsSnapshot struct {
	Version    int                           `json:"version"`
	CapturedAt time.Time                     `json:"captured_at"`
	Widgets    map[string]CachedWidgetResult `json:"widgets"`
}

// ResultsSnapshotPayload is the wire form used by snapshot stores.
type ResultsSnapshotPayload struct {
	Data       ResultsSnapshot `json:"data"`
	CapturedAt time.Time       `json:"capturedAt"`
}

// BuildResultsSnapshot collects the widgets holding a result. ok is false
// when there is nothing to cache.
func BuildResultsSnapshot(widgets []Widget, now time.Time) (ResultsSnapshot, bool) {
	s := ResultsSnapshot{
		Version:    RESULTS_SNAPSHOT_VERSION,
		CapturedAt: now.UTC(),
		Widgets:    map[string]CachedWidgetResult{},
	}
	for _, w := range widgets {
		if w.QueryResult == nil {
			continue
		}
		refreshed := s.CapturedAt
		if w.RefreshedAt != nil {
			refreshed = w.RefreshedAt.UTC()
		}
		s.Widgets[w.ID] = CachedWidgetResult{RefreshedAt: refreshed, Result: w.QueryResult}
	}
	return s, len(s.Widgets) > 0
}

// CachedStatusMessage is shown on widgets whose result came from a snapshot.
func CachedStatusMessage(refreshedAt time.Time) string {
	return fmt.Sprintf("Loaded from cache (%s)", refreshedAt.UTC().Format(time.RFC3339))
}
