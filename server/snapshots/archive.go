// SPDX-License-Identifier: MPL-2.0

package snapshots

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"vizboard/server/core"
)

const DEFAULT_RETAIN_RESULTS = 5

// ResultsStore is what the archive wraps. Both the sqlite store and the
// semantic service client implement it.
type ResultsStore interface {
	GetResultsSnapshot(ctx context.Context, dashboardID string) (*core.ResultsSnapshot, error)
	PutResultsSnapshot(ctx context.Context, dashboardID string, snapshot core.ResultsSnapshot) error
}

// Archive mirrors every stored results snapshot to S3 and serves the latest
// archived copy when the wrapped store has none, for example after the local
// database was lost.
type Archive struct {
	inner  ResultsStore
	store  objectStore
	retain int
	logger *slog.Logger
}

func NewArchive(ctx context.Context, inner ResultsStore, config Config) (*Archive, error) {
	store, err := newBucket(ctx, config)
	if err != nil {
		return nil, err
	}
	return newArchive(inner, store, config), nil
}

func newArchive(inner ResultsStore, store objectStore, config Config) *Archive {
	retain := config.RetainResults
	if retain <= 0 {
		retain = DEFAULT_RETAIN_RESULTS
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Archive{inner: inner, store: store, retain: retain, logger: logger}
}

func resultsPrefix(dashboardID string) string {
	return RESULTS_PREFIX + dashboardID + "/"
}

func resultsKey(dashboardID string, capturedAt time.Time) string {
	return fmt.Sprintf("%svizboard-results-%s.json", resultsPrefix(dashboardID), capturedAt.UTC().Format(TIMESTAMP_FORMAT))
}

// PutResultsSnapshot stores the snapshot in the wrapped store first. An
// archive failure is logged and counted but not returned.
func (a *Archive) PutResultsSnapshot(ctx context.Context, dashboardID string, snapshot core.ResultsSnapshot) error {
	if err := a.inner.PutResultsSnapshot(ctx, dashboardID, snapshot); err != nil {
		return err
	}
	start := time.Now()
	if err := a.archive(ctx, dashboardID, snapshot); err != nil {
		metricArchiveCounter.WithLabelValues("failed").Inc()
		a.logger.Warn("Failed to archive results snapshot", slog.String("dashboard", dashboardID), slog.Any("error", err))
		return nil
	}
	metricArchiveCounter.WithLabelValues("success").Inc()
	metricArchiveDuration.Observe(time.Since(start).Seconds())
	return nil
}

func (a *Archive) archive(ctx context.Context, dashboardID string, snapshot core.ResultsSnapshot) error {
	data, err := json.Marshal(core.ResultsSnapshotPayload{Data: snapshot, CapturedAt: snapshot.CapturedAt})
	if err != nil {
		return fmt.Errorf("failed to encode results snapshot: %w", err)
	}
	if err := a.store.Put(ctx, resultsKey(dashboardID, snapshot.CapturedAt), data, "application/json"); err != nil {
		return err
	}
	return a.prune(ctx, dashboardID)
}

func (a *Archive) prune(ctx context.Context, dashboardID string) error {
	keys, err := a.store.List(ctx, resultsPrefix(dashboardID))
	if err != nil {
		return err
	}
	sort.Slice(keys, func(i, j int) bool {
		return extractTimestampFromKey(keys[i]).After(extractTimestampFromKey(keys[j]))
	})
	for _, key := range keys[min(len(keys), a.retain):] {
		if err := a.store.Remove(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (a *Archive) GetResultsSnapshot(ctx context.Context, dashboardID string) (*core.ResultsSnapshot, error) {
	snapshot, err := a.inner.GetResultsSnapshot(ctx, dashboardID)
	if err != nil || snapshot != nil {
		return snapshot, err
	}
	key, err := latestKey(ctx, a.store, resultsPrefix(dashboardID))
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, nil
	}
	data, err := a.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var payload core.ResultsSnapshotPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode archived results snapshot %s: %w", key, err)
	}
	metricArchiveRestoreCounter.Inc()
	a.logger.Info("Serving archived results snapshot", slog.String("dashboard", dashboardID), slog.String("s3_key", key))
	return &payload.Data, nil
}
