// SPDX-License-Identifier: MPL-2.0

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"vizboard/server/core"
)

// GetResultsSnapshot returns nil when nothing was cached for the dashboard.
func (s *Store) GetResultsSnapshot(ctx context.Context, dashboardID string) (*core.ResultsSnapshot, error) {
	var data string
	err := s.DB.GetContext(ctx, &data, `SELECT data FROM results_snapshots WHERE dashboard_id = $1`, dashboardID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error getting results snapshot: %w", err)
	}
	var snapshot core.ResultsSnapshot
	if err := json.Unmarshal([]byte(data), &snapshot); err != nil {
		return nil, fmt.Errorf("error decoding results snapshot of dashboard %s: %w", dashboardID, err)
	}
	return &snapshot, nil
}

func (s *Store) PutResultsSnapshot(ctx context.Context, dashboardID string, snapshot core.ResultsSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("error encoding results snapshot: %w", err)
	}
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO results_snapshots (dashboard_id, data, captured_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (dashboard_id) DO UPDATE SET data = excluded.data, captured_at = excluded.captured_at`,
		dashboardID, string(data), snapshot.CapturedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("error storing results snapshot: %w", err)
	}
	return nil
}
