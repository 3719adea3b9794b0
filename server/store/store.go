// SPDX-License-Identifier: MPL-2.0

// Package store keeps dashboards and their cached results in a local sqlite
// database.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/nrednav/cuid2"
	_ "modernc.org/sqlite"

	"vizboard/server/core"
)

type Store struct {
	DB *sqlx.DB
}

// Open opens or creates the sqlite database at path. Use ":memory:" for a
// throwaway database.
func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// A single connection keeps :memory: databases shared and serializes
	// writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure sqlite: %w", err)
	}
	if err := initDB(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{DB: db}, nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

func initDB(db *sqlx.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS dashboards (
			id TEXT PRIMARY KEY,
			project_id TEXT,
			semantic_model_id TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL,
			refresh_mode TEXT NOT NULL,
			global_filters TEXT NOT NULL,
			widgets TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("error creating dashboards table: %w", err)
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS dashboards_project_idx ON dashboards (project_id, updated_at)`)
	if err != nil {
		return fmt.Errorf("error creating dashboards index: %w", err)
	}
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS results_snapshots (
			dashboard_id TEXT PRIMARY KEY REFERENCES dashboards(id) ON DELETE CASCADE,
			data TEXT NOT NULL,
			captured_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("error creating results_snapshots table: %w", err)
	}
	return nil
}

type dashboardRow struct {
	ID              string         `db:"id"`
	ProjectID       sql.NullString `db:"project_id"`
	SemanticModelID string         `db:"semantic_model_id"`
	Name            string         `db:"name"`
	Description     string         `db:"description"`
	RefreshMode     string         `db:"refresh_mode"`
	GlobalFilters   string         `db:"global_filters"`
	Widgets         string         `db:"widgets"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

func (r dashboardRow) toStored() (core.StoredDashboard, error) {
	d := core.StoredDashboard{
		ID:              r.ID,
		SemanticModelID: r.SemanticModelID,
		Name:            r.Name,
		Description:     r.Description,
		RefreshMode:     core.RefreshMode(r.RefreshMode),
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if r.ProjectID.Valid {
		d.ProjectID = &r.ProjectID.String
	}
	if err := json.Unmarshal([]byte(r.GlobalFilters), &d.GlobalFilters); err != nil {
		return core.StoredDashboard{}, fmt.Errorf("error decoding global filters of dashboard %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.Widgets), &d.Widgets); err != nil {
		return core.StoredDashboard{}, fmt.Errorf("error decoding widgets of dashboard %s: %w", r.ID, err)
	}
	return d, nil
}

func encodePayload(p core.PersistedDashboard) (string, string, error) {
	filters := p.GlobalFilters
	if filters == nil {
		filters = []core.FilterDraft{}
	}
	widgets := p.Widgets
	if widgets == nil {
		widgets = []core.PersistedWidget{}
	}
	f, err := json.Marshal(filters)
	if err != nil {
		return "", "", fmt.Errorf("error encoding global filters: %w", err)
	}
	w, err := json.Marshal(widgets)
	if err != nil {
		return "", "", fmt.Errorf("error encoding widgets: %w", err)
	}
	return string(f), string(w), nil
}

func refreshMode(m core.RefreshMode) string {
	if m == core.RefreshLive {
		return string(core.RefreshLive)
	}
	return string(core.RefreshManual)
}

func (s *Store) ListDashboards(ctx context.Context, projectID *string) ([]core.DashboardSummary, error) {
	dashboards := []core.DashboardSummary{}
	var err error
	if projectID != nil {
		err = s.DB.SelectContext(ctx, &dashboards,
			`SELECT id, name, description, refresh_mode, updated_at
			 FROM dashboards
			 WHERE project_id = $1
			 ORDER BY updated_at DESC`, *projectID)
	} else {
		err = s.DB.SelectContext(ctx, &dashboards,
			`SELECT id, name, description, refresh_mode, updated_at
			 FROM dashboards
			 ORDER BY updated_at DESC`)
	}
	if err != nil {
		return nil, fmt.Errorf("error listing dashboards: %w", err)
	}
	return dashboards, nil
}

func (s *Store) GetDashboard(ctx context.Context, id string) (core.StoredDashboard, error) {
	var row dashboardRow
	err := s.DB.GetContext(ctx, &row, `SELECT * FROM dashboards WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.StoredDashboard{}, core.ErrNotFound("dashboard %s not found", id)
	}
	if err != nil {
		return core.StoredDashboard{}, fmt.Errorf("error getting dashboard: %w", err)
	}
	return row.toStored()
}

func (s *Store) CreateDashboard(ctx context.Context, p core.PersistedDashboard) (core.StoredDashboard, error) {
	filters, widgets, err := encodePayload(p)
	if err != nil {
		return core.StoredDashboard{}, err
	}
	id := cuid2.Generate()
	now := time.Now().UTC()
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO dashboards (
			id, project_id, semantic_model_id, name, description, refresh_mode,
			global_filters, widgets, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		id, p.ProjectID, p.SemanticModelID, p.Name, p.Description, refreshMode(p.RefreshMode),
		filters, widgets, now, now,
	)
	if err != nil {
		return core.StoredDashboard{}, fmt.Errorf("error creating dashboard: %w", err)
	}
	return s.GetDashboard(ctx, id)
}

func (s *Store) UpdateDashboard(ctx context.Context, id string, p core.PersistedDashboard) (core.StoredDashboard, error) {
	filters, widgets, err := encodePayload(p)
	if err != nil {
		return core.StoredDashboard{}, err
	}
	res, err := s.DB.ExecContext(ctx,
		`UPDATE dashboards SET
			project_id = $1, semantic_model_id = $2, name = $3, description = $4,
			refresh_mode = $5, global_filters = $6, widgets = $7, updated_at = $8
		 WHERE id = $9`,
		p.ProjectID, p.SemanticModelID, p.Name, p.Description, refreshMode(p.RefreshMode),
		filters, widgets, time.Now().UTC(), id,
	)
	if err != nil {
		return core.StoredDashboard{}, fmt.Errorf("error updating dashboard: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.StoredDashboard{}, core.ErrNotFound("dashboard %s not found", id)
	}
	return s.GetDashboard(ctx, id)
}

func (s *Store) DeleteDashboard(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM dashboards WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("error deleting dashboard: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.ErrNotFound("dashboard %s not found", id)
	}
	return nil
}
