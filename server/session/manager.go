// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nrednav/cuid2"

	"vizboard/server/core"
)

func newID() string {
	return cuid2.Generate()
}

// Manager keeps the open sessions of this process.
type Manager struct {
	config   Config
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(config Config) *Manager {
	config = config.withDefaults()
	return &Manager{config: config, sessions: map[string]*Session{}}
}

// Open starts a session on an empty draft.
func (m *Manager) Open() *Session {
	s := newSession(newID(), m.config)
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	m.config.Logger.Info("Session opened", slog.String("session", s.ID))
	return s
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, core.ErrNotFound("session %s not found", id)
	}
	return s, nil
}

func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return core.ErrNotFound("session %s not found", id)
	}
	s.Close()
	m.config.Logger.Info("Session closed", slog.String("session", id))
	return nil
}

func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = map[string]*Session{}
	m.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}

func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// LoadingWidgets sums the widgets with a query in flight over all sessions.
func (m *Manager) LoadingWidgets() int {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()
	total := 0
	for _, s := range sessions {
		if n, err := s.LoadingWidgets(); err == nil {
			total += n
		}
	}
	return total
}

func (m *Manager) CopilotEnabled() bool {
	return m.config.Copilot != nil
}

func (m *Manager) PollInterval() time.Duration {
	return m.config.PollInterval
}

func (m *Manager) ListDashboards(ctx context.Context) ([]core.DashboardSummary, error) {
	return m.config.Dashboards.ListDashboards(ctx, m.config.ProjectID)
}
