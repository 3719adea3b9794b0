// SPDX-License-Identifier: MPL-2.0

package session

import (
	"encoding/json"
	"log/slog"
	"time"

	"vizboard/server/core"
)

const (
	EVENT_WIDGET        = "widget"
	EVENT_DASHBOARD     = "dashboard"
	EVENT_NOTIFICATION  = "notification"
	EVENT_WIDGET_REMOVE = "widget-removed"
)

type NotificationLevel string

const (
	NotificationInfo  NotificationLevel = "info"
	NotificationError NotificationLevel = "error"
)

type Notification struct {
	Level   NotificationLevel `json:"level"`
	Message string            `json:"message"`
}

// DashboardEvent is the dashboard header without widgets. Widgets are
// announced one by one.
type DashboardEvent struct {
	ID              *string            `json:"id"`
	Name            string             `json:"name"`
	Description     string             `json:"description"`
	RefreshMode     core.RefreshMode   `json:"refreshMode"`
	SemanticModelID string             `json:"semanticModelId"`
	GlobalFilters   []core.FilterDraft `json:"globalFilters"`
	WidgetIDs       []string           `json:"widgetIds"`
	ActiveWidgetID  string             `json:"activeWidgetId"`
	LastRefreshedAt *time.Time         `json:"lastRefreshedAt"`
	Dirty           bool               `json:"dirty"`
	CopilotPending  bool               `json:"copilotPending"`
}

type widgetRemoved struct {
	ID string `json:"id"`
}

func (s *Session) publish(eventType string, payload any) {
	if s.config.Events == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("Failed to encode session event", slog.String("type", eventType), slog.Any("error", err))
		return
	}
	if err := s.config.Events.Publish(s.ID, eventType, data); err != nil {
		s.logger.Debug("Failed to publish session event", slog.String("type", eventType), slog.Any("error", err))
	}
}

func (s *Session) publishWidget(w *core.Widget) {
	s.publish(EVENT_WIDGET, w.Clone())
}

func (s *Session) publishDashboard() {
	s.publish(EVENT_DASHBOARD, DashboardEvent{
		ID:              s.dashboard.ID,
		Name:            s.dashboard.Name,
		Description:     s.dashboard.Description,
		RefreshMode:     s.dashboard.RefreshMode,
		SemanticModelID: s.dashboard.SemanticModelID,
		GlobalFilters:   append([]core.FilterDraft{}, s.dashboard.GlobalFilters...),
		WidgetIDs:       append([]string{}, s.order...),
		ActiveWidgetID:  s.activeWidgetID,
		LastRefreshedAt: s.lastRefreshedAt,
		Dirty:           s.dirty,
		CopilotPending:  s.copilotPending,
	})
}

// publishAll announces the dashboard and every widget after a wholesale
// replacement.
func (s *Session) publishAll() {
	s.publishDashboard()
	for _, id := range s.order {
		s.publishWidget(s.widgets[id])
	}
}

func (s *Session) notify(level NotificationLevel, message string) {
	if level == NotificationError {
		s.logger.Warn(message)
	}
	s.publish(EVENT_NOTIFICATION, Notification{Level: level, Message: message})
}
