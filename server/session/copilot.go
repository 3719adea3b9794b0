// SPDX-License-Identifier: MPL-2.0

package session

import (
	"fmt"
	"log/slog"
	"strings"

	"vizboard/server/core"
)

// Copilot asks the copilot service to rework the dashboard. Only one request
// may be pending per session. The result is merged when its job is polled to
// completion.
func (s *Session) Copilot(instruction string) error {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return core.ErrValidation("instruction must not be empty")
	}
	if s.config.Copilot == nil {
		return core.ErrValidation("copilot is not configured")
	}
	var (
		req   core.CopilotRequest
		token uint64
		busy  bool
	)
	if err := s.do(func() {
		if s.copilotPending {
			busy = true
			return
		}
		s.copilotPending = true
		s.copilotToken++
		token = s.copilotToken
		req = core.CopilotRequest{
			Instruction:     instruction,
			OrganizationID:  s.config.OrganizationID,
			ProjectID:       s.dashboard.ProjectID,
			SemanticModelID: s.dashboard.SemanticModelID,
			Dashboard:       s.view().Persisted(),
		}
		s.publishDashboard()
	}); err != nil {
		return err
	}
	if busy {
		return core.ErrConflict("a copilot request is already in progress")
	}

	ctx, cancel := s.requestContext()
	defer cancel()
	accepted, err := s.config.Copilot.SubmitCopilot(ctx, req)

	doErr := s.do(func() {
		if token != s.copilotToken {
			return
		}
		if err != nil {
			metricCopilotJobs.WithLabelValues("rejected").Inc()
			s.clearCopilot()
			s.notify(NotificationError, fmt.Sprintf("Copilot request failed: %s", err))
			return
		}
		jobID := accepted.JobID
		s.copilotJobID = &jobID
	})
	if err != nil {
		return fmt.Errorf("failed to submit copilot request: %w", err)
	}
	return doErr
}

func (s *Session) clearCopilot() {
	s.copilotPending = false
	s.copilotJobID = nil
	s.publishDashboard()
}

func (s *Session) applyCopilotPoll(o pollOutcome) {
	if s.copilotJobID == nil || *s.copilotJobID != o.jobID {
		return
	}
	if o.err != nil {
		if s.pollFailed(o.pollKey, o.err) {
			metricCopilotJobs.WithLabelValues(string(core.JobStatusFailed)).Inc()
			s.clearCopilot()
			s.notify(NotificationError, "Copilot request failed: lost contact with copilot job")
		}
		return
	}
	s.pollSucceeded(o.pollKey)

	state := o.state
	switch state.Status {
	case core.JobStatusFailed, core.JobStatusCancelled:
		metricCopilotJobs.WithLabelValues(string(state.Status)).Inc()
		s.clearCopilot()
		s.notify(NotificationError, "Copilot request failed: "+state.Error.Message(fmt.Sprintf("copilot job %s", state.Status)))
	case core.JobStatusSucceeded:
		result, err := core.ParseCopilotResult(state.FinalResponse)
		if err != nil {
			metricCopilotJobs.WithLabelValues("malformed").Inc()
			s.clearCopilot()
			s.notify(NotificationError, fmt.Sprintf("Copilot returned an invalid result: %s", err))
			return
		}
		metricCopilotJobs.WithLabelValues(string(core.JobStatusSucceeded)).Inc()
		s.mergeCopilotResult(result)
		s.clearCopilot()
		s.notify(NotificationInfo, fmt.Sprintf("Copilot generated %d widgets", len(s.order)))
	}
}

// mergeCopilotResult replaces widgets and global filters wholesale. The
// dashboard identity and baseline are kept so the change shows as dirty.
func (s *Session) mergeCopilotResult(result core.CopilotResult) {
	filters := make([]core.FilterDraft, 0, len(result.GlobalFilters))
	for _, raw := range result.GlobalFilters {
		filters = append(filters, core.NormalizeFilter(raw))
	}
	s.resultsGen++
	s.dashboard.GlobalFilters = filters
	s.widgets = make(map[string]*core.Widget, len(result.Widgets))
	s.order = make([]string, 0, len(result.Widgets))
	s.submissions = map[string]uint64{}
	hasResults := false
	for _, raw := range result.Widgets {
		w := s.insertWidget(core.NormalizeWidget(raw), len(s.order))
		if w.QueryResult != nil {
			hasResults = true
		}
	}
	s.activeWidgetID = ""
	if len(s.order) > 0 {
		s.activeWidgetID = s.order[0]
	}
	if hasResults {
		s.snapshotDirty = true
	}
	s.logger.Info("Merged copilot result", slog.Int("widgets", len(s.order)), slog.Int("globalFilters", len(filters)))
	s.publishAll()
}
