// SPDX-License-Identifier: MPL-2.0

package session

import (
	"log/slog"

	"vizboard/server/core"
)

// RunWidget submits the widget's query. The widget is queued locally before
// the submission resolves.
func (s *Session) RunWidget(id string) error {
	var err error
	if doErr := s.do(func() {
		w, ok := s.widgets[id]
		if !ok {
			err = core.ErrNotFound("widget %s not found", id)
			return
		}
		if !w.Runnable() {
			err = core.ErrValidation("widget %s has no measures or dimensions", id)
			return
		}
		s.submit(w)
	}); doErr != nil {
		return doErr
	}
	return err
}

// RunAll submits every widget selecting at least one measure or dimension
// without waiting on any of them. It returns the number of submissions.
func (s *Session) RunAll() (int, error) {
	var n int
	err := s.do(func() { n = s.runAll() })
	return n, err
}

func (s *Session) runAll() int {
	n := 0
	for _, id := range s.order {
		w := s.widgets[id]
		if !w.Runnable() {
			continue
		}
		s.submit(w)
		n++
	}
	return n
}

func (s *Session) submit(w *core.Widget) {
	req := core.BuildQueryRequest(*w, s.dashboard.GlobalFilters, s.config.OrganizationID, s.dashboard.ProjectID, s.dashboard.SemanticModelID)
	w.Execution = core.Execution{IsLoading: true, JobStatus: core.JobStatusQueued}
	s.submitSeq++
	token := s.submitSeq
	s.submissions[w.ID] = token
	s.publishWidget(w)

	widgetID := w.ID
	go func() {
		ctx, cancel := s.requestContext()
		defer cancel()
		accepted, err := s.config.Jobs.SubmitQuery(ctx, req)
		s.post(func() { s.applySubmit(widgetID, token, accepted, err) })
	}()
}

// applySubmit ignores outcomes of submissions that were superseded by a
// newer run or whose widget is gone.
func (s *Session) applySubmit(widgetID string, token uint64, accepted core.JobAccepted, err error) {
	w, ok := s.widgets[widgetID]
	if !ok || s.submissions[widgetID] != token {
		return
	}
	delete(s.submissions, widgetID)
	if err != nil {
		metricJobsSubmitted.WithLabelValues("rejected").Inc()
		s.logger.Info("Query submission failed", slog.String("widget", widgetID), slog.Any("error", err))
		msg := err.Error()
		w.Execution = core.Execution{JobStatus: core.JobStatusFailed, Error: &msg}
		s.publishWidget(w)
		return
	}
	metricJobsSubmitted.WithLabelValues("accepted").Inc()
	jobID := accepted.JobID
	status := accepted.JobStatus
	// A job reported as already finished still has to be read for its result.
	if status.Terminal() || status == core.JobStatusIdle {
		status = core.JobStatusQueued
	}
	w.JobID = &jobID
	w.JobStatus = status
	w.Progress = 5
	w.StatusMessage = "Query job " + string(status)
	s.publishWidget(w)
}
