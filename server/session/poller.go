// SPDX-License-Identifier: MPL-2.0

package session

import (
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"vizboard/server/core"
)

const (
	MAX_POLL_WAIT_TICKS = 16
	LOST_CONTACT_ERROR  = "lost contact with query job"
)

// pollKey identifies a job across both job services. Query and copilot job
// ids come from different services and may collide.
type pollKey struct {
	jobID   string
	copilot bool
}

type pollTarget struct {
	pollKey
	widgetID string
}

type pollOutcome struct {
	pollTarget
	state core.QueryJobState
	err   error
}

// tick polls every pending job that is not already being read. Each outcome
// is applied as soon as its read returns.
func (s *Session) tick() {
	targets := s.pollTargets()
	if len(targets) == 0 {
		return
	}
	for _, t := range targets {
		s.inFlight[t.pollKey] = true
	}
	go s.pollJobs(targets)
}

// pollTargets is recomputed from widget state on every tick so abandoned
// widgets drop out. Jobs backing off after failures are skipped.
func (s *Session) pollTargets() []pollTarget {
	targets := []pollTarget{}
	live := map[pollKey]bool{}
	for _, id := range s.order {
		w := s.widgets[id]
		if !w.IsLoading || w.JobID == nil || w.JobStatus.Terminal() {
			continue
		}
		key := pollKey{jobID: *w.JobID}
		live[key] = true
		if s.inFlight[key] || s.waiting(key) {
			continue
		}
		targets = append(targets, pollTarget{pollKey: key, widgetID: id})
	}
	if s.copilotJobID != nil {
		key := pollKey{jobID: *s.copilotJobID, copilot: true}
		live[key] = true
		if !s.inFlight[key] && !s.waiting(key) {
			targets = append(targets, pollTarget{pollKey: key})
		}
	}
	for key := range s.pollFailures {
		if !live[key] {
			delete(s.pollFailures, key)
			delete(s.pollWait, key)
		}
	}
	return targets
}

func (s *Session) waiting(key pollKey) bool {
	if s.pollWait[key] > 0 {
		s.pollWait[key]--
		return true
	}
	return false
}

// pollJobs reads the jobs of one tick concurrently and posts each outcome on
// its own. Errors stay with their job and never cancel the other reads.
func (s *Session) pollJobs(targets []pollTarget) {
	var g errgroup.Group
	g.SetLimit(s.config.PollParallelism)
	for _, t := range targets {
		g.Go(func() error {
			ctx, cancel := s.requestContext()
			defer cancel()
			start := time.Now()
			o := pollOutcome{pollTarget: t}
			if t.copilot {
				o.state, o.err = s.config.Copilot.GetCopilotJob(ctx, t.jobID)
			} else {
				o.state, o.err = s.config.Jobs.GetQueryJob(ctx, t.jobID)
			}
			metricPollDuration.Observe(time.Since(start).Seconds())
			s.post(func() {
				delete(s.inFlight, o.pollKey)
				if o.copilot {
					s.applyCopilotPoll(o)
				} else {
					s.applyPoll(o)
				}
			})
			return nil
		})
	}
	_ = g.Wait()
}

// pollFailed records a failed read and reports whether the job should be
// given up on. The next read of a job that failed n times in a row happens
// min(2^(n-1), 16) ticks later.
func (s *Session) pollFailed(key pollKey, err error) bool {
	metricPollErrors.Inc()
	s.pollFailures[key]++
	n := s.pollFailures[key]
	if n >= s.config.MaxPollFailures {
		delete(s.pollFailures, key)
		delete(s.pollWait, key)
		return true
	}
	s.pollWait[key] = min(1<<min(n-1, 4), MAX_POLL_WAIT_TICKS) - 1
	s.logger.Debug("Polling job failed", slog.String("job", key.jobID), slog.Bool("copilot", key.copilot), slog.Int("failures", n), slog.Any("error", err))
	return false
}

func (s *Session) pollSucceeded(key pollKey) {
	delete(s.pollFailures, key)
	delete(s.pollWait, key)
}

func (s *Session) applyPoll(o pollOutcome) {
	w, ok := s.widgets[o.widgetID]
	if !ok || !w.IsLoading || w.JobID == nil || *w.JobID != o.jobID {
		return
	}
	if o.err != nil {
		if !s.pollFailed(o.pollKey, o.err) {
			return
		}
		s.logger.Warn("Giving up on query job", slog.String("widget", w.ID), slog.String("job", o.jobID), slog.Any("error", o.err))
		msg := LOST_CONTACT_ERROR
		w.IsLoading = false
		w.JobStatus = core.JobStatusFailed
		w.Error = &msg
		metricJobsFinished.WithLabelValues(string(core.JobStatusFailed)).Inc()
		s.publishWidget(w)
		return
	}
	s.pollSucceeded(o.pollKey)

	state := o.state
	switch state.Status {
	case core.JobStatusFailed, core.JobStatusCancelled:
		msg := state.Error.Message(fmt.Sprintf("Query job %s", state.Status))
		w.IsLoading = false
		w.JobStatus = state.Status
		w.Progress = state.Progress
		w.StatusMessage = state.LastEventMessage()
		w.Error = &msg
	case core.JobStatusSucceeded:
		result, err := core.ParseQueryResult(state.FinalResponse)
		w.IsLoading = false
		w.Progress = 100
		w.StatusMessage = state.LastEventMessage()
		if err != nil {
			msg := fmt.Sprintf("Query returned an invalid result: %s", err)
			w.JobStatus = core.JobStatusFailed
			w.Error = &msg
			break
		}
		now := time.Now().UTC()
		w.JobStatus = core.JobStatusSucceeded
		w.QueryResult = result
		w.Error = nil
		w.RefreshedAt = &now
		s.markRefreshed(now)
		s.snapshotDirty = true
	default:
		w.JobStatus = state.Status
		w.Progress = state.Progress
		w.StatusMessage = state.LastEventMessage()
		s.publishWidget(w)
		return
	}
	metricJobsFinished.WithLabelValues(string(w.JobStatus)).Inc()
	s.publishWidget(w)
}
