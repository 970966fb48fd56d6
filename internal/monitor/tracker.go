package monitor

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"apiwatch/internal/domain"
	"apiwatch/internal/metrics"
	"apiwatch/internal/probe"
	"apiwatch/internal/repo"
	"apiwatch/internal/report"
)

// Tracker applies a probe outcome to a target: it appends the history row,
// advances the up/down state machine and persists the new status in one
// write. State only flips after FailureThreshold consecutive failures or
// RecoveryThreshold consecutive successes, so a single blip never pages.
type Tracker struct {
	Store             repo.Store
	Announcer         *Announcer
	Metrics           *metrics.Metrics
	Log               *zap.Logger
	FailureThreshold  int
	RecoveryThreshold int
}

// Apply records the outcome and runs the state machine. The target is
// mutated in place so the caller sees the post-check state.
func (tr *Tracker) Apply(ctx context.Context, t *domain.Target, out probe.Outcome, now time.Time) error {
	row := &domain.CheckResult{
		TargetID:  t.ID,
		Timestamp: now,
		OK:        out.OK,
		LatencyMS: out.LatencyMS,
	}
	if out.StatusCode != 0 {
		sc := out.StatusCode
		row.StatusCode = &sc
	}
	if !out.OK {
		reason := out.Reason
		row.Error = &reason
	}
	if err := tr.Store.Append(ctx, row); err != nil {
		return fmt.Errorf("append history: %w", err)
	}

	label := strconv.FormatInt(int64(t.ID), 10)
	tr.Metrics.ChecksTotal.WithLabelValues(label).Inc()
	if out.OK {
		if out.LatencyMS >= 0 {
			tr.Metrics.ResponseTimeMS.WithLabelValues(label).Observe(float64(out.LatencyMS))
		}
		t.ConsecutiveSuccesses++
		t.ConsecutiveFailures = 0
	} else {
		tr.Metrics.ChecksFailTotal.WithLabelValues(label).Inc()
		t.ConsecutiveFailures++
		t.ConsecutiveSuccesses = 0
	}

	wentDown := t.IsUp && t.ConsecutiveFailures >= tr.FailureThreshold
	recovered := !t.IsUp && t.ConsecutiveSuccesses >= tr.RecoveryThreshold

	var downFor time.Duration
	var closedStart time.Time
	if wentDown {
		t.IsUp = false
		// backdate to the first failure of the streak
		start := now.Add(-time.Duration(t.ConsecutiveFailures-1) * time.Duration(t.IntervalSec) * time.Second)
		t.IncidentStartTime = &start
		if err := tr.Store.OpenIncident(ctx, t.ID, start); err != nil {
			tr.Log.Error("opening incident", zap.Error(err), zap.Int64("target_id", int64(t.ID)))
		}
		tr.Metrics.IncidentsTotal.WithLabelValues(label).Inc()
	} else if recovered {
		t.IsUp = true
		if t.IncidentStartTime != nil {
			closedStart = *t.IncidentStartTime
			downFor = now.Sub(closedStart)
			if err := tr.Store.CloseIncident(ctx, t.ID, closedStart, now); err != nil {
				tr.Log.Error("closing incident", zap.Error(err), zap.Int64("target_id", int64(t.ID)))
			}
		}
		t.IncidentStartTime = nil
	}

	u := &domain.StatusUpdate{
		LastChecked:          now,
		LastStatusCode:       row.StatusCode,
		LastResponseTime:     out.LatencyMS,
		LastError:            row.Error,
		ConsecutiveFailures:  t.ConsecutiveFailures,
		ConsecutiveSuccesses: t.ConsecutiveSuccesses,
		IsUp:                 t.IsUp,
		IncidentStartTime:    t.IncidentStartTime,
	}
	if err := tr.Store.UpdateStatus(ctx, t.ID, u); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	lc := now
	t.LastChecked = &lc
	t.LastStatusCode = row.StatusCode
	rt := out.LatencyMS
	t.LastResponseTime = &rt
	t.LastError = row.Error

	up := 0.0
	if t.IsUp {
		up = 1.0
	}
	tr.Metrics.TargetUp.WithLabelValues(label).Set(up)

	switch {
	case wentDown:
		tr.Log.Warn("target went down",
			zap.Int64("target_id", int64(t.ID)),
			zap.String("reason", out.Reason),
			zap.Int("failures", t.ConsecutiveFailures))
		tr.Announcer.Announce(ctx, t, report.Down(t, out.Reason, t.ConsecutiveFailures), false, now)
	case recovered:
		failed := tr.outageFailures(ctx, t.ID, closedStart)
		tr.Log.Info("target recovered",
			zap.Int64("target_id", int64(t.ID)),
			zap.Duration("downtime", downFor))
		tr.Announcer.Announce(ctx, t, report.Recovered(t, downFor, failed), false, now)
	}
	return nil
}

// outageFailures counts failed checks since the incident started, for the
// recovery message.
func (tr *Tracker) outageFailures(ctx context.Context, id domain.TargetID, since time.Time) int {
	if since.IsZero() {
		return 0
	}
	total, ok, _, err := tr.Store.HistoryStats(ctx, id, since)
	if err != nil {
		tr.Log.Error("counting outage failures", zap.Error(err), zap.Int64("target_id", int64(id)))
		return 0
	}
	return total - ok
}
