package monitor

import (
	"context"
	"fmt"
	"time"

	"apiwatch/internal/domain"
	"apiwatch/internal/repo"
	"apiwatch/internal/report"
)

// PeriodStatsFor aggregates a target's history, incidents and anomalies
// over a named reporting period ("hour", "day", "week", "month").
func PeriodStatsFor(ctx context.Context, st repo.Store, id domain.TargetID, period string, now time.Time) (*domain.PeriodStats, error) {
	window, label := report.PeriodWindow(period)
	since := now.Add(-window)

	total, ok, avg, err := st.HistoryStats(ctx, id, since)
	if err != nil {
		return nil, fmt.Errorf("history stats: %w", err)
	}
	uptime := 100.0
	if total > 0 {
		uptime = float64(ok) / float64(total) * 100
	}

	incidents, err := st.IncidentsSince(ctx, id, since)
	if err != nil {
		return nil, fmt.Errorf("incidents: %w", err)
	}
	var downtime time.Duration
	for _, inc := range incidents {
		start := inc.StartTime
		if start.Before(since) {
			start = since
		}
		end := now
		if inc.EndTime != nil {
			end = *inc.EndTime
		}
		if end.After(start) {
			downtime += end.Sub(start)
		}
	}
	var avgDown time.Duration
	if len(incidents) > 0 {
		avgDown = downtime / time.Duration(len(incidents))
	}

	anomalies, err := st.CountSince(ctx, id, since)
	if err != nil {
		return nil, fmt.Errorf("anomalies: %w", err)
	}

	return &domain.PeriodStats{
		Period:        label,
		TotalChecks:   total,
		UptimePercent: uptime,
		AvgLatencyMS:  avg,
		IncidentCount: len(incidents),
		TotalDowntime: downtime,
		AvgDowntime:   avgDown,
		AnomalyCount:  anomalies,
	}, nil
}
