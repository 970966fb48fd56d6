package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"apiwatch/internal/monitor"
	"apiwatch/internal/notify"
	"apiwatch/internal/repo"
	"apiwatch/internal/report"
)

// Maintenance bundles the periodic housekeeping jobs: downtime reminders,
// history retention and the daily digest.
type Maintenance struct {
	Store       repo.Store
	Announcer   *monitor.Announcer
	Channels    notify.Multi
	AdminChatID string
	Log         *zap.Logger

	ReminderEvery time.Duration
	RetentionDays int
	Now           func() time.Time
}

// RunReminderSweep re-alerts for targets that stayed DOWN. A reminder goes
// out when the last one (or the incident start) is at least ReminderEvery
// in the past.
func (m *Maintenance) RunReminderSweep(ctx context.Context) {
	if m.ReminderEvery <= 0 {
		return
	}
	targets, err := m.Store.ListActive(ctx)
	if err != nil {
		m.Log.Error("listing targets for reminder sweep", zap.Error(err))
		return
	}
	now := m.Now()
	for _, t := range targets {
		if t.IsUp || t.IncidentStartTime == nil {
			continue
		}
		last, err := m.Store.LastReminder(ctx, t.ID)
		if err != nil {
			m.Log.Error("loading reminder marker", zap.Error(err),
				zap.Int64("target_id", int64(t.ID)))
			continue
		}
		anchor := *t.IncidentStartTime
		if last != nil && last.After(anchor) {
			anchor = *last
		}
		if now.Sub(anchor) < m.ReminderEvery {
			continue
		}
		m.Announcer.Announce(ctx, t, report.Reminder(t, now.Sub(*t.IncidentStartTime)), false, now)
		if err := m.Store.SetLastReminder(ctx, t.ID, now); err != nil {
			m.Log.Error("recording reminder", zap.Error(err),
				zap.Int64("target_id", int64(t.ID)))
		}
	}
}

// RunRetention drops check history and anomaly events older than the
// retention window.
func (m *Maintenance) RunRetention(ctx context.Context) {
	if m.RetentionDays <= 0 {
		return
	}
	cutoff := m.Now().AddDate(0, 0, -m.RetentionDays)
	hist, err := m.Store.PurgeBefore(ctx, cutoff)
	if err != nil {
		m.Log.Error("purging history", zap.Error(err))
	}
	anom, err := m.Store.PurgeAnomaliesBefore(ctx, cutoff)
	if err != nil {
		m.Log.Error("purging anomaly events", zap.Error(err))
	}
	if hist > 0 || anom > 0 {
		m.Log.Info("retention purge",
			zap.Int64("history_rows", hist),
			zap.Int64("anomaly_rows", anom),
			zap.Time("cutoff", cutoff))
	}
}

// RunDigest sends the daily fleet summary to global subscribers, falling
// back to the admin chat.
func (m *Maintenance) RunDigest(ctx context.Context) {
	targets, err := m.Store.List(ctx)
	if err != nil {
		m.Log.Error("listing targets for digest", zap.Error(err))
		return
	}
	now := m.Now()
	var entries []report.DigestEntry
	for _, t := range targets {
		s, err := monitor.PeriodStatsFor(ctx, m.Store, t.ID, "day", now)
		if err != nil {
			m.Log.Error("digest stats", zap.Error(err), zap.Int64("target_id", int64(t.ID)))
			continue
		}
		entries = append(entries, report.DigestEntry{Target: t, Stats: s})
	}
	text := report.Digest(now, entries)

	// target id 0 matches only global subscriptions
	subs, err := m.Store.Recipients(ctx, 0)
	if err != nil {
		m.Log.Error("digest recipients", zap.Error(err))
	}
	var chats []string
	for _, s := range subs {
		chats = append(chats, s.ChatID)
	}
	if len(chats) == 0 && m.AdminChatID != "" {
		chats = append(chats, m.AdminChatID)
	}
	for _, chat := range chats {
		for _, d := range m.Channels.Deliver(ctx, chat, text) {
			if !d.OK {
				m.Log.Warn("digest delivery failed",
					zap.String("channel", d.Channel),
					zap.String("recipient", d.Recipient),
					zap.String("reason", d.Reason))
			}
		}
	}
}
