// Package monitor runs the check pipeline: probe, state tracking,
// baseline statistics and anomaly detection.
package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"apiwatch/internal/domain"
	"apiwatch/internal/notify"
	"apiwatch/internal/repo"
)

// Announcer resolves recipients for a target and fans the message out to
// every configured channel. Failed deliveries are logged, never swallowed.
type Announcer struct {
	Subs        repo.SubscriberStore
	Channels    notify.Multi
	AdminChatID string
	Log         *zap.Logger
}

// Announce sends text to the target's subscribers. Anomaly announcements
// skip subscribers who opted out of them. A muted target announces
// nothing; when no subscriber matches, the admin chat is the fallback so
// alerts are never dropped on the floor.
func (a *Announcer) Announce(ctx context.Context, t *domain.Target, text string, anomaly bool, now time.Time) {
	if t.MutedAt(now) {
		a.Log.Debug("target muted, suppressing notification",
			zap.Int64("target_id", int64(t.ID)))
		return
	}

	subs, err := a.Subs.Recipients(ctx, t.ID)
	if err != nil {
		a.Log.Error("resolving recipients", zap.Error(err),
			zap.Int64("target_id", int64(t.ID)))
		subs = nil
	}

	var chats []string
	for _, s := range subs {
		if anomaly && !s.AnomalyAlerts {
			continue
		}
		chats = append(chats, s.ChatID)
	}
	if len(chats) == 0 && a.AdminChatID != "" {
		chats = append(chats, a.AdminChatID)
	}

	for _, chat := range chats {
		for _, d := range a.Channels.Deliver(ctx, chat, text) {
			if !d.OK {
				a.Log.Warn("notification delivery failed",
					zap.String("channel", d.Channel),
					zap.String("recipient", d.Recipient),
					zap.String("reason", d.Reason))
			}
		}
	}
}
