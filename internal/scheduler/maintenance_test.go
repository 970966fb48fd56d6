package scheduler

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"apiwatch/internal/domain"
	"apiwatch/internal/monitor"
	"apiwatch/internal/notify"
	"apiwatch/internal/repo/memory"
)

type capturingNotifier struct {
	texts []string
	chats []string
}

func (c *capturingNotifier) Send(ctx context.Context, recipient, text string) notify.Delivery {
	c.chats = append(c.chats, recipient)
	c.texts = append(c.texts, text)
	return notify.Delivered("test", recipient)
}

func newMaintenance(st *memory.Store, now time.Time) (*Maintenance, *capturingNotifier) {
	n := &capturingNotifier{}
	channels := notify.Multi{n}
	return &Maintenance{
		Store: st,
		Announcer: &monitor.Announcer{
			Subs: st, Channels: channels, AdminChatID: "admin", Log: zap.NewNop(),
		},
		Channels:      channels,
		AdminChatID:   "admin",
		Log:           zap.NewNop(),
		ReminderEvery: time.Hour,
		RetentionDays: 30,
		Now:           func() time.Time { return now },
	}, n
}

func downTarget(t *testing.T, st *memory.Store, since time.Time) *domain.Target {
	t.Helper()
	tg := &domain.Target{
		Name: "api", URL: "https://api.example.com", Method: "GET",
		ExpectedStatus: 200, TimeoutSec: 10, IntervalSec: 60,
		IsActive: true, IsUp: false, IncidentStartTime: &since,
	}
	if err := st.Create(context.Background(), tg); err != nil {
		t.Fatalf("create: %v", err)
	}
	// Create does not persist transient status fields, push them explicitly
	err := st.UpdateStatus(context.Background(), tg.ID, &domain.StatusUpdate{
		LastChecked: since, IsUp: false, IncidentStartTime: &since,
		ConsecutiveFailures: 3,
	})
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	return tg
}

func TestReminderSweep_RemindsLongOutageOnce(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	st := memory.New()
	m, n := newMaintenance(st, now)
	downTarget(t, st, now.Add(-2*time.Hour))

	m.RunReminderSweep(context.Background())
	if len(n.texts) != 1 || !strings.Contains(n.texts[0], "still DOWN") {
		t.Fatalf("want one reminder, got %v", n.texts)
	}

	// a second sweep inside the reminder interval stays silent
	m.RunReminderSweep(context.Background())
	if len(n.texts) != 1 {
		t.Fatalf("reminder repeated too soon: %v", n.texts)
	}

	// after the interval passes it fires again
	m.Now = func() time.Time { return now.Add(61 * time.Minute) }
	m.RunReminderSweep(context.Background())
	if len(n.texts) != 2 {
		t.Fatalf("want second reminder after interval, got %v", n.texts)
	}
}

func TestReminderSweep_FreshOutageNotReminded(t *testing.T) {
	now := time.Now().UTC()
	st := memory.New()
	m, n := newMaintenance(st, now)
	downTarget(t, st, now.Add(-10*time.Minute))

	m.RunReminderSweep(context.Background())
	if len(n.texts) != 0 {
		t.Fatalf("fresh outage must not remind yet: %v", n.texts)
	}
}

func TestRetention_PurgesOldRows(t *testing.T) {
	now := time.Now().UTC()
	st := memory.New()
	m, _ := newMaintenance(st, now)
	tg := downTarget(t, st, now.Add(-time.Hour))
	ctx := context.Background()

	_ = st.Append(ctx, &domain.CheckResult{TargetID: tg.ID, Timestamp: now.AddDate(0, 0, -40), OK: true, LatencyMS: 10})
	_ = st.Append(ctx, &domain.CheckResult{TargetID: tg.ID, Timestamp: now, OK: true, LatencyMS: 20})
	_ = st.AppendAnomaly(ctx, &domain.AnomalyEvent{TargetID: tg.ID, Timestamp: now.AddDate(0, 0, -40)})

	m.RunRetention(ctx)

	if total, _, _, _ := st.HistoryStats(ctx, tg.ID, now.AddDate(0, 0, -60)); total != 1 {
		t.Fatalf("want 1 history row after purge, got %d", total)
	}
	if cnt, _ := st.CountSince(ctx, tg.ID, now.AddDate(0, 0, -60)); cnt != 0 {
		t.Fatalf("want 0 anomaly rows after purge, got %d", cnt)
	}
}

func TestDigest_FallsBackToAdmin(t *testing.T) {
	now := time.Now().UTC()
	st := memory.New()
	m, n := newMaintenance(st, now)
	downTarget(t, st, now.Add(-time.Hour))

	m.RunDigest(context.Background())
	if len(n.chats) != 1 || n.chats[0] != "admin" {
		t.Fatalf("digest should fall back to admin, got %v", n.chats)
	}
	if !strings.Contains(n.texts[0], "Daily digest") {
		t.Fatalf("unexpected digest text: %s", n.texts[0])
	}
}

func TestDigest_GoesToGlobalSubscribers(t *testing.T) {
	now := time.Now().UTC()
	st := memory.New()
	m, n := newMaintenance(st, now)
	ctx := context.Background()
	_ = st.Subscribe(ctx, &domain.Subscriber{ChatID: "ops", AnomalyAlerts: true})

	m.RunDigest(ctx)
	if len(n.chats) != 1 || n.chats[0] != "ops" {
		t.Fatalf("digest should reach global subscriber, got %v", n.chats)
	}
}
