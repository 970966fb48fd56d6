package monitor

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"apiwatch/internal/domain"
	"apiwatch/internal/metrics"
	"apiwatch/internal/notify"
	"apiwatch/internal/probe"
	"apiwatch/internal/repo/memory"
)

type capturingNotifier struct {
	recipients []string
	texts      []string
}

func (c *capturingNotifier) Send(ctx context.Context, recipient, text string) notify.Delivery {
	c.recipients = append(c.recipients, recipient)
	c.texts = append(c.texts, text)
	return notify.Delivered("test", recipient)
}

func newFixture(t *testing.T) (*memory.Store, *capturingNotifier, *Announcer) {
	t.Helper()
	st := memory.New()
	n := &capturingNotifier{}
	a := &Announcer{
		Subs:        st,
		Channels:    notify.Multi{n},
		AdminChatID: "admin",
		Log:         zap.NewNop(),
	}
	return st, n, a
}

func seedTarget(t *testing.T, st *memory.Store) *domain.Target {
	t.Helper()
	tg := &domain.Target{
		Name: "api", URL: "https://api.example.com", Method: "GET",
		ExpectedStatus: 200, TimeoutSec: 10, IntervalSec: 60,
		IsActive: true, IsUp: true, AnomalyAlerts: true,
	}
	if err := st.Create(context.Background(), tg); err != nil {
		t.Fatalf("create: %v", err)
	}
	return tg
}

func failOutcome() probe.Outcome {
	return probe.Outcome{OK: false, LatencyMS: 10000, Reason: probe.ReasonTimeout, Transient: true}
}

func okOutcome(lat int64) probe.Outcome {
	return probe.Outcome{OK: true, LatencyMS: lat, StatusCode: 200, Reason: probe.ReasonOK}
}

func newTracker(st *memory.Store, a *Announcer) *Tracker {
	return &Tracker{
		Store: st, Announcer: a, Metrics: metrics.NewNop(), Log: zap.NewNop(),
		FailureThreshold: 3, RecoveryThreshold: 2,
	}
}

func TestTracker_DownRequiresConsecutiveFailures(t *testing.T) {
	st, n, a := newFixture(t)
	tg := seedTarget(t, st)
	tr := newTracker(st, a)
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		if err := tr.Apply(ctx, tg, failOutcome(), now.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}
	if !tg.IsUp {
		t.Fatal("two failures must not flip a threshold-3 target")
	}
	if len(n.texts) != 0 {
		t.Fatalf("no notification expected yet, got %v", n.texts)
	}

	third := now.Add(2 * time.Minute)
	if err := tr.Apply(ctx, tg, failOutcome(), third); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if tg.IsUp {
		t.Fatal("third consecutive failure must mark the target DOWN")
	}
	// incident backdated to the first failure of the streak
	wantStart := third.Add(-2 * 60 * time.Second)
	if tg.IncidentStartTime == nil || !tg.IncidentStartTime.Equal(wantStart) {
		t.Fatalf("incident start = %v, want %v", tg.IncidentStartTime, wantStart)
	}
	if len(n.texts) != 1 || !strings.Contains(n.texts[0], "DOWN") {
		t.Fatalf("want one DOWN notification, got %v", n.texts)
	}

	// persisted state matches the in-memory transition
	got, _ := st.Get(ctx, tg.ID)
	if got.IsUp || got.ConsecutiveFailures != 3 {
		t.Fatalf("persisted state mismatch: %+v", got)
	}
}

func TestTracker_SuccessResetsFailureStreak(t *testing.T) {
	st, _, a := newFixture(t)
	tg := seedTarget(t, st)
	tr := newTracker(st, a)
	ctx := context.Background()
	now := time.Now().UTC()

	_ = tr.Apply(ctx, tg, failOutcome(), now)
	_ = tr.Apply(ctx, tg, failOutcome(), now.Add(time.Minute))
	_ = tr.Apply(ctx, tg, okOutcome(90), now.Add(2*time.Minute))
	_ = tr.Apply(ctx, tg, failOutcome(), now.Add(3*time.Minute))

	if !tg.IsUp || tg.ConsecutiveFailures != 1 {
		t.Fatalf("interleaved success must reset the streak: %+v", tg)
	}
}

func TestTracker_RecoveryClosesIncident(t *testing.T) {
	st, n, a := newFixture(t)
	tg := seedTarget(t, st)
	tr := newTracker(st, a)
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		_ = tr.Apply(ctx, tg, failOutcome(), now.Add(time.Duration(i)*time.Minute))
	}
	start := *tg.IncidentStartTime

	_ = tr.Apply(ctx, tg, okOutcome(100), now.Add(3*time.Minute))
	if tg.IsUp {
		t.Fatal("one success must not recover a threshold-2 target")
	}

	end := now.Add(4 * time.Minute)
	_ = tr.Apply(ctx, tg, okOutcome(110), end)
	if !tg.IsUp || tg.IncidentStartTime != nil {
		t.Fatalf("want recovered target, got %+v", tg)
	}

	incs, _ := st.IncidentsSince(ctx, tg.ID, start.Add(-time.Minute))
	if len(incs) != 1 || incs[0].EndTime == nil || !incs[0].EndTime.Equal(end) {
		t.Fatalf("incident not closed: %+v", incs)
	}
	last := n.texts[len(n.texts)-1]
	if !strings.Contains(last, "back UP") {
		t.Fatalf("want recovery notification, got %q", last)
	}
}

func TestTracker_MutedTargetChangesStateSilently(t *testing.T) {
	st, n, a := newFixture(t)
	tg := seedTarget(t, st)
	tg.Muted = true
	tr := newTracker(st, a)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		_ = tr.Apply(ctx, tg, failOutcome(), now.Add(time.Duration(i)*time.Minute))
	}
	if tg.IsUp {
		t.Fatal("mute must not stop state tracking")
	}
	if len(n.texts) != 0 {
		t.Fatalf("muted target must not notify: %v", n.texts)
	}
}

func newDetector(st *memory.Store, a *Announcer, now time.Time) *Detector {
	return &Detector{
		Store: st, Announcer: a, Metrics: metrics.NewNop(), Log: zap.NewNop(),
		Sensitivity: 1.5, PctFactor: 0.5, M: 2, N: 3,
		Cooldown: 10 * time.Minute,
		Now:      func() time.Time { return now },
	}
}

func appendOK(t *testing.T, st *memory.Store, id domain.TargetID, ts time.Time, lats ...int64) {
	t.Helper()
	for i, l := range lats {
		err := st.Append(context.Background(), &domain.CheckResult{
			TargetID: id, Timestamp: ts.Add(time.Duration(i) * time.Minute),
			OK: true, LatencyMS: l,
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}
}

func TestDetector_FlagsSustainedSlowness(t *testing.T) {
	st, n, a := newFixture(t)
	tg := seedTarget(t, st)
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	_ = st.AppendBaseline(ctx, &domain.Baseline{TargetID: tg.ID, ComputedAt: now, UCLMS: 100})
	// threshold = 100*1.5 = 150; last 3 samples incl. current: 120, 180, 200
	appendOK(t, st, tg.ID, now.Add(-3*time.Minute), 120, 180, 200)

	d := newDetector(st, a, now)
	e, err := d.Evaluate(ctx, tg, okOutcome(200))
	if err != nil || e == nil {
		t.Fatalf("want anomaly, got %v, %v", e, err)
	}
	if e.Reason != ReasonUCLSensitivity || e.Deviation != 50 {
		t.Fatalf("unexpected event: %+v", e)
	}
	if len(n.texts) != 1 || !strings.Contains(n.texts[0], "Slow responses") {
		t.Fatalf("want anomaly notification, got %v", n.texts)
	}
}

func TestDetector_DebouncesSingleSpike(t *testing.T) {
	st, _, a := newFixture(t)
	tg := seedTarget(t, st)
	ctx := context.Background()
	now := time.Now().UTC()

	_ = st.AppendBaseline(ctx, &domain.Baseline{TargetID: tg.ID, ComputedAt: now, UCLMS: 100})
	// only the current sample exceeds 150; 1 of 3 < m=2
	appendOK(t, st, tg.ID, now.Add(-3*time.Minute), 100, 110, 400)

	d := newDetector(st, a, now)
	if e, err := d.Evaluate(ctx, tg, okOutcome(400)); err != nil || e != nil {
		t.Fatalf("single spike must be debounced, got %v, %v", e, err)
	}
}

func TestDetector_NoBaselineNoAnomaly(t *testing.T) {
	st, _, a := newFixture(t)
	tg := seedTarget(t, st)
	now := time.Now().UTC()
	appendOK(t, st, tg.ID, now.Add(-2*time.Minute), 900, 900)

	d := newDetector(st, a, now)
	if e, err := d.Evaluate(context.Background(), tg, okOutcome(900)); err != nil || e != nil {
		t.Fatalf("no baseline must mean no anomaly, got %v, %v", e, err)
	}
}

func TestDetector_CooldownSuppressesRepeats(t *testing.T) {
	st, _, a := newFixture(t)
	tg := seedTarget(t, st)
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	_ = st.AppendBaseline(ctx, &domain.Baseline{TargetID: tg.ID, ComputedAt: now, UCLMS: 100})
	appendOK(t, st, tg.ID, now.Add(-3*time.Minute), 180, 190, 200)

	d := newDetector(st, a, now)
	if e, _ := d.Evaluate(ctx, tg, okOutcome(200)); e == nil {
		t.Fatal("first evaluation should record an anomaly")
	}

	// deviation 50/150 = 0.33 scales the 10m cooldown to 7.5m
	d.Now = func() time.Time { return now.Add(5 * time.Minute) }
	if e, _ := d.Evaluate(ctx, tg, okOutcome(200)); e != nil {
		t.Fatalf("repeat inside cooldown must be suppressed: %+v", e)
	}

	d.Now = func() time.Time { return now.Add(8 * time.Minute) }
	if e, _ := d.Evaluate(ctx, tg, okOutcome(200)); e == nil {
		t.Fatal("evaluation after scaled cooldown should alert again")
	}
}

func TestDetector_SevereDeviationShortensCooldown(t *testing.T) {
	d := &Detector{Cooldown: 10 * time.Minute}
	if got := d.scaledCooldown(50, 150); got != 7*time.Minute+30*time.Second {
		t.Fatalf("moderate deviation cooldown = %v", got)
	}
	if got := d.scaledCooldown(100, 100); got != 5*time.Minute {
		t.Fatalf("severe deviation cooldown = %v", got)
	}
	if got := d.scaledCooldown(10, 150); got != 10*time.Minute {
		t.Fatalf("mild deviation cooldown = %v", got)
	}
}

func TestAnnouncer_AnomalyOptOutAndFallback(t *testing.T) {
	st, n, a := newFixture(t)
	tg := seedTarget(t, st)
	ctx := context.Background()
	now := time.Now().UTC()

	_ = st.Subscribe(ctx, &domain.Subscriber{ChatID: "ops", AnomalyAlerts: false})

	a.Announce(ctx, tg, "slow", true, now)
	if len(n.recipients) != 1 || n.recipients[0] != "admin" {
		t.Fatalf("opted-out subscriber should fall back to admin: %v", n.recipients)
	}

	n.recipients = nil
	a.Announce(ctx, tg, "down", false, now)
	if len(n.recipients) != 1 || n.recipients[0] != "ops" {
		t.Fatalf("state alert should reach the subscriber: %v", n.recipients)
	}
}

func TestMonitor_SkipsPausedTarget(t *testing.T) {
	st, _, a := newFixture(t)
	tg := seedTarget(t, st)
	ctx := context.Background()
	if _, err := st.SetActive(ctx, tg.ID, false); err != nil {
		t.Fatalf("pause: %v", err)
	}

	called := false
	m := &Monitor{
		Store: st,
		Checker: checkerFunc(func(ctx context.Context, t *domain.Target) probe.Outcome {
			called = true
			return okOutcome(50)
		}),
		Tracker: newTracker(st, a),
		Log:     zap.NewNop(),
		Now:     time.Now,
	}
	if err := m.RunCheck(ctx, tg.ID); err != nil {
		t.Fatalf("run: %v", err)
	}
	if called {
		t.Fatal("paused target must not be probed")
	}
	if total, _, _, _ := st.HistoryStats(ctx, tg.ID, time.Time{}); total != 0 {
		t.Fatalf("paused target must not gain history, got %d rows", total)
	}
}

type checkerFunc func(ctx context.Context, t *domain.Target) probe.Outcome

func (f checkerFunc) Check(ctx context.Context, t *domain.Target) probe.Outcome { return f(ctx, t) }

func TestPeriodStatsFor(t *testing.T) {
	st, _, _ := newFixture(t)
	tg := seedTarget(t, st)
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	base := now.Add(-2 * time.Hour)
	for i, ok := range []bool{true, true, false, true} {
		lat := int64(100)
		if !ok {
			// timed-out check: elapsed is recorded but must stay out of the average
			lat = 10000
		}
		_ = st.Append(ctx, &domain.CheckResult{
			TargetID: tg.ID, Timestamp: base.Add(time.Duration(i) * time.Minute),
			OK: ok, LatencyMS: lat,
		})
	}
	incStart := now.Add(-90 * time.Minute)
	incEnd := now.Add(-80 * time.Minute)
	_ = st.OpenIncident(ctx, tg.ID, incStart)
	_ = st.CloseIncident(ctx, tg.ID, incStart, incEnd)

	s, err := PeriodStatsFor(ctx, st, tg.ID, "day", now)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if s.TotalChecks != 4 || s.UptimePercent != 75 {
		t.Fatalf("unexpected check stats: %+v", s)
	}
	if s.IncidentCount != 1 || s.TotalDowntime != 10*time.Minute {
		t.Fatalf("unexpected incident stats: %+v", s)
	}
	if s.AvgLatencyMS != 100 {
		t.Fatalf("failed checks must not drag the average: %+v", s)
	}
}
