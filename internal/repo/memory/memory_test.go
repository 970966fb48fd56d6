package memory

import (
	"context"
	"testing"
	"time"

	"apiwatch/internal/domain"
	"apiwatch/internal/repo"
)

func seedTarget(t *testing.T, m *Store) *domain.Target {
	t.Helper()
	tg := &domain.Target{
		Name: "svc", URL: "https://example.com", Method: "GET",
		ExpectedStatus: 200, TimeoutSec: 10, IntervalSec: 60,
		IsActive: true, IsUp: true,
	}
	if err := m.Create(context.Background(), tg); err != nil {
		t.Fatalf("create: %v", err)
	}
	return tg
}

func TestStore_CreateGetList(t *testing.T) {
	m := New()
	tg := seedTarget(t, m)
	if tg.ID == 0 {
		t.Fatal("expected assigned id")
	}

	got, err := m.Get(context.Background(), tg.ID)
	if err != nil || got.URL != tg.URL {
		t.Fatalf("get: %v %+v", err, got)
	}

	if _, err := m.Get(context.Background(), 999); err != repo.ErrNotFound {
		t.Fatalf("want ErrNotFound, got %v", err)
	}

	inactive := seedTarget(t, m)
	if _, err := m.SetActive(context.Background(), inactive.ID, false); err != nil {
		t.Fatalf("set active: %v", err)
	}
	active, err := m.ListActive(context.Background())
	if err != nil || len(active) != 1 {
		t.Fatalf("want 1 active target, got %d (%v)", len(active), err)
	}
}

func TestStore_RecentLatencies_OrderAndFilter(t *testing.T) {
	m := New()
	tg := seedTarget(t, m)
	ctx := context.Background()
	now := time.Now().UTC()

	lat := []int64{100, -1, 200, 300, 400}
	okFlags := []bool{true, false, true, false, true}
	for i := range lat {
		_ = m.Append(ctx, &domain.CheckResult{
			TargetID: tg.ID, Timestamp: now.Add(time.Duration(i) * time.Second),
			OK: okFlags[i], LatencyMS: lat[i],
		})
	}

	got, err := m.RecentLatencies(ctx, tg.ID, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	// only successful positive samples, oldest first, last 2 of {100,200,400}
	if len(got) != 2 || got[0] != 200 || got[1] != 400 {
		t.Fatalf("want [200 400], got %v", got)
	}
}

func TestStore_IncidentCloseIdempotent(t *testing.T) {
	m := New()
	tg := seedTarget(t, m)
	ctx := context.Background()
	start := time.Now().UTC().Add(-time.Hour)
	end := time.Now().UTC()

	if err := m.OpenIncident(ctx, tg.ID, start); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := m.CloseIncident(ctx, tg.ID, start, end); err != nil {
		t.Fatalf("close: %v", err)
	}
	// second close of the same span is a no-op
	if err := m.CloseIncident(ctx, tg.ID, start, end.Add(time.Minute)); err != nil {
		t.Fatalf("second close: %v", err)
	}

	incs, _ := m.IncidentsSince(ctx, tg.ID, start.Add(-time.Minute))
	if len(incs) != 1 || incs[0].EndTime == nil || !incs[0].EndTime.Equal(end) {
		t.Fatalf("unexpected incidents: %+v", incs)
	}
}

func TestStore_LatestBaseline(t *testing.T) {
	m := New()
	tg := seedTarget(t, m)
	ctx := context.Background()

	if b, err := m.Latest(ctx, tg.ID); err != nil || b != nil {
		t.Fatalf("want nil baseline, got %+v (%v)", b, err)
	}

	old := time.Now().UTC().Add(-time.Hour)
	fresh := time.Now().UTC()
	_ = m.AppendBaseline(ctx, &domain.Baseline{TargetID: tg.ID, ComputedAt: old, UCLMS: 100})
	_ = m.AppendBaseline(ctx, &domain.Baseline{TargetID: tg.ID, ComputedAt: fresh, UCLMS: 200})

	b, err := m.Latest(ctx, tg.ID)
	if err != nil || b == nil || b.UCLMS != 200 {
		t.Fatalf("want latest baseline ucl=200, got %+v (%v)", b, err)
	}
}

func TestStore_HistoryStats_AverageSkipsFailedChecks(t *testing.T) {
	m := New()
	tg := seedTarget(t, m)
	ctx := context.Background()
	now := time.Now().UTC()

	// The timed-out check carries its elapsed wall time; it must not
	// count toward the latency average.
	_ = m.Append(ctx, &domain.CheckResult{TargetID: tg.ID, Timestamp: now, OK: true, LatencyMS: 100})
	_ = m.Append(ctx, &domain.CheckResult{TargetID: tg.ID, Timestamp: now.Add(time.Second), OK: false, LatencyMS: 5000})
	_ = m.Append(ctx, &domain.CheckResult{TargetID: tg.ID, Timestamp: now.Add(2 * time.Second), OK: true, LatencyMS: 200})

	total, ok, avg, err := m.HistoryStats(ctx, tg.ID, now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if total != 3 || ok != 2 {
		t.Fatalf("want total=3 ok=2, got total=%d ok=%d", total, ok)
	}
	if avg != 150 {
		t.Fatalf("want avg over successful checks only (150), got %v", avg)
	}
}

func TestStore_DeleteCascades(t *testing.T) {
	m := New()
	tg := seedTarget(t, m)
	ctx := context.Background()
	now := time.Now().UTC()

	_ = m.Append(ctx, &domain.CheckResult{TargetID: tg.ID, Timestamp: now, OK: true, LatencyMS: 50})
	_ = m.OpenIncident(ctx, tg.ID, now)
	_ = m.AppendBaseline(ctx, &domain.Baseline{TargetID: tg.ID, ComputedAt: now})
	_ = m.AppendAnomaly(ctx, &domain.AnomalyEvent{TargetID: tg.ID, Timestamp: now})

	if err := m.Delete(ctx, tg.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if lats, _ := m.RecentLatencies(ctx, tg.ID, 10); len(lats) != 0 {
		t.Fatalf("history not cascaded: %v", lats)
	}
	if incs, _ := m.IncidentsSince(ctx, tg.ID, now.Add(-time.Hour)); len(incs) != 0 {
		t.Fatalf("incidents not cascaded: %v", incs)
	}
	if b, _ := m.Latest(ctx, tg.ID); b != nil {
		t.Fatalf("baselines not cascaded: %+v", b)
	}
	if ts, _ := m.LastEventTime(ctx, tg.ID); ts != nil {
		t.Fatalf("anomalies not cascaded: %v", ts)
	}
}

func TestStore_Recipients_GlobalAndTargeted(t *testing.T) {
	m := New()
	a := seedTarget(t, m)
	b := seedTarget(t, m)
	ctx := context.Background()

	_ = m.Subscribe(ctx, &domain.Subscriber{ChatID: "global", AnomalyAlerts: true})
	aID := a.ID
	_ = m.Subscribe(ctx, &domain.Subscriber{ChatID: "only-a", TargetID: &aID, AnomalyAlerts: false})

	recA, _ := m.Recipients(ctx, a.ID)
	if len(recA) != 2 {
		t.Fatalf("want 2 recipients for a, got %d", len(recA))
	}
	recB, _ := m.Recipients(ctx, b.ID)
	if len(recB) != 1 || recB[0].ChatID != "global" {
		t.Fatalf("want only global for b, got %+v", recB)
	}
}

func TestStore_PurgeBefore(t *testing.T) {
	m := New()
	tg := seedTarget(t, m)
	ctx := context.Background()
	now := time.Now().UTC()

	_ = m.Append(ctx, &domain.CheckResult{TargetID: tg.ID, Timestamp: now.Add(-48 * time.Hour), OK: true, LatencyMS: 10})
	_ = m.Append(ctx, &domain.CheckResult{TargetID: tg.ID, Timestamp: now, OK: true, LatencyMS: 20})

	removed, err := m.PurgeBefore(ctx, now.Add(-24*time.Hour))
	if err != nil || removed != 1 {
		t.Fatalf("want 1 removed, got %d (%v)", removed, err)
	}
	lats, _ := m.RecentLatencies(ctx, tg.ID, 10)
	if len(lats) != 1 || lats[0] != 20 {
		t.Fatalf("unexpected remaining history: %v", lats)
	}
}
