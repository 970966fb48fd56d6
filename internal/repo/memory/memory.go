// Package memory is the in-process Store adapter, used by tests and as the
// "memory" database driver.
package memory

import (
	"context"
	"sync"
	"time"

	"apiwatch/internal/domain"
	"apiwatch/internal/repo"
)

var _ repo.Store = (*Store)(nil)

type Store struct {
	mu         sync.RWMutex
	nextID     int64
	targets    map[domain.TargetID]*domain.Target
	history    []*domain.CheckResult
	incidents  []*domain.Incident
	baselines  []*domain.Baseline
	anomalies  []*domain.AnomalyEvent
	subs       []*domain.Subscriber
	reminders  map[domain.TargetID]time.Time
	nextRowID  int64
	nextSubID  int64
	nextIncID  int64
	nextAnomID int64
}

func New() *Store {
	return &Store{
		targets:   make(map[domain.TargetID]*domain.Target),
		reminders: make(map[domain.TargetID]time.Time),
	}
}

// ---- TargetStore ----

func (m *Store) Create(ctx context.Context, t *domain.Target) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	t.ID = domain.TargetID(m.nextID)
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	cp := *t
	m.targets[t.ID] = &cp
	return nil
}

func (m *Store) Get(ctx context.Context, id domain.TargetID) (*domain.Target, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.targets[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *Store) List(ctx context.Context) ([]*domain.Target, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Target, 0, len(m.targets))
	for _, t := range m.targets {
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (m *Store) ListActive(ctx context.Context) ([]*domain.Target, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Target
	for _, t := range m.targets {
		if t.IsActive {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Store) Patch(ctx context.Context, id domain.TargetID, p *domain.TargetPatch) (*domain.Target, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.targets[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	p.Apply(t)
	cp := *t
	return &cp, nil
}

func (m *Store) UpdateStatus(ctx context.Context, id domain.TargetID, u *domain.StatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.targets[id]
	if !ok {
		return repo.ErrNotFound
	}
	lc := u.LastChecked
	t.LastChecked = &lc
	t.LastStatusCode = u.LastStatusCode
	rt := u.LastResponseTime
	t.LastResponseTime = &rt
	t.LastError = u.LastError
	t.ConsecutiveFailures = u.ConsecutiveFailures
	t.ConsecutiveSuccesses = u.ConsecutiveSuccesses
	t.IsUp = u.IsUp
	t.IncidentStartTime = u.IncidentStartTime
	return nil
}

func (m *Store) SetActive(ctx context.Context, id domain.TargetID, active bool) (*domain.Target, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.targets[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	t.IsActive = active
	cp := *t
	return &cp, nil
}

func (m *Store) SetMute(ctx context.Context, id domain.TargetID, muted bool, until *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.targets[id]
	if !ok {
		return repo.ErrNotFound
	}
	t.Muted = muted
	t.MutedUntil = until
	return nil
}

func (m *Store) Delete(ctx context.Context, id domain.TargetID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.targets[id]; !ok {
		return repo.ErrNotFound
	}
	delete(m.targets, id)

	keepHist := m.history[:0]
	for _, r := range m.history {
		if r.TargetID != id {
			keepHist = append(keepHist, r)
		}
	}
	m.history = keepHist

	keepInc := m.incidents[:0]
	for _, i := range m.incidents {
		if i.TargetID != id {
			keepInc = append(keepInc, i)
		}
	}
	m.incidents = keepInc

	keepBase := m.baselines[:0]
	for _, b := range m.baselines {
		if b.TargetID != id {
			keepBase = append(keepBase, b)
		}
	}
	m.baselines = keepBase

	keepAnom := m.anomalies[:0]
	for _, a := range m.anomalies {
		if a.TargetID != id {
			keepAnom = append(keepAnom, a)
		}
	}
	m.anomalies = keepAnom

	delete(m.reminders, id)
	return nil
}

// ---- HistoryStore ----

func (m *Store) Append(ctx context.Context, r *domain.CheckResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextRowID++
	r.ID = m.nextRowID
	cp := *r
	m.history = append(m.history, &cp)
	return nil
}

func (m *Store) RecentLatencies(ctx context.Context, id domain.TargetID, limit int) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []int64
	// walk newest to oldest, then reverse so callers get oldest first
	for i := len(m.history) - 1; i >= 0 && len(out) < limit; i-- {
		r := m.history[i]
		if r.TargetID == id && r.OK && r.LatencyMS > 0 {
			out = append(out, r.LatencyMS)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (m *Store) HistoryStats(ctx context.Context, id domain.TargetID, since time.Time) (int, int, float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var total, ok int
	var sum int64
	var measured int
	for _, r := range m.history {
		if r.TargetID != id || r.Timestamp.Before(since) {
			continue
		}
		total++
		if r.OK {
			ok++
		}
		if r.OK && r.LatencyMS > 0 {
			sum += r.LatencyMS
			measured++
		}
	}
	avg := 0.0
	if measured > 0 {
		avg = float64(sum) / float64(measured)
	}
	return total, ok, avg, nil
}

func (m *Store) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	keep := m.history[:0]
	for _, r := range m.history {
		if r.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		keep = append(keep, r)
	}
	m.history = keep
	return removed, nil
}

// ---- IncidentStore ----

func (m *Store) OpenIncident(ctx context.Context, id domain.TargetID, start time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextIncID++
	m.incidents = append(m.incidents, &domain.Incident{
		ID: m.nextIncID, TargetID: id, StartTime: start,
	})
	return nil
}

func (m *Store) CloseIncident(ctx context.Context, id domain.TargetID, start, end time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.incidents) - 1; i >= 0; i-- {
		inc := m.incidents[i]
		if inc.TargetID == id && inc.EndTime == nil && inc.StartTime.Equal(start) {
			e := end
			inc.EndTime = &e
			return nil
		}
	}
	// already closed or never opened: no-op
	return nil
}

func (m *Store) IncidentsSince(ctx context.Context, id domain.TargetID, since time.Time) ([]domain.Incident, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Incident
	for _, inc := range m.incidents {
		if inc.TargetID == id && !inc.StartTime.Before(since) {
			out = append(out, *inc)
		}
	}
	return out, nil
}

// ---- BaselineStore ----

func (m *Store) AppendBaseline(ctx context.Context, b *domain.Baseline) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	m.baselines = append(m.baselines, &cp)
	return nil
}

func (m *Store) Latest(ctx context.Context, id domain.TargetID) (*domain.Baseline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *domain.Baseline
	for _, b := range m.baselines {
		if b.TargetID != id {
			continue
		}
		if latest == nil || b.ComputedAt.After(latest.ComputedAt) {
			latest = b
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

// ---- AnomalyStore ----

func (m *Store) AppendAnomaly(ctx context.Context, e *domain.AnomalyEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextAnomID++
	e.ID = m.nextAnomID
	cp := *e
	m.anomalies = append(m.anomalies, &cp)
	return nil
}

func (m *Store) LastEventTime(ctx context.Context, id domain.TargetID) (*time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var last *time.Time
	for _, e := range m.anomalies {
		if e.TargetID != id {
			continue
		}
		if last == nil || e.Timestamp.After(*last) {
			ts := e.Timestamp
			last = &ts
		}
	}
	return last, nil
}

func (m *Store) CountSince(ctx context.Context, id domain.TargetID, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, e := range m.anomalies {
		if e.TargetID == id && !e.Timestamp.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *Store) PurgeAnomaliesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	keep := m.anomalies[:0]
	for _, e := range m.anomalies {
		if e.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		keep = append(keep, e)
	}
	m.anomalies = keep
	return removed, nil
}

// ---- SubscriberStore ----

func (m *Store) Subscribe(ctx context.Context, s *domain.Subscriber) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSubID++
	s.ID = m.nextSubID
	cp := *s
	m.subs = append(m.subs, &cp)
	return nil
}

func (m *Store) Unsubscribe(ctx context.Context, chatID string, id *domain.TargetID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	keep := m.subs[:0]
	for _, s := range m.subs {
		if s.ChatID == chatID && sameTargetRef(s.TargetID, id) {
			continue
		}
		keep = append(keep, s)
	}
	m.subs = keep
	return nil
}

func (m *Store) Recipients(ctx context.Context, id domain.TargetID) ([]domain.Subscriber, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Subscriber
	for _, s := range m.subs {
		if s.TargetID == nil || *s.TargetID == id {
			out = append(out, *s)
		}
	}
	return out, nil
}

func sameTargetRef(a, b *domain.TargetID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// ---- ReminderStore ----

func (m *Store) LastReminder(ctx context.Context, id domain.TargetID) (*time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ts, ok := m.reminders[id]
	if !ok {
		return nil, nil
	}
	return &ts, nil
}

func (m *Store) SetLastReminder(ctx context.Context, id domain.TargetID, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reminders[id] = ts
	return nil
}
