// Package sqlite is the default Store adapter, backed by modernc.org/sqlite
// (pure Go, no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"apiwatch/internal/domain"
	"apiwatch/internal/repo"
)

var _ repo.Store = (*Store)(nil)

type Store struct {
	db *sql.DB
}

// New opens the database file and runs migrations.
func New(ctx context.Context, dataSourceName string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL", dataSourceName))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS targets (
	id                    INTEGER PRIMARY KEY AUTOINCREMENT,
	name                  TEXT NOT NULL DEFAULT '',
	url                   TEXT NOT NULL,
	method                TEXT NOT NULL DEFAULT 'GET',
	headers               TEXT,
	request_body          TEXT,
	expected_status       INTEGER NOT NULL DEFAULT 200,
	timeout_sec           INTEGER NOT NULL DEFAULT 10,
	interval_sec          INTEGER NOT NULL DEFAULT 60,
	json_keys             TEXT,
	is_active             INTEGER NOT NULL DEFAULT 1,
	is_up                 INTEGER NOT NULL DEFAULT 1,
	last_checked          TEXT,
	last_status_code      INTEGER,
	last_response_time    INTEGER,
	last_error            TEXT,
	consecutive_failures  INTEGER NOT NULL DEFAULT 0,
	consecutive_successes INTEGER NOT NULL DEFAULT 0,
	incident_start_time   TEXT,
	sensitivity           REAL NOT NULL DEFAULT 0,
	anomaly_m             INTEGER NOT NULL DEFAULT 0,
	anomaly_n             INTEGER NOT NULL DEFAULT 0,
	anomaly_alerts        INTEGER NOT NULL DEFAULT 1,
	muted                 INTEGER NOT NULL DEFAULT 0,
	muted_until           TEXT,
	created_at            TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS check_history (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	target_id   INTEGER NOT NULL,
	ts          TEXT NOT NULL,
	ok          INTEGER NOT NULL,
	latency_ms  INTEGER NOT NULL,
	status_code INTEGER,
	error       TEXT,
	FOREIGN KEY(target_id) REFERENCES targets(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_check_history_target_ts ON check_history (target_id, ts DESC);

CREATE TABLE IF NOT EXISTS incidents (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	target_id  INTEGER NOT NULL,
	start_time TEXT NOT NULL,
	end_time   TEXT,
	FOREIGN KEY(target_id) REFERENCES targets(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_incidents_target_start ON incidents (target_id, start_time);

CREATE TABLE IF NOT EXISTS baselines (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	target_id   INTEGER NOT NULL,
	computed_at TEXT NOT NULL,
	window_size INTEGER NOT NULL,
	median_ms   REAL NOT NULL,
	mad_ms      REAL NOT NULL,
	ewma_ms     REAL NOT NULL,
	ucl_ms      REAL NOT NULL,
	FOREIGN KEY(target_id) REFERENCES targets(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_baselines_target_computed ON baselines (target_id, computed_at DESC);

CREATE TABLE IF NOT EXISTS anomaly_events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	target_id  INTEGER NOT NULL,
	ts         TEXT NOT NULL,
	latency_ms INTEGER NOT NULL,
	deviation  REAL NOT NULL,
	reason     TEXT NOT NULL,
	FOREIGN KEY(target_id) REFERENCES targets(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_anomaly_events_target_ts ON anomaly_events (target_id, ts DESC);

CREATE TABLE IF NOT EXISTS subscribers (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	chat_id        TEXT NOT NULL,
	target_id      INTEGER,
	anomaly_alerts INTEGER NOT NULL DEFAULT 1,
	FOREIGN KEY(target_id) REFERENCES targets(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS reminders (
	target_id     INTEGER PRIMARY KEY,
	last_reminder TEXT NOT NULL,
	FOREIGN KEY(target_id) REFERENCES targets(id) ON DELETE CASCADE
);
`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) (time.Time, error) { return time.Parse(time.RFC3339Nano, s) }

func parseTimePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ---- TargetStore ----

const targetCols = `id, name, url, method, headers, request_body, expected_status,
	timeout_sec, interval_sec, json_keys, is_active, is_up, last_checked,
	last_status_code, last_response_time, last_error, consecutive_failures,
	consecutive_successes, incident_start_time, sensitivity, anomaly_m,
	anomaly_n, anomaly_alerts, muted, muted_until, created_at`

func (s *Store) Create(ctx context.Context, t *domain.Target) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	var headers any
	if t.Headers != nil {
		b, err := json.Marshal(t.Headers)
		if err != nil {
			return fmt.Errorf("marshal headers: %w", err)
		}
		headers = string(b)
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO targets (name, url, method, headers, request_body, expected_status,
	timeout_sec, interval_sec, json_keys, is_active, is_up, sensitivity,
	anomaly_m, anomaly_n, anomaly_alerts, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Name, t.URL, t.Method, headers, nullStr(t.RequestBody), t.ExpectedStatus,
		t.TimeoutSec, t.IntervalSec, nullStr(t.JSONKeys), t.IsActive, t.IsUp,
		t.Sensitivity, t.AnomalyM, t.AnomalyN, t.AnomalyAlerts, fmtTime(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert target: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	t.ID = domain.TargetID(id)
	return nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (s *Store) scanTarget(row interface{ Scan(...any) error }) (*domain.Target, error) {
	var (
		t                            domain.Target
		headers, reqBody, jsonKeys   sql.NullString
		lastChecked, incidentStart   sql.NullString
		mutedUntil, lastErr, created sql.NullString
		lastStatus                   sql.NullInt64
		lastResp                     sql.NullInt64
	)
	err := row.Scan(&t.ID, &t.Name, &t.URL, &t.Method, &headers, &reqBody,
		&t.ExpectedStatus, &t.TimeoutSec, &t.IntervalSec, &jsonKeys,
		&t.IsActive, &t.IsUp, &lastChecked, &lastStatus, &lastResp, &lastErr,
		&t.ConsecutiveFailures, &t.ConsecutiveSuccesses, &incidentStart,
		&t.Sensitivity, &t.AnomalyM, &t.AnomalyN, &t.AnomalyAlerts,
		&t.Muted, &mutedUntil, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		return nil, fmt.Errorf("scan target: %w", err)
	}
	if headers.Valid {
		if err := json.Unmarshal([]byte(headers.String), &t.Headers); err != nil {
			return nil, fmt.Errorf("unmarshal headers: %w", err)
		}
	}
	if reqBody.Valid {
		t.RequestBody = reqBody.String
	}
	if jsonKeys.Valid {
		t.JSONKeys = jsonKeys.String
	}
	if lastErr.Valid {
		v := lastErr.String
		t.LastError = &v
	}
	if lastStatus.Valid {
		v := int(lastStatus.Int64)
		t.LastStatusCode = &v
	}
	if lastResp.Valid {
		v := lastResp.Int64
		t.LastResponseTime = &v
	}
	if t.LastChecked, err = parseTimePtr(lastChecked); err != nil {
		return nil, err
	}
	if t.IncidentStartTime, err = parseTimePtr(incidentStart); err != nil {
		return nil, err
	}
	if t.MutedUntil, err = parseTimePtr(mutedUntil); err != nil {
		return nil, err
	}
	if created.Valid {
		if t.CreatedAt, err = parseTime(created.String); err != nil {
			return nil, err
		}
	}
	return &t, nil
}

func (s *Store) Get(ctx context.Context, id domain.TargetID) (*domain.Target, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+targetCols+` FROM targets WHERE id = ?`, id)
	return s.scanTarget(row)
}

func (s *Store) list(ctx context.Context, where string, args ...any) ([]*domain.Target, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+targetCols+` FROM targets `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	defer rows.Close()
	var out []*domain.Target
	for rows.Next() {
		t, err := s.scanTarget(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) List(ctx context.Context) ([]*domain.Target, error) {
	return s.list(ctx, "")
}

func (s *Store) ListActive(ctx context.Context) ([]*domain.Target, error) {
	return s.list(ctx, "WHERE is_active = 1")
}

func (s *Store) Patch(ctx context.Context, id domain.TargetID, p *domain.TargetPatch) (*domain.Target, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Apply(t)
	var headers any
	if t.Headers != nil {
		b, err := json.Marshal(t.Headers)
		if err != nil {
			return nil, fmt.Errorf("marshal headers: %w", err)
		}
		headers = string(b)
	}
	_, err = s.db.ExecContext(ctx, `
UPDATE targets SET name=?, url=?, method=?, headers=?, request_body=?,
	expected_status=?, timeout_sec=?, interval_sec=?, json_keys=?,
	sensitivity=?, anomaly_m=?, anomaly_n=?, anomaly_alerts=?
WHERE id=?`,
		t.Name, t.URL, t.Method, headers, nullStr(t.RequestBody),
		t.ExpectedStatus, t.TimeoutSec, t.IntervalSec, nullStr(t.JSONKeys),
		t.Sensitivity, t.AnomalyM, t.AnomalyN, t.AnomalyAlerts, id)
	if err != nil {
		return nil, fmt.Errorf("update target: %w", err)
	}
	return t, nil
}

func (s *Store) UpdateStatus(ctx context.Context, id domain.TargetID, u *domain.StatusUpdate) error {
	var lastErr any
	if u.LastError != nil {
		lastErr = *u.LastError
	}
	var lastStatus any
	if u.LastStatusCode != nil {
		lastStatus = *u.LastStatusCode
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE targets SET last_checked=?, last_status_code=?, last_response_time=?,
	last_error=?, consecutive_failures=?, consecutive_successes=?, is_up=?,
	incident_start_time=?
WHERE id=?`,
		fmtTime(u.LastChecked), lastStatus, u.LastResponseTime, lastErr,
		u.ConsecutiveFailures, u.ConsecutiveSuccesses, u.IsUp,
		fmtTimePtr(u.IncidentStartTime), id)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Store) SetActive(ctx context.Context, id domain.TargetID, active bool) (*domain.Target, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE targets SET is_active=? WHERE id=?`, active, id)
	if err != nil {
		return nil, fmt.Errorf("set active: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, repo.ErrNotFound
	}
	return s.Get(ctx, id)
}

func (s *Store) SetMute(ctx context.Context, id domain.TargetID, muted bool, until *time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE targets SET muted=?, muted_until=? WHERE id=?`,
		muted, fmtTimePtr(until), id)
	if err != nil {
		return fmt.Errorf("set mute: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id domain.TargetID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM targets WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete target: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// ---- HistoryStore ----

func (s *Store) Append(ctx context.Context, r *domain.CheckResult) error {
	var status any
	if r.StatusCode != nil {
		status = *r.StatusCode
	}
	var errText any
	if r.Error != nil {
		errText = *r.Error
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO check_history (target_id, ts, ok, latency_ms, status_code, error)
VALUES (?, ?, ?, ?, ?, ?)`,
		r.TargetID, fmtTime(r.Timestamp), r.OK, r.LatencyMS, status, errText)
	if err != nil {
		return fmt.Errorf("insert check result: %w", err)
	}
	r.ID, _ = res.LastInsertId()
	return nil
}

func (s *Store) RecentLatencies(ctx context.Context, id domain.TargetID, limit int) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT latency_ms FROM (
	SELECT id, latency_ms FROM check_history
	WHERE target_id = ? AND ok = 1 AND latency_ms > 0
	ORDER BY id DESC LIMIT ?
) ORDER BY id ASC`, id, limit)
	if err != nil {
		return nil, fmt.Errorf("recent latencies: %w", err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan latency: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) HistoryStats(ctx context.Context, id domain.TargetID, since time.Time) (int, int, float64, error) {
	var total, ok int
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*), COALESCE(SUM(ok), 0),
	AVG(CASE WHEN ok = 1 AND latency_ms > 0 THEN latency_ms END)
FROM check_history WHERE target_id = ? AND ts >= ?`,
		id, fmtTime(since)).Scan(&total, &ok, &avg)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("history stats: %w", err)
	}
	return total, ok, avg.Float64, nil
}

func (s *Store) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM check_history WHERE ts < ?`, fmtTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("purge history: %w", err)
	}
	return res.RowsAffected()
}

// ---- IncidentStore ----

func (s *Store) OpenIncident(ctx context.Context, id domain.TargetID, start time.Time) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO incidents (target_id, start_time) VALUES (?, ?)`, id, fmtTime(start))
	if err != nil {
		return fmt.Errorf("open incident: %w", err)
	}
	return nil
}

func (s *Store) CloseIncident(ctx context.Context, id domain.TargetID, start, end time.Time) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE incidents SET end_time = ?
WHERE target_id = ? AND start_time = ? AND end_time IS NULL`,
		fmtTime(end), id, fmtTime(start))
	if err != nil {
		return fmt.Errorf("close incident: %w", err)
	}
	return nil
}

func (s *Store) IncidentsSince(ctx context.Context, id domain.TargetID, since time.Time) ([]domain.Incident, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, target_id, start_time, end_time FROM incidents
WHERE target_id = ? AND start_time >= ? ORDER BY start_time`,
		id, fmtTime(since))
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()
	var out []domain.Incident
	for rows.Next() {
		var inc domain.Incident
		var start string
		var end sql.NullString
		if err := rows.Scan(&inc.ID, &inc.TargetID, &start, &end); err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		if inc.StartTime, err = parseTime(start); err != nil {
			return nil, err
		}
		if inc.EndTime, err = parseTimePtr(end); err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

// ---- BaselineStore ----

func (s *Store) AppendBaseline(ctx context.Context, b *domain.Baseline) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO baselines (target_id, computed_at, window_size, median_ms, mad_ms, ewma_ms, ucl_ms)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.TargetID, fmtTime(b.ComputedAt), b.Window, b.MedianMS, b.MADMS, b.EWMAMS, b.UCLMS)
	if err != nil {
		return fmt.Errorf("insert baseline: %w", err)
	}
	return nil
}

func (s *Store) Latest(ctx context.Context, id domain.TargetID) (*domain.Baseline, error) {
	var b domain.Baseline
	var computed string
	err := s.db.QueryRowContext(ctx, `
SELECT target_id, computed_at, window_size, median_ms, mad_ms, ewma_ms, ucl_ms
FROM baselines WHERE target_id = ? ORDER BY computed_at DESC, id DESC LIMIT 1`,
		id).Scan(&b.TargetID, &computed, &b.Window, &b.MedianMS, &b.MADMS, &b.EWMAMS, &b.UCLMS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest baseline: %w", err)
	}
	if b.ComputedAt, err = parseTime(computed); err != nil {
		return nil, err
	}
	return &b, nil
}

// ---- AnomalyStore ----

func (s *Store) AppendAnomaly(ctx context.Context, e *domain.AnomalyEvent) error {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO anomaly_events (target_id, ts, latency_ms, deviation, reason)
VALUES (?, ?, ?, ?, ?)`,
		e.TargetID, fmtTime(e.Timestamp), e.LatencyMS, e.Deviation, e.Reason)
	if err != nil {
		return fmt.Errorf("insert anomaly event: %w", err)
	}
	e.ID, _ = res.LastInsertId()
	return nil
}

func (s *Store) LastEventTime(ctx context.Context, id domain.TargetID) (*time.Time, error) {
	var ts string
	err := s.db.QueryRowContext(ctx, `
SELECT ts FROM anomaly_events WHERE target_id = ? ORDER BY ts DESC LIMIT 1`, id).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last anomaly time: %w", err)
	}
	t, err := parseTime(ts)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) CountSince(ctx context.Context, id domain.TargetID, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM anomaly_events WHERE target_id = ? AND ts >= ?`,
		id, fmtTime(since)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count anomalies: %w", err)
	}
	return n, nil
}

func (s *Store) PurgeAnomaliesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM anomaly_events WHERE ts < ?`, fmtTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("purge anomalies: %w", err)
	}
	return res.RowsAffected()
}

// ---- SubscriberStore ----

func (s *Store) Subscribe(ctx context.Context, sub *domain.Subscriber) error {
	var target any
	if sub.TargetID != nil {
		target = *sub.TargetID
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO subscribers (chat_id, target_id, anomaly_alerts) VALUES (?, ?, ?)`,
		sub.ChatID, target, sub.AnomalyAlerts)
	if err != nil {
		return fmt.Errorf("insert subscriber: %w", err)
	}
	sub.ID, _ = res.LastInsertId()
	return nil
}

func (s *Store) Unsubscribe(ctx context.Context, chatID string, id *domain.TargetID) error {
	var err error
	if id == nil {
		_, err = s.db.ExecContext(ctx, `
DELETE FROM subscribers WHERE chat_id = ? AND target_id IS NULL`, chatID)
	} else {
		_, err = s.db.ExecContext(ctx, `
DELETE FROM subscribers WHERE chat_id = ? AND target_id = ?`, chatID, *id)
	}
	if err != nil {
		return fmt.Errorf("delete subscriber: %w", err)
	}
	return nil
}

func (s *Store) Recipients(ctx context.Context, id domain.TargetID) ([]domain.Subscriber, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, chat_id, target_id, anomaly_alerts FROM subscribers
WHERE target_id IS NULL OR target_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	defer rows.Close()
	var out []domain.Subscriber
	for rows.Next() {
		var sub domain.Subscriber
		var target sql.NullInt64
		if err := rows.Scan(&sub.ID, &sub.ChatID, &target, &sub.AnomalyAlerts); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		if target.Valid {
			tid := domain.TargetID(target.Int64)
			sub.TargetID = &tid
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// ---- ReminderStore ----

func (s *Store) LastReminder(ctx context.Context, id domain.TargetID) (*time.Time, error) {
	var ts string
	err := s.db.QueryRowContext(ctx, `
SELECT last_reminder FROM reminders WHERE target_id = ?`, id).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last reminder: %w", err)
	}
	t, err := parseTime(ts)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) SetLastReminder(ctx context.Context, id domain.TargetID, ts time.Time) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO reminders (target_id, last_reminder) VALUES (?, ?)
ON CONFLICT(target_id) DO UPDATE SET last_reminder = excluded.last_reminder`,
		id, fmtTime(ts))
	if err != nil {
		return fmt.Errorf("set last reminder: %w", err)
	}
	return nil
}
