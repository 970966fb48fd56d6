// Package postgres is the pgx-backed Store adapter for deployments that
// already run PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"apiwatch/internal/domain"
	"apiwatch/internal/repo"
)

var _ repo.Store = (*Store)(nil)

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}
	s := &Store{pool: pool, log: log}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS targets (
	id                    BIGSERIAL PRIMARY KEY,
	name                  TEXT NOT NULL DEFAULT '',
	url                   TEXT NOT NULL,
	method                TEXT NOT NULL DEFAULT 'GET',
	headers               JSONB,
	request_body          TEXT,
	expected_status       INT NOT NULL DEFAULT 200,
	timeout_sec           INT NOT NULL DEFAULT 10,
	interval_sec          INT NOT NULL DEFAULT 60,
	json_keys             TEXT,
	is_active             BOOLEAN NOT NULL DEFAULT TRUE,
	is_up                 BOOLEAN NOT NULL DEFAULT TRUE,
	last_checked          TIMESTAMPTZ,
	last_status_code      INT,
	last_response_time    BIGINT,
	last_error            TEXT,
	consecutive_failures  INT NOT NULL DEFAULT 0,
	consecutive_successes INT NOT NULL DEFAULT 0,
	incident_start_time   TIMESTAMPTZ,
	sensitivity           DOUBLE PRECISION NOT NULL DEFAULT 0,
	anomaly_m             INT NOT NULL DEFAULT 0,
	anomaly_n             INT NOT NULL DEFAULT 0,
	anomaly_alerts        BOOLEAN NOT NULL DEFAULT TRUE,
	muted                 BOOLEAN NOT NULL DEFAULT FALSE,
	muted_until           TIMESTAMPTZ,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS check_history (
	id          BIGSERIAL PRIMARY KEY,
	target_id   BIGINT NOT NULL REFERENCES targets(id) ON DELETE CASCADE,
	ts          TIMESTAMPTZ NOT NULL,
	ok          BOOLEAN NOT NULL,
	latency_ms  BIGINT NOT NULL,
	status_code INT,
	error       TEXT
);
CREATE INDEX IF NOT EXISTS idx_check_history_target_ts ON check_history (target_id, ts DESC);

CREATE TABLE IF NOT EXISTS incidents (
	id         BIGSERIAL PRIMARY KEY,
	target_id  BIGINT NOT NULL REFERENCES targets(id) ON DELETE CASCADE,
	start_time TIMESTAMPTZ NOT NULL,
	end_time   TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_incidents_target_start ON incidents (target_id, start_time);

CREATE TABLE IF NOT EXISTS baselines (
	id          BIGSERIAL PRIMARY KEY,
	target_id   BIGINT NOT NULL REFERENCES targets(id) ON DELETE CASCADE,
	computed_at TIMESTAMPTZ NOT NULL,
	window_size INT NOT NULL,
	median_ms   DOUBLE PRECISION NOT NULL,
	mad_ms      DOUBLE PRECISION NOT NULL,
	ewma_ms     DOUBLE PRECISION NOT NULL,
	ucl_ms      DOUBLE PRECISION NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_baselines_target_computed ON baselines (target_id, computed_at DESC);

CREATE TABLE IF NOT EXISTS anomaly_events (
	id         BIGSERIAL PRIMARY KEY,
	target_id  BIGINT NOT NULL REFERENCES targets(id) ON DELETE CASCADE,
	ts         TIMESTAMPTZ NOT NULL,
	latency_ms BIGINT NOT NULL,
	deviation  DOUBLE PRECISION NOT NULL,
	reason     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_anomaly_events_target_ts ON anomaly_events (target_id, ts DESC);

CREATE TABLE IF NOT EXISTS subscribers (
	id             BIGSERIAL PRIMARY KEY,
	chat_id        TEXT NOT NULL,
	target_id      BIGINT REFERENCES targets(id) ON DELETE CASCADE,
	anomaly_alerts BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS reminders (
	target_id     BIGINT PRIMARY KEY REFERENCES targets(id) ON DELETE CASCADE,
	last_reminder TIMESTAMPTZ NOT NULL
);
`
	_, err := s.pool.Exec(ctx, schema)
	return err
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
	var headers []byte
	if t.Headers != nil {
		b, err := json.Marshal(t.Headers)
		if err != nil {
			return fmt.Errorf("marshal headers: %w", err)
		}
		headers = b
	}
	err := s.pool.QueryRow(ctx, `
INSERT INTO targets (name, url, method, headers, request_body, expected_status,
	timeout_sec, interval_sec, json_keys, is_active, is_up, sensitivity,
	anomaly_m, anomaly_n, anomaly_alerts, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
RETURNING id`,
		t.Name, t.URL, t.Method, headers, nullStr(t.RequestBody), t.ExpectedStatus,
		t.TimeoutSec, t.IntervalSec, nullStr(t.JSONKeys), t.IsActive, t.IsUp,
		t.Sensitivity, t.AnomalyM, t.AnomalyN, t.AnomalyAlerts, t.CreatedAt,
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("insert target: %w", err)
	}
	return nil
}

func nullStr(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

type rowScanner interface{ Scan(...any) error }

func scanTarget(row rowScanner) (*domain.Target, error) {
	var (
		t        domain.Target
		headers  []byte
		reqBody  *string
		jsonKeys *string
	)
	err := row.Scan(&t.ID, &t.Name, &t.URL, &t.Method, &headers, &reqBody,
		&t.ExpectedStatus, &t.TimeoutSec, &t.IntervalSec, &jsonKeys,
		&t.IsActive, &t.IsUp, &t.LastChecked, &t.LastStatusCode,
		&t.LastResponseTime, &t.LastError, &t.ConsecutiveFailures,
		&t.ConsecutiveSuccesses, &t.IncidentStartTime, &t.Sensitivity,
		&t.AnomalyM, &t.AnomalyN, &t.AnomalyAlerts, &t.Muted, &t.MutedUntil,
		&t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		return nil, fmt.Errorf("scan target: %w", err)
	}
	if headers != nil {
		if err := json.Unmarshal(headers, &t.Headers); err != nil {
			return nil, fmt.Errorf("unmarshal headers: %w", err)
		}
	}
	if reqBody != nil {
		t.RequestBody = *reqBody
	}
	if jsonKeys != nil {
		t.JSONKeys = *jsonKeys
	}
	return &t, nil
}

func (s *Store) Get(ctx context.Context, id domain.TargetID) (*domain.Target, error) {
	return scanTarget(s.pool.QueryRow(ctx, `SELECT `+targetCols+` FROM targets WHERE id=$1`, id))
}

func (s *Store) list(ctx context.Context, where string) ([]*domain.Target, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+targetCols+` FROM targets `+where+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	defer rows.Close()
	var out []*domain.Target
	for rows.Next() {
		t, err := scanTarget(rows)
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
	return s.list(ctx, "WHERE is_active")
}

func (s *Store) Patch(ctx context.Context, id domain.TargetID, p *domain.TargetPatch) (*domain.Target, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Apply(t)
	var headers []byte
	if t.Headers != nil {
		if headers, err = json.Marshal(t.Headers); err != nil {
			return nil, fmt.Errorf("marshal headers: %w", err)
		}
	}
	_, err = s.pool.Exec(ctx, `
UPDATE targets SET name=$1, url=$2, method=$3, headers=$4, request_body=$5,
	expected_status=$6, timeout_sec=$7, interval_sec=$8, json_keys=$9,
	sensitivity=$10, anomaly_m=$11, anomaly_n=$12, anomaly_alerts=$13
WHERE id=$14`,
		t.Name, t.URL, t.Method, headers, nullStr(t.RequestBody),
		t.ExpectedStatus, t.TimeoutSec, t.IntervalSec, nullStr(t.JSONKeys),
		t.Sensitivity, t.AnomalyM, t.AnomalyN, t.AnomalyAlerts, id)
	if err != nil {
		return nil, fmt.Errorf("update target: %w", err)
	}
	return t, nil
}

func (s *Store) UpdateStatus(ctx context.Context, id domain.TargetID, u *domain.StatusUpdate) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE targets SET last_checked=$1, last_status_code=$2, last_response_time=$3,
	last_error=$4, consecutive_failures=$5, consecutive_successes=$6,
	is_up=$7, incident_start_time=$8
WHERE id=$9`,
		u.LastChecked, u.LastStatusCode, u.LastResponseTime, u.LastError,
		u.ConsecutiveFailures, u.ConsecutiveSuccesses, u.IsUp,
		u.IncidentStartTime, id)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Store) SetActive(ctx context.Context, id domain.TargetID, active bool) (*domain.Target, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE targets SET is_active=$1 WHERE id=$2`, active, id)
	if err != nil {
		return nil, fmt.Errorf("set active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, repo.ErrNotFound
	}
	return s.Get(ctx, id)
}

func (s *Store) SetMute(ctx context.Context, id domain.TargetID, muted bool, until *time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE targets SET muted=$1, muted_until=$2 WHERE id=$3`,
		muted, until, id)
	if err != nil {
		return fmt.Errorf("set mute: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id domain.TargetID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM targets WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete target: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// ---- HistoryStore ----

func (s *Store) Append(ctx context.Context, r *domain.CheckResult) error {
	err := s.pool.QueryRow(ctx, `
INSERT INTO check_history (target_id, ts, ok, latency_ms, status_code, error)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		r.TargetID, r.Timestamp, r.OK, r.LatencyMS, r.StatusCode, r.Error,
	).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("insert check result: %w", err)
	}
	return nil
}

func (s *Store) RecentLatencies(ctx context.Context, id domain.TargetID, limit int) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `
SELECT latency_ms FROM (
	SELECT id, latency_ms FROM check_history
	WHERE target_id=$1 AND ok AND latency_ms > 0
	ORDER BY id DESC LIMIT $2
) sub ORDER BY id ASC`, id, limit)
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
	var avg *float64
	err := s.pool.QueryRow(ctx, `
SELECT COUNT(*), COUNT(*) FILTER (WHERE ok),
	AVG(latency_ms) FILTER (WHERE ok AND latency_ms > 0)
FROM check_history WHERE target_id=$1 AND ts >= $2`,
		id, since).Scan(&total, &ok, &avg)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("history stats: %w", err)
	}
	var avgMS float64
	if avg != nil {
		avgMS = *avg
	}
	return total, ok, avgMS, nil
}

func (s *Store) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM check_history WHERE ts < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge history: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ---- IncidentStore ----

func (s *Store) OpenIncident(ctx context.Context, id domain.TargetID, start time.Time) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO incidents (target_id, start_time) VALUES ($1,$2)`, id, start)
	if err != nil {
		return fmt.Errorf("open incident: %w", err)
	}
	return nil
}

func (s *Store) CloseIncident(ctx context.Context, id domain.TargetID, start, end time.Time) error {
	_, err := s.pool.Exec(ctx, `
UPDATE incidents SET end_time=$1
WHERE target_id=$2 AND start_time=$3 AND end_time IS NULL`, end, id, start)
	if err != nil {
		return fmt.Errorf("close incident: %w", err)
	}
	return nil
}

func (s *Store) IncidentsSince(ctx context.Context, id domain.TargetID, since time.Time) ([]domain.Incident, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, target_id, start_time, end_time FROM incidents
WHERE target_id=$1 AND start_time >= $2 ORDER BY start_time`, id, since)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()
	var out []domain.Incident
	for rows.Next() {
		var inc domain.Incident
		if err := rows.Scan(&inc.ID, &inc.TargetID, &inc.StartTime, &inc.EndTime); err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

// ---- BaselineStore ----

func (s *Store) AppendBaseline(ctx context.Context, b *domain.Baseline) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO baselines (target_id, computed_at, window_size, median_ms, mad_ms, ewma_ms, ucl_ms)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		b.TargetID, b.ComputedAt, b.Window, b.MedianMS, b.MADMS, b.EWMAMS, b.UCLMS)
	if err != nil {
		return fmt.Errorf("insert baseline: %w", err)
	}
	return nil
}

func (s *Store) Latest(ctx context.Context, id domain.TargetID) (*domain.Baseline, error) {
	var b domain.Baseline
	err := s.pool.QueryRow(ctx, `
SELECT target_id, computed_at, window_size, median_ms, mad_ms, ewma_ms, ucl_ms
FROM baselines WHERE target_id=$1 ORDER BY computed_at DESC, id DESC LIMIT 1`,
		id).Scan(&b.TargetID, &b.ComputedAt, &b.Window, &b.MedianMS, &b.MADMS, &b.EWMAMS, &b.UCLMS)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest baseline: %w", err)
	}
	return &b, nil
}

// ---- AnomalyStore ----

func (s *Store) AppendAnomaly(ctx context.Context, e *domain.AnomalyEvent) error {
	err := s.pool.QueryRow(ctx, `
INSERT INTO anomaly_events (target_id, ts, latency_ms, deviation, reason)
VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		e.TargetID, e.Timestamp, e.LatencyMS, e.Deviation, e.Reason).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("insert anomaly event: %w", err)
	}
	return nil
}

func (s *Store) LastEventTime(ctx context.Context, id domain.TargetID) (*time.Time, error) {
	var ts time.Time
	err := s.pool.QueryRow(ctx, `
SELECT ts FROM anomaly_events WHERE target_id=$1 ORDER BY ts DESC LIMIT 1`, id).Scan(&ts)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last anomaly time: %w", err)
	}
	return &ts, nil
}

func (s *Store) CountSince(ctx context.Context, id domain.TargetID, since time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
SELECT COUNT(*) FROM anomaly_events WHERE target_id=$1 AND ts >= $2`, id, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count anomalies: %w", err)
	}
	return n, nil
}

func (s *Store) PurgeAnomaliesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM anomaly_events WHERE ts < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge anomalies: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ---- SubscriberStore ----

func (s *Store) Subscribe(ctx context.Context, sub *domain.Subscriber) error {
	err := s.pool.QueryRow(ctx, `
INSERT INTO subscribers (chat_id, target_id, anomaly_alerts)
VALUES ($1,$2,$3) RETURNING id`,
		sub.ChatID, sub.TargetID, sub.AnomalyAlerts).Scan(&sub.ID)
	if err != nil {
		return fmt.Errorf("insert subscriber: %w", err)
	}
	return nil
}

func (s *Store) Unsubscribe(ctx context.Context, chatID string, id *domain.TargetID) error {
	var err error
	if id == nil {
		_, err = s.pool.Exec(ctx, `DELETE FROM subscribers WHERE chat_id=$1 AND target_id IS NULL`, chatID)
	} else {
		_, err = s.pool.Exec(ctx, `DELETE FROM subscribers WHERE chat_id=$1 AND target_id=$2`, chatID, *id)
	}
	if err != nil {
		return fmt.Errorf("delete subscriber: %w", err)
	}
	return nil
}

func (s *Store) Recipients(ctx context.Context, id domain.TargetID) ([]domain.Subscriber, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, chat_id, target_id, anomaly_alerts FROM subscribers
WHERE target_id IS NULL OR target_id=$1`, id)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	defer rows.Close()
	var out []domain.Subscriber
	for rows.Next() {
		var sub domain.Subscriber
		if err := rows.Scan(&sub.ID, &sub.ChatID, &sub.TargetID, &sub.AnomalyAlerts); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// ---- ReminderStore ----

func (s *Store) LastReminder(ctx context.Context, id domain.TargetID) (*time.Time, error) {
	var ts time.Time
	err := s.pool.QueryRow(ctx, `
SELECT last_reminder FROM reminders WHERE target_id=$1`, id).Scan(&ts)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last reminder: %w", err)
	}
	return &ts, nil
}

func (s *Store) SetLastReminder(ctx context.Context, id domain.TargetID, ts time.Time) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO reminders (target_id, last_reminder) VALUES ($1,$2)
ON CONFLICT (target_id) DO UPDATE SET last_reminder = EXCLUDED.last_reminder`,
		id, ts)
	if err != nil {
		return fmt.Errorf("set last reminder: %w", err)
	}
	return nil
}
