package domain

import "time"

type TargetID int64

// Target is a monitored HTTP endpoint together with its perceived health
// and per-target anomaly tuning. The registry (repo.TargetStore) is the
// single owner of this mutable state; everything else references it by ID.
type Target struct {
	ID             TargetID          `json:"id"`
	Name           string            `json:"name"`
	URL            string            `json:"url"`
	Method         string            `json:"method"`
	Headers        map[string]string `json:"headers,omitempty"`
	RequestBody    string            `json:"request_body,omitempty"`
	ExpectedStatus int               `json:"expected_status"`
	TimeoutSec     int               `json:"timeout_sec"`
	IntervalSec    int               `json:"interval_sec"`
	JSONKeys       string            `json:"json_keys,omitempty"` // comma-separated top-level keys

	IsActive bool `json:"is_active"`
	IsUp     bool `json:"is_up"`

	LastChecked      *time.Time `json:"last_checked,omitempty"`
	LastStatusCode   *int       `json:"last_status_code,omitempty"`
	LastResponseTime *int64     `json:"last_response_time_ms,omitempty"`
	LastError        *string    `json:"last_error,omitempty"`

	ConsecutiveFailures  int        `json:"consecutive_failures"`
	ConsecutiveSuccesses int        `json:"consecutive_successes"`
	IncidentStartTime    *time.Time `json:"incident_start_time,omitempty"`

	// Anomaly tuning; zero values mean "use the global default".
	Sensitivity   float64 `json:"sensitivity,omitempty"`
	AnomalyM      int     `json:"anomaly_m,omitempty"`
	AnomalyN      int     `json:"anomaly_n,omitempty"`
	AnomalyAlerts bool    `json:"anomaly_alerts"`

	Muted      bool       `json:"muted"`
	MutedUntil *time.Time `json:"muted_until,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// MutedAt reports whether notifications for the target are muted at ts.
// A nil MutedUntil with the flag set means muted indefinitely.
func (t *Target) MutedAt(ts time.Time) bool {
	if !t.Muted {
		return false
	}
	return t.MutedUntil == nil || t.MutedUntil.After(ts)
}

// CheckResult is one row of the append-only per-target history log.
// LatencyMS is -1 when the probe never measured a round trip.
type CheckResult struct {
	ID         int64     `json:"id"`
	TargetID   TargetID  `json:"target_id"`
	Timestamp  time.Time `json:"timestamp"`
	OK         bool      `json:"ok"`
	LatencyMS  int64     `json:"latency_ms"`
	StatusCode *int      `json:"status_code,omitempty"`
	Error      *string   `json:"error,omitempty"`
}

// Incident is a contiguous DOWN span. EndTime nil means still open;
// at most one open incident exists per target.
type Incident struct {
	ID        int64      `json:"id"`
	TargetID  TargetID   `json:"target_id"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
}

// Baseline is an immutable statistical snapshot over a window of recent
// successful latencies. A new row is appended each recomputation cycle;
// the anomaly detector always reads the latest one.
type Baseline struct {
	TargetID   TargetID  `json:"target_id"`
	ComputedAt time.Time `json:"computed_at"`
	Window     int       `json:"window"`
	MedianMS   float64   `json:"median_ms"`
	MADMS      float64   `json:"mad_ms"`
	EWMAMS     float64   `json:"ewma_ms"`
	UCLMS      float64   `json:"ucl_ms"`
}

// AnomalyEvent records one latency sample that cleared the control limit,
// the debounce and the cooldown. Append-only.
type AnomalyEvent struct {
	ID        int64     `json:"id"`
	TargetID  TargetID  `json:"target_id"`
	Timestamp time.Time `json:"timestamp"`
	LatencyMS int64     `json:"latency_ms"`
	Deviation float64   `json:"deviation"` // latency minus effective threshold
	Reason    string    `json:"reason"`
}

// Subscriber is a notification recipient. TargetID nil subscribes to every
// target ("global" subscriber). AnomalyAlerts false opts the subscriber out
// of anomaly notifications while keeping DOWN/RECOVERED ones.
type Subscriber struct {
	ID            int64     `json:"id"`
	ChatID        string    `json:"chat_id"`
	TargetID      *TargetID `json:"target_id,omitempty"`
	AnomalyAlerts bool      `json:"anomaly_alerts"`
}

// PeriodStats summarizes a target's history over a reporting window.
type PeriodStats struct {
	Period        string        `json:"period"`
	TotalChecks   int           `json:"total_checks"`
	UptimePercent float64       `json:"uptime_percent"`
	AvgLatencyMS  float64       `json:"avg_latency_ms"`
	IncidentCount int           `json:"incident_count"`
	TotalDowntime time.Duration `json:"total_downtime"`
	AvgDowntime   time.Duration `json:"avg_downtime"`
	AnomalyCount  int           `json:"anomaly_count"`
}
