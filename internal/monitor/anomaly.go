package monitor

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"apiwatch/internal/domain"
	"apiwatch/internal/metrics"
	"apiwatch/internal/probe"
	"apiwatch/internal/repo"
	"apiwatch/internal/report"
	"apiwatch/internal/stats"
)

// Threshold reasons recorded on anomaly events.
const (
	ReasonUCLSensitivity = "ucl_sensitivity"
	ReasonP95Floor       = "p95_floor"
)

// p95FloorWindow is the number of recent samples backing the percentile
// floor, which keeps a decayed UCL from alerting on normal traffic.
const p95FloorWindow = 50

// Detector flags latency anomalies on successful checks. A sample is
// anomalous when it exceeds the effective threshold and at least M of the
// last N successful samples do too; a cooldown then throttles repeats,
// shortened for severe deviations.
type Detector struct {
	Store     repo.Store
	Announcer *Announcer
	Metrics   *metrics.Metrics
	Log       *zap.Logger

	Sensitivity float64
	PctFactor   float64
	M, N        int
	Cooldown    time.Duration
	Now         func() time.Time
}

// Evaluate inspects one successful check. It returns the recorded event,
// or nil when the sample is normal, debounced or inside the cooldown.
func (d *Detector) Evaluate(ctx context.Context, t *domain.Target, out probe.Outcome) (*domain.AnomalyEvent, error) {
	if !out.OK || out.LatencyMS <= 0 || !t.AnomalyAlerts {
		return nil, nil
	}

	base, err := d.Store.Latest(ctx, t.ID)
	if err != nil {
		return nil, fmt.Errorf("loading baseline: %w", err)
	}
	if base == nil || base.UCLMS <= 0 {
		return nil, nil
	}

	sens := t.Sensitivity
	if sens <= 0 {
		sens = d.Sensitivity
	}
	m, n := t.AnomalyM, t.AnomalyN
	if m <= 0 || n <= 0 {
		m, n = d.M, d.N
	}

	floor, err := d.Store.RecentLatencies(ctx, t.ID, p95FloorWindow)
	if err != nil {
		return nil, fmt.Errorf("loading percentile window: %w", err)
	}

	floorF := make([]float64, len(floor))
	for i, v := range floor {
		floorF[i] = float64(v)
	}

	threshold := base.UCLMS * sens
	reason := ReasonUCLSensitivity
	if pctThr := stats.P95(floorF) * d.PctFactor; pctThr > threshold {
		threshold = pctThr
		reason = ReasonP95Floor
	}

	lat := float64(out.LatencyMS)
	if lat <= threshold {
		return nil, nil
	}

	// m-of-n over the last n successful samples, current one included
	recent, err := d.Store.RecentLatencies(ctx, t.ID, n)
	if err != nil {
		return nil, fmt.Errorf("loading debounce window: %w", err)
	}
	above := 0
	for _, v := range recent {
		if float64(v) > threshold {
			above++
		}
	}
	if above < m {
		return nil, nil
	}

	now := d.Now()
	deviation := lat - threshold
	if last, err := d.Store.LastEventTime(ctx, t.ID); err != nil {
		return nil, fmt.Errorf("loading cooldown marker: %w", err)
	} else if last != nil && now.Sub(*last) < d.scaledCooldown(deviation, threshold) {
		return nil, nil
	}

	e := &domain.AnomalyEvent{
		TargetID:  t.ID,
		Timestamp: now,
		LatencyMS: out.LatencyMS,
		Deviation: deviation,
		Reason:    reason,
	}
	if err := d.Store.AppendAnomaly(ctx, e); err != nil {
		return nil, fmt.Errorf("recording anomaly: %w", err)
	}
	d.Metrics.AnomaliesTotal.WithLabelValues(strconv.FormatInt(int64(t.ID), 10)).Inc()
	d.Log.Warn("latency anomaly",
		zap.Int64("target_id", int64(t.ID)),
		zap.Int64("latency_ms", out.LatencyMS),
		zap.Float64("threshold_ms", threshold),
		zap.String("reason", reason))
	d.Announcer.Announce(ctx, t, report.Anomaly(t, e, threshold), true, now)
	return e, nil
}

// scaledCooldown shortens the cooldown for severe deviations so a
// worsening target is not silenced by an earlier mild alert.
func (d *Detector) scaledCooldown(deviation, threshold float64) time.Duration {
	ratio := deviation / threshold
	switch {
	case ratio > 0.5:
		return d.Cooldown / 2
	case ratio > 0.25:
		return time.Duration(float64(d.Cooldown) * 0.75)
	default:
		return d.Cooldown
	}
}
