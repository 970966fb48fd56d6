package monitor

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"apiwatch/internal/domain"
	"apiwatch/internal/metrics"
	"apiwatch/internal/repo"
	"apiwatch/internal/stats"
)

// Recomputer periodically rebuilds per-target latency baselines from
// recent successful checks. Baselines are append-only; the detector reads
// the latest row.
type Recomputer struct {
	Store   repo.Store
	Metrics *metrics.Metrics
	Log     *zap.Logger
	Window  int
	Now     func() time.Time
}

// RunOnce recomputes the baseline of every active target. One target's
// failure never blocks the rest.
func (rc *Recomputer) RunOnce(ctx context.Context) {
	targets, err := rc.Store.ListActive(ctx)
	if err != nil {
		rc.Log.Error("listing targets for baseline pass", zap.Error(err))
		return
	}
	for _, t := range targets {
		if err := rc.recompute(ctx, t.ID); err != nil {
			rc.Log.Error("recomputing baseline", zap.Error(err),
				zap.Int64("target_id", int64(t.ID)))
		}
	}
}

func (rc *Recomputer) recompute(ctx context.Context, id domain.TargetID) error {
	lat, err := rc.Store.RecentLatencies(ctx, id, rc.Window)
	if err != nil {
		return err
	}
	if len(lat) == 0 {
		return nil
	}
	sum := stats.Compute(lat)
	b := &domain.Baseline{
		TargetID:   id,
		ComputedAt: rc.Now(),
		Window:     sum.Window,
		MedianMS:   sum.Median,
		MADMS:      sum.MAD,
		EWMAMS:     sum.EWMA,
		UCLMS:      sum.UCL,
	}
	if err := rc.Store.AppendBaseline(ctx, b); err != nil {
		return err
	}

	label := strconv.FormatInt(int64(id), 10)
	rc.Metrics.MLMedianMS.WithLabelValues(label).Set(sum.Median)
	rc.Metrics.MLMADMS.WithLabelValues(label).Set(sum.MAD)
	rc.Metrics.MLUCLMS.WithLabelValues(label).Set(sum.UCL)
	rc.Metrics.MLP95MS.WithLabelValues(label).Set(sum.P95)
	return nil
}
