package monitor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"apiwatch/internal/domain"
	"apiwatch/internal/probe"
	"apiwatch/internal/repo"
)

// Monitor is the per-check pipeline: load the target, probe it, track the
// state transition, then look for latency anomalies.
type Monitor struct {
	Store     repo.Store
	Checker   probe.Checker
	Tracker   *Tracker
	Detector  *Detector
	Log       *zap.Logger
	MLEnabled bool
	Now       func() time.Time
}

// RunCheck executes one scheduled check for the target. Paused targets
// are skipped without touching history.
func (m *Monitor) RunCheck(ctx context.Context, id domain.TargetID) error {
	t, err := m.Store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("loading target %d: %w", id, err)
	}
	if !t.IsActive {
		return nil
	}

	out := m.Checker.Check(ctx, t)
	now := m.Now()
	if err := m.Tracker.Apply(ctx, t, out, now); err != nil {
		return fmt.Errorf("tracking target %d: %w", id, err)
	}

	if m.MLEnabled {
		if _, err := m.Detector.Evaluate(ctx, t, out); err != nil {
			// anomaly bookkeeping must never fail the check itself
			m.Log.Error("anomaly evaluation", zap.Error(err),
				zap.Int64("target_id", int64(id)))
		}
	}
	return nil
}
